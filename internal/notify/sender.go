package notify

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"
)

// LogSender stands in for the email/SMS providers: every message is
// rendered to one line and appended to a log file.
type LogSender struct {
    Path string

    mu sync.Mutex
}

// NewLogSender returns a sender appending to path.
func NewLogSender(path string) *LogSender { return &LogSender{Path: path} }

// Deliver appends the rendered message to the log file.
func (s *LogSender) Deliver(_ context.Context, m Message) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(Render(m) + "\n"); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

// Render formats m as a single human-friendly line.
func Render(m Message) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s", m.OccurredAt.UTC().Format("2006-01-02T15:04:05Z"), subject(m))
    if m.BookingNumber != "" {
        fmt.Fprintf(&b, " | booking=%s", m.BookingNumber)
    }
    if m.UserID != 0 {
        fmt.Fprintf(&b, " | user_id=%d", m.UserID)
    }
    if m.PartnerID != 0 {
        fmt.Fprintf(&b, " | partner_id=%d", m.PartnerID)
    }
    if m.EventTitle != "" {
        fmt.Fprintf(&b, " | event=%q", m.EventTitle)
    }
    if m.TransactionID != "" {
        fmt.Fprintf(&b, " | txn=%s", m.TransactionID)
    }
    if m.ReceiptNumber != "" {
        fmt.Fprintf(&b, " | receipt=%s", m.ReceiptNumber)
    }
    if m.AmountCents != 0 {
        fmt.Fprintf(&b, " | amount=%d cents", m.AmountCents)
    }
    if len(m.TicketNumbers) > 0 {
        fmt.Fprintf(&b, " | tickets=[%s]", strings.Join(m.TicketNumbers, ","))
    }
    if m.Reason != "" {
        fmt.Fprintf(&b, " | reason=%s", m.Reason)
    }
    return b.String()
}

func subject(m Message) string {
    switch m.Kind {
    case KindBookingConfirmation:
        return "Booking confirmed"
    case KindPaymentConfirmation:
        return "Payment received"
    case KindPaymentFailed:
        return "Payment failed"
    case KindNewBooking:
        return "New booking for your event"
    case KindPaymentCompleted:
        return "Booking payment completed"
    case KindPromotionActivated:
        return "Promotion activated"
    }
    return string(m.Kind)
}
