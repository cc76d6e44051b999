// Package notify carries the best-effort side effects of the booking
// pipeline: user and partner notifications and ticket QR artifacts.
// Nothing here can fail a booking or payment; callers submit messages
// after their transaction commits and errors are only logged.
package notify

import "time"

// Kind names the notification template a Message renders with.
type Kind string

const (
    KindBookingConfirmation Kind = "booking_confirmation" // attendee: tickets issued
    KindPaymentConfirmation Kind = "payment_confirmation" // attendee: payment received with tickets
    KindPaymentFailed       Kind = "payment_failed"       // attendee: payment could not be completed
    KindNewBooking          Kind = "new_booking"          // partner: a booking was confirmed
    KindPaymentCompleted    Kind = "payment_completed"    // partner: booking payment settled
    KindPromotionActivated  Kind = "promotion_activated"  // partner: featured placement paid
)

// Message is the queue payload for one notification.  It contains enough
// context for a sender to render email/SMS text without querying the
// primary database.
type Message struct {
    Kind           Kind      `json:"kind"`
    UserID         uint64    `json:"user_id,omitempty"`
    PartnerID      uint64    `json:"partner_id,omitempty"`
    EventID        uint64    `json:"event_id,omitempty"`
    EventTitle     string    `json:"event_title,omitempty"`
    BookingID      uint64    `json:"booking_id,omitempty"`
    BookingNumber  string    `json:"booking_number,omitempty"`
    PaymentID      uint64    `json:"payment_id,omitempty"`
    TransactionID  string    `json:"transaction_id,omitempty"`
    ReceiptNumber  string    `json:"receipt_number,omitempty"`
    AmountCents    int64     `json:"amount_cents,omitempty"`
    Quantity       int       `json:"quantity,omitempty"`
    TicketNumbers  []string  `json:"tickets,omitempty"`
    Reason         string    `json:"reason,omitempty"`
    OccurredAt     time.Time `json:"occurred_at"`
}
