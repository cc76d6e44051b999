package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Notifier accepts notifications for asynchronous delivery.  Submit must
// not block; notify.Dispatcher satisfies it.
type Notifier interface {
	Submit(m notify.Message) bool
}

type discardNotifier struct{}

func (discardNotifier) Submit(notify.Message) bool { return false }

// Fulfiller turns a paid (or free) booking into issued tickets and settles
// inventory, event statistics, partner earnings and promo usage in the
// caller's transaction.  Side effects that may fail (QR artifacts and
// notifications) run in After, once the transaction has committed.
type Fulfiller struct {
	store    repository.Store
	clock    clock.Clock
	qr       notify.QRGenerator
	notifier Notifier
}

// NewFulfiller builds a fulfiller.  qr and notifier may be nil.
func NewFulfiller(store repository.Store, clk clock.Clock, qr notify.QRGenerator, notifier Notifier) *Fulfiller {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &Fulfiller{store: store, clock: clk, qr: qr, notifier: notifier}
}

// Fulfillment is the committed result of Fulfill.
type Fulfillment struct {
	Booking model.Booking
	Event   model.Event
	Tickets []model.Ticket
	Payment *model.Payment
	// SoldOut is set when a late payment could not be fulfilled (no stock
	// left, or the user already holds another booking for the event); the
	// booking was cancelled and needs a manual refund.
	SoldOut bool
}

// Fulfill confirms b and issues its tickets within tx.  payment is nil for
// free bookings.  When the booking no longer holds inventory (its hold
// expired or was reclaimed) stock is re-checked against other live holds;
// if it is gone the booking is cancelled as sold out and flagged paid for
// refund instead of overselling.
func (f *Fulfiller) Fulfill(ctx context.Context, tx repository.Tx, b *model.Booking, payment *model.Payment) (*Fulfillment, error) {
	now := f.clock.Now()
	ev, err := tx.GetEvent(ctx, b.EventID)
	if err != nil {
		return nil, fmt.Errorf("fulfill: load event: %w", err)
	}
	tt, err := tx.GetTicketTypeForUpdate(ctx, b.TicketTypeID)
	if err != nil {
		return nil, fmt.Errorf("fulfill: lock ticket type: %w", err)
	}

	if payment != nil && b.Status == model.BookingCancelled {
		other, err := tx.FindActiveBooking(ctx, b.UserID, b.EventID, now)
		switch {
		case err == nil && other.ID != b.ID:
			return f.refund(ctx, tx, b, ev, payment, model.CancelReasonDuplicate, now)
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("fulfill: active booking: %w", err)
		}
	}

	inStock := true
	if !tt.Unlimited() && !b.HoldsInventory(now) {
		avail, err := Available(ctx, tx, tt, now)
		if err != nil {
			return nil, err
		}
		inStock = avail.Allows(b.Quantity)
	}
	if inStock {
		// unlimited types only count the sale
		if inStock, err = tx.DecrementInventory(ctx, tt.ID, b.Quantity); err != nil {
			return nil, fmt.Errorf("fulfill: decrement inventory: %w", err)
		}
	}
	if !inStock {
		if payment == nil {
			return nil, ErrInsufficientInventory
		}
		return f.refund(ctx, tx, b, ev, payment, model.CancelReasonSoldOut, now)
	}

	b.Status = model.BookingConfirmed
	b.PaymentStatus = model.PaymentPaid
	b.ConfirmedAt = &now
	b.ReservedUntil = nil
	b.CancelledAt = nil
	b.CancelReason = nil
	if payment != nil {
		id := payment.ID
		b.PaymentID = &id
	}
	if b.PromoCodeID != nil && !b.PromoCounted {
		if err := tx.IncrementPromoUses(ctx, *b.PromoCodeID); err != nil {
			return nil, fmt.Errorf("fulfill: promo uses: %w", err)
		}
		b.PromoCounted = true
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("fulfill: confirm booking: %w", err)
	}

	tickets := make([]model.Ticket, b.Quantity)
	for i := range tickets {
		num := TicketNumber(now)
		tickets[i] = model.Ticket{
			BookingID:    b.ID,
			TicketTypeID: tt.ID,
			TicketNumber: num,
			QRPayload:    qrPayload(b, num),
			IsValid:      true,
			CreatedAt:    now,
		}
	}
	if err := tx.CreateTickets(ctx, tickets); err != nil {
		return nil, fmt.Errorf("fulfill: issue tickets: %w", err)
	}
	if err := tx.AddEventSales(ctx, ev.ID, b.Quantity, b.Quantity, b.TotalAmountCents); err != nil {
		return nil, fmt.Errorf("fulfill: event stats: %w", err)
	}
	if b.PartnerAmountCents != 0 {
		if err := tx.CreditPartner(ctx, ev.PartnerID, b.PartnerAmountCents); err != nil {
			return nil, fmt.Errorf("fulfill: partner earnings: %w", err)
		}
	}
	return &Fulfillment{Booking: *b, Event: *ev, Tickets: tickets, Payment: payment}, nil
}

// refund cancels a paid booking that cannot be fulfilled and leaves it
// flagged paid for a manual refund.
func (f *Fulfiller) refund(ctx context.Context, tx repository.Tx, b *model.Booking, ev *model.Event, payment *model.Payment, reason string, now time.Time) (*Fulfillment, error) {
	b.Status = model.BookingCancelled
	b.PaymentStatus = model.PaymentPaid
	b.CancelledAt = &now
	b.CancelReason = &reason
	b.ReservedUntil = nil
	if b.PromoCodeID != nil && b.PromoCounted {
		if err := tx.DecrementPromoUses(ctx, *b.PromoCodeID); err != nil {
			return nil, err
		}
		b.PromoCounted = false
	}
	if err := tx.UpdateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("fulfill: cancel %s booking: %w", reason, err)
	}
	return &Fulfillment{Booking: *b, Event: *ev, Payment: payment, SoldOut: true}, nil
}

func qrPayload(b *model.Booking, ticketNumber string) string {
	return fmt.Sprintf("TICKET:%s:%s:%d", ticketNumber, b.BookingNumber, b.EventID)
}

// After runs the post-commit side effects of a fulfillment: QR artifacts
// for tickets that lack one and the attendee/partner notifications.
// Failures are logged and never returned.
func (f *Fulfiller) After(ctx context.Context, res *Fulfillment) {
	if res == nil {
		return
	}
	now := f.clock.Now()
	b := res.Booking
	if res.SoldOut {
		reason := ""
		if b.CancelReason != nil {
			reason = *b.CancelReason
		}
		log.Printf("fulfillment: booking %s not fulfilled after payment (%s), refund required payment_id=%d", b.BookingNumber, reason, res.Payment.ID)
		f.notifier.Submit(notify.Message{
			Kind: notify.KindPaymentFailed, UserID: b.UserID, EventID: b.EventID, EventTitle: res.Event.Title,
			BookingID: b.ID, BookingNumber: b.BookingNumber, PaymentID: res.Payment.ID,
			TransactionID: res.Payment.TransactionID, AmountCents: res.Payment.AmountCents,
			Reason: reason + "_refund_pending", OccurredAt: now,
		})
		return
	}

	f.GenerateQRCodes(ctx, res.Tickets)

	numbers := make([]string, len(res.Tickets))
	for i, t := range res.Tickets {
		numbers[i] = t.TicketNumber
	}
	attendee := notify.Message{
		Kind: notify.KindBookingConfirmation, UserID: b.UserID, EventID: b.EventID, EventTitle: res.Event.Title,
		BookingID: b.ID, BookingNumber: b.BookingNumber, AmountCents: b.TotalAmountCents,
		Quantity: b.Quantity, TicketNumbers: numbers, OccurredAt: now,
	}
	partner := notify.Message{
		Kind: notify.KindNewBooking, PartnerID: res.Event.PartnerID, EventID: b.EventID, EventTitle: res.Event.Title,
		BookingID: b.ID, BookingNumber: b.BookingNumber, AmountCents: b.PartnerAmountCents,
		Quantity: b.Quantity, OccurredAt: now,
	}
	if p := res.Payment; p != nil {
		attendee.Kind = notify.KindPaymentConfirmation
		attendee.PaymentID, attendee.TransactionID = p.ID, p.TransactionID
		if p.ReceiptNumber != nil {
			attendee.ReceiptNumber = *p.ReceiptNumber
		}
		completed := partner
		completed.Kind = notify.KindPaymentCompleted
		completed.PaymentID, completed.TransactionID = p.ID, p.TransactionID
		f.notifier.Submit(completed)
	}
	f.notifier.Submit(attendee)
	f.notifier.Submit(partner)
}

// GenerateQRCodes writes artifacts for the tickets that have no QR path
// yet and records the path.  Safe to call repeatedly.
func (f *Fulfiller) GenerateQRCodes(ctx context.Context, tickets []model.Ticket) {
	if f.qr == nil {
		return
	}
	for i := range tickets {
		t := &tickets[i]
		if t.QRPath != nil {
			continue
		}
		path, err := f.qr.Generate(ctx, t.QRPayload, t.TicketNumber)
		if err != nil {
			log.Printf("fulfillment: qr for ticket %s failed: %v", t.TicketNumber, err)
			continue
		}
		err = f.store.WithTx(ctx, func(tx repository.Tx) error {
			return tx.SetTicketQRPath(ctx, t.ID, path)
		})
		if err != nil {
			log.Printf("fulfillment: save qr path for ticket %s failed: %v", t.TicketNumber, err)
			continue
		}
		t.QRPath = &path
	}
}
