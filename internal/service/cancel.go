package service

import (
	"context"
	"errors"
	"log"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Cancel cancels one of the user's bookings before the event starts.
// A pending booking just releases its hold and gives back its promo use.
// A confirmed booking returns its units to the ticket type, invalidates
// its tickets and rolls back the event's attendee counters; revenue,
// partner earnings and promo usage stay as settled.
func (s *Bookings) Cancel(ctx context.Context, userID, bookingID uint64) (*model.Booking, error) {
	var out model.Booking
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return ErrForbidden
		}
		if b.Status == model.BookingCancelled {
			return ErrBookingCancelled
		}
		ev, err := tx.GetEvent(ctx, b.EventID)
		if err != nil {
			return err
		}
		if ev.Started(now) {
			return ErrEventStarted
		}
		if b.PaymentID != nil && b.Status == model.BookingPending {
			p, err := tx.GetPayment(ctx, *b.PaymentID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if p != nil && p.Status == model.PaymentStatusPending {
				return ErrPaymentInProgress
			}
		}

		if b.Status == model.BookingConfirmed {
			if _, err := tx.GetTicketTypeForUpdate(ctx, b.TicketTypeID); err != nil {
				return err
			}
			if err := tx.RestoreInventory(ctx, b.TicketTypeID, b.Quantity); err != nil {
				return err
			}
			if err := tx.InvalidateTickets(ctx, b.ID); err != nil {
				return err
			}
			if err := tx.AddEventSales(ctx, ev.ID, -b.Quantity, -b.Quantity, 0); err != nil {
				return err
			}
		} else if b.PromoCodeID != nil && b.PromoCounted {
			if err := tx.DecrementPromoUses(ctx, *b.PromoCodeID); err != nil {
				return err
			}
			b.PromoCounted = false
		}

		reason := model.CancelReasonUser
		b.Status = model.BookingCancelled
		b.CancelledAt = &now
		b.CancelReason = &reason
		b.ReservedUntil = nil
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		out = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("booking: cancelled %s by user_id=%d", out.BookingNumber, userID)
	return &out, nil
}
