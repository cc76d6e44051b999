package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Bookings is the reservation manager: it creates, lists and cancels
// bookings.  Paid bookings are created as inventory holds; free ones are
// confirmed on the spot through the Fulfiller.
type Bookings struct {
	store     repository.Store
	cfg       config.BookingConfig
	clock     clock.Clock
	fulfiller *Fulfiller
}

// NewBookings wires the reservation manager.
func NewBookings(store repository.Store, cfg config.BookingConfig, clk clock.Clock, f *Fulfiller) *Bookings {
	return &Bookings{store: store, cfg: cfg, clock: clk, fulfiller: f}
}

// CreateBookingInput is a booking request.  TicketTypeID may be zero for
// free events, which then use the event's Free Admission type.
type CreateBookingInput struct {
	UserID       uint64
	EventID      uint64
	TicketTypeID uint64
	Quantity     int
	PromoCode    string
}

// BookingResult is a booking with its tickets and price breakdown.
type BookingResult struct {
	Booking         model.Booking
	Tickets         []model.Ticket
	Quote           Quote
	PaymentRequired bool
}

// Create validates the request and records the booking.  Checks run in a
// fixed order and each failure is a distinct *Error.  The availability
// check and the insert share one transaction holding the ticket type's
// row lock, so two buyers cannot both reserve the last unit.
func (s *Bookings) Create(ctx context.Context, in CreateBookingInput) (*BookingResult, error) {
	var (
		res       *BookingResult
		fulfilled *Fulfillment
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		ev, err := tx.GetEvent(ctx, in.EventID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		if err != nil {
			return err
		}
		if !ev.Bookable() {
			return ErrEventUnavailable
		}
		if ev.Started(now) {
			return ErrEventStarted
		}

		existing, err := tx.FindActiveBooking(ctx, in.UserID, ev.ID, now)
		switch {
		case err == nil:
			return duplicate(existing.ID)
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}

		tt, err := s.ticketType(ctx, tx, ev, in.TicketTypeID, now)
		if err != nil {
			return err
		}
		if in.Quantity < 1 || in.Quantity < tt.MinPerOrder || (tt.MaxPerOrder > 0 && in.Quantity > tt.MaxPerOrder) {
			return ErrInvalidQuantity
		}
		avail, err := Available(ctx, tx, tt, now)
		if err != nil {
			return err
		}
		if !avail.Allows(in.Quantity) {
			return ErrInsufficientInventory
		}
		if !tt.SalesOpen(now) {
			return ErrSalesClosed
		}

		var promo *model.PromoCode
		if code := strings.ToUpper(strings.TrimSpace(in.PromoCode)); code != "" && !ev.IsFree {
			if promo, err = s.promo(ctx, tx, ev.ID, in.UserID, code, now); err != nil {
				return err
			}
		}
		unit := tt.PriceCents
		if ev.IsFree {
			unit = 0
		}
		quote := Price(unit, in.Quantity, promo, s.cfg.CommissionBps)
		free := ev.IsFree
		if !free && quote.FinalCents <= 0 {
			return ErrZeroAmount
		}

		b := &model.Booking{
			UserID:              in.UserID,
			EventID:             ev.ID,
			TicketTypeID:        tt.ID,
			Quantity:            in.Quantity,
			TotalAmountCents:    quote.FinalCents,
			DiscountAmountCents: quote.DiscountCents,
			PlatformFeeCents:    quote.PlatformFeeCents,
			PartnerAmountCents:  quote.PartnerCents,
			Status:              model.BookingPending,
			PaymentStatus:       model.PaymentUnpaid,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if promo != nil {
			id := promo.ID
			b.PromoCodeID = &id
		}
		if !free {
			until := now.Add(s.cfg.ReservationWindow)
			b.ReservedUntil = &until
			if promo != nil {
				if err := tx.IncrementPromoUses(ctx, promo.ID); err != nil {
					return err
				}
				b.PromoCounted = true
			}
		}
		if err := s.insert(ctx, tx, b, now); err != nil {
			return err
		}

		res = &BookingResult{Quote: quote, PaymentRequired: !free}
		if free {
			f, err := s.fulfiller.Fulfill(ctx, tx, b, nil)
			if err != nil {
				return err
			}
			fulfilled = f
			res.Tickets = f.Tickets
		}
		res.Booking = *b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fulfilled != nil {
		s.fulfiller.After(ctx, fulfilled)
		res.Tickets = fulfilled.Tickets
	}
	log.Printf("booking: created %s user_id=%d event_id=%d qty=%d total=%d payment_required=%t",
		res.Booking.BookingNumber, in.UserID, in.EventID, in.Quantity, res.Booking.TotalAmountCents, res.PaymentRequired)
	return res, nil
}

// ticketType resolves and locks the requested type.  Free events booked
// without a type get a lazily created unlimited Free Admission type.
func (s *Bookings) ticketType(ctx context.Context, tx repository.Tx, ev *model.Event, id uint64, now time.Time) (*model.TicketType, error) {
	if id == 0 {
		if !ev.IsFree {
			return nil, ErrInvalidTicketType
		}
		tt, err := tx.FindTicketTypeByNameForUpdate(ctx, ev.ID, model.FreeAdmissionName)
		if err == nil {
			return tt, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		tt = &model.TicketType{
			EventID:     ev.ID,
			Name:        model.FreeAdmissionName,
			MinPerOrder: 1,
			MaxPerOrder: 10,
			IsActive:    true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateTicketType(ctx, tt); err != nil {
			return nil, err
		}
		return tt, nil
	}
	tt, err := tx.GetTicketTypeForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidTicketType
	}
	if err != nil {
		return nil, err
	}
	if tt.EventID != ev.ID || !tt.IsActive {
		return nil, ErrInvalidTicketType
	}
	return tt, nil
}

// promo loads and locks the code, then applies the usage caps.
func (s *Bookings) promo(ctx context.Context, tx repository.Tx, eventID, userID uint64, code string, now time.Time) (*model.PromoCode, error) {
	p, err := tx.GetPromoCodeForUpdate(ctx, eventID, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidPromoCode
	}
	if err != nil {
		return nil, err
	}
	if !PromoUsable(p, now) {
		return nil, ErrInvalidPromoCode
	}
	if p.MaxUsesPerUser > 0 {
		used, err := tx.CountPromoUsesByUser(ctx, p.ID, userID)
		if err != nil {
			return nil, err
		}
		if used >= p.MaxUsesPerUser {
			return nil, ErrInvalidPromoCode
		}
	}
	return p, nil
}

// insert stores b under a fresh booking number, drawing a new one if the
// random suffix collides.
func (s *Bookings) insert(ctx context.Context, tx repository.Tx, b *model.Booking, now time.Time) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		b.BookingNumber = BookingNumber(now)
		if err = tx.CreateBooking(ctx, b); !errors.Is(err, repository.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("booking number collision: %w", err)
}

// Get returns one of the user's bookings with its tickets.
func (s *Bookings) Get(ctx context.Context, userID, bookingID uint64) (*BookingResult, error) {
	var res BookingResult
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return ErrForbidden
		}
		tickets, err := tx.ListTickets(ctx, b.ID)
		if err != nil {
			return err
		}
		res.Booking = *b
		res.Tickets = tickets
		res.PaymentRequired = b.Status == model.BookingPending
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// List returns the user's bookings, newest first.
func (s *Bookings) List(ctx context.Context, userID uint64) ([]model.Booking, error) {
	var out []model.Booking
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListBookingsByUser(ctx, userID)
		return err
	})
	return out, err
}

// TicketTypeAvailability is a ticket type with its live availability.
type TicketTypeAvailability struct {
	TicketType   model.TicketType
	Availability Availability
}

// TicketTypes lists an event's active ticket types with live availability.
func (s *Bookings) TicketTypes(ctx context.Context, eventID uint64) ([]TicketTypeAvailability, error) {
	var out []TicketTypeAvailability
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetEvent(ctx, eventID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		types, err := tx.ListTicketTypes(ctx, eventID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		for i := range types {
			if !types[i].IsActive {
				continue
			}
			a, err := Available(ctx, tx, &types[i], now)
			if err != nil {
				return err
			}
			out = append(out, TicketTypeAvailability{TicketType: types[i], Availability: a})
		}
		return nil
	})
	return out, err
}
