package service

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindGateway    Kind = "gateway"
)

// Error is a rejectable condition raised before any state is committed.
// Code is stable and safe to show to clients; BookingID points at the
// booking the caller may want to view instead (duplicate booking).
type Error struct {
	Kind      Kind
	Code      string
	Message   string
	BookingID uint64
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Is matches on Code so that errors.Is(err, ErrDuplicateBooking) holds for
// an error carrying a specific booking id.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func newErr(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

// Errors returned by the booking and payment services.
var (
	ErrEventNotFound           = newErr(KindNotFound, "event_not_found", "event not found")
	ErrEventUnavailable        = newErr(KindValidation, "event_unavailable", "event is not open for booking")
	ErrEventStarted            = newErr(KindValidation, "event_started", "event has already started")
	ErrDuplicateBooking        = newErr(KindConflict, "duplicate_booking", "you already have a booking for this event")
	ErrInvalidTicketType       = newErr(KindValidation, "invalid_ticket_type", "ticket type is not available for this event")
	ErrInvalidQuantity         = newErr(KindValidation, "invalid_quantity", "quantity is outside the allowed range")
	ErrInsufficientInventory   = newErr(KindConflict, "insufficient_availability", "not enough tickets available")
	ErrSalesClosed             = newErr(KindValidation, "sales_closed", "ticket sales are closed")
	ErrInvalidPromoCode        = newErr(KindValidation, "invalid_promo_code", "promo code is not valid")
	ErrZeroAmount              = newErr(KindValidation, "zero_amount", "a paid event booking must have an amount to pay")
	ErrBookingNotFound         = newErr(KindNotFound, "booking_not_found", "booking not found")
	ErrForbidden               = newErr(KindForbidden, "forbidden", "resource belongs to another user")
	ErrBookingCancelled        = newErr(KindConflict, "booking_cancelled", "booking is already cancelled")
	ErrBookingConfirmed        = newErr(KindConflict, "booking_confirmed", "booking is already paid")
	ErrReservationExpired      = newErr(KindConflict, "reservation_expired", "reservation has expired, please book again")
	ErrPaymentInProgress       = newErr(KindConflict, "payment_in_progress", "a payment for this booking is in progress")
	ErrPaymentNotFound         = newErr(KindNotFound, "payment_not_found", "payment not found")
	ErrPromotionNotFound       = newErr(KindNotFound, "promotion_not_found", "promotion not found")
	ErrPromotionPaid           = newErr(KindConflict, "promotion_paid", "promotion is already paid")
	ErrInvalidPhone            = newErr(KindValidation, "invalid_phone", "phone number is not a valid M-Pesa number")
	ErrPaymentCouldNotComplete = newErr(KindGateway, "payment_failed", "payment could not be completed, please retry")
)

// duplicate returns ErrDuplicateBooking pointing at the existing booking.
func duplicate(bookingID uint64) *Error {
	e := *ErrDuplicateBooking
	e.BookingID = bookingID
	return &e
}

// AsError extracts a service error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
