package repository

import (
    "context"
    "time"

    "github.com/iliyamo/event-ticketing/internal/model"
)

// Store opens units of work.  WithTx runs fn inside a single transaction,
// committing when fn returns nil and rolling back otherwise.  Every read
// and write the booking pipeline performs goes through a Tx so that the
// inventory, booking, payment and earnings rows move together.
type Store interface {
    WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a unit of work.  Methods
// suffixed ForUpdate take a row lock held until the transaction ends.
// Conditional writes report whether a row was changed so that callers
// can use them as idempotency guards.  Lookups that match nothing return
// ErrNotFound.
type Tx interface {
    // events and inventory
    GetEvent(ctx context.Context, id uint64) (*model.Event, error)
    AddEventSales(ctx context.Context, eventID uint64, attendees, tickets int, revenueCents int64) error
    GetTicketType(ctx context.Context, id uint64) (*model.TicketType, error)
    GetTicketTypeForUpdate(ctx context.Context, id uint64) (*model.TicketType, error)
    FindTicketTypeByNameForUpdate(ctx context.Context, eventID uint64, name string) (*model.TicketType, error)
    CreateTicketType(ctx context.Context, tt *model.TicketType) error
    ListTicketTypes(ctx context.Context, eventID uint64) ([]model.TicketType, error)
    ReservedQuantity(ctx context.Context, ticketTypeID uint64, now time.Time) (int, error)
    DecrementInventory(ctx context.Context, ticketTypeID uint64, qty int) (bool, error)
    RestoreInventory(ctx context.Context, ticketTypeID uint64, qty int) error

    // partners
    GetPartner(ctx context.Context, id uint64) (*model.Partner, error)
    GetPartnerByUserID(ctx context.Context, userID uint64) (*model.Partner, error)
    CreditPartner(ctx context.Context, partnerID uint64, amountCents int64) error

    // bookings
    CreateBooking(ctx context.Context, b *model.Booking) error
    GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
    GetBookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error)
    GetBookingByPaymentIDForUpdate(ctx context.Context, paymentID uint64) (*model.Booking, error)
    FindActiveBooking(ctx context.Context, userID, eventID uint64, now time.Time) (*model.Booking, error)
    ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
    UpdateBooking(ctx context.Context, b *model.Booking) error
    ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uint64, error)
    ExpireHold(ctx context.Context, bookingID uint64, now time.Time) (bool, error)

    // tickets
    CreateTickets(ctx context.Context, tickets []model.Ticket) error
    CountTickets(ctx context.Context, bookingID uint64) (int, error)
    ListTickets(ctx context.Context, bookingID uint64) ([]model.Ticket, error)
    InvalidateTickets(ctx context.Context, bookingID uint64) error
    SetTicketQRPath(ctx context.Context, ticketID uint64, path string) error

    // payments
    CreatePayment(ctx context.Context, p *model.Payment) error
    GetPayment(ctx context.Context, id uint64) (*model.Payment, error)
    GetPaymentByCorrelationID(ctx context.Context, correlationID string) (*model.Payment, error)
    SetPaymentCorrelation(ctx context.Context, id uint64, checkoutRequestID, merchantRequestID string) error
    CompletePayment(ctx context.Context, id uint64, receipt string, now time.Time) (bool, error)
    FailPayment(ctx context.Context, id uint64, message string, now time.Time) (bool, error)

    // promo codes
    GetPromoCodeForUpdate(ctx context.Context, eventID uint64, code string) (*model.PromoCode, error)
    CountPromoUsesByUser(ctx context.Context, promoCodeID, userID uint64) (int, error)
    IncrementPromoUses(ctx context.Context, promoCodeID uint64) error
    DecrementPromoUses(ctx context.Context, promoCodeID uint64) error

    // event promotions
    GetPromotionForUpdate(ctx context.Context, id uint64) (*model.EventPromotion, error)
    GetPromotionByPaymentIDForUpdate(ctx context.Context, paymentID uint64) (*model.EventPromotion, error)
    UpdatePromotion(ctx context.Context, p *model.EventPromotion) error

    // users
    GetUser(ctx context.Context, id uint64) (*model.User, error)
}

// UserStore persists accounts for the auth endpoints.  Emails are stored
// lower-cased; CreateUser returns ErrEmailExists on a duplicate.
type UserStore interface {
    CreateUser(ctx context.Context, u *model.User) error
    GetUserByEmail(ctx context.Context, email string) (*model.User, error)
    GetUserByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore persists refresh token hashes.  ValidateRefresh returns
// ErrNotFound for unknown, revoked or expired tokens.
type TokenStore interface {
    StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
    ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
    RevokeByHash(ctx context.Context, tokenHash string) error
    RevokeAllForUser(ctx context.Context, userID uint64) error
}
