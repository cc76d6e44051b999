package model

import "time"

// Booking statuses.
const (
    BookingPending   = "pending"
    BookingConfirmed = "confirmed"
    BookingCancelled = "cancelled"
)

// Booking payment statuses.
const (
    PaymentUnpaid   = "unpaid"
    PaymentPaid     = "paid"
    PaymentFailed   = "failed"
    PaymentRefunded = "refunded"
)

// Cancellation reasons recorded on bookings.
const (
    CancelReasonUser      = "user"
    CancelReasonExpired   = "expired"
    CancelReasonSoldOut   = "sold_out"
    CancelReasonDuplicate = "duplicate"
)

// Booking is a user's purchase of one or more tickets of a single
// ticket type for an event.  A pending booking with ReservedUntil set
// holds inventory until it is confirmed or the deadline passes.
// Status is the source of truth; the timestamps are audit data.
//
// Fields:
//  ID                  – primary key identifier.
//  BookingNumber       – public reference NF-YYYYMMDD-XXXXXXXX.
//  UserID              – purchaser.
//  EventID             – booked event.
//  TicketTypeID        – ticket type held by the booking.
//  Quantity            – number of tickets.
//  TotalAmountCents    – final amount charged (after discount).
//  DiscountAmountCents – promo discount applied.
//  PlatformFeeCents    – commission retained by the platform.
//  PartnerAmountCents  – amount credited to the partner.
//  PromoCodeID         – promo code applied (nullable).
//  PromoCounted        – whether the promo usage is included in current_uses.
//  Status              – pending, confirmed or cancelled.
//  PaymentStatus       – unpaid, paid, failed or refunded.
//  PaymentID           – latest payment attempt (nullable).
//  ReservedUntil       – end of the inventory hold (nullable).
//  CancelReason        – why the booking was cancelled (nullable).
type Booking struct {
    ID                  uint64     // bookings.id
    BookingNumber       string     // bookings.booking_number
    UserID              uint64     // bookings.user_id
    EventID             uint64     // bookings.event_id
    TicketTypeID        uint64     // bookings.ticket_type_id
    Quantity            int        // bookings.quantity
    TotalAmountCents    int64      // bookings.total_amount_cents
    DiscountAmountCents int64      // bookings.discount_amount_cents
    PlatformFeeCents    int64      // bookings.platform_fee_cents
    PartnerAmountCents  int64      // bookings.partner_amount_cents
    PromoCodeID         *uint64    // bookings.promo_code_id (nullable)
    PromoCounted        bool       // bookings.promo_counted
    Status              string     // bookings.status
    PaymentStatus       string     // bookings.payment_status
    PaymentID           *uint64    // bookings.payment_id (nullable)
    ReservedUntil       *time.Time // bookings.reserved_until (nullable)
    ConfirmedAt         *time.Time // bookings.confirmed_at (nullable)
    CancelledAt         *time.Time // bookings.cancelled_at (nullable)
    CancelReason        *string    // bookings.cancel_reason (nullable)
    CheckedIn           bool       // bookings.checked_in
    CheckedInAt         *time.Time // bookings.checked_in_at (nullable)
    CreatedAt           time.Time  // bookings.created_at
    UpdatedAt           time.Time  // bookings.updated_at
}

// HoldsInventory reports whether the booking is an unexpired reservation
// hold at the given instant.
func (b *Booking) HoldsInventory(now time.Time) bool {
    return b.Status == BookingPending &&
        b.PaymentStatus == PaymentUnpaid &&
        b.ReservedUntil != nil &&
        !b.ReservedUntil.Before(now)
}

// Active reports whether the booking still counts as the user's booking
// for its event.  Expired unpaid holds are no longer active even before
// the reclaimer has cancelled them.
func (b *Booking) Active(now time.Time) bool {
    switch b.Status {
    case BookingConfirmed:
        return true
    case BookingPending:
        return b.ReservedUntil == nil || !b.ReservedUntil.Before(now)
    }
    return false
}

// Ticket is a single admission issued for a confirmed booking.
type Ticket struct {
    ID           uint64     // tickets.id
    BookingID    uint64     // tickets.booking_id
    TicketTypeID uint64     // tickets.ticket_type_id
    TicketNumber string     // tickets.ticket_number
    QRPayload    string     // tickets.qr_payload
    QRPath       *string    // tickets.qr_path (nullable)
    IsValid      bool       // tickets.is_valid
    IsScanned    bool       // tickets.is_scanned
    ScannedAt    *time.Time // tickets.scanned_at (nullable)
    CreatedAt    time.Time  // tickets.created_at
}
