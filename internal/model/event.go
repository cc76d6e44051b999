package model

import "time"

// Event statuses as written by the moderation workflow.
const (
    EventStatusPending  = "pending"
    EventStatusApproved = "approved"
    EventStatusRejected = "rejected"
)

// Event is a ticketed happening published by a partner.  Only
// approved and published events accept bookings.  The aggregate
// counters are maintained by ticket fulfillment and cancellation.
//
// Fields:
//  ID               – primary key identifier.
//  PartnerID        – organizer that owns the event.
//  Title            – display name.
//  Venue            – free-form location.
//  Status           – moderation state (pending, approved, rejected).
//  IsPublished      – whether the partner has published the event.
//  IsFree           – free events confirm bookings without payment.
//  StartsAt         – when the event begins; bookings close at this time.
//  EndsAt           – when the event ends.
//  AttendeeCount    – confirmed attendees.
//  TotalTicketsSold – tickets issued across all ticket types.
//  RevenueCents     – gross booking revenue after discounts.
type Event struct {
    ID               uint64    // events.id
    PartnerID        uint64    // events.partner_id
    Title            string    // events.title
    Venue            string    // events.venue
    Status           string    // events.status
    IsPublished      bool      // events.is_published
    IsFree           bool      // events.is_free
    StartsAt         time.Time // events.starts_at
    EndsAt           time.Time // events.ends_at
    AttendeeCount    int       // events.attendee_count
    TotalTicketsSold int       // events.total_tickets_sold
    RevenueCents     int64     // events.revenue_cents
    CreatedAt        time.Time // events.created_at
    UpdatedAt        time.Time // events.updated_at
}

// Bookable reports whether the event passed moderation and is visible.
func (e *Event) Bookable() bool {
    return e.Status == EventStatusApproved && e.IsPublished
}

// Started reports whether the event has begun at the given instant.
func (e *Event) Started(now time.Time) bool {
    return !now.Before(e.StartsAt)
}

// Partner is the organizer account that receives booking earnings.
type Partner struct {
    ID                   uint64    // partners.id
    UserID               uint64    // partners.user_id
    BusinessName         string    // partners.business_name
    PendingEarningsCents int64     // partners.pending_earnings_cents
    TotalEarningsCents   int64     // partners.total_earnings_cents
    CreatedAt            time.Time // partners.created_at
}

// EventPromotion is a paid featured placement of an event.  It becomes
// active once its payment completes.
type EventPromotion struct {
    ID          uint64     // event_promotions.id
    EventID     uint64     // event_promotions.event_id
    PartnerID   uint64     // event_promotions.partner_id
    AmountCents int64      // event_promotions.amount_cents
    PaymentID   *uint64    // event_promotions.payment_id (nullable)
    IsPaid      bool       // event_promotions.is_paid
    IsActive    bool       // event_promotions.is_active
    StartsAt    time.Time  // event_promotions.starts_at
    EndsAt      time.Time  // event_promotions.ends_at
    PaidAt      *time.Time // event_promotions.paid_at (nullable)
    CreatedAt   time.Time  // event_promotions.created_at
}
