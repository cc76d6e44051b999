package model

import "time"

// FreeAdmissionName is the ticket type created on demand for free
// events booked without an explicit ticket type.
const FreeAdmissionName = "Free Admission"

// TicketType describes a priced class of tickets for an event.  A nil
// QuantityTotal means unlimited capacity, in which case
// QuantityAvailable is nil as well.  For finite types the columns obey
// QuantityAvailable + QuantitySold == QuantityTotal after every commit.
//
// Fields:
//  ID                – primary key identifier.
//  EventID           – owning event.
//  Name              – display name (e.g. "VIP").
//  PriceCents        – unit price in cents.
//  QuantityTotal     – capacity (nil = unlimited).
//  QuantityAvailable – unsold units (nil = unlimited).
//  QuantitySold      – issued units.
//  MinPerOrder       – minimum quantity per booking.
//  MaxPerOrder       – maximum quantity per booking (0 = no limit).
//  SalesStart        – optional start of the sales window.
//  SalesEnd          – optional end of the sales window.
//  IsActive          – inactive types cannot be booked.
type TicketType struct {
    ID                uint64     // ticket_types.id
    EventID           uint64     // ticket_types.event_id
    Name              string     // ticket_types.name
    PriceCents        int64      // ticket_types.price_cents
    QuantityTotal     *int       // ticket_types.quantity_total (nullable)
    QuantityAvailable *int       // ticket_types.quantity_available (nullable)
    QuantitySold      int        // ticket_types.quantity_sold
    MinPerOrder       int        // ticket_types.min_per_order
    MaxPerOrder       int        // ticket_types.max_per_order
    SalesStart        *time.Time // ticket_types.sales_start (nullable)
    SalesEnd          *time.Time // ticket_types.sales_end (nullable)
    IsActive          bool       // ticket_types.is_active
    CreatedAt         time.Time  // ticket_types.created_at
    UpdatedAt         time.Time  // ticket_types.updated_at
}

// Unlimited reports whether the type has no capacity limit.
func (t *TicketType) Unlimited() bool { return t.QuantityTotal == nil }

// SalesOpen reports whether now falls inside the configured sales window.
// A missing bound is treated as open on that side.
func (t *TicketType) SalesOpen(now time.Time) bool {
    if t.SalesStart != nil && now.Before(*t.SalesStart) {
        return false
    }
    if t.SalesEnd != nil && now.After(*t.SalesEnd) {
        return false
    }
    return true
}
