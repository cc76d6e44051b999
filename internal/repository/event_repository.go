package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/event-ticketing/internal/model"
)

const eventCols = `id, partner_id, title, venue, status, is_published, is_free, starts_at, ends_at,
    attendee_count, total_tickets_sold, revenue_cents, created_at, updated_at`

// GetEvent loads an event by id.
func (t *sqlTx) GetEvent(ctx context.Context, id uint64) (*model.Event, error) {
    var e model.Event
    err := t.q.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id).Scan(
        &e.ID, &e.PartnerID, &e.Title, &e.Venue, &e.Status, &e.IsPublished, &e.IsFree, &e.StartsAt, &e.EndsAt,
        &e.AttendeeCount, &e.TotalTicketsSold, &e.RevenueCents, &e.CreatedAt, &e.UpdatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    return &e, nil
}

// AddEventSales adjusts the event's aggregate counters.  Negative deltas
// are floored at zero.
func (t *sqlTx) AddEventSales(ctx context.Context, eventID uint64, attendees, tickets int, revenueCents int64) error {
    _, err := t.q.ExecContext(ctx, `
        UPDATE events
           SET attendee_count     = GREATEST(CAST(attendee_count AS SIGNED) + ?, 0),
               total_tickets_sold = GREATEST(CAST(total_tickets_sold AS SIGNED) + ?, 0),
               revenue_cents      = revenue_cents + ?,
               updated_at         = UTC_TIMESTAMP()
         WHERE id = ?`,
        attendees, tickets, revenueCents, eventID)
    return err
}

const ticketTypeCols = `id, event_id, name, price_cents, quantity_total, quantity_available, quantity_sold,
    min_per_order, max_per_order, sales_start, sales_end, is_active, created_at, updated_at`

func scanTicketType(s scanner) (*model.TicketType, error) {
    var (
        tt               model.TicketType
        total, available sql.NullInt64
        start, end       sql.NullTime
    )
    err := s.Scan(&tt.ID, &tt.EventID, &tt.Name, &tt.PriceCents, &total, &available, &tt.QuantitySold,
        &tt.MinPerOrder, &tt.MaxPerOrder, &start, &end, &tt.IsActive, &tt.CreatedAt, &tt.UpdatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    tt.QuantityTotal = intFrom(total)
    tt.QuantityAvailable = intFrom(available)
    tt.SalesStart = timeFrom(start)
    tt.SalesEnd = timeFrom(end)
    return &tt, nil
}

func (t *sqlTx) GetTicketType(ctx context.Context, id uint64) (*model.TicketType, error) {
    return scanTicketType(t.q.QueryRowContext(ctx, `SELECT `+ticketTypeCols+` FROM ticket_types WHERE id = ?`, id))
}

// GetTicketTypeForUpdate locks the ticket type row.  Every reservation and
// issuance for the type serializes on this lock.
func (t *sqlTx) GetTicketTypeForUpdate(ctx context.Context, id uint64) (*model.TicketType, error) {
    return scanTicketType(t.q.QueryRowContext(ctx, `SELECT `+ticketTypeCols+` FROM ticket_types WHERE id = ? FOR UPDATE`, id))
}

func (t *sqlTx) FindTicketTypeByNameForUpdate(ctx context.Context, eventID uint64, name string) (*model.TicketType, error) {
    return scanTicketType(t.q.QueryRowContext(ctx,
        `SELECT `+ticketTypeCols+` FROM ticket_types WHERE event_id = ? AND name = ? ORDER BY id LIMIT 1 FOR UPDATE`,
        eventID, name))
}

func (t *sqlTx) CreateTicketType(ctx context.Context, tt *model.TicketType) error {
    id, err := insertID(t.q.ExecContext(ctx, `
        INSERT INTO ticket_types (event_id, name, price_cents, quantity_total, quantity_available, quantity_sold,
                                  min_per_order, max_per_order, sales_start, sales_end, is_active)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
        tt.EventID, tt.Name, tt.PriceCents, nullInt(tt.QuantityTotal), nullInt(tt.QuantityAvailable), tt.QuantitySold,
        tt.MinPerOrder, tt.MaxPerOrder, nullTime(tt.SalesStart), nullTime(tt.SalesEnd), tt.IsActive))
    if err != nil {
        return err
    }
    tt.ID = id
    return nil
}

func (t *sqlTx) ListTicketTypes(ctx context.Context, eventID uint64) ([]model.TicketType, error) {
    rows, err := t.q.QueryContext(ctx, `SELECT `+ticketTypeCols+` FROM ticket_types WHERE event_id = ? ORDER BY price_cents, id`, eventID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.TicketType
    for rows.Next() {
        tt, err := scanTicketType(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *tt)
    }
    return out, rows.Err()
}

// ReservedQuantity sums the units held by unexpired unpaid reservations.
func (t *sqlTx) ReservedQuantity(ctx context.Context, ticketTypeID uint64, now time.Time) (int, error) {
    var n int
    err := t.q.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(quantity), 0) FROM bookings
         WHERE ticket_type_id = ? AND status = 'pending' AND payment_status = 'unpaid'
           AND reserved_until IS NOT NULL AND reserved_until >= ?`,
        ticketTypeID, now.UTC()).Scan(&n)
    return n, err
}

// DecrementInventory moves qty units from available to sold.  It reports
// false without changing anything when fewer than qty are available.
// Unlimited types only count the sale.
func (t *sqlTx) DecrementInventory(ctx context.Context, ticketTypeID uint64, qty int) (bool, error) {
    return affected(t.q.ExecContext(ctx, `
        UPDATE ticket_types
           SET quantity_available = CASE WHEN quantity_available IS NULL THEN NULL ELSE quantity_available - ? END,
               quantity_sold      = quantity_sold + ?,
               updated_at         = UTC_TIMESTAMP()
         WHERE id = ? AND (quantity_available IS NULL OR quantity_available >= ?)`,
        qty, qty, ticketTypeID, qty))
}

// RestoreInventory moves qty units from sold back to available.
func (t *sqlTx) RestoreInventory(ctx context.Context, ticketTypeID uint64, qty int) error {
    _, err := t.q.ExecContext(ctx, `
        UPDATE ticket_types
           SET quantity_available = CASE WHEN quantity_available IS NULL THEN NULL ELSE quantity_available + ? END,
               quantity_sold      = GREATEST(CAST(quantity_sold AS SIGNED) - ?, 0),
               updated_at         = UTC_TIMESTAMP()
         WHERE id = ?`,
        qty, qty, ticketTypeID)
    return err
}

const partnerCols = `id, user_id, business_name, pending_earnings_cents, total_earnings_cents, created_at`

func scanPartner(s scanner) (*model.Partner, error) {
    var p model.Partner
    if err := s.Scan(&p.ID, &p.UserID, &p.BusinessName, &p.PendingEarningsCents, &p.TotalEarningsCents, &p.CreatedAt); err != nil {
        return nil, notFound(err)
    }
    return &p, nil
}

func (t *sqlTx) GetPartner(ctx context.Context, id uint64) (*model.Partner, error) {
    return scanPartner(t.q.QueryRowContext(ctx, `SELECT `+partnerCols+` FROM partners WHERE id = ?`, id))
}

func (t *sqlTx) GetPartnerByUserID(ctx context.Context, userID uint64) (*model.Partner, error) {
    return scanPartner(t.q.QueryRowContext(ctx, `SELECT `+partnerCols+` FROM partners WHERE user_id = ? LIMIT 1`, userID))
}

// CreditPartner adds a settled booking's share to the partner balances.
func (t *sqlTx) CreditPartner(ctx context.Context, partnerID uint64, amountCents int64) error {
    _, err := t.q.ExecContext(ctx, `
        UPDATE partners
           SET pending_earnings_cents = pending_earnings_cents + ?,
               total_earnings_cents   = total_earnings_cents + ?
         WHERE id = ?`,
        amountCents, amountCents, partnerID)
    return err
}

const promotionCols = `id, event_id, partner_id, amount_cents, payment_id, is_paid, is_active, starts_at, ends_at, paid_at, created_at`

func scanPromotion(s scanner) (*model.EventPromotion, error) {
    var (
        p       model.EventPromotion
        payment sql.NullInt64
        paidAt  sql.NullTime
    )
    err := s.Scan(&p.ID, &p.EventID, &p.PartnerID, &p.AmountCents, &payment, &p.IsPaid, &p.IsActive,
        &p.StartsAt, &p.EndsAt, &paidAt, &p.CreatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    p.PaymentID = uintFrom(payment)
    p.PaidAt = timeFrom(paidAt)
    return &p, nil
}

func (t *sqlTx) GetPromotionForUpdate(ctx context.Context, id uint64) (*model.EventPromotion, error) {
    return scanPromotion(t.q.QueryRowContext(ctx, `SELECT `+promotionCols+` FROM event_promotions WHERE id = ? FOR UPDATE`, id))
}

func (t *sqlTx) GetPromotionByPaymentIDForUpdate(ctx context.Context, paymentID uint64) (*model.EventPromotion, error) {
    return scanPromotion(t.q.QueryRowContext(ctx,
        `SELECT `+promotionCols+` FROM event_promotions WHERE payment_id = ? LIMIT 1 FOR UPDATE`, paymentID))
}

func (t *sqlTx) UpdatePromotion(ctx context.Context, p *model.EventPromotion) error {
    _, err := t.q.ExecContext(ctx, `
        UPDATE event_promotions SET payment_id = ?, is_paid = ?, is_active = ?, paid_at = ? WHERE id = ?`,
        nullUint(p.PaymentID), p.IsPaid, p.IsActive, nullTime(p.PaidAt), p.ID)
    return err
}
