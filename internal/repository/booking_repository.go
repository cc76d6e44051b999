package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/event-ticketing/internal/model"
)

const bookingCols = `id, booking_number, user_id, event_id, ticket_type_id, quantity,
    total_amount_cents, discount_amount_cents, platform_fee_cents, partner_amount_cents,
    promo_code_id, promo_counted, status, payment_status, payment_id, reserved_until,
    confirmed_at, cancelled_at, cancel_reason, checked_in, checked_in_at, created_at, updated_at`

func scanBooking(s scanner) (*model.Booking, error) {
    var (
        b                                     model.Booking
        promo, payment                        sql.NullInt64
        reserved, confirmed, cancelled, check sql.NullTime
        reason                                sql.NullString
    )
    err := s.Scan(&b.ID, &b.BookingNumber, &b.UserID, &b.EventID, &b.TicketTypeID, &b.Quantity,
        &b.TotalAmountCents, &b.DiscountAmountCents, &b.PlatformFeeCents, &b.PartnerAmountCents,
        &promo, &b.PromoCounted, &b.Status, &b.PaymentStatus, &payment, &reserved,
        &confirmed, &cancelled, &reason, &b.CheckedIn, &check, &b.CreatedAt, &b.UpdatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    b.PromoCodeID = uintFrom(promo)
    b.PaymentID = uintFrom(payment)
    b.ReservedUntil = timeFrom(reserved)
    b.ConfirmedAt = timeFrom(confirmed)
    b.CancelledAt = timeFrom(cancelled)
    b.CancelReason = stringFrom(reason)
    b.CheckedInAt = timeFrom(check)
    return &b, nil
}

// CreateBooking inserts b and fills in its ID.  A booking number collision
// surfaces as ErrConflict so the caller can retry with a fresh number.
func (t *sqlTx) CreateBooking(ctx context.Context, b *model.Booking) error {
    const q = `INSERT INTO bookings (booking_number, user_id, event_id, ticket_type_id, quantity,
        total_amount_cents, discount_amount_cents, platform_fee_cents, partner_amount_cents,
        promo_code_id, promo_counted, status, payment_status, payment_id, reserved_until,
        confirmed_at, cancelled_at, cancel_reason, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
    id, err := insertID(t.q.ExecContext(ctx, q,
        b.BookingNumber, b.UserID, b.EventID, b.TicketTypeID, b.Quantity,
        b.TotalAmountCents, b.DiscountAmountCents, b.PlatformFeeCents, b.PartnerAmountCents,
        nullUint(b.PromoCodeID), b.PromoCounted, b.Status, b.PaymentStatus, nullUint(b.PaymentID), nullTime(b.ReservedUntil),
        nullTime(b.ConfirmedAt), nullTime(b.CancelledAt), nullString(b.CancelReason), b.CreatedAt.UTC(), b.UpdatedAt.UTC()))
    if err != nil {
        return err
    }
    b.ID = id
    return nil
}

func (t *sqlTx) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
    return scanBooking(t.q.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = ?`, id))
}

func (t *sqlTx) GetBookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
    return scanBooking(t.q.QueryRowContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = ? FOR UPDATE`, id))
}

func (t *sqlTx) GetBookingByPaymentIDForUpdate(ctx context.Context, paymentID uint64) (*model.Booking, error) {
    return scanBooking(t.q.QueryRowContext(ctx,
        `SELECT `+bookingCols+` FROM bookings WHERE payment_id = ? ORDER BY id LIMIT 1 FOR UPDATE`, paymentID))
}

// FindActiveBooking returns the user's confirmed booking for the event, or
// a pending one whose hold has not lapsed or whose payment is still
// pending.
func (t *sqlTx) FindActiveBooking(ctx context.Context, userID, eventID uint64, now time.Time) (*model.Booking, error) {
    return scanBooking(t.q.QueryRowContext(ctx, `
        SELECT `+bookingCols+` FROM bookings b
         WHERE b.user_id = ? AND b.event_id = ?
           AND (b.status = 'confirmed'
                OR (b.status = 'pending' AND (b.reserved_until IS NULL OR b.reserved_until >= ?))
                OR (b.status = 'pending' AND EXISTS (
                        SELECT 1 FROM payments p WHERE p.id = b.payment_id AND p.status = 'pending')))
         ORDER BY b.id LIMIT 1`,
        userID, eventID, now.UTC()))
}

// ListBookingsByUser returns the user's bookings, newest first.
func (t *sqlTx) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
    rows, err := t.q.QueryContext(ctx, `SELECT `+bookingCols+` FROM bookings WHERE user_id = ? ORDER BY id DESC`, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Booking
    for rows.Next() {
        b, err := scanBooking(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *b)
    }
    return out, rows.Err()
}

func (t *sqlTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
    res, err := t.q.ExecContext(ctx, `
        UPDATE bookings
           SET total_amount_cents = ?, discount_amount_cents = ?, platform_fee_cents = ?, partner_amount_cents = ?,
               promo_code_id = ?, promo_counted = ?, status = ?, payment_status = ?, payment_id = ?,
               reserved_until = ?, confirmed_at = ?, cancelled_at = ?, cancel_reason = ?,
               checked_in = ?, checked_in_at = ?, updated_at = ?
         WHERE id = ?`,
        b.TotalAmountCents, b.DiscountAmountCents, b.PlatformFeeCents, b.PartnerAmountCents,
        nullUint(b.PromoCodeID), b.PromoCounted, b.Status, b.PaymentStatus, nullUint(b.PaymentID),
        nullTime(b.ReservedUntil), nullTime(b.ConfirmedAt), nullTime(b.CancelledAt), nullString(b.CancelReason),
        b.CheckedIn, nullTime(b.CheckedInAt), b.UpdatedAt.UTC(), b.ID)
    if err != nil {
        return err
    }
    if n, err := res.RowsAffected(); err == nil && n == 0 {
        // MySQL reports zero rows when nothing changed, so confirm existence.
        var one int
        if err := t.q.QueryRowContext(ctx, `SELECT 1 FROM bookings WHERE id = ?`, b.ID).Scan(&one); err != nil {
            return notFound(err)
        }
    }
    return nil
}

const expiredHoldCond = `status = 'pending' AND payment_status IN ('unpaid','failed')
    AND reserved_until IS NOT NULL AND reserved_until < ?`

// ListExpiredHolds returns up to limit bookings whose hold lapsed unpaid.
func (t *sqlTx) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
    rows, err := t.q.QueryContext(ctx,
        `SELECT id FROM bookings WHERE `+expiredHoldCond+` ORDER BY id LIMIT ?`, now.UTC(), limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var ids []uint64
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// ExpireHold cancels the booking only if it is still an expired hold, so a
// payment that landed in the meantime wins.
func (t *sqlTx) ExpireHold(ctx context.Context, bookingID uint64, now time.Time) (bool, error) {
    return affected(t.q.ExecContext(ctx, `
        UPDATE bookings
           SET status = 'cancelled', cancelled_at = ?, cancel_reason = ?, updated_at = ?
         WHERE id = ? AND `+expiredHoldCond,
        now.UTC(), model.CancelReasonExpired, now.UTC(), bookingID, now.UTC()))
}

const ticketCols = `id, booking_id, ticket_type_id, ticket_number, qr_payload, qr_path, is_valid, is_scanned, scanned_at, created_at`

// CreateTickets inserts each ticket and fills in its ID.
func (t *sqlTx) CreateTickets(ctx context.Context, tickets []model.Ticket) error {
    const q = `INSERT INTO tickets (booking_id, ticket_type_id, ticket_number, qr_payload, qr_path, is_valid, created_at)
        VALUES (?,?,?,?,?,?,?)`
    for i := range tickets {
        tk := &tickets[i]
        id, err := insertID(t.q.ExecContext(ctx, q,
            tk.BookingID, tk.TicketTypeID, tk.TicketNumber, tk.QRPayload, nullString(tk.QRPath), tk.IsValid, tk.CreatedAt.UTC()))
        if err != nil {
            return err
        }
        tk.ID = id
    }
    return nil
}

func (t *sqlTx) CountTickets(ctx context.Context, bookingID uint64) (int, error) {
    var n int
    err := t.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE booking_id = ?`, bookingID).Scan(&n)
    return n, err
}

func (t *sqlTx) ListTickets(ctx context.Context, bookingID uint64) ([]model.Ticket, error) {
    rows, err := t.q.QueryContext(ctx, `SELECT `+ticketCols+` FROM tickets WHERE booking_id = ? ORDER BY id`, bookingID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []model.Ticket
    for rows.Next() {
        var (
            tk      model.Ticket
            path    sql.NullString
            scanned sql.NullTime
        )
        if err := rows.Scan(&tk.ID, &tk.BookingID, &tk.TicketTypeID, &tk.TicketNumber, &tk.QRPayload, &path,
            &tk.IsValid, &tk.IsScanned, &scanned, &tk.CreatedAt); err != nil {
            return nil, err
        }
        tk.QRPath = stringFrom(path)
        tk.ScannedAt = timeFrom(scanned)
        out = append(out, tk)
    }
    return out, rows.Err()
}

func (t *sqlTx) InvalidateTickets(ctx context.Context, bookingID uint64) error {
    _, err := t.q.ExecContext(ctx, `UPDATE tickets SET is_valid = FALSE WHERE booking_id = ?`, bookingID)
    return err
}

func (t *sqlTx) SetTicketQRPath(ctx context.Context, ticketID uint64, path string) error {
    _, err := t.q.ExecContext(ctx, `UPDATE tickets SET qr_path = ? WHERE id = ?`, strings.TrimSpace(path), ticketID)
    return err
}
