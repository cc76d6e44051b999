package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/iliyamo/event-ticketing/internal/model"
)

const paymentCols = `id, transaction_id, user_id, payment_type, amount_cents, method, provider, phone, status,
    provider_correlation_id, merchant_request_id, receipt_number, error_message, created_at, completed_at, failed_at`

func scanPayment(s scanner) (*model.Payment, error) {
    var (
        p                                   model.Payment
        correlation, merchant, receipt, msg sql.NullString
        completed, failed                   sql.NullTime
    )
    err := s.Scan(&p.ID, &p.TransactionID, &p.UserID, &p.PaymentType, &p.AmountCents, &p.Method, &p.Provider,
        &p.Phone, &p.Status, &correlation, &merchant, &receipt, &msg, &p.CreatedAt, &completed, &failed)
    if err != nil {
        return nil, notFound(err)
    }
    p.ProviderCorrelationID = stringFrom(correlation)
    p.MerchantRequestID = stringFrom(merchant)
    p.ReceiptNumber = stringFrom(receipt)
    p.ErrorMessage = stringFrom(msg)
    p.CompletedAt = timeFrom(completed)
    p.FailedAt = timeFrom(failed)
    return &p, nil
}

// CreatePayment inserts p and fills in its ID.
func (t *sqlTx) CreatePayment(ctx context.Context, p *model.Payment) error {
    id, err := insertID(t.q.ExecContext(ctx, `
        INSERT INTO payments (transaction_id, user_id, payment_type, amount_cents, method, provider, phone, status, created_at)
        VALUES (?,?,?,?,?,?,?,?,?)`,
        p.TransactionID, p.UserID, p.PaymentType, p.AmountCents, p.Method, p.Provider, p.Phone, p.Status, p.CreatedAt.UTC()))
    if err != nil {
        return err
    }
    p.ID = id
    return nil
}

// GetPayment locks the payment row; status transitions for one payment
// are serialized through it.
func (t *sqlTx) GetPayment(ctx context.Context, id uint64) (*model.Payment, error) {
    return scanPayment(t.q.QueryRowContext(ctx, `SELECT `+paymentCols+` FROM payments WHERE id = ? FOR UPDATE`, id))
}

func (t *sqlTx) GetPaymentByCorrelationID(ctx context.Context, correlationID string) (*model.Payment, error) {
    return scanPayment(t.q.QueryRowContext(ctx,
        `SELECT `+paymentCols+` FROM payments WHERE provider_correlation_id = ? LIMIT 1 FOR UPDATE`, correlationID))
}

func (t *sqlTx) SetPaymentCorrelation(ctx context.Context, id uint64, checkoutRequestID, merchantRequestID string) error {
    _, err := t.q.ExecContext(ctx,
        `UPDATE payments SET provider_correlation_id = ?, merchant_request_id = ? WHERE id = ?`,
        checkoutRequestID, merchantRequestID, id)
    return err
}

// CompletePayment moves a pending payment to completed.  It reports false
// for any payment that already reached a terminal state.
func (t *sqlTx) CompletePayment(ctx context.Context, id uint64, receipt string, now time.Time) (bool, error) {
    var r any
    if receipt != "" {
        r = receipt
    }
    return affected(t.q.ExecContext(ctx, `
        UPDATE payments
           SET status = 'completed', completed_at = ?, receipt_number = COALESCE(?, receipt_number)
         WHERE id = ? AND status = 'pending'`,
        now.UTC(), r, id))
}

// FailPayment moves a pending payment to failed.
func (t *sqlTx) FailPayment(ctx context.Context, id uint64, message string, now time.Time) (bool, error) {
    return affected(t.q.ExecContext(ctx, `
        UPDATE payments SET status = 'failed', failed_at = ?, error_message = ?
         WHERE id = ? AND status = 'pending'`,
        now.UTC(), message, id))
}

const promoCols = `id, event_id, code, discount_type, discount_value, max_uses, max_uses_per_user, current_uses,
    valid_from, valid_until, is_active, created_at`

// GetPromoCodeForUpdate locks the event's promo code matching code
// case-insensitively.
func (t *sqlTx) GetPromoCodeForUpdate(ctx context.Context, eventID uint64, code string) (*model.PromoCode, error) {
    var (
        p           model.PromoCode
        from, until sql.NullTime
    )
    err := t.q.QueryRowContext(ctx, `SELECT `+promoCols+` FROM promo_codes WHERE event_id = ? AND code = ? LIMIT 1 FOR UPDATE`,
        eventID, strings.ToUpper(strings.TrimSpace(code))).Scan(
        &p.ID, &p.EventID, &p.Code, &p.DiscountType, &p.DiscountValue, &p.MaxUses, &p.MaxUsesPerUser,
        &p.CurrentUses, &from, &until, &p.IsActive, &p.CreatedAt)
    if err != nil {
        return nil, notFound(err)
    }
    p.ValidFrom = timeFrom(from)
    p.ValidUntil = timeFrom(until)
    return &p, nil
}

// CountPromoUsesByUser counts the user's bookings whose use of the code is
// currently counted.
func (t *sqlTx) CountPromoUsesByUser(ctx context.Context, promoCodeID, userID uint64) (int, error) {
    var n int
    err := t.q.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM bookings WHERE promo_code_id = ? AND user_id = ? AND promo_counted = TRUE`,
        promoCodeID, userID).Scan(&n)
    return n, err
}

func (t *sqlTx) IncrementPromoUses(ctx context.Context, promoCodeID uint64) error {
    _, err := t.q.ExecContext(ctx, `UPDATE promo_codes SET current_uses = current_uses + 1 WHERE id = ?`, promoCodeID)
    return err
}

// DecrementPromoUses releases one use, never going below zero.
func (t *sqlTx) DecrementPromoUses(ctx context.Context, promoCodeID uint64) error {
    _, err := t.q.ExecContext(ctx,
        `UPDATE promo_codes SET current_uses = current_uses - 1 WHERE id = ? AND current_uses > 0`, promoCodeID)
    return err
}
