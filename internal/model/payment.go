package model

import "time"

// Payment statuses.  pending is the only non-terminal state.
const (
    PaymentStatusPending   = "pending"
    PaymentStatusCompleted = "completed"
    PaymentStatusFailed    = "failed"
    PaymentStatusRefunded  = "refunded"
)

// Payment types determine what a completed payment settles.
const (
    PaymentTypeTicket    = "ticket"
    PaymentTypePromotion = "promotion"
)

// Payment records one mobile-money collection attempt.  Bookings and
// promotions point at their payment through payment_id; the payment
// itself does not reference its owner.
//
// Fields:
//  ID                    – primary key identifier.
//  TransactionID         – unique internal reference (TXN-<uuid>).
//  UserID                – payer.
//  PaymentType           – ticket or promotion.
//  AmountCents           – amount requested.
//  Method                – collection method (mpesa).
//  Provider              – provider name (safaricom).
//  Phone                 – normalised MSISDN charged.
//  Status                – pending, completed, failed or refunded.
//  ProviderCorrelationID – CheckoutRequestID assigned at initiation.
//  MerchantRequestID     – provider's merchant request id.
//  ReceiptNumber         – provider receipt once completed.
//  ErrorMessage          – provider description once failed.
type Payment struct {
    ID                    uint64     // payments.id
    TransactionID         string     // payments.transaction_id
    UserID                uint64     // payments.user_id
    PaymentType           string     // payments.payment_type
    AmountCents           int64      // payments.amount_cents
    Method                string     // payments.method
    Provider              string     // payments.provider
    Phone                 string     // payments.phone
    Status                string     // payments.status
    ProviderCorrelationID *string    // payments.provider_correlation_id (nullable)
    MerchantRequestID     *string    // payments.merchant_request_id (nullable)
    ReceiptNumber         *string    // payments.receipt_number (nullable)
    ErrorMessage          *string    // payments.error_message (nullable)
    CreatedAt             time.Time  // payments.created_at
    CompletedAt           *time.Time // payments.completed_at (nullable)
    FailedAt              *time.Time // payments.failed_at (nullable)
}

// Terminal reports whether the payment reached a final state.
func (p *Payment) Terminal() bool { return p.Status != PaymentStatusPending }

// Promo discount types.
const (
    DiscountPercentage = "percentage"
    DiscountFixed      = "fixed"
)

// PromoCode grants a discount on bookings for one event.
// DiscountValue is expressed in basis points for percentage codes
// (1000 = 10%) and in cents for fixed codes.  A zero MaxUses or
// MaxUsesPerUser means no cap.
type PromoCode struct {
    ID             uint64     // promo_codes.id
    EventID        uint64     // promo_codes.event_id
    Code           string     // promo_codes.code
    DiscountType   string     // promo_codes.discount_type
    DiscountValue  int64      // promo_codes.discount_value
    MaxUses        int        // promo_codes.max_uses
    MaxUsesPerUser int        // promo_codes.max_uses_per_user
    CurrentUses    int        // promo_codes.current_uses
    ValidFrom      *time.Time // promo_codes.valid_from (nullable)
    ValidUntil     *time.Time // promo_codes.valid_until (nullable)
    IsActive       bool       // promo_codes.is_active
    CreatedAt      time.Time  // promo_codes.created_at
}
