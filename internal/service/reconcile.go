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
	"github.com/iliyamo/event-ticketing/internal/mpesa"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Gateway is the mobile-money provider.  *mpesa.Client satisfies it.
type Gateway interface {
	Initiate(ctx context.Context, req mpesa.InitiateRequest) (*mpesa.InitiateResult, error)
	Query(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

const (
	paymentMethod   = "mpesa"
	paymentProvider = "safaricom"
)

// Payments is the reconciliation engine.  It starts STK pushes and moves
// payments from pending to completed or failed from either the provider
// callback or a client status poll.  Every transition is a conditional
// update executed first in its transaction; only the writer that changes
// the row goes on to fulfil or notify, so duplicate and concurrent results
// are no-ops.
type Payments struct {
	store     repository.Store
	gateway   Gateway
	cfg       config.BookingConfig
	clock     clock.Clock
	fulfiller *Fulfiller
	notifier  Notifier
}

// NewPayments wires the engine.  notifier may be nil.
func NewPayments(store repository.Store, gw Gateway, cfg config.BookingConfig, clk clock.Clock, f *Fulfiller, notifier Notifier) *Payments {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &Payments{store: store, gateway: gw, cfg: cfg, clock: clk, fulfiller: f, notifier: notifier}
}

// PaymentView is what a client sees of a payment.
type PaymentView struct {
	Payment       model.Payment
	BookingID     uint64
	BookingStatus string
	Message       string
}

// InitiateTicketPayment starts an STK push for the user's pending booking.
// The Payment row is written before the provider is called; a provider
// failure marks it failed and leaves the booking pending and unpaid so
// the user can simply retry.
func (s *Payments) InitiateTicketPayment(ctx context.Context, userID, bookingID uint64, phone string) (*model.Payment, error) {
	msisdn, err := s.phone(ctx, userID, phone)
	if err != nil {
		return nil, err
	}
	var (
		p   *model.Payment
		ref string
	)
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if b.UserID != userID {
			return ErrForbidden
		}
		switch b.Status {
		case model.BookingCancelled:
			if b.CancelReason != nil && *b.CancelReason == model.CancelReasonExpired {
				return ErrReservationExpired
			}
			return ErrBookingCancelled
		case model.BookingConfirmed:
			return ErrBookingConfirmed
		}
		if b.PaymentID != nil {
			prev, err := tx.GetPayment(ctx, *b.PaymentID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if prev != nil && prev.Status == model.PaymentStatusPending {
				return ErrPaymentInProgress
			}
		}
		if b.ReservedUntil == nil || b.ReservedUntil.Before(now) {
			return ErrReservationExpired
		}
		if b.TotalAmountCents <= 0 {
			return ErrZeroAmount
		}
		if b.PaymentStatus == model.PaymentFailed {
			// a failed attempt released the hold; take it again if stock allows
			tt, err := tx.GetTicketTypeForUpdate(ctx, b.TicketTypeID)
			if err != nil {
				return err
			}
			avail, err := Available(ctx, tx, tt, now)
			if err != nil {
				return err
			}
			if !avail.Allows(b.Quantity) {
				return ErrInsufficientInventory
			}
			b.PaymentStatus = model.PaymentUnpaid
		}

		p = &model.Payment{
			TransactionID: TransactionID(),
			UserID:        userID,
			PaymentType:   model.PaymentTypeTicket,
			AmountCents:   b.TotalAmountCents,
			Method:        paymentMethod,
			Provider:      paymentProvider,
			Phone:         msisdn,
			Status:        model.PaymentStatusPending,
			CreatedAt:     now,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		id := p.ID
		b.PaymentID = &id
		b.UpdatedAt = now
		ref = b.BookingNumber
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return s.push(ctx, p, ref, "Event tickets")
}

// InitiatePromotionPayment starts an STK push paying for a partner's
// featured placement.
func (s *Payments) InitiatePromotionPayment(ctx context.Context, partnerUserID, promotionID uint64, phone string) (*model.Payment, error) {
	msisdn, err := s.phone(ctx, partnerUserID, phone)
	if err != nil {
		return nil, err
	}
	var p *model.Payment
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		partner, err := tx.GetPartnerByUserID(ctx, partnerUserID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrForbidden
		}
		if err != nil {
			return err
		}
		promo, err := tx.GetPromotionForUpdate(ctx, promotionID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPromotionNotFound
		}
		if err != nil {
			return err
		}
		if promo.PartnerID != partner.ID {
			return ErrForbidden
		}
		if promo.IsPaid {
			return ErrPromotionPaid
		}
		if promo.PaymentID != nil {
			prev, err := tx.GetPayment(ctx, *promo.PaymentID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			if prev != nil && prev.Status == model.PaymentStatusPending {
				return ErrPaymentInProgress
			}
		}
		p = &model.Payment{
			TransactionID: TransactionID(),
			UserID:        partnerUserID,
			PaymentType:   model.PaymentTypePromotion,
			AmountCents:   promo.AmountCents,
			Method:        paymentMethod,
			Provider:      paymentProvider,
			Phone:         msisdn,
			Status:        model.PaymentStatusPending,
			CreatedAt:     now,
		}
		if err := tx.CreatePayment(ctx, p); err != nil {
			return err
		}
		id := p.ID
		promo.PaymentID = &id
		return tx.UpdatePromotion(ctx, promo)
	})
	if err != nil {
		return nil, err
	}
	return s.push(ctx, p, fmt.Sprintf("PROMO%d", promotionID), "Promotion")
}

// phone picks the explicit number or falls back to the user's profile.
func (s *Payments) phone(ctx context.Context, userID uint64, phone string) (string, error) {
	if phone == "" {
		err := s.store.WithTx(ctx, func(tx repository.Tx) error {
			u, err := tx.GetUser(ctx, userID)
			if err != nil {
				return err
			}
			phone = u.Phone
			return nil
		})
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
	}
	msisdn, err := mpesa.NormalizePhone(phone)
	if err != nil {
		return "", ErrInvalidPhone
	}
	return msisdn, nil
}

// push calls the gateway for a freshly created pending payment.
func (s *Payments) push(ctx context.Context, p *model.Payment, reference, desc string) (*model.Payment, error) {
	res, err := s.gateway.Initiate(ctx, mpesa.InitiateRequest{
		Phone:       p.Phone,
		Amount:      gatewayAmount(p.AmountCents),
		Reference:   reference,
		Description: desc,
	})
	if err != nil {
		category := mpesa.CategoryUnknown
		msg := err.Error()
		if ie, ok := mpesa.IsInitiationError(err); ok {
			msg = failureMessage(mpesa.ResultCode(ie.Code), ie.Error())
			log.Printf("payment: initiate failed payment_id=%d txn=%s kind=%s raw=%s", p.ID, p.TransactionID, ie.Kind, string(ie.Raw))
			category = mpesa.Category(mpesa.ResultCode(ie.Code), ie.Message)
			if ie.Kind == mpesa.ErrKindInvalidPhone {
				category = mpesa.CategoryInvalidNumber
			}
		} else {
			log.Printf("payment: initiate failed payment_id=%d txn=%s: %v", p.ID, p.TransactionID, err)
		}
		now := s.clock.Now()
		ferr := s.store.WithTx(ctx, func(tx repository.Tx) error {
			_, err := tx.FailPayment(ctx, p.ID, msg, now)
			return err
		})
		if ferr != nil {
			log.Printf("payment: mark failed payment_id=%d: %v", p.ID, ferr)
		}
		e := *ErrPaymentCouldNotComplete
		e.Message = mpesa.CategoryMessage(category)
		return nil, &e
	}

	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.SetPaymentCorrelation(ctx, p.ID, res.CheckoutRequestID, res.MerchantRequestID)
	})
	if err != nil {
		return nil, err
	}
	checkout, merchant := res.CheckoutRequestID, res.MerchantRequestID
	p.ProviderCorrelationID = &checkout
	p.MerchantRequestID = &merchant
	log.Printf("payment: initiated payment_id=%d txn=%s checkout=%s amount=%d", p.ID, p.TransactionID, checkout, p.AmountCents)
	return p, nil
}

// HandleCallback applies a provider callback.  Unknown correlation ids
// are logged and ignored.
func (s *Payments) HandleCallback(ctx context.Context, cb mpesa.Callback) error {
	stk := cb.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return fmt.Errorf("callback without CheckoutRequestID")
	}
	var p *model.Payment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetPaymentByCorrelationID(ctx, stk.CheckoutRequestID)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("payment: callback for unknown checkout=%s code=%s", stk.CheckoutRequestID, stk.ResultCode)
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("payment: callback payment_id=%d checkout=%s code=%s desc=%q", p.ID, stk.CheckoutRequestID, stk.ResultCode, stk.ResultDesc)
	return s.apply(ctx, p, stk.ResultCode, stk.ResultDesc, stk.Receipt(), s.cfg.CallbackGrace)
}

// CheckStatus reports a payment to its owner, querying the provider when
// the payment is still pending and old enough.
func (s *Payments) CheckStatus(ctx context.Context, userID, paymentID uint64) (*PaymentView, error) {
	p, err := s.load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	now := s.clock.Now()
	if p.Status == model.PaymentStatusPending && p.ProviderCorrelationID != nil && now.Sub(p.CreatedAt) >= s.cfg.PollMinAge {
		res, err := s.gateway.Query(ctx, *p.ProviderCorrelationID)
		switch {
		case err != nil:
			log.Printf("payment: query payment_id=%d checkout=%s failed: %v", p.ID, *p.ProviderCorrelationID, err)
		case res.Pending:
		default:
			log.Printf("payment: poll payment_id=%d code=%s desc=%q", p.ID, res.ResultCode, res.ResultDesc)
			if err := s.apply(ctx, p, res.ResultCode, res.ResultDesc, "", s.cfg.PollGrace); err != nil {
				return nil, err
			}
			if p, err = s.load(ctx, paymentID); err != nil {
				return nil, err
			}
		}
	}
	return s.view(ctx, p)
}

func (s *Payments) load(ctx context.Context, id uint64) (*model.Payment, error) {
	var p *model.Payment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		p, err = tx.GetPayment(ctx, id)
		return err
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

func (s *Payments) view(ctx context.Context, p *model.Payment) (*PaymentView, error) {
	v := &PaymentView{Payment: *p}
	if p.PaymentType == model.PaymentTypeTicket {
		err := s.store.WithTx(ctx, func(tx repository.Tx) error {
			b, err := tx.GetBookingByPaymentIDForUpdate(ctx, p.ID)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			v.BookingID, v.BookingStatus = b.ID, b.Status
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if p.Status == model.PaymentStatusFailed {
		msg := ""
		if p.ErrorMessage != nil {
			msg = *p.ErrorMessage
		}
		v.Message = mpesa.CategoryMessage(failureCategory(msg))
	}
	return v, nil
}

// apply interprets a provider result for p.  A 2004 result younger than
// grace, measured from the payment's creation, is left pending.
func (s *Payments) apply(ctx context.Context, p *model.Payment, code mpesa.ResultCode, desc, receipt string, grace time.Duration) error {
	switch mpesa.Classify(code) {
	case mpesa.OutcomeSuccess:
		return s.complete(ctx, p.ID, receipt)
	case mpesa.OutcomeAmbiguous:
		if age := s.clock.Now().Sub(p.CreatedAt); age < grace {
			log.Printf("payment: ambiguous result held pending payment_id=%d age=%s", p.ID, age.Truncate(time.Second))
			return nil
		}
		return s.fail(ctx, p.ID, code, desc)
	case mpesa.OutcomeFailed:
		return s.fail(ctx, p.ID, code, desc)
	}
	return nil
}

// complete marks the payment completed and settles what it paid for.
func (s *Payments) complete(ctx context.Context, paymentID uint64, receipt string) error {
	var (
		fulfilled *Fulfillment
		promoted  *model.EventPromotion
		payment   *model.Payment
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		ok, err := tx.CompletePayment(ctx, paymentID, receipt, now)
		if err != nil {
			return err
		}
		if !ok {
			if prev, err := tx.GetPayment(ctx, paymentID); err == nil && prev.Status == model.PaymentStatusFailed {
				log.Printf("payment: success for failed payment_id=%d txn=%s receipt=%s ignored, refund required", prev.ID, prev.TransactionID, receipt)
			}
			return nil
		}
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = p

		if p.PaymentType == model.PaymentTypePromotion {
			promo, err := tx.GetPromotionByPaymentIDForUpdate(ctx, p.ID)
			if errors.Is(err, repository.ErrNotFound) {
				log.Printf("payment: completed promotion payment_id=%d has no promotion", p.ID)
				return nil
			}
			if err != nil {
				return err
			}
			promo.IsPaid, promo.IsActive, promo.PaidAt = true, true, &now
			promoted = promo
			return tx.UpdatePromotion(ctx, promo)
		}

		b, err := tx.GetBookingByPaymentIDForUpdate(ctx, p.ID)
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("payment: completed payment_id=%d txn=%s has no booking, refund required", p.ID, p.TransactionID)
			return nil
		}
		if err != nil {
			return err
		}
		issued, err := tx.CountTickets(ctx, b.ID)
		if err != nil {
			return err
		}
		if issued > 0 {
			if b.Status != model.BookingConfirmed || b.PaymentStatus != model.PaymentPaid {
				b.Status, b.PaymentStatus = model.BookingConfirmed, model.PaymentPaid
				b.ReservedUntil = nil
				if b.ConfirmedAt == nil {
					b.ConfirmedAt = &now
				}
				return tx.UpdateBooking(ctx, b)
			}
			return nil
		}
		fulfilled, err = s.fulfiller.Fulfill(ctx, tx, b, p)
		return err
	})
	if err != nil {
		return err
	}
	if payment == nil {
		log.Printf("payment: completion for payment_id=%d already applied", paymentID)
		return nil
	}
	log.Printf("payment: completed payment_id=%d txn=%s receipt=%s", payment.ID, payment.TransactionID, receipt)
	if fulfilled != nil {
		s.fulfiller.After(ctx, fulfilled)
	}
	if promoted != nil {
		s.notifier.Submit(notify.Message{
			Kind: notify.KindPromotionActivated, PartnerID: promoted.PartnerID, EventID: promoted.EventID,
			PaymentID: payment.ID, TransactionID: payment.TransactionID, ReceiptNumber: receipt,
			AmountCents: payment.AmountCents, OccurredAt: s.clock.Now(),
		})
	}
	return nil
}

// fail marks a pending payment failed.  A ticket booking keeps its
// pending status with payment_status failed until it is retried or
// reclaimed.
func (s *Payments) fail(ctx context.Context, paymentID uint64, code mpesa.ResultCode, desc string) error {
	var (
		payment *model.Payment
		booking *model.Booking
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		now := s.clock.Now()
		ok, err := tx.FailPayment(ctx, paymentID, failureMessage(code, desc), now)
		if err != nil || !ok {
			return err
		}
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		payment = p
		if p.PaymentType != model.PaymentTypeTicket {
			return nil
		}
		b, err := tx.GetBookingByPaymentIDForUpdate(ctx, p.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		booking = b
		if b.Status != model.BookingPending || b.PaymentStatus == model.PaymentFailed {
			return nil
		}
		b.PaymentStatus = model.PaymentFailed
		b.UpdatedAt = now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil || payment == nil {
		return err
	}
	category := mpesa.Category(code, desc)
	log.Printf("payment: failed payment_id=%d txn=%s code=%s category=%s desc=%q", payment.ID, payment.TransactionID, code, category, desc)
	m := notify.Message{
		Kind: notify.KindPaymentFailed, UserID: payment.UserID, PaymentID: payment.ID,
		TransactionID: payment.TransactionID, AmountCents: payment.AmountCents,
		Reason: category, OccurredAt: s.clock.Now(),
	}
	if booking != nil {
		m.BookingID, m.BookingNumber, m.EventID = booking.ID, booking.BookingNumber, booking.EventID
	}
	s.notifier.Submit(m)
	return nil
}

// failureMessage is the error_message stored on a failed payment: the
// provider code in brackets followed by its description.
func failureMessage(code mpesa.ResultCode, desc string) string {
	if code == "" {
		return desc
	}
	return "[" + string(code) + "] " + desc
}

// failureCategory recovers the user-facing category from a stored
// error_message.
func failureCategory(msg string) string {
	if strings.HasPrefix(msg, "[") {
		if end := strings.Index(msg, "] "); end > 0 {
			return mpesa.Category(mpesa.ResultCode(msg[1:end]), msg[end+2:])
		}
	}
	return mpesa.Category("", msg)
}
