package service

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/mpesa"
	"github.com/iliyamo/event-ticketing/internal/notify"
)

const successDesc = "The service request is processed successfully."

func TestInitiateTicketPayment(t *testing.T) {
	f := newFixture(t, 10, 45050)
	res := f.book(f.userID, 2, "")

	p := f.pay(f.userID, res.Booking.ID)
	if p.Status != model.PaymentStatusPending || p.AmountCents != 90100 || p.Phone != "254712345678" {
		t.Fatalf("payment = %+v", p)
	}
	if !strings.HasPrefix(p.TransactionID, "TXN-") {
		t.Fatalf("transaction id %q", p.TransactionID)
	}
	if p.ProviderCorrelationID == nil || *p.ProviderCorrelationID != "ws_CO_1" {
		t.Fatalf("correlation id = %v", p.ProviderCorrelationID)
	}
	push := f.gateway.pushes[0]
	if push.Amount != 901 || push.Reference != res.Booking.BookingNumber {
		t.Fatalf("push = %+v", push)
	}
	if b := f.booking(res.Booking.ID); b.PaymentID == nil || *b.PaymentID != p.ID {
		t.Fatalf("booking payment_id = %v, want %d", b.PaymentID, p.ID)
	}

	// a second attempt while the first is pending is refused
	_, err := f.payments.InitiateTicketPayment(f.ctx, f.userID, res.Booking.ID, "")
	wantErr(t, err, ErrPaymentInProgress)
}

func TestInitiateTicketPaymentRejections(t *testing.T) {
	f := newFixture(t, 10, 1000)
	res := f.book(f.userID, 1, "")
	other := f.addAttendee("other@example.com")

	_, err := f.payments.InitiateTicketPayment(f.ctx, other, res.Booking.ID, "")
	wantErr(t, err, ErrForbidden)
	_, err = f.payments.InitiateTicketPayment(f.ctx, f.userID, 9999, "")
	wantErr(t, err, ErrBookingNotFound)
	_, err = f.payments.InitiateTicketPayment(f.ctx, f.userID, res.Booking.ID, "12345")
	wantErr(t, err, ErrInvalidPhone)

	f.clock.Advance(6 * time.Minute)
	_, err = f.payments.InitiateTicketPayment(f.ctx, f.userID, res.Booking.ID, "")
	wantErr(t, err, ErrReservationExpired)
	if _, err := f.reclaimer.SweepNow(f.ctx); err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	_, err = f.payments.InitiateTicketPayment(f.ctx, f.userID, res.Booking.ID, "")
	wantErr(t, err, ErrReservationExpired)
	if len(f.gateway.pushes) != 0 {
		t.Fatalf("gateway called %d times", len(f.gateway.pushes))
	}
}

func TestGatewayFailureLeavesBookingRetriable(t *testing.T) {
	f := newFixture(t, 10, 1000)
	res := f.book(f.userID, 1, "")
	f.gateway.failInitiate(&mpesa.InitiationError{Kind: mpesa.ErrKindNetwork, Err: errors.New("dial tcp: i/o timeout")})

	_, err := f.payments.InitiateTicketPayment(f.ctx, f.userID, res.Booking.ID, "0712345678")
	wantErr(t, err, ErrPaymentCouldNotComplete)
	payments := f.store.Payments()
	if len(payments) != 1 || payments[0].Status != model.PaymentStatusFailed || payments[0].FailedAt == nil {
		t.Fatalf("payments = %+v", payments)
	}
	b := f.booking(res.Booking.ID)
	if b.Status != model.BookingPending || b.PaymentStatus != model.PaymentUnpaid {
		t.Fatalf("booking = %s/%s, want pending/unpaid", b.Status, b.PaymentStatus)
	}

	f.gateway.failInitiate(nil)
	p := f.pay(f.userID, res.Booking.ID)
	if p.ID == payments[0].ID {
		t.Fatal("retry must create a new payment")
	}
	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "QAB1")
	if got := f.booking(res.Booking.ID); got.Status != model.BookingConfirmed || *got.PaymentID != p.ID {
		t.Fatalf("booking after retry = %s payment_id=%v", got.Status, got.PaymentID)
	}
}

func TestSuccessfulCallbackFulfills(t *testing.T) {
	f := newFixture(t, 10, 50000)
	f.store.AddPromoCode(model.PromoCode{EventID: f.eventID, Code: "TEN", DiscountType: model.DiscountPercentage, DiscountValue: 1000, IsActive: true})
	res := f.book(f.userID, 1, "TEN")
	p := f.pay(f.userID, res.Booking.ID)

	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "QKL7Y2")

	got := f.payment(p.ID)
	if got.Status != model.PaymentStatusCompleted || got.ReceiptNumber == nil || *got.ReceiptNumber != "QKL7Y2" || got.CompletedAt == nil {
		t.Fatalf("payment = %+v", got)
	}
	b := f.booking(res.Booking.ID)
	if b.Status != model.BookingConfirmed || b.PaymentStatus != model.PaymentPaid || b.ReservedUntil != nil || b.ConfirmedAt == nil {
		t.Fatalf("booking = %+v", b)
	}
	tickets := f.tickets(b.ID)
	if len(tickets) != 1 || !ticketNumberRe.MatchString(tickets[0].TicketNumber) || !tickets[0].IsValid {
		t.Fatalf("tickets = %+v", tickets)
	}
	if tickets[0].QRPath == nil {
		t.Fatal("qr path not recorded")
	}
	if partner := f.partner(); partner.PendingEarningsCents != 41850 || partner.TotalEarningsCents != 41850 {
		t.Fatalf("partner earnings = %+v", partner)
	}
	if e := f.event(); e.RevenueCents != 45000 || e.AttendeeCount != 1 {
		t.Fatalf("event = %+v", e)
	}
	if promo, _ := f.store.PromoCode(*b.PromoCodeID); promo.CurrentUses != 1 {
		t.Fatalf("promo uses = %d, want 1", promo.CurrentUses)
	}
	for _, k := range []notify.Kind{notify.KindPaymentConfirmation, notify.KindNewBooking, notify.KindPaymentCompleted} {
		if f.notifier.count(k) != 1 {
			t.Fatalf("notifications = %v, want one %s", f.notifier.kinds(), k)
		}
	}
	f.assertCapacity(f.ticketTypeID)
}

func TestReconciliationIsIdempotent(t *testing.T) {
	f := newFixture(t, 10, 1000)
	res := f.book(f.userID, 3, "")
	p := f.pay(f.userID, res.Booking.ID)
	checkout := *p.ProviderCorrelationID

	for i := 0; i < 3; i++ {
		f.callback(checkout, mpesa.ResultSuccess, successDesc, "R1")
	}
	// a late failure for a completed payment changes nothing
	f.callback(checkout, "1032", "Request cancelled by user", "")

	if n := f.store.CountAllTickets(); n != 3 {
		t.Fatalf("tickets = %d, want 3", n)
	}
	if got := f.payment(p.ID).Status; got != model.PaymentStatusCompleted {
		t.Fatalf("payment status = %s", got)
	}
	if partner := f.partner(); partner.TotalEarningsCents != 2790 {
		t.Fatalf("partner credited %d, want 2790 once", partner.TotalEarningsCents)
	}
	if tt := f.ticketType(f.ticketTypeID); tt.QuantitySold != 3 {
		t.Fatalf("sold = %d, want 3", tt.QuantitySold)
	}
	if f.notifier.count(notify.KindPaymentConfirmation) != 1 || f.notifier.count(notify.KindPaymentFailed) != 0 {
		t.Fatalf("notifications = %v", f.notifier.kinds())
	}
}

func TestConcurrentCallbackAndPollIssueOneTicketSet(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, 10, 1000)
		res := f.book(f.userID, 2, "")
		p := f.pay(f.userID, res.Booking.ID)
		checkout := *p.ProviderCorrelationID
		f.gateway.setResult(checkout, mpesa.ResultSuccess, successDesc)
		f.clock.Advance(31 * time.Second)

		var cb mpesa.Callback
		cb.Body.StkCallback = mpesa.StkCallback{CheckoutRequestID: checkout, ResultCode: mpesa.ResultSuccess, ResultDesc: successDesc}

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs <- f.payments.HandleCallback(f.ctx, cb) }()
		go func() {
			defer wg.Done()
			_, err := f.payments.CheckStatus(f.ctx, f.userID, p.ID)
			errs <- err
		}()
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("reconcile: %v", err)
			}
		}
		if n := f.store.CountAllTickets(); n != 2 {
			t.Fatalf("run %d: tickets = %d, want 2", i, n)
		}
		if tt := f.ticketType(f.ticketTypeID); tt.QuantitySold != 2 {
			t.Fatalf("run %d: sold = %d, want 2", i, tt.QuantitySold)
		}
		if f.notifier.count(notify.KindPaymentConfirmation) != 1 {
			t.Fatalf("run %d: notifications = %v", i, f.notifier.kinds())
		}
		f.assertCapacity(f.ticketTypeID)
	}
}

func TestAmbiguousResultGraceOnCallback(t *testing.T) {
	f := newFixture(t, 10, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)
	checkout := *p.ProviderCorrelationID

	f.clock.Advance(119 * time.Second)
	f.callback(checkout, mpesa.ResultAmbiguous, "The transaction is being processed", "")
	if got := f.payment(p.ID).Status; got != model.PaymentStatusPending {
		t.Fatalf("status at 119s = %s, want pending", got)
	}

	f.clock.Advance(2 * time.Second)
	f.callback(checkout, mpesa.ResultAmbiguous, "The transaction is being processed", "")
	got := f.payment(p.ID)
	if got.Status != model.PaymentStatusFailed {
		t.Fatalf("status at 121s = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil || !strings.HasPrefix(*got.ErrorMessage, "[2004]") {
		t.Fatalf("error message = %v", got.ErrorMessage)
	}
	b := f.booking(res.Booking.ID)
	if b.Status != model.BookingPending || b.PaymentStatus != model.PaymentFailed {
		t.Fatalf("booking = %s/%s, want pending/failed", b.Status, b.PaymentStatus)
	}

	// failed is terminal: a success after the timeout is not applied
	f.callback(checkout, mpesa.ResultSuccess, successDesc, "LATE1")
	if got := f.payment(p.ID).Status; got != model.PaymentStatusFailed {
		t.Fatalf("status after late success = %s, want failed", got)
	}
	if got := f.booking(res.Booking.ID).Status; got != model.BookingPending {
		t.Fatalf("booking after late success = %s, want pending", got)
	}
	if n := len(f.tickets(res.Booking.ID)); n != 0 {
		t.Fatalf("tickets = %d, want 0", n)
	}
}

func TestAmbiguousResultGraceOnPoll(t *testing.T) {
	f := newFixture(t, 10, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)
	f.gateway.setResult(*p.ProviderCorrelationID, mpesa.ResultAmbiguous, "The transaction is being processed")

	f.clock.Advance(179 * time.Second)
	v, err := f.payments.CheckStatus(f.ctx, f.userID, p.ID)
	if err != nil || v.Payment.Status != model.PaymentStatusPending {
		t.Fatalf("poll at 179s = %+v, %v", v, err)
	}
	f.clock.Advance(2 * time.Second)
	v, err = f.payments.CheckStatus(f.ctx, f.userID, p.ID)
	if err != nil || v.Payment.Status != model.PaymentStatusFailed {
		t.Fatalf("poll at 181s = %+v, %v", v, err)
	}
	if v.Message != mpesa.CategoryMessage(mpesa.CategoryTimeout) || v.BookingID != res.Booking.ID {
		t.Fatalf("view = %+v", v)
	}
}

func TestCheckStatusWaitsForMinimumAge(t *testing.T) {
	f := newFixture(t, 10, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)
	f.gateway.setResult(*p.ProviderCorrelationID, "1", "The balance is insufficient for the transaction.")

	f.clock.Advance(10 * time.Second)
	v, err := f.payments.CheckStatus(f.ctx, f.userID, p.ID)
	if err != nil || v.Payment.Status != model.PaymentStatusPending || f.gateway.queries != 0 {
		t.Fatalf("early poll = %+v err=%v queries=%d", v, err, f.gateway.queries)
	}

	f.clock.Advance(25 * time.Second)
	v, err = f.payments.CheckStatus(f.ctx, f.userID, p.ID)
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if v.Payment.Status != model.PaymentStatusFailed || v.BookingStatus != model.BookingPending {
		t.Fatalf("view = %+v", v)
	}
	if v.Message != mpesa.CategoryMessage(mpesa.CategoryInsufficientFunds) {
		t.Fatalf("message = %q", v.Message)
	}
	if f.notifier.count(notify.KindPaymentFailed) != 1 {
		t.Fatalf("notifications = %v", f.notifier.kinds())
	}

	_, err = f.payments.CheckStatus(f.ctx, f.addAttendee("x@example.com"), p.ID)
	wantErr(t, err, ErrForbidden)
	_, err = f.payments.CheckStatus(f.ctx, f.userID, 9999)
	wantErr(t, err, ErrPaymentNotFound)
}

func TestRetryAfterFailedPaymentRetakesHold(t *testing.T) {
	f := newFixture(t, 1, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)
	f.callback(*p.ProviderCorrelationID, "1032", "Request cancelled by user", "")

	// the failed booking no longer holds the unit, so another buyer takes it
	other := f.addAttendee("quick@example.com")
	f.book(other, 1, "")

	_, err := f.payments.InitiateTicketPayment(f.ctx, f.userID, res.Booking.ID, "")
	wantErr(t, err, ErrInsufficientInventory)
}

func TestSuccessAfterFailureChangesNothing(t *testing.T) {
	f := newFixture(t, 5, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)
	f.callback(*p.ProviderCorrelationID, "1032", "Request cancelled by user", "")

	if _, err := f.bookings.Cancel(f.ctx, f.userID, res.Booking.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R1")

	got := f.payment(p.ID)
	if got.Status != model.PaymentStatusFailed || got.ReceiptNumber != nil || got.CompletedAt != nil {
		t.Fatalf("payment = %s receipt=%v, want failed", got.Status, got.ReceiptNumber)
	}
	b := f.booking(res.Booking.ID)
	if b.Status != model.BookingCancelled {
		t.Fatalf("booking = %s/%s, want cancelled", b.Status, b.PaymentStatus)
	}
	if n := len(f.tickets(b.ID)); n != 0 {
		t.Fatalf("tickets = %d, want 0", n)
	}
	if tt := f.ticketType(f.ticketTypeID); tt.QuantitySold != 0 {
		t.Fatalf("sold = %d, want 0", tt.QuantitySold)
	}
	if f.notifier.count(notify.KindPaymentConfirmation) != 0 {
		t.Fatalf("notifications = %v", f.notifier.kinds())
	}
}

func TestExpiredHoldWithPendingPaymentBlocksRebooking(t *testing.T) {
	f := newFixture(t, 5, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)
	f.clock.Advance(6 * time.Minute)

	_, err := f.bookings.Create(f.ctx, CreateBookingInput{UserID: f.userID, EventID: f.eventID, TicketTypeID: f.ticketTypeID, Quantity: 1})
	wantErr(t, err, ErrDuplicateBooking)
	if se, _ := AsError(err); se.BookingID != res.Booking.ID {
		t.Fatalf("duplicate points at %d, want %d", se.BookingID, res.Booking.ID)
	}

	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R1")
	if b := f.booking(res.Booking.ID); b.Status != model.BookingConfirmed {
		t.Fatalf("booking = %s, want confirmed", b.Status)
	}
	f.assertCapacity(f.ticketTypeID)
}

func TestLateSuccessAfterRebookingIsRefunded(t *testing.T) {
	f := newFixture(t, 5, 1000)
	first := f.book(f.userID, 1, "")
	p1 := f.pay(f.userID, first.Booking.ID)
	f.clock.Advance(6 * time.Minute)
	if n, err := f.reclaimer.SweepNow(f.ctx); err != nil || n != 1 {
		t.Fatalf("SweepNow = %d, %v; want 1", n, err)
	}

	second := f.book(f.userID, 1, "")
	p2 := f.pay(f.userID, second.Booking.ID)
	f.callback(*p2.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R2")
	f.callback(*p1.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R1")

	if b := f.booking(second.Booking.ID); b.Status != model.BookingConfirmed {
		t.Fatalf("second booking = %s, want confirmed", b.Status)
	}
	b := f.booking(first.Booking.ID)
	if b.Status != model.BookingCancelled || b.CancelReason == nil || *b.CancelReason != model.CancelReasonDuplicate {
		t.Fatalf("first booking = %s reason=%v, want cancelled/duplicate", b.Status, b.CancelReason)
	}
	if b.PaymentStatus != model.PaymentPaid {
		t.Fatalf("first payment status = %s, want paid (refund pending)", b.PaymentStatus)
	}
	if n := len(f.tickets(b.ID)); n != 0 {
		t.Fatalf("first booking got %d tickets", n)
	}
	if tt := f.ticketType(f.ticketTypeID); tt.QuantitySold != 1 {
		t.Fatalf("sold = %d, want 1", tt.QuantitySold)
	}
	f.assertCapacity(f.ticketTypeID)
}

func TestCallbackForUnknownCheckoutIsIgnored(t *testing.T) {
	f := newFixture(t, 10, 1000)
	f.callback("ws_CO_unknown", mpesa.ResultSuccess, successDesc, "X")
	if n := f.store.CountAllTickets(); n != 0 {
		t.Fatalf("tickets = %d", n)
	}
}

func TestLateSuccessAfterStockSoldCancelsForRefund(t *testing.T) {
	f := newFixture(t, 1, 1000)
	res := f.book(f.userID, 1, "")
	p := f.pay(f.userID, res.Booking.ID)

	f.clock.Advance(6 * time.Minute)
	// the hold is reclaimed even though its payment is still pending
	if n, err := f.reclaimer.SweepNow(f.ctx); err != nil || n != 1 {
		t.Fatalf("SweepNow = %d, %v; want 1", n, err)
	}
	other := f.addAttendee("second@example.com")
	second := f.book(other, 1, "")
	p2 := f.pay(other, second.Booking.ID)
	f.callback(*p2.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R2")

	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R1")

	b := f.booking(res.Booking.ID)
	if b.Status != model.BookingCancelled || b.CancelReason == nil || *b.CancelReason != model.CancelReasonSoldOut {
		t.Fatalf("booking = %s reason=%v, want cancelled/sold_out", b.Status, b.CancelReason)
	}
	if b.PaymentStatus != model.PaymentPaid {
		t.Fatalf("payment status = %s, want paid (refund pending)", b.PaymentStatus)
	}
	if got := f.payment(p.ID).Status; got != model.PaymentStatusCompleted {
		t.Fatalf("payment = %s", got)
	}
	if n := len(f.tickets(b.ID)); n != 0 {
		t.Fatalf("sold out booking got %d tickets", n)
	}
	if tt := f.ticketType(f.ticketTypeID); *tt.QuantityAvailable != 0 || tt.QuantitySold != 1 {
		t.Fatalf("inventory available=%d sold=%d", *tt.QuantityAvailable, tt.QuantitySold)
	}
	f.assertCapacity(f.ticketTypeID)
}

func TestLateSuccessWithStockLeftConfirms(t *testing.T) {
	f := newFixture(t, 5, 1000)
	res := f.book(f.userID, 2, "")
	p := f.pay(f.userID, res.Booking.ID)
	f.clock.Advance(10 * time.Minute)
	if _, err := f.reclaimer.SweepNow(f.ctx); err != nil {
		t.Fatalf("SweepNow: %v", err)
	}
	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "R1")

	b := f.booking(res.Booking.ID)
	if b.Status != model.BookingConfirmed || b.CancelReason != nil {
		t.Fatalf("booking = %s reason=%v", b.Status, b.CancelReason)
	}
	if n := len(f.tickets(b.ID)); n != 2 {
		t.Fatalf("tickets = %d", n)
	}
	f.assertCapacity(f.ticketTypeID)
}

func TestPromotionPayment(t *testing.T) {
	f := newFixture(t, 10, 1000)
	promoID := f.store.AddPromotion(model.EventPromotion{
		EventID: f.eventID, PartnerID: f.partnerID, AmountCents: 150000,
		StartsAt: epoch, EndsAt: epoch.Add(7 * 24 * time.Hour),
	})

	_, err := f.payments.InitiatePromotionPayment(f.ctx, f.userID, promoID, "")
	wantErr(t, err, ErrForbidden)
	_, err = f.payments.InitiatePromotionPayment(f.ctx, f.partnerUser, 9999, "")
	wantErr(t, err, ErrPromotionNotFound)

	p, err := f.payments.InitiatePromotionPayment(f.ctx, f.partnerUser, promoID, "")
	if err != nil {
		t.Fatalf("InitiatePromotionPayment: %v", err)
	}
	if p.PaymentType != model.PaymentTypePromotion || f.gateway.pushes[0].Amount != 1500 {
		t.Fatalf("payment = %+v push = %+v", p, f.gateway.pushes[0])
	}
	f.callback(*p.ProviderCorrelationID, mpesa.ResultSuccess, successDesc, "PROMO1")

	promo, _ := f.store.Promotion(promoID)
	if !promo.IsPaid || !promo.IsActive || promo.PaidAt == nil {
		t.Fatalf("promotion = %+v", promo)
	}
	if f.notifier.count(notify.KindPromotionActivated) != 1 {
		t.Fatalf("notifications = %v", f.notifier.kinds())
	}
	_, err = f.payments.InitiatePromotionPayment(f.ctx, f.partnerUser, promoID, "")
	wantErr(t, err, ErrPromotionPaid)
	if n := f.store.CountAllTickets(); n != 0 {
		t.Fatalf("promotion payment issued %d tickets", n)
	}
}
