package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// tx operates directly on the live state; the Store lock is held and
// WithTx restores the snapshot on failure.  Getters return copies so that
// callers only change rows through the update methods.
type tx struct {
	st *state
}

func (t *tx) GetEvent(_ context.Context, id uint64) (*model.Event, error) {
	e, ok := t.st.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (t *tx) AddEventSales(_ context.Context, eventID uint64, attendees, tickets int, revenueCents int64) error {
	e, ok := t.st.events[eventID]
	if !ok {
		return repository.ErrNotFound
	}
	e.AttendeeCount = max(0, e.AttendeeCount+attendees)
	e.TotalTicketsSold = max(0, e.TotalTicketsSold+tickets)
	e.RevenueCents += revenueCents
	t.st.events[eventID] = e
	return nil
}

func (t *tx) GetTicketType(_ context.Context, id uint64) (*model.TicketType, error) {
	tt, ok := t.st.ticketTypes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &tt, nil
}

func (t *tx) GetTicketTypeForUpdate(ctx context.Context, id uint64) (*model.TicketType, error) {
	return t.GetTicketType(ctx, id)
}

func (t *tx) FindTicketTypeByNameForUpdate(_ context.Context, eventID uint64, name string) (*model.TicketType, error) {
	for _, id := range sortedKeys(t.st.ticketTypes) {
		tt := t.st.ticketTypes[id]
		if tt.EventID == eventID && tt.Name == name {
			return &tt, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) CreateTicketType(_ context.Context, tt *model.TicketType) error {
	tt.ID = t.st.id()
	t.st.ticketTypes[tt.ID] = *tt
	return nil
}

func (t *tx) ListTicketTypes(_ context.Context, eventID uint64) ([]model.TicketType, error) {
	var out []model.TicketType
	for _, id := range sortedKeys(t.st.ticketTypes) {
		if tt := t.st.ticketTypes[id]; tt.EventID == eventID {
			out = append(out, tt)
		}
	}
	return out, nil
}

func (t *tx) ReservedQuantity(_ context.Context, ticketTypeID uint64, now time.Time) (int, error) {
	n := 0
	for _, b := range t.st.bookings {
		if b.TicketTypeID == ticketTypeID && b.HoldsInventory(now) {
			n += b.Quantity
		}
	}
	return n, nil
}

func (t *tx) DecrementInventory(_ context.Context, ticketTypeID uint64, qty int) (bool, error) {
	tt, ok := t.st.ticketTypes[ticketTypeID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if tt.QuantityAvailable == nil {
		tt.QuantitySold += qty
		t.st.ticketTypes[ticketTypeID] = tt
		return true, nil
	}
	if *tt.QuantityAvailable < qty {
		return false, nil
	}
	tt.QuantityAvailable = intPtr(*tt.QuantityAvailable - qty)
	tt.QuantitySold += qty
	t.st.ticketTypes[ticketTypeID] = tt
	return true, nil
}

func (t *tx) RestoreInventory(_ context.Context, ticketTypeID uint64, qty int) error {
	tt, ok := t.st.ticketTypes[ticketTypeID]
	if !ok {
		return repository.ErrNotFound
	}
	if tt.QuantityAvailable != nil {
		tt.QuantityAvailable = intPtr(*tt.QuantityAvailable + qty)
	}
	tt.QuantitySold = max(0, tt.QuantitySold-qty)
	t.st.ticketTypes[ticketTypeID] = tt
	return nil
}

func (t *tx) GetPartner(_ context.Context, id uint64) (*model.Partner, error) {
	p, ok := t.st.partners[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (t *tx) GetPartnerByUserID(_ context.Context, userID uint64) (*model.Partner, error) {
	for _, id := range sortedKeys(t.st.partners) {
		if p := t.st.partners[id]; p.UserID == userID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) CreditPartner(_ context.Context, partnerID uint64, amountCents int64) error {
	p, ok := t.st.partners[partnerID]
	if !ok {
		return repository.ErrNotFound
	}
	p.PendingEarningsCents += amountCents
	p.TotalEarningsCents += amountCents
	t.st.partners[partnerID] = p
	return nil
}

func (t *tx) CreateBooking(_ context.Context, b *model.Booking) error {
	for _, other := range t.st.bookings {
		if other.BookingNumber == b.BookingNumber {
			return repository.ErrConflict
		}
	}
	b.ID = t.st.id()
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) GetBooking(_ context.Context, id uint64) (*model.Booking, error) {
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id uint64) (*model.Booking, error) {
	return t.GetBooking(ctx, id)
}

func (t *tx) GetBookingByPaymentIDForUpdate(_ context.Context, paymentID uint64) (*model.Booking, error) {
	for _, id := range sortedKeys(t.st.bookings) {
		if b := t.st.bookings[id]; b.PaymentID != nil && *b.PaymentID == paymentID {
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) FindActiveBooking(_ context.Context, userID, eventID uint64, now time.Time) (*model.Booking, error) {
	for _, id := range sortedKeys(t.st.bookings) {
		b := t.st.bookings[id]
		if b.UserID == userID && b.EventID == eventID && (b.Active(now) || t.awaitingPayment(b)) {
			return &b, nil
		}
	}
	return nil, repository.ErrNotFound
}

// awaitingPayment reports a pending booking whose payment has not settled.
func (t *tx) awaitingPayment(b model.Booking) bool {
	if b.Status != model.BookingPending || b.PaymentID == nil {
		return false
	}
	p, ok := t.st.payments[*b.PaymentID]
	return ok && p.Status == model.PaymentStatusPending
}

func (t *tx) ListBookingsByUser(_ context.Context, userID uint64) ([]model.Booking, error) {
	var out []model.Booking
	keys := sortedKeys(t.st.bookings)
	for i := len(keys) - 1; i >= 0; i-- {
		if b := t.st.bookings[keys[i]]; b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (t *tx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return repository.ErrNotFound
	}
	t.st.bookings[b.ID] = *b
	return nil
}

func expiredHold(b model.Booking, now time.Time) bool {
	return b.Status == model.BookingPending &&
		(b.PaymentStatus == model.PaymentUnpaid || b.PaymentStatus == model.PaymentFailed) &&
		b.ReservedUntil != nil && b.ReservedUntil.Before(now)
}

func (t *tx) ListExpiredHolds(_ context.Context, now time.Time, limit int) ([]uint64, error) {
	var out []uint64
	for _, id := range sortedKeys(t.st.bookings) {
		if expiredHold(t.st.bookings[id], now) {
			out = append(out, id)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (t *tx) ExpireHold(_ context.Context, bookingID uint64, now time.Time) (bool, error) {
	b, ok := t.st.bookings[bookingID]
	if !ok || !expiredHold(b, now) {
		return false, nil
	}
	b.Status = model.BookingCancelled
	b.CancelledAt = timePtr(now)
	b.CancelReason = strPtr(model.CancelReasonExpired)
	b.UpdatedAt = now
	t.st.bookings[bookingID] = b
	return true, nil
}

func (t *tx) CreateTickets(_ context.Context, tickets []model.Ticket) error {
	seen := map[string]bool{}
	for _, existing := range t.st.tickets {
		seen[existing.TicketNumber] = true
	}
	for i := range tickets {
		if seen[tickets[i].TicketNumber] {
			return repository.ErrConflict
		}
		seen[tickets[i].TicketNumber] = true
	}
	for i := range tickets {
		tickets[i].ID = t.st.id()
		t.st.tickets[tickets[i].ID] = tickets[i]
	}
	return nil
}

func (t *tx) CountTickets(_ context.Context, bookingID uint64) (int, error) {
	n := 0
	for _, tk := range t.st.tickets {
		if tk.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

func (t *tx) ListTickets(_ context.Context, bookingID uint64) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, id := range sortedKeys(t.st.tickets) {
		if tk := t.st.tickets[id]; tk.BookingID == bookingID {
			out = append(out, tk)
		}
	}
	return out, nil
}

func (t *tx) InvalidateTickets(_ context.Context, bookingID uint64) error {
	for id, tk := range t.st.tickets {
		if tk.BookingID == bookingID {
			tk.IsValid = false
			t.st.tickets[id] = tk
		}
	}
	return nil
}

func (t *tx) SetTicketQRPath(_ context.Context, ticketID uint64, path string) error {
	tk, ok := t.st.tickets[ticketID]
	if !ok {
		return repository.ErrNotFound
	}
	tk.QRPath = strPtr(path)
	t.st.tickets[ticketID] = tk
	return nil
}

func (t *tx) CreatePayment(_ context.Context, p *model.Payment) error {
	for _, other := range t.st.payments {
		if other.TransactionID == p.TransactionID {
			return repository.ErrConflict
		}
	}
	p.ID = t.st.id()
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) GetPayment(_ context.Context, id uint64) (*model.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (t *tx) GetPaymentByCorrelationID(_ context.Context, correlationID string) (*model.Payment, error) {
	for _, id := range sortedKeys(t.st.payments) {
		p := t.st.payments[id]
		if p.ProviderCorrelationID != nil && *p.ProviderCorrelationID == correlationID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) SetPaymentCorrelation(_ context.Context, id uint64, checkoutRequestID, merchantRequestID string) error {
	p, ok := t.st.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.ProviderCorrelationID = strPtr(checkoutRequestID)
	p.MerchantRequestID = strPtr(merchantRequestID)
	t.st.payments[id] = p
	return nil
}

func (t *tx) CompletePayment(_ context.Context, id uint64, receipt string, now time.Time) (bool, error) {
	p, ok := t.st.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusCompleted
	p.CompletedAt = timePtr(now)
	if receipt != "" {
		p.ReceiptNumber = strPtr(receipt)
	}
	t.st.payments[id] = p
	return true, nil
}

func (t *tx) FailPayment(_ context.Context, id uint64, message string, now time.Time) (bool, error) {
	p, ok := t.st.payments[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = model.PaymentStatusFailed
	p.FailedAt = timePtr(now)
	p.ErrorMessage = strPtr(message)
	t.st.payments[id] = p
	return true, nil
}

func (t *tx) GetPromoCodeForUpdate(_ context.Context, eventID uint64, code string) (*model.PromoCode, error) {
	code = strings.ToUpper(code)
	for _, id := range sortedKeys(t.st.promoCodes) {
		if p := t.st.promoCodes[id]; p.EventID == eventID && p.Code == code {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) CountPromoUsesByUser(_ context.Context, promoCodeID, userID uint64) (int, error) {
	n := 0
	for _, b := range t.st.bookings {
		if b.UserID == userID && b.PromoCounted && b.PromoCodeID != nil && *b.PromoCodeID == promoCodeID {
			n++
		}
	}
	return n, nil
}

func (t *tx) IncrementPromoUses(_ context.Context, promoCodeID uint64) error {
	p, ok := t.st.promoCodes[promoCodeID]
	if !ok {
		return repository.ErrNotFound
	}
	p.CurrentUses++
	t.st.promoCodes[promoCodeID] = p
	return nil
}

func (t *tx) DecrementPromoUses(_ context.Context, promoCodeID uint64) error {
	p, ok := t.st.promoCodes[promoCodeID]
	if !ok {
		return repository.ErrNotFound
	}
	if p.CurrentUses > 0 {
		p.CurrentUses--
	}
	t.st.promoCodes[promoCodeID] = p
	return nil
}

func (t *tx) GetPromotionForUpdate(_ context.Context, id uint64) (*model.EventPromotion, error) {
	p, ok := t.st.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (t *tx) GetPromotionByPaymentIDForUpdate(_ context.Context, paymentID uint64) (*model.EventPromotion, error) {
	for _, id := range sortedKeys(t.st.promotions) {
		if p := t.st.promotions[id]; p.PaymentID != nil && *p.PaymentID == paymentID {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) UpdatePromotion(_ context.Context, p *model.EventPromotion) error {
	if _, ok := t.st.promotions[p.ID]; !ok {
		return repository.ErrNotFound
	}
	t.st.promotions[p.ID] = *p
	return nil
}

func (t *tx) GetUser(_ context.Context, id uint64) (*model.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func sortedKeys[V any](m map[uint64]V) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
