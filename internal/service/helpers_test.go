package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config"
	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/mpesa"
	"github.com/iliyamo/event-ticketing/internal/notify"
	"github.com/iliyamo/event-ticketing/internal/repository"
	"github.com/iliyamo/event-ticketing/internal/repository/memory"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

// fakeGateway answers pushes with sequential checkout ids and queries
// with whatever result is configured for the checkout id.
type fakeGateway struct {
	mu          sync.Mutex
	initiateErr error
	pushes      []mpesa.InitiateRequest
	results     map[string]mpesa.QueryResult
	queries     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{results: map[string]mpesa.QueryResult{}}
}

func (g *fakeGateway) Initiate(_ context.Context, req mpesa.InitiateRequest) (*mpesa.InitiateResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initiateErr != nil {
		return nil, g.initiateErr
	}
	g.pushes = append(g.pushes, req)
	n := len(g.pushes)
	return &mpesa.InitiateResult{
		Accepted:          true,
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d", n),
		MerchantRequestID: fmt.Sprintf("mr_%d", n),
		ResponseCode:      "0",
	}, nil
}

func (g *fakeGateway) Query(_ context.Context, checkoutRequestID string) (*mpesa.QueryResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries++
	res, ok := g.results[checkoutRequestID]
	if !ok {
		return &mpesa.QueryResult{Pending: true}, nil
	}
	return &res, nil
}

func (g *fakeGateway) setResult(checkout string, code mpesa.ResultCode, desc string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[checkout] = mpesa.QueryResult{ResultCode: code, ResultDesc: desc}
}

func (g *fakeGateway) failInitiate(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initiateErr = err
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordingNotifier) Submit(m notify.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return true
}

func (n *recordingNotifier) kinds() []notify.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notify.Kind, len(n.msgs))
	for i, m := range n.msgs {
		out[i] = m.Kind
	}
	return out
}

func (n *recordingNotifier) count(kind notify.Kind) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

type fakeQR struct {
	mu    sync.Mutex
	calls int
}

func (q *fakeQR) Generate(_ context.Context, _, ticketNumber string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return "qr/" + ticketNumber + ".png", nil
}

// fixture is a seeded marketplace: one partner, one approved paid event
// with a finite ticket type and one attendee with a phone number.
type fixture struct {
	t         *testing.T
	ctx       context.Context
	store     *memory.Store
	clock     *clock.FakeClock
	cfg       config.BookingConfig
	gateway   *fakeGateway
	notifier  *recordingNotifier
	qr        *fakeQR
	bookings  *Bookings
	payments  *Payments
	reclaimer *Reclaimer

	partnerID    uint64
	partnerUser  uint64
	eventID      uint64
	ticketTypeID uint64
	userID       uint64
}

func newFixture(t *testing.T, capacity int, priceCents int64) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    clock.Fake(epoch),
		cfg:      config.DefaultBookingConfig(),
		gateway:  newFakeGateway(),
		notifier: &recordingNotifier{},
		qr:       &fakeQR{},
	}
	f.wire()
	f.partnerUser = f.store.AddUser(model.User{Email: "org@example.com", Role: model.RolePartner, Phone: "254711000000", IsActive: true})
	f.partnerID = f.store.AddPartner(model.Partner{UserID: f.partnerUser, BusinessName: "Nairobi Live"})
	f.eventID = f.store.AddEvent(model.Event{
		PartnerID:   f.partnerID,
		Title:       "Sauti Sol Live",
		Status:      model.EventStatusApproved,
		IsPublished: true,
		StartsAt:    epoch.Add(30 * 24 * time.Hour),
		EndsAt:      epoch.Add(30*24*time.Hour + 4*time.Hour),
	})
	f.ticketTypeID = f.addTicketType(f.eventID, "Regular", priceCents, &capacity)
	f.userID = f.addAttendee("amina@example.com")
	return f
}

func (f *fixture) wire() {
	ful := NewFulfiller(f.store, f.clock, f.qr, f.notifier)
	f.bookings = NewBookings(f.store, f.cfg, f.clock, ful)
	f.payments = NewPayments(f.store, f.gateway, f.cfg, f.clock, ful, f.notifier)
	f.reclaimer = NewReclaimer(f.store, f.clock, 2)
}

func (f *fixture) addTicketType(eventID uint64, name string, priceCents int64, capacity *int) uint64 {
	tt := model.TicketType{
		EventID:     eventID,
		Name:        name,
		PriceCents:  priceCents,
		MinPerOrder: 1,
		MaxPerOrder: 10,
		IsActive:    true,
	}
	if capacity != nil {
		tt.QuantityTotal = ptr(*capacity)
		tt.QuantityAvailable = ptr(*capacity)
	}
	return f.store.AddTicketType(tt)
}

func (f *fixture) addAttendee(email string) uint64 {
	return f.store.AddUser(model.User{Email: email, Role: model.RoleAttendee, Phone: "0712345678", IsActive: true})
}

func (f *fixture) book(userID uint64, qty int, promo string) *BookingResult {
	f.t.Helper()
	res, err := f.bookings.Create(f.ctx, CreateBookingInput{
		UserID: userID, EventID: f.eventID, TicketTypeID: f.ticketTypeID, Quantity: qty, PromoCode: promo,
	})
	if err != nil {
		f.t.Fatalf("Create booking: %v", err)
	}
	return res
}

func (f *fixture) pay(userID, bookingID uint64) *model.Payment {
	f.t.Helper()
	p, err := f.payments.InitiateTicketPayment(f.ctx, userID, bookingID, "")
	if err != nil {
		f.t.Fatalf("InitiateTicketPayment: %v", err)
	}
	return p
}

func (f *fixture) callback(checkout string, code mpesa.ResultCode, desc, receipt string) {
	f.t.Helper()
	var cb mpesa.Callback
	cb.Body.StkCallback = mpesa.StkCallback{
		MerchantRequestID: "mr",
		CheckoutRequestID: checkout,
		ResultCode:        code,
		ResultDesc:        desc,
	}
	if receipt != "" {
		cb.Body.StkCallback.CallbackMetadata = &mpesa.CallbackMetadata{Item: []mpesa.MetadataItem{
			{Name: "MpesaReceiptNumber", Value: []byte(`"` + receipt + `"`)},
		}}
	}
	if err := f.payments.HandleCallback(f.ctx, cb); err != nil {
		f.t.Fatalf("HandleCallback: %v", err)
	}
}

func (f *fixture) booking(id uint64) model.Booking {
	f.t.Helper()
	var b *model.Booking
	f.inTx(func(tx repository.Tx) (err error) { b, err = tx.GetBooking(f.ctx, id); return })
	return *b
}

func (f *fixture) payment(id uint64) model.Payment {
	f.t.Helper()
	var p *model.Payment
	f.inTx(func(tx repository.Tx) (err error) { p, err = tx.GetPayment(f.ctx, id); return })
	return *p
}

func (f *fixture) ticketType(id uint64) model.TicketType {
	f.t.Helper()
	var tt *model.TicketType
	f.inTx(func(tx repository.Tx) (err error) { tt, err = tx.GetTicketType(f.ctx, id); return })
	return *tt
}

func (f *fixture) tickets(bookingID uint64) []model.Ticket {
	f.t.Helper()
	var out []model.Ticket
	f.inTx(func(tx repository.Tx) (err error) { out, err = tx.ListTickets(f.ctx, bookingID); return })
	return out
}

func (f *fixture) partner() model.Partner {
	f.t.Helper()
	var p *model.Partner
	f.inTx(func(tx repository.Tx) (err error) { p, err = tx.GetPartner(f.ctx, f.partnerID); return })
	return *p
}

func (f *fixture) event() model.Event {
	f.t.Helper()
	var e *model.Event
	f.inTx(func(tx repository.Tx) (err error) { e, err = tx.GetEvent(f.ctx, f.eventID); return })
	return *e
}

func (f *fixture) inTx(fn func(tx repository.Tx) error) {
	f.t.Helper()
	if err := f.store.WithTx(f.ctx, fn); err != nil {
		f.t.Fatalf("inspect store: %v", err)
	}
}

// assertCapacity checks available + sold == total for a finite type.
func (f *fixture) assertCapacity(id uint64) {
	f.t.Helper()
	tt := f.ticketType(id)
	if tt.QuantityTotal == nil {
		return
	}
	if got := *tt.QuantityAvailable + tt.QuantitySold; got != *tt.QuantityTotal {
		f.t.Fatalf("capacity invariant broken: available=%d sold=%d total=%d", *tt.QuantityAvailable, tt.QuantitySold, *tt.QuantityTotal)
	}
}

func wantErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
