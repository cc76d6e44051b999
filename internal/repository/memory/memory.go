// Package memory is an in-process implementation of the repository
// contracts.  A transaction holds one store-wide lock for its whole
// duration and is rolled back by restoring a snapshot, which gives
// serializable behaviour.  It backs the test suites and STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

type state struct {
	nextID      uint64
	events      map[uint64]model.Event
	partners    map[uint64]model.Partner
	ticketTypes map[uint64]model.TicketType
	bookings    map[uint64]model.Booking
	tickets     map[uint64]model.Ticket
	payments    map[uint64]model.Payment
	promoCodes  map[uint64]model.PromoCode
	promotions  map[uint64]model.EventPromotion
	users       map[uint64]model.User
	refresh     map[string]model.RefreshToken
}

func newState() *state {
	return &state{
		events:      map[uint64]model.Event{},
		partners:    map[uint64]model.Partner{},
		ticketTypes: map[uint64]model.TicketType{},
		bookings:    map[uint64]model.Booking{},
		tickets:     map[uint64]model.Ticket{},
		payments:    map[uint64]model.Payment{},
		promoCodes:  map[uint64]model.PromoCode{},
		promotions:  map[uint64]model.EventPromotion{},
		users:       map[uint64]model.User{},
		refresh:     map[string]model.RefreshToken{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// clone copies every table.  Rows are values and writers always replace a
// whole row, so a shallow copy of each map is a consistent snapshot.
func (s *state) clone() *state {
	return &state{
		nextID:      s.nextID,
		events:      copyMap(s.events),
		partners:    copyMap(s.partners),
		ticketTypes: copyMap(s.ticketTypes),
		bookings:    copyMap(s.bookings),
		tickets:     copyMap(s.tickets),
		payments:    copyMap(s.payments),
		promoCodes:  copyMap(s.promoCodes),
		promotions:  copyMap(s.promotions),
		users:       copyMap(s.users),
		refresh:     copyMap(s.refresh),
	}
}

func (s *state) id() uint64 {
	s.nextID++
	return s.nextID
}

// Store is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	data *state
}

// New returns an empty store.
func New() *Store { return &Store{data: newState()} }

var (
	_ repository.Store      = (*Store)(nil)
	_ repository.UserStore  = (*Store)(nil)
	_ repository.TokenStore = (*Store)(nil)
)

// WithTx runs fn under the store lock and restores the previous state if
// fn returns an error or panics.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snap
			panic(p)
		}
		if err != nil {
			s.data = snap
		}
	}()
	return fn(&tx{st: s.data})
}

func (s *Store) locked(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// Seeding helpers.  Each assigns an id when the row has none and returns it.

func (s *Store) AddEvent(e model.Event) uint64 {
	var id uint64
	s.locked(func(st *state) {
		if e.ID == 0 {
			e.ID = st.id()
		}
		st.events[e.ID] = e
		id = e.ID
	})
	return id
}

func (s *Store) AddPartner(p model.Partner) uint64 {
	var id uint64
	s.locked(func(st *state) {
		if p.ID == 0 {
			p.ID = st.id()
		}
		st.partners[p.ID] = p
		id = p.ID
	})
	return id
}

func (s *Store) AddTicketType(t model.TicketType) uint64 {
	var id uint64
	s.locked(func(st *state) {
		if t.ID == 0 {
			t.ID = st.id()
		}
		st.ticketTypes[t.ID] = t
		id = t.ID
	})
	return id
}

func (s *Store) AddPromoCode(p model.PromoCode) uint64 {
	var id uint64
	s.locked(func(st *state) {
		if p.ID == 0 {
			p.ID = st.id()
		}
		p.Code = strings.ToUpper(p.Code)
		st.promoCodes[p.ID] = p
		id = p.ID
	})
	return id
}

func (s *Store) AddPromotion(p model.EventPromotion) uint64 {
	var id uint64
	s.locked(func(st *state) {
		if p.ID == 0 {
			p.ID = st.id()
		}
		st.promotions[p.ID] = p
		id = p.ID
	})
	return id
}

func (s *Store) AddUser(u model.User) uint64 {
	var id uint64
	s.locked(func(st *state) {
		if u.ID == 0 {
			u.ID = st.id()
		}
		u.Email = strings.ToLower(strings.TrimSpace(u.Email))
		st.users[u.ID] = u
		id = u.ID
	})
	return id
}

// PromoCode returns a promo code by id for inspection.
func (s *Store) PromoCode(id uint64) (model.PromoCode, bool) {
	var (
		p  model.PromoCode
		ok bool
	)
	s.locked(func(st *state) { p, ok = st.promoCodes[id] })
	return p, ok
}

// Promotion returns an event promotion by id for inspection.
func (s *Store) Promotion(id uint64) (model.EventPromotion, bool) {
	var (
		p  model.EventPromotion
		ok bool
	)
	s.locked(func(st *state) { p, ok = st.promotions[id] })
	return p, ok
}

// Payments returns every payment ordered by id.
func (s *Store) Payments() []model.Payment {
	var out []model.Payment
	s.locked(func(st *state) {
		for _, p := range st.payments {
			out = append(out, p)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountAllTickets returns the number of tickets issued across bookings.
func (s *Store) CountAllTickets() int {
	var n int
	s.locked(func(st *state) { n = len(st.tickets) })
	return n
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
