package service

import (
	"context"
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Availability is the live view of a ticket type's capacity.
type Availability struct {
	Unlimited bool
	Stored    int // quantity_available column
	Held      int // units held by unexpired unpaid reservations
	Available int // Stored - Held, floored at zero
}

// Allows reports whether qty more units can be reserved.
func (a Availability) Allows(qty int) bool {
	return a.Unlimited || qty <= a.Available
}

// Available computes how many units of tt can still be reserved at now.
// Holds stop counting the instant their reserved_until passes, whether or
// not the reclaimer has cancelled them yet.  Callers that act on the
// result must hold tt's row lock for it to be authoritative.
func Available(ctx context.Context, tx repository.Tx, tt *model.TicketType, now time.Time) (Availability, error) {
	if tt.Unlimited() {
		return Availability{Unlimited: true}, nil
	}
	held, err := tx.ReservedQuantity(ctx, tt.ID, now)
	if err != nil {
		return Availability{}, err
	}
	a := Availability{Held: held}
	if tt.QuantityAvailable != nil {
		a.Stored = *tt.QuantityAvailable
	}
	a.Available = a.Stored - held
	if a.Available < 0 {
		a.Available = 0
	}
	return a, nil
}
