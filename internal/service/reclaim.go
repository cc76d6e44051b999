package service

import (
	"context"
	"log"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/repository"
)

// Reclaimer cancels reservation holds whose deadline has passed and
// gives back the promo usage they consumed.  Availability never depends
// on it running promptly; it tidies booking state.
type Reclaimer struct {
	store repository.Store
	clock clock.Clock
	batch int
}

// NewReclaimer builds a reclaimer processing up to batch bookings per
// query.
func NewReclaimer(store repository.Store, clk clock.Clock, batch int) *Reclaimer {
	if batch < 1 {
		batch = 500
	}
	return &Reclaimer{store: store, clock: clk, batch: batch}
}

// Sweep cancels every pending booking with payment_status unpaid or
// failed whose reserved_until is before now and returns how many it
// cancelled.  Each booking is cancelled by a conditional update in its own
// transaction, so overlapping sweeps, user cancellation and a late
// payment never double-apply.
func (r *Reclaimer) Sweep(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		var ids []uint64
		err := r.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			ids, err = tx.ListExpiredHolds(ctx, now, r.batch)
			return err
		})
		if err != nil {
			return total, err
		}
		for _, id := range ids {
			ok, err := r.expire(ctx, id, now)
			if err != nil {
				return total, err
			}
			if ok {
				total++
			}
		}
		if len(ids) < r.batch {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func (r *Reclaimer) expire(ctx context.Context, id uint64, now time.Time) (bool, error) {
	var cancelled bool
	err := r.store.WithTx(ctx, func(tx repository.Tx) error {
		ok, err := tx.ExpireHold(ctx, id, now)
		if err != nil || !ok {
			return err
		}
		cancelled = true
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if b.PromoCodeID == nil || !b.PromoCounted {
			return nil
		}
		if err := tx.DecrementPromoUses(ctx, *b.PromoCodeID); err != nil {
			return err
		}
		b.PromoCounted = false
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return false, err
	}
	return cancelled, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reclaimer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := r.Sweep(ctx, r.clock.Now())
			if err != nil {
				log.Printf("reclaimer: sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("reclaimer: released %d expired reservations", n)
			}
		}
	}
}

// SweepNow sweeps with the reclaimer's clock.
func (r *Reclaimer) SweepNow(ctx context.Context) (int, error) {
	return r.Sweep(ctx, r.clock.Now())
}
