package service

import (
	"time"

	"github.com/iliyamo/event-ticketing/internal/model"
)

// Quote is the price breakdown of a booking.  All amounts are cents.
type Quote struct {
	TotalCents       int64
	DiscountCents    int64
	FinalCents       int64
	PlatformFeeCents int64
	PartnerCents     int64
}

// Price computes the quote for qty tickets at unitCents, applying promo
// when it is non-nil.  The discount never exceeds the total and the
// platform fee is rounded half-up to the nearest cent.
func Price(unitCents int64, qty int, promo *model.PromoCode, commissionBps int64) Quote {
	q := Quote{TotalCents: unitCents * int64(qty)}
	if promo != nil {
		q.DiscountCents = Discount(promo, q.TotalCents)
	}
	q.FinalCents = q.TotalCents - q.DiscountCents
	q.PlatformFeeCents = (q.FinalCents*commissionBps + 5000) / 10000
	q.PartnerCents = q.FinalCents - q.PlatformFeeCents
	return q
}

// Discount returns the discount promo grants on totalCents.
func Discount(promo *model.PromoCode, totalCents int64) int64 {
	var d int64
	switch promo.DiscountType {
	case model.DiscountPercentage:
		d = (totalCents*promo.DiscountValue + 5000) / 10000
	case model.DiscountFixed:
		d = promo.DiscountValue
	}
	if d < 0 {
		return 0
	}
	if d > totalCents {
		return totalCents
	}
	return d
}

// PromoUsable reports whether the code is active, inside its validity
// window and below its global cap.  The per-user cap needs a store lookup
// and is checked by the caller.
func PromoUsable(p *model.PromoCode, now time.Time) bool {
	if !p.IsActive {
		return false
	}
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	if p.MaxUses > 0 && p.CurrentUses >= p.MaxUses {
		return false
	}
	return true
}

// gatewayAmount converts cents into the whole currency units the mobile
// money gateway accepts, rounding up so the partner is never short paid.
func gatewayAmount(cents int64) int64 {
	return (cents + 99) / 100
}
