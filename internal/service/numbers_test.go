package service

import (
	"regexp"
	"testing"
)

var (
	bookingNumberRe = regexp.MustCompile(`^NF-20260301-[0-9A-F]{8}$`)
	ticketNumberRe  = regexp.MustCompile(`^TKT-20260301-[0-9A-F]{10}$`)
	txnRe           = regexp.MustCompile(`^TXN-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

func TestNumberFormatsAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 2000; i++ {
		b, tk, tx := BookingNumber(epoch), TicketNumber(epoch), TransactionID()
		if !bookingNumberRe.MatchString(b) {
			t.Fatalf("booking number %q has wrong format", b)
		}
		if !ticketNumberRe.MatchString(tk) {
			t.Fatalf("ticket number %q has wrong format", tk)
		}
		if !txnRe.MatchString(tx) {
			t.Fatalf("transaction id %q has wrong format", tx)
		}
		for _, s := range []string{b, tk, tx} {
			if seen[s] {
				t.Fatalf("duplicate %q after %d iterations", s, i)
			}
			seen[s] = true
		}
	}
}
