package service

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BookingNumber returns a public booking reference NF-YYYYMMDD-XXXXXXXX.
func BookingNumber(now time.Time) string {
	return "NF-" + now.UTC().Format("20060102") + "-" + randomHex(8)
}

// TicketNumber returns a ticket reference TKT-YYYYMMDD-XXXXXXXXXX.
func TicketNumber(now time.Time) string {
	return "TKT-" + now.UTC().Format("20060102") + "-" + randomHex(10)
}

// TransactionID returns the internal payment reference TXN-<uuid>.
func TransactionID() string {
	return "TXN-" + uuid.NewString()
}

// randomHex returns n upper-case hex characters drawn from a random UUID.
func randomHex(n int) string {
	id := uuid.New()
	return strings.ToUpper(hex.EncodeToString(id[:]))[:n]
}
