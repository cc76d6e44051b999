package mpesa

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why an STK push could not be started.
type ErrorKind string

const (
	ErrKindNetwork      ErrorKind = "network"       // request never got a response
	ErrKindHTTP         ErrorKind = "http"          // non-2xx without a provider error body
	ErrKindAuth         ErrorKind = "auth"          // OAuth token could not be obtained
	ErrKindRejected     ErrorKind = "rejected"      // provider answered with a non-zero response code
	ErrKindInvalidPhone ErrorKind = "invalid_phone" // MSISDN failed validation locally or at the provider
)

// InitiationError is returned by Initiate when the push was not accepted.
// It never means the user declined on their handset; that arrives later as
// a callback or query result.
type InitiationError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Raw        []byte
	Err        error
}

func (e *InitiationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "mpesa initiate %s", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *InitiationError) Unwrap() error { return e.Err }

// IsInitiationError reports whether err is an initiation failure and
// returns it.
func IsInitiationError(err error) (*InitiationError, bool) {
	var ie *InitiationError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// User-facing failure categories.  Raw provider text is never shown.
const (
	CategoryInsufficientFunds = "insufficient_funds"
	CategoryCancelled         = "cancelled"
	CategoryInvalidNumber     = "invalid_number"
	CategoryTimeout           = "timeout"
	CategoryUnknown           = "unknown"
)

// Category maps a provider result code and description onto a user-facing
// failure category.
func Category(code ResultCode, desc string) string {
	switch code {
	case "1", "2002":
		return CategoryInsufficientFunds
	case "1032", "2003", "1031":
		return CategoryCancelled
	case "2001", "C2B00011", "2006":
		return CategoryInvalidNumber
	case "2004", "1037":
		return CategoryTimeout
	}
	d := strings.ToLower(desc)
	switch {
	case strings.Contains(d, "insufficient") || strings.Contains(d, "balance"):
		return CategoryInsufficientFunds
	case strings.Contains(d, "cancel"):
		return CategoryCancelled
	case strings.Contains(d, "msisdn") || strings.Contains(d, "phone") || strings.Contains(d, "invalid number"):
		return CategoryInvalidNumber
	case strings.Contains(d, "timeout") || strings.Contains(d, "timed out") || strings.Contains(d, "not reachable"):
		return CategoryTimeout
	}
	return CategoryUnknown
}

// CategoryMessage is the text shown to a user for a failure category.
func CategoryMessage(category string) string {
	switch category {
	case CategoryInsufficientFunds:
		return "Payment could not be completed: insufficient M-Pesa balance. Please top up and retry."
	case CategoryCancelled:
		return "Payment was cancelled on your phone. Please retry when ready."
	case CategoryInvalidNumber:
		return "Payment could not be completed: the phone number is not registered for M-Pesa."
	case CategoryTimeout:
		return "Payment request timed out. Please retry."
	}
	return "Payment could not be completed, please retry."
}
