// Package mpesa is a thin client for the Safaricom Daraja STK-push API:
// OAuth token acquisition, push initiation, push status query and the
// asynchronous callback body.  It performs no retries; retry policy
// belongs to the caller.
package mpesa

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ResultCode is a provider result code.  Daraja sends it as a number in
// callbacks and as a string in query responses; both decode to the same
// decimal text.
type ResultCode string

// ResultSuccess is the only code meaning the customer paid.
const ResultSuccess ResultCode = "0"

// ResultAmbiguous is the timeout code that may precede a late success.
const ResultAmbiguous ResultCode = "2004"

func (c *ResultCode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = ResultCode(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = ResultCode(n.String())
	return nil
}

// Outcome is the interpretation of a result code.
type Outcome int

const (
	OutcomePending   Outcome = iota // no result yet
	OutcomeSuccess                  // customer paid
	OutcomeFailed                   // terminal failure
	OutcomeAmbiguous                // 2004: may still turn into success
)

// Classify interprets a result code.  Any non-zero code other than 2004
// is terminal.
func Classify(code ResultCode) Outcome {
	switch code {
	case "":
		return OutcomePending
	case ResultSuccess:
		return OutcomeSuccess
	case ResultAmbiguous:
		return OutcomeAmbiguous
	}
	return OutcomeFailed
}

// InitiateRequest is an STK push for Amount whole currency units.
type InitiateRequest struct {
	Phone       string
	Amount      int64
	Reference   string
	Description string
}

// InitiateResult is the provider acknowledgement of a push.
type InitiateResult struct {
	Accepted            bool
	CheckoutRequestID   string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
	CustomerMessage     string
	Raw                 []byte
}

// QueryResult is the outcome of a push status query.  Pending is set when
// the provider reports the transaction is still being processed.
type QueryResult struct {
	ResultCode ResultCode
	ResultDesc string
	Pending    bool
	Raw        []byte
}

// Callback is the body posted to the callback URL.
type Callback struct {
	Body struct {
		StkCallback StkCallback `json:"stkCallback"`
	} `json:"Body"`
}

// StkCallback carries the push result.
type StkCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        ResultCode        `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata lists the name/value items of a successful push.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem is one callback metadata entry.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Meta returns the named metadata value as text, or "" when absent.
func (s StkCallback) Meta(name string) string {
	if s.CallbackMetadata == nil {
		return ""
	}
	for _, it := range s.CallbackMetadata.Item {
		if it.Name != name || len(it.Value) == 0 {
			continue
		}
		var str string
		if err := json.Unmarshal(it.Value, &str); err == nil {
			return str
		}
		var n json.Number
		if err := json.Unmarshal(it.Value, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

// Receipt returns the MpesaReceiptNumber of a successful push.
func (s StkCallback) Receipt() string { return s.Meta("MpesaReceiptNumber") }

// Amount returns the paid amount in whole units, or 0 when absent.
func (s StkCallback) Amount() int64 {
	f, err := strconv.ParseFloat(s.Meta("Amount"), 64)
	if err != nil {
		return 0
	}
	return int64(f)
}
