package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/event-ticketing/internal/clock"
	"github.com/iliyamo/event-ticketing/internal/config"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	// errorCode Daraja returns from the query endpoint while the customer
	// has not answered the prompt yet.
	stillProcessingCode = "500.001.1001"
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

// Client talks to the Daraja API.  It is safe for concurrent use; the
// OAuth token is shared and refreshed shortly before it expires.
type Client struct {
	cfg   config.MpesaConfig
	http  *http.Client
	clock clock.Clock

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewClient builds a client.  A nil httpClient uses a client with the
// configured timeout.
func NewClient(cfg config.MpesaConfig, httpClient *http.Client, clk clock.Clock) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if clk == nil {
		clk = clock.Real()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TransactionType == "" {
		cfg.TransactionType = "CustomerPayBillOnline"
	}
	return &Client{cfg: cfg, http: httpClient, clock: clk}
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode string     `json:"ResponseCode"`
	ResultCode   ResultCode `json:"ResultCode"`
	ResultDesc   string     `json:"ResultDesc"`
}

// errorBody is the shape of Daraja error responses.
type errorBody struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Initiate sends an STK push.  Any outcome other than an accepted push is
// returned as *InitiationError.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if req.Amount < 1 {
		return nil, &InitiationError{Kind: ErrKindRejected, Message: "amount must be at least 1"}
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, &InitiationError{Kind: ErrKindAuth, Err: err}
	}
	ts, password := c.password()
	body := stkPushBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         ts,
		TransactionType:   c.cfg.TransactionType,
		Amount:            req.Amount,
		PartyA:            phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  truncate(req.Reference, 12),
		TransactionDesc:   truncate(req.Description, 13),
	}
	status, raw, err := c.postJSON(ctx, stkPushPath, token, body)
	if err != nil {
		return nil, &InitiationError{Kind: ErrKindNetwork, Err: err}
	}
	if status < 200 || status > 299 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.ErrorCode != "" {
			kind := ErrKindRejected
			if Category(ResultCode(eb.ErrorCode), eb.ErrorMessage) == CategoryInvalidNumber {
				kind = ErrKindInvalidPhone
			}
			return nil, &InitiationError{Kind: kind, StatusCode: status, Code: eb.ErrorCode, Message: eb.ErrorMessage, Raw: raw}
		}
		return nil, &InitiationError{Kind: ErrKindHTTP, StatusCode: status, Raw: raw}
	}
	var resp stkPushResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &InitiationError{Kind: ErrKindHTTP, StatusCode: status, Raw: raw, Err: err}
	}
	if resp.ResponseCode != "0" || resp.CheckoutRequestID == "" {
		return nil, &InitiationError{Kind: ErrKindRejected, StatusCode: status, Code: resp.ResponseCode, Message: resp.ResponseDescription, Raw: raw}
	}
	return &InitiateResult{
		Accepted:            true,
		CheckoutRequestID:   resp.CheckoutRequestID,
		MerchantRequestID:   resp.MerchantRequestID,
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
		Raw:                 raw,
	}, nil
}

// Query asks for the result of a push.  A push the customer has not
// answered yet comes back with Pending set and no error.
func (c *Client) Query(ctx context.Context, checkoutRequestID string) (*QueryResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("mpesa query: token: %w", err)
	}
	ts, password := c.password()
	status, raw, err := c.postJSON(ctx, stkQueryPath, token, stkQueryBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          password,
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("mpesa query: %w", err)
	}
	if status < 200 || status > 299 {
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.ErrorCode == stillProcessingCode {
			return &QueryResult{Pending: true, ResultDesc: eb.ErrorMessage, Raw: raw}, nil
		}
		return nil, fmt.Errorf("mpesa query: status %d: %s", status, truncate(string(raw), 200))
	}
	var resp stkQueryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("mpesa query: decode: %w", err)
	}
	return &QueryResult{
		ResultCode: resp.ResultCode,
		ResultDesc: resp.ResultDesc,
		Pending:    Classify(resp.ResultCode) == OutcomePending,
		Raw:        raw,
	}, nil
}

// password returns the request timestamp and the matching STK password
// base64(shortcode + passkey + timestamp).
func (c *Client) password() (string, string) {
	ts := c.clock.Now().In(eat).Format("20060102150405")
	return ts, base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + ts))
}

// accessToken returns a cached OAuth token, fetching a new one when the
// cached one is within a minute of expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if c.token != "" && now.Before(c.tokenExp) {
		return c.token, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+tokenPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	res, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth status %d", res.StatusCode)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("oauth decode: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("oauth: empty access token")
	}
	ttl, err := strconv.Atoi(tok.ExpiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3599
	}
	c.token = tok.AccessToken
	c.tokenExp = now.Add(time.Duration(ttl)*time.Second - time.Minute)
	return c.token, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, body any) (int, []byte, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
