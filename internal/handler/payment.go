package handler

import (
    "crypto/subtle"
    "encoding/json"
    "log"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/mpesa"
    "github.com/iliyamo/event-ticketing/internal/service"
)

// gatewayTimeout covers the STK push round trip during initiation.
const gatewayTimeout = 30 * time.Second

// PaymentHandler serves payment initiation, status polling and the
// provider callback.
type PaymentHandler struct {
    Payments      *service.Payments
    CallbackToken string // shared secret expected as ?token= on callbacks; empty disables the check
}

// NewPaymentHandler panics if the service is missing.
func NewPaymentHandler(p *service.Payments, callbackToken string) *PaymentHandler {
    if p == nil {
        panic("nil service passed to NewPaymentHandler")
    }
    return &PaymentHandler{Payments: p, CallbackToken: callbackToken}
}

type initiateReq struct {
    BookingID uint64 `json:"booking_id"`
    Phone     string `json:"phone"`
}

type paymentDTO struct {
    ID            uint64     `json:"id"`
    TransactionID string     `json:"transaction_id"`
    PaymentType   string     `json:"payment_type"`
    AmountCents   int64      `json:"amount_cents"`
    Phone         string     `json:"phone"`
    Status        string     `json:"status"`
    ReceiptNumber *string    `json:"receipt_number,omitempty"`
    CreatedAt     time.Time  `json:"created_at"`
    CompletedAt   *time.Time `json:"completed_at,omitempty"`
    FailedAt      *time.Time `json:"failed_at,omitempty"`
}

func toPaymentDTO(p model.Payment) paymentDTO {
    return paymentDTO{
        ID:            p.ID,
        TransactionID: p.TransactionID,
        PaymentType:   p.PaymentType,
        AmountCents:   p.AmountCents,
        Phone:         p.Phone,
        Status:        p.Status,
        ReceiptNumber: p.ReceiptNumber,
        CreatedAt:     p.CreatedAt,
        CompletedAt:   p.CompletedAt,
        FailedAt:      p.FailedAt,
    }
}

// Initiate handles POST /v1/payments/initiate.  A 202 means the prompt
// was sent to the phone; the client then polls the status endpoint.
func (h *PaymentHandler) Initiate(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req initiateReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.BookingID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id is required"})
    }
    ctx, cancel := withTimeout(c, requestTimeout+gatewayTimeout)
    defer cancel()
    p, err := h.Payments.InitiateTicketPayment(ctx, userID, req.BookingID, strings.TrimSpace(req.Phone))
    if err != nil {
        return respondError(c, "initiate payment", err)
    }
    return c.JSON(http.StatusAccepted, echo.Map{
        "payment": toPaymentDTO(*p),
        "message": "check your phone to complete the payment",
    })
}

// PayPromotion handles POST /v1/promotions/:id/pay (partner).
func (h *PaymentHandler) PayPromotion(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid promotion id"})
    }
    var req struct {
        Phone string `json:"phone"`
    }
    _ = c.Bind(&req)
    ctx, cancel := withTimeout(c, requestTimeout+gatewayTimeout)
    defer cancel()
    p, err := h.Payments.InitiatePromotionPayment(ctx, userID, id, strings.TrimSpace(req.Phone))
    if err != nil {
        return respondError(c, "initiate promotion payment", err)
    }
    return c.JSON(http.StatusAccepted, echo.Map{"payment": toPaymentDTO(*p)})
}

// Status handles GET /v1/payments/:id/status.
func (h *PaymentHandler) Status(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment id"})
    }
    ctx, cancel := withTimeout(c, requestTimeout+gatewayTimeout)
    defer cancel()
    v, err := h.Payments.CheckStatus(ctx, userID, id)
    if err != nil {
        return respondError(c, "payment status", err)
    }
    body := echo.Map{"payment": toPaymentDTO(v.Payment)}
    if v.BookingID != 0 {
        body["booking_id"] = v.BookingID
        body["booking_status"] = v.BookingStatus
    }
    if v.Message != "" {
        body["message"] = v.Message
    }
    return c.JSON(http.StatusOK, body)
}

// Callback handles POST /v1/payments/callback from the provider.  The
// provider only needs an acknowledgement; the outcome is recorded in the
// payment row.
func (h *PaymentHandler) Callback(c echo.Context) error {
    if h.CallbackToken != "" {
        got := c.QueryParam("token")
        if subtle.ConstantTimeCompare([]byte(got), []byte(h.CallbackToken)) != 1 {
            log.Printf("payment-callback: rejected request from %s with bad token", c.RealIP())
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
        }
    }
    var cb mpesa.Callback
    if err := json.NewDecoder(c.Request().Body).Decode(&cb); err != nil || cb.Body.StkCallback.CheckoutRequestID == "" {
        log.Printf("payment-callback: malformed body: %v", err)
        return c.JSON(http.StatusBadRequest, echo.Map{"ResultCode": 1, "ResultDesc": "malformed callback"})
    }
    ctx, cancel := withTimeout(c, requestTimeout)
    defer cancel()
    if err := h.Payments.HandleCallback(ctx, cb); err != nil {
        log.Printf("payment-callback: checkout=%s: %v", cb.Body.StkCallback.CheckoutRequestID, err)
        return c.JSON(http.StatusInternalServerError, echo.Map{"ResultCode": 1, "ResultDesc": "callback not processed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"ResultCode": 0, "ResultDesc": "Accepted"})
}
