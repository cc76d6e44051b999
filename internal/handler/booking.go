package handler

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/model"
    "github.com/iliyamo/event-ticketing/internal/service"
)

// BookingHandler serves the attendee booking endpoints, the public
// availability listing and the admin sweep trigger.
type BookingHandler struct {
    Bookings  *service.Bookings
    Reclaimer *service.Reclaimer
}

// NewBookingHandler panics if a dependency is missing.
func NewBookingHandler(b *service.Bookings, r *service.Reclaimer) *BookingHandler {
    if b == nil || r == nil {
        panic("nil service passed to NewBookingHandler")
    }
    return &BookingHandler{Bookings: b, Reclaimer: r}
}

// ----- DTOs -----

type createBookingReq struct {
    EventID      uint64 `json:"event_id"`
    TicketTypeID uint64 `json:"ticket_type_id"`
    Quantity     int    `json:"quantity"`
    PromoCode    string `json:"promo_code"`
}

type ticketDTO struct {
    ID           uint64  `json:"id"`
    TicketNumber string  `json:"ticket_number"`
    QRPayload    string  `json:"qr_payload"`
    QRPath       *string `json:"qr_path,omitempty"`
    IsValid      bool    `json:"is_valid"`
}

type bookingDTO struct {
    ID                  uint64      `json:"id"`
    BookingNumber       string      `json:"booking_number"`
    EventID             uint64      `json:"event_id"`
    TicketTypeID        uint64      `json:"ticket_type_id"`
    Quantity            int         `json:"quantity"`
    TotalAmountCents    int64       `json:"total_amount_cents"`
    DiscountAmountCents int64       `json:"discount_amount_cents"`
    Status              string      `json:"status"`
    PaymentStatus       string      `json:"payment_status"`
    PaymentID           *uint64     `json:"payment_id,omitempty"`
    ReservedUntil       *time.Time  `json:"reserved_until,omitempty"`
    ConfirmedAt         *time.Time  `json:"confirmed_at,omitempty"`
    CancelledAt         *time.Time  `json:"cancelled_at,omitempty"`
    CancelReason        *string     `json:"cancel_reason,omitempty"`
    CreatedAt           time.Time   `json:"created_at"`
    Tickets             []ticketDTO `json:"tickets,omitempty"`
}

type bookingResp struct {
    Booking         bookingDTO `json:"booking"`
    PaymentRequired bool       `json:"payment_required"`
}

func toBookingDTO(b model.Booking, tickets []model.Ticket) bookingDTO {
    out := bookingDTO{
        ID:                  b.ID,
        BookingNumber:       b.BookingNumber,
        EventID:             b.EventID,
        TicketTypeID:        b.TicketTypeID,
        Quantity:            b.Quantity,
        TotalAmountCents:    b.TotalAmountCents,
        DiscountAmountCents: b.DiscountAmountCents,
        Status:              b.Status,
        PaymentStatus:       b.PaymentStatus,
        PaymentID:           b.PaymentID,
        ReservedUntil:       b.ReservedUntil,
        ConfirmedAt:         b.ConfirmedAt,
        CancelledAt:         b.CancelledAt,
        CancelReason:        b.CancelReason,
        CreatedAt:           b.CreatedAt,
    }
    for _, t := range tickets {
        out.Tickets = append(out.Tickets, ticketDTO{
            ID: t.ID, TicketNumber: t.TicketNumber, QRPayload: t.QRPayload, QRPath: t.QRPath, IsValid: t.IsValid,
        })
    }
    return out
}

// Create handles POST /v1/bookings.  Paid bookings come back pending with
// a reserved_until deadline; free ones come back confirmed with tickets.
func (h *BookingHandler) Create(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req createBookingReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.EventID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "event_id is required"})
    }
    if req.Quantity == 0 {
        req.Quantity = 1
    }

    ctx, cancel := withTimeout(c, requestTimeout)
    defer cancel()
    res, err := h.Bookings.Create(ctx, service.CreateBookingInput{
        UserID:       userID,
        EventID:      req.EventID,
        TicketTypeID: req.TicketTypeID,
        Quantity:     req.Quantity,
        PromoCode:    strings.TrimSpace(req.PromoCode),
    })
    if err != nil {
        return respondError(c, "create booking", err)
    }
    return c.JSON(http.StatusCreated, bookingResp{
        Booking:         toBookingDTO(res.Booking, res.Tickets),
        PaymentRequired: res.PaymentRequired,
    })
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    ctx, cancel := withTimeout(c, requestTimeout)
    defer cancel()
    res, err := h.Bookings.Get(ctx, userID, id)
    if err != nil {
        return respondError(c, "get booking", err)
    }
    return c.JSON(http.StatusOK, bookingResp{
        Booking:         toBookingDTO(res.Booking, res.Tickets),
        PaymentRequired: res.PaymentRequired,
    })
}

// List handles GET /v1/my-bookings.
func (h *BookingHandler) List(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := withTimeout(c, requestTimeout)
    defer cancel()
    list, err := h.Bookings.List(ctx, userID)
    if err != nil {
        return respondError(c, "list bookings", err)
    }
    out := make([]bookingDTO, 0, len(list))
    for _, b := range list {
        out = append(out, toBookingDTO(b, nil))
    }
    return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// Cancel handles POST /v1/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
    userID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
    }
    ctx, cancel := withTimeout(c, requestTimeout)
    defer cancel()
    b, err := h.Bookings.Cancel(ctx, userID, id)
    if err != nil {
        return respondError(c, "cancel booking", err)
    }
    return c.JSON(http.StatusOK, echo.Map{"booking": toBookingDTO(*b, nil)})
}

type ticketTypeDTO struct {
    ID          uint64     `json:"id"`
    Name        string     `json:"name"`
    PriceCents  int64      `json:"price_cents"`
    Unlimited   bool       `json:"unlimited"`
    Available   *int       `json:"available,omitempty"`
    MinPerOrder int        `json:"min_per_order"`
    MaxPerOrder int        `json:"max_per_order"`
    SalesStart  *time.Time `json:"sales_start,omitempty"`
    SalesEnd    *time.Time `json:"sales_end,omitempty"`
    SoldOut     bool       `json:"sold_out"`
}

// TicketTypes handles GET /v1/events/:id/ticket-types, the public live
// availability listing.
func (h *BookingHandler) TicketTypes(c echo.Context) error {
    id, ok := pathID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid event id"})
    }
    ctx, cancel := withTimeout(c, requestTimeout)
    defer cancel()
    list, err := h.Bookings.TicketTypes(ctx, id)
    if err != nil {
        return respondError(c, "list ticket types", err)
    }
    out := make([]ticketTypeDTO, 0, len(list))
    for _, t := range list {
        d := ticketTypeDTO{
            ID:          t.TicketType.ID,
            Name:        t.TicketType.Name,
            PriceCents:  t.TicketType.PriceCents,
            Unlimited:   t.Availability.Unlimited,
            MinPerOrder: t.TicketType.MinPerOrder,
            MaxPerOrder: t.TicketType.MaxPerOrder,
            SalesStart:  t.TicketType.SalesStart,
            SalesEnd:    t.TicketType.SalesEnd,
        }
        if !d.Unlimited {
            n := t.Availability.Available
            d.Available = &n
            d.SoldOut = n == 0
        }
        out = append(out, d)
    }
    return c.JSON(http.StatusOK, echo.Map{"event_id": id, "ticket_types": out})
}

// ReleaseExpired handles POST /v1/bookings/release-expired (admin).
func (h *BookingHandler) ReleaseExpired(c echo.Context) error {
    ctx, cancel := withTimeout(c, 30*time.Second)
    defer cancel()
    n, err := h.Reclaimer.SweepNow(ctx)
    if err != nil {
        return respondError(c, "release expired", err)
    }
    return c.JSON(http.StatusOK, echo.Map{"released": n})
}
