package handler // handler defines http handlers

import (
    "context"
    "errors"
    "log"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/event-ticketing/internal/middleware"
    "github.com/iliyamo/event-ticketing/internal/service"
)

// requestTimeout bounds the store work of a single request.  Payment
// initiation adds the gateway timeout on top of it.
const requestTimeout = 5 * time.Second

var errNoUser = errors.New("invalid user_id in context")

// getUserID extracts the authenticated user set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
    if id, ok := middleware.UserID(c); ok {
        return id, nil
    }
    return 0, errNoUser
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

func withTimeout(c echo.Context, d time.Duration) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), d)
}

// statusFor maps a service error kind onto an HTTP status.
func statusFor(e *service.Error) int {
    switch e.Kind {
    case service.KindValidation:
        if e.Code == service.ErrInvalidQuantity.Code {
            return http.StatusUnprocessableEntity
        }
        return http.StatusBadRequest
    case service.KindConflict:
        return http.StatusConflict
    case service.KindNotFound:
        return http.StatusNotFound
    case service.KindForbidden:
        return http.StatusForbidden
    case service.KindGateway:
        return http.StatusBadGateway
    }
    return http.StatusInternalServerError
}

// respondError writes err as {"error": code, "message": text}.  Anything
// that is not a service error is logged and reported as a 500 without
// detail.
func respondError(c echo.Context, op string, err error) error {
    if se, ok := service.AsError(err); ok {
        body := echo.Map{"error": se.Code, "message": se.Message}
        if se.BookingID != 0 {
            body["booking_id"] = se.BookingID
        }
        return c.JSON(statusFor(se), body)
    }
    if errors.Is(err, context.DeadlineExceeded) {
        log.Printf("handler: %s timed out: %v", op, err)
        return c.JSON(http.StatusGatewayTimeout, echo.Map{"error": "timeout"})
    }
    log.Printf("handler: %s failed: %v", op, err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": op + " failed"})
}
