package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"
	"github.com/iliyamo/event-ticketing/internal/middleware"
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterAttendee registers booking and payment endpoints under /v1.  All
// routes require a valid JWT with the ATTENDEE role.  bookingLimit and
// paymentLimit are the per-scope token buckets.
func RegisterAttendee(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler, jwtSecret string, bookingLimit, paymentLimit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAttendee),
	)

	g.POST("/bookings", b.Create, bookingLimit)
	g.GET("/bookings/:id", b.Get)
	g.GET("/my-bookings", b.List)
	g.POST("/bookings/:id/cancel", b.Cancel)

	g.POST("/payments/initiate", p.Initiate, paymentLimit)
	g.GET("/payments/:id/status", p.Status, paymentLimit)
}
