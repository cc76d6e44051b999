package router // router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-ticketing/internal/handler"    // booking and payment handlers
	"github.com/iliyamo/event-ticketing/internal/middleware" // JWT + role middlewares
	"github.com/iliyamo/event-ticketing/internal/model"
)

// RegisterPartner registers PARTNER-scoped endpoints under /v1.
func RegisterPartner(e *echo.Echo, p *handler.PaymentHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RolePartner),
	)
	g.POST("/promotions/:id/pay", p.PayPromotion)
}

// RegisterAdmin registers ADMIN-scoped maintenance endpoints.
func RegisterAdmin(e *echo.Echo, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/bookings/release-expired", b.ReleaseExpired)
}
