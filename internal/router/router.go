package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/event-ticketing/internal/handler"    // handlers implementing each endpoint
	"github.com/iliyamo/event-ticketing/internal/middleware" // JWT authentication and role enforcement
)

// RegisterRoutes registers the health check.  db may be nil when the
// in-memory store is in use.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers all authentication-related routes.  Token
// operations live under /v1/auth, the profile under /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Logout accepts a refresh token in the body or a bearer access token,
	// so it is not behind JWTAuth.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterPublic registers unauthenticated endpoints: live availability
// (behind the Redis response cache) and the payment provider
// callback.
func RegisterPublic(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/events/:id/ticket-types", b.TicketTypes, cache)
	e.POST("/v1/payments/callback", p.Callback)
}
