package middleware

// identity.go holds the context keys JWTAuth writes and the accessors
// handlers and the rate limiter read them through.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// UserID returns the authenticated user's ID.  ok is false on routes that
// did not pass through JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id != 0
}

// Role returns the authenticated user's role, or "" when anonymous.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// identity is the user component of rate limit keys.
func identity(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
