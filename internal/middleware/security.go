package middleware

import (
	"github.com/labstack/echo/v4"

	"path-proxy-go/internal/rewrite"
)

// SecurityHeaders returns an Echo middleware that strips hop-by-hop headers from
// the inbound request and sets default response headers. A proxied response
// replaces any of these its target also sent.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rewrite.DropHopByHop(c.Request().Header)

			// Set before next: the handler commits the response.
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Robots-Tag", "noindex, nofollow")

			return next(c)
		}
	}
}
