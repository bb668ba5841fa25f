package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORS returns middleware emitting the permissive cross-origin headers the
// viewer page needs: it runs on a different origin/port than both the relay
// and the camera, and media elements issue Range requests.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
			h.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Range")
			h.Set(echo.HeaderAccessControlExposeHeaders, "Content-Range, Content-Length")
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}

// NoCache sets the aggressive anti-caching headers live media requires;
// browsers and intermediaries must never cache a live stream or playlist.
func NoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}
