package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires all route handlers onto the Echo instance. OPTIONS
// preflights are answered by the CORS middleware before reaching any route.
func RegisterRoutes(e *echo.Echo, relay *RelayHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/relay/status", health.Status)

	e.GET("/api/hls", relay.HLS)
	e.GET("/api/stream", relay.Stream)
	e.GET("/api/storage", relay.Storage)
	e.GET("/api/proxy", relay.Proxy)
	e.POST("/api/proxy", relay.ProxyPost)
}
