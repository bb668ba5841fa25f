package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"ipcam-relay/internal/classify"
	"ipcam-relay/internal/metrics"
	"ipcam-relay/internal/middleware"
	"ipcam-relay/internal/model"
	"ipcam-relay/internal/rawhttp"
	"ipcam-relay/internal/service"
	"ipcam-relay/internal/session"
)

// RelayHandler serves the camera relay endpoints.
type RelayHandler struct {
	service  *service.RelayService
	sessions *session.Manager
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewRelayHandler creates a RelayHandler. metrics may be nil.
func NewRelayHandler(svc *service.RelayService, sessions *session.Manager, m *metrics.Metrics, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service:  svc,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With("component", "relay_handler"),
	}
}

// HLS relays playlists and segments; rewritten manifests point back here.
func (h *RelayHandler) HLS(c echo.Context) error {
	return h.relay(c, model.FromValues(c.QueryParams()), "/api/hls")
}

// Stream relays by url or by ip/port/path; the storage-listing path in host
// form goes through the raw socket client.
func (h *RelayHandler) Stream(c echo.Context) error {
	return h.relay(c, model.FromValues(c.QueryParams()), "/api/stream")
}

// Proxy relays an arbitrary camera URL given as a query parameter.
func (h *RelayHandler) Proxy(c echo.Context) error {
	return h.relay(c, model.FromValues(c.QueryParams()), "/api/proxy")
}

// proxyRequest is the POST /api/proxy body.
type proxyRequest struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProxyPost relays a camera URL supplied in a JSON body, keeping credentials
// out of the request line.
func (h *RelayHandler) ProxyPost(c echo.Context) error {
	var pr proxyRequest
	if err := c.Bind(&pr); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
	}
	target := model.Target{RawURL: pr.URL}
	target.Cred.Username = pr.Username
	target.Cred.Password = pr.Password
	return h.relay(c, target, "/api/proxy")
}

// Storage fetches and parses a storage listing addressed by url. Unlike the
// generic relay it parses unconditionally, whatever the path looks like.
func (h *RelayHandler) Storage(c echo.Context) error {
	target := model.FromValues(c.QueryParams())

	u, err := target.Resolve()
	if err != nil {
		return h.mapError(c, err)
	}

	sess := h.sessions.Open(c.Request().Context(), u.String(), classify.StorageListing.String())
	defer h.sessions.Close(sess.ID)

	res, err := h.service.FetchListing(sess.Context(), target)
	if err != nil {
		return h.mapError(c, err)
	}
	if res.Message != "" {
		return c.JSON(res.StatusCode, map[string]string{"error": res.Message})
	}
	return c.JSON(http.StatusOK, res.Listing)
}

// relay performs one upstream fetch and composes the client response.
func (h *RelayHandler) relay(c echo.Context, target model.Target, proxyPath string) error {
	// Validate before opening any upstream connection.
	u, err := target.Resolve()
	if err != nil {
		return h.mapError(c, err)
	}

	sess := h.sessions.Open(c.Request().Context(), u.String(), classify.Classify(u.Path, "").String())
	defer h.sessions.Close(sess.ID)
	if h.metrics != nil {
		h.metrics.ActiveSessions.Inc()
		defer h.metrics.ActiveSessions.Dec()
	}

	res, err := h.service.Relay(sess.Context(), target, proxyPath)
	if err != nil {
		return h.mapError(c, err)
	}

	if res.Message != "" {
		return c.JSON(res.StatusCode, map[string]string{"error": res.Message})
	}

	switch res.Kind {
	case classify.Manifest:
		middleware.NoCache(c.Response().Header())
		return c.Blob(http.StatusOK, res.ContentType, []byte(res.Playlist))

	case classify.StorageListing:
		return c.JSON(http.StatusOK, res.Listing)

	default:
		return h.stream(c, sess, res)
	}
}

// stream relays a live body chunk-by-chunk. The upstream reader is the only
// buffer; memory stays bounded however large or long-lived the stream is.
func (h *RelayHandler) stream(c echo.Context, sess *session.Session, res *service.Result) error {
	defer func() { _ = res.Body.Close() }()

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, res.ContentType)

	switch res.Kind {
	case classify.MJPEG:
		header.Set("Connection", "keep-alive")
		middleware.NoCache(header)
	case classify.Segment:
		middleware.NoCache(header)
	}

	c.Response().WriteHeader(res.StatusCode)

	// Flush after every chunk: MJPEG frames must reach the viewer as they
	// arrive, and io.Copy propagates backpressure from the client socket
	// back to the upstream read.
	n, err := io.Copy(flushWriter{c.Response()}, res.Body)
	sess.AddBytes(n)
	if h.metrics != nil {
		h.metrics.BytesStreamed.WithLabelValues(res.Kind.String()).Add(float64(n))
	}
	if err != nil {
		// Headers are already sent; the client sees a truncated body and a
		// closed connection, not a hang.
		h.logger.Warn("stream aborted",
			"err", err,
			"kind", res.Kind.String(),
			"bytes", n,
		)
	}
	return nil
}

// flushWriter flushes the response after every write so live frames are not
// held in server buffers.
type flushWriter struct {
	res *echo.Response
}

func (w flushWriter) Write(p []byte) (int, error) {
	n, err := w.res.Write(p)
	if err == nil {
		w.res.Flush()
	}
	return n, err
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("relay error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	switch {
	case errors.Is(err, model.ErrMissingTarget):
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "missing url or ip/port/path parameters",
		})

	case errors.Is(err, rawhttp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "camera request timed out",
		})

	case errors.Is(err, rawhttp.ErrEmptyResponse):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "camera sent an unreadable response",
		})

	case errors.Is(err, context.Canceled):
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "camera host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "camera request timed out",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "camera connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "camera request failed",
	})
}
