package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"ipcam-relay/internal/metrics"
)

func TestRequestLogger_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/api/hls", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/hls?url=http%3A%2F%2Fcam.local%2Findex.m3u8&username=admin&password=hunter2", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked into log output: %s", out)
	}
	if !strings.Contains(out, "REDACTED") {
		t.Errorf("expected redaction marker in log output: %s", out)
	}
}

func TestCORS_HeadersOnEveryResponse(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	e.GET("/api/stream", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stream", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", v)
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(v, "OPTIONS") {
		t.Errorf("Access-Control-Allow-Methods = %q, want OPTIONS listed", v)
	}
	if v := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(v, "Content-Range") {
		t.Errorf("Access-Control-Expose-Headers = %q, want Content-Range listed", v)
	}
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	e := echo.New()
	e.Use(CORS())
	handlerRan := false
	e.GET("/api/hls", func(c echo.Context) error {
		handlerRan = true
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/hls", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if handlerRan {
		t.Error("preflight reached the route handler")
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", v)
	}
}

func TestNoCache(t *testing.T) {
	h := http.Header{}
	NoCache(h)
	if h.Get("Cache-Control") != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", h.Get("Cache-Control"))
	}
	if h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Errorf("Pragma = %q, Expires = %q", h.Get("Pragma"), h.Get("Expires"))
	}
}

func TestSecurityHeaders_StripsHopByHop(t *testing.T) {
	e := echo.New()
	e.Use(SecurityHeaders())

	var gotConnection string
	e.GET("/test", func(c echo.Context) error {
		gotConnection = c.Request().Header.Get("Connection")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if gotConnection != "" {
		t.Errorf("Connection header should be stripped, got %q", gotConnection)
	}
	if v := rec.Header().Get("X-Content-Type-Options"); v != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", v, "nosniff")
	}
}

func TestMetricsMiddleware_CountsRequests(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/hls", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/hls?url=x", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() != "ipcam_relay_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path_prefix"] == "/api/hls" {
				found = true
				if labels["status_code"] != "200" {
					t.Errorf("status_code = %q, want 200", labels["status_code"])
				}
				if v := metric.GetCounter().GetValue(); v != 1 {
					t.Errorf("counter value = %v, want 1", v)
				}
			}
		}
	}
	if !found {
		t.Error("expected ipcam_relay_http_requests_total with path_prefix=/api/hls")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New()

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/stream", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "missing url")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/stream", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	for _, f := range families {
		if f.GetName() != "ipcam_relay_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path_prefix"] == "/api/stream" {
				if labels["status_code"] != "400" {
					t.Errorf("status_code = %q, want 400", labels["status_code"])
				}
				return
			}
		}
	}
	t.Error("expected ipcam_relay_http_requests_total with path_prefix=/api/stream")
}

func testDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestLogger_PassesThroughStatus(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(testDiscardLogger()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
