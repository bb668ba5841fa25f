// Package client provides the upstream HTTP client for camera fetches.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"ipcam-relay/internal/config"
	"ipcam-relay/internal/metrics"
	"ipcam-relay/internal/model"
)

// CameraClient issues HTTP requests to cameras on the local network.
//
// There is deliberately no overall client timeout: live MJPEG and HLS
// feeds stay open for as long as the viewer watches. Boundedness comes
// from the dial and response-header timeouts here plus per-request
// context deadlines that the service applies to full-buffer fetches.
type CameraClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewCameraClient creates a CameraClient with connection pooling.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewCameraClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *CameraClient {
	transport := &http.Transport{
		MaxIdleConns:          cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost:   cfg.Upstream.IdleConnections,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: time.Duration(cfg.Upstream.HeaderTimeoutSeconds) * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   time.Duration(cfg.Upstream.DialTimeoutSeconds) * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &CameraClient{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "camera_client"),
		metrics:    m,
	}
}

// Do executes an HTTP request against a camera and returns the raw response.
// The caller is responsible for closing the response body.
func (c *CameraClient) Do(req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// Get fetches url with the given headers and returns the response as a
// stream. The caller is responsible for closing the returned body. The
// provided context controls the lifetime of the upstream request: when it
// is canceled (e.g. the viewer disconnects), the upstream socket is torn
// down as well.
func (c *CameraClient) Get(ctx context.Context, url string, header http.Header) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	return c.Do(req)
}
