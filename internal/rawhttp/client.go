// Package rawhttp talks HTTP/1.1 over a bare TCP socket to camera endpoints
// whose response framing defeats a conforming HTTP client.
//
// The firmware behind these endpoints mixes \r\n\r\n, \n\n, a single \r\n or
// a single \n as the header/body boundary, and sometimes omits headers
// entirely. A standard client either hangs waiting for a proper terminator
// or misparses the body, so the only workable approach is to read until the
// remote closes and split heuristically. The fallback chain is deliberate
// interop behavior; do not "fix" it.
package rawhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// ErrTimeout reports that the connect or read-until-close exceeded the
// client's deadline. Distinct from connection-refused style dial failures.
var ErrTimeout = errors.New("rawhttp: timeout talking to camera")

// ErrEmptyResponse reports that the remote closed without sending any bytes.
var ErrEmptyResponse = errors.New("rawhttp: empty response from camera")

// DefaultTimeout bounds connect plus read-until-close.
const DefaultTimeout = 5 * time.Second

// boundaries are tried strictest-first; the first one present in the buffer
// wins.
var boundaries = []string{"\r\n\r\n", "\n\n", "\r\n", "\n"}

// Client fetches one resource over a dedicated TCP connection per call.
type Client struct {
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		timeout: timeout,
		logger:  logger.With("component", "rawhttp_client"),
	}
}

// Get sends a minimal HTTP/1.1 GET to host:port and returns the extracted
// response body. authHeader is the full Authorization value ("Basic ...")
// or "" for none. The connection is closed before Get returns.
func (c *Client) Get(ctx context.Context, host, port, path, authHeader string) ([]byte, error) {
	addr := net.JoinHostPort(host, port)
	deadline := time.Now().Add(c.timeout)

	d := net.Dialer{Timeout: c.timeout, Deadline: deadline}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: dial %s: %v", ErrTimeout, addr, err)
		}
		return nil, fmt.Errorf("rawhttp: dial %s: %w", addr, err)
	}
	defer conn.Close()

	// One absolute deadline covers the write and the read-until-close.
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("rawhttp: set deadline: %w", err)
	}

	var req strings.Builder
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&req, "Host: %s\r\n", addr)
	if authHeader != "" {
		fmt.Fprintf(&req, "Authorization: %s\r\n", authHeader)
	}
	req.WriteString("Connection: close\r\n\r\n")

	if _, err := io.WriteString(conn, req.String()); err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: write to %s: %v", ErrTimeout, addr, err)
		}
		return nil, fmt.Errorf("rawhttp: write to %s: %w", addr, err)
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: read from %s: %v", ErrTimeout, addr, err)
		}
		return nil, fmt.Errorf("rawhttp: read from %s: %w", addr, err)
	}

	c.logger.Debug("raw response received", "addr", addr, "bytes", len(raw))
	return ExtractBody(raw)
}

// ExtractBody splits a raw response buffer at the first boundary pattern
// found, strictest pattern first, and returns the trimmed body. A non-empty
// buffer with no recognizable boundary is returned whole (headerless
// firmware responses); an empty buffer is an error.
func ExtractBody(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyResponse
	}

	s := string(raw)
	for _, b := range boundaries {
		if _, body, ok := strings.Cut(s, b); ok {
			return []byte(strings.TrimSpace(body)), nil
		}
	}
	return []byte(strings.TrimSpace(s)), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
