// Package service implements the core relay orchestration: one upstream
// fetch per request, dispatched to manifest rewriting, storage parsing, or
// plain streaming.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"ipcam-relay/internal/classify"
	"ipcam-relay/internal/client"
	"ipcam-relay/internal/config"
	"ipcam-relay/internal/model"
	"ipcam-relay/internal/playlist"
	"ipcam-relay/internal/rawhttp"
	"ipcam-relay/internal/storage"
)

// maxTextBytes caps full-buffer reads (manifests, storage listings). Real
// playlists are a few KB; anything near this limit is not a playlist.
const maxTextBytes = 4 << 20

// Result is the outcome of one relay call. Exactly one of Body, Playlist or
// Listing is set for 2xx results; Message carries the short error text for
// forwarded upstream failures.
type Result struct {
	Kind        classify.Kind
	StatusCode  int
	ContentType string

	// Body is the live upstream stream for streaming kinds. The caller
	// owns it and must close it.
	Body io.ReadCloser
	// Playlist is the rewritten manifest text.
	Playlist string
	// Listing is the parsed storage listing.
	Listing *storage.Listing
	// Message is a short error body forwarded with a non-2xx StatusCode.
	Message string
}

// RelayService performs upstream fetches and response composition.
type RelayService struct {
	client       *client.CameraClient
	raw          *rawhttp.Client
	logger       *slog.Logger
	classifier   classify.Classifier
	segmentDir   string
	fetchTimeout time.Duration
}

// NewRelayService creates a RelayService.
func NewRelayService(c *client.CameraClient, raw *rawhttp.Client, cfg *config.Config, logger *slog.Logger) *RelayService {
	return &RelayService{
		client: c,
		raw:    raw,
		logger: logger.With("component", "relay_service"),
		classifier: classify.Classifier{
			StoragePath:    cfg.Relay.StoragePath,
			DownloadPrefix: cfg.Relay.DownloadPrefix,
		},
		segmentDir:   cfg.Relay.SegmentDir,
		fetchTimeout: time.Duration(cfg.Upstream.FetchTimeoutSeconds) * time.Second,
	}
}

// Relay resolves the target, performs exactly one upstream fetch and returns
// the composed result. proxyPath is the relay endpoint rewritten manifest
// lines should point back at (the endpoint serving the current request).
//
// Relaying holds no state on the service; concurrent calls are independent.
func (s *RelayService) Relay(ctx context.Context, target model.Target, proxyPath string) (*Result, error) {
	u, err := target.Resolve()
	if err != nil {
		return nil, err
	}

	// The storage-listing endpoint in host form does not speak conformant
	// HTTP; it gets the raw socket client.
	if target.HostForm() && s.classifier.Classify(target.Path, "") == classify.StorageListing {
		return s.relayRawStorage(ctx, target)
	}

	preKind := s.classifier.Classify(u.Path, "")

	fetchCtx := ctx
	if !preKind.Streaming() {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Accept", "*/*")
	if ah := target.Cred.Header(); ah != "" {
		header.Set("Authorization", ah)
	}

	resp, err := s.client.Get(fetchCtx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		s.logger.Warn("upstream error status",
			"host", u.Host,
			"status", resp.StatusCode,
		)
		return &Result{
			StatusCode:  resp.StatusCode,
			ContentType: "text/plain",
			Message:     fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}, nil
	}

	kind := s.classifier.Classify(u.Path, resp.Header.Get("Content-Type"))

	switch kind {
	case classify.Manifest:
		defer func() { _ = resp.Body.Close() }()
		return s.composeManifest(resp.Body, u, target, proxyPath)

	case classify.StorageListing:
		defer func() { _ = resp.Body.Close() }()
		return s.composeListing(resp.Body)

	default:
		return &Result{
			Kind:        kind,
			StatusCode:  resp.StatusCode,
			ContentType: s.streamContentType(kind, resp.Header.Get("Content-Type")),
			Body:        resp.Body,
		}, nil
	}
}

// FetchListing fetches and parses a storage listing regardless of what the
// target path looks like: the /api/storage endpoint is explicit about intent,
// so no classification happens. Host-form targets use the raw socket client.
func (s *RelayService) FetchListing(ctx context.Context, target model.Target) (*Result, error) {
	u, err := target.Resolve()
	if err != nil {
		return nil, err
	}
	if target.HostForm() {
		return s.relayRawStorage(ctx, target)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Accept", "*/*")
	if ah := target.Cred.Header(); ah != "" {
		header.Set("Authorization", ah)
	}

	resp, err := s.client.Get(fetchCtx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Result{
			StatusCode:  resp.StatusCode,
			ContentType: "text/plain",
			Message:     fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}, nil
	}

	return s.composeListing(resp.Body)
}

// relayRawStorage fetches the storage listing over the raw socket client and
// parses it.
func (s *RelayService) relayRawStorage(ctx context.Context, target model.Target) (*Result, error) {
	body, err := s.raw.Get(ctx, target.Host, target.Port, target.Path, target.Cred.Header())
	if err != nil {
		return nil, err
	}
	listing := storage.Parse(string(body))
	return &Result{
		Kind:        classify.StorageListing,
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Listing:     &listing,
	}, nil
}

// composeManifest fully reads a playlist (line rewriting needs the whole
// document) and rewrites every segment reference through the relay.
func (s *RelayService) composeManifest(body io.Reader, fetched *url.URL, target model.Target, proxyPath string) (*Result, error) {
	text, err := io.ReadAll(io.LimitReader(body, maxTextBytes))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	rw := playlist.Rewriter{ProxyPath: proxyPath, SegmentDir: s.segmentDir}
	rewritten := rw.Rewrite(string(text), fetched, target.Cred)

	return &Result{
		Kind:        classify.Manifest,
		StatusCode:  http.StatusOK,
		ContentType: "application/vnd.apple.mpegurl",
		Playlist:    rewritten,
	}, nil
}

// composeListing fully reads and parses a storage listing fetched over HTTP.
func (s *RelayService) composeListing(body io.Reader) (*Result, error) {
	text, err := io.ReadAll(io.LimitReader(body, maxTextBytes))
	if err != nil {
		return nil, fmt.Errorf("read storage listing: %w", err)
	}
	listing := storage.Parse(string(text))
	return &Result{
		Kind:        classify.StorageListing,
		StatusCode:  http.StatusOK,
		ContentType: "application/json",
		Listing:     &listing,
	}, nil
}

// streamContentType picks the content type for a streamed body. Segments get
// the canonical MPEG-TS type regardless of what the firmware declared; MJPEG
// keeps the upstream type because the multipart boundary parameter must
// survive; everything else passes through with a binary fallback.
func (s *RelayService) streamContentType(kind classify.Kind, upstream string) string {
	switch kind {
	case classify.Segment:
		return "video/mp2t"
	case classify.MJPEG:
		if upstream != "" {
			return upstream
		}
		return "multipart/x-mixed-replace"
	default:
		if upstream != "" {
			return upstream
		}
		return "application/octet-stream"
	}
}
