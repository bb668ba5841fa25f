// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"ipcam-relay/internal/classify"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/ipcam-relay/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Relay    RelayConfig    `toml:"relay"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// UpstreamConfig holds camera connection settings.
type UpstreamConfig struct {
	// DialTimeoutSeconds bounds TCP connect to a camera.
	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
	// HeaderTimeoutSeconds bounds the wait for upstream response headers.
	HeaderTimeoutSeconds int `toml:"header_timeout_seconds"`
	// FetchTimeoutSeconds bounds full-buffer fetches (manifests, storage
	// listings). Streaming relays are unbounded and end on client disconnect.
	FetchTimeoutSeconds int `toml:"fetch_timeout_seconds"`
	IdleConnections     int `toml:"idle_connections"`
}

// RelayConfig holds protocol-specific relay settings.
type RelayConfig struct {
	// SegmentDir is the camera live-segment directory used to re-root
	// malformed playlist lines.
	SegmentDir string `toml:"segment_dir"`
	// StoragePath is the camera's storage-listing endpoint path.
	StoragePath string `toml:"storage_path"`
	// DownloadPrefix is the camera's recorded-clip directory tree.
	DownloadPrefix string `toml:"download_prefix"`
	// RawTimeoutSeconds bounds the raw-socket storage-listing fetch.
	RawTimeoutSeconds int `toml:"raw_timeout_seconds"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/ipcam-relay/config.toml then configs/config.toml. A missing config
// file is not an error: every camera parameter arrives per-request, so the
// defaults make a usable server.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	for _, v := range []struct {
		name string
		val  int
	}{
		{"upstream.dial_timeout_seconds", c.Upstream.DialTimeoutSeconds},
		{"upstream.header_timeout_seconds", c.Upstream.HeaderTimeoutSeconds},
		{"upstream.fetch_timeout_seconds", c.Upstream.FetchTimeoutSeconds},
		{"upstream.idle_connections", c.Upstream.IdleConnections},
		{"relay.raw_timeout_seconds", c.Relay.RawTimeoutSeconds},
	} {
		if v.val < 0 {
			return fmt.Errorf("%s must be non-negative; got %d", v.name, v.val)
		}
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	if d := c.Relay.SegmentDir; d != "" && (!strings.HasPrefix(d, "/") || !strings.HasSuffix(d, "/")) {
		return fmt.Errorf("relay.segment_dir must start and end with '/'; got %q", d)
	}
	if p := c.Relay.StoragePath; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("relay.storage_path must start with '/'; got %q", p)
	}
	if p := c.Relay.DownloadPrefix; p != "" && !strings.HasPrefix(p, "/") {
		return fmt.Errorf("relay.download_prefix must start with '/'; got %q", p)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api/hls", "/api/stream", "/api/storage", "/api/proxy", "/healthz", "/relay/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields, zero means "unset" because TOML cannot distinguish
// between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 1 * 1024 * 1024 // inbound bodies are small JSON documents
	}
	if c.Upstream.DialTimeoutSeconds == 0 {
		c.Upstream.DialTimeoutSeconds = 10
	}
	if c.Upstream.HeaderTimeoutSeconds == 0 {
		c.Upstream.HeaderTimeoutSeconds = 15
	}
	if c.Upstream.FetchTimeoutSeconds == 0 {
		c.Upstream.FetchTimeoutSeconds = 10
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Relay.SegmentDir == "" {
		c.Relay.SegmentDir = "/live/0/"
	}
	if c.Relay.StoragePath == "" {
		c.Relay.StoragePath = classify.StoragePath
	}
	if c.Relay.DownloadPrefix == "" {
		c.Relay.DownloadPrefix = classify.DownloadPrefix
	}
	if c.Relay.RawTimeoutSeconds == 0 {
		c.Relay.RawTimeoutSeconds = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
