// Package playlist rewrites HLS manifests so every segment reference
// re-enters the relay instead of pointing at the camera directly.
package playlist

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"ipcam-relay/internal/auth"
)

// tsFilePattern extracts a bare segment filename from a malformed firmware
// line (embedded absolute URL, junk query suffix, or both).
var tsFilePattern = regexp.MustCompile(`([^/?\s]+\.ts)`)

// Rewriter turns camera segment references into relay-relative URLs.
type Rewriter struct {
	// ProxyPath is the relay endpoint rewritten lines point at, e.g. "/api/hls".
	ProxyPath string
	// SegmentDir is the camera's live-segment directory used to re-root
	// filenames extracted from malformed lines, e.g. "/live/0/".
	SegmentDir string
}

// Rewrite processes a playlist fetched from base. Directive and blank lines
// pass through byte-for-byte; every other line is treated as a segment
// reference and replaced with a relay URL carrying the resolved upstream
// target and, when present, the camera credential. Lines that cannot be
// parsed are left unchanged so a single bad line cannot break playback of
// the rest of the stream. Line count and order are always preserved.
func (rw *Rewriter) Rewrite(text string, base *url.URL, cred auth.Credential) string {
	lines := strings.Split(text, "\n")

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		target, ok := rw.resolveSegment(trimmed, base)
		if !ok {
			continue
		}
		lines[i] = rw.proxyURL(target, cred)
	}

	return strings.Join(lines, "\n")
}

// resolveSegment turns one reference line into an absolute upstream URL.
func (rw *Rewriter) resolveSegment(line string, base *url.URL) (string, bool) {
	if base == nil {
		return "", false
	}

	// Some firmware emits segment lines like
	// "http://10.0.0.5/live/0/seg12.ts?basic=" or "seg12.ts?" — the query
	// suffix is junk and the embedded path cannot be trusted. Extract just
	// the filename and re-root it under the live-segment directory.
	if strings.Contains(line, ".ts?") {
		m := tsFilePattern.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		u := url.URL{
			Scheme: base.Scheme,
			Host:   base.Host,
			Path:   path.Join(rw.SegmentDir, m[1]),
		}
		return u.String(), true
	}

	ref, err := url.Parse(line)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}

// proxyURL builds the relay-relative URL a client follows to re-fetch one
// segment through this proxy.
func (rw *Rewriter) proxyURL(target string, cred auth.Credential) string {
	q := url.Values{}
	q.Set("url", target)
	if !cred.IsZero() {
		q.Set("username", cred.Username)
		q.Set("password", cred.Password)
	}
	return rw.ProxyPath + "?" + q.Encode()
}
