// Package model defines shared types for the relay.
package model

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"ipcam-relay/internal/auth"
)

// ErrMissingTarget is returned when a request carries neither a url
// parameter nor a complete ip/port/path set.
var ErrMissingTarget = errors.New("missing url or ip/port/path parameters")

// Target identifies one upstream camera resource for a single relay call.
// It is request-scoped and never persisted.
type Target struct {
	// RawURL is the upstream URL as supplied by the client; may be relative
	// when Base is set (segment references from a rewritten manifest).
	RawURL string
	// Base is the absolute URL the enclosing manifest was fetched from.
	Base string
	// Host, Port and Path form the host-relative addressing mode.
	Host string
	Port string
	Path string
	// Cred is the camera credential to inject upstream.
	Cred auth.Credential
}

// FromValues builds a Target from query or form parameters.
func FromValues(v url.Values) Target {
	return Target{
		RawURL: v.Get("url"),
		Base:   v.Get("baseUrl"),
		Host:   v.Get("ip"),
		Port:   v.Get("port"),
		Path:   v.Get("path"),
		Cred:   auth.FromValues(v),
	}
}

// HostForm reports whether the target uses ip/port/path addressing.
func (t Target) HostForm() bool {
	return t.RawURL == "" && t.Host != ""
}

// Resolve returns the absolute upstream URL, resolving a relative RawURL
// against Base or assembling the host form. ErrMissingTarget is returned
// before any network activity when the target is incomplete.
func (t Target) Resolve() (*url.URL, error) {
	if t.RawURL != "" {
		u, err := url.Parse(t.RawURL)
		if err != nil {
			return nil, fmt.Errorf("parse url parameter: %w", err)
		}
		if u.Host != "" {
			return u, nil
		}
		if t.Base == "" {
			return nil, fmt.Errorf("relative url %q: %w", t.RawURL, ErrMissingTarget)
		}
		base, err := url.Parse(t.Base)
		if err != nil {
			return nil, fmt.Errorf("parse baseUrl parameter: %w", err)
		}
		return base.ResolveReference(u), nil
	}

	if t.Host == "" || t.Port == "" || t.Path == "" {
		return nil, ErrMissingTarget
	}
	if _, err := strconv.Atoi(t.Port); err != nil {
		return nil, fmt.Errorf("port %q is not numeric: %w", t.Port, ErrMissingTarget)
	}
	p := t.Path
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return url.Parse("http://" + t.Host + ":" + t.Port + p)
}

// ProxyResponse represents the upstream response to be relayed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
