// Package auth builds Basic-Auth headers from per-request camera credentials.
package auth

import (
	"encoding/base64"
	"net/url"
)

// Credential is a camera username/password pair. It is constructed per
// request and never stored.
type Credential struct {
	Username string
	Password string
}

// FromValues reads username/password query or form parameters.
func FromValues(v url.Values) Credential {
	return Credential{
		Username: v.Get("username"),
		Password: v.Get("password"),
	}
}

// IsZero reports whether either field is empty. Cameras in the field reject
// `Basic :`-style tokens, so a half-filled pair is treated as no credential.
func (c Credential) IsZero() bool {
	return c.Username == "" || c.Password == ""
}

// Header returns the Authorization header value, or "" when the credential
// is absent or incomplete.
func (c Credential) Header() string {
	if c.IsZero() {
		return ""
	}
	token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	return "Basic " + token
}
