// Package snapshot persists the browser cookie jar captured after a manual
// login so later export runs can reuse the session.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound means no snapshot has been captured yet.
var ErrNotFound = errors.New("cookie snapshot not found")

// Cookie mirrors the flat record browser-automation tools write, so a
// snapshot produced elsewhere loads unchanged. Expires is unix seconds; -1
// marks a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

func (c Cookie) Session() bool { return c.Expires <= 0 }

func (c Cookie) ExpiresAt() time.Time {
	if c.Session() {
		return time.Time{}
	}
	sec := int64(c.Expires)
	nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// Expired reports whether a persistent cookie's expiry is before now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Session() && c.ExpiresAt().Before(now)
}

// FromHTTP converts a cookie read from a local browser profile.
func FromHTTP(hc *http.Cookie) Cookie {
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   hc.Domain,
		Path:     hc.Path,
		Expires:  -1,
		HTTPOnly: hc.HttpOnly,
		Secure:   hc.Secure,
		SameSite: sameSiteName(hc.SameSite),
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if !hc.Expires.IsZero() {
		c.Expires = float64(hc.Expires.Unix())
	}
	return c
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

// Valid drops cookies that have already expired.
func Valid(cookies []Cookie, now time.Time) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !c.Expired(now) {
			out = append(out, c)
		}
	}
	return out
}

func encode(cookies []Cookie) ([]byte, error) {
	if cookies == nil {
		cookies = []Cookie{}
	}
	return json.MarshalIndent(cookies, "", "  ")
}

func decode(b []byte) ([]Cookie, error) {
	var cookies []Cookie
	if err := json.Unmarshal(b, &cookies); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return cookies, nil
}
