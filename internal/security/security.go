// Package security provides the pure request-validation primitives for the
// edge proxy: instance-id format checks, origin/referer resolution, domain
// allowlist matching, slug derivation, and the standard response headers.
package security

import (
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ErrUnknownOrigin is returned when neither Origin, Referer, nor the
// request's own Host header yields a parseable hostname.
var ErrUnknownOrigin = errors.New("unknown origin")

// ValidInstanceID reports whether s is a well-formed public instance id:
// non-empty, lowercase alphanumerics and hyphens only.
func ValidInstanceID(s string) bool {
	return s != "" && instanceIDPattern.MatchString(s)
}

// Slug lowercases s and replaces every character outside [a-z0-9] with a
// hyphen. Used to derive clone identifiers from display names.
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// MatchDomain reports whether host matches any pattern in the allowlist.
// A pattern of "*" matches anything; "*.example.com" matches example.com
// and any subdomain of it; anything else is an exact match. Comparison is
// case-insensitive.
func MatchDomain(host string, patterns []string) bool {
	host = strings.ToLower(host)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "*."):
			suffix := p[2:]
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

// RequestHost is the hostname a request claims to come from. SameOrigin is
// set when the value fell back to the request's own Host header because
// neither Origin nor Referer was present.
type RequestHost struct {
	Host       string
	SameOrigin bool
}

// ResolveRequestHost extracts the requesting hostname: Origin first, then
// Referer, then the request's own Host header as a same-origin fallback.
func ResolveRequestHost(r *http.Request) (RequestHost, error) {
	if origin := r.Header.Get("Origin"); origin != "" {
		if h := hostnameOf(origin); h != "" {
			return RequestHost{Host: h}, nil
		}
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if h := hostnameOf(referer); h != "" {
			return RequestHost{Host: h}, nil
		}
	}
	if r.Host != "" {
		return RequestHost{Host: stripPort(r.Host), SameOrigin: true}, nil
	}
	return RequestHost{}, ErrUnknownOrigin
}

func hostnameOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// CORS policy for the public surface.
const (
	CORSMaxAge         = 86400
	CORSAllowedMethods = "GET, POST, OPTIONS"
	CORSAllowedHeaders = "Content-Type, Accept, Origin"
)

// PreflightHeaders writes the CORS preflight response headers, echoing the
// request origin when one is present.
func PreflightHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		origin = "*"
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", CORSAllowedMethods)
	h.Set("Access-Control-Allow-Headers", CORSAllowedHeaders)
	h.Set("Access-Control-Max-Age", "86400")
	h.Set("Access-Control-Allow-Credentials", "true")
}

// StandardHeaders writes the security headers attached to every response.
// The CSP permits self plus inline script/style so the admin pages render.
func StandardHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'")
	h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
}
