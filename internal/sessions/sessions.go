// Package sessions manages admin sessions: opaque random identifiers in
// the expiring key-value store, bound to the browser only by an HTTP-only
// cookie. Absence of the record, for any reason including expiry, means
// unauthenticated.
package sessions

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentfront/agentfront/internal/kv"
	"github.com/agentfront/agentfront/pkg/models"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

const (
	// TTL is the admin-session lifetime.
	TTL = 24 * time.Hour

	// CookieName is the admin session cookie.
	CookieName = "admin_session"

	keyPrefix = "admin:session:"
	idLength  = 32
)

// Store manages admin session records.
type Store struct {
	kv kv.Store
}

// New creates a session store over the given key-value store.
func New(store kv.Store) *Store {
	return &Store{kv: store}
}

// ValidatePassword compares the provided password with the configured
// one. An unset configured password always fails and is logged as a
// configuration error.
func ValidatePassword(provided, configured string) bool {
	if configured == "" {
		log.Error().Msg("ADMIN_PASSWORD is not configured; rejecting login")
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) == 1
}

// ExtractSessionID pulls the session identifier from the request,
// checking Authorization: Bearer, then the X-Admin-Session header, then
// the admin_session cookie (value URL-decoded).
func ExtractSessionID(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if h := r.Header.Get("X-Admin-Session"); h != "" {
		return h
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		if v, err := url.QueryUnescape(c.Value); err == nil {
			return v
		}
		return c.Value
	}
	return ""
}

// Create generates a session for the given client address and stores it
// with the session TTL. Returns the identifier and the Set-Cookie value.
func (s *Store) Create(ctx context.Context, clientAddr string) (id, cookie string, err error) {
	id, err = gonanoid.New(idLength)
	if err != nil {
		return "", "", fmt.Errorf("sessions: generate id: %w", err)
	}

	record, err := json.Marshal(models.AdminSession{
		CreatedAt: time.Now().UTC(),
		IP:        clientAddr,
	})
	if err != nil {
		return "", "", fmt.Errorf("sessions: marshal record: %w", err)
	}

	if err := s.kv.Put(ctx, keyPrefix+id, string(record), TTL); err != nil {
		return "", "", fmt.Errorf("sessions: store record: %w", err)
	}

	cookie = fmt.Sprintf("%s=%s; HttpOnly; Secure; SameSite=Strict; Path=/; Max-Age=%d",
		CookieName, id, int(TTL.Seconds()))
	return id, cookie, nil
}

// Validate reports whether the request carries a session identifier that
// still exists in the store.
func (s *Store) Validate(ctx context.Context, r *http.Request) bool {
	id := ExtractSessionID(r)
	if id == "" {
		return false
	}
	_, ok, err := s.kv.Get(ctx, keyPrefix+id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read admin session")
		return false
	}
	return ok
}

// Delete removes a session record. Deleting an absent session is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.kv.Delete(ctx, keyPrefix+id)
}

// LogoutCookie returns the Set-Cookie value that clears the session
// cookie in the browser.
func LogoutCookie() string {
	return fmt.Sprintf("%s=; HttpOnly; Secure; SameSite=Strict; Path=/; Max-Age=0", CookieName)
}
