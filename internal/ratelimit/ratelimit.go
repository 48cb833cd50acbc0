// Package ratelimit implements the dual-window message quota over the
// expiring key-value store: an hourly counter per instance+client and a
// per-session counter per instance+session.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/agentfront/agentfront/internal/kv"
	"github.com/agentfront/agentfront/internal/telemetry"
	"github.com/agentfront/agentfront/pkg/models"

	"github.com/rs/zerolog/log"
)

const (
	// HourlyWindow is the lifetime of an hourly counter.
	HourlyWindow = time.Hour
	// SessionWindow is the lifetime of a session counter.
	SessionWindow = 24 * time.Hour

	// RetryAfterHourly is the Retry-After hint for hourly denials.
	RetryAfterHourly = 3600
	// RetryAfterSession is the Retry-After hint for session denials.
	RetryAfterSession = 300
)

// Limiter checks and updates the quota counters. The underlying store has
// no atomic increment, so concurrent requests at the window boundary can
// both observe N-1 and both write N; the few-unit overshoot is accepted.
type Limiter struct {
	kv kv.Store
}

// New creates a Limiter over the given key-value store.
func New(store kv.Store) *Limiter {
	return &Limiter{kv: store}
}

// Options identifies the request subject and its limits.
type Options struct {
	InstanceID string
	ClientID   string
	// SessionID is empty when the request carries no session; the
	// session counter is then skipped entirely.
	SessionID    string
	HourlyLimit  int
	SessionLimit int
}

// Decision is the outcome of a quota check. Remaining counts are only
// meaningful when Allowed; RemainingSession is -1 when no session counter
// was involved.
type Decision struct {
	Allowed          bool
	Message          string
	RetryAfter       int
	RemainingHourly  int
	RemainingSession int
}

// ClientID computes the hourly-quota subject: the session id if provided,
// else the client network address, else the literal "anonymous".
func ClientID(sessionID, remoteAddr string) string {
	if sessionID != "" {
		return sessionID
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "anonymous"
}

func hourKey(instanceID, clientID string) string {
	return fmt.Sprintf("rate:hour:%s:%s", instanceID, clientID)
}

func sessionKey(instanceID, sessionID string) string {
	return fmt.Sprintf("rate:session:%s:%s", instanceID, sessionID)
}

// CheckAndUpdate reads both counters, denies without incrementing when
// either window is exhausted, and otherwise increments both counters in
// parallel with their expiries. At most one accepted request increments
// each counter by one.
func (l *Limiter) CheckAndUpdate(ctx context.Context, opts Options) (*Decision, error) {
	hourly, err := l.readCounter(ctx, hourKey(opts.InstanceID, opts.ClientID))
	if err != nil {
		return nil, err
	}
	if hourly >= opts.HourlyLimit {
		telemetry.RateLimitDenied.WithLabelValues("hourly").Inc()
		return &Decision{
			Allowed:    false,
			Message:    fmt.Sprintf("Hourly rate limit exceeded. Maximum %d messages per hour.", opts.HourlyLimit),
			RetryAfter: RetryAfterHourly,
		}, nil
	}

	session := 0
	if opts.SessionID != "" {
		session, err = l.readCounter(ctx, sessionKey(opts.InstanceID, opts.SessionID))
		if err != nil {
			return nil, err
		}
		if session >= opts.SessionLimit {
			telemetry.RateLimitDenied.WithLabelValues("session").Inc()
			return &Decision{
				Allowed:    false,
				Message:    fmt.Sprintf("Session rate limit exceeded. Maximum %d messages per session.", opts.SessionLimit),
				RetryAfter: RetryAfterSession,
			}, nil
		}
	}

	// Both increments go out in parallel. A failed write is logged and
	// tolerated: the request proceeds rather than failing closed.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.writeCounter(ctx, hourKey(opts.InstanceID, opts.ClientID), hourly+1, HourlyWindow)
	}()
	if opts.SessionID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.writeCounter(ctx, sessionKey(opts.InstanceID, opts.SessionID), session+1, SessionWindow)
		}()
	}
	wg.Wait()

	d := &Decision{
		Allowed:          true,
		RemainingHourly:  opts.HourlyLimit - hourly - 1,
		RemainingSession: -1,
	}
	if opts.SessionID != "" {
		d.RemainingSession = opts.SessionLimit - session - 1
	}
	return d, nil
}

// Clear removes the counters for a client and, when given, its session.
func (l *Limiter) Clear(ctx context.Context, instanceID, clientID, sessionID string) error {
	if err := l.kv.Delete(ctx, hourKey(instanceID, clientID)); err != nil {
		return err
	}
	if sessionID != "" {
		return l.kv.Delete(ctx, sessionKey(instanceID, sessionID))
	}
	return nil
}

// WindowStatus describes one counter window.
type WindowStatus struct {
	Current   int  `json:"current"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Exceeded  bool `json:"exceeded"`
}

// Status is the read-only view of both windows. Session is nil when no
// session id was supplied.
type Status struct {
	Hourly  WindowStatus  `json:"hourly"`
	Session *WindowStatus `json:"session"`
}

// Status reports the current counters without modifying them.
func (l *Limiter) Status(ctx context.Context, instanceID, clientID, sessionID string, limits models.RateLimitPolicy) (*Status, error) {
	hourly, err := l.readCounter(ctx, hourKey(instanceID, clientID))
	if err != nil {
		return nil, err
	}
	st := &Status{Hourly: windowStatus(hourly, limits.MessagesPerHour)}
	if sessionID != "" {
		session, err := l.readCounter(ctx, sessionKey(instanceID, sessionID))
		if err != nil {
			return nil, err
		}
		ws := windowStatus(session, limits.MessagesPerSession)
		st.Session = &ws
	}
	return st, nil
}

func windowStatus(current, limit int) WindowStatus {
	remaining := limit - current
	if remaining < 0 {
		remaining = 0
	}
	return WindowStatus{
		Current:   current,
		Limit:     limit,
		Remaining: remaining,
		Exceeded:  current >= limit,
	}
}

// readCounter reads a string-encoded counter; absent or garbled values
// read as zero.
func (l *Limiter) readCounter(ctx context.Context, key string) (int, error) {
	raw, ok, err := l.kv.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: read %q: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (l *Limiter) writeCounter(ctx context.Context, key string, value int, ttl time.Duration) {
	if err := l.kv.Put(ctx, key, strconv.Itoa(value), ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to update rate-limit counter")
	}
}
