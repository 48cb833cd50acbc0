// Package kv provides the expiring key-value store used for rate-limit
// counters, admin sessions, and the widget cache. Two backends exist: an
// in-memory map for zero-config deployments and tests, and a SQLite file
// for deployments that need counters to survive a restart.
package kv

import (
	"context"
	"sync"
	"time"
)

// Store is an expiring key-value store. A ttl of zero or less means the
// entry never expires. Expired entries are invisible to Get; Purge
// removes them physically.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Purge(ctx context.Context) (removed int, err error)
	Close() error
}

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the value for key, treating expired entries as absent.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", false, nil
	}
	return e.value, true, nil
}

// Put stores value under key with the given ttl.
func (m *Memory) Put(_ context.Context, key, value string, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Purge removes all expired entries and returns how many were removed.
func (m *Memory) Purge(_ context.Context) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Close releases no resources for the memory store.
func (m *Memory) Close() error { return nil }
