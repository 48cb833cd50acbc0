// Package models defines the shared domain records for the AgentFront
// edge proxy: tenant instances, their presentation and quota settings,
// and the admin session record.
package models

import "time"

// ── Defaults ─────────────────────────────────────────────────

const (
	// DefaultMessagesPerHour is the hourly quota applied when an
	// instance has no rate-limit row.
	DefaultMessagesPerHour = 100

	// DefaultMessagesPerSession is the per-session quota applied when an
	// instance has no rate-limit row.
	DefaultMessagesPerSession = 30

	DefaultPrimaryColor = "#007bff"
	DefaultPosition     = PositionBottomRight
	DefaultWidth        = 380
	DefaultEmbedMode    = EmbedPopup
)

// Widget position values.
const (
	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
	PositionTopRight    = "top-right"
	PositionTopLeft     = "top-left"
)

// Embed modes.
const (
	EmbedPopup  = "popup"
	EmbedInline = "inline"
)

// ValidPosition reports whether p is a known widget position.
func ValidPosition(p string) bool {
	switch p {
	case PositionBottomRight, PositionBottomLeft, PositionTopRight, PositionTopLeft:
		return true
	}
	return false
}

// ValidEmbedMode reports whether m is a known embed mode.
func ValidEmbedMode(m string) bool {
	return m == EmbedPopup || m == EmbedInline
}

// ── Instance records ─────────────────────────────────────────

// Instance is a tenant record binding a public id to a TypingMind agent.
// The id is immutable once created. APIKey is empty when the instance
// uses the process-wide default credential.
type Instance struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	TypingMindAgentID string    `json:"typingmindAgentId"`
	APIKey            string    `json:"apiKey,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// RateLimitPolicy holds the per-instance quota settings.
type RateLimitPolicy struct {
	MessagesPerHour    int `json:"messagesPerHour"`
	MessagesPerSession int `json:"messagesPerSession"`
}

// Features holds the per-instance widget feature flags.
type Features struct {
	Markdown       bool `json:"markdown"`
	ImageUpload    bool `json:"imageUpload"`
	PersistSession bool `json:"persistSession"`
}

// Theme holds the per-instance widget presentation settings.
type Theme struct {
	PrimaryColor string `json:"primaryColor"`
	Position     string `json:"position"`
	Width        int    `json:"width"`
	EmbedMode    string `json:"embedMode"`
}

// DefaultTheme returns the theme applied when an instance has no theme row.
func DefaultTheme() Theme {
	return Theme{
		PrimaryColor: DefaultPrimaryColor,
		Position:     DefaultPosition,
		Width:        DefaultWidth,
		EmbedMode:    DefaultEmbedMode,
	}
}

// DefaultRateLimits returns the quota applied when an instance has no
// rate-limit row.
func DefaultRateLimits() RateLimitPolicy {
	return RateLimitPolicy{
		MessagesPerHour:    DefaultMessagesPerHour,
		MessagesPerSession: DefaultMessagesPerSession,
	}
}

// InstanceView is the denormalized read model used on the request path.
// Child fields are always populated, with defaults substituted for any
// missing child rows.
type InstanceView struct {
	Instance
	Domains    []string        `json:"domains"`
	RateLimits RateLimitPolicy `json:"rateLimits"`
	Features   Features        `json:"features"`
	Theme      Theme           `json:"theme"`
}

// InstanceSummary is one dashboard row.
type InstanceSummary struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	TypingMindAgentID string    `json:"typingmindAgentId"`
	DomainCount       int       `json:"domainCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

// FullInstance carries the unjoined child rows for edit forms. Child
// pointers are nil when the corresponding row does not exist.
type FullInstance struct {
	Instance   Instance         `json:"instance"`
	Domains    []string         `json:"domains"`
	RateLimits *RateLimitPolicy `json:"rateLimits,omitempty"`
	Features   *Features        `json:"features,omitempty"`
	Theme      *Theme           `json:"theme,omitempty"`
}

// InstanceConfig is the write model accepted by create and update. Nil
// child pointers mean "apply defaults" on create and "leave as stored"
// semantics do not apply: update upserts whatever is provided.
type InstanceConfig struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	TypingMindAgentID string           `json:"typingmindAgentId"`
	APIKey            string           `json:"apiKey,omitempty"`
	Domains           []string         `json:"domains"`
	RateLimits        *RateLimitPolicy `json:"rateLimits,omitempty"`
	Features          *Features        `json:"features,omitempty"`
	Theme             *Theme           `json:"theme,omitempty"`
}

// ── Admin session ────────────────────────────────────────────

// AdminSession is the record stored in the expiring KV store under
// admin:session:{id}. The cookie is the only binding to this record.
type AdminSession struct {
	CreatedAt time.Time `json:"createdAt"`
	IP        string    `json:"ip"`
}
