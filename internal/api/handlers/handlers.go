// Package handlers implements the HTTP handlers for the AgentFront edge
// proxy: the public chat and instance-info surface and the authenticated
// admin surface.
package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/agentfront/agentfront/internal/config"
	"github.com/agentfront/agentfront/internal/kv"
	"github.com/agentfront/agentfront/internal/ratelimit"
	"github.com/agentfront/agentfront/internal/security"
	"github.com/agentfront/agentfront/internal/sessions"
	"github.com/agentfront/agentfront/internal/store"
	"github.com/agentfront/agentfront/internal/upstream"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// WidgetCodeKey is the KV key holding the embeddable widget bundle.
const WidgetCodeKey = "widget:code"

// Handlers holds all handler dependencies.
type Handlers struct {
	Store    store.Store
	KV       kv.Store
	Limiter  *ratelimit.Limiter
	Sessions *sessions.Store
	Upstream *upstream.Client
	Config   *config.Config
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, kvStore kv.Store, limiter *ratelimit.Limiter, sess *sessions.Store, up *upstream.Client, cfg *config.Config) *Handlers {
	return &Handlers{
		Store:    s,
		KV:       kvStore,
		Limiter:  limiter,
		Sessions: sess,
		Upstream: up,
		Config:   cfg,
	}
}

// Health serves the plain-text banner on GET /.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("AgentFront edge proxy is running"))
}

// InstanceInfo serves the public subset of instance configuration on
// GET /instance/{instanceID}: id, name, theme, and features only. Never
// credentials, rate limits, or the domain allowlist.
func (h *Handlers) InstanceInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Instance ID is required")
		return
	}
	if !security.ValidInstanceID(id) {
		respondError(w, http.StatusBadRequest, "Invalid instance ID format")
		return
	}

	view, err := h.Store.ReadInstance(r.Context(), id)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Str("instance", id).Msg("Instance lookup failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"id":       view.ID,
		"name":     view.Name,
		"theme":    view.Theme,
		"features": view.Features,
	})
}

// WidgetJS serves the embeddable widget bundle from the KV cache. When
// the cache is empty a diagnostic script is served instead so embedding
// pages surface the misconfiguration in the browser console.
func (h *Handlers) WidgetJS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")

	code, ok, err := h.KV.Get(r.Context(), WidgetCodeKey)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read widget cache")
	}
	if !ok || code == "" {
		w.Write([]byte(`console.error("AgentFront: widget bundle is not deployed");`))
		return
	}
	w.Write([]byte(code))
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// clientAddr returns the request's network address without the port.
// The RealIP middleware has already folded proxy headers into RemoteAddr.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
