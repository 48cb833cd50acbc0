package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/agentfront/agentfront/internal/ratelimit"
	"github.com/agentfront/agentfront/internal/security"
	"github.com/agentfront/agentfront/internal/store"
	"github.com/agentfront/agentfront/internal/telemetry"
	"github.com/agentfront/agentfront/internal/upstream"

	"github.com/rs/zerolog/log"
)

const (
	// maxRequestBody is the chat request body limit.
	maxRequestBody = 1 << 20
	// maxMessages is the message-list length limit per request.
	maxMessages = 100
)

type chatRequest struct {
	InstanceID string          `json:"instanceId"`
	Messages   json.RawMessage `json:"messages"`
	SessionID  string          `json:"sessionId"`
}

// Chat drives the request-path state machine on POST /chat: size gate,
// parse, shape checks, instance lookup, origin authorization, quota, and
// finally the upstream call with error translation. Quota is consumed
// only for requests that are actually forwarded.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	// Size gate: reject on the declared length before reading the body.
	if r.ContentLength > maxRequestBody {
		respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "Request too large",
			"message": "Request body exceeds 1MB limit",
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		h.chatInternalError(w, "", 0, err)
		return
	}
	if len(body) > maxRequestBody {
		respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "Request too large",
			"message": "Request body exceeds 1MB limit",
		})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.chatInternalError(w, "", 0, err)
		return
	}

	// A JSON null decodes into the non-empty RawMessage "null"; it still
	// counts as a missing field.
	if req.InstanceID == "" || len(req.Messages) == 0 || string(req.Messages) == "null" {
		respondError(w, http.StatusBadRequest, "Missing required fields: instanceId and messages")
		return
	}

	var messages []json.RawMessage
	if err := json.Unmarshal(req.Messages, &messages); err != nil || len(messages) == 0 {
		respondError(w, http.StatusBadRequest, "Messages must be a non-empty array")
		return
	}
	if len(messages) > maxMessages {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Too many messages",
			"message": "Maximum 100 messages allowed per request",
		})
		return
	}

	if !security.ValidInstanceID(req.InstanceID) {
		respondError(w, http.StatusBadRequest, "Invalid instance ID format")
		return
	}

	view, err := h.Store.ReadInstance(r.Context(), req.InstanceID)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		h.chatInternalError(w, req.InstanceID, len(messages), err)
		return
	}

	// Origin authorization happens before quota: an unauthorized origin
	// never consumes quota.
	rh, originErr := security.ResolveRequestHost(r)
	authorized := originErr == nil && (rh.SameOrigin || security.MatchDomain(rh.Host, view.Domains))
	if !authorized {
		respondJSON(w, http.StatusForbidden, map[string]any{
			"error":   "Domain not authorized",
			"details": "This instance only accepts requests from: " + joinOr(view.Domains, "no domains configured"),
			"debugInfo": map[string]string{
				"origin":  headerOr(r, "Origin"),
				"referer": headerOr(r, "Referer"),
				"host":    valueOr(r.Host),
			},
		})
		return
	}

	decision, err := h.Limiter.CheckAndUpdate(r.Context(), ratelimit.Options{
		InstanceID:   req.InstanceID,
		ClientID:     ratelimit.ClientID(req.SessionID, clientAddr(r)),
		SessionID:    req.SessionID,
		HourlyLimit:  view.RateLimits.MessagesPerHour,
		SessionLimit: view.RateLimits.MessagesPerSession,
	})
	if err != nil {
		h.chatInternalError(w, req.InstanceID, len(messages), err)
		return
	}
	if !decision.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterOr(decision.RetryAfter, 3600)))
		respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "Rate limit exceeded",
			"message":    decision.Message,
			"retryAfter": decision.RetryAfter,
		})
		return
	}

	resp, err := h.Upstream.Chat(r.Context(), view.TypingMindAgentID, view.APIKey, req.Messages)
	if err != nil {
		if errors.Is(err, upstream.ErrTimeout) {
			telemetry.ChatForwarded.WithLabelValues("timeout").Inc()
			respondJSON(w, http.StatusGatewayTimeout, map[string]string{
				"error":   "Request timeout",
				"message": "The API request timed out after 30 seconds",
			})
			return
		}
		telemetry.ChatForwarded.WithLabelValues("transport_error").Inc()
		h.chatInternalError(w, req.InstanceID, len(messages), err)
		return
	}

	if !resp.OK() {
		telemetry.ChatForwarded.WithLabelValues("upstream_error").Inc()
		log.Error().
			Str("handler", "chat").
			Str("instance", req.InstanceID).
			Int("messages", len(messages)).
			Int("upstream_status", resp.StatusCode).
			Msg("Upstream returned an error status")
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   fmt.Sprintf("API error: %d", resp.StatusCode),
			"details": string(resp.Body),
		})
		return
	}

	var parsed any
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		telemetry.ChatForwarded.WithLabelValues("bad_response").Inc()
		respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "Invalid API response",
			"details": "Upstream returned a non-JSON body",
		})
		return
	}
	obj, ok := parsed.(map[string]any)
	if !ok {
		telemetry.ChatForwarded.WithLabelValues("bad_response").Inc()
		respondJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "Invalid response format",
			"details": "Upstream response is not a JSON object",
		})
		return
	}

	// Translate the upstream's "unknown agent" into a configuration
	// error attributed to this instance.
	if upstreamErr, ok := obj["error"].(map[string]any); ok {
		if code, _ := upstreamErr["code"].(string); code == "agent_not_found" {
			telemetry.ChatForwarded.WithLabelValues("agent_not_found").Inc()
			details, _ := upstreamErr["message"].(string)
			if details == "" {
				details = "The configured agent does not exist upstream"
			}
			respondJSON(w, http.StatusNotFound, map[string]string{
				"error":             "Agent not configured in TypingMind",
				"details":           details,
				"instanceId":        req.InstanceID,
				"typingmindAgentId": view.TypingMindAgentID,
			})
			return
		}
	}

	telemetry.ChatForwarded.WithLabelValues("ok").Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(resp.Body)
}

func (h *Handlers) chatInternalError(w http.ResponseWriter, instanceID string, messageCount int, err error) {
	log.Error().
		Err(err).
		Str("handler", "chat").
		Str("instance", instanceID).
		Int("messages", messageCount).
		Str("upstream", h.Config.Upstream.APIHost).
		Msg("Chat request failed")
	respondJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "Internal server error",
		"details": err.Error(),
	})
}

func retryAfterOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func headerOr(r *http.Request, name string) string {
	return valueOr(r.Header.Get(name))
}

func valueOr(v string) string {
	if v == "" {
		return "not provided"
	}
	return v
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	out := items[0]
	for _, s := range items[1:] {
		out += ", " + s
	}
	return out
}
