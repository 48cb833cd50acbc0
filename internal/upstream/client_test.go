package upstream_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentfront/agentfront/internal/config"
	"github.com/agentfront/agentfront/internal/upstream"
)

func TestChatForwardsRequest(t *testing.T) {
	var gotPath, gotKey, gotContentType, gotRequestID string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-API-KEY")
		gotContentType = r.Header.Get("Content-Type")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"reply":"hello"}`))
	}))
	defer srv.Close()

	c := upstream.New(config.UpstreamConfig{
		APIHost: srv.URL,
		APIKey:  "default-key",
		Timeout: 5 * time.Second,
	})

	messages := json.RawMessage(`[{"role":"user","content":"hi"}]`)
	resp, err := c.Chat(context.Background(), "agent-123", "instance-key", messages)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !resp.OK() {
		t.Fatalf("StatusCode = %d, want 2xx", resp.StatusCode)
	}
	if string(resp.Body) != `{"reply":"hello"}` {
		t.Errorf("Body = %s", resp.Body)
	}
	if gotPath != "/api/v2/agents/agent-123/chat" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "instance-key" {
		t.Errorf("X-API-KEY = %q, want the per-instance override", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotRequestID == "" {
		t.Error("X-Request-ID not set")
	}

	var payload struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload did not parse: %v", err)
	}
	if len(payload.Messages) != 1 {
		t.Errorf("payload messages = %d, want 1", len(payload.Messages))
	}
}

func TestChatUsesDefaultKey(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-KEY")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := upstream.New(config.UpstreamConfig{APIHost: srv.URL, APIKey: "default-key", Timeout: 5 * time.Second})
	if _, err := c.Chat(context.Background(), "agent-1", "", json.RawMessage(`[]`)); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotKey != "default-key" {
		t.Errorf("X-API-KEY = %q, want process-wide default", gotKey)
	}
}

func TestChatNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := upstream.New(config.UpstreamConfig{APIHost: srv.URL, Timeout: 5 * time.Second})
	resp, err := c.Chat(context.Background(), "agent-1", "", json.RawMessage(`[]`))
	if err != nil {
		t.Fatalf("Chat() error = %v, want non-2xx surfaced in Response", err)
	}
	if resp.OK() {
		t.Error("OK() = true for a 502")
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", resp.StatusCode)
	}
}

func TestChatTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := upstream.New(config.UpstreamConfig{APIHost: srv.URL, Timeout: 100 * time.Millisecond})
	_, err := c.Chat(context.Background(), "agent-1", "", json.RawMessage(`[]`))
	if err != upstream.ErrTimeout {
		t.Fatalf("Chat() error = %v, want ErrTimeout", err)
	}
}

func TestChatTrimsTrailingSlash(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := upstream.New(config.UpstreamConfig{APIHost: srv.URL + "/", Timeout: 5 * time.Second})
	if _, err := c.Chat(context.Background(), "agent-1", "", json.RawMessage(`[]`)); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if gotPath != "/api/v2/agents/agent-1/chat" {
		t.Errorf("path = %q, want no double slash", gotPath)
	}
}
