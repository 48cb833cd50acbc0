package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agentfront/agentfront/internal/api"
	"github.com/agentfront/agentfront/internal/api/handlers"
	"github.com/agentfront/agentfront/internal/config"
	"github.com/agentfront/agentfront/internal/kv"
	"github.com/agentfront/agentfront/internal/ratelimit"
	"github.com/agentfront/agentfront/internal/sessions"
	"github.com/agentfront/agentfront/internal/store"
	"github.com/agentfront/agentfront/internal/upstream"
	"github.com/agentfront/agentfront/pkg/models"
)

type testEnv struct {
	router  http.Handler
	store   *store.SQLiteStore
	limiter *ratelimit.Limiter
}

// newTestEnv assembles the full router over a temp SQLite store, an
// in-memory KV store, and an httptest upstream. A nil upstream handler
// answers every chat with a fixed JSON object.
func newTestEnv(t *testing.T, adminPassword string, upstreamHandler http.HandlerFunc) *testEnv {
	t.Helper()

	if upstreamHandler == nil {
		upstreamHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"reply":"hello"}`))
		}
	}
	upstreamSrv := httptest.NewServer(upstreamHandler)
	t.Cleanup(upstreamSrv.Close)

	st, err := store.OpenSQLite(t.TempDir() + "/instances.db")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	kvStore := kv.NewMemory()
	limiter := ratelimit.New(kvStore)
	sess := sessions.New(kvStore)

	cfg := &config.Config{
		Version: "test",
		Upstream: config.UpstreamConfig{
			APIHost: upstreamSrv.URL,
			APIKey:  "default-key",
			Timeout: 500 * time.Millisecond,
		},
		Admin: config.AdminConfig{Password: adminPassword},
	}

	h := handlers.New(st, kvStore, limiter, sess, upstream.New(cfg.Upstream), cfg)
	return &testEnv{
		router:  api.NewRouter(h, sess),
		store:   st,
		limiter: limiter,
	}
}

func (e *testEnv) seedInstance(t *testing.T, cfg *models.InstanceConfig) {
	t.Helper()
	if err := e.store.CreateInstance(context.Background(), cfg); err != nil {
		t.Fatalf("seed instance %q: %v", cfg.ID, err)
	}
}

func supportBot() *models.InstanceConfig {
	return &models.InstanceConfig{
		ID:                "support-bot",
		Name:              "Support Bot",
		TypingMindAgentID: "agent-123",
		Domains:           []string{"example.com"},
	}
}

func (e *testEnv) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	for k, vs := range header {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("response body is not a JSON object: %v\nbody: %s", err, w.Body.String())
	}
	return m
}

func chatBody(instanceID, sessionID string, n int) string {
	msgs := make([]string, n)
	for i := range msgs {
		msgs[i] = fmt.Sprintf(`{"role":"user","content":"message %d"}`, i)
	}
	body := fmt.Sprintf(`{"instanceId":%q,"messages":[%s]`, instanceID, strings.Join(msgs, ","))
	if sessionID != "" {
		body += fmt.Sprintf(`,"sessionId":%q`, sessionID)
	}
	return body + "}"
}

func originHeader(origin string) http.Header {
	h := http.Header{}
	h.Set("Origin", origin)
	return h
}

// ── Public surface ───────────────────────────────────────────

func TestHealth(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d", w.Code)
	}
	if w.Body.String() != "AgentFront edge proxy is running" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestNotFoundIsPlainText(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/no-such-route", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if w.Body.String() != "Not Found" {
		t.Errorf("body = %q, want plain \"Not Found\"", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodOptions, "/chat", "", originHeader("https://example.com"))
	if w.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := w.Header().Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Max-Age = %q", got)
	}
}

func TestSecurityHeadersOnResponses(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/", "", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}

func TestInstanceInfoPublicSubset(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	cfg := supportBot()
	cfg.APIKey = "sk-secret"
	e.seedInstance(t, cfg)

	w := e.do(http.MethodGet, "/instance/support-bot", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["id"] != "support-bot" || body["name"] != "Support Bot" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["theme"]; !ok {
		t.Error("theme missing from public view")
	}
	if _, ok := body["features"]; !ok {
		t.Error("features missing from public view")
	}
	for _, secret := range []string{"apiKey", "domains", "rateLimits", "typingmindAgentId"} {
		if _, ok := body[secret]; ok {
			t.Errorf("%s leaked into the public view", secret)
		}
	}
}

func TestInstanceInfoMissingID(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/instance/", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Instance ID is required" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestInstanceInfoInvalidID(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/instance/Not_Valid", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid instance ID format" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestInstanceInfoNotFound(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/instance/ghost", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Instance not found" {
		t.Errorf("error = %v", body["error"])
	}
}

// ── Chat ─────────────────────────────────────────────────────

func TestChatSuccess(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "sess-1", 1), originHeader("https://example.com"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["reply"] != "hello" {
		t.Errorf("body = %v, want upstream passthrough", body)
	}

	st, err := e.limiter.Status(context.Background(), "support-bot", "sess-1", "sess-1", models.DefaultRateLimits())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Hourly.Current != 1 || st.Session == nil || st.Session.Current != 1 {
		t.Errorf("counters after one forwarded request = %+v", st)
	}
}

func TestChatSameOriginFallback(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	e.seedInstance(t, supportBot())

	// No Origin or Referer: the request's own host counts as authorized.
	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "", 1), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d\nbody: %s", w.Code, w.Body.String())
	}
}

func TestChatForbiddenOriginConsumesNoQuota(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "sess-1", 1), originHeader("https://evil.com"))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403\nbody: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["error"] != "Domain not authorized" {
		t.Errorf("error = %v", body["error"])
	}
	if details, _ := body["details"].(string); !strings.Contains(details, "example.com") {
		t.Errorf("details = %v, want the allowlist", body["details"])
	}
	debug, _ := body["debugInfo"].(map[string]any)
	if debug == nil || debug["origin"] != "https://evil.com" {
		t.Errorf("debugInfo = %v", body["debugInfo"])
	}

	st, _ := e.limiter.Status(context.Background(), "support-bot", "sess-1", "sess-1", models.DefaultRateLimits())
	if st.Hourly.Current != 0 || st.Session.Current != 0 {
		t.Errorf("counters advanced for a rejected origin: %+v", st)
	}
}

func TestChatShapeErrors(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	e.seedInstance(t, supportBot())

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"missing instanceId", `{"messages":[{"role":"user","content":"hi"}]}`, http.StatusBadRequest, "Missing required fields: instanceId and messages"},
		{"missing messages", `{"instanceId":"support-bot"}`, http.StatusBadRequest, "Missing required fields: instanceId and messages"},
		{"null messages", `{"instanceId":"support-bot","messages":null}`, http.StatusBadRequest, "Missing required fields: instanceId and messages"},
		{"messages not an array", `{"instanceId":"support-bot","messages":"hi"}`, http.StatusBadRequest, "Messages must be a non-empty array"},
		{"empty messages", `{"instanceId":"support-bot","messages":[]}`, http.StatusBadRequest, "Messages must be a non-empty array"},
		{"too many messages", chatBody("support-bot", "", 101), http.StatusBadRequest, "Too many messages"},
		{"invalid instance id", chatBody("Bad_ID", "", 1), http.StatusBadRequest, "Invalid instance ID format"},
		{"unknown instance", chatBody("ghost", "", 1), http.StatusNotFound, "Instance not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(http.MethodPost, "/chat", tt.body, originHeader("https://example.com"))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d\nbody: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if body := decodeBody(t, w); body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
		})
	}

	// None of the rejected requests may have advanced a counter.
	st, _ := e.limiter.Status(context.Background(), "support-bot", "192.0.2.1", "", models.DefaultRateLimits())
	if st.Hourly.Current != 0 {
		t.Errorf("hourly counter = %d after shape rejections, want 0", st.Hourly.Current)
	}
}

func TestChatMalformedJSONBody(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodPost, "/chat", `{"instanceId": `, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Internal server error" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestChatSizeGate(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	e.seedInstance(t, supportBot())

	r := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{}"))
	r.ContentLength = 1<<20 + 1
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "Request too large" || body["message"] != "Request body exceeds 1MB limit" {
		t.Errorf("body = %v", body)
	}
}

func TestChatHourlyLimit(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	cfg := supportBot()
	cfg.RateLimits = &models.RateLimitPolicy{MessagesPerHour: 2, MessagesPerSession: 30}
	e.seedInstance(t, cfg)

	for i := 0; i < 2; i++ {
		if w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "sess-1", 1), originHeader("https://example.com")); w.Code != http.StatusOK {
			t.Fatalf("request #%d status = %d", i+1, w.Code)
		}
	}

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "sess-1", 1), originHeader("https://example.com"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429\nbody: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want 3600", got)
	}
	body := decodeBody(t, w)
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != "Hourly rate limit exceeded. Maximum 2 messages per hour." {
		t.Errorf("message = %v", body["message"])
	}
	if ra, _ := body["retryAfter"].(float64); int(ra) != 3600 {
		t.Errorf("retryAfter = %v", body["retryAfter"])
	}
}

func TestChatSessionLimit(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	cfg := supportBot()
	cfg.RateLimits = &models.RateLimitPolicy{MessagesPerHour: 100, MessagesPerSession: 1}
	e.seedInstance(t, cfg)

	if w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "sess-1", 1), originHeader("https://example.com")); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d", w.Code)
	}

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "sess-1", 1), originHeader("https://example.com"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "300" {
		t.Errorf("Retry-After = %q, want 300", got)
	}
}

func TestChatUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	e := newTestEnv(t, "hunter2", func(w http.ResponseWriter, r *http.Request) {
		<-release
	})
	defer close(release)
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "", 1), originHeader("https://example.com"))
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504\nbody: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["error"] != "Request timeout" {
		t.Errorf("error = %v", body["error"])
	}
	if body["message"] != "The API request timed out after 30 seconds" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestChatUpstreamErrorStatus(t *testing.T) {
	e := newTestEnv(t, "hunter2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "", 1), originHeader("https://example.com"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeBody(t, w)
	if body["error"] != "API error: 500" {
		t.Errorf("error = %v", body["error"])
	}
	if details, _ := body["details"].(string); !strings.Contains(details, "boom") {
		t.Errorf("details = %v, want upstream body", body["details"])
	}
}

func TestChatUpstreamNonJSON(t *testing.T) {
	e := newTestEnv(t, "hunter2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "", 1), originHeader("https://example.com"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid API response" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestChatUpstreamNonObject(t *testing.T) {
	e := newTestEnv(t, "hunter2", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1,2,3]`))
	})
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "", 1), originHeader("https://example.com"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid response format" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestChatAgentNotFoundTranslated(t *testing.T) {
	e := newTestEnv(t, "hunter2", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":{"code":"agent_not_found","message":"no such agent"}}`))
	})
	e.seedInstance(t, supportBot())

	w := e.do(http.MethodPost, "/chat", chatBody("support-bot", "", 1), originHeader("https://example.com"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404\nbody: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["error"] != "Agent not configured in TypingMind" {
		t.Errorf("error = %v", body["error"])
	}
	if body["details"] != "no such agent" {
		t.Errorf("details = %v", body["details"])
	}
	if body["instanceId"] != "support-bot" || body["typingmindAgentId"] != "agent-123" {
		t.Errorf("attribution = %v/%v", body["instanceId"], body["typingmindAgentId"])
	}
}

// ── Admin surface ────────────────────────────────────────────

func TestAdminRequiresSession(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/admin/instances", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Unauthorized" {
		t.Errorf("error = %v", body["error"])
	}

	w = e.do(http.MethodGet, "/admin/dashboard", "", nil)
	if w.Code != http.StatusFound {
		t.Fatalf("dashboard status = %d, want 302", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/admin" {
		t.Errorf("Location = %q, want /admin", loc)
	}
}

func TestAdminLoginFailures(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodPost, "/admin/login", `{"password":"wrong"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Invalid password" {
		t.Errorf("error = %v", body["error"])
	}

	unconfigured := newTestEnv(t, "", nil)
	w = unconfigured.do(http.MethodPost, "/admin/login", `{"password":"anything"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 when admin is not configured", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "Admin not configured" {
		t.Errorf("error = %v", body["error"])
	}
}

func (e *testEnv) login(t *testing.T, password string) string {
	t.Helper()
	w := e.do(http.MethodPost, "/admin/login", fmt.Sprintf(`{"password":%q}`, password), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d\nbody: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	id, _ := body["sessionId"].(string)
	if id == "" {
		t.Fatal("login returned no sessionId")
	}
	cookie := w.Header().Get("Set-Cookie")
	for _, attr := range []string{"HttpOnly", "Secure", "SameSite=Strict", "Max-Age=86400"} {
		if !strings.Contains(cookie, attr) {
			t.Errorf("Set-Cookie %q missing %q", cookie, attr)
		}
	}
	return id
}

func adminHeader(sessionID string) http.Header {
	h := http.Header{}
	h.Set("X-Admin-Session", sessionID)
	return h
}

func TestAdminInstanceLifecycle(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	sid := e.login(t, "hunter2")

	// Create
	w := e.do(http.MethodPost, "/admin/instances", `{
		"id": "my-bot", "name": "My Bot", "typingmindAgentId": "agent-7",
		"domains": ["example.com"]
	}`, adminHeader(sid))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d\nbody: %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPost, "/admin/instances", `{"id": "Bad ID!", "name": "x", "typingmindAgentId": "y"}`, adminHeader(sid))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("create with bad id status = %d, want 400", w.Code)
	}

	// List
	w = e.do(http.MethodGet, "/admin/instances", "", adminHeader(sid))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []models.InstanceSummary
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("list did not parse: %v", err)
	}
	if len(list) != 1 || list[0].ID != "my-bot" || list[0].DomainCount != 1 {
		t.Errorf("list = %+v", list)
	}

	// Update
	w = e.do(http.MethodPut, "/admin/instances/my-bot", `{
		"name": "Renamed", "typingmindAgentId": "agent-7", "domains": ["renamed.example.com"]
	}`, adminHeader(sid))
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d\nbody: %s", w.Code, w.Body.String())
	}

	w = e.do(http.MethodPut, "/admin/instances/ghost", `{"name": "x", "typingmindAgentId": "y"}`, adminHeader(sid))
	if w.Code != http.StatusNotFound {
		t.Fatalf("update ghost status = %d, want 404", w.Code)
	}

	// Clone: the new id is derived from the requested name.
	w = e.do(http.MethodPost, "/admin/instances/my-bot/clone", `{"name": "My Bot Copy"}`, adminHeader(sid))
	if w.Code != http.StatusCreated {
		t.Fatalf("clone status = %d\nbody: %s", w.Code, w.Body.String())
	}
	cloneID, _ := decodeBody(t, w)["id"].(string)
	if !strings.HasPrefix(cloneID, "my-bot-copy-") {
		t.Errorf("clone id = %q, want my-bot-copy-<timestamp>", cloneID)
	}

	// Delete
	w = e.do(http.MethodDelete, "/admin/instances/my-bot", "", adminHeader(sid))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := e.do(http.MethodGet, "/instance/my-bot", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("instance still served after delete: %d", w.Code)
	}

	// Logout invalidates the session for subsequent calls.
	w = e.do(http.MethodPost, "/admin/logout", "", adminHeader(sid))
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Errorf("logout Set-Cookie = %q, want Max-Age=0", w.Header().Get("Set-Cookie"))
	}
	if w := e.do(http.MethodGet, "/admin/instances", "", adminHeader(sid)); w.Code != http.StatusUnauthorized {
		t.Errorf("session usable after logout: %d", w.Code)
	}
}

func TestAdminDashboardWithSession(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)
	e.seedInstance(t, supportBot())
	sid := e.login(t, "hunter2")

	w := e.do(http.MethodGet, "/admin/dashboard", "", adminHeader(sid))
	if w.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "support-bot") {
		t.Error("dashboard does not list the seeded instance")
	}

	w = e.do(http.MethodGet, "/admin/instances/support-bot/edit", "", adminHeader(sid))
	if w.Code != http.StatusOK {
		t.Fatalf("edit form status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "agent-123") {
		t.Error("edit form does not show the instance record")
	}
}

// ── Widget ───────────────────────────────────────────────────

func TestWidgetJS(t *testing.T) {
	e := newTestEnv(t, "hunter2", nil)

	w := e.do(http.MethodGet, "/widget.js", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "console.error") {
		t.Errorf("empty cache body = %q, want diagnostic script", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("Content-Type = %q", ct)
	}

	sid := e.login(t, "hunter2")
	bundle := `(function(){window.AgentFront={};})();`
	if w := e.do(http.MethodPut, "/admin/widget", bundle, adminHeader(sid)); w.Code != http.StatusOK {
		t.Fatalf("PUT /admin/widget status = %d", w.Code)
	}

	w = e.do(http.MethodGet, "/widget.js", "", nil)
	if w.Body.String() != bundle {
		t.Errorf("widget body = %q, want the deployed bundle", w.Body.String())
	}
}
