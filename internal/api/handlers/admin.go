package handlers

import (
	"encoding/json"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/agentfront/agentfront/internal/security"
	"github.com/agentfront/agentfront/internal/sessions"
	"github.com/agentfront/agentfront/internal/store"
	"github.com/agentfront/agentfront/pkg/models"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Login authenticates the admin password and issues a session cookie on
// POST /admin/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if h.Config.Admin.Password == "" {
		respondError(w, http.StatusInternalServerError, "Admin not configured")
		return
	}
	if !sessions.ValidatePassword(req.Password, h.Config.Admin.Password) {
		respondError(w, http.StatusUnauthorized, "Invalid password")
		return
	}

	id, cookie, err := h.Sessions.Create(r.Context(), clientAddr(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to create admin session")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	w.Header().Set("Set-Cookie", cookie)
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "sessionId": id})
}

// Logout deletes the extracted session, if any, and clears the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id := sessions.ExtractSessionID(r); id != "" {
		if err := h.Sessions.Delete(r.Context(), id); err != nil {
			log.Warn().Err(err).Msg("Failed to delete admin session")
		}
	}
	w.Header().Set("Set-Cookie", sessions.LogoutCookie())
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ListInstances serves the instance summaries as JSON on
// GET /admin/instances.
func (h *Handlers) ListInstances(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.ListInstances(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list instances")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

// CreateInstance inserts a new instance from the posted record on
// POST /admin/instances.
func (h *Handlers) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var cfg models.InstanceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !security.ValidInstanceID(cfg.ID) {
		respondError(w, http.StatusBadRequest, "Invalid instance ID format")
		return
	}

	if err := h.Store.CreateInstance(r.Context(), &cfg); err != nil {
		log.Error().Err(err).Str("instance", cfg.ID).Msg("Failed to create instance")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info().Str("instance", cfg.ID).Msg("Instance created")
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "id": cfg.ID})
}

// UpdateInstance applies an update record on PUT /admin/instances/{id}.
func (h *Handlers) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	var cfg models.InstanceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.Store.UpdateInstance(r.Context(), id, &cfg); err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Str("instance", id).Msg("Failed to update instance")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// DeleteInstance removes an instance and its child rows on
// DELETE /admin/instances/{id}.
func (h *Handlers) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	if err := h.Store.DeleteInstance(r.Context(), id); err != nil {
		log.Error().Err(err).Str("instance", id).Msg("Failed to delete instance")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info().Str("instance", id).Msg("Instance deleted")
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// CloneInstance copies an instance under a fresh id derived from the
// requested display name on POST /admin/instances/{id}/clone.
func (h *Handlers) CloneInstance(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "instanceID")

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	newID := security.Slug(req.Name) + "-" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	if err := h.Store.CloneInstance(r.Context(), sourceID, newID, req.Name); err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			respondError(w, http.StatusNotFound, "Instance not found")
			return
		}
		log.Error().Err(err).Str("source", sourceID).Str("clone", newID).Msg("Failed to clone instance")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Info().Str("source", sourceID).Str("clone", newID).Msg("Instance cloned")
	respondJSON(w, http.StatusCreated, map[string]any{"success": true, "id": newID})
}

// PutWidget stores the posted widget bundle in the KV cache on
// PUT /admin/widget.
func (h *Handlers) PutWidget(w http.ResponseWriter, r *http.Request) {
	code, err := io.ReadAll(io.LimitReader(r.Body, 5<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.KV.Put(r.Context(), WidgetCodeKey, string(code), 0); err != nil {
		log.Error().Err(err).Msg("Failed to store widget bundle")
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "bytes": len(code)})
}

// ── HTML pages ───────────────────────────────────────────────
//
// The real admin UI is an external collaborator; these pages are the
// minimal server-rendered shells behind the authenticated routes.

var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html><head><title>AgentFront Admin</title></head>
<body>
<h1>AgentFront Admin</h1>
<form onsubmit="login(event)">
  <input type="password" id="password" placeholder="Admin password" autofocus>
  <button type="submit">Sign in</button>
</form>
<script>
async function login(e) {
  e.preventDefault();
  const res = await fetch('/admin/login', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({password: document.getElementById('password').value}),
  });
  if (res.ok) { window.location = '/admin/dashboard'; }
  else { alert('Login failed'); }
}
</script>
</body></html>
`))

var dashboardPage = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html><head><title>AgentFront Dashboard</title></head>
<body>
<h1>Instances</h1>
<table border="1" cellpadding="4">
<tr><th>ID</th><th>Name</th><th>Agent</th><th>Domains</th><th>Created</th></tr>
{{range .}}<tr>
  <td>{{.ID}}</td><td>{{.Name}}</td><td>{{.TypingMindAgentID}}</td>
  <td>{{.DomainCount}}</td><td>{{.CreatedAt.Format "2006-01-02 15:04"}}</td>
</tr>{{end}}
</table>
</body></html>
`))

var editPage = template.Must(template.New("edit").Parse(`<!DOCTYPE html>
<html><head><title>Edit {{.Instance.ID}}</title></head>
<body>
<h1>Edit instance {{.Instance.ID}}</h1>
<pre id="record">{{.JSON}}</pre>
</body></html>
`))

// LoginPage serves the admin login shell on GET /admin.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	loginPage.Execute(w, nil)
}

// Dashboard renders the instance listing on GET /admin/dashboard.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.ListInstances(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list instances")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	dashboardPage.Execute(w, summaries)
}

// EditForm renders the edit page from the unjoined child rows on
// GET /admin/instances/{id}/edit.
func (h *Handlers) EditForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "instanceID")

	full, err := h.Store.ReadFull(r.Context(), id)
	if err != nil {
		if _, ok := err.(*store.ErrNotFound); ok {
			http.Error(w, "Instance not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("instance", id).Msg("Failed to read instance")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	raw, _ := json.MarshalIndent(full, "", "  ")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	editPage.Execute(w, struct {
		Instance models.Instance
		JSON     string
	}{Instance: full.Instance, JSON: string(raw)})
}
