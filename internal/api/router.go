// Package api assembles the HTTP router for the edge proxy.
package api

import (
	"net/http"

	"github.com/agentfront/agentfront/internal/api/handlers"
	"github.com/agentfront/agentfront/internal/api/middleware"
	"github.com/agentfront/agentfront/internal/security"
	"github.com/agentfront/agentfront/internal/sessions"
	"github.com/agentfront/agentfront/internal/telemetry"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(h *handlers.Handlers, sess *sessions.Store) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)
	// Preflight answers every OPTIONS with 204 before the CORS response
	// middleware sees it; cors.Handler decorates actual responses.
	r.Use(middleware.Preflight)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(r *http.Request, origin string) bool {
			// Origins are authorized per instance inside the chat
			// handler; CORS itself echoes any origin.
			return true
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Origin", "Authorization", "X-Admin-Session"},
		AllowCredentials: true,
		MaxAge:           security.CORSMaxAge,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("Not Found"))
	})

	// Public surface
	r.Get("/", h.Health)
	// The bare path reaches the handler so an omitted id answers 400
	// instead of falling through to the router's 404.
	r.Get("/instance/", h.InstanceInfo)
	r.Get("/instance/{instanceID}", h.InstanceInfo)
	r.Post("/chat", h.Chat)
	r.Get("/widget.js", h.WidgetJS)
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	// Admin surface
	r.Route("/admin", func(r chi.Router) {
		r.Get("/", h.LoginPage)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)

		// HTML routes redirect to /admin when unauthenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminPage(sess))
			r.Get("/dashboard", h.Dashboard)
			r.Get("/instances/{instanceID}/edit", h.EditForm)
		})

		// JSON routes return 401 when unauthenticated
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminJSON(sess))
			r.Get("/instances", h.ListInstances)
			r.Post("/instances", h.CreateInstance)
			r.Put("/instances/{instanceID}", h.UpdateInstance)
			r.Delete("/instances/{instanceID}", h.DeleteInstance)
			r.Post("/instances/{instanceID}/clone", h.CloneInstance)
			r.Put("/widget", h.PutWidget)
		})
	})

	return r
}
