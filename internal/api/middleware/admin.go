package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/agentfront/agentfront/internal/sessions"
)

// RequireAdminJSON guards JSON admin routes: requests without a live
// admin session get 401.
func RequireAdminJSON(store *sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.Validate(r.Context(), r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdminPage guards HTML admin routes: requests without a live
// admin session are redirected to the login page.
func RequireAdminPage(store *sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !store.Validate(r.Context(), r) {
				http.Redirect(w, r, "/admin", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
