package middleware

import (
	"net/http"

	"github.com/agentfront/agentfront/internal/security"
)

// Preflight short-circuits every OPTIONS request with a 204 and the CORS
// preflight headers. It runs ahead of the CORS response middleware so
// preflights never reach the router.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			security.PreflightHeaders(w, r)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SecurityHeaders attaches the standard security headers to every
// response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		security.StandardHeaders(w)
		next.ServeHTTP(w, r)
	})
}
