// Package middleware provides HTTP middleware for the relay endpoints.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PathSecret returns middleware that rejects requests whose URL parameter
// param does not equal secret. An empty secret rejects everything.
func PathSecret(param, secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := chi.URLParam(r, param)
			if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				slog.Warn("Rejected request with bad path secret", "remote", r.RemoteAddr, "path", r.URL.Path)
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
