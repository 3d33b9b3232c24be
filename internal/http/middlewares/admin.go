package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
)

// RequireAPIKey protege la superficie admin con una API key estática
// (header X-API-Key o bearer token). Key vacía deshabilita el acceso admin
// por completo.
func RequireAPIKey(key string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, `{"error":"forbidden","error_description":"Admin API is disabled"}`, http.StatusForbidden)
				return
			}

			presented := strings.TrimSpace(r.Header.Get("X-API-Key"))
			if presented == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					presented = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
				}
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				logger.From(r.Context()).Warn("admin api key rejected", logger.Path(r.URL.Path))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Missing or invalid API key"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
