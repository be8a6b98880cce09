package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// HeaderAPIKey carries the operator's shared secret.
const HeaderAPIKey = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key does not match key.
// An empty key disables the check.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(HeaderAPIKey))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				jsonError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": message})
}
