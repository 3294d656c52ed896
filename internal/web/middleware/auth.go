package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/mitrecx/my-bill-2/internal/config"
)

// APIKeyAuth rejects requests whose X-API-Key header does not match one of
// the configured keys. It passes everything through when RequireAPIKey is
// false.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			switch {
			case key == "":
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
				)
				denyRequest(w, http.StatusUnauthorized, "AUTH001", "missing API key")
			case !validAPIKey(key, cfg.APIKeys):
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
				)
				denyRequest(w, http.StatusForbidden, "AUTH002", "invalid API key")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// validAPIKey compares key against every configured key in constant time.
func validAPIKey(key string, keys []string) bool {
	valid := 0
	for _, k := range keys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}

func denyRequest(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   msg,
		"message": "This API requires a valid key.",
		"action":  "Send the key in the X-API-Key header.",
		"code":    code,
	})
}
