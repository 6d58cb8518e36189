// Package middleware provides HTTP middleware for the Finsight API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// =============================================================================
// Static Bearer Auth
// =============================================================================

// openPaths are served without credentials so probes and the root status
// endpoint keep working behind auth.
var openPaths = map[string]struct{}{
	"/":       {},
	"/health": {},
	"/ready":  {},
}

// StaticBearer returns middleware that requires a static bearer token on
// every path except the open probe endpoints.
func StaticBearer(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, open := openPaths[r.URL.Path]; open {
				next.ServeHTTP(w, r)
				return
			}

			provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				logger.Warn("rejected request with invalid token",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				writeJSONError(w, http.StatusUnauthorized, "invalid or missing bearer token", "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError writes an error response without importing the api package.
func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
