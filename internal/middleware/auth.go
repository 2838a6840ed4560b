package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// AdminTokenHeader carries the shared secret for store administration calls.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests that do not present token in
// X-Admin-Token or as a bearer token. An empty token disables the routes.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSONError(w, http.StatusForbidden, "admin access is not configured")
				return
			}

			presented := r.Header.Get(AdminTokenHeader)
			if presented == "" {
				presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}

			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				log.Warn().
					Str("path", r.URL.Path).
					Str("ip", getClientIP(r)).
					Msg("admin token rejected")
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
