package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireKey guards the resolve and challenge routes with the operator key,
// sent either as "Authorization: Bearer <key>" or as X-API-Key. An empty key
// leaves the routes open.
func RequireKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := presentedKey(r)
			switch {
			case got == "":
				reject(w, http.StatusUnauthorized, "Unauthorized", "operator key required")
			case subtle.ConstantTimeCompare([]byte(got), want) != 1:
				reject(w, http.StatusUnauthorized, "Unauthorized", "operator key rejected")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func presentedKey(r *http.Request) string {
	if scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
