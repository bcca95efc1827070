package middleware

import (
	"net/http"

	"github.com/projectdesk/projectdesk/internal/service"
)

// RefreshHeader carries the renewed bearer token on authenticated responses.
const RefreshHeader = "X-Refresh-Token"

// RefreshToken returns an HTTP middleware implementing sliding sessions:
// whenever a request presents a valid bearer token, a fresh token with a
// full TTL window is issued out-of-band in the X-Refresh-Token header.
//
// Renewal is best-effort. An absent, malformed, or expired token is ignored
// and the request proceeds untouched; the header's absence is not an error.
// The header is set before the inner handler writes, since response headers
// are immutable after the first write.
func RefreshToken(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := BearerToken(r); token != "" {
				if fresh, ok := authSvc.Renew(token); ok {
					w.Header().Set(RefreshHeader, fresh)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
