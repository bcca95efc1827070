package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/projectdesk/projectdesk/internal/model"
	"github.com/projectdesk/projectdesk/internal/service"
)

type contextKeyAuth string

// PrincipalKey is the context key for the authenticated user.
const PrincipalKey contextKeyAuth = "principal"

// Authenticate returns an HTTP middleware that resolves the Authorization
// bearer token to a live user record and attaches it to the request context.
//
// Every failure mode collapses into one opaque 401 with a WWW-Authenticate
// challenge: a missing header, a tampered or expired token, and a
// soft-deleted subject are indistinguishable to the client.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeUnauthenticated(w)
				return
			}

			user, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				writeUnauthenticated(w)
				return
			}

			ctx := context.WithValue(r.Context(), PrincipalKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns an HTTP middleware that enforces the admin tier.
// It must be used after Authenticate in the middleware chain.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.Admin {
				writeAuthError(w, http.StatusForbidden, "Admin privileges required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated user from the context. Returns nil
// for unauthenticated requests.
func GetPrincipal(ctx context.Context) *model.User {
	if u, ok := ctx.Value(PrincipalKey).(*model.User); ok {
		return u
	}
	return nil
}

// BearerToken extracts the bearer token from the Authorization header.
// Returns an empty string if the header is absent or not a bearer scheme.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

func writeUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeAuthError(w, http.StatusUnauthorized, "Could not validate credentials")
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually construct JSON to avoid an import cycle with the handler package.
	w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"` + message + `"}}`))
}
