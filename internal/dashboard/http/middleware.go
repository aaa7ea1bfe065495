package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/opsdeskhq/opsdesk/internal/dashboard/domain"
	"github.com/opsdeskhq/opsdesk/internal/dashboard/service"
	"github.com/opsdeskhq/opsdesk/pkg/httpx"
)

type ctxKey int

const ctxKeyPrincipal ctxKey = iota

// PrincipalFromContext returns the authenticated Principal injected by
// AuthnMiddleware.
func PrincipalFromContext(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(domain.Principal)
	return p, ok
}

// AuthnMiddleware verifies the bearer token and injects the reconstructed
// Principal into the request context. Downstream handlers receive the full
// identity, not just a user id, so role and provenance checks never need
// another lookup.
func AuthnMiddleware(identity *service.IdentityService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_token", "Missing or malformed Authorization header")
				return
			}

			principal, err := identity.VerifyToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired access token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin principals. Must run after AuthnMiddleware.
func RequireAdmin() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "invalid_token", "Missing authentication")
				return
			}
			if !p.IsAdmin() {
				writeError(w, http.StatusForbidden, "forbidden", "Admin role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}

func writeError(w http.ResponseWriter, code int, errCode, description string) {
	httpx.WriteJSON(w, code, map[string]string{
		"error":             errCode,
		"error_description": description,
	})
}
