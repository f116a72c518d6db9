package auth

import (
	"context"
	"net/http"
	"strings"
)

// authUserKey is a context key for the authenticated user.
type authUserKey struct{}

// UserFromContext returns the authenticated user from the request context.
// Returns nil if the request is not authenticated.
func UserFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(authUserKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// Public paths that don't require authentication.
var publicPaths = map[string]bool{
	"/api/v1/auth/login":        true,
	"/api/v1/auth/refresh":      true,
	"/api/v1/auth/logout":       true,
	"/api/v1/auth/setup":        true,
	"/api/v1/auth/setup/status": true,
}

// Middleware validates JWT access tokens on API routes. Public paths
// and non-API paths (healthz, readyz, metrics) are skipped.
func Middleware(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			// WebSocket paths authenticate via query param in the WS handler.
			if strings.HasPrefix(r.URL.Path, "/api/v1/ws/") {
				next.ServeHTTP(w, r)
				return
			}

			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims, err := tokens.ValidateAccessToken(tokenString)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid or expired access token")
				return
			}

			ctx := context.WithValue(r.Context(), authUserKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole wraps a handler so only the listed roles may call it. An
// unauthenticated request is rejected even if the auth middleware was
// skipped for its path.
func RequireRole(h http.HandlerFunc, roles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			writeAuthError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		for _, role := range roles {
			if Role(user.Role) == role {
				h(w, r)
				return
			}
		}
		writeAuthError(w, http.StatusForbidden, "insufficient role")
	}
}
