package httputil

import (
	"context"
	"net/http"
	"strings"

	"github.com/meddesk/consultq/internal/domain"
)

// CORSMiddleware creates CORS middleware that handles preflight requests
// and adds appropriate CORS headers to responses.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Check if origin is allowed
			if originsSet[origin] || originsSet["*"] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// Handle preflight OPTIONS request
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

// ActorKey stores the authenticated actor in the request context.
const ActorKey contextKey = "actor"

// TokenValidator interface for validating access tokens.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (domain.Actor, error)
}

// AuthMiddleware creates authentication middleware. The validated actor is
// stored in the request context for handlers to pick up via GetActor.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				Error(w, http.StatusUnauthorized, "unauthenticated", "missing or malformed authorization header")
				return
			}

			actor, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ActorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole creates RBAC middleware. Admins pass every role check.
func RequireRole(role domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := r.Context().Value(ActorKey).(domain.Actor)
			if !ok {
				Error(w, http.StatusUnauthorized, "unauthenticated", "unauthorized")
				return
			}

			if actor.Role != role && actor.Role != domain.RoleAdmin {
				Error(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetActor extracts the authenticated actor from context.
func GetActor(ctx context.Context) domain.Actor {
	if actor, ok := ctx.Value(ActorKey).(domain.Actor); ok {
		return actor
	}
	return domain.Actor{}
}

// bearerToken pulls the token out of the Authorization header, falling back
// to the access_token query parameter for websocket upgrades, where browsers
// cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], true
		}
		return "", false
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}
