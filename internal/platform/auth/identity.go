package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/platform/httpx"
)

// The gateway in front of this service authenticates sessions and forwards
// the verified principal in these headers. The core only authorises by role.
const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores the actor in the context.
func WithIdentity(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, identityKey, actor)
}

// IdentityFromContext retrieves the actor placed by the middleware.
func IdentityFromContext(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	actor, ok := ctx.Value(identityKey).(domain.Actor)
	if !ok || strings.TrimSpace(actor.UserID) == "" {
		return domain.Actor{}, false
	}
	return actor, true
}

// Identity extracts the forwarded principal and attaches it to the request
// context. Requests without a principal pass through unauthenticated;
// individual routes decide whether that is acceptable.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(headerUserID))
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}
		role := strings.TrimSpace(r.Header.Get(headerRole))
		if role == "" {
			role = domain.RoleCustomer
		}
		ctx := WithIdentity(r.Context(), domain.Actor{UserID: userID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests without an authenticated principal.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose principal lacks the dashboard role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := IdentityFromContext(r.Context())
		if !ok {
			httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}
		if !actor.IsAdmin() {
			httpx.WriteError(r.Context(), w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}
