package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/aqarly/aqarly/pkg/contextkeys"
	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/ownership"
)

// OwnershipHeader carries the client-selected ownership UUID
const OwnershipHeader = "X-Ownership-UUID"

// OwnershipCookie is the cookie fallback for browser clients
const OwnershipCookie = "ownership_uuid"

// OwnershipScopeMiddleware resolves the ownership scope for every
// authenticated request and attaches it to the context
type OwnershipScopeMiddleware struct {
	resolver *ownership.Resolver
}

// NewOwnershipScopeMiddleware creates the middleware
func NewOwnershipScopeMiddleware(resolver *ownership.Resolver) *OwnershipScopeMiddleware {
	return &OwnershipScopeMiddleware{resolver: resolver}
}

// Handler wraps next with ownership resolution. It must run after
// AuthMiddleware.
func (m *OwnershipScopeMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}

		scope, err := m.resolver.Resolve(r.Context(), user, suppliedUUID(r))
		if err != nil {
			writeResolutionError(w, err)
			return
		}

		ctx := contextkeys.WithOwnership(r.Context(), scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// suppliedUUID reads the client's ownership selection, header first
func suppliedUUID(r *http.Request) string {
	if v := r.Header.Get(OwnershipHeader); v != "" {
		return v
	}
	if cookie, err := r.Cookie(OwnershipCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func writeResolutionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ownership.ErrOwnershipRequired):
		httputil.WriteBadRequest(w, "no ownership selected and no default membership")
	case errors.Is(err, ownership.ErrOwnershipNotFound):
		httputil.WriteNotFound(w, "ownership not found")
	case errors.Is(err, ownership.ErrOwnershipInactive):
		httputil.WriteForbidden(w, "ownership is inactive")
	case errors.Is(err, ownership.ErrOwnershipAccessDenied):
		httputil.WriteForbidden(w, "no access to this ownership")
	default:
		httputil.WriteInternalError(w, err)
	}
}

// ScopeFromContext returns the resolved ownership scope, if any
func ScopeFromContext(ctx context.Context) (*ownership.Context, bool) {
	scope, ok := ctx.Value(contextkeys.OwnershipKey).(*ownership.Context)
	return scope, ok
}
