package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/contextkeys"
	"github.com/aqarly/aqarly/pkg/httputil"
)

// TokenValidator resolves a bearer token to a user
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.User, error)
}

// AuthMiddleware authenticates requests with a bearer token
type AuthMiddleware struct {
	validator TokenValidator
	optional  bool
}

// NewAuthMiddleware creates the middleware. With optional set,
// unauthenticated requests pass through without a user on the context.
func NewAuthMiddleware(validator TokenValidator, optional bool) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, optional: optional}
}

// Handler wraps next with bearer-token authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		user, err := m.validator.ValidateToken(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), user)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the authenticated user, if any
func UserFromContext(ctx context.Context) (*auth.User, bool) {
	user, ok := ctx.Value(contextkeys.AuthKey).(*auth.User)
	return user, ok
}
