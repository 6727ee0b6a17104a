// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//   import "github.com/aqarly/aqarly/pkg/contextkeys"
//   ctx = context.WithValue(ctx, contextkeys.AuthKey, user)
//   user := ctx.Value(contextkeys.AuthKey).(*auth.User)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains the authenticated *auth.User
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: all protected API endpoints, policy evaluation
	AuthKey Key = "auth_user"

	// OwnershipKey contains *ownership.Context
	// Set by: middleware.OwnershipScopeMiddleware (pkg/middleware/ownership.go)
	// Required by: every scoped store query and policy check
	OwnershipKey Key = "ownership_context"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: logger, audit trail
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: auth middleware after user authentication
	// Used by: logger, audit trail, user-scoped operations
	UserIDKey Key = "user_id"
)

// Helper functions for type-safe context operations

// WithAuth adds the authenticated user to the context
func WithAuth(ctx context.Context, user interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, user)
}

// WithOwnership adds the resolved ownership scope to the context
func WithOwnership(ctx context.Context, scope interface{}) context.Context {
	return context.WithValue(ctx, OwnershipKey, scope)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
