package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Checker resolves permission checks for users by ID
type Checker interface {
	// HasPermission checks whether the user holds the permission
	HasPermission(ctx context.Context, userID int64, p Permission) (bool, error)

	// InvalidateUser drops the cached permission set for a user
	InvalidateUser(userID int64)
}

// PermissionChecker implements Checker over the identity store with a
// short-lived in-process cache, since policy evaluation hits the same
// user's permission set many times per request.
type PermissionChecker struct {
	store *Store
	cache *expirable.LRU[int64, map[Permission]struct{}]
}

// NewPermissionChecker creates a permission checker. A zero TTL disables
// expiry; cacheSize bounds the number of users held.
func NewPermissionChecker(store *Store, cacheSize int, cacheTTL time.Duration) *PermissionChecker {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	return &PermissionChecker{
		store: store,
		cache: expirable.NewLRU[int64, map[Permission]struct{}](cacheSize, nil, cacheTTL),
	}
}

// HasPermission checks whether the user holds the permission
func (pc *PermissionChecker) HasPermission(ctx context.Context, userID int64, p Permission) (bool, error) {
	perms, err := pc.permissionSet(ctx, userID)
	if err != nil {
		return false, err
	}
	_, ok := perms[p]
	return ok, nil
}

// InvalidateUser drops the cached permission set for a user
func (pc *PermissionChecker) InvalidateUser(userID int64) {
	pc.cache.Remove(userID)
}

func (pc *PermissionChecker) permissionSet(ctx context.Context, userID int64) (map[Permission]struct{}, error) {
	if cached, ok := pc.cache.Get(userID); ok {
		return cached, nil
	}

	roles, err := pc.store.rolesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permission set: %w", err)
	}

	perms := make(map[Permission]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
	}

	pc.cache.Add(userID, perms)
	return perms, nil
}
