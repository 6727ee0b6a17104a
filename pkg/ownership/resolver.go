package ownership

import (
	"context"

	"github.com/aqarly/aqarly/pkg/auth"
)

// OwnershipGetter is the slice of the store the resolver needs
type OwnershipGetter interface {
	GetByUUID(ctx context.Context, ownershipUUID string) (*Ownership, error)
	Get(ctx context.Context, id int64) (*Ownership, error)
}

// Resolver fixes the ownership scope for a request
type Resolver struct {
	store OwnershipGetter
}

// NewResolver creates a resolver over the given store
func NewResolver(store OwnershipGetter) *Resolver {
	return &Resolver{store: store}
}

// Resolve determines the ownership context for a user and an optional
// client-supplied ownership UUID.
//
// With no identifier, non-Super-Admins fall back to their default
// membership; Super Admins proceed unscoped. With an identifier, the
// ownership must exist, be active (Super Admins may enter inactive
// ownerships) and count the user as a member (again, except Super Admins).
func (r *Resolver) Resolve(ctx context.Context, user *auth.User, suppliedUUID string) (*Context, error) {
	if suppliedUUID == "" {
		if user.IsSuperAdmin() {
			return &Context{Unscoped: true}, nil
		}

		defaultID, ok := user.DefaultOwnershipID()
		if !ok {
			return nil, ErrOwnershipRequired
		}

		own, err := r.store.Get(ctx, defaultID)
		if err != nil {
			return nil, err
		}
		if !own.Active {
			return nil, ErrOwnershipInactive
		}

		return &Context{OwnershipID: own.ID, OwnershipUUID: own.UUID}, nil
	}

	own, err := r.store.GetByUUID(ctx, suppliedUUID)
	if err != nil {
		return nil, err
	}

	if !own.Active && !user.IsSuperAdmin() {
		return nil, ErrOwnershipInactive
	}
	if !user.IsSuperAdmin() && !user.HasOwnership(own.ID) {
		return nil, ErrOwnershipAccessDenied
	}

	return &Context{OwnershipID: own.ID, OwnershipUUID: own.UUID}, nil
}
