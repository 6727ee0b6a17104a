// Package ownership models the tenancy root and resolves which ownership
// a request operates under.
package ownership

import (
	"errors"
	"time"
)

// Resolution errors. All surface as client-visible failures and are never
// silently recovered.
var (
	// ErrOwnershipRequired: no identifier supplied and the user has no
	// default membership
	ErrOwnershipRequired = errors.New("ownership required")

	// ErrOwnershipNotFound: the supplied identifier matches no ownership
	ErrOwnershipNotFound = errors.New("ownership not found")

	// ErrOwnershipInactive: the ownership exists but is deactivated
	ErrOwnershipInactive = errors.New("ownership inactive")

	// ErrOwnershipAccessDenied: the user is not a member of the ownership
	ErrOwnershipAccessDenied = errors.New("ownership access denied")
)

// Ownership is the tenancy root. Every scoped entity carries its ID.
type Ownership struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Context is the resolved ownership scope for a request. Unscoped is only
// ever true for Super Admins that supplied no identifier; downstream
// policies must then enforce any ownership checks themselves.
type Context struct {
	OwnershipID   int64
	OwnershipUUID string
	Unscoped      bool
}

// Scoped reports whether the context confines queries to one ownership
func (c *Context) Scoped() bool {
	return c != nil && !c.Unscoped
}

// Matches reports whether a resource's ownership falls inside this scope.
// An unscoped context matches everything.
func (c *Context) Matches(ownershipID int64) bool {
	if c == nil {
		return false
	}
	if c.Unscoped {
		return true
	}
	return c.OwnershipID == ownershipID
}
