// Package auth holds the user identity model: users, roles and the
// resource.action permission strings policies check against.
package auth

import (
	"strings"
	"time"
)

// Role names with special behavior
const (
	// RoleSuperAdmin grants a cross-ownership bypass for most checks
	RoleSuperAdmin = "Super Admin"

	// RoleCollector restricts visibility to assigned tenants
	RoleCollector = "Collector"
)

// Permission is a string identifier in resource.action form,
// e.g. "invoices.view" or "settings.invoice.update"
type Permission string

// Resource returns the resource segment of the permission
func (p Permission) Resource() string {
	if idx := strings.Index(string(p), "."); idx >= 0 {
		return string(p)[:idx]
	}
	return string(p)
}

// Action returns everything after the resource segment
func (p Permission) Action() string {
	if idx := strings.Index(string(p), "."); idx >= 0 {
		return string(p)[idx+1:]
	}
	return ""
}

// Role is a named set of permissions. Permissions are seeded, not
// API-mutable.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPermission reports whether the role grants the permission
func (r *Role) HasPermission(p Permission) bool {
	for _, perm := range r.Permissions {
		if perm == p {
			return true
		}
	}
	return false
}

// OwnershipMembership links a user to an ownership
type OwnershipMembership struct {
	OwnershipID int64     `json:"ownership_id"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is an authenticated identity with roles and ownership memberships
type User struct {
	ID          int64                 `json:"id"`
	UUID        string                `json:"uuid"`
	Name        string                `json:"name"`
	Email       string                `json:"email"`
	Phone       string                `json:"phone,omitempty"`
	Active      bool                  `json:"active"`
	Roles       []Role                `json:"roles"`
	Memberships []OwnershipMembership `json:"memberships"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// HasRole reports whether the user holds a role by name
func (u *User) HasRole(name string) bool {
	for _, role := range u.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// IsSuperAdmin reports whether the user holds the Super Admin role
func (u *User) IsSuperAdmin() bool {
	return u.HasRole(RoleSuperAdmin)
}

// IsCollector reports whether the user holds the Collector role
func (u *User) IsCollector() bool {
	return u.HasRole(RoleCollector)
}

// HasPermission reports whether any of the user's roles grants the
// permission. This checks the raw permission set only; the Super Admin
// bypass is applied by policies, not here.
func (u *User) HasPermission(p Permission) bool {
	for i := range u.Roles {
		if u.Roles[i].HasPermission(p) {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one of the
// given permissions
func (u *User) HasAnyPermission(perms ...Permission) bool {
	for _, p := range perms {
		if u.HasPermission(p) {
			return true
		}
	}
	return false
}

// HasOwnership reports whether the user is a member of the ownership
func (u *User) HasOwnership(ownershipID int64) bool {
	for _, m := range u.Memberships {
		if m.OwnershipID == ownershipID {
			return true
		}
	}
	return false
}

// DefaultOwnershipID returns the user's default ownership: the membership
// flagged default, else the earliest membership. Returns false when the
// user has no memberships.
func (u *User) DefaultOwnershipID() (int64, bool) {
	if len(u.Memberships) == 0 {
		return 0, false
	}
	for _, m := range u.Memberships {
		if m.IsDefault {
			return m.OwnershipID, true
		}
	}
	return u.Memberships[0].OwnershipID, true
}

// OwnershipIDs returns all ownership IDs the user belongs to
func (u *User) OwnershipIDs() []int64 {
	ids := make([]int64, 0, len(u.Memberships))
	for _, m := range u.Memberships {
		ids = append(ids, m.OwnershipID)
	}
	return ids
}

// SharesOwnershipWith reports whether both users belong to at least one
// common ownership
func (u *User) SharesOwnershipWith(other *User) bool {
	if other == nil {
		return false
	}
	for _, m := range u.Memberships {
		for _, om := range other.Memberships {
			if m.OwnershipID == om.OwnershipID {
				return true
			}
		}
	}
	return false
}
