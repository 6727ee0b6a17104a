// Package tenants models tenants, tenant invitations and the collector
// assignment records that drive collector visibility.
package tenants

import (
	"time"

	"github.com/aqarly/aqarly/pkg/status"
)

// Tenant is a renter profile inside one ownership. One tenant may hold
// many contracts.
type Tenant struct {
	ID          int64      `json:"id"`
	UUID        string     `json:"uuid"`
	OwnershipID int64      `json:"ownership_id"`
	UserID      *int64     `json:"user_id,omitempty"`
	Name        string     `json:"name"`
	NationalID  string     `json:"national_id,omitempty"`
	IDExpiry    *time.Time `json:"id_expiry,omitempty"`
	Rating      int        `json:"rating"`
	Employer    string     `json:"employer,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TenantInvitation invites a renter into an ownership. An invitation with
// neither email nor phone is "generic": multi-use, closed only manually.
type TenantInvitation struct {
	ID          int64                   `json:"id"`
	UUID        string                  `json:"uuid"`
	OwnershipID int64                   `json:"ownership_id"`
	Email       string                  `json:"email,omitempty"`
	Phone       string                  `json:"phone,omitempty"`
	Name        string                  `json:"name,omitempty"`
	Token       string                  `json:"token"`
	Status      status.InvitationStatus `json:"status"`
	ExpiresAt   *time.Time              `json:"expires_at,omitempty"`
	AcceptedAt  *time.Time              `json:"accepted_at,omitempty"`
	AcceptedBy  *int64                  `json:"accepted_by,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// IsGeneric reports whether the invitation carries no contact info
func (i *TenantInvitation) IsGeneric() bool {
	return i.Email == "" && i.Phone == ""
}

// ExpiredAt reports whether the invitation's deadline has passed at t
func (i *TenantInvitation) ExpiredAt(t time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(t)
}

// CollectorTenantAssignment restricts a collector to specific tenants
type CollectorTenantAssignment struct {
	ID          int64     `json:"id"`
	CollectorID int64     `json:"collector_id"`
	TenantID    int64     `json:"tenant_id"`
	OwnershipID int64     `json:"ownership_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Visibility is the result of the collector filter: either an explicit
// tenant ID set or unrestricted access within the ownership.
type Visibility struct {
	Unrestricted bool
	TenantIDs    []int64
}

// Empty reports whether the collector sees nothing
func (v Visibility) Empty() bool {
	return !v.Unrestricted && len(v.TenantIDs) == 0
}

// Allows reports whether a tenant falls inside the visible set
func (v Visibility) Allows(tenantID int64) bool {
	if v.Unrestricted {
		return true
	}
	for _, id := range v.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}
