package tenants

import (
	"context"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/settings"
)

// CollectorFilter computes which tenants a collector may see inside an
// ownership.
type CollectorFilter struct {
	store    *Store
	settings *settings.InvoiceSettings
}

// NewCollectorFilter creates a collector visibility filter
func NewCollectorFilter(store *Store, settings *settings.InvoiceSettings) *CollectorFilter {
	return &CollectorFilter{store: store, settings: settings}
}

// VisibleTenants resolves the collector's visibility for an ownership:
//
//   - collector system disabled for the ownership: empty set
//   - see-all setting on: unrestricted within the ownership
//   - zero active assignments: unrestricted (absence of explicit
//     assignment means "unrestricted", not "no access")
//   - otherwise: exactly the assigned tenant IDs
//
// Invoices and payments additionally require a contract chain to a
// visible tenant; standalone records stay invisible to collectors
// regardless of this result.
func (f *CollectorFilter) VisibleTenants(ctx context.Context, collector *auth.User, ownershipID int64) (Visibility, error) {
	if !f.settings.CollectorSystemEnabled(ctx, ownershipID) {
		return Visibility{}, nil
	}

	if f.settings.CollectorSeeAllTenants(ctx, ownershipID) {
		return Visibility{Unrestricted: true}, nil
	}

	assigned, err := f.store.ActiveAssignedTenantIDs(ctx, collector.ID, ownershipID)
	if err != nil {
		return Visibility{}, err
	}

	if len(assigned) == 0 {
		return Visibility{Unrestricted: true}, nil
	}

	return Visibility{TenantIDs: assigned}, nil
}
