package policy

import (
	"context"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/status"
	"github.com/aqarly/aqarly/pkg/tenants"
)

func (e *Engine) authorizeInvoice(ctx context.Context, user *auth.User, action Action, inv *invoices.Invoice) error {
	if inv == nil {
		return e.base(user, action, KindInvoice, nil)
	}

	// Collectors see an invoice only through the contract chain: a
	// standalone invoice is invisible, and the contract's tenant must
	// pass the visibility filter. The generic ownership check is
	// replaced, not stacked.
	if action == ActionView && user.IsCollector() && !user.IsSuperAdmin() {
		if !user.HasPermission(action.Permission(KindInvoice)) {
			return ErrForbidden
		}
		return e.collectorCanReach(ctx, user, inv.OwnershipID, inv.ContractID)
	}

	switch action {
	case ActionEditSent:
		if err := e.base(user, ActionEditSent, KindInvoice, ownershipOf(inv.OwnershipID)); err != nil {
			return err
		}
		if !e.settings.AllowEditSent(ctx, inv.OwnershipID) {
			return ErrForbidden
		}
		return nil
	case ActionEditDraft:
		if inv.Status != status.InvoiceDraft {
			return ErrForbidden
		}
		return e.base(user, ActionUpdate, KindInvoice, ownershipOf(inv.OwnershipID))
	default:
		return e.base(user, action, KindInvoice, ownershipOf(inv.OwnershipID))
	}
}

func (e *Engine) authorizePayment(ctx context.Context, user *auth.User, action Action, p *invoices.Payment) error {
	if p == nil {
		return e.base(user, action, KindPayment, nil)
	}

	// Same contract-chain rule as invoices, through the payment's invoice
	if action == ActionView && user.IsCollector() && !user.IsSuperAdmin() {
		if !user.HasPermission(action.Permission(KindPayment)) {
			return ErrForbidden
		}
		contract, err := e.contractForInvoice(ctx, p.InvoiceID, p.OwnershipID)
		if err != nil {
			return err
		}
		return e.collectorAllowsTenant(ctx, user, p.OwnershipID, contract.TenantID)
	}
	return e.base(user, action, KindPayment, ownershipOf(p.OwnershipID))
}

func (e *Engine) authorizeContract(ctx context.Context, user *auth.User, action Action, c *contracts.Contract) error {
	if c == nil {
		return e.base(user, action, KindContract, nil)
	}
	if action == ActionView && user.IsCollector() && !user.IsSuperAdmin() {
		if !user.HasPermission(action.Permission(KindContract)) {
			return ErrForbidden
		}
		return e.collectorAllowsTenant(ctx, user, c.OwnershipID, c.TenantID)
	}
	return e.base(user, action, KindContract, ownershipOf(c.OwnershipID))
}

func (e *Engine) authorizeTenant(ctx context.Context, user *auth.User, action Action, tn *tenants.Tenant) error {
	if tn == nil {
		return e.base(user, action, KindTenant, nil)
	}
	if action == ActionView && user.IsCollector() && !user.IsSuperAdmin() {
		if !user.HasPermission(action.Permission(KindTenant)) {
			return ErrForbidden
		}
		return e.collectorAllowsTenant(ctx, user, tn.OwnershipID, tn.ID)
	}
	return e.base(user, action, KindTenant, ownershipOf(tn.OwnershipID))
}

func (e *Engine) authorizeInvitation(user *auth.User, action Action, inv *tenants.TenantInvitation) error {
	if inv == nil {
		return e.base(user, action, KindTenantInvitation, nil)
	}
	if action == ActionCloseWithoutContact {
		// only generic invitations may be closed this way, no matter
		// who asks
		if !inv.IsGeneric() {
			return ErrForbidden
		}
		return e.base(user, ActionCancel, KindTenantInvitation, ownershipOf(inv.OwnershipID))
	}
	return e.base(user, action, KindTenantInvitation, ownershipOf(inv.OwnershipID))
}

// authorizeSetting keeps the settings asymmetry: Super Admin has no
// permission bypass here, and system-wide rows are Super Admin only
func (e *Engine) authorizeSetting(user *auth.User, action Action, s *settings.SystemSetting) error {
	if s == nil {
		return ErrForbidden
	}

	verb := "view"
	if action == ActionUpdate || action == ActionCreate || action == ActionDelete {
		verb = "update"
	}

	if s.SystemWide() {
		if !user.IsSuperAdmin() {
			return ErrForbidden
		}
		if !user.HasPermission(auth.Permission("settings.system." + verb)) {
			return ErrForbidden
		}
		return nil
	}

	if !user.HasPermission(auth.Permission("settings." + s.Group + "." + verb)) {
		return ErrForbidden
	}
	if !user.IsSuperAdmin() && s.OwnershipID != nil && !user.HasOwnership(*s.OwnershipID) {
		return ErrNotFound
	}
	return nil
}

func (e *Engine) authorizeUser(user *auth.User, action Action, other *auth.User) error {
	if other == nil {
		return e.base(user, action, KindUser, nil)
	}
	self := user.ID == other.ID

	switch action {
	case ActionView:
		if self || user.IsSuperAdmin() {
			return nil
		}
		if user.HasPermission("auth.users.view") {
			return nil
		}
		if user.HasPermission("auth.users.view.own") && user.SharesOwnershipWith(other) {
			return nil
		}
		return ErrForbidden
	case ActionUpdate:
		if self || user.IsSuperAdmin() {
			return nil
		}
		if user.HasPermission("auth.users.update") && user.SharesOwnershipWith(other) {
			return nil
		}
		return ErrForbidden
	case ActionDelete:
		// nobody deletes themselves
		if self {
			return ErrForbidden
		}
		return e.base(user, action, KindUser, nil)
	default:
		return e.base(user, action, KindUser, nil)
	}
}

// collectorCanReach checks the contract chain from an invoice
func (e *Engine) collectorCanReach(ctx context.Context, user *auth.User, ownershipID int64, contractID *int64) error {
	if contractID == nil {
		return ErrNotFound
	}
	contract, err := e.contracts.Get(ctx, *contractID, ownershipID)
	if err != nil {
		return ErrNotFound
	}
	return e.collectorAllowsTenant(ctx, user, ownershipID, contract.TenantID)
}

func (e *Engine) collectorAllowsTenant(ctx context.Context, user *auth.User, ownershipID, tenantID int64) error {
	vis, err := e.collector.VisibleTenants(ctx, user, ownershipID)
	if err != nil {
		return err
	}
	if !vis.Allows(tenantID) {
		return ErrNotFound
	}
	return nil
}

func (e *Engine) contractForInvoice(ctx context.Context, invoiceID, ownershipID int64) (*contracts.Contract, error) {
	contract, err := e.contracts.GetByInvoice(ctx, invoiceID, ownershipID)
	if err != nil {
		return nil, ErrNotFound
	}
	return contract, nil
}
