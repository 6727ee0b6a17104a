// Package policy is the single authorization entry point. Decisions
// dispatch on a closed resource-kind enum; each arm is a pure rule over
// the user, the action and the target. Out-of-scope resources surface
// as not found rather than forbidden so their existence never leaks.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// Decision errors
var (
	// ErrForbidden denies an action the user may not perform
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound hides resources outside the user's ownerships
	ErrNotFound = errors.New("not found")
)

// ResourceKind enumerates the protected resource types
type ResourceKind string

const (
	KindContract         ResourceKind = "contract"
	KindInvoice          ResourceKind = "invoice"
	KindPayment          ResourceKind = "payment"
	KindTenant           ResourceKind = "tenant"
	KindTenantInvitation ResourceKind = "tenant_invitation"
	KindDocument         ResourceKind = "document"
	KindFile             ResourceKind = "file"
	KindSetting          ResourceKind = "setting"
	KindNotification     ResourceKind = "notification"
	KindUser             ResourceKind = "user"
	KindOwnership        ResourceKind = "ownership"
)

// permission resource segment per kind
var permissionResource = map[ResourceKind]string{
	KindContract:         "contracts",
	KindInvoice:          "invoices",
	KindPayment:          "payments",
	KindTenant:           "tenants",
	KindTenantInvitation: "tenant_invitations",
	KindDocument:         "documents",
	KindFile:             "files",
	KindSetting:          "settings",
	KindNotification:     "notifications",
	KindUser:             "auth.users",
	KindOwnership:        "ownerships",
}

// Action names an operation on a resource
type Action string

const (
	ActionViewAny Action = "viewAny"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"

	// resource-specific actions; these never get the Super Admin
	// permission bypass
	ActionApprove             Action = "approve"
	ActionSend                Action = "send"
	ActionCancel              Action = "cancel"
	ActionEditSent            Action = "editSent"
	ActionEditDraft           Action = "editDraft"
	ActionAssign              Action = "assign"
	ActionCloseWithoutContact Action = "closeWithoutContact"
)

// baseCRUD reports whether the action gets the Super Admin short-circuit
func (a Action) baseCRUD() bool {
	switch a {
	case ActionViewAny, ActionView, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Permission returns the resource.action permission string for a kind
func (a Action) Permission(kind ResourceKind) auth.Permission {
	return auth.Permission(fmt.Sprintf("%s.%s", permissionResource[kind], a))
}

// Engine evaluates authorization decisions
type Engine struct {
	collector *tenants.CollectorFilter
	contracts *contracts.Store
	settings  *settings.InvoiceSettings
	metrics   *observability.Metrics
}

// NewEngine creates a policy engine. metrics may be nil.
func NewEngine(collector *tenants.CollectorFilter, contractStore *contracts.Store, invoiceSettings *settings.InvoiceSettings, metrics *observability.Metrics) *Engine {
	return &Engine{
		collector: collector,
		contracts: contractStore,
		settings:  invoiceSettings,
		metrics:   metrics,
	}
}

// Authorize decides one action. target may be nil for class-level
// actions (viewAny, create); otherwise it must be the domain value the
// kind names. A nil error means allowed.
func (e *Engine) Authorize(ctx context.Context, user *auth.User, action Action, kind ResourceKind, target interface{}) error {
	err := e.decide(ctx, user, action, kind, target)
	if e.metrics != nil {
		e.metrics.ObserveAuthzDecision(string(kind), string(action), err == nil)
	}
	return err
}

func (e *Engine) decide(ctx context.Context, user *auth.User, action Action, kind ResourceKind, target interface{}) error {
	switch kind {
	case KindInvoice:
		inv, _ := target.(*invoices.Invoice)
		return e.authorizeInvoice(ctx, user, action, inv)
	case KindPayment:
		p, _ := target.(*invoices.Payment)
		return e.authorizePayment(ctx, user, action, p)
	case KindContract:
		c, _ := target.(*contracts.Contract)
		return e.authorizeContract(ctx, user, action, c)
	case KindTenant:
		tn, _ := target.(*tenants.Tenant)
		return e.authorizeTenant(ctx, user, action, tn)
	case KindTenantInvitation:
		inv, _ := target.(*tenants.TenantInvitation)
		return e.authorizeInvitation(user, action, inv)
	case KindSetting:
		s, _ := target.(*settings.SystemSetting)
		return e.authorizeSetting(user, action, s)
	case KindUser:
		other, _ := target.(*auth.User)
		return e.authorizeUser(user, action, other)
	case KindDocument, KindFile, KindNotification, KindOwnership:
		return e.base(user, action, kind, targetOwnership(target))
	default:
		return ErrForbidden
	}
}

// scoped is the ownership id carried by plain scoped targets
type scoped interface {
	Ownership() int64
}

func targetOwnership(target interface{}) *int64 {
	if s, ok := target.(scoped); ok {
		id := s.Ownership()
		return &id
	}
	return nil
}

// base applies the general algorithm: Super Admin short-circuits base
// CRUD; everyone else needs the named permission and, when the target
// is scoped, membership in its ownership. Scope failures come back as
// not found.
func (e *Engine) base(user *auth.User, action Action, kind ResourceKind, ownershipID *int64) error {
	if user.IsSuperAdmin() {
		if action.baseCRUD() {
			return nil
		}
		if !user.HasPermission(action.Permission(kind)) {
			return ErrForbidden
		}
		return nil
	}
	if ownershipID != nil && !user.HasOwnership(*ownershipID) {
		return ErrNotFound
	}
	if !user.HasPermission(action.Permission(kind)) {
		return ErrForbidden
	}
	return nil
}

func ownershipOf(id int64) *int64 { return &id }
