package invoices

import (
	"context"
	"errors"
	"time"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/status"
)

// PermEditSent lets a user edit invoices that have already gone out
const PermEditSent auth.Permission = "invoices.editSent"

// ErrEditNotAllowed rejects edits the invoice's status forbids
var ErrEditNotAllowed = errors.New("invoice cannot be edited in its current status")

// EditScope says how much of an invoice a caller may change
type EditScope int

const (
	// EditNone forbids all edits
	EditNone EditScope = iota
	// EditRestricted allows notes and due date only
	EditRestricted
	// EditFull allows every editable field
	EditFull
)

// InvoiceEdit is a partial update. Nil fields are left untouched.
type InvoiceEdit struct {
	Number      *string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	DueDate     *time.Time
	Amount      *float64
	TaxRate     *float64
	Notes       *string
}

// restrictedOnly reports whether the edit touches nothing beyond notes
// and due date
func (e *InvoiceEdit) restrictedOnly() bool {
	return e.Number == nil && e.PeriodStart == nil && e.PeriodEnd == nil &&
		e.Amount == nil && e.TaxRate == nil
}

// EditRules decides how much of an invoice a user may change, from the
// invoice's status, the user's permissions and the ownership's settings
type EditRules struct {
	settings *settings.InvoiceSettings
}

// NewEditRules creates the edit rules
func NewEditRules(invoiceSettings *settings.InvoiceSettings) *EditRules {
	return &EditRules{settings: invoiceSettings}
}

// Scope returns the edit scope for one invoice and user
func (r *EditRules) Scope(ctx context.Context, inv *Invoice, user *auth.User) EditScope {
	switch inv.Status {
	case status.InvoiceDraft, status.InvoicePending:
		if r.settings.AllowEditDraft(ctx, inv.OwnershipID) {
			return EditFull
		}
		return EditNone
	case status.InvoiceSent, status.InvoiceViewed, status.InvoiceOverdue:
		if user.HasPermission(PermEditSent) && r.settings.AllowEditSent(ctx, inv.OwnershipID) {
			return EditFull
		}
		return EditNone
	case status.InvoicePartial:
		return EditRestricted
	default:
		// paid, cancelled, refunded
		return EditNone
	}
}

// ApplyEdit checks the edit against the caller's scope, merges it into
// the invoice and writes it back with tax and total recomputed
func (s *Service) ApplyEdit(ctx context.Context, inv *Invoice, edit *InvoiceEdit, user *auth.User) error {
	rules := NewEditRules(s.settings)
	switch rules.Scope(ctx, inv, user) {
	case EditNone:
		return ErrEditNotAllowed
	case EditRestricted:
		if !edit.restrictedOnly() {
			return ErrEditNotAllowed
		}
	}

	if edit.Number != nil {
		inv.Number = *edit.Number
	}
	if edit.PeriodStart != nil {
		inv.PeriodStart = *edit.PeriodStart
	}
	if edit.PeriodEnd != nil {
		inv.PeriodEnd = *edit.PeriodEnd
	}
	if edit.DueDate != nil {
		inv.DueDate = *edit.DueDate
	}
	if edit.Amount != nil {
		inv.Amount = *edit.Amount
	}
	if edit.TaxRate != nil {
		inv.TaxRate = *edit.TaxRate
	}
	if edit.Notes != nil {
		inv.Notes = *edit.Notes
	}
	return s.store.Update(ctx, inv)
}
