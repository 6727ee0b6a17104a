package settings

import "context"

// Setting keys consulted by the invoice and collector rules
const (
	KeyInvoiceAllowEditSent       = "invoice_allow_edit_sent"
	KeyInvoiceAllowEditDraft      = "invoice_allow_edit_draft"
	KeyInvoiceAutoMarkPaid        = "invoice_auto_mark_paid"
	KeyInvoiceAllowPartialPayment = "invoice_allow_partial_payment"
	KeyInvoiceStatusWorkflow      = "invoice_status_workflow"
	KeyInvoiceDueDays             = "invoice_due_days"
	KeyCollectorSystemEnabled     = "collector_system_enabled"
	KeyCollectorSeeAllTenants     = "collector_see_all_tenants"
)

// Workflow modes for invoice status handling
const (
	WorkflowStrict  = "strict"
	WorkflowRelaxed = "relaxed"
)

// Setting groups
const (
	GroupInvoice   = "invoice"
	GroupCollector = "collector"
)

// InvoiceSettings is the typed facade over the settings the invoice and
// collector subsystems consult, with their seeded defaults.
type InvoiceSettings struct {
	svc *Service
}

// NewInvoiceSettings creates the typed facade
func NewInvoiceSettings(svc *Service) *InvoiceSettings {
	return &InvoiceSettings{svc: svc}
}

// AllowEditSent reports whether invoices past sent may still be edited
func (f *InvoiceSettings) AllowEditSent(ctx context.Context, ownershipID int64) bool {
	return f.svc.GetBool(ctx, KeyInvoiceAllowEditSent, ownershipID, false)
}

// AllowEditDraft reports whether draft/pending invoices may be edited
func (f *InvoiceSettings) AllowEditDraft(ctx context.Context, ownershipID int64) bool {
	return f.svc.GetBool(ctx, KeyInvoiceAllowEditDraft, ownershipID, true)
}

// AutoMarkPaid reports whether newly recorded payments are marked paid
// immediately instead of waiting for confirmation
func (f *InvoiceSettings) AutoMarkPaid(ctx context.Context, ownershipID int64) bool {
	return f.svc.GetBool(ctx, KeyInvoiceAutoMarkPaid, ownershipID, false)
}

// AllowPartialPayment reports whether partial payments are accepted
func (f *InvoiceSettings) AllowPartialPayment(ctx context.Context, ownershipID int64) bool {
	return f.svc.GetBool(ctx, KeyInvoiceAllowPartialPayment, ownershipID, true)
}

// StatusWorkflow returns the configured workflow mode
func (f *InvoiceSettings) StatusWorkflow(ctx context.Context, ownershipID int64) string {
	return f.svc.GetString(ctx, KeyInvoiceStatusWorkflow, ownershipID, WorkflowStrict)
}

// DueDays returns how many days after generation an invoice falls due
func (f *InvoiceSettings) DueDays(ctx context.Context, ownershipID int64) int64 {
	return f.svc.GetInt(ctx, KeyInvoiceDueDays, ownershipID, 30)
}

// CollectorSystemEnabled reports whether the collector subsystem is on
// for the ownership. When off, collectors see nothing.
func (f *InvoiceSettings) CollectorSystemEnabled(ctx context.Context, ownershipID int64) bool {
	return f.svc.GetBool(ctx, KeyCollectorSystemEnabled, ownershipID, true)
}

// CollectorSeeAllTenants reports whether collectors see the whole
// ownership regardless of assignments
func (f *InvoiceSettings) CollectorSeeAllTenants(ctx context.Context, ownershipID int64) bool {
	return f.svc.GetBool(ctx, KeyCollectorSeeAllTenants, ownershipID, false)
}
