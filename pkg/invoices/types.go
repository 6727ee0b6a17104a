// Package invoices models invoices, their line items and payments, and
// implements the payment reconciliation that keeps an invoice's status
// consistent with the sum of its paid payments.
package invoices

import (
	"errors"
	"math"
	"time"

	"github.com/aqarly/aqarly/pkg/status"
)

// Domain errors
var (
	ErrInvoiceNotFound   = errors.New("invoice not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrOverpayment       = errors.New("payment exceeds invoice remaining balance")
	ErrPartialNotAllowed = errors.New("partial payments are not allowed for this ownership")
)

// PaymentMethod enumerates how a payment was made
type PaymentMethod string

// Payment methods
const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCheck        PaymentMethod = "check"
	MethodOther        PaymentMethod = "other"
)

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCheck, MethodOther:
		return true
	}
	return false
}

// Invoice is a bill issued inside one ownership. ContractID nil makes
// the invoice "standalone"; standalone invoices are invisible to
// collectors.
type Invoice struct {
	ID          int64                `json:"id"`
	UUID        string               `json:"uuid"`
	OwnershipID int64                `json:"ownership_id"`
	ContractID  *int64               `json:"contract_id,omitempty"`
	Number      string               `json:"number"`
	PeriodStart time.Time            `json:"period_start"`
	PeriodEnd   time.Time            `json:"period_end"`
	DueDate     time.Time            `json:"due_date"`
	Amount      float64              `json:"amount"`
	TaxRate     float64              `json:"tax_rate"`
	Tax         float64              `json:"tax"`
	Total       float64              `json:"total"`
	Status      status.InvoiceStatus `json:"status"`
	Notes       string               `json:"notes,omitempty"`
	GeneratedBy *int64               `json:"generated_by,omitempty"`
	GeneratedAt *time.Time           `json:"generated_at,omitempty"`
	PaidAt      *time.Time           `json:"paid_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// ComputeDerived recomputes tax and total from amount and tax rate,
// rounded to two decimal places
func (i *Invoice) ComputeDerived() {
	i.Tax = Round2(i.Amount * i.TaxRate / 100)
	i.Total = Round2(i.Amount + i.Tax)
}

// Remaining returns the unpaid balance given the sum of paid payments.
// Never negative.
func (i *Invoice) Remaining(paidSum float64) float64 {
	remaining := Round2(i.Total - paidSum)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Standalone reports whether the invoice has no contract
func (i *Invoice) Standalone() bool {
	return i.ContractID == nil
}

// InvoiceItem is a line item. Total is quantity times unit price,
// recomputed on save.
type InvoiceItem struct {
	ID          int64   `json:"id"`
	InvoiceID   int64   `json:"invoice_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// ComputeTotal recomputes the line total
func (it *InvoiceItem) ComputeTotal() {
	it.Total = Round2(it.Quantity * it.UnitPrice)
}

// Payment records money received against an invoice. The payment's
// ownership always equals the invoice's.
type Payment struct {
	ID            int64                `json:"id"`
	UUID          string               `json:"uuid"`
	OwnershipID   int64                `json:"ownership_id"`
	InvoiceID     int64                `json:"invoice_id"`
	Method        PaymentMethod        `json:"method"`
	TransactionID string               `json:"transaction_id,omitempty"`
	Amount        float64              `json:"amount"`
	Status        status.PaymentStatus `json:"status"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	ConfirmedBy   *int64               `json:"confirmed_by,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// InvoiceStatusLog records one invoice status change. The latest
// pre-payment entry supplies the revert target when payments fall back
// below the total.
type InvoiceStatusLog struct {
	ID         int64                `json:"id"`
	InvoiceID  int64                `json:"invoice_id"`
	FromStatus status.InvoiceStatus `json:"from_status"`
	ToStatus   status.InvoiceStatus `json:"to_status"`
	ChangedBy  *int64               `json:"changed_by,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
