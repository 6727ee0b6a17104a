// Package status defines the closed status enums for invoices, contracts,
// payments and tenant invitations, together with their transition tables.
//
// Transition rules live in static lookup tables rather than scattered
// conditionals so every allowed edge is visible in one place.
package status

import "fmt"

// InvoiceStatus is the lifecycle state of an invoice
type InvoiceStatus string

// Invoice statuses
const (
	InvoiceDraft     InvoiceStatus = "draft"
	InvoicePending   InvoiceStatus = "pending"
	InvoiceSent      InvoiceStatus = "sent"
	InvoiceViewed    InvoiceStatus = "viewed"
	InvoicePartial   InvoiceStatus = "partial"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceRefunded  InvoiceStatus = "refunded"
)

// invoiceTransitions is the adjacency list of allowed invoice transitions.
// Terminal statuses map to an empty set.
var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceDraft:     {InvoicePending, InvoiceSent, InvoiceCancelled},
	InvoicePending:   {InvoiceSent, InvoiceCancelled},
	InvoiceSent:      {InvoiceViewed, InvoicePartial, InvoicePaid, InvoiceOverdue, InvoiceCancelled},
	InvoiceViewed:    {InvoicePartial, InvoicePaid, InvoiceOverdue},
	InvoicePartial:   {InvoicePaid, InvoiceOverdue},
	InvoiceOverdue:   {InvoicePartial, InvoicePaid, InvoiceCancelled},
	InvoicePaid:      {InvoiceRefunded},
	InvoiceCancelled: {},
	InvoiceRefunded:  {},
}

// AllowedNext returns the statuses an invoice may transition to
func (s InvoiceStatus) AllowedNext() []InvoiceStatus {
	return invoiceTransitions[s]
}

// CanTransitionTo reports whether the transition s -> next is allowed
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether the status is terminal: paid, cancelled or
// refunded invoices only ever change through status-driven side effects
func (s InvoiceStatus) IsFinal() bool {
	return s == InvoicePaid || s == InvoiceCancelled || s == InvoiceRefunded
}

// AllowsEditing reports whether invoice fields are freely editable.
// Anything past pending requires an explicit edit-sent grant.
func (s InvoiceStatus) AllowsEditing() bool {
	return s == InvoiceDraft || s == InvoicePending
}

// AllowsDeletion reports whether the invoice may be deleted
func (s InvoiceStatus) AllowsDeletion() bool {
	return s == InvoiceDraft || s == InvoicePending || s == InvoiceCancelled
}

// Valid reports whether s is a known invoice status
func (s InvoiceStatus) Valid() bool {
	_, ok := invoiceTransitions[s]
	return ok
}

// ContractStatus is the lifecycle state of a contract
type ContractStatus string

// Contract statuses
const (
	ContractDraft      ContractStatus = "draft"
	ContractPending    ContractStatus = "pending"
	ContractActive     ContractStatus = "active"
	ContractExpired    ContractStatus = "expired"
	ContractTerminated ContractStatus = "terminated"
	ContractCancelled  ContractStatus = "cancelled"
)

var contractTransitions = map[ContractStatus][]ContractStatus{
	ContractDraft:      {ContractPending, ContractActive, ContractCancelled},
	ContractPending:    {ContractActive, ContractCancelled},
	ContractActive:     {ContractExpired, ContractTerminated, ContractCancelled},
	ContractExpired:    {},
	ContractTerminated: {},
	ContractCancelled:  {},
}

// AllowedNext returns the statuses a contract may transition to
func (s ContractStatus) AllowedNext() []ContractStatus {
	return contractTransitions[s]
}

// CanTransitionTo reports whether the transition s -> next is allowed
func (s ContractStatus) CanTransitionTo(next ContractStatus) bool {
	for _, allowed := range contractTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether the contract status is terminal
func (s ContractStatus) IsFinal() bool {
	return s == ContractExpired || s == ContractTerminated || s == ContractCancelled
}

// Valid reports whether s is a known contract status
func (s ContractStatus) Valid() bool {
	_, ok := contractTransitions[s]
	return ok
}

// PaymentStatus is the lifecycle state of a payment
type PaymentStatus string

// Payment statuses
const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentUnpaid  PaymentStatus = "unpaid"
)

// pending/paid/unpaid are freely convertible between each other; there
// are no terminal payment statuses
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentUnpaid},
	PaymentPaid:    {PaymentUnpaid},
	PaymentUnpaid:  {PaymentPaid, PaymentPending},
}

// AllowedNext returns the statuses a payment may transition to
func (s PaymentStatus) AllowedNext() []PaymentStatus {
	return paymentTransitions[s]
}

// CanTransitionTo reports whether the transition s -> next is allowed
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known payment status
func (s PaymentStatus) Valid() bool {
	_, ok := paymentTransitions[s]
	return ok
}

// InvitationStatus is the lifecycle state of a tenant invitation
type InvitationStatus string

// Invitation statuses
const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationCancelled InvitationStatus = "cancelled"
	InvitationExpired   InvitationStatus = "expired"
)

var invitationTransitions = map[InvitationStatus][]InvitationStatus{
	InvitationPending:   {InvitationAccepted, InvitationCancelled, InvitationExpired},
	InvitationAccepted:  {},
	InvitationCancelled: {},
	InvitationExpired:   {},
}

// AllowedNext returns the statuses an invitation may transition to
func (s InvitationStatus) AllowedNext() []InvitationStatus {
	return invitationTransitions[s]
}

// CanTransitionTo reports whether the transition s -> next is allowed
func (s InvitationStatus) CanTransitionTo(next InvitationStatus) bool {
	for _, allowed := range invitationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsFinal reports whether the invitation status is terminal
func (s InvitationStatus) IsFinal() bool {
	return s != InvitationPending
}

// Valid reports whether s is a known invitation status
func (s InvitationStatus) Valid() bool {
	_, ok := invitationTransitions[s]
	return ok
}

// InvalidTransitionError is returned when a requested status change is not
// in the current status's allowed set. The entity is left unchanged.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

// Error implements the error interface
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s status transition: %s -> %s", e.Entity, e.From, e.To)
}

// NewInvalidTransition builds an InvalidTransitionError for the given entity
func NewInvalidTransition(entity, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Entity: entity, From: from, To: to}
}
