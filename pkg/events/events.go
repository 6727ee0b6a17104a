// Package events defines the domain events the core emits on lifecycle
// changes and the outbound dispatcher they flow through. Transports
// (mail, push, webhooks) are collaborators consuming the dispatcher; the
// core never blocks on delivery.
package events

import "time"

// EventType identifies a domain event
type EventType string

const (
	EventContractStatusChanged      EventType = "contract.status_changed"
	EventContractApproved           EventType = "contract.approved"
	EventInvoiceStatusChanged       EventType = "invoice.status_changed"
	EventInvoiceSent                EventType = "invoice.sent"
	EventInvoicePaid                EventType = "invoice.paid"
	EventPaymentConfirmed           EventType = "payment.confirmed"
	EventPaymentReverted            EventType = "payment.reverted"
	EventTenantInvited              EventType = "tenant.invited"
	EventTenantInvitationAccepted   EventType = "tenant.invitation_accepted"
)

// Event is a plain domain-event value
type Event interface {
	Type() EventType
}

// ContractStatusChanged fires on every contract transition
type ContractStatusChanged struct {
	ContractID  int64
	OwnershipID int64
	From        string
	To          string
	ActorID     int64
}

// Type implements Event
func (ContractStatusChanged) Type() EventType { return EventContractStatusChanged }

// ContractApproved fires when a contract enters active
type ContractApproved struct {
	ContractID  int64
	OwnershipID int64
	ApprovedBy  int64
}

// Type implements Event
func (ContractApproved) Type() EventType { return EventContractApproved }

// InvoiceStatusChanged fires on every invoice transition
type InvoiceStatusChanged struct {
	InvoiceID   int64
	OwnershipID int64
	From        string
	To          string
}

// Type implements Event
func (InvoiceStatusChanged) Type() EventType { return EventInvoiceStatusChanged }

// InvoiceSent fires when an invoice is sent to the tenant
type InvoiceSent struct {
	InvoiceID   int64
	OwnershipID int64
	ContractID  *int64
}

// Type implements Event
func (InvoiceSent) Type() EventType { return EventInvoiceSent }

// InvoicePaid fires when reconciliation settles an invoice
type InvoicePaid struct {
	InvoiceID   int64
	OwnershipID int64
	PaidAt      time.Time
}

// Type implements Event
func (InvoicePaid) Type() EventType { return EventInvoicePaid }

// PaymentConfirmed fires when a payment is marked paid
type PaymentConfirmed struct {
	PaymentID   int64
	InvoiceID   int64
	OwnershipID int64
	Amount      float64
	ConfirmedBy int64
}

// Type implements Event
func (PaymentConfirmed) Type() EventType { return EventPaymentConfirmed }

// PaymentReverted fires when a paid payment is marked unpaid
type PaymentReverted struct {
	PaymentID   int64
	InvoiceID   int64
	OwnershipID int64
}

// Type implements Event
func (PaymentReverted) Type() EventType { return EventPaymentReverted }

// TenantInvited fires when an invitation is issued
type TenantInvited struct {
	InvitationID int64
	OwnershipID  int64
	Email        string
	Phone        string
}

// Type implements Event
func (TenantInvited) Type() EventType { return EventTenantInvited }

// TenantInvitationAccepted fires when an invitation is accepted.
// AcceptedBy is nil for generic invitations.
type TenantInvitationAccepted struct {
	InvitationID int64
	OwnershipID  int64
	AcceptedBy   *int64
}

// Type implements Event
func (TenantInvitationAccepted) Type() EventType { return EventTenantInvitationAccepted }
