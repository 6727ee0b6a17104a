package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvoiceTransitions(t *testing.T) {
	tests := []struct {
		from    InvoiceStatus
		to      InvoiceStatus
		allowed bool
	}{
		{InvoiceDraft, InvoicePending, true},
		{InvoiceDraft, InvoiceSent, true},
		{InvoiceDraft, InvoiceCancelled, true},
		{InvoiceDraft, InvoicePaid, false},
		{InvoicePending, InvoiceSent, true},
		{InvoicePending, InvoiceViewed, false},
		{InvoiceSent, InvoiceViewed, true},
		{InvoiceSent, InvoicePartial, true},
		{InvoiceSent, InvoicePaid, true},
		{InvoiceSent, InvoiceOverdue, true},
		{InvoiceSent, InvoiceCancelled, true},
		{InvoiceSent, InvoiceDraft, false},
		{InvoiceViewed, InvoicePaid, true},
		{InvoiceViewed, InvoiceCancelled, false},
		{InvoicePartial, InvoicePaid, true},
		{InvoicePartial, InvoiceOverdue, true},
		{InvoicePartial, InvoiceSent, false},
		{InvoiceOverdue, InvoicePartial, true},
		{InvoiceOverdue, InvoiceCancelled, true},
		{InvoicePaid, InvoiceRefunded, true},
		{InvoicePaid, InvoiceSent, false},
		{InvoiceCancelled, InvoiceDraft, false},
		{InvoiceRefunded, InvoicePaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestInvoiceTerminalStatusesHaveNoExits(t *testing.T) {
	for _, s := range []InvoiceStatus{InvoiceCancelled, InvoiceRefunded} {
		assert.Empty(t, s.AllowedNext(), "%s should be terminal", s)
	}
}

func TestInvoiceStatusFlags(t *testing.T) {
	assert.True(t, InvoicePaid.IsFinal())
	assert.True(t, InvoiceCancelled.IsFinal())
	assert.True(t, InvoiceRefunded.IsFinal())
	assert.False(t, InvoiceSent.IsFinal())

	assert.True(t, InvoiceDraft.AllowsEditing())
	assert.True(t, InvoicePending.AllowsEditing())
	assert.False(t, InvoiceSent.AllowsEditing())
	assert.False(t, InvoicePaid.AllowsEditing())

	assert.True(t, InvoiceDraft.AllowsDeletion())
	assert.True(t, InvoicePending.AllowsDeletion())
	assert.True(t, InvoiceCancelled.AllowsDeletion())
	assert.False(t, InvoiceSent.AllowsDeletion())
	assert.False(t, InvoicePaid.AllowsDeletion())

	assert.True(t, InvoiceDraft.Valid())
	assert.False(t, InvoiceStatus("bogus").Valid())
}

func TestContractTransitions(t *testing.T) {
	tests := []struct {
		from    ContractStatus
		to      ContractStatus
		allowed bool
	}{
		{ContractDraft, ContractPending, true},
		{ContractDraft, ContractActive, true},
		{ContractDraft, ContractCancelled, true},
		{ContractDraft, ContractExpired, false},
		{ContractPending, ContractActive, true},
		{ContractPending, ContractCancelled, true},
		{ContractPending, ContractTerminated, false},
		{ContractActive, ContractExpired, true},
		{ContractActive, ContractTerminated, true},
		{ContractActive, ContractCancelled, true},
		{ContractActive, ContractDraft, false},
		{ContractExpired, ContractActive, false},
		{ContractTerminated, ContractActive, false},
		{ContractCancelled, ContractPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}

	assert.True(t, ContractExpired.IsFinal())
	assert.True(t, ContractTerminated.IsFinal())
	assert.True(t, ContractCancelled.IsFinal())
	assert.False(t, ContractActive.IsFinal())
}

func TestPaymentTransitions(t *testing.T) {
	assert.True(t, PaymentPending.CanTransitionTo(PaymentPaid))
	assert.True(t, PaymentPending.CanTransitionTo(PaymentUnpaid))
	assert.True(t, PaymentPaid.CanTransitionTo(PaymentUnpaid))
	assert.True(t, PaymentUnpaid.CanTransitionTo(PaymentPaid))
	assert.True(t, PaymentUnpaid.CanTransitionTo(PaymentPending))

	// paid only ever moves back through unpaid
	assert.False(t, PaymentPaid.CanTransitionTo(PaymentPending))
	assert.False(t, PaymentPaid.CanTransitionTo(PaymentStatus("refunded")))
}

func TestInvitationTransitions(t *testing.T) {
	assert.True(t, InvitationPending.CanTransitionTo(InvitationAccepted))
	assert.True(t, InvitationPending.CanTransitionTo(InvitationCancelled))
	assert.True(t, InvitationPending.CanTransitionTo(InvitationExpired))
	assert.False(t, InvitationAccepted.CanTransitionTo(InvitationPending))
	assert.False(t, InvitationCancelled.CanTransitionTo(InvitationAccepted))
	assert.False(t, InvitationExpired.CanTransitionTo(InvitationAccepted))

	assert.False(t, InvitationPending.IsFinal())
	assert.True(t, InvitationAccepted.IsFinal())
}

func TestInvalidTransitionError(t *testing.T) {
	err := NewInvalidTransition("invoice", "paid", "draft")
	assert.EqualError(t, err, "invalid invoice status transition: paid -> draft")
}
