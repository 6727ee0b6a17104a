package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/status"
)

// Service drives the invoice lifecycle and keeps invoice status
// consistent with the invoice's paid payments. All status writes and
// the payment sums they depend on happen inside one transaction with
// the invoice row locked.
type Service struct {
	store      *Store
	settings   *settings.InvoiceSettings
	dispatcher events.Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewService creates an invoice service. dispatcher, logger and metrics
// may be nil.
func NewService(store *Store, invoiceSettings *settings.InvoiceSettings, dispatcher events.Dispatcher, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:      store,
		settings:   invoiceSettings,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// Create inserts a new invoice in draft
func (s *Service) Create(ctx context.Context, inv *Invoice) error {
	inv.Status = status.InvoiceDraft
	return s.store.Create(ctx, inv)
}

// Delete removes an invoice if its status allows deletion
func (s *Service) Delete(ctx context.Context, inv *Invoice) error {
	if !inv.Status.AllowsDeletion() {
		return fmt.Errorf("invoice in status %s cannot be deleted", inv.Status)
	}
	return s.store.Delete(ctx, inv.ID)
}

// Send issues an invoice to the tenant
func (s *Service) Send(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	return s.Transition(ctx, invoiceID, status.InvoiceSent, actorID)
}

// MarkViewed records that the tenant opened the invoice
func (s *Service) MarkViewed(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	return s.Transition(ctx, invoiceID, status.InvoiceViewed, actorID)
}

// Cancel voids an invoice
func (s *Service) Cancel(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	return s.Transition(ctx, invoiceID, status.InvoiceCancelled, actorID)
}

// MarkOverdue moves a past-due invoice to overdue. Used by the sweep.
func (s *Service) MarkOverdue(ctx context.Context, invoiceID int64, actorID int64) (*Invoice, error) {
	return s.Transition(ctx, invoiceID, status.InvoiceOverdue, actorID)
}

// Transition moves an invoice to a new status, validated against the
// transition table
func (s *Service) Transition(ctx context.Context, invoiceID int64, to status.InvoiceStatus, actorID int64) (*Invoice, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := s.store.GetForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}

	if !inv.Status.CanTransitionTo(to) {
		s.observe("invoice", string(inv.Status), string(to), "rejected")
		return nil, status.NewInvalidTransition("invoice", string(inv.Status), string(to))
	}

	from := inv.Status
	inv.Status = to
	if to == status.InvoicePaid {
		now := time.Now()
		inv.PaidAt = &now
	}

	if err := s.store.UpdateStatusTx(ctx, tx, inv, from, &actorID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invoice transition: %w", err)
	}

	s.observe("invoice", string(from), string(to), "applied")
	s.publish(events.InvoiceStatusChanged{
		InvoiceID:   inv.ID,
		OwnershipID: inv.OwnershipID,
		From:        string(from),
		To:          string(to),
	})
	switch to {
	case status.InvoiceSent:
		s.publish(events.InvoiceSent{
			InvoiceID:   inv.ID,
			OwnershipID: inv.OwnershipID,
			ContractID:  inv.ContractID,
		})
	case status.InvoicePaid:
		s.publish(events.InvoicePaid{
			InvoiceID:   inv.ID,
			OwnershipID: inv.OwnershipID,
			PaidAt:      *inv.PaidAt,
		})
	}
	return inv, nil
}

// RecordPayment creates a payment against an invoice. The payment's
// ownership is taken from the invoice. When auto-mark-paid is on for
// the ownership the payment is confirmed immediately.
func (s *Service) RecordPayment(ctx context.Context, inv *Invoice, p *Payment, actorID int64) (*Payment, error) {
	if !p.Method.Valid() {
		return nil, fmt.Errorf("unknown payment method %q", p.Method)
	}
	if p.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive")
	}

	p.InvoiceID = inv.ID
	p.OwnershipID = inv.OwnershipID
	p.Status = status.PaymentPending
	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	if s.settings.AutoMarkPaid(ctx, inv.OwnershipID) {
		return s.MarkPaymentPaid(ctx, p.ID, p.OwnershipID, actorID)
	}
	return p, nil
}

// MarkPaymentPaid confirms a payment and reconciles the invoice in the
// same transaction. Rejects payments above the remaining balance, and
// below it when partial payments are off for the ownership.
func (s *Service) MarkPaymentPaid(ctx context.Context, paymentID, ownershipID, confirmedBy int64) (*Payment, error) {
	p, err := s.store.GetPayment(ctx, paymentID, ownershipID)
	if err != nil {
		return nil, err
	}
	if p.Status == status.PaymentPaid {
		return p, nil
	}

	allowPartial := s.settings.AllowPartialPayment(ctx, p.OwnershipID)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := s.store.GetForUpdate(ctx, tx, p.InvoiceID)
	if err != nil {
		return nil, err
	}

	sum, err := s.store.SumPaidTx(ctx, tx, inv.ID)
	if err != nil {
		return nil, err
	}
	remaining := inv.Remaining(sum)
	amount := Round2(p.Amount)
	if amount > remaining {
		return nil, ErrOverpayment
	}
	if amount < remaining && !allowPartial {
		return nil, ErrPartialNotAllowed
	}

	now := time.Now()
	p.Status = status.PaymentPaid
	p.PaidAt = &now
	p.ConfirmedBy = &confirmedBy
	if err := s.store.UpdatePaymentStatusTx(ctx, tx, p); err != nil {
		return nil, err
	}

	evts, err := s.reconcileTx(ctx, tx, inv, allowPartial, &confirmedBy)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment confirmation: %w", err)
	}

	s.publish(events.PaymentConfirmed{
		PaymentID:   p.ID,
		InvoiceID:   inv.ID,
		OwnershipID: inv.OwnershipID,
		Amount:      p.Amount,
		ConfirmedBy: confirmedBy,
	})
	s.publishAll(evts)
	return p, nil
}

// MarkPaymentUnpaid reverts a payment and reconciles the invoice,
// undoing paid or partial statuses the payment had earned
func (s *Service) MarkPaymentUnpaid(ctx context.Context, paymentID, ownershipID, actorID int64) (*Payment, error) {
	p, err := s.store.GetPayment(ctx, paymentID, ownershipID)
	if err != nil {
		return nil, err
	}
	if p.Status == status.PaymentUnpaid {
		return p, nil
	}
	wasPaid := p.Status == status.PaymentPaid

	allowPartial := s.settings.AllowPartialPayment(ctx, p.OwnershipID)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := s.store.GetForUpdate(ctx, tx, p.InvoiceID)
	if err != nil {
		return nil, err
	}

	p.Status = status.PaymentUnpaid
	p.PaidAt = nil
	p.ConfirmedBy = nil
	if err := s.store.UpdatePaymentStatusTx(ctx, tx, p); err != nil {
		return nil, err
	}

	evts, err := s.reconcileTx(ctx, tx, inv, allowPartial, &actorID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment reversal: %w", err)
	}

	if wasPaid {
		s.publish(events.PaymentReverted{
			PaymentID:   p.ID,
			InvoiceID:   inv.ID,
			OwnershipID: inv.OwnershipID,
		})
	}
	s.publishAll(evts)
	return p, nil
}

// Reconcile recomputes an invoice's status from its paid payments.
// Idempotent: with no payment changes in between, a second call leaves
// the invoice as it was.
func (s *Service) Reconcile(ctx context.Context, invoiceID int64, actorID *int64) (*Invoice, error) {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	inv, err := s.store.GetForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}

	allowPartial := s.settings.AllowPartialPayment(ctx, inv.OwnershipID)
	evts, err := s.reconcileTx(ctx, tx, inv, allowPartial, actorID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	s.publishAll(evts)
	return inv, nil
}

// reconcileTx applies the payment-driven status rules to a locked
// invoice. Cancelled and refunded invoices are never touched. The
// revert out of paid is not part of the forward transition table;
// reconciliation is the only writer allowed to make it.
func (s *Service) reconcileTx(ctx context.Context, tx *sql.Tx, inv *Invoice, allowPartial bool, actorID *int64) ([]events.Event, error) {
	if inv.Status == status.InvoiceCancelled || inv.Status == status.InvoiceRefunded {
		return nil, nil
	}

	sum, err := s.store.SumPaidTx(ctx, tx, inv.ID)
	if err != nil {
		return nil, err
	}
	sum = Round2(sum)

	var evts []events.Event
	switch {
	case inv.Total > 0 && sum >= inv.Total:
		if inv.Status == status.InvoicePaid {
			return nil, nil
		}
		if !inv.Status.CanTransitionTo(status.InvoicePaid) {
			s.debugf("invoice %d fully paid but status %s cannot move to paid", inv.ID, inv.Status)
			return nil, nil
		}
		from := inv.Status
		now := time.Now()
		inv.Status = status.InvoicePaid
		inv.PaidAt = &now
		if err := s.store.UpdateStatusTx(ctx, tx, inv, from, actorID); err != nil {
			return nil, err
		}
		s.observe("invoice", string(from), string(status.InvoicePaid), "applied")
		evts = append(evts,
			events.InvoiceStatusChanged{
				InvoiceID:   inv.ID,
				OwnershipID: inv.OwnershipID,
				From:        string(from),
				To:          string(status.InvoicePaid),
			},
			events.InvoicePaid{
				InvoiceID:   inv.ID,
				OwnershipID: inv.OwnershipID,
				PaidAt:      now,
			})

	case sum > 0:
		if inv.Status == status.InvoicePaid {
			evt, err := s.revertTx(ctx, tx, inv, actorID)
			if err != nil {
				return nil, err
			}
			evts = append(evts, evt)
		}
		if allowPartial && inv.Status != status.InvoicePartial && inv.Status.CanTransitionTo(status.InvoicePartial) {
			from := inv.Status
			inv.Status = status.InvoicePartial
			if err := s.store.UpdateStatusTx(ctx, tx, inv, from, actorID); err != nil {
				return nil, err
			}
			s.observe("invoice", string(from), string(status.InvoicePartial), "applied")
			evts = append(evts, events.InvoiceStatusChanged{
				InvoiceID:   inv.ID,
				OwnershipID: inv.OwnershipID,
				From:        string(from),
				To:          string(status.InvoicePartial),
			})
		}

	default:
		if inv.Status == status.InvoicePaid || inv.Status == status.InvoicePartial {
			evt, err := s.revertTx(ctx, tx, inv, actorID)
			if err != nil {
				return nil, err
			}
			evts = append(evts, evt)
		}
	}
	return evts, nil
}

// revertTx moves an invoice back to the status it held before payments
// changed it, falling back to sent, and clears the paid timestamp
func (s *Service) revertTx(ctx context.Context, tx *sql.Tx, inv *Invoice, actorID *int64) (events.Event, error) {
	prev, err := s.store.PrePaymentStatusTx(ctx, tx, inv.ID)
	if err != nil {
		return nil, err
	}

	from := inv.Status
	inv.Status = prev
	inv.PaidAt = nil
	if err := s.store.UpdateStatusTx(ctx, tx, inv, from, actorID); err != nil {
		return nil, err
	}
	s.observe("invoice", string(from), string(prev), "applied")
	return events.InvoiceStatusChanged{
		InvoiceID:   inv.ID,
		OwnershipID: inv.OwnershipID,
		From:        string(from),
		To:          string(prev),
	}, nil
}

func (s *Service) publish(event events.Event) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(event)
	}
}

func (s *Service) publishAll(evts []events.Event) {
	for _, evt := range evts {
		s.publish(evt)
	}
}

func (s *Service) observe(entity, from, to, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(entity, from, to, outcome)
	}
}

func (s *Service) debugf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debugf(format, args...)
	}
}
