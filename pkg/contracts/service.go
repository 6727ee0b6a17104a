package contracts

import (
	"context"

	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/status"
)

// Service drives the contract lifecycle. Approve is the only way into
// active.
type Service struct {
	store      *Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
}

// NewService creates a contract service. dispatcher and metrics may be nil.
func NewService(store *Store, dispatcher events.Dispatcher, metrics *observability.Metrics) *Service {
	return &Service{store: store, dispatcher: dispatcher, metrics: metrics}
}

// Create inserts a new draft contract
func (s *Service) Create(ctx context.Context, contract *Contract) error {
	contract.Status = status.ContractDraft
	return s.store.Create(ctx, contract)
}

// Approve transitions a contract into active and records the approver.
// The status and approved_by write is a single statement, so the pair is
// atomic.
func (s *Service) Approve(ctx context.Context, contract *Contract, approvedBy int64) error {
	if !contract.Status.CanTransitionTo(status.ContractActive) {
		s.observe("contract", string(contract.Status), string(status.ContractActive), "rejected")
		return status.NewInvalidTransition("contract", string(contract.Status), string(status.ContractActive))
	}

	from := contract.Status
	contract.Status = status.ContractActive
	contract.ApprovedBy = &approvedBy

	if err := s.store.UpdateStatus(ctx, contract, from); err != nil {
		contract.Status = from
		contract.ApprovedBy = nil
		return err
	}

	s.observe("contract", string(from), string(status.ContractActive), "applied")
	s.publish(events.ContractStatusChanged{
		ContractID:  contract.ID,
		OwnershipID: contract.OwnershipID,
		From:        string(from),
		To:          string(status.ContractActive),
		ActorID:     approvedBy,
	})
	s.publish(events.ContractApproved{
		ContractID:  contract.ID,
		OwnershipID: contract.OwnershipID,
		ApprovedBy:  approvedBy,
	})
	return nil
}

// Submit moves a draft contract to pending
func (s *Service) Submit(ctx context.Context, contract *Contract, actorID int64) error {
	return s.transition(ctx, contract, status.ContractPending, actorID)
}

// Cancel cancels a contract from any non-terminal status
func (s *Service) Cancel(ctx context.Context, contract *Contract, actorID int64) error {
	return s.transition(ctx, contract, status.ContractCancelled, actorID)
}

// Terminate ends an active contract early
func (s *Service) Terminate(ctx context.Context, contract *Contract, actorID int64) error {
	return s.transition(ctx, contract, status.ContractTerminated, actorID)
}

// Expire marks an active contract as run out. Used by the expiry sweep.
func (s *Service) Expire(ctx context.Context, contract *Contract, actorID int64) error {
	return s.transition(ctx, contract, status.ContractExpired, actorID)
}

// transition validates against the table, applies the change and emits
// the status-changed event. Active is unreachable here: only Approve
// enters it.
func (s *Service) transition(ctx context.Context, contract *Contract, to status.ContractStatus, actorID int64) error {
	if to == status.ContractActive {
		return status.NewInvalidTransition("contract", string(contract.Status), string(to))
	}
	if !contract.Status.CanTransitionTo(to) {
		s.observe("contract", string(contract.Status), string(to), "rejected")
		return status.NewInvalidTransition("contract", string(contract.Status), string(to))
	}

	from := contract.Status
	contract.Status = to

	if err := s.store.UpdateStatus(ctx, contract, from); err != nil {
		contract.Status = from
		return err
	}

	s.observe("contract", string(from), string(to), "applied")
	s.publish(events.ContractStatusChanged{
		ContractID:  contract.ID,
		OwnershipID: contract.OwnershipID,
		From:        string(from),
		To:          string(to),
		ActorID:     actorID,
	})
	return nil
}

func (s *Service) publish(event events.Event) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(event)
	}
}

func (s *Service) observe(entity, from, to, outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(entity, from, to, outcome)
	}
}
