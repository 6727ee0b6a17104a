package tenants

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/status"
)

// InvitationService drives the tenant invitation lifecycle
type InvitationService struct {
	store      *Store
	dispatcher events.Dispatcher
}

// NewInvitationService creates an invitation service. dispatcher may be nil.
func NewInvitationService(store *Store, dispatcher events.Dispatcher) *InvitationService {
	return &InvitationService{store: store, dispatcher: dispatcher}
}

// Create issues a new invitation with a fresh token. validFor zero means
// no expiry.
func (s *InvitationService) Create(ctx context.Context, inv *TenantInvitation, validFor time.Duration) error {
	token, err := generateToken()
	if err != nil {
		return err
	}
	inv.Token = token
	inv.Status = status.InvitationPending

	if validFor > 0 {
		expiresAt := time.Now().Add(validFor)
		inv.ExpiresAt = &expiresAt
	}

	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return err
	}

	s.publish(events.TenantInvited{
		InvitationID: inv.ID,
		OwnershipID:  inv.OwnershipID,
		Email:        inv.Email,
		Phone:        inv.Phone,
	})
	return nil
}

// GetByToken retrieves an invitation, expiring it lazily: a pending
// invitation whose deadline has passed is flipped to expired before being
// returned.
func (s *InvitationService) GetByToken(ctx context.Context, token string) (*TenantInvitation, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.applyLazyExpiry(ctx, inv)
}

// Get retrieves an invitation by ID with the same lazy-expiry rule
func (s *InvitationService) Get(ctx context.Context, id int64) (*TenantInvitation, error) {
	inv, err := s.store.GetInvitation(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.applyLazyExpiry(ctx, inv)
}

// Accept transitions a pending invitation to accepted. AcceptedBy is only
// recorded when the invitation carries contact info; a generic invitation
// reaches accepted without ever naming an acceptor.
func (s *InvitationService) Accept(ctx context.Context, inv *TenantInvitation, userID int64) error {
	if !inv.Status.CanTransitionTo(status.InvitationAccepted) {
		return status.NewInvalidTransition("invitation", string(inv.Status), string(status.InvitationAccepted))
	}

	now := time.Now()
	inv.Status = status.InvitationAccepted
	inv.AcceptedAt = &now
	if !inv.IsGeneric() {
		inv.AcceptedBy = &userID
	}

	if err := s.store.UpdateInvitationStatus(ctx, inv); err != nil {
		return err
	}

	s.publish(events.TenantInvitationAccepted{
		InvitationID: inv.ID,
		OwnershipID:  inv.OwnershipID,
		AcceptedBy:   inv.AcceptedBy,
	})
	return nil
}

// Cancel transitions a pending invitation to cancelled. This is the only
// way a generic invitation is closed.
func (s *InvitationService) Cancel(ctx context.Context, inv *TenantInvitation) error {
	if !inv.Status.CanTransitionTo(status.InvitationCancelled) {
		return status.NewInvalidTransition("invitation", string(inv.Status), string(status.InvitationCancelled))
	}

	inv.Status = status.InvitationCancelled
	return s.store.UpdateInvitationStatus(ctx, inv)
}

// ExpireDue flips all overdue pending invitations to expired. Called by
// the scheduler; individual reads also expire lazily.
func (s *InvitationService) ExpireDue(ctx context.Context) (int64, error) {
	return s.store.ExpireDueInvitations(ctx, time.Now())
}

func (s *InvitationService) applyLazyExpiry(ctx context.Context, inv *TenantInvitation) (*TenantInvitation, error) {
	if inv.Status != status.InvitationPending || !inv.ExpiredAt(time.Now()) {
		return inv, nil
	}

	inv.Status = status.InvitationExpired
	if err := s.store.UpdateInvitationStatus(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to expire invitation: %w", err)
	}
	return inv, nil
}

func (s *InvitationService) publish(event events.Event) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(event)
	}
}

// generateToken produces a 64-char hex invitation token
func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
