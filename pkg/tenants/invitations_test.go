package tenants

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/status"
)

func newInvitationService(t *testing.T) (*InvitationService, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewInvitationService(NewStore(db), events.NopDispatcher{}), mock
}

func TestCreateInvitationGeneratesToken(t *testing.T) {
	svc, mock := newInvitationService(t)

	mock.ExpectQuery("INSERT INTO tenant_invitations").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	inv := &TenantInvitation{OwnershipID: 5, Email: "renter@example.com"}
	require.NoError(t, svc.Create(context.Background(), inv, 72*time.Hour))

	assert.Len(t, inv.Token, 64)
	assert.Equal(t, status.InvitationPending, inv.Status)
	require.NotNil(t, inv.ExpiresAt)
	assert.True(t, inv.ExpiresAt.After(time.Now()))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcceptSetsAcceptedByWithContactInfo(t *testing.T) {
	svc, mock := newInvitationService(t)

	mock.ExpectExec("UPDATE tenant_invitations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv := &TenantInvitation{ID: 3, OwnershipID: 5, Email: "renter@example.com", Status: status.InvitationPending}
	require.NoError(t, svc.Accept(context.Background(), inv, 42))

	assert.Equal(t, status.InvitationAccepted, inv.Status)
	require.NotNil(t, inv.AcceptedBy)
	assert.Equal(t, int64(42), *inv.AcceptedBy)
	assert.NotNil(t, inv.AcceptedAt)
}

func TestAcceptGenericInvitationLeavesAcceptedByEmpty(t *testing.T) {
	svc, mock := newInvitationService(t)

	mock.ExpectExec("UPDATE tenant_invitations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv := &TenantInvitation{ID: 3, OwnershipID: 5, Status: status.InvitationPending}
	require.True(t, inv.IsGeneric())

	require.NoError(t, svc.Accept(context.Background(), inv, 42))

	assert.Equal(t, status.InvitationAccepted, inv.Status)
	assert.Nil(t, inv.AcceptedBy, "generic invitations never record an acceptor")
}

func TestAcceptRejectsTerminalStatuses(t *testing.T) {
	svc, _ := newInvitationService(t)

	for _, s := range []status.InvitationStatus{status.InvitationAccepted, status.InvitationCancelled, status.InvitationExpired} {
		inv := &TenantInvitation{ID: 3, Status: s}
		err := svc.Accept(context.Background(), inv, 42)

		var transitionErr *status.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, inv.Status, s, "status unchanged on rejection")
	}
}

func TestGetByTokenExpiresLazily(t *testing.T) {
	svc, mock := newInvitationService(t)

	past := time.Now().Add(-time.Hour)
	now := time.Now()

	mock.ExpectQuery("FROM tenant_invitations WHERE token").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "uuid", "ownership_id", "email", "phone", "name", "token", "status",
			"expires_at", "accepted_at", "accepted_by", "created_at", "updated_at",
		}).AddRow(3, "inv-uuid", 5, "", "", "", "tok", status.InvitationPending, past, nil, nil, now, now))

	mock.ExpectExec("UPDATE tenant_invitations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv, err := svc.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, status.InvitationExpired, inv.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByTokenLeavesUnexpiredPending(t *testing.T) {
	svc, mock := newInvitationService(t)

	future := time.Now().Add(time.Hour)
	now := time.Now()

	mock.ExpectQuery("FROM tenant_invitations WHERE token").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "uuid", "ownership_id", "email", "phone", "name", "token", "status",
			"expires_at", "accepted_at", "accepted_by", "created_at", "updated_at",
		}).AddRow(3, "inv-uuid", 5, "", "", "", "tok", status.InvitationPending, future, nil, nil, now, now))

	inv, err := svc.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, status.InvitationPending, inv.Status)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelPendingOnly(t *testing.T) {
	svc, mock := newInvitationService(t)

	mock.ExpectExec("UPDATE tenant_invitations").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv := &TenantInvitation{ID: 3, Status: status.InvitationPending}
	require.NoError(t, svc.Cancel(context.Background(), inv))
	assert.Equal(t, status.InvitationCancelled, inv.Status)

	closed := &TenantInvitation{ID: 4, Status: status.InvitationAccepted}
	err := svc.Cancel(context.Background(), closed)
	var transitionErr *status.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}
