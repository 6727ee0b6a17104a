package contracts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/status"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Dispatch(e events.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.EventType
	for _, e := range d.events {
		out = append(out, e.Type())
	}
	return out
}

func newContractService(t *testing.T) (*Service, sqlmock.Sqlmock, *recordingDispatcher) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	dispatcher := &recordingDispatcher{}
	return NewService(NewStore(db), dispatcher, nil), mock, dispatcher
}

func pendingContract() *Contract {
	return &Contract{
		ID:          1,
		OwnershipID: 5,
		TenantID:    7,
		Status:      status.ContractPending,
		StartDate:   time.Now(),
		EndDate:     time.Now().AddDate(1, 0, 0),
		Rent:        2500,
	}
}

func TestApproveSetsApprovedBy(t *testing.T) {
	svc, mock, dispatcher := newContractService(t)

	mock.ExpectExec("UPDATE contracts").
		WithArgs(int64(1), status.ContractActive, int64(42), sqlmock.AnyArg(), status.ContractPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	contract := pendingContract()
	require.NoError(t, svc.Approve(context.Background(), contract, 42))

	assert.Equal(t, status.ContractActive, contract.Status)
	require.NotNil(t, contract.ApprovedBy)
	assert.Equal(t, int64(42), *contract.ApprovedBy)
	assert.Equal(t, []events.EventType{events.EventContractStatusChanged, events.EventContractApproved}, dispatcher.types())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveRejectsTerminalContract(t *testing.T) {
	svc, _, dispatcher := newContractService(t)

	contract := pendingContract()
	contract.Status = status.ContractCancelled

	err := svc.Approve(context.Background(), contract, 42)

	var transitionErr *status.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, status.ContractCancelled, contract.Status, "status unchanged")
	assert.Nil(t, contract.ApprovedBy)
	assert.Empty(t, dispatcher.types())
}

func TestApproveRollsBackOnStoreFailure(t *testing.T) {
	svc, mock, _ := newContractService(t)

	// Concurrent transition: the guarded update matches no row
	mock.ExpectExec("UPDATE contracts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	contract := pendingContract()
	err := svc.Approve(context.Background(), contract, 42)

	assert.ErrorIs(t, err, ErrContractNotFound)
	assert.Equal(t, status.ContractPending, contract.Status, "in-memory status restored")
	assert.Nil(t, contract.ApprovedBy)
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    status.ContractStatus
		apply   func(svc *Service, c *Contract) error
		want    status.ContractStatus
		wantErr bool
	}{
		{
			name:  "submit draft",
			from:  status.ContractDraft,
			apply: func(svc *Service, c *Contract) error { return svc.Submit(context.Background(), c, 1) },
			want:  status.ContractPending,
		},
		{
			name:  "cancel pending",
			from:  status.ContractPending,
			apply: func(svc *Service, c *Contract) error { return svc.Cancel(context.Background(), c, 1) },
			want:  status.ContractCancelled,
		},
		{
			name:  "terminate active",
			from:  status.ContractActive,
			apply: func(svc *Service, c *Contract) error { return svc.Terminate(context.Background(), c, 1) },
			want:  status.ContractTerminated,
		},
		{
			name:  "expire active",
			from:  status.ContractActive,
			apply: func(svc *Service, c *Contract) error { return svc.Expire(context.Background(), c, 1) },
			want:  status.ContractExpired,
		},
		{
			name:    "terminate draft rejected",
			from:    status.ContractDraft,
			apply:   func(svc *Service, c *Contract) error { return svc.Terminate(context.Background(), c, 1) },
			wantErr: true,
		},
		{
			name:    "cancel expired rejected",
			from:    status.ContractExpired,
			apply:   func(svc *Service, c *Contract) error { return svc.Cancel(context.Background(), c, 1) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, _ := newContractService(t)
			if !tt.wantErr {
				mock.ExpectExec("UPDATE contracts").
					WillReturnResult(sqlmock.NewResult(0, 1))
			}

			contract := pendingContract()
			contract.Status = tt.from

			err := tt.apply(svc, contract)
			if tt.wantErr {
				var transitionErr *status.InvalidTransitionError
				require.ErrorAs(t, err, &transitionErr)
				assert.Equal(t, tt.from, contract.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, contract.Status)
		})
	}
}

func TestCreateValidatesPeriod(t *testing.T) {
	svc, _, _ := newContractService(t)

	contract := pendingContract()
	contract.StartDate = time.Now().AddDate(1, 0, 0)
	contract.EndDate = time.Now()

	err := svc.Create(context.Background(), contract)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}
