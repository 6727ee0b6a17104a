package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/events"
)

func TestInsertAssignsID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO audit_entries").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(17))

	entry := &Entry{
		EventType:   "invoice.status_changed",
		OwnershipID: 5,
		EntityType:  "invoice",
		EntityID:    1,
		FromStatus:  "sent",
		ToStatus:    "paid",
	}
	require.NoError(t, NewStore(db).Insert(context.Background(), entry))

	assert.Equal(t, int64(17), entry.ID)
	assert.False(t, entry.OccurredAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByEntityScansNulls(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("FROM audit_entries").
		WithArgs("invoice", int64(1), 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "occurred_at", "event_type", "ownership_id",
			"entity_type", "entity_id", "from_status", "to_status", "actor_id", "detail"}).
			AddRow(2, now, "invoice.paid", 5, "invoice", 1, nil, nil, nil, nil).
			AddRow(1, now, "invoice.status_changed", 5, "invoice", 1, "sent", "paid", 9, nil))

	entries, err := NewStore(db).ListByEntity(context.Background(), "invoice", 1, 50)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Empty(t, entries[0].FromStatus)
	assert.Nil(t, entries[0].ActorID)
	assert.Equal(t, "sent", entries[1].FromStatus)
	require.NotNil(t, entries[1].ActorID)
	assert.Equal(t, int64(9), *entries[1].ActorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntryForMapsTransitions(t *testing.T) {
	entry := entryFor(events.ContractStatusChanged{
		ContractID:  3,
		OwnershipID: 5,
		From:        "pending",
		To:          "active",
		ActorID:     8,
	})

	require.NotNil(t, entry)
	assert.Equal(t, "contract.status_changed", entry.EventType)
	assert.Equal(t, "contract", entry.EntityType)
	assert.Equal(t, int64(3), entry.EntityID)
	assert.Equal(t, "pending", entry.FromStatus)
	assert.Equal(t, "active", entry.ToStatus)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, int64(8), *entry.ActorID)
}

func TestEntryForSystemActorIsNull(t *testing.T) {
	entry := entryFor(events.ContractStatusChanged{
		ContractID:  3,
		OwnershipID: 5,
		From:        "active",
		To:          "expired",
		ActorID:     0,
	})

	require.NotNil(t, entry)
	assert.Nil(t, entry.ActorID)
}
