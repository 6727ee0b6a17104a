// Package audit persists a trail of lifecycle changes. Entries are fed
// from the domain event stream, so the trail records what actually
// happened rather than what a handler intended.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const entryColumns = `id, occurred_at, event_type, ownership_id, entity_type, entity_id,
	from_status, to_status, actor_id, detail`

// Entry is one audit record
type Entry struct {
	ID          int64     `json:"id"`
	OccurredAt  time.Time `json:"occurred_at"`
	EventType   string    `json:"event_type"`
	OwnershipID int64     `json:"ownership_id"`
	EntityType  string    `json:"entity_type"`
	EntityID    int64     `json:"entity_id"`
	FromStatus  string    `json:"from_status,omitempty"`
	ToStatus    string    `json:"to_status,omitempty"`
	ActorID     *int64    `json:"actor_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

// Store persists audit entries
type Store struct {
	db *sql.DB
}

// NewStore creates an audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert writes one entry
func (s *Store) Insert(ctx context.Context, entry *Entry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now()
	}

	query := `
		INSERT INTO audit_entries (occurred_at, event_type, ownership_id, entity_type, entity_id,
			from_status, to_status, actor_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := s.db.QueryRowContext(ctx, query,
		entry.OccurredAt, entry.EventType, entry.OwnershipID, entry.EntityType, entry.EntityID,
		entry.FromStatus, entry.ToStatus, entry.ActorID, entry.Detail,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns an entity's trail, newest first
func (s *Store) ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY occurred_at DESC, id DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListByOwnership returns an ownership's trail, newest first
func (s *Store) ListByOwnership(ctx context.Context, ownershipID int64, limit int) ([]*Entry, error) {
	query := `SELECT ` + entryColumns + `
		FROM audit_entries
		WHERE ownership_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, ownershipID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var fromStatus, toStatus, detail sql.NullString
		var actorID sql.NullInt64
		if err := rows.Scan(
			&entry.ID,
			&entry.OccurredAt,
			&entry.EventType,
			&entry.OwnershipID,
			&entry.EntityType,
			&entry.EntityID,
			&fromStatus,
			&toStatus,
			&actorID,
			&detail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.FromStatus = fromStatus.String
		entry.ToStatus = toStatus.String
		entry.Detail = detail.String
		if actorID.Valid {
			entry.ActorID = &actorID.Int64
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return entries, nil
}
