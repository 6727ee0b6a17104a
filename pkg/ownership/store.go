package ownership

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store handles ownership persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new ownership store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new ownership in active state
func (s *Store) Create(ctx context.Context, own *Ownership) error {
	if own.UUID == "" {
		own.UUID = uuid.New().String()
	}

	query := `
		INSERT INTO ownerships (uuid, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		own.UUID,
		own.Name,
		own.Active,
		now,
		now,
	).Scan(&own.ID)
	if err != nil {
		return fmt.Errorf("failed to create ownership: %w", err)
	}

	own.CreatedAt = now
	own.UpdatedAt = now
	return nil
}

// Get retrieves an ownership by ID
func (s *Store) Get(ctx context.Context, id int64) (*Ownership, error) {
	return s.get(ctx, "id", id)
}

// GetByUUID retrieves an ownership by public UUID
func (s *Store) GetByUUID(ctx context.Context, ownershipUUID string) (*Ownership, error) {
	return s.get(ctx, "uuid", ownershipUUID)
}

func (s *Store) get(ctx context.Context, column string, value interface{}) (*Ownership, error) {
	query := fmt.Sprintf(`
		SELECT id, uuid, name, active, created_at, updated_at
		FROM ownerships
		WHERE %s = $1
	`, column)

	var own Ownership
	err := s.db.QueryRowContext(ctx, query, value).Scan(
		&own.ID,
		&own.UUID,
		&own.Name,
		&own.Active,
		&own.CreatedAt,
		&own.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOwnershipNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ownership: %w", err)
	}

	return &own, nil
}

// List returns ownerships the user belongs to
func (s *Store) List(ctx context.Context, userID int64) ([]*Ownership, error) {
	query := `
		SELECT o.id, o.uuid, o.name, o.active, o.created_at, o.updated_at
		FROM ownerships o
		JOIN ownership_user ou ON ou.ownership_id = o.id
		WHERE ou.user_id = $1
		ORDER BY o.id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownerships: %w", err)
	}
	defer rows.Close()

	var ownerships []*Ownership
	for rows.Next() {
		var own Ownership
		if err := rows.Scan(
			&own.ID,
			&own.UUID,
			&own.Name,
			&own.Active,
			&own.CreatedAt,
			&own.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ownership: %w", err)
		}
		ownerships = append(ownerships, &own)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ownerships: %w", err)
	}

	return ownerships, nil
}

// SetActive toggles the active flag
func (s *Store) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE ownerships SET active = $2, updated_at = $3 WHERE id = $1`
	result, err := s.db.ExecContext(ctx, query, id, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update ownership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check ownership update: %w", err)
	}
	if affected == 0 {
		return ErrOwnershipNotFound
	}
	return nil
}

// AddMember links a user to an ownership
func (s *Store) AddMember(ctx context.Context, ownershipID, userID int64, isDefault bool) error {
	query := `
		INSERT INTO ownership_user (ownership_id, user_id, is_default, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ownership_id, user_id) DO UPDATE SET is_default = EXCLUDED.is_default
	`
	if _, err := s.db.ExecContext(ctx, query, ownershipID, userID, isDefault, time.Now()); err != nil {
		return fmt.Errorf("failed to add ownership member: %w", err)
	}
	return nil
}

// RemoveMember unlinks a user from an ownership
func (s *Store) RemoveMember(ctx context.Context, ownershipID, userID int64) error {
	query := `DELETE FROM ownership_user WHERE ownership_id = $1 AND user_id = $2`
	if _, err := s.db.ExecContext(ctx, query, ownershipID, userID); err != nil {
		return fmt.Errorf("failed to remove ownership member: %w", err)
	}
	return nil
}
