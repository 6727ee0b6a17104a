package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrSettingNotFound is returned when no row matches a lookup
var ErrSettingNotFound = errors.New("setting not found")

// Store handles setting persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new settings store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const settingColumns = `id, ownership_id, key, value, value_type, "group", created_at, updated_at`

// Get retrieves the row for (ownershipID, key). Pass nil for the
// system-wide row.
func (s *Store) Get(ctx context.Context, ownershipID *int64, key string) (*SystemSetting, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM system_settings
		WHERE key = $1 AND ownership_id IS NOT DISTINCT FROM $2
	`, settingColumns)

	row := s.db.QueryRowContext(ctx, query, key, ownershipID)
	setting, err := scanSetting(row)
	if err == sql.ErrNoRows {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return setting, nil
}

// ListGroup retrieves all rows in a group for one scope
func (s *Store) ListGroup(ctx context.Context, ownershipID *int64, group string) ([]*SystemSetting, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM system_settings
		WHERE "group" = $1 AND ownership_id IS NOT DISTINCT FROM $2
		ORDER BY key
	`, settingColumns)

	rows, err := s.db.QueryContext(ctx, query, group, ownershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings group: %w", err)
	}
	defer rows.Close()

	return collectSettings(rows)
}

// ListForOwnership retrieves every ownership-specific row
func (s *Store) ListForOwnership(ctx context.Context, ownershipID int64) ([]*SystemSetting, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM system_settings
		WHERE ownership_id = $1
		ORDER BY "group", key
	`, settingColumns)

	rows, err := s.db.QueryContext(ctx, query, ownershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ownership settings: %w", err)
	}
	defer rows.Close()

	return collectSettings(rows)
}

// Upsert writes a setting row, replacing any existing (ownershipId, key)
// value
func (s *Store) Upsert(ctx context.Context, setting *SystemSetting) error {
	if !setting.ValueType.Valid() {
		return fmt.Errorf("invalid setting value type: %s", setting.ValueType)
	}

	query := `
		INSERT INTO system_settings (ownership_id, key, value, value_type, "group", created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (ownership_id, key) DO UPDATE
		SET value = EXCLUDED.value, value_type = EXCLUDED.value_type, "group" = EXCLUDED."group", updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		setting.OwnershipID,
		setting.Key,
		setting.Value,
		setting.ValueType,
		setting.Group,
		now,
	).Scan(&setting.ID, &setting.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}

	setting.UpdatedAt = now
	return nil
}

// Delete removes the row for (ownershipID, key)
func (s *Store) Delete(ctx context.Context, ownershipID *int64, key string) error {
	query := `DELETE FROM system_settings WHERE key = $1 AND ownership_id IS NOT DISTINCT FROM $2`
	result, err := s.db.ExecContext(ctx, query, key, ownershipID)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check setting delete: %w", err)
	}
	if affected == 0 {
		return ErrSettingNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSetting(row rowScanner) (*SystemSetting, error) {
	var setting SystemSetting
	var ownershipID sql.NullInt64

	err := row.Scan(
		&setting.ID,
		&ownershipID,
		&setting.Key,
		&setting.Value,
		&setting.ValueType,
		&setting.Group,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if ownershipID.Valid {
		id := ownershipID.Int64
		setting.OwnershipID = &id
	}

	return &setting, nil
}

func collectSettings(rows *sql.Rows) ([]*SystemSetting, error) {
	var result []*SystemSetting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		result = append(result, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settings: %w", err)
	}
	return result, nil
}
