package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned when a user lookup matches no row
var ErrUserNotFound = errors.New("user not found")

// superAdminUserExclusion filters out users holding the Super Admin role.
// Applied at the data-access boundary so non-Super-Admin callers never see
// those rows at all.
const superAdminUserExclusion = `
		NOT EXISTS (
			SELECT 1 FROM role_user ru
			JOIN roles r ON r.id = ru.role_id
			WHERE ru.user_id = users.id AND r.name = 'Super Admin'
		)`

// Store handles identity persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new identity store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetUser retrieves a user with roles and ownership memberships
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, uuid, name, email, COALESCE(phone, ''), active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.UUID,
		&user.Name,
		&user.Email,
		&user.Phone,
		&user.Active,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if user.Roles, err = s.rolesForUser(ctx, user.ID); err != nil {
		return nil, err
	}
	if user.Memberships, err = s.membershipsForUser(ctx, user.ID); err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUserByUUID retrieves a user by public UUID
func (s *Store) GetUserByUUID(ctx context.Context, uuid string) (*User, error) {
	query := `SELECT id FROM users WHERE uuid = $1`

	var id int64
	err := s.db.QueryRowContext(ctx, query, uuid).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by uuid: %w", err)
	}

	return s.GetUser(ctx, id)
}

// ListUsers returns users belonging to an ownership. Unless the caller is
// a Super Admin, users holding the Super Admin role are excluded before
// any policy sees them.
func (s *Store) ListUsers(ctx context.Context, ownershipID int64, callerIsSuperAdmin bool) ([]*User, error) {
	query := `
		SELECT users.id, users.uuid, users.name, users.email, COALESCE(users.phone, ''), users.active, users.created_at, users.updated_at
		FROM users
		JOIN ownership_user ou ON ou.user_id = users.id
		WHERE ou.ownership_id = $1
	`
	if !callerIsSuperAdmin {
		query += " AND" + superAdminUserExclusion
	}
	query += " ORDER BY users.id"

	rows, err := s.db.QueryContext(ctx, query, ownershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID,
			&user.UUID,
			&user.Name,
			&user.Email,
			&user.Phone,
			&user.Active,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// ListRoles returns roles visible to the caller. The Super Admin role row
// itself is hidden from non-Super-Admin callers.
func (s *Store) ListRoles(ctx context.Context, callerIsSuperAdmin bool) ([]Role, error) {
	query := `
		SELECT id, name, display_name, permissions, created_at, updated_at
		FROM roles
	`
	if !callerIsSuperAdmin {
		query += " WHERE name <> 'Super Admin'"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}

	return roles, nil
}

// AssignRole grants a role to a user
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) error {
	query := `
		INSERT INTO role_user (user_id, role_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, roleID, time.Now()); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RemoveRole revokes a role from a user
func (s *Store) RemoveRole(ctx context.Context, userID, roleID int64) error {
	query := `DELETE FROM role_user WHERE user_id = $1 AND role_id = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, roleID); err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}

func (s *Store) rolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.permissions, r.created_at, r.updated_at
		FROM roles r
		JOIN role_user ru ON ru.role_id = r.id
		WHERE ru.user_id = $1
		ORDER BY r.id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user roles: %w", err)
	}

	return roles, nil
}

func (s *Store) membershipsForUser(ctx context.Context, userID int64) ([]OwnershipMembership, error) {
	query := `
		SELECT ownership_id, is_default, created_at
		FROM ownership_user
		WHERE user_id = $1
		ORDER BY created_at, ownership_id
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user memberships: %w", err)
	}
	defer rows.Close()

	var memberships []OwnershipMembership
	for rows.Next() {
		var m OwnershipMembership
		if err := rows.Scan(&m.OwnershipID, &m.IsDefault, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return memberships, nil
}

func scanRole(rows *sql.Rows) (*Role, error) {
	var role Role
	var permissionsJSON string

	if err := rows.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&permissionsJSON,
		&role.CreatedAt,
		&role.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}

	if err := json.Unmarshal([]byte(permissionsJSON), &role.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal role permissions: %w", err)
	}

	return &role, nil
}
