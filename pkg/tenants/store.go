package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aqarly/aqarly/pkg/status"
)

// Lookup errors
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrInvitationNotFound = errors.New("invitation not found")
)

// Store handles tenant, invitation and assignment persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTenant inserts a new tenant
func (s *Store) CreateTenant(ctx context.Context, tenant *Tenant) error {
	if tenant.UUID == "" {
		tenant.UUID = uuid.New().String()
	}

	query := `
		INSERT INTO tenants (uuid, ownership_id, user_id, name, national_id, id_expiry, rating, employer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		tenant.UUID,
		tenant.OwnershipID,
		tenant.UserID,
		tenant.Name,
		tenant.NationalID,
		tenant.IDExpiry,
		tenant.Rating,
		tenant.Employer,
		now,
	).Scan(&tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	tenant.CreatedAt = now
	tenant.UpdatedAt = now
	return nil
}

// GetTenant retrieves a tenant by ID within an ownership scope.
// ownershipID 0 skips the scope filter (unscoped Super Admin access).
func (s *Store) GetTenant(ctx context.Context, id int64, ownershipID int64) (*Tenant, error) {
	query := `
		SELECT id, uuid, ownership_id, user_id, name, COALESCE(national_id, ''), id_expiry, rating, COALESCE(employer, ''), created_at, updated_at
		FROM tenants
		WHERE id = $1 AND ($2 = 0 OR ownership_id = $2)
	`

	var tenant Tenant
	var userID sql.NullInt64
	var idExpiry sql.NullTime

	err := s.db.QueryRowContext(ctx, query, id, ownershipID).Scan(
		&tenant.ID,
		&tenant.UUID,
		&tenant.OwnershipID,
		&userID,
		&tenant.Name,
		&tenant.NationalID,
		&idExpiry,
		&tenant.Rating,
		&tenant.Employer,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	if userID.Valid {
		v := userID.Int64
		tenant.UserID = &v
	}
	if idExpiry.Valid {
		v := idExpiry.Time
		tenant.IDExpiry = &v
	}

	return &tenant, nil
}

// ListTenants returns tenants of an ownership, optionally confined to an
// explicit ID set (collector scoping). A nil visibleIDs means no filter.
func (s *Store) ListTenants(ctx context.Context, ownershipID int64, visibleIDs []int64) ([]*Tenant, error) {
	query := `
		SELECT id, uuid, ownership_id, user_id, name, COALESCE(national_id, ''), id_expiry, rating, COALESCE(employer, ''), created_at, updated_at
		FROM tenants
		WHERE ownership_id = $1
	`
	args := []interface{}{ownershipID}

	if visibleIDs != nil {
		query += " AND id = ANY($2)"
		args = append(args, pq.Array(visibleIDs))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var result []*Tenant
	for rows.Next() {
		var tenant Tenant
		var userID sql.NullInt64
		var idExpiry sql.NullTime
		if err := rows.Scan(
			&tenant.ID,
			&tenant.UUID,
			&tenant.OwnershipID,
			&userID,
			&tenant.Name,
			&tenant.NationalID,
			&idExpiry,
			&tenant.Rating,
			&tenant.Employer,
			&tenant.CreatedAt,
			&tenant.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		if userID.Valid {
			v := userID.Int64
			tenant.UserID = &v
		}
		if idExpiry.Valid {
			v := idExpiry.Time
			tenant.IDExpiry = &v
		}
		result = append(result, &tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return result, nil
}

const invitationColumns = `id, uuid, ownership_id, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(name, ''), token, status, expires_at, accepted_at, accepted_by, created_at, updated_at`

// CreateInvitation inserts a new invitation in pending state
func (s *Store) CreateInvitation(ctx context.Context, inv *TenantInvitation) error {
	if inv.UUID == "" {
		inv.UUID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = status.InvitationPending
	}

	query := `
		INSERT INTO tenant_invitations (uuid, ownership_id, email, phone, name, token, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		inv.UUID,
		inv.OwnershipID,
		inv.Email,
		inv.Phone,
		inv.Name,
		inv.Token,
		inv.Status,
		inv.ExpiresAt,
		now,
	).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	inv.CreatedAt = now
	inv.UpdatedAt = now
	return nil
}

// GetInvitation retrieves an invitation by ID
func (s *Store) GetInvitation(ctx context.Context, id int64) (*TenantInvitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM tenant_invitations WHERE id = $1`, invitationColumns)
	return s.getInvitation(ctx, query, id)
}

// GetInvitationByToken retrieves an invitation by token
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*TenantInvitation, error) {
	query := fmt.Sprintf(`SELECT %s FROM tenant_invitations WHERE token = $1`, invitationColumns)
	return s.getInvitation(ctx, query, token)
}

func (s *Store) getInvitation(ctx context.Context, query string, arg interface{}) (*TenantInvitation, error) {
	var inv TenantInvitation
	var expiresAt, acceptedAt sql.NullTime
	var acceptedBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&inv.ID,
		&inv.UUID,
		&inv.OwnershipID,
		&inv.Email,
		&inv.Phone,
		&inv.Name,
		&inv.Token,
		&inv.Status,
		&expiresAt,
		&acceptedAt,
		&acceptedBy,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if expiresAt.Valid {
		v := expiresAt.Time
		inv.ExpiresAt = &v
	}
	if acceptedAt.Valid {
		v := acceptedAt.Time
		inv.AcceptedAt = &v
	}
	if acceptedBy.Valid {
		v := acceptedBy.Int64
		inv.AcceptedBy = &v
	}

	return &inv, nil
}

// UpdateInvitationStatus writes a status change with its side fields
func (s *Store) UpdateInvitationStatus(ctx context.Context, inv *TenantInvitation) error {
	query := `
		UPDATE tenant_invitations
		SET status = $2, accepted_at = $3, accepted_by = $4, updated_at = $5
		WHERE id = $1
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, inv.ID, inv.Status, inv.AcceptedAt, inv.AcceptedBy, now)
	if err != nil {
		return fmt.Errorf("failed to update invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check invitation update: %w", err)
	}
	if affected == 0 {
		return ErrInvitationNotFound
	}

	inv.UpdatedAt = now
	return nil
}

// ExpireDueInvitations flips every pending invitation whose deadline has
// passed to expired. Returns the number of rows expired.
func (s *Store) ExpireDueInvitations(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE tenant_invitations
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
	`

	result, err := s.db.ExecContext(ctx, query, status.InvitationExpired, now, status.InvitationPending)
	if err != nil {
		return 0, fmt.Errorf("failed to expire invitations: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired invitations: %w", err)
	}
	return affected, nil
}

// ActiveAssignedTenantIDs returns the tenant IDs actively assigned to a
// collector within an ownership
func (s *Store) ActiveAssignedTenantIDs(ctx context.Context, collectorID, ownershipID int64) ([]int64, error) {
	query := `
		SELECT tenant_id
		FROM collector_tenant_assignments
		WHERE collector_id = $1 AND ownership_id = $2 AND is_active
		ORDER BY tenant_id
	`

	rows, err := s.db.QueryContext(ctx, query, collectorID, ownershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list collector assignments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assignments: %w", err)
	}

	return ids, nil
}

// AssignTenant links a tenant to a collector
func (s *Store) AssignTenant(ctx context.Context, collectorID, tenantID, ownershipID int64) error {
	query := `
		INSERT INTO collector_tenant_assignments (collector_id, tenant_id, ownership_id, is_active, created_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (collector_id, tenant_id) DO UPDATE SET is_active = TRUE
	`
	if _, err := s.db.ExecContext(ctx, query, collectorID, tenantID, ownershipID, time.Now()); err != nil {
		return fmt.Errorf("failed to assign tenant: %w", err)
	}
	return nil
}

// UnassignTenant deactivates a collector assignment
func (s *Store) UnassignTenant(ctx context.Context, collectorID, tenantID int64) error {
	query := `
		UPDATE collector_tenant_assignments
		SET is_active = FALSE
		WHERE collector_id = $1 AND tenant_id = $2
	`
	if _, err := s.db.ExecContext(ctx, query, collectorID, tenantID); err != nil {
		return fmt.Errorf("failed to unassign tenant: %w", err)
	}
	return nil
}
