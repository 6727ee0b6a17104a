package contracts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aqarly/aqarly/pkg/status"
)

// Store handles contract persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new contract store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const contractColumns = `id, uuid, ownership_id, tenant_id, parent_id, status, start_date, end_date, rent, deposit, COALESCE(deposit_status, ''), COALESCE(ejar_code, ''), approved_by, created_at, updated_at`

const prefixedContractColumns = `c.id, c.uuid, c.ownership_id, c.tenant_id, c.parent_id, c.status, c.start_date, c.end_date, c.rent, c.deposit, COALESCE(c.deposit_status, ''), COALESCE(c.ejar_code, ''), c.approved_by, c.created_at, c.updated_at`

// Create inserts a new contract in draft state
func (s *Store) Create(ctx context.Context, contract *Contract) error {
	if err := contract.Validate(); err != nil {
		return err
	}
	if contract.UUID == "" {
		contract.UUID = uuid.New().String()
	}
	if contract.Status == "" {
		contract.Status = status.ContractDraft
	}

	query := `
		INSERT INTO contracts (uuid, ownership_id, tenant_id, parent_id, status, start_date, end_date, rent, deposit, deposit_status, ejar_code, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		contract.UUID,
		contract.OwnershipID,
		contract.TenantID,
		contract.ParentID,
		contract.Status,
		contract.StartDate,
		contract.EndDate,
		contract.Rent,
		contract.Deposit,
		contract.DepositStatus,
		contract.EjarCode,
		now,
	).Scan(&contract.ID)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}

	contract.CreatedAt = now
	contract.UpdatedAt = now
	return nil
}

// Get retrieves a contract by ID within an ownership scope.
// ownershipID 0 skips the scope filter.
func (s *Store) Get(ctx context.Context, id int64, ownershipID int64) (*Contract, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM contracts
		WHERE id = $1 AND ($2 = 0 OR ownership_id = $2)
	`, contractColumns)

	row := s.db.QueryRowContext(ctx, query, id, ownershipID)
	contract, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return contract, nil
}

// GetByInvoice resolves the contract an invoice belongs to.
// ownershipID 0 skips the scope filter.
func (s *Store) GetByInvoice(ctx context.Context, invoiceID, ownershipID int64) (*Contract, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM contracts c
		JOIN invoices i ON i.contract_id = c.id
		WHERE i.id = $1 AND ($2 = 0 OR c.ownership_id = $2)
	`, prefixedContractColumns)

	row := s.db.QueryRowContext(ctx, query, invoiceID, ownershipID)
	contract, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ErrContractNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract by invoice: %w", err)
	}
	return contract, nil
}

// ListByTenant returns a tenant's contracts within an ownership
func (s *Store) ListByTenant(ctx context.Context, tenantID, ownershipID int64) ([]*Contract, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM contracts
		WHERE tenant_id = $1 AND ownership_id = $2
		ORDER BY id
	`, contractColumns)

	return s.list(ctx, query, tenantID, ownershipID)
}

// ListByStatus returns contracts in a given status within an ownership.
// ownershipID 0 spans all ownerships (scheduler sweeps).
func (s *Store) ListByStatus(ctx context.Context, st status.ContractStatus, ownershipID int64) ([]*Contract, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM contracts
		WHERE status = $1 AND ($2 = 0 OR ownership_id = $2)
		ORDER BY id
	`, contractColumns)

	return s.list(ctx, query, st, ownershipID)
}

// ListByStatusForTenants returns an ownership's contracts in a given
// status, confined to an explicit tenant ID set (collector scoping)
func (s *Store) ListByStatusForTenants(ctx context.Context, st status.ContractStatus, ownershipID int64, tenantIDs []int64) ([]*Contract, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM contracts
		WHERE status = $1 AND ownership_id = $2 AND tenant_id = ANY($3)
		ORDER BY id
	`, contractColumns)

	return s.list(ctx, query, st, ownershipID, pq.Array(tenantIDs))
}

// ListActiveEndedBefore returns active contracts whose period ended
// before the cutoff. Used by the expiry sweep.
func (s *Store) ListActiveEndedBefore(ctx context.Context, cutoff time.Time) ([]*Contract, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM contracts
		WHERE status = $1 AND end_date < $2
		ORDER BY id
	`, contractColumns)

	return s.list(ctx, query, status.ContractActive, cutoff)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]*Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var result []*Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result = append(result, contract)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contracts: %w", err)
	}
	return result, nil
}

// UpdateStatus writes a contract's status and approval fields atomically,
// guarded by the expected current status so concurrent transitions cannot
// double-apply.
func (s *Store) UpdateStatus(ctx context.Context, contract *Contract, from status.ContractStatus) error {
	query := `
		UPDATE contracts
		SET status = $2, approved_by = $3, updated_at = $4
		WHERE id = $1 AND status = $5
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, contract.ID, contract.Status, contract.ApprovedBy, now, from)
	if err != nil {
		return fmt.Errorf("failed to update contract status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check contract update: %w", err)
	}
	if affected == 0 {
		return ErrContractNotFound
	}

	contract.UpdatedAt = now
	return nil
}

// Terms returns a contract's extension terms
func (s *Store) Terms(ctx context.Context, contractID int64) ([]ContractTerm, error) {
	query := `
		SELECT id, contract_id, key, value, COALESCE(type, ''), created_at
		FROM contract_terms
		WHERE contract_id = $1
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract terms: %w", err)
	}
	defer rows.Close()

	var terms []ContractTerm
	for rows.Next() {
		var term ContractTerm
		if err := rows.Scan(&term.ID, &term.ContractID, &term.Key, &term.Value, &term.Type, &term.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contract term: %w", err)
		}
		terms = append(terms, term)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contract terms: %w", err)
	}
	return terms, nil
}

// Units returns a contract's unit associations
func (s *Store) Units(ctx context.Context, contractID int64) ([]ContractUnit, error) {
	query := `
		SELECT contract_id, unit_id, rent_override
		FROM contract_unit
		WHERE contract_id = $1
		ORDER BY unit_id
	`

	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contract units: %w", err)
	}
	defer rows.Close()

	var units []ContractUnit
	for rows.Next() {
		var unit ContractUnit
		var override sql.NullFloat64
		if err := rows.Scan(&unit.ContractID, &unit.UnitID, &override); err != nil {
			return nil, fmt.Errorf("failed to scan contract unit: %w", err)
		}
		if override.Valid {
			v := override.Float64
			unit.RentOverride = &v
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contract units: %w", err)
	}
	return units, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContract(row rowScanner) (*Contract, error) {
	var contract Contract
	var parentID, approvedBy sql.NullInt64

	err := row.Scan(
		&contract.ID,
		&contract.UUID,
		&contract.OwnershipID,
		&contract.TenantID,
		&parentID,
		&contract.Status,
		&contract.StartDate,
		&contract.EndDate,
		&contract.Rent,
		&contract.Deposit,
		&contract.DepositStatus,
		&contract.EjarCode,
		&approvedBy,
		&contract.CreatedAt,
		&contract.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		v := parentID.Int64
		contract.ParentID = &v
	}
	if approvedBy.Valid {
		v := approvedBy.Int64
		contract.ApprovedBy = &v
	}

	return &contract, nil
}
