package invoices

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aqarly/aqarly/pkg/status"
)

const invoiceColumns = `id, uuid, ownership_id, contract_id, number, period_start, period_end,
	due_date, amount, tax_rate, tax, total, status, notes, generated_by, generated_at,
	paid_at, created_at, updated_at`

const paymentColumns = `id, uuid, ownership_id, invoice_id, method, transaction_id, amount,
	status, paid_at, confirmed_by, created_at, updated_at`

// Store persists invoices, items, payments and the invoice status log
type Store struct {
	db *sql.DB
}

// NewStore creates an invoice store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// BeginTx starts a transaction. Reconciliation runs inside one so the
// invoice row stays locked from read to write.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Create inserts an invoice. Tax and total are recomputed from amount
// and tax rate before the write.
func (s *Store) Create(ctx context.Context, inv *Invoice) error {
	if inv.UUID == "" {
		inv.UUID = uuid.New().String()
	}
	if inv.Status == "" {
		inv.Status = status.InvoiceDraft
	}
	inv.ComputeDerived()

	query := `
		INSERT INTO invoices (uuid, ownership_id, contract_id, number, period_start, period_end,
			due_date, amount, tax_rate, tax, total, status, notes, generated_by, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		inv.UUID, inv.OwnershipID, inv.ContractID, inv.Number, inv.PeriodStart, inv.PeriodEnd,
		inv.DueDate, inv.Amount, inv.TaxRate, inv.Tax, inv.Total, inv.Status, inv.Notes,
		inv.GeneratedBy, inv.GeneratedAt,
	).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// Get fetches one invoice. ownershipID 0 spans all ownerships.
func (s *Store) Get(ctx context.Context, id, ownershipID int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = $1 AND ($2 = 0 OR ownership_id = $2)`
	return scanInvoice(s.db.QueryRowContext(ctx, query, id, ownershipID))
}

// GetForUpdate fetches an invoice and locks its row for the duration
// of the transaction
func (s *Store) GetForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE id = $1
		FOR UPDATE`
	return scanInvoice(tx.QueryRowContext(ctx, query, id))
}

// List returns an ownership's invoices, newest first
func (s *Store) List(ctx context.Context, ownershipID int64, limit, offset int) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE ($1 = 0 OR ownership_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, ownershipID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// ListForTenants returns an ownership's contract-linked invoices,
// optionally confined to contracts of an explicit tenant ID set
// (collector scoping). A nil visibleIDs means no tenant filter.
// Standalone invoices never match.
func (s *Store) ListForTenants(ctx context.Context, ownershipID int64, visibleIDs []int64, limit, offset int) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE ownership_id = $1 AND contract_id IS NOT NULL`
	args := []interface{}{ownershipID}

	if visibleIDs != nil {
		query += `
		AND contract_id IN (SELECT id FROM contracts WHERE tenant_id = ANY($2))`
		args = append(args, pq.Array(visibleIDs))
	}
	query += fmt.Sprintf(`
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices for tenants: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// ListByContract returns a contract's invoices in period order
func (s *Store) ListByContract(ctx context.Context, contractID int64) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE contract_id = $1
		ORDER BY period_start`

	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices by contract: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// ListOverdueCandidates returns invoices whose due date has passed and
// whose status still allows a move to overdue
func (s *Store) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE due_date < $1 AND status IN ($2, $3, $4)
		ORDER BY due_date`

	rows, err := s.db.QueryContext(ctx, query, asOf,
		status.InvoiceSent, status.InvoiceViewed, status.InvoicePartial)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue candidates: %w", err)
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// ExistsForContractPeriod reports whether a contract already has an
// invoice starting in the given period. Used by scheduled generation
// to stay idempotent.
func (s *Store) ExistsForContractPeriod(ctx context.Context, contractID int64, periodStart time.Time) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (
		SELECT 1 FROM invoices WHERE contract_id = $1 AND period_start = $2)`
	if err := s.db.QueryRowContext(ctx, query, contractID, periodStart).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check invoice existence: %w", err)
	}
	return exists, nil
}

// Update writes the editable invoice fields. Tax and total are
// recomputed; which fields a caller may change is enforced above the
// store by the edit rules.
func (s *Store) Update(ctx context.Context, inv *Invoice) error {
	inv.ComputeDerived()

	query := `
		UPDATE invoices
		SET number = $2, period_start = $3, period_end = $4, due_date = $5,
			amount = $6, tax_rate = $7, tax = $8, total = $9, notes = $10,
			updated_at = NOW()
		WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query,
		inv.ID, inv.Number, inv.PeriodStart, inv.PeriodEnd, inv.DueDate,
		inv.Amount, inv.TaxRate, inv.Tax, inv.Total, inv.Notes)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return requireRow(result, ErrInvoiceNotFound)
}

// Delete removes an invoice. Whether the status allows deletion is
// checked by the caller.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	return requireRow(result, ErrInvoiceNotFound)
}

// UpdateStatusTx moves an invoice between statuses inside tx and
// appends a status log entry. The expected from status guards against
// concurrent transitions.
func (s *Store) UpdateStatusTx(ctx context.Context, tx *sql.Tx, inv *Invoice, from status.InvoiceStatus, changedBy *int64) error {
	query := `
		UPDATE invoices
		SET status = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`

	result, err := tx.ExecContext(ctx, query, inv.ID, inv.Status, inv.PaidAt, from)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	if err := requireRow(result, ErrInvoiceNotFound); err != nil {
		return err
	}

	logQuery := `
		INSERT INTO invoice_status_logs (invoice_id, from_status, to_status, changed_by)
		VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, logQuery, inv.ID, from, inv.Status, changedBy); err != nil {
		return fmt.Errorf("failed to append invoice status log: %w", err)
	}
	return nil
}

// PrePaymentStatusTx returns the status the invoice held before
// payments first moved it to paid or partial, falling back to sent
// when the log has no such entry
func (s *Store) PrePaymentStatusTx(ctx context.Context, tx *sql.Tx, invoiceID int64) (status.InvoiceStatus, error) {
	query := `
		SELECT from_status
		FROM invoice_status_logs
		WHERE invoice_id = $1 AND to_status IN ($2, $3) AND from_status NOT IN ($2, $3)
		ORDER BY id DESC
		LIMIT 1`

	var from status.InvoiceStatus
	err := tx.QueryRowContext(ctx, query, invoiceID, status.InvoicePaid, status.InvoicePartial).Scan(&from)
	if err == sql.ErrNoRows {
		return status.InvoiceSent, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read invoice status log: %w", err)
	}
	return from, nil
}

// StatusLog returns an invoice's status history, oldest first
func (s *Store) StatusLog(ctx context.Context, invoiceID int64) ([]*InvoiceStatusLog, error) {
	query := `
		SELECT id, invoice_id, from_status, to_status, changed_by, created_at
		FROM invoice_status_logs
		WHERE invoice_id = $1
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice status log: %w", err)
	}
	defer rows.Close()

	var entries []*InvoiceStatusLog
	for rows.Next() {
		entry := &InvoiceStatusLog{}
		var changedBy sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.InvoiceID, &entry.FromStatus, &entry.ToStatus,
			&changedBy, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice status log: %w", err)
		}
		if changedBy.Valid {
			entry.ChangedBy = &changedBy.Int64
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ReplaceItems swaps an invoice's line items. Line totals are
// recomputed from quantity and unit price.
func (s *Store) ReplaceItems(ctx context.Context, invoiceID int64, items []*InvoiceItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("failed to clear invoice items: %w", err)
	}

	query := `
		INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	for _, item := range items {
		item.InvoiceID = invoiceID
		item.ComputeTotal()
		if err := tx.QueryRowContext(ctx, query,
			invoiceID, item.Description, item.Quantity, item.UnitPrice, item.Total).Scan(&item.ID); err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
	}
	return tx.Commit()
}

// Items returns an invoice's line items
func (s *Store) Items(ctx context.Context, invoiceID int64) ([]*InvoiceItem, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price, total
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer rows.Close()

	var items []*InvoiceItem
	for rows.Next() {
		item := &InvoiceItem{}
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreatePayment inserts a payment against an invoice. The ownership is
// taken from the invoice, never from the caller.
func (s *Store) CreatePayment(ctx context.Context, p *Payment) error {
	if p.UUID == "" {
		p.UUID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = status.PaymentPending
	}

	query := `
		INSERT INTO payments (uuid, ownership_id, invoice_id, method, transaction_id,
			amount, status, paid_at, confirmed_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowContext(ctx, query,
		p.UUID, p.OwnershipID, p.InvoiceID, p.Method, p.TransactionID,
		p.Amount, p.Status, p.PaidAt, p.ConfirmedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment fetches one payment. ownershipID 0 spans all ownerships.
func (s *Store) GetPayment(ctx context.Context, id, ownershipID int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = $1 AND ($2 = 0 OR ownership_id = $2)`
	return scanPayment(s.db.QueryRowContext(ctx, query, id, ownershipID))
}

// ListPayments returns an invoice's payments in creation order
func (s *Store) ListPayments(ctx context.Context, invoiceID int64) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE invoice_id = $1
		ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPaymentRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// UpdatePaymentStatusTx writes a payment's status, paid timestamp and
// confirming user inside tx
func (s *Store) UpdatePaymentStatusTx(ctx context.Context, tx *sql.Tx, p *Payment) error {
	query := `
		UPDATE payments
		SET status = $2, paid_at = $3, confirmed_by = $4, updated_at = NOW()
		WHERE id = $1`

	result, err := tx.ExecContext(ctx, query, p.ID, p.Status, p.PaidAt, p.ConfirmedBy)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return requireRow(result, ErrPaymentNotFound)
}

// SumPaidTx returns the sum of an invoice's paid payments inside tx
func (s *Store) SumPaidTx(ctx context.Context, tx *sql.Tx, invoiceID int64) (float64, error) {
	var sum float64
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE invoice_id = $1 AND status = $2`
	if err := tx.QueryRowContext(ctx, query, invoiceID, status.PaymentPaid).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum paid payments: %w", err)
	}
	return sum, nil
}

func scanInvoice(row *sql.Row) (*Invoice, error) {
	inv := &Invoice{}
	var contractID, generatedBy sql.NullInt64
	var notes sql.NullString
	var generatedAt, paidAt sql.NullTime

	err := row.Scan(&inv.ID, &inv.UUID, &inv.OwnershipID, &contractID, &inv.Number,
		&inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.Amount, &inv.TaxRate,
		&inv.Tax, &inv.Total, &inv.Status, &notes, &generatedBy, &generatedAt,
		&paidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvoiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan invoice: %w", err)
	}
	applyInvoiceNulls(inv, contractID, generatedBy, notes, generatedAt, paidAt)
	return inv, nil
}

func collectInvoices(rows *sql.Rows) ([]*Invoice, error) {
	var invoices []*Invoice
	for rows.Next() {
		inv := &Invoice{}
		var contractID, generatedBy sql.NullInt64
		var notes sql.NullString
		var generatedAt, paidAt sql.NullTime

		err := rows.Scan(&inv.ID, &inv.UUID, &inv.OwnershipID, &contractID, &inv.Number,
			&inv.PeriodStart, &inv.PeriodEnd, &inv.DueDate, &inv.Amount, &inv.TaxRate,
			&inv.Tax, &inv.Total, &inv.Status, &notes, &generatedBy, &generatedAt,
			&paidAt, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		applyInvoiceNulls(inv, contractID, generatedBy, notes, generatedAt, paidAt)
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func applyInvoiceNulls(inv *Invoice, contractID, generatedBy sql.NullInt64, notes sql.NullString, generatedAt, paidAt sql.NullTime) {
	if contractID.Valid {
		inv.ContractID = &contractID.Int64
	}
	if generatedBy.Valid {
		inv.GeneratedBy = &generatedBy.Int64
	}
	if notes.Valid {
		inv.Notes = notes.String
	}
	if generatedAt.Valid {
		inv.GeneratedAt = &generatedAt.Time
	}
	if paidAt.Valid {
		inv.PaidAt = &paidAt.Time
	}
}

func scanPayment(row *sql.Row) (*Payment, error) {
	p := &Payment{}
	var transactionID sql.NullString
	var paidAt sql.NullTime
	var confirmedBy sql.NullInt64

	err := row.Scan(&p.ID, &p.UUID, &p.OwnershipID, &p.InvoiceID, &p.Method,
		&transactionID, &p.Amount, &p.Status, &paidAt, &confirmedBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	applyPaymentNulls(p, transactionID, paidAt, confirmedBy)
	return p, nil
}

func scanPaymentRows(rows *sql.Rows) (*Payment, error) {
	p := &Payment{}
	var transactionID sql.NullString
	var paidAt sql.NullTime
	var confirmedBy sql.NullInt64

	err := rows.Scan(&p.ID, &p.UUID, &p.OwnershipID, &p.InvoiceID, &p.Method,
		&transactionID, &p.Amount, &p.Status, &paidAt, &confirmedBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	applyPaymentNulls(p, transactionID, paidAt, confirmedBy)
	return p, nil
}

func applyPaymentNulls(p *Payment, transactionID sql.NullString, paidAt sql.NullTime, confirmedBy sql.NullInt64) {
	if transactionID.Valid {
		p.TransactionID = transactionID.String
	}
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	if confirmedBy.Valid {
		p.ConfirmedBy = &confirmedBy.Int64
	}
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}
