package invoices

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/settings"
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
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type())
	}
	return out
}

// invoiceFixture wires a service whose settings resolve from the same
// mocked SQL connection as the stores
type invoiceFixture struct {
	svc        *Service
	mock       sqlmock.Sqlmock
	dispatcher *recordingDispatcher
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	settingsSvc := settings.NewService(settings.NewStore(db), nil, logger, nil)
	dispatcher := &recordingDispatcher{}
	svc := NewService(NewStore(db), settings.NewInvoiceSettings(settingsSvc), dispatcher, logger, nil)

	return &invoiceFixture{svc: svc, mock: mock, dispatcher: dispatcher}
}

func (f *invoiceFixture) expectSettingValue(value string) {
	f.mock.ExpectQuery("FROM system_settings").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ownership_id", "key", "value", "value_type", "group", "created_at", "updated_at"}).
			AddRow(1, 5, "k", value, settings.TypeBoolean, "invoice", time.Now(), time.Now()))
}

func (f *invoiceFixture) expectSettingMiss() {
	empty := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "ownership_id", "key", "value", "value_type", "group", "created_at", "updated_at"})
	}
	f.mock.ExpectQuery("FROM system_settings").WillReturnRows(empty())
	f.mock.ExpectQuery("FROM system_settings").WillReturnRows(empty())
}

// invoiceRows builds a 1000.00 + 15% tax invoice in the given status
func invoiceRows(st status.InvoiceStatus, paidAt interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "uuid", "ownership_id", "contract_id", "number",
		"period_start", "period_end", "due_date", "amount", "tax_rate", "tax", "total",
		"status", "notes", "generated_by", "generated_at", "paid_at", "created_at", "updated_at"}).
		AddRow(1, "d2b7a1de-0000-0000-0000-000000000001", 5, nil, "INV-2026-001",
			now, now, now, 1000.00, 15.0, 150.00, 1150.00,
			st, nil, nil, nil, paidAt, now, now)
}

func paymentRows(amount float64, st status.PaymentStatus, paidAt interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "uuid", "ownership_id", "invoice_id", "method",
		"transaction_id", "amount", "status", "paid_at", "confirmed_by", "created_at", "updated_at"}).
		AddRow(10, "d2b7a1de-0000-0000-0000-000000000002", 5, 1, MethodBankTransfer,
			nil, amount, st, paidAt, nil, now, now)
}

func TestMarkPaymentPaidSettlesInvoice(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectQuery("FROM payments").
		WithArgs(int64(10), int64(5)).
		WillReturnRows(paymentRows(1150.00, status.PaymentPending, nil))
	f.expectSettingMiss() // invoice_allow_partial_payment -> default true

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceSent, nil))
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	f.mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// reconciliation re-reads the sum after the payment flipped
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1150.00))
	f.mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO invoice_status_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	p, err := f.svc.MarkPaymentPaid(context.Background(), 10, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, status.PaymentPaid, p.Status)
	require.NotNil(t, p.PaidAt)
	require.NotNil(t, p.ConfirmedBy)
	assert.Equal(t, int64(42), *p.ConfirmedBy)

	assert.Equal(t, []events.EventType{
		events.EventPaymentConfirmed,
		events.EventInvoiceStatusChanged,
		events.EventInvoicePaid,
	}, f.dispatcher.types())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkPaymentUnpaidRevertsInvoice(t *testing.T) {
	f := newInvoiceFixture(t)
	paidAt := time.Now()

	f.mock.ExpectQuery("FROM payments").
		WithArgs(int64(10), int64(5)).
		WillReturnRows(paymentRows(1150.00, status.PaymentPaid, paidAt))
	f.expectSettingMiss()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoicePaid, paidAt))
	f.mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	// the status log remembers the invoice was sent before payment
	f.mock.ExpectQuery("FROM invoice_status_logs").
		WillReturnRows(sqlmock.NewRows([]string{"from_status"}).AddRow(status.InvoiceSent))
	f.mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO invoice_status_logs").
		WillReturnResult(sqlmock.NewResult(2, 1))
	f.mock.ExpectCommit()

	p, err := f.svc.MarkPaymentUnpaid(context.Background(), 10, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, status.PaymentUnpaid, p.Status)
	assert.Nil(t, p.PaidAt)
	assert.Nil(t, p.ConfirmedBy)

	assert.Equal(t, []events.EventType{
		events.EventPaymentReverted,
		events.EventInvoiceStatusChanged,
	}, f.dispatcher.types())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMarkPaymentPaidRejectsOverpayment(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectQuery("FROM payments").
		WithArgs(int64(10), int64(5)).
		WillReturnRows(paymentRows(2000.00, status.PaymentPending, nil))
	f.expectSettingMiss()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceSent, nil))
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	f.mock.ExpectRollback()

	_, err := f.svc.MarkPaymentPaid(context.Background(), 10, 5, 42)
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Empty(t, f.dispatcher.types())
}

func TestMarkPaymentPaidRejectsPartialWhenDisabled(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectQuery("FROM payments").
		WithArgs(int64(10), int64(5)).
		WillReturnRows(paymentRows(500.00, status.PaymentPending, nil))
	f.expectSettingValue("false") // invoice_allow_partial_payment

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceSent, nil))
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	f.mock.ExpectRollback()

	_, err := f.svc.MarkPaymentPaid(context.Background(), 10, 5, 42)
	assert.ErrorIs(t, err, ErrPartialNotAllowed)
}

func TestMarkPaymentPaidMovesInvoiceToPartial(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectQuery("FROM payments").
		WithArgs(int64(10), int64(5)).
		WillReturnRows(paymentRows(500.00, status.PaymentPending, nil))
	f.expectSettingMiss()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceSent, nil))
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0.0))
	f.mock.ExpectExec("UPDATE payments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(500.00))
	f.mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO invoice_status_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	_, err := f.svc.MarkPaymentPaid(context.Background(), 10, 5, 42)
	require.NoError(t, err)
	assert.Equal(t, []events.EventType{
		events.EventPaymentConfirmed,
		events.EventInvoiceStatusChanged,
	}, f.dispatcher.types())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newInvoiceFixture(t)
	paidAt := time.Now()

	for i := 0; i < 2; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectQuery("FOR UPDATE").
			WithArgs(int64(1)).
			WillReturnRows(invoiceRows(status.InvoicePaid, paidAt))
		f.expectSettingMiss()
		f.mock.ExpectQuery("SELECT COALESCE").
			WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1150.00))
		f.mock.ExpectCommit()
	}

	for i := 0; i < 2; i++ {
		inv, err := f.svc.Reconcile(context.Background(), 1, nil)
		require.NoError(t, err)
		assert.Equal(t, status.InvoicePaid, inv.Status)
	}
	assert.Empty(t, f.dispatcher.types())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestReconcileLeavesFinalStatusesAlone(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceCancelled, nil))
	f.expectSettingMiss()
	f.mock.ExpectCommit()

	inv, err := f.svc.Reconcile(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Equal(t, status.InvoiceCancelled, inv.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSendEmitsInvoiceSent(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceDraft, nil))
	f.mock.ExpectExec("UPDATE invoices").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO invoice_status_logs").
		WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	inv, err := f.svc.Send(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, status.InvoiceSent, inv.Status)
	assert.Equal(t, []events.EventType{
		events.EventInvoiceStatusChanged,
		events.EventInvoiceSent,
	}, f.dispatcher.types())
}

func TestTransitionRejectsInvalidMove(t *testing.T) {
	f := newInvoiceFixture(t)

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(1)).
		WillReturnRows(invoiceRows(status.InvoiceRefunded, nil))
	f.mock.ExpectRollback()

	_, err := f.svc.Cancel(context.Background(), 1, 42)
	var invalid *status.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "refunded", invalid.From)
	assert.Equal(t, "cancelled", invalid.To)
	assert.Empty(t, f.dispatcher.types())
}

func TestDeleteRespectsStatusFlags(t *testing.T) {
	f := newInvoiceFixture(t)

	err := f.svc.Delete(context.Background(), &Invoice{ID: 1, Status: status.InvoicePaid})
	assert.Error(t, err)

	f.mock.ExpectExec("DELETE FROM invoices").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err = f.svc.Delete(context.Background(), &Invoice{ID: 1, Status: status.InvoiceDraft})
	assert.NoError(t, err)
}
