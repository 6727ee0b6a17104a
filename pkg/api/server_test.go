package api

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/ownership"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/status"
	"github.com/aqarly/aqarly/pkg/tenants"
)

type serverFixture struct {
	server *Server
	mock   sqlmock.Sqlmock
	token  string
}

// newServerFixture wires a full server over one mocked database so
// requests exercise the real middleware chain end to end.
func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	authStore := auth.NewStore(db)
	tokens := auth.NewTokenManager(db, authStore)
	ownershipStore := ownership.NewStore(db)
	settingsService := settings.NewService(settings.NewStore(db), nil, logger, nil)
	invoiceSettings := settings.NewInvoiceSettings(settingsService)
	tenantStore := tenants.NewStore(db)
	collector := tenants.NewCollectorFilter(tenantStore, invoiceSettings)
	contractStore := contracts.NewStore(db)
	invoiceStore := invoices.NewStore(db)
	dispatcher := events.NewChannelDispatcher(16, logger)

	deps := Dependencies{
		Policy:         policy.NewEngine(collector, contractStore, invoiceSettings, nil),
		OwnershipStore: ownershipStore,
		Resolver:       ownership.NewResolver(ownershipStore),
		AuthStore:      authStore,
		Tokens:         tokens,
		Logger:         logger,
		Invoices:       invoices.NewService(invoiceStore, invoiceSettings, dispatcher, logger, nil),
		InvoiceStore:   invoiceStore,
		Contracts:      contracts.NewService(contractStore, dispatcher, nil),
		ContractStore:  contractStore,
		TenantStore:    tenantStore,
		Invitations:    tenants.NewInvitationService(tenantStore, dispatcher),
		Collector:      collector,
		Settings:       settingsService,
	}

	encoded := base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{0x2a}, auth.TokenLength))
	return &serverFixture{
		server: NewServer(deps),
		mock:   mock,
		token:  auth.TokenPrefix + encoded,
	}
}

// expectAuth queues the token validation and user load for a member of
// ownership 5 holding the given permissions.
func (f *serverFixture) expectAuth(permissions string) {
	f.expectAuthAs("Manager", permissions)
}

func (f *serverFixture) expectAuthAs(role, permissions string) {
	now := time.Now()
	f.mock.ExpectQuery("FROM api_tokens").
		WithArgs(auth.HashToken(f.token)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(7))
	f.mock.ExpectExec("UPDATE api_tokens").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery("FROM users").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "name", "email", "phone", "active", "created_at", "updated_at"}).
			AddRow(7, "5b0c2f1e-0000-0000-0000-000000000007", "Huda", "huda@example.com", "", true, now, now))
	f.mock.ExpectQuery("FROM roles").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "display_name", "permissions", "created_at", "updated_at"}).
			AddRow(3, role, role, permissions, now, now))
	f.mock.ExpectQuery("FROM ownership_user").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"ownership_id", "is_default", "created_at"}).
			AddRow(5, true, now))
}

// expectDefaultScope queues the default-ownership resolution that
// follows authentication when no ownership header is sent
func (f *serverFixture) expectDefaultScope() {
	now := time.Now()
	f.mock.ExpectQuery("FROM ownerships").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "name", "active", "created_at", "updated_at"}).
			AddRow(5, "9f8e7d6c-0000-0000-0000-000000000005", "Riyadh Towers", true, now, now))
}

// expectCollectorVisibility queues the settings lookups (both keys miss
// on both tiers, so the collector system defaults on and see-all off)
// and the assignment fetch behind the collector filter.
func (f *serverFixture) expectCollectorVisibility(assigned ...int64) {
	emptySettings := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "ownership_id", "key", "value", "value_type", "group", "created_at", "updated_at"})
	}
	f.mock.ExpectQuery("FROM system_settings").WillReturnRows(emptySettings())
	f.mock.ExpectQuery("FROM system_settings").WillReturnRows(emptySettings())
	f.mock.ExpectQuery("FROM system_settings").WillReturnRows(emptySettings())
	f.mock.ExpectQuery("FROM system_settings").WillReturnRows(emptySettings())

	rows := sqlmock.NewRows([]string{"tenant_id"})
	for _, id := range assigned {
		rows.AddRow(id)
	}
	f.mock.ExpectQuery("FROM collector_tenant_assignments").
		WithArgs(int64(7), int64(5)).
		WillReturnRows(rows)
}

func (f *serverFixture) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func apiInvoiceRows(st status.InvoiceStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "uuid", "ownership_id", "contract_id", "number",
		"period_start", "period_end", "due_date", "amount", "tax_rate", "tax", "total",
		"status", "notes", "generated_by", "generated_at", "paid_at", "created_at", "updated_at"}).
		AddRow(1, "d2b7a1de-0000-0000-0000-000000000001", 5, nil, "INV-2026-001",
			now, now, now, 1000.00, 15.0, 150.00, 1150.00,
			st, nil, nil, nil, nil, now, now)
}

func TestHealthEndpoint(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	f := newServerFixture(t)

	req := httptest.NewRequest("GET", "/api/v1/invoices/1", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetInvoiceThroughFullChain(t *testing.T) {
	f := newServerFixture(t)

	f.expectAuth(`["invoices.view"]`)
	f.expectDefaultScope()
	f.mock.ExpectQuery("FROM invoices").
		WithArgs(int64(1), int64(5)).
		WillReturnRows(apiInvoiceRows(status.InvoiceSent))

	rec := f.do(httptest.NewRequest("GET", "/api/v1/invoices/1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "INV-2026-001")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestForeignInvoiceComesBackNotFound(t *testing.T) {
	f := newServerFixture(t)

	f.expectAuth(`["invoices.view"]`)
	f.expectDefaultScope()
	// the scoped query filters by ownership, a foreign row never matches
	f.mock.ExpectQuery("FROM invoices").
		WithArgs(int64(42), int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "ownership_id", "contract_id", "number",
			"period_start", "period_end", "due_date", "amount", "tax_rate", "tax", "total",
			"status", "notes", "generated_by", "generated_at", "paid_at", "created_at", "updated_at"}))

	rec := f.do(httptest.NewRequest("GET", "/api/v1/invoices/42", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCollectorInvoiceListRestrictedToAssignedTenants(t *testing.T) {
	f := newServerFixture(t)
	now := time.Now()

	f.expectAuthAs(auth.RoleCollector, `["invoices.view","invoices.viewAny"]`)
	f.expectDefaultScope()
	f.expectCollectorVisibility(21)
	// only the tenant-restricted query runs; standalone invoices and
	// other tenants' invoices never leave the store
	f.mock.ExpectQuery("contract_id IN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "ownership_id", "contract_id", "number",
			"period_start", "period_end", "due_date", "amount", "tax_rate", "tax", "total",
			"status", "notes", "generated_by", "generated_at", "paid_at", "created_at", "updated_at"}).
			AddRow(2, "d2b7a1de-0000-0000-0000-000000000002", 5, 31, "INV-2026-002",
				now, now, now, 2500.00, 15.0, 375.00, 2875.00,
				status.InvoiceSent, nil, nil, nil, nil, now, now))

	rec := f.do(httptest.NewRequest("GET", "/api/v1/invoices", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "INV-2026-002")
	assert.NotContains(t, rec.Body.String(), "INV-2026-001")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCollectorInvoiceListEmptyWhenSystemDisabled(t *testing.T) {
	f := newServerFixture(t)
	now := time.Now()

	f.expectAuthAs(auth.RoleCollector, `["invoices.view","invoices.viewAny"]`)
	f.expectDefaultScope()
	f.mock.ExpectQuery("FROM system_settings").
		WillReturnRows(sqlmock.NewRows([]string{"id", "ownership_id", "key", "value", "value_type", "group", "created_at", "updated_at"}).
			AddRow(1, 5, "collector_system_enabled", "false", settings.TypeBoolean, "collector", now, now))

	rec := f.do(httptest.NewRequest("GET", "/api/v1/invoices", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCollectorContractListByStatusRestricted(t *testing.T) {
	f := newServerFixture(t)
	now := time.Now()

	f.expectAuthAs(auth.RoleCollector, `["contracts.view","contracts.viewAny"]`)
	f.expectDefaultScope()
	f.expectCollectorVisibility(21)
	f.mock.ExpectQuery(`tenant_id = ANY`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "ownership_id", "tenant_id", "parent_id",
			"status", "start_date", "end_date", "rent", "deposit", "deposit_status", "ejar_code",
			"approved_by", "created_at", "updated_at"}).
			AddRow(3, "c4d5e6f7-0000-0000-0000-000000000003", 5, 21, nil,
				status.ContractActive, now, now, 2500.00, 2500.00, "", "",
				nil, now, now))

	rec := f.do(httptest.NewRequest("GET", "/api/v1/contracts?status=active", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tenant_id":21`)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCollectorContractListSkipsUnassignedTenant(t *testing.T) {
	f := newServerFixture(t)

	f.expectAuthAs(auth.RoleCollector, `["contracts.view","contracts.viewAny"]`)
	f.expectDefaultScope()
	f.expectCollectorVisibility(21)
	// tenant 9 is outside the visible set; no contract query runs

	rec := f.do(httptest.NewRequest("GET", "/api/v1/contracts?tenant_id=9", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
