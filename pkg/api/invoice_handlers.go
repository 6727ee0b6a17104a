package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// InvoiceHandlers serves invoices and their payments
type InvoiceHandlers struct {
	service   *invoices.Service
	store     *invoices.Store
	collector *tenants.CollectorFilter
	policy    *policy.Engine
	logger    *observability.Logger
}

// NewInvoiceHandlers creates the handlers
func NewInvoiceHandlers(deps Dependencies) *InvoiceHandlers {
	return &InvoiceHandlers{
		service:   deps.Invoices,
		store:     deps.InvoiceStore,
		collector: deps.Collector,
		policy:    deps.Policy,
		logger:    deps.Logger,
	}
}

// RegisterRoutes attaches the invoice and payment routes
func (h *InvoiceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/invoices", h.list).Methods("GET")
	router.HandleFunc("/invoices", h.create).Methods("POST")
	router.HandleFunc("/invoices/{id:[0-9]+}", h.get).Methods("GET")
	router.HandleFunc("/invoices/{id:[0-9]+}", h.update).Methods("PATCH")
	router.HandleFunc("/invoices/{id:[0-9]+}", h.delete).Methods("DELETE")
	router.HandleFunc("/invoices/{id:[0-9]+}/send", h.send).Methods("POST")
	router.HandleFunc("/invoices/{id:[0-9]+}/cancel", h.cancel).Methods("POST")
	router.HandleFunc("/invoices/{id:[0-9]+}/reconcile", h.reconcile).Methods("POST")
	router.HandleFunc("/invoices/{id:[0-9]+}/items", h.items).Methods("GET")
	router.HandleFunc("/invoices/{id:[0-9]+}/items", h.replaceItems).Methods("PUT")
	router.HandleFunc("/invoices/{id:[0-9]+}/payments", h.listPayments).Methods("GET")
	router.HandleFunc("/invoices/{id:[0-9]+}/payments", h.recordPayment).Methods("POST")
	router.HandleFunc("/payments/{id:[0-9]+}/paid", h.markPaid).Methods("POST")
	router.HandleFunc("/payments/{id:[0-9]+}/unpaid", h.markUnpaid).Methods("POST")
}

// loadAuthorized fetches the invoice inside the caller's scope and runs
// the policy check for the action
func (h *InvoiceHandlers) loadAuthorized(w http.ResponseWriter, r *http.Request, action policy.Action) (*invoices.Invoice, bool) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	inv, err := h.store.Get(r.Context(), id, scopeID(scope))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindInvoice, inv); err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return inv, true
}

func (h *InvoiceHandlers) list(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionViewAny, policy.KindInvoice, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	// collectors only ever see contract-linked invoices of their
	// visible tenants; standalone invoices stay hidden
	if user.IsCollector() && !user.IsSuperAdmin() {
		visibility, err := h.collector.VisibleTenants(r.Context(), user, scope.OwnershipID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if visibility.Empty() {
			httputil.WriteSuccess(w, []*invoices.Invoice{})
			return
		}
		var visibleIDs []int64
		if !visibility.Unrestricted {
			visibleIDs = visibility.TenantIDs
		}
		list, err := h.store.ListForTenants(r.Context(), scope.OwnershipID, visibleIDs, limit, offset)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		httputil.WriteSuccess(w, list)
		return
	}

	list, err := h.store.List(r.Context(), scopeID(scope), limit, offset)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

type createInvoiceRequest struct {
	ContractID  *int64    `json:"contract_id"`
	Number      string    `json:"number"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	DueDate     time.Time `json:"due_date"`
	Amount      float64   `json:"amount"`
	TaxRate     float64   `json:"tax_rate"`
	Notes       string    `json:"notes"`
}

func (h *InvoiceHandlers) create(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if scope.Unscoped {
		httputil.WriteBadRequest(w, "select an ownership to create invoices")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionCreate, policy.KindInvoice, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	var req createInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv := &invoices.Invoice{
		OwnershipID: scope.OwnershipID,
		ContractID:  req.ContractID,
		Number:      req.Number,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DueDate:     req.DueDate,
		Amount:      req.Amount,
		TaxRate:     req.TaxRate,
		Notes:       req.Notes,
		GeneratedBy: &user.ID,
	}
	if err := h.service.Create(r.Context(), inv); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

func (h *InvoiceHandlers) get(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, inv)
}

type updateInvoiceRequest struct {
	Number      *string    `json:"number"`
	PeriodStart *time.Time `json:"period_start"`
	PeriodEnd   *time.Time `json:"period_end"`
	DueDate     *time.Time `json:"due_date"`
	Amount      *float64   `json:"amount"`
	TaxRate     *float64   `json:"tax_rate"`
	Notes       *string    `json:"notes"`
}

func (h *InvoiceHandlers) update(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	user, _, _ := requestAuth(r.Context())

	var req updateInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	edit := &invoices.InvoiceEdit{
		Number:      req.Number,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		DueDate:     req.DueDate,
		Amount:      req.Amount,
		TaxRate:     req.TaxRate,
		Notes:       req.Notes,
	}
	if err := h.service.ApplyEdit(r.Context(), inv, edit, user); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

func (h *InvoiceHandlers) delete(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionDelete)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), inv); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *InvoiceHandlers) send(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionSend)
	if !ok {
		return
	}
	user, _, _ := requestAuth(r.Context())

	updated, err := h.service.Send(r.Context(), inv.ID, user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *InvoiceHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionCancel)
	if !ok {
		return
	}
	user, _, _ := requestAuth(r.Context())

	updated, err := h.service.Cancel(r.Context(), inv.ID, user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *InvoiceHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	user, _, _ := requestAuth(r.Context())

	updated, err := h.service.Reconcile(r.Context(), inv.ID, &user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *InvoiceHandlers) items(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	items, err := h.store.Items(r.Context(), inv.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

func (h *InvoiceHandlers) replaceItems(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionUpdate)
	if !ok {
		return
	}

	var items []*invoices.InvoiceItem
	if !httputil.ParseJSONOrError(w, r, &items) {
		return
	}
	if err := h.store.ReplaceItems(r.Context(), inv.ID, items); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, items)
}

func (h *InvoiceHandlers) listPayments(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	payments, err := h.store.ListPayments(r.Context(), inv.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, payments)
}

type recordPaymentRequest struct {
	Method        invoices.PaymentMethod `json:"method"`
	TransactionID string                 `json:"transaction_id"`
	Amount        float64                `json:"amount"`
}

func (h *InvoiceHandlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadAuthorized(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	user, _, _ := requestAuth(r.Context())

	var req recordPaymentRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	payment := &invoices.Payment{
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
	}
	created, err := h.service.RecordPayment(r.Context(), inv, payment, user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *InvoiceHandlers) markPaid(w http.ResponseWriter, r *http.Request) {
	h.setPaymentStatus(w, r, true)
}

func (h *InvoiceHandlers) markUnpaid(w http.ResponseWriter, r *http.Request) {
	h.setPaymentStatus(w, r, false)
}

func (h *InvoiceHandlers) setPaymentStatus(w http.ResponseWriter, r *http.Request, paid bool) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	payment, err := h.store.GetPayment(r.Context(), id, scopeID(scope))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionUpdate, policy.KindPayment, payment); err != nil {
		writeDomainError(w, err)
		return
	}

	if paid {
		payment, err = h.service.MarkPaymentPaid(r.Context(), payment.ID, payment.OwnershipID, user.ID)
	} else {
		payment, err = h.service.MarkPaymentUnpaid(r.Context(), payment.ID, payment.OwnershipID, user.ID)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, payment)
}
