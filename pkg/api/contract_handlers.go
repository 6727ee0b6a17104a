package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/status"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// ContractHandlers serves the contract lifecycle
type ContractHandlers struct {
	service   *contracts.Service
	store     *contracts.Store
	collector *tenants.CollectorFilter
	policy    *policy.Engine
}

// NewContractHandlers creates the handlers
func NewContractHandlers(deps Dependencies) *ContractHandlers {
	return &ContractHandlers{
		service:   deps.Contracts,
		store:     deps.ContractStore,
		collector: deps.Collector,
		policy:    deps.Policy,
	}
}

// RegisterRoutes attaches the contract routes
func (h *ContractHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts", h.list).Methods("GET")
	router.HandleFunc("/contracts", h.create).Methods("POST")
	router.HandleFunc("/contracts/{id:[0-9]+}", h.get).Methods("GET")
	router.HandleFunc("/contracts/{id:[0-9]+}/approve", h.approve).Methods("POST")
	router.HandleFunc("/contracts/{id:[0-9]+}/submit", h.transitionHandler((*contracts.Service).Submit, policy.ActionUpdate)).Methods("POST")
	router.HandleFunc("/contracts/{id:[0-9]+}/cancel", h.transitionHandler((*contracts.Service).Cancel, policy.ActionCancel)).Methods("POST")
	router.HandleFunc("/contracts/{id:[0-9]+}/terminate", h.transitionHandler((*contracts.Service).Terminate, policy.ActionUpdate)).Methods("POST")
	router.HandleFunc("/contracts/{id:[0-9]+}/terms", h.terms).Methods("GET")
	router.HandleFunc("/contracts/{id:[0-9]+}/units", h.units).Methods("GET")
}

func (h *ContractHandlers) loadAuthorized(w http.ResponseWriter, r *http.Request, action policy.Action) (*contracts.Contract, bool) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	contract, err := h.store.Get(r.Context(), id, scopeID(scope))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindContract, contract); err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return contract, true
}

func (h *ContractHandlers) list(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionViewAny, policy.KindContract, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	// collectors only ever see contracts of their visible tenants
	var visibility *tenants.Visibility
	if user.IsCollector() && !user.IsSuperAdmin() {
		vis, err := h.collector.VisibleTenants(r.Context(), user, scope.OwnershipID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if vis.Empty() {
			httputil.WriteSuccess(w, []*contracts.Contract{})
			return
		}
		visibility = &vis
	}

	var list []*contracts.Contract
	var err error
	if st := httputil.ParseQueryString(r, "status", ""); st != "" {
		if visibility != nil && !visibility.Unrestricted {
			list, err = h.store.ListByStatusForTenants(r.Context(), status.ContractStatus(st), scope.OwnershipID, visibility.TenantIDs)
		} else {
			list, err = h.store.ListByStatus(r.Context(), status.ContractStatus(st), scopeID(scope))
		}
	} else {
		tenantID, perr := httputil.ParseQueryInt(r, "tenant_id", 0)
		if perr != nil {
			httputil.WriteBadRequest(w, perr.Error())
			return
		}
		if tenantID == 0 {
			httputil.WriteBadRequest(w, "filter by status or tenant_id")
			return
		}
		if visibility != nil && !visibility.Allows(int64(tenantID)) {
			httputil.WriteSuccess(w, []*contracts.Contract{})
			return
		}
		list, err = h.store.ListByTenant(r.Context(), int64(tenantID), scopeID(scope))
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

type createContractRequest struct {
	TenantID  int64     `json:"tenant_id"`
	ParentID  *int64    `json:"parent_id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Rent      float64   `json:"rent"`
	Deposit   float64   `json:"deposit"`
	EjarCode  string    `json:"ejar_code"`
}

func (h *ContractHandlers) create(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if scope.Unscoped {
		httputil.WriteBadRequest(w, "select an ownership to create contracts")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionCreate, policy.KindContract, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	var req createContractRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	contract := &contracts.Contract{
		OwnershipID: scope.OwnershipID,
		TenantID:    req.TenantID,
		ParentID:    req.ParentID,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Rent:        req.Rent,
		Deposit:     req.Deposit,
		EjarCode:    req.EjarCode,
	}
	if err := h.service.Create(r.Context(), contract); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, contract)
}

func (h *ContractHandlers) get(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, contract)
}

func (h *ContractHandlers) approve(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.loadAuthorized(w, r, policy.ActionApprove)
	if !ok {
		return
	}
	user, _, _ := requestAuth(r.Context())

	if err := h.service.Approve(r.Context(), contract, user.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// transitionHandler builds a handler for the simple transitions that
// share one shape
func (h *ContractHandlers) transitionHandler(apply func(*contracts.Service, context.Context, *contracts.Contract, int64) error, action policy.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contract, ok := h.loadAuthorized(w, r, action)
		if !ok {
			return
		}
		user, _, _ := requestAuth(r.Context())

		if err := apply(h.service, r.Context(), contract, user.ID); err != nil {
			writeDomainError(w, err)
			return
		}
		httputil.WriteSuccess(w, contract)
	}
}

func (h *ContractHandlers) terms(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	terms, err := h.store.Terms(r.Context(), contract.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, terms)
}

func (h *ContractHandlers) units(w http.ResponseWriter, r *http.Request) {
	contract, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	units, err := h.store.Units(r.Context(), contract.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, units)
}
