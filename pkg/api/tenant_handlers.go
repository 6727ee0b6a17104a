package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// defaultInvitationTTL is applied when a create request carries no
// explicit validity window.
const defaultInvitationTTL = 7 * 24 * time.Hour

// TenantHandlers serves tenants, invitations and collector assignments
type TenantHandlers struct {
	store       *tenants.Store
	invitations *tenants.InvitationService
	collector   *tenants.CollectorFilter
	checker     *auth.PermissionChecker
	policy      *policy.Engine
}

// NewTenantHandlers creates the handlers
func NewTenantHandlers(deps Dependencies) *TenantHandlers {
	return &TenantHandlers{
		store:       deps.TenantStore,
		invitations: deps.Invitations,
		collector:   deps.Collector,
		checker:     deps.Checker,
		policy:      deps.Policy,
	}
}

// RegisterRoutes attaches the tenant routes
func (h *TenantHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tenants", h.list).Methods("GET")
	router.HandleFunc("/tenants", h.create).Methods("POST")
	router.HandleFunc("/tenants/{id:[0-9]+}", h.get).Methods("GET")
	router.HandleFunc("/tenants/{id:[0-9]+}/collectors", h.assignCollector).Methods("POST")
	router.HandleFunc("/tenants/{id:[0-9]+}/collectors/{collectorID:[0-9]+}", h.unassignCollector).Methods("DELETE")

	router.HandleFunc("/invitations", h.createInvitation).Methods("POST")
	router.HandleFunc("/invitations/{id:[0-9]+}", h.getInvitation).Methods("GET")
	router.HandleFunc("/invitations/{id:[0-9]+}/accept", h.acceptInvitation).Methods("POST")
	router.HandleFunc("/invitations/{id:[0-9]+}/cancel", h.cancelInvitation).Methods("POST")
	router.HandleFunc("/invitations/token/{token}", h.getInvitationByToken).Methods("GET")
}

func (h *TenantHandlers) loadAuthorized(w http.ResponseWriter, r *http.Request, action policy.Action) (*tenants.Tenant, bool) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	tenant, err := h.store.GetTenant(r.Context(), id, scopeID(scope))
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindTenant, tenant); err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return tenant, true
}

func (h *TenantHandlers) list(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionViewAny, policy.KindTenant, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	// collectors only ever see their visible set
	var visibleIDs []int64
	if user.IsCollector() && !user.IsSuperAdmin() {
		visibility, err := h.collector.VisibleTenants(r.Context(), user, scope.OwnershipID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if visibility.Empty() {
			httputil.WriteSuccess(w, []*tenants.Tenant{})
			return
		}
		if !visibility.Unrestricted {
			visibleIDs = visibility.TenantIDs
		}
	}

	list, err := h.store.ListTenants(r.Context(), scopeID(scope), visibleIDs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

type createTenantRequest struct {
	Name       string     `json:"name"`
	NationalID string     `json:"national_id"`
	IDExpiry   *time.Time `json:"id_expiry"`
	Rating     int        `json:"rating"`
	Employer   string     `json:"employer"`
}

func (h *TenantHandlers) create(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if scope.Unscoped {
		httputil.WriteBadRequest(w, "select an ownership to create tenants")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionCreate, policy.KindTenant, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	var req createTenantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	tenant := &tenants.Tenant{
		OwnershipID: scope.OwnershipID,
		Name:        req.Name,
		NationalID:  req.NationalID,
		IDExpiry:    req.IDExpiry,
		Rating:      req.Rating,
		Employer:    req.Employer,
	}
	if err := h.store.CreateTenant(r.Context(), tenant); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, tenant)
}

func (h *TenantHandlers) get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, tenant)
}

type assignCollectorRequest struct {
	CollectorID int64 `json:"collector_id"`
}

func (h *TenantHandlers) assignCollector(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadAuthorized(w, r, policy.ActionAssign)
	if !ok {
		return
	}

	var req assignCollectorRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.CollectorID == 0 {
		httputil.WriteBadRequest(w, "collector_id is required")
		return
	}
	// the assignee must be able to see tenants at all
	if h.checker != nil {
		allowed, err := h.checker.HasPermission(r.Context(), req.CollectorID, auth.Permission("tenants.view"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		if !allowed {
			httputil.WriteErrorMessage(w, http.StatusUnprocessableEntity, "assignee cannot view tenants")
			return
		}
	}

	if err := h.store.AssignTenant(r.Context(), req.CollectorID, tenant.ID, tenant.OwnershipID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *TenantHandlers) unassignCollector(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadAuthorized(w, r, policy.ActionAssign)
	if !ok {
		return
	}
	collectorID, ok := httputil.ParsePathInt64OrError(w, r, "collectorID")
	if !ok {
		return
	}

	if err := h.store.UnassignTenant(r.Context(), collectorID, tenant.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

type createInvitationRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	ValidForHrs int    `json:"valid_for_hours"`
}

func (h *TenantHandlers) createInvitation(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if scope.Unscoped {
		httputil.WriteBadRequest(w, "select an ownership to invite tenants")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionCreate, policy.KindTenantInvitation, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	validFor := defaultInvitationTTL
	if req.ValidForHrs > 0 {
		validFor = time.Duration(req.ValidForHrs) * time.Hour
	}

	inv := &tenants.TenantInvitation{
		OwnershipID: scope.OwnershipID,
		Email:       req.Email,
		Phone:       req.Phone,
		Name:        req.Name,
	}
	if err := h.invitations.Create(r.Context(), inv, validFor); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

func (h *TenantHandlers) loadInvitation(w http.ResponseWriter, r *http.Request, action policy.Action) (*tenants.TenantInvitation, bool) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	inv, err := h.invitations.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if !scope.Unscoped && inv.OwnershipID != scope.OwnershipID {
		writeDomainError(w, policy.ErrNotFound)
		return nil, false
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindTenantInvitation, inv); err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return inv, true
}

func (h *TenantHandlers) getInvitation(w http.ResponseWriter, r *http.Request) {
	inv, ok := h.loadInvitation(w, r, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, inv)
}

// getInvitationByToken resolves the invitation a signup link points at.
// The caller is authenticated but need not belong to the ownership yet.
func (h *TenantHandlers) getInvitationByToken(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := requestAuth(r.Context()); !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	token := mux.Vars(r)["token"]
	inv, err := h.invitations.GetByToken(r.Context(), token)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

func (h *TenantHandlers) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.invitations.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.invitations.Accept(r.Context(), inv, user.ID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// cancelInvitation closes an invitation. Generic invitations (no email,
// no phone) go through the closeWithoutContact gate instead of plain
// cancel.
func (h *TenantHandlers) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	action := policy.ActionCancel
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	inv, err := h.invitations.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !scope.Unscoped && inv.OwnershipID != scope.OwnershipID {
		writeDomainError(w, policy.ErrNotFound)
		return
	}
	if inv.IsGeneric() {
		action = policy.ActionCloseWithoutContact
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindTenantInvitation, inv); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.invitations.Cancel(r.Context(), inv); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}
