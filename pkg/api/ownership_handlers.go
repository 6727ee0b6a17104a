package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/ownership"
	"github.com/aqarly/aqarly/pkg/policy"
)

// OwnershipHandlers serves ownership administration
type OwnershipHandlers struct {
	store  *ownership.Store
	policy *policy.Engine
}

// NewOwnershipHandlers creates the handlers
func NewOwnershipHandlers(deps Dependencies) *OwnershipHandlers {
	return &OwnershipHandlers{
		store:  deps.OwnershipStore,
		policy: deps.Policy,
	}
}

// RegisterRoutes attaches the ownership routes
func (h *OwnershipHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ownerships", h.list).Methods("GET")
	router.HandleFunc("/ownerships", h.create).Methods("POST")
	router.HandleFunc("/ownerships/{id:[0-9]+}", h.get).Methods("GET")
	router.HandleFunc("/ownerships/{id:[0-9]+}/active", h.setActive).Methods("PUT")
	router.HandleFunc("/ownerships/{id:[0-9]+}/members", h.addMember).Methods("POST")
	router.HandleFunc("/ownerships/{id:[0-9]+}/members/{userID:[0-9]+}", h.removeMember).Methods("DELETE")
}

// list returns the caller's memberships; there is no cross-user listing
// here so no extra permission applies.
func (h *OwnershipHandlers) list(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	list, err := h.store.List(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

type createOwnershipRequest struct {
	Name string `json:"name"`
}

func (h *OwnershipHandlers) create(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionCreate, policy.KindOwnership, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	var req createOwnershipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	own := &ownership.Ownership{Name: req.Name, Active: true}
	if err := h.store.Create(r.Context(), own); err != nil {
		writeDomainError(w, err)
		return
	}
	// the creator becomes a member, defaulting here if nowhere else
	_, hasDefault := user.DefaultOwnershipID()
	if err := h.store.AddMember(r.Context(), own.ID, user.ID, !hasDefault); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, own)
}

func (h *OwnershipHandlers) load(w http.ResponseWriter, r *http.Request, action policy.Action) (*ownership.Ownership, bool) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	own, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	// non-members get not found, mirroring the scoped stores
	if !user.IsSuperAdmin() && !user.HasOwnership(own.ID) {
		writeDomainError(w, policy.ErrNotFound)
		return nil, false
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindOwnership, own); err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return own, true
}

func (h *OwnershipHandlers) get(w http.ResponseWriter, r *http.Request) {
	own, ok := h.load(w, r, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, own)
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (h *OwnershipHandlers) setActive(w http.ResponseWriter, r *http.Request) {
	own, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req setActiveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.store.SetActive(r.Context(), own.ID, req.Active); err != nil {
		writeDomainError(w, err)
		return
	}
	own.Active = req.Active
	httputil.WriteSuccess(w, own)
}

type addMemberRequest struct {
	UserID    int64 `json:"user_id"`
	IsDefault bool  `json:"is_default"`
}

func (h *OwnershipHandlers) addMember(w http.ResponseWriter, r *http.Request) {
	own, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req addMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == 0 {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	if err := h.store.AddMember(r.Context(), own.ID, req.UserID, req.IsDefault); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *OwnershipHandlers) removeMember(w http.ResponseWriter, r *http.Request) {
	own, ok := h.load(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}
	if err := h.store.RemoveMember(r.Context(), own.ID, userID); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
