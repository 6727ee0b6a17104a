package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/policy"
)

// UserHandlers serves users, roles and API tokens
type UserHandlers struct {
	store   *auth.Store
	checker *auth.PermissionChecker
	tokens  *auth.TokenManager
	policy  *policy.Engine
}

// NewUserHandlers creates the handlers
func NewUserHandlers(deps Dependencies) *UserHandlers {
	return &UserHandlers{
		store:   deps.AuthStore,
		checker: deps.Checker,
		tokens:  deps.Tokens,
		policy:  deps.Policy,
	}
}

// RegisterRoutes attaches the user routes
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.list).Methods("GET")
	router.HandleFunc("/users/me", h.me).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}", h.get).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}/roles", h.assignRole).Methods("POST")
	router.HandleFunc("/users/{id:[0-9]+}/roles/{roleID:[0-9]+}", h.removeRole).Methods("DELETE")
	router.HandleFunc("/roles", h.listRoles).Methods("GET")
	router.HandleFunc("/tokens", h.createToken).Methods("POST")
	router.HandleFunc("/tokens/{id:[0-9]+}", h.revokeToken).Methods("DELETE")
}

func (h *UserHandlers) list(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionViewAny, policy.KindUser, nil); err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.store.ListUsers(r.Context(), scopeID(scope), user.IsSuperAdmin())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *UserHandlers) me(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, user)
}

func (h *UserHandlers) loadAuthorized(w http.ResponseWriter, r *http.Request, action policy.Action) (*auth.User, bool) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return nil, false
	}
	target, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if err := h.policy.Authorize(r.Context(), user, action, policy.KindUser, target); err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	return target, true
}

func (h *UserHandlers) get(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadAuthorized(w, r, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, target)
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

func (h *UserHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadAuthorized(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID == 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}
	if err := h.store.AssignRole(r.Context(), target.ID, req.RoleID); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.checker != nil {
		h.checker.InvalidateUser(target.ID)
	}
	httputil.WriteNoContent(w)
}

func (h *UserHandlers) removeRole(w http.ResponseWriter, r *http.Request) {
	target, ok := h.loadAuthorized(w, r, policy.ActionUpdate)
	if !ok {
		return
	}
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.store.RemoveRole(r.Context(), target.ID, roleID); err != nil {
		writeDomainError(w, err)
		return
	}
	if h.checker != nil {
		h.checker.InvalidateUser(target.ID)
	}
	httputil.WriteNoContent(w)
}

func (h *UserHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	roles, err := h.store.ListRoles(r.Context(), user.IsSuperAdmin())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

type createTokenRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type createTokenResponse struct {
	Token    *auth.APIToken `json:"token"`
	Plaintext string        `json:"plaintext"`
}

// createToken issues a token for the caller. The plaintext is returned
// once and never stored.
func (h *UserHandlers) createToken(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	token, plaintext, err := h.tokens.CreateToken(r.Context(), user.ID, req.Name, req.ExpiresAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, createTokenResponse{Token: token, Plaintext: plaintext})
}

func (h *UserHandlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	user, _, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.tokens.RevokeToken(r.Context(), user.ID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
