package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/settings"
)

// SettingsHandlers serves the two-tier settings surface
type SettingsHandlers struct {
	settings *settings.Service
	policy   *policy.Engine
}

// NewSettingsHandlers creates the handlers
func NewSettingsHandlers(deps Dependencies) *SettingsHandlers {
	return &SettingsHandlers{
		settings: deps.Settings,
		policy:   deps.Policy,
	}
}

// RegisterRoutes attaches the settings routes
func (h *SettingsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.listGroup).Methods("GET")
	router.HandleFunc("/settings/{key}", h.resolve).Methods("GET")
	router.HandleFunc("/settings/{key}", h.set).Methods("PUT")
	router.HandleFunc("/settings/{key}", h.delete).Methods("DELETE")
}

// targetTier picks the row tier a request addresses: the resolved
// ownership, or the system tier when the caller is unscoped or asks
// for it explicitly.
func targetTier(r *http.Request, scopeOwnershipID int64, unscoped bool) *int64 {
	system, err := httputil.ParseQueryBool(r, "system", false)
	if err != nil {
		system = false
	}
	if unscoped || system {
		return nil
	}
	id := scopeOwnershipID
	return &id
}

func (h *SettingsHandlers) listGroup(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	group := httputil.ParseQueryString(r, "group", "")
	if group == "" {
		httputil.WriteBadRequest(w, "group is required")
		return
	}

	tier := targetTier(r, scope.OwnershipID, scope.Unscoped)
	probe := &settings.SystemSetting{OwnershipID: tier, Group: group}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionView, policy.KindSetting, probe); err != nil {
		writeDomainError(w, err)
		return
	}

	list, err := h.settings.ListGroup(r.Context(), tier, group)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

// resolve walks the two tiers and returns the effective setting.
// Authorization is checked against the caller's own tier, not against
// the tier the value happened to come from, so an ownership member can
// read a system default through the normal group permission.
func (h *SettingsHandlers) resolve(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	key := mux.Vars(r)["key"]

	setting, err := h.settings.Resolve(r.Context(), key, scopeID(scope))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	probe := &settings.SystemSetting{Group: setting.Group}
	if !scope.Unscoped {
		id := scope.OwnershipID
		probe.OwnershipID = &id
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionView, policy.KindSetting, probe); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, setting)
}

type setSettingRequest struct {
	Value     string `json:"value"`
	ValueType string `json:"value_type"`
	Group     string `json:"group"`
}

func (h *SettingsHandlers) set(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	key := mux.Vars(r)["key"]

	var req setSettingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Group == "" {
		httputil.WriteBadRequest(w, "group is required")
		return
	}
	valueType := settings.ValueType(req.ValueType)
	if !valueType.Valid() {
		httputil.WriteBadRequest(w, "invalid value_type")
		return
	}

	setting := &settings.SystemSetting{
		OwnershipID: targetTier(r, scope.OwnershipID, scope.Unscoped),
		Key:         key,
		Value:       req.Value,
		ValueType:   valueType,
		Group:       req.Group,
	}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionUpdate, policy.KindSetting, setting); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.settings.Set(r.Context(), setting); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, setting)
}

func (h *SettingsHandlers) delete(w http.ResponseWriter, r *http.Request) {
	user, scope, ok := requestAuth(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	key := mux.Vars(r)["key"]
	group := httputil.ParseQueryString(r, "group", "")
	if group == "" {
		httputil.WriteBadRequest(w, "group is required")
		return
	}

	tier := targetTier(r, scope.OwnershipID, scope.Unscoped)
	probe := &settings.SystemSetting{OwnershipID: tier, Key: key, Group: group}
	if err := h.policy.Authorize(r.Context(), user, policy.ActionDelete, policy.KindSetting, probe); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.settings.Delete(r.Context(), tier, key, group); err != nil {
		writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
