// Package api exposes the REST surface. Handlers are thin: they parse
// the request, ask the policy engine, and call into the domain
// services; every scoped read goes through the ownership context the
// middleware resolved.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/httputil"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/middleware"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/ownership"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// Dependencies carries everything the server wires into its handlers
type Dependencies struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Health  *observability.HealthChecker

	Policy         *policy.Engine
	OwnershipStore *ownership.Store
	Resolver       *ownership.Resolver
	AuthStore      *auth.Store
	Checker        *auth.PermissionChecker
	Tokens         *auth.TokenManager
	Invoices       *invoices.Service
	InvoiceStore   *invoices.Store
	Contracts      *contracts.Service
	ContractStore  *contracts.Store
	TenantStore    *tenants.Store
	Invitations    *tenants.InvitationService
	Collector      *tenants.CollectorFilter
	Settings       *settings.Service

	RateLimit *middleware.RateLimitMiddleware
}

// Server is the HTTP API server
type Server struct {
	router *mux.Router
	deps   Dependencies
	logger *observability.Logger
}

// NewServer builds the router with all resource handlers registered
func NewServer(deps Dependencies) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		logger: deps.Logger,
	}
	s.setupRoutes()
	return s
}

// Router returns the configured handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.health).Methods("GET")
	s.router.HandleFunc("/ready", s.ready).Methods("GET")

	authMW := middleware.NewAuthMiddleware(s.deps.Tokens, false)
	scopeMW := middleware.NewOwnershipScopeMiddleware(s.deps.Resolver)

	chain := []httputil.Middleware{httputil.RequestIDMiddleware}
	if s.deps.Metrics != nil {
		chain = append(chain, s.deps.Metrics.HTTPMiddleware)
	}
	chain = append(chain, authMW.Handler)
	if s.deps.RateLimit != nil {
		chain = append(chain, s.deps.RateLimit.Handler)
	}
	chain = append(chain, scopeMW.Handler)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	for _, m := range chain {
		api.Use(mux.MiddlewareFunc(m))
	}

	NewInvoiceHandlers(s.deps).RegisterRoutes(api)
	NewContractHandlers(s.deps).RegisterRoutes(api)
	NewTenantHandlers(s.deps).RegisterRoutes(api)
	NewSettingsHandlers(s.deps).RegisterRoutes(api)
	NewOwnershipHandlers(s.deps).RegisterRoutes(api)
	NewUserHandlers(s.deps).RegisterRoutes(api)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		s.deps.Health.Liveness(w, r)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		s.deps.Health.Readiness(w, r)
		return
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ready"})
}

// requestAuth pulls the authenticated user and resolved scope set by
// the middleware chain
func requestAuth(ctx context.Context) (*auth.User, *ownership.Context, bool) {
	user, ok := middleware.UserFromContext(ctx)
	if !ok {
		return nil, nil, false
	}
	scope, ok := middleware.ScopeFromContext(ctx)
	if !ok {
		return nil, nil, false
	}
	return user, scope, true
}

// scopeID is the ownership filter for store queries; 0 spans all
// ownerships and is only ever produced for Super Admin
func scopeID(scope *ownership.Context) int64 {
	if scope.Unscoped {
		return 0
	}
	return scope.OwnershipID
}
