// Command aqarly runs the property management API server with its
// background jobs.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aqarly/aqarly/pkg/api"
	"github.com/aqarly/aqarly/pkg/audit"
	"github.com/aqarly/aqarly/pkg/auth"
	"github.com/aqarly/aqarly/pkg/config"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/events"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/middleware"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/ownership"
	"github.com/aqarly/aqarly/pkg/policy"
	"github.com/aqarly/aqarly/pkg/scheduler"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/storage/postgres"
	"github.com/aqarly/aqarly/pkg/tenants"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	var metrics *observability.Metrics
	registry := prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	connections, err := postgres.NewConnectionManager(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("failed to connect to postgres")
		os.Exit(1)
	}
	defer connections.Close()
	db := connections.Primary()

	var cache *postgres.RedisClient
	if cfg.Storage.CacheEnabled {
		cache, err = postgres.NewRedisClient(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("failed to connect to redis")
			os.Exit(1)
		}
		defer cache.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := events.NewChannelDispatcher(256, logger)

	// stores
	authStore := auth.NewStore(db)
	ownershipStore := ownership.NewStore(db)
	settingsStore := settings.NewStore(db)
	tenantStore := tenants.NewStore(db)
	contractStore := contracts.NewStore(db)
	invoiceStore := invoices.NewStore(db)
	auditStore := audit.NewStore(db)

	// services
	settingsService := settings.NewService(settingsStore, cache, logger, metrics)
	invoiceSettings := settings.NewInvoiceSettings(settingsService)
	collector := tenants.NewCollectorFilter(tenantStore, invoiceSettings)
	contractService := contracts.NewService(contractStore, dispatcher, metrics)
	invoiceService := invoices.NewService(invoiceStore, invoiceSettings, dispatcher, logger, metrics)
	invitationService := tenants.NewInvitationService(tenantStore, dispatcher)
	tokens := auth.NewTokenManager(db, authStore)
	checker := auth.NewPermissionChecker(authStore, 1024, time.Minute)
	engine := policy.NewEngine(collector, contractStore, invoiceSettings, metrics)

	dispatcher.Subscribe(audit.NewRecorder(auditStore, logger).Handler())
	dispatcher.Start(ctx)

	deps := api.Dependencies{
		Logger:         logger,
		Metrics:        metrics,
		Policy:         engine,
		OwnershipStore: ownershipStore,
		Resolver:       ownership.NewResolver(ownershipStore),
		AuthStore:      authStore,
		Checker:        checker,
		Tokens:         tokens,
		Invoices:       invoiceService,
		InvoiceStore:   invoiceStore,
		Contracts:      contractService,
		ContractStore:  contractStore,
		TenantStore:    tenantStore,
		Invitations:    invitationService,
		Collector:      collector,
		Settings:       settingsService,
	}
	if cache != nil {
		deps.Health = observability.NewHealthChecker(db, cache.GetClient())
		deps.RateLimit = middleware.NewRateLimitMiddleware(cache.GetClient())
	} else {
		deps.Health = observability.NewHealthChecker(db, nil)
	}

	server := api.NewServer(deps)

	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs, err = scheduler.New(cfg.Scheduler, scheduler.Jobs{
			InvoiceStore:    invoiceStore,
			Invoices:        invoiceService,
			InvoiceSettings: invoiceSettings,
			ContractStore:   contractStore,
			Contracts:       contractService,
			Invitations:     invitationService,
		}, logger, metrics)
		if err != nil {
			logger.WithError(err).Error("failed to build scheduler")
			os.Exit(1)
		}
		jobs.Start()
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", deps.Health.Liveness)
	healthMux.HandleFunc("/ready", deps.Health.Readiness)
	healthMux.Handle("/metrics", observability.Handler(registry))
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("api server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("api server failed")
			cancel()
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("api server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("health server shutdown failed")
	}
	if jobs != nil {
		jobs.Stop()
	}
	cancel()
	dispatcher.Wait()

	// give the last audit writes a moment to land
	time.Sleep(100 * time.Millisecond)
	logger.Info("shutdown complete")
}
