package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Lifecycle metrics
	StatusTransitionsTotal *prometheus.CounterVec
	ReconciliationsTotal   *prometheus.CounterVec
	ReconciliationDuration prometheus.Histogram

	// Settings cache metrics
	SettingsCacheHitsTotal   prometheus.Counter
	SettingsCacheMissesTotal prometheus.Counter

	// Scheduler metrics
	SchedulerJobRunsTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqarly_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aqarly_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqarly_authz_decisions_total",
				Help: "Authorization decisions by resource, action and outcome",
			},
			[]string{"resource", "action", "allowed"},
		),
		StatusTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqarly_status_transitions_total",
				Help: "Entity status transitions by entity kind and outcome",
			},
			[]string{"entity", "from", "to", "outcome"},
		),
		ReconciliationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqarly_invoice_reconciliations_total",
				Help: "Invoice payment reconciliation runs by result",
			},
			[]string{"result"},
		),
		ReconciliationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aqarly_invoice_reconciliation_duration_seconds",
				Help:    "Duration of invoice payment reconciliation runs",
				Buckets: prometheus.DefBuckets,
			},
		),
		SettingsCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aqarly_settings_cache_hits_total",
				Help: "Settings cache hits",
			},
		),
		SettingsCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "aqarly_settings_cache_misses_total",
				Help: "Settings cache misses",
			},
		),
		SchedulerJobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aqarly_scheduler_job_runs_total",
				Help: "Background job runs by job name and outcome",
			},
			[]string{"job", "outcome"},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aqarly_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aqarly_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.StatusTransitionsTotal,
		m.ReconciliationsTotal,
		m.ReconciliationDuration,
		m.SettingsCacheHitsTotal,
		m.SettingsCacheMissesTotal,
		m.SchedulerJobRunsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveAuthzDecision records an authorization decision
func (m *Metrics) ObserveAuthzDecision(resource, action string, allowed bool) {
	m.AuthzDecisionsTotal.WithLabelValues(resource, action, strconv.FormatBool(allowed)).Inc()
}

// ObserveTransition records a status transition attempt
func (m *Metrics) ObserveTransition(entity, from, to, outcome string) {
	m.StatusTransitionsTotal.WithLabelValues(entity, from, to, outcome).Inc()
}

// Handler returns the Prometheus metrics HTTP handler for a registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments an HTTP handler with request metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
