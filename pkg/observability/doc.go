// Package observability provides structured logging, Prometheus metrics and
// health checks for the service.
//
// Logging uses log/slog with a JSON handler; loggers are enriched from the
// request context (request ID, user ID) via FromContext.
//
// Metrics cover the HTTP surface plus the domain concerns that matter
// operationally: authorization decisions, status transitions and payment
// reconciliation runs.
package observability
