// Package scheduler runs the recurring background jobs: monthly invoice
// generation, the overdue sweep, invitation expiry and contract expiry.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aqarly/aqarly/pkg/config"
	"github.com/aqarly/aqarly/pkg/contracts"
	"github.com/aqarly/aqarly/pkg/invoices"
	"github.com/aqarly/aqarly/pkg/observability"
	"github.com/aqarly/aqarly/pkg/settings"
	"github.com/aqarly/aqarly/pkg/status"
	"github.com/aqarly/aqarly/pkg/tenants"
)

// systemActor marks writes made by background jobs rather than a user
const systemActor int64 = 0

// jobTimeout bounds one job run
const jobTimeout = 10 * time.Minute

// Jobs carries the domain services the scheduler drives
type Jobs struct {
	InvoiceStore    *invoices.Store
	Invoices        *invoices.Service
	InvoiceSettings *settings.InvoiceSettings
	ContractStore   *contracts.Store
	Contracts       *contracts.Service
	Invitations     *tenants.InvitationService
}

// Scheduler owns the cron runner
type Scheduler struct {
	cron    *cron.Cron
	jobs    Jobs
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New builds a scheduler with the configured cron expressions
func New(cfg config.SchedulerConfig, jobs Jobs, logger *observability.Logger, metrics *observability.Metrics) (*Scheduler, error) {
	s := &Scheduler{
		cron:    cron.New(),
		jobs:    jobs,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}

	entries := []struct {
		name     string
		schedule string
		run      func(context.Context) error
	}{
		{"invoice_generation", cfg.InvoiceGenerationSchedule, s.GenerateInvoices},
		{"overdue_sweep", cfg.OverdueSweepSchedule, s.SweepOverdue},
		{"invitation_expiry", cfg.InvitationExpirySchedule, s.ExpireInvitations},
		{"contract_expiry", cfg.ContractExpirySchedule, s.ExpireContracts},
	}
	for _, entry := range entries {
		entry := entry
		if _, err := s.cron.AddFunc(entry.schedule, func() { s.runJob(entry.name, entry.run) }); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", entry.name, err)
		}
	}

	return s, nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := s.now()
	err := run(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		s.logger.WithError(err).WithField("job", name).Error("scheduled job failed")
	} else {
		s.logger.WithFields(map[string]interface{}{
			"job":      name,
			"duration": s.now().Sub(start).String(),
		}).Info("scheduled job finished")
	}
	if s.metrics != nil {
		s.metrics.SchedulerJobRunsTotal.WithLabelValues(name, outcome).Inc()
	}
}

// GenerateInvoices creates the current month's draft invoice for every
// active contract that does not have one yet. Reruns are harmless: the
// per-contract period check makes the job idempotent.
func (s *Scheduler) GenerateInvoices(ctx context.Context) error {
	active, err := s.jobs.ContractStore.ListByStatus(ctx, status.ContractActive, 0)
	if err != nil {
		return fmt.Errorf("failed to list active contracts: %w", err)
	}

	periodStart, periodEnd := currentPeriod(s.now())
	var created int
	for _, contract := range active {
		// contracts that ended before this period get no new invoice
		if contract.EndDate.Before(periodStart) || contract.StartDate.After(periodEnd) {
			continue
		}

		exists, err := s.jobs.InvoiceStore.ExistsForContractPeriod(ctx, contract.ID, periodStart)
		if err != nil {
			return fmt.Errorf("failed to check existing invoice for contract %d: %w", contract.ID, err)
		}
		if exists {
			continue
		}

		dueDays := s.jobs.InvoiceSettings.DueDays(ctx, contract.OwnershipID)
		contractID := contract.ID
		generatedAt := s.now()
		inv := &invoices.Invoice{
			OwnershipID: contract.OwnershipID,
			ContractID:  &contractID,
			Number:      fmt.Sprintf("INV-%d-%s", contract.ID, periodStart.Format("200601")),
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			DueDate:     periodStart.AddDate(0, 0, int(dueDays)),
			Amount:      contract.Rent,
			GeneratedAt: &generatedAt,
		}
		if err := s.jobs.Invoices.Create(ctx, inv); err != nil {
			return fmt.Errorf("failed to generate invoice for contract %d: %w", contract.ID, err)
		}
		created++
	}

	s.logger.WithFields(map[string]interface{}{
		"contracts": len(active),
		"created":   created,
	}).Info("invoice generation run complete")
	return nil
}

// SweepOverdue marks every past-due open invoice overdue
func (s *Scheduler) SweepOverdue(ctx context.Context) error {
	candidates, err := s.jobs.InvoiceStore.ListOverdueCandidates(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list overdue candidates: %w", err)
	}

	for _, inv := range candidates {
		if _, err := s.jobs.Invoices.MarkOverdue(ctx, inv.ID, systemActor); err != nil {
			// one bad invoice must not stall the sweep
			s.logger.WithError(err).WithField("invoice_id", inv.ID).Warn("failed to mark invoice overdue")
		}
	}
	return nil
}

// ExpireInvitations closes invitations whose deadline has passed
func (s *Scheduler) ExpireInvitations(ctx context.Context) error {
	expired, err := s.jobs.Invitations.ExpireDue(ctx)
	if err != nil {
		return fmt.Errorf("failed to expire invitations: %w", err)
	}
	if expired > 0 {
		s.logger.WithField("expired", expired).Info("invitations expired")
	}
	return nil
}

// ExpireContracts moves active contracts past their end date to expired
func (s *Scheduler) ExpireContracts(ctx context.Context) error {
	ended, err := s.jobs.ContractStore.ListActiveEndedBefore(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to list ended contracts: %w", err)
	}

	for _, contract := range ended {
		if err := s.jobs.Contracts.Expire(ctx, contract, systemActor); err != nil {
			s.logger.WithError(err).WithField("contract_id", contract.ID).Warn("failed to expire contract")
		}
	}
	return nil
}

// currentPeriod returns the calendar month containing t, in UTC
func currentPeriod(t time.Time) (start, end time.Time) {
	t = t.UTC()
	start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	end = start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}
