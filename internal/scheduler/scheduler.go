// Package scheduler runs periodic ledger maintenance.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"alert-executor/internal/ledger"
)

// Scheduler manages the maintenance cron jobs.
type Scheduler struct {
	Cron       *cron.Cron
	Ledger     ledger.Ledger
	Retention  time.Duration
	StaleAfter time.Duration
	Ctx        context.Context

	now func() time.Time
	log *zap.Logger
}

// NewScheduler creates a Scheduler. A zero retention disables pruning.
func NewScheduler(ctx context.Context, l ledger.Ledger, retention, staleAfter time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Cron:       cron.New(),
		Ledger:     l,
		Retention:  retention,
		StaleAfter: staleAfter,
		Ctx:        ctx,
		now:        time.Now,
		log:        log.Named("scheduler"),
	}
}

// RegisterAll registers the prune and stale-pending jobs. An empty spec skips its job.
func (s *Scheduler) RegisterAll(pruneSpec, staleSpec string) error {
	if pruneSpec != "" && s.Retention > 0 {
		if _, err := s.Cron.AddFunc(pruneSpec, func() { s.RunPruneNow() }); err != nil {
			return fmt.Errorf("register prune task: %w", err)
		}
	}
	if staleSpec != "" && s.StaleAfter > 0 {
		if _, err := s.Cron.AddFunc(staleSpec, func() { s.RunStaleCheckNow() }); err != nil {
			return fmt.Errorf("register stale check: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Int("jobs", len(s.Cron.Entries())))
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunPruneNow deletes terminal alerts older than the retention window.
func (s *Scheduler) RunPruneNow() int {
	cutoff := s.now().Add(-s.Retention)
	n, err := s.Ledger.Prune(s.Ctx, cutoff)
	if err != nil {
		s.log.Error("prune alerts failed", zap.Error(err))
		return 0
	}
	s.log.Info("pruned alerts", zap.Int("deleted", n), zap.Time("before", cutoff))
	return n
}

// RunStaleCheckNow reports alerts that have been pending longer than StaleAfter.
func (s *Scheduler) RunStaleCheckNow() int {
	cutoff := s.now().Add(-s.StaleAfter)
	n, err := s.Ledger.CountStalePending(s.Ctx, cutoff)
	if err != nil {
		s.log.Error("stale pending check failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		s.log.Warn("alerts awaiting decision", zap.Int("count", n), zap.Duration("older_than", s.StaleAfter))
	}
	return n
}
