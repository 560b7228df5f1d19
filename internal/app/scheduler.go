/**
 * @description
 * Cron scheduler setup for the background jobs.
 */

package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	sessionSweepSchedule      = "@every 1m"
	adminSessionSweepSchedule = "@every 10m"
)

// ScheduleConfig holds the cron expressions for the configurable jobs.
type ScheduleConfig struct {
	BankRefresh string
	Reconcile   string
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
	config ScheduleConfig
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, cfg ScheduleConfig) *Scheduler {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.With(zap.String("component", "cron"))))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.add("bank refresh", s.config.BankRefresh, s.jobs.RefreshBanks)
	s.add("pending payment reconcile", s.config.Reconcile, s.jobs.ReconcilePendingPayments)
	if s.jobs.sessions != nil || s.jobs.limiter != nil {
		s.add("session sweep", sessionSweepSchedule, s.jobs.SweepSessions)
	}
	if s.jobs.admin != nil {
		s.add("admin session sweep", adminSessionSweepSchedule, s.jobs.SweepAdminSessions)
	}

	s.cron.Start()
}

func (s *Scheduler) add(name, schedule string, job func()) {
	if _, err := s.cron.AddFunc(schedule, job); err != nil {
		s.logger.Error("failed to schedule job", zap.String("job", name), zap.String("schedule", schedule), zap.Error(err))
		return
	}
	s.logger.Info("scheduled job", zap.String("job", name), zap.String("schedule", schedule))
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
