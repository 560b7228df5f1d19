/**
 * @description
 * Scheduled job implementations: bank directory refresh, reconciliation of
 * payments the gateway never reported back on, and expiry of in-memory sessions.
 */

package app

import (
	"context"

	"go.uber.org/zap"
)

// BankRefresher refreshes the cached bank directory.
type BankRefresher interface {
	RefreshBanks(ctx context.Context) (int, error)
}

// PaymentReconciler settles payments stuck in pending.
type PaymentReconciler interface {
	ReconcilePendingPayments(ctx context.Context) (int, error)
}

// Sweeper drops expired in-memory entries and reports how many went.
type Sweeper interface {
	Sweep() int
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	banks      BankRefresher
	reconciler PaymentReconciler
	sessions   Sweeper
	admin      Sweeper
	limiter    Sweeper
	logger     *zap.Logger
}

// NewJobs creates a Jobs runner. sessions, admin and limiter may be nil when the
// matching state does not live in this process.
func NewJobs(banks BankRefresher, reconciler PaymentReconciler, sessions, admin, limiter Sweeper, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		banks:      banks,
		reconciler: reconciler,
		sessions:   sessions,
		admin:      admin,
		limiter:    limiter,
		logger:     logger.With(zap.String("component", "jobs")),
	}
}

// RefreshBanks pulls the gateway bank list into the cache.
func (j *Jobs) RefreshBanks() {
	j.logger.Info("starting bank refresh job")
	ctx := context.Background()

	count, err := j.banks.RefreshBanks(ctx)
	if err != nil {
		j.logger.Error("failed to refresh banks", zap.Error(err))
		return
	}

	j.logger.Info("bank refresh job finished", zap.Int("banks", count))
}

// ReconcilePendingPayments checks old pending payments against the gateway.
func (j *Jobs) ReconcilePendingPayments() {
	ctx := context.Background()

	settled, err := j.reconciler.ReconcilePendingPayments(ctx)
	if err != nil {
		j.logger.Error("failed to reconcile pending payments", zap.Error(err))
		return
	}
	if settled > 0 {
		j.logger.Info("pending payment reconciliation finished", zap.Int("settled", settled))
	}
}

// SweepSessions expires idle conversations and rate-limit windows.
func (j *Jobs) SweepSessions() {
	removed := 0
	if j.sessions != nil {
		removed += j.sessions.Sweep()
	}
	if j.limiter != nil {
		removed += j.limiter.Sweep()
	}
	if removed > 0 {
		j.logger.Debug("swept idle conversation state", zap.Int("removed", removed))
	}
}

// SweepAdminSessions expires dashboard login sessions.
func (j *Jobs) SweepAdminSessions() {
	if j.admin == nil {
		return
	}
	if removed := j.admin.Sweep(); removed > 0 {
		j.logger.Info("swept expired admin sessions", zap.Int("removed", removed))
	}
}
