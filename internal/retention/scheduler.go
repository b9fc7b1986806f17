package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/hiring-intake/internal/metrics"
)

// LockKey is the PostgreSQL advisory lock key held while a scheduled purge runs.
const LockKey int64 = 0x1e7e_0001

// Locker takes a cluster-wide lock without waiting. When ok is true the
// caller must call release.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (release func(), ok bool, err error)
}

// Scheduler runs a Job on a fixed interval.
type Scheduler struct {
	job      *Job
	locker   Locker
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewScheduler creates a Scheduler. A nil locker runs every tick unguarded,
// which suits a single replica.
func NewScheduler(job *Job, locker Locker, interval time.Duration, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{job: job, locker: locker, interval: interval, logger: logger, metrics: m}
}

// Run purges once per interval until ctx is done. A non-positive interval
// disables scheduling and Run returns at once.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("scheduled retention purge disabled")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduled retention purge started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single guarded purge and reports whether it ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if s.locker != nil {
		release, ok, err := s.locker.TryAdvisoryLock(ctx, LockKey)
		if err != nil {
			s.logger.Error("failed to take purge lock", zap.Error(err))
			s.metrics.IncPurgeRun("failed")
			return false
		}
		if !ok {
			s.logger.Debug("purge lock held elsewhere, skipping")
			s.metrics.IncPurgeRun("skipped")
			return false
		}
		defer release()
	}

	if _, err := s.job.PurgeExpired(ctx); err != nil {
		s.logger.Error("scheduled retention purge failed", zap.Error(err))
		s.metrics.IncPurgeRun("failed")
		return true
	}
	s.metrics.IncPurgeRun("ok")
	return true
}
