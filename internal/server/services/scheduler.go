package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/locker"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
)

// Purger runs one purge pass.
type Purger interface {
	Purge(ctx context.Context, opts models.PurgeOptions) (*models.PurgeCounts, error)
}

// PurgeScheduler triggers purge passes on a fixed interval. A tick that finds
// the lease held elsewhere is skipped; a failed pass is logged and retried on
// the next tick.
type PurgeScheduler struct {
	purger   Purger
	locker   locker.Locker
	interval time.Duration
	opts     models.PurgeOptions
	logger   logging.Logger
}

func NewPurgeScheduler(purger Purger, l locker.Locker, interval time.Duration, opts models.PurgeOptions, logger logging.Logger) *PurgeScheduler {
	return &PurgeScheduler{purger: purger, locker: l, interval: interval, opts: opts, logger: logger}
}

// Run blocks until ctx is done. It never returns a purge failure.
func (s *PurgeScheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info(ctx, "purge scheduler disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "purge scheduler started", "interval", s.interval.String(),
		"retention_days", s.opts.RetentionDays)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "purge scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs a single guarded purge pass and reports whether it ran.
func (s *PurgeScheduler) Tick(ctx context.Context) bool {
	release, ok, err := s.locker.TryAcquire(ctx, common.PurgeLockKey, s.interval)
	if err != nil {
		s.logger.Error(ctx, "purge lease failed", "error", err)
		return false
	}
	if !ok {
		s.logger.Debug(ctx, "purge skipped, lease held elsewhere")
		return false
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn(ctx, "purge lease release failed", "error", err)
		}
	}()

	if _, err := s.purger.Purge(ctx, s.opts); err != nil {
		s.logger.Error(ctx, "purge failed, retrying next tick", "error", err)
		return false
	}
	return true
}
