package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/cache"
)

func (s *Scheduler) runCleanup(ctx context.Context, tenant string, force bool) {
	ctx = logger.WithContext(ctx, logger.NewLogContext(tenant))
	start := time.Now()

	result, err := s.cache.Purge(ctx, tenant, force)
	if err != nil {
		s.logJobError(ctx, "cleanup", err)
		return
	}
	logger.InfoCtx(ctx, "Cache cleanup finished",
		logger.KeyEvicted, result.Removed,
		"failed", result.Failed,
		logger.KeyForce, force,
		logger.KeyDurationMs, logger.Duration(start))
}

func (s *Scheduler) runVerification(ctx context.Context, tenant string) {
	ctx = logger.WithContext(ctx, logger.NewLogContext(tenant))
	start := time.Now()

	removed, err := s.cache.CheckCoherence(ctx, tenant)
	if err != nil {
		s.logJobError(ctx, "verification", err)
		return
	}
	logger.InfoCtx(ctx, "Cache verification finished",
		logger.KeyEvicted, removed,
		logger.KeyDurationMs, logger.Duration(start))
}

func (s *Scheduler) runSweep(ctx context.Context, tenant string) {
	ctx = logger.WithContext(ctx, logger.NewLogContext(tenant))

	result, err := s.sweeper.Sweep(ctx, tenant)
	if err != nil {
		s.logJobError(ctx, "groups_sweep", err)
		return
	}
	if result.Total() > 0 {
		logger.InfoCtx(ctx, "Request groups settled",
			"done", result.Done, "errored", result.Errored, "expired", result.Expired)
	}
}

// logJobError logs a failed job. A tenant without a cache configuration is
// skipped with a warning.
func (s *Scheduler) logJobError(ctx context.Context, name string, err error) {
	switch {
	case errors.Is(err, cache.ErrCachePathUninitialized):
		logger.WarnCtx(ctx, "Tenant skipped, cache not configured",
			logger.KeyOperation, name, logger.KeyError, err)
	case errors.Is(err, context.Canceled):
		logger.DebugCtx(ctx, "Maintenance job cancelled", logger.KeyOperation, name)
	default:
		logger.ErrorCtx(ctx, "Maintenance job failed", logger.KeyOperation, name, logger.KeyError, err)
	}
}

func (s *Scheduler) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.CleanupInitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.CleanupTick(ctx)
			timer.Reset(s.cfg.CleanupPeriod)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) verificationLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		now := time.Now()
		next := s.verification.Next(now)
		if next.IsZero() {
			logger.Warn("Verification schedule has no future run", "schedule", s.cfg.VerificationSchedule)
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			s.VerificationTick(ctx)
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) groupsLoop(ctx context.Context) {
	defer s.wg.Done()
	if s.sweeper == nil {
		return
	}

	ticker := time.NewTicker(s.cfg.GroupsSweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.GroupsTick(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
