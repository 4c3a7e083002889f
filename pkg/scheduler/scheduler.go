// Package scheduler runs the periodic cache maintenance of every tenant:
// expired entry cleanup, index/disk coherence verification and the request
// group sweep.
//
// Timers only enqueue work. Jobs run on a bounded pool and each tenant has a
// guard per job type, so a tick that finds the previous run of a tenant
// still in progress skips that tenant.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/groups"
)

const (
	DefaultCleanupInitialDelay  = time.Minute
	DefaultCleanupPeriod        = time.Hour
	DefaultVerificationSchedule = "0 0 3 * * * *"
	DefaultGroupsSweepPeriod    = 10 * time.Minute
	DefaultWorkers              = 4
	DefaultQueueSize            = 64
)

var (
	// ErrJobRunning is returned when the same job is already running or
	// queued for the tenant.
	ErrJobRunning = errors.New("maintenance job already running for tenant")

	// ErrQueueFull is returned when the job pool cannot accept more work.
	ErrQueueFull = errors.New("maintenance queue is full")
)

// CacheJobs is the cache maintenance surface. *cache.Manager implements it.
type CacheJobs interface {
	Purge(ctx context.Context, tenant string, force bool) (cache.PurgeResult, error)
	CheckCoherence(ctx context.Context, tenant string) (int, error)
	Location(ctx context.Context, tenant string) (cache.LocationInfo, error)
}

// GroupSweeper settles request groups. *groups.Tracker implements it.
type GroupSweeper interface {
	Sweep(ctx context.Context, tenant string) (groups.SweepResult, error)
}

// Tenants lists the tenants maintenance runs for.
type Tenants interface {
	Active() []string
}

// Config configures a Scheduler. Zero values take the defaults.
type Config struct {
	CleanupInitialDelay  time.Duration
	CleanupPeriod        time.Duration
	VerificationSchedule string
	GroupsSweepPeriod    time.Duration
	Workers              int
	QueueSize            int
}

func (c *Config) applyDefaults() {
	if c.CleanupInitialDelay <= 0 {
		c.CleanupInitialDelay = DefaultCleanupInitialDelay
	}
	if c.CleanupPeriod <= 0 {
		c.CleanupPeriod = DefaultCleanupPeriod
	}
	if c.VerificationSchedule == "" {
		c.VerificationSchedule = DefaultVerificationSchedule
	}
	if c.GroupsSweepPeriod <= 0 {
		c.GroupsSweepPeriod = DefaultGroupsSweepPeriod
	}
}

// JobState reports the maintenance jobs running for a tenant.
type JobState struct {
	CleanupRunning      bool `json:"cleanup_running"`
	VerificationRunning bool `json:"verification_running"`
	SweepRunning        bool `json:"sweep_running"`
}

// Descriptor is the cache location of a tenant as seen by operators.
type Descriptor struct {
	cache.LocationInfo
	CleanupRunning      bool `json:"cleanup_running"`
	VerificationRunning bool `json:"verification_running"`
}

// tenantJobs holds the guards of one tenant.
type tenantJobs struct {
	cleanup      atomic.Bool
	verification atomic.Bool
	sweep        atomic.Bool
}

// Scheduler triggers maintenance jobs for every active tenant.
type Scheduler struct {
	cache        CacheJobs
	sweeper      GroupSweeper
	tenants      Tenants
	cfg          Config
	verification *cronexpr.Expression
	pool         *jobPool

	mu   sync.Mutex
	jobs map[string]*tenantJobs

	lifecycle sync.Mutex
	running   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New creates a scheduler. sweeper may be nil to disable the group sweep.
func New(cacheJobs CacheJobs, sweeper GroupSweeper, tenants Tenants, cfg Config) (*Scheduler, error) {
	if cacheJobs == nil {
		return nil, errors.New("scheduler: cache is required")
	}
	if tenants == nil {
		return nil, errors.New("scheduler: tenants are required")
	}
	cfg.applyDefaults()

	expr, err := cronexpr.Parse(cfg.VerificationSchedule)
	if err != nil {
		return nil, fmt.Errorf("invalid verification schedule %q: %w", cfg.VerificationSchedule, err)
	}

	return &Scheduler{
		cache:        cacheJobs,
		sweeper:      sweeper,
		tenants:      tenants,
		cfg:          cfg,
		verification: expr,
		pool:         newJobPool(cfg.Workers, cfg.QueueSize),
		jobs:         make(map[string]*tenantJobs),
		stopCh:       make(chan struct{}),
	}, nil
}

// Start launches the job pool and the three timers.
func (s *Scheduler) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.running {
		return
	}
	s.running = true

	s.pool.start(ctx)

	s.wg.Add(3)
	go s.cleanupLoop(ctx)
	go s.verificationLoop(ctx)
	go s.groupsLoop(ctx)

	logger.Info("Cache scheduler started",
		"cleanup_initial_delay", s.cfg.CleanupInitialDelay,
		"cleanup_period", s.cfg.CleanupPeriod,
		"verification_schedule", s.cfg.VerificationSchedule,
		"groups_sweep_period", s.cfg.GroupsSweepPeriod)
}

// Stop stops the timers and waits at most timeout for running jobs.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if !s.running {
		s.pool.stop(timeout)
		return
	}
	s.running = false

	close(s.stopCh)
	s.wg.Wait()
	s.pool.stop(timeout)
	logger.Info("Cache scheduler stopped")
}

// CleanupTick schedules a non-forced purge for every tenant whose previous
// cleanup has finished. It returns the number of jobs scheduled.
func (s *Scheduler) CleanupTick(ctx context.Context) int {
	return s.tick(ctx, "cleanup", cleanupGuard, func(ctx context.Context, tenant string) {
		s.runCleanup(ctx, tenant, false)
	})
}

// VerificationTick schedules a coherence check for every tenant whose
// previous verification has finished.
func (s *Scheduler) VerificationTick(ctx context.Context) int {
	return s.tick(ctx, "verification", verificationGuard, s.runVerification)
}

// GroupsTick schedules a request group sweep for every tenant.
func (s *Scheduler) GroupsTick(ctx context.Context) int {
	if s.sweeper == nil {
		return 0
	}
	return s.tick(ctx, "groups_sweep", sweepGuard, s.runSweep)
}

// TriggerCleanup queues an on-demand purge of tenant. It shares the guard of
// the scheduled cleanup, so it fails with ErrJobRunning while one runs.
// The purge itself runs on the job pool, detached from ctx.
func (s *Scheduler) TriggerCleanup(ctx context.Context, tenant string, force bool) error {
	return s.schedule(ctx, tenant, "cleanup", cleanupGuard, func(ctx context.Context, tenant string) {
		s.runCleanup(ctx, tenant, force)
	})
}

// TriggerVerification queues an on-demand coherence check of tenant.
func (s *Scheduler) TriggerVerification(ctx context.Context, tenant string) error {
	return s.schedule(ctx, tenant, "verification", verificationGuard, s.runVerification)
}

func cleanupGuard(j *tenantJobs) *atomic.Bool      { return &j.cleanup }
func verificationGuard(j *tenantJobs) *atomic.Bool { return &j.verification }
func sweepGuard(j *tenantJobs) *atomic.Bool        { return &j.sweep }

func (s *Scheduler) tick(ctx context.Context, name string, guard func(*tenantJobs) *atomic.Bool, run func(context.Context, string)) int {
	scheduled := 0
	for _, tenant := range s.tenants.Active() {
		if ctx.Err() != nil {
			break
		}
		switch err := s.schedule(ctx, tenant, name, guard, run); {
		case err == nil:
			scheduled++
		case errors.Is(err, ErrJobRunning):
			logger.DebugCtx(ctx, "Skipping tenant, previous job still running",
				logger.KeyTenant, tenant, logger.KeyOperation, name)
		default:
			logger.WarnCtx(ctx, "Scheduler queue full, job not scheduled",
				logger.KeyTenant, tenant, logger.KeyOperation, name)
		}
	}
	return scheduled
}

// schedule takes the tenant guard and enqueues the job. The guard is
// released when the job finishes or cannot be queued.
func (s *Scheduler) schedule(ctx context.Context, tenant, name string, guard func(*tenantJobs) *atomic.Bool, run func(context.Context, string)) error {
	g := guard(s.tenantJobs(tenant))
	if !g.CompareAndSwap(false, true) {
		return ErrJobRunning
	}

	ok := s.pool.enqueue(job{
		tenant: tenant,
		name:   name,
		run:    func(ctx context.Context) { run(ctx, tenant) },
		done:   func() { g.Store(false) },
	})
	if !ok {
		g.Store(false)
		return ErrQueueFull
	}
	return nil
}

// State returns the jobs currently running for tenant.
func (s *Scheduler) State(tenant string) JobState {
	s.mu.Lock()
	j, ok := s.jobs[tenant]
	s.mu.Unlock()
	if !ok {
		return JobState{}
	}
	return JobState{
		CleanupRunning:      j.cleanup.Load(),
		VerificationRunning: j.verification.Load(),
		SweepRunning:        j.sweep.Load(),
	}
}

// Describe merges the cache location of tenant with its job state.
func (s *Scheduler) Describe(ctx context.Context, tenant string) (Descriptor, error) {
	info, err := s.cache.Location(ctx, tenant)
	if err != nil {
		return Descriptor{}, err
	}
	state := s.State(tenant)
	return Descriptor{
		LocationInfo:        info,
		CleanupRunning:      state.CleanupRunning,
		VerificationRunning: state.VerificationRunning,
	}, nil
}

// NextVerification returns the next verification time after from.
func (s *Scheduler) NextVerification(from time.Time) time.Time {
	return s.verification.Next(from)
}

func (s *Scheduler) tenantJobs(tenant string) *tenantJobs {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[tenant]
	if !ok {
		j = &tenantJobs{}
		s.jobs[tenant] = j
	}
	return j
}
