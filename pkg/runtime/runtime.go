// Package runtime assembles the nearstore components from a configuration
// and runs them until shutdown.
//
// New opens every resource (database, cache index, storages) and builds the
// services on top of them. Serve starts the background workers and the HTTP
// servers, blocks until the context is cancelled or a server fails, then
// stops everything in reverse order.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/api"
	"github.com/marmos91/nearstore/pkg/api/handlers"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/config"
	"github.com/marmos91/nearstore/pkg/files"
	"github.com/marmos91/nearstore/pkg/groups"
	"github.com/marmos91/nearstore/pkg/ingest"
	"github.com/marmos91/nearstore/pkg/metrics"
	"github.com/marmos91/nearstore/pkg/metrics/prometheus"
	"github.com/marmos91/nearstore/pkg/scheduler"
	"github.com/marmos91/nearstore/pkg/store"
	"github.com/marmos91/nearstore/pkg/tenant"
)

// ErrAlreadyServed is returned by a second call to Serve.
var ErrAlreadyServed = errors.New("runtime already served")

// Options overrides parts of the runtime assembly.
type Options struct {
	// Fs is the filesystem of the cache and of fs storages.
	// Default: the OS filesystem.
	Fs afero.Fs
}

// Runtime owns every long-lived component of a nearstore instance.
type Runtime struct {
	cfg *config.Config
	fs  afero.Fs

	db         *store.GORMStore
	index      cache.Index
	cache      *cache.Manager
	tenants    *tenant.Registry
	storages   *backend.Registry
	tracker    *groups.Tracker
	files      *files.Service
	dispatcher *ingest.Dispatcher
	scheduler  *scheduler.Scheduler

	apiServer     *api.Server
	metricsServer *http.Server

	serveOnce sync.Once
	closeOnce sync.Once
}

// New opens the resources named by cfg and builds the services. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Runtime, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("runtime: config is required")
	}
	r := &Runtime{cfg: cfg, fs: opts.Fs}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	// Metrics must be initialised before any collector is created.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		r.metricsServer = metrics.NewServer(cfg.Metrics.Port)
	}

	if r.tenants, err = cfg.BuildTenants(); err != nil {
		return nil, err
	}

	if r.db, err = store.New(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if r.tracker, err = groups.New(r.db, cfg.Groups.TrackerOptions()); err != nil {
		return nil, fmt.Errorf("failed to create group tracker: %w", err)
	}

	if r.index, err = config.OpenCacheIndex(ctx, cfg.Cache.Index); err != nil {
		return nil, err
	}

	r.cache = cache.NewManager(r.index, cfg.Cache.ManagerConfig(r.tenants, r.fs, prometheus.NewCacheMetrics()))
	for _, name := range r.tenants.Active() {
		if err = r.cache.InitTenant(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to initialise cache of tenant %q: %w", name, err)
		}
	}

	if r.storages, err = config.BuildStorages(ctx, cfg.Storages, r.fs, prometheus.NewBackendMetrics()); err != nil {
		return nil, err
	}

	r.files, err = files.New(r.storages, r.db, r.db, r.tracker, r.cache, cfg.Availability.ServiceOptions(r.fs))
	if err != nil {
		return nil, fmt.Errorf("failed to create files service: %w", err)
	}

	kinds, err := cfg.BatchingKinds()
	if err != nil {
		return nil, err
	}
	r.dispatcher, err = ingest.New(r.files, ingest.Options{
		Kinds:   kinds,
		Tracker: r.tracker,
		Groups:  r.tracker,
		Metrics: prometheus.NewBatchMetrics(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	if r.scheduler, err = scheduler.New(r.cache, r.tracker, r.tenants, cfg.SchedulerConfig()); err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	if cfg.API.IsEnabled() {
		r.apiServer = api.NewServer(cfg.API, r.Dependencies())
	}

	logger.Info("Runtime assembled",
		"tenants", len(r.tenants.Active()),
		"storages", len(r.storages.Names()),
		"api", r.apiServer != nil,
		"metrics", r.metricsServer != nil)
	return r, nil
}

// Dependencies returns the components the HTTP API is routed to.
func (r *Runtime) Dependencies() api.Dependencies {
	return api.Dependencies{
		Tenants:    r.tenants,
		Dispatcher: r.dispatcher,
		Groups:     r.tracker,
		Cache:      r.scheduler,
		Describer:  r.scheduler,
		Checks: map[string]handlers.Healthchecker{
			"database": r.db,
			"cache":    r.cache,
			"storages": r.storages,
		},
	}
}

// Dispatcher returns the request dispatcher.
func (r *Runtime) Dispatcher() *ingest.Dispatcher { return r.dispatcher }

// Files returns the file service.
func (r *Runtime) Files() *files.Service { return r.files }

// Cache returns the cache manager.
func (r *Runtime) Cache() *cache.Manager { return r.cache }

// Groups returns the request group tracker.
func (r *Runtime) Groups() *groups.Tracker { return r.tracker }

// Scheduler returns the maintenance scheduler.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.scheduler }

// Serve starts the workers and servers and blocks until ctx is cancelled
// or a server fails. It can only be called once.
func (r *Runtime) Serve(ctx context.Context) error {
	err := ErrAlreadyServed
	r.serveOnce.Do(func() {
		err = r.serve(ctx)
	})
	return err
}

func (r *Runtime) serve(ctx context.Context) error {
	logger.Info("Starting nearstore runtime")

	// Detached from ctx so queued batches are still dispatched while
	// shutting down.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	if err := r.dispatcher.Start(workCtx); err != nil {
		r.shutdown()
		return err
	}
	r.scheduler.Start(workCtx)

	errCh := make(chan error, 2)
	if r.apiServer != nil {
		go func() {
			if err := r.apiServer.Start(ctx); err != nil {
				logger.Error("API server error", logger.KeyError, err)
				errCh <- fmt.Errorf("API server error: %w", err)
			}
		}()
	}
	if r.metricsServer != nil {
		go func() {
			logger.Info("Metrics server listening", "addr", r.metricsServer.Addr)
			if err := r.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", logger.KeyError, err)
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received", logger.KeyReason, ctx.Err())
		shutdownErr = ctx.Err()
	case err := <-errCh:
		logger.Error("Server failed, initiating shutdown", logger.KeyError, err)
		shutdownErr = err
	}

	r.shutdown()
	logger.Info("nearstore runtime stopped")
	return shutdownErr
}

// shutdown stops intake first, then background work, then closes the
// resources.
func (r *Runtime) shutdown() {
	timeout := r.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	if r.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := r.apiServer.Stop(ctx); err != nil {
			logger.Warn("Error stopping API server", logger.KeyError, err)
		}
		cancel()
	}

	logger.Info("Stopping scheduler")
	r.scheduler.Stop(timeout)

	logger.Info("Draining batch workers")
	r.dispatcher.Stop(timeout)

	if r.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("Error stopping metrics server", logger.KeyError, err)
		}
		cancel()
	}

	r.Close()
}

// Close releases the cache index and the database. Serve calls it on
// exit; callers that never serve must call it themselves.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		if r.index != nil {
			if err := r.index.Close(); err != nil {
				logger.Warn("Error closing cache index", logger.KeyError, err)
			}
		}
		if r.db != nil {
			if err := r.db.Close(); err != nil {
				logger.Warn("Error closing database", logger.KeyError, err)
			}
		}
	})
}
