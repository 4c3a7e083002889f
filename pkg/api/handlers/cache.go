package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/scheduler"
)

// CacheMaintainer queues cache maintenance on demand. *scheduler.Scheduler
// implements it; jobs share the guards of the scheduled runs.
type CacheMaintainer interface {
	TriggerCleanup(ctx context.Context, tenant string, force bool) error
	TriggerVerification(ctx context.Context, tenant string) error
}

// CacheDescriber describes a tenant cache location. *scheduler.Scheduler
// implements it.
type CacheDescriber interface {
	Describe(ctx context.Context, tenant string) (scheduler.Descriptor, error)
}

// CacheHandler exposes the cache of a tenant.
type CacheHandler struct {
	cache     CacheMaintainer
	describer CacheDescriber
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(c CacheMaintainer, d CacheDescriber) *CacheHandler {
	return &CacheHandler{cache: c, describer: d}
}

// MaintenanceResponse is the body of an accepted maintenance request. The
// job runs in the background; its progress shows in the cache descriptor.
type MaintenanceResponse struct {
	Tenant    string `json:"tenant"`
	Operation string `json:"operation"`
	Force     bool   `json:"force,omitempty"`
}

// Describe handles GET /api/v1/tenants/{tenant}/cache.
func (h *CacheHandler) Describe(w http.ResponseWriter, r *http.Request) {
	name, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	desc, err := h.describer.Describe(r.Context(), name)
	if err != nil {
		InternalServerError(w, "Failed to describe cache")
		return
	}
	OK(w, desc)
}

// Purge handles POST /api/v1/tenants/{tenant}/cache/purge?force=.
func (h *CacheHandler) Purge(w http.ResponseWriter, r *http.Request) {
	name, ok := tenantOrError(w, r)
	if !ok {
		return
	}
	force, ok := queryBool(w, r, "force")
	if !ok {
		return
	}

	if err := h.cache.TriggerCleanup(r.Context(), name, force); err != nil {
		h.maintenanceError(w, r, "purge", err)
		return
	}
	Accepted(w, MaintenanceResponse{Tenant: name, Operation: "purge", Force: force})
}

// Verify handles POST /api/v1/tenants/{tenant}/cache/verify.
func (h *CacheHandler) Verify(w http.ResponseWriter, r *http.Request) {
	name, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	if err := h.cache.TriggerVerification(r.Context(), name); err != nil {
		h.maintenanceError(w, r, "verify", err)
		return
	}
	Accepted(w, MaintenanceResponse{Tenant: name, Operation: "verify"})
}

func (h *CacheHandler) maintenanceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, scheduler.ErrJobRunning):
		Conflict(w, "Cache "+op+" is already running")
	case errors.Is(err, scheduler.ErrQueueFull):
		ServiceUnavailable(w, "Maintenance queue is full, retry later")
	default:
		logger.ErrorCtx(r.Context(), "Cache maintenance failed", logger.KeyOperation, op, logger.KeyError, err)
		InternalServerError(w, "Cache "+op+" failed")
	}
}
