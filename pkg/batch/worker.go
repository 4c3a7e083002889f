// Package batch implements the admission and batching stage of request
// ingestion.
//
// A Worker accepts messages of one kind, decides whether each request group
// is admitted, buffers admitted messages in a per-tenant queue and hands
// them to a dispatch function in bounded batches. Each tenant queue is
// drained by its own goroutine, either on a timer or when the queue reaches
// the bulk size.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
)

// ErrWorkerClosed is returned once Stop has been called.
var ErrWorkerClosed = errors.New("batch worker closed")

const (
	DefaultBulkSize      = 100
	DefaultDrainInterval = time.Second
)

// Decision is the admission outcome of one message.
type Decision struct {
	Granted bool   `json:"granted"`
	Reason  string `json:"reason,omitempty"`
}

func grant() Decision { return Decision{Granted: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Tracker records admission decisions against request groups.
type Tracker interface {
	Grant(ctx context.Context, tenant, groupID, kind string, count int, expiresAt *time.Time) error
	Deny(ctx context.Context, tenant, groupID, kind, reason string) error
	IsCancelled(ctx context.Context, tenant, groupID string) (bool, error)
}

// Options configures a Worker.
type Options[T any] struct {
	// Kind names the worker in logs and metrics.
	Kind string

	// MaxItemsPerGroup is the admission limit. Zero disables the check.
	MaxItemsPerGroup int

	// BulkSize is the maximum number of messages per dispatch call.
	BulkSize int

	// DrainInterval is how often each tenant queue is drained.
	DrainInterval time.Duration

	// GroupID extracts the request group. An empty id skips group tracking.
	GroupID func(T) string

	// ItemCount returns the number of files carried by a message.
	ItemCount func(T) int

	// GrantCount returns the number of items recorded on grant.
	// Defaults to ItemCount.
	GrantCount func(T) int

	// ExpiresAt returns the optional expiry recorded on the group.
	ExpiresAt func(T) *time.Time

	// Validate returns a non-nil error to deny a message with that reason.
	Validate func(T) error

	// Admit runs after Validate and may consult stores. A non-nil error
	// denies the message with that reason.
	Admit func(ctx context.Context, tenant string, msg T) error

	// Dispatch processes one batch of a tenant.
	Dispatch func(ctx context.Context, tenant string, items []T) error

	// Tracker is optional.
	Tracker Tracker

	// Metrics is optional.
	Metrics Metrics
}

// Worker batches messages of one kind per tenant.
type Worker[T any] struct {
	opts Options[T]

	// admitMu is held shared by admissions and exclusively by Stop, so no
	// message is queued after the final drain has started.
	admitMu sync.RWMutex

	mu      sync.Mutex
	queues  map[string]*tenantQueue[T]
	baseCtx context.Context
	started bool
	closed  bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a worker. Dispatch is required.
func NewWorker[T any](opts Options[T]) (*Worker[T], error) {
	if opts.Dispatch == nil {
		return nil, fmt.Errorf("batch worker %q: dispatch function is required", opts.Kind)
	}
	if opts.ItemCount == nil {
		opts.ItemCount = func(T) int { return 1 }
	}
	if opts.GrantCount == nil {
		opts.GrantCount = opts.ItemCount
	}
	if opts.GroupID == nil {
		opts.GroupID = func(T) string { return "" }
	}
	if opts.BulkSize <= 0 {
		opts.BulkSize = DefaultBulkSize
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = DefaultDrainInterval
	}

	return &Worker[T]{
		opts:    opts,
		queues:  make(map[string]*tenantQueue[T]),
		baseCtx: context.Background(),
		stopCh:  make(chan struct{}),
	}, nil
}

// Kind returns the worker kind.
func (w *Worker[T]) Kind() string {
	return w.opts.Kind
}

// OnMessage decides admission for msg and, when granted, enqueues it on the
// tenant queue. It never waits for dispatch.
func (w *Worker[T]) OnMessage(ctx context.Context, tenant string, msg T) Decision {
	groupID := w.opts.GroupID(msg)

	lc := logger.NewLogContext(tenant).WithKind(w.opts.Kind).WithGroup(groupID)
	ctx = logger.WithContext(ctx, lc)

	w.admitMu.RLock()
	defer w.admitMu.RUnlock()

	if w.isClosed() {
		return deny(ErrWorkerClosed.Error())
	}
	if tenant == "" {
		w.recordAdmission(tenant, false)
		logger.WarnCtx(ctx, "Request denied", logger.KeyReason, "missing tenant")
		return deny("tenant is required")
	}

	if w.opts.Validate != nil {
		if err := w.opts.Validate(msg); err != nil {
			return w.deny(ctx, tenant, groupID, err.Error())
		}
	}

	if w.opts.Admit != nil {
		if err := w.opts.Admit(ctx, tenant, msg); err != nil {
			return w.deny(ctx, tenant, groupID, err.Error())
		}
	}

	count := w.opts.ItemCount(msg)
	if max := w.opts.MaxItemsPerGroup; max > 0 && count > max {
		return w.deny(ctx, tenant, groupID,
			fmt.Sprintf("request group exceeds the limit of %d files per group (got %d)", max, count))
	}

	if w.opts.Tracker != nil && groupID != "" {
		var expiresAt *time.Time
		if w.opts.ExpiresAt != nil {
			expiresAt = w.opts.ExpiresAt(msg)
		}
		if err := w.opts.Tracker.Grant(ctx, tenant, groupID, w.opts.Kind, w.opts.GrantCount(msg), expiresAt); err != nil {
			logger.ErrorCtx(ctx, "Failed to record grant", logger.KeyError, err)
		}
	}

	depth := w.queue(tenant).push(msg, w.opts.BulkSize)
	w.recordAdmission(tenant, true)
	w.setQueueDepth(tenant, depth)

	logger.DebugCtx(ctx, "Request granted", logger.KeyItems, count, logger.KeyQueueDepth, depth)
	return grant()
}

func (w *Worker[T]) deny(ctx context.Context, tenant, groupID, reason string) Decision {
	if w.opts.Tracker != nil && groupID != "" {
		if err := w.opts.Tracker.Deny(ctx, tenant, groupID, w.opts.Kind, reason); err != nil {
			logger.ErrorCtx(ctx, "Failed to record denial", logger.KeyError, err)
		}
	}
	w.recordAdmission(tenant, false)
	logger.WarnCtx(ctx, "Request denied", logger.KeyReason, reason)
	return deny(reason)
}

// Start launches one drain goroutine per tenant queue, including queues
// created later. ctx is the parent of every dispatch context.
func (w *Worker[T]) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWorkerClosed
	}
	if w.started {
		return nil
	}
	w.started = true
	w.baseCtx = ctx

	for _, q := range w.queues {
		w.spawn(q)
	}
	logger.Info("Batch worker started",
		logger.KeyKind, w.opts.Kind,
		"bulk_size", w.opts.BulkSize,
		"drain_interval", w.opts.DrainInterval)
	return nil
}

// Stop stops the tenant goroutines and drains what is left. It waits at
// most timeout for in-flight dispatches.
func (w *Worker[T]) Stop(timeout time.Duration) {
	w.admitMu.Lock()
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.admitMu.Unlock()
		return
	}
	w.closed = true
	close(w.stopCh)
	base := w.baseCtx
	w.mu.Unlock()
	w.admitMu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("Batch worker stop timed out, queued requests were not dispatched",
			logger.KeyKind, w.opts.Kind, logger.KeyQueueDepth, w.pendingTotal())
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), timeout)
	defer cancel()
	calls := w.Drain(ctx)
	logger.Info("Batch worker stopped", logger.KeyKind, w.opts.Kind, "final_dispatches", calls)
}

// Drain synchronously drains every tenant queue and returns the number of
// dispatch calls made.
func (w *Worker[T]) Drain(ctx context.Context) int {
	w.mu.Lock()
	queues := make([]*tenantQueue[T], 0, len(w.queues))
	for _, q := range w.queues {
		queues = append(queues, q)
	}
	w.mu.Unlock()

	calls := 0
	for _, q := range queues {
		calls += w.drain(ctx, q)
	}
	return calls
}

// Pending returns the number of queued messages of a tenant.
func (w *Worker[T]) Pending(tenant string) int {
	w.mu.Lock()
	q, ok := w.queues[tenant]
	w.mu.Unlock()
	if !ok {
		return 0
	}
	return q.len()
}

func (w *Worker[T]) pendingTotal() int {
	w.mu.Lock()
	queues := make([]*tenantQueue[T], 0, len(w.queues))
	for _, q := range w.queues {
		queues = append(queues, q)
	}
	w.mu.Unlock()

	n := 0
	for _, q := range queues {
		n += q.len()
	}
	return n
}

func (w *Worker[T]) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// queue returns the tenant queue, creating it (and its goroutine once
// started) on first use.
func (w *Worker[T]) queue(tenant string) *tenantQueue[T] {
	w.mu.Lock()
	defer w.mu.Unlock()

	q, ok := w.queues[tenant]
	if !ok {
		q = newTenantQueue[T](tenant)
		w.queues[tenant] = q
		if w.started && !w.closed {
			w.spawn(q)
		}
	}
	return q
}

// spawn starts the drain loop of q. Caller must hold w.mu.
func (w *Worker[T]) spawn(q *tenantQueue[T]) {
	w.wg.Add(1)
	go w.run(w.baseCtx, q)
}

func (w *Worker[T]) run(ctx context.Context, q *tenantQueue[T]) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.opts.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.drain(ctx, q)
		case <-q.flushCh:
			w.drain(ctx, q)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
