package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
)

// tenantQueue is the FIFO of one tenant. drainMu serializes drains so the
// tenant goroutine and an explicit Drain never dispatch concurrently.
type tenantQueue[T any] struct {
	tenant string

	mu    sync.Mutex
	items []T

	drainMu sync.Mutex
	flushCh chan struct{}
}

func newTenantQueue[T any](tenant string) *tenantQueue[T] {
	return &tenantQueue[T]{
		tenant:  tenant,
		flushCh: make(chan struct{}, 1),
	}
}

// push appends msg and signals a flush once the queue holds a full batch.
func (q *tenantQueue[T]) push(msg T, bulkSize int) int {
	q.mu.Lock()
	q.items = append(q.items, msg)
	n := len(q.items)
	q.mu.Unlock()

	if n >= bulkSize {
		select {
		case q.flushCh <- struct{}{}:
		default:
		}
	}
	return n
}

// pop removes up to n messages from the head.
func (q *tenantQueue[T]) pop(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]T, n)
	copy(batch, q.items[:n])

	var zero T
	for i := 0; i < n; i++ {
		q.items[i] = zero
	}
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return batch
}

func (q *tenantQueue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain dispatches batches of BulkSize while the previous batch was full.
func (w *Worker[T]) drain(ctx context.Context, q *tenantQueue[T]) int {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	calls := 0
	for {
		batch := q.pop(w.opts.BulkSize)
		if len(batch) == 0 {
			break
		}
		full := len(batch) == w.opts.BulkSize

		batch = w.dropCancelled(ctx, q.tenant, batch)
		if len(batch) > 0 {
			w.dispatch(ctx, q.tenant, batch)
			calls++
		}
		if !full {
			break
		}
	}

	w.setQueueDepth(q.tenant, q.len())
	return calls
}

// dropCancelled filters out messages whose request group was cancelled.
func (w *Worker[T]) dropCancelled(ctx context.Context, tenant string, batch []T) []T {
	if w.opts.Tracker == nil {
		return batch
	}

	cancelled := make(map[string]bool)
	kept := batch[:0]
	for _, msg := range batch {
		groupID := w.opts.GroupID(msg)
		if groupID == "" {
			kept = append(kept, msg)
			continue
		}

		isCancelled, seen := cancelled[groupID]
		if !seen {
			var err error
			isCancelled, err = w.opts.Tracker.IsCancelled(ctx, tenant, groupID)
			if err != nil {
				logger.WarnCtx(ctx, "Failed to check group cancellation",
					logger.KeyTenant, tenant, logger.KeyGroupID, groupID, logger.KeyError, err)
			}
			cancelled[groupID] = isCancelled
		}
		if isCancelled {
			logger.InfoCtx(ctx, "Dropping message of cancelled group",
				logger.KeyTenant, tenant, logger.KeyKind, w.opts.Kind, logger.KeyGroupID, groupID)
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}

// dispatch hands one batch to the dispatch function. Errors and panics are
// logged; the batch is consumed either way.
func (w *Worker[T]) dispatch(ctx context.Context, tenant string, batch []T) {
	ctx, span := telemetry.StartBatchSpan(ctx, w.opts.Kind, tenant, len(batch))
	defer span.End()
	lc := logger.NewLogContext(tenant).WithKind(w.opts.Kind).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	start := time.Now()
	err := w.safeDispatch(ctx, tenant, batch)
	w.observeDispatch(len(batch), time.Since(start), err)

	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.ErrorCtx(ctx, "Batch dispatch failed",
			logger.KeyBatchSize, len(batch),
			logger.KeyError, err)
		return
	}
	logger.DebugCtx(ctx, "Batch dispatched",
		logger.KeyBatchSize, len(batch),
		logger.KeyDurationMs, logger.Duration(start))
}

func (w *Worker[T]) safeDispatch(ctx context.Context, tenant string, batch []T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	return w.opts.Dispatch(ctx, tenant, batch)
}
