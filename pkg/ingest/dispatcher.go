// Package ingest wires one batch worker per request kind and routes raw
// transport payloads to them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/batch"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// Handlers are the domain operations batches are dispatched to.
// *files.Service implements it.
type Handlers interface {
	Store(ctx context.Context, tenant string, reqs []requests.StoreRequest) error
	Delete(ctx context.Context, tenant string, reqs []requests.DeleteRequest) error
	Reference(ctx context.Context, tenant string, reqs []requests.ReferenceRequest) error
	Availability(ctx context.Context, tenant string, reqs []requests.AvailabilityRequest) error
	Copy(ctx context.Context, tenant string, reqs []requests.CopyRequest) error
	Retry(ctx context.Context, tenant string, reqs []requests.RetryRequest) error
	CancelGroups(ctx context.Context, tenant string, reqs []requests.CancelGroupsRequest) error
}

// KindConfig tunes the worker of one kind. Zero values take the defaults.
type KindConfig struct {
	BulkSize         int           `mapstructure:"bulk_size" yaml:"bulk_size" validate:"omitempty,gte=1,lte=10000"`
	MaxItemsPerGroup int           `mapstructure:"max_items_per_group" yaml:"max_items_per_group" validate:"omitempty,gte=1"`
	DrainInterval    time.Duration `mapstructure:"drain_interval" yaml:"drain_interval"`
}

// DefaultBulkSizes are the batch sizes used when none is configured.
var DefaultBulkSizes = map[requests.Kind]int{
	requests.KindStore:        100,
	requests.KindDelete:       100,
	requests.KindReference:    100,
	requests.KindAvailability: 100,
	requests.KindCopy:         100,
	requests.KindRetry:        10,
	requests.KindCancel:       10,
}

// GroupLookup resolves recorded request groups. *groups.Tracker implements it.
type GroupLookup interface {
	Get(ctx context.Context, tenant, groupID string) (*models.RequestGroup, error)
}

// Options configures a Dispatcher.
type Options struct {
	Kinds   map[requests.Kind]KindConfig
	Tracker batch.Tracker
	Metrics batch.Metrics

	// Groups, when set, makes retries of unknown groups a denial.
	Groups GroupLookup
}

// kindWorker is the type-erased view of a batch.Worker[T].
type kindWorker interface {
	submit(ctx context.Context, tenant string, payload []byte) (batch.Decision, error)
	Start(ctx context.Context) error
	Stop(timeout time.Duration)
	Drain(ctx context.Context) int
	Pending(tenant string) int
}

type typedWorker[T any] struct {
	*batch.Worker[T]
}

func (w typedWorker[T]) submit(ctx context.Context, tenant string, payload []byte) (batch.Decision, error) {
	msg, err := requests.Decode[T](payload)
	if err != nil {
		return batch.Decision{}, err
	}
	return w.OnMessage(ctx, tenant, msg), nil
}

// Dispatcher owns the seven kind workers.
type Dispatcher struct {
	workers map[requests.Kind]kindWorker
}

// New creates a dispatcher over h.
func New(h Handlers, opts Options) (*Dispatcher, error) {
	if h == nil {
		return nil, fmt.Errorf("ingest: handlers are required")
	}
	d := &Dispatcher{workers: make(map[requests.Kind]kindWorker, len(requests.Kinds))}

	var err error
	add := func(kind requests.Kind, w kindWorker, werr error) {
		if err == nil && werr != nil {
			err = fmt.Errorf("%s worker: %w", kind, werr)
		}
		d.workers[kind] = w
	}

	add(newWorker(requests.KindStore, opts, h.Store, nil, nil))
	add(newWorker(requests.KindDelete, opts, h.Delete, nil, nil))
	add(newWorker(requests.KindReference, opts, h.Reference, nil, nil))
	add(newWorker(requests.KindAvailability, opts, h.Availability, nil,
		func(o *batch.Options[requests.AvailabilityRequest]) {
			o.ExpiresAt = func(r requests.AvailabilityRequest) *time.Time { return r.Expiration() }
		}))
	add(newWorker(requests.KindCopy, opts, h.Copy, nil, nil))
	add(newWorker(requests.KindRetry, opts, h.Retry,
		func(r requests.RetryRequest) error { return r.CheckRetry() },
		func(o *batch.Options[requests.RetryRequest]) {
			// A retry replays files already counted on the group.
			o.GrantCount = func(requests.RetryRequest) int { return 0 }
			if opts.Groups != nil {
				o.Admit = retryGroupExists(opts.Groups)
			}
		}))
	add(newWorker(requests.KindCancel, opts, h.CancelGroups, nil, nil))

	if err != nil {
		return nil, err
	}
	return d, nil
}

// retryGroupExists denies group retries naming a group that was never
// admitted, so no empty group is created for them.
func retryGroupExists(groups GroupLookup) func(context.Context, string, requests.RetryRequest) error {
	return func(ctx context.Context, tenant string, r requests.RetryRequest) error {
		if r.GroupID == "" {
			return nil
		}
		_, err := groups.Get(ctx, tenant, r.GroupID)
		if errors.Is(err, models.ErrGroupNotFound) {
			return fmt.Errorf("unknown request group %s", r.GroupID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up request group %s: %w", r.GroupID, err)
		}
		return nil
	}
}

type message interface {
	Group() string
	Items() int
}

func newWorker[T message](kind requests.Kind, opts Options,
	dispatch func(context.Context, string, []T) error,
	extra func(T) error,
	mutate func(*batch.Options[T])) (requests.Kind, kindWorker, error) {

	cfg := opts.Kinds[kind]
	if cfg.BulkSize <= 0 {
		cfg.BulkSize = DefaultBulkSizes[kind]
	}
	if cfg.MaxItemsPerGroup <= 0 {
		cfg.MaxItemsPerGroup = kind.MaxItems()
	}

	bopts := batch.Options[T]{
		Kind:             kind.String(),
		MaxItemsPerGroup: cfg.MaxItemsPerGroup,
		BulkSize:         cfg.BulkSize,
		DrainInterval:    cfg.DrainInterval,
		GroupID:          func(m T) string { return m.Group() },
		ItemCount:        func(m T) int { return m.Items() },
		Validate: func(m T) error {
			if err := requests.Validate(m); err != nil {
				return err
			}
			if extra != nil {
				return extra(m)
			}
			return nil
		},
		Dispatch: dispatch,
		Tracker:  opts.Tracker,
		Metrics:  opts.Metrics,
	}
	if mutate != nil {
		mutate(&bopts)
	}

	w, err := batch.NewWorker(bopts)
	if err != nil {
		return kind, nil, err
	}
	return kind, typedWorker[T]{w}, nil
}

// Submit decodes payload as a message of kind and runs admission. The error
// is reserved for unknown kinds and undecodable payloads; denials are
// reported in the decision.
func (d *Dispatcher) Submit(ctx context.Context, tenant, kind string, payload []byte) (batch.Decision, error) {
	k, err := requests.ParseKind(kind)
	if err != nil {
		return batch.Decision{}, err
	}
	w, ok := d.workers[k]
	if !ok {
		return batch.Decision{}, fmt.Errorf("%w: %s", requests.ErrUnknownKind, kind)
	}
	return w.submit(ctx, tenant, payload)
}

// Start starts every worker.
func (d *Dispatcher) Start(ctx context.Context) error {
	for _, kind := range requests.Kinds {
		if err := d.workers[kind].Start(ctx); err != nil {
			return fmt.Errorf("failed to start %s worker: %w", kind, err)
		}
	}
	logger.Info("Ingest dispatcher started", "workers", len(d.workers))
	return nil
}

// Stop stops every worker, draining what is queued. Each worker gets at
// most timeout.
func (d *Dispatcher) Stop(timeout time.Duration) {
	for _, kind := range requests.Kinds {
		d.workers[kind].Stop(timeout)
	}
}

// Drain synchronously drains every worker and returns the dispatch calls made.
func (d *Dispatcher) Drain(ctx context.Context) int {
	calls := 0
	for _, kind := range requests.Kinds {
		calls += d.workers[kind].Drain(ctx)
	}
	return calls
}

// Pending returns the queued messages of one kind and tenant.
func (d *Dispatcher) Pending(kind requests.Kind, tenant string) int {
	w, ok := d.workers[kind]
	if !ok {
		return 0
	}
	return w.Pending(tenant)
}
