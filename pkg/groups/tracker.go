// Package groups tracks request groups: admission decisions, per-file
// results, cancellation and the terminal status of each group.
package groups

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store"
	"github.com/marmos91/nearstore/pkg/store/models"
)

const (
	DefaultExpiration         = 48 * time.Hour
	DefaultCancelledCacheSize = 4096
	DefaultSweepPageSize      = 500
)

// Options configures a Tracker.
type Options struct {
	// Expiration is how long a group may stay pending before the sweep
	// expires it.
	Expiration time.Duration

	// CancelledCacheSize bounds the in-memory set of cancelled group ids.
	CancelledCacheSize int

	// SweepPageSize is the number of pending groups loaded per sweep page.
	SweepPageSize int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// SweepResult counts the transitions made by one sweep.
type SweepResult struct {
	Done    int `json:"done"`
	Errored int `json:"errored"`
	Expired int `json:"expired"`
}

// Total returns the number of groups that reached a terminal status.
func (r SweepResult) Total() int {
	return r.Done + r.Errored + r.Expired
}

// Tracker records admission decisions and results against request groups.
// It is safe for concurrent use; every mutation is a single atomic
// store.GroupStore update.
type Tracker struct {
	store     store.GroupStore
	cancelled *lru.Cache
	opts      Options
}

// New creates a tracker over s.
func New(s store.GroupStore, opts Options) (*Tracker, error) {
	if s == nil {
		return nil, errors.New("groups: store is required")
	}
	if opts.Expiration <= 0 {
		opts.Expiration = DefaultExpiration
	}
	if opts.CancelledCacheSize <= 0 {
		opts.CancelledCacheSize = DefaultCancelledCacheSize
	}
	if opts.SweepPageSize <= 0 {
		opts.SweepPageSize = DefaultSweepPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	cancelled, err := lru.New(opts.CancelledCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cancelled-group cache: %w", err)
	}

	return &Tracker{store: s, cancelled: cancelled, opts: opts}, nil
}

// Grant records one granted admission carrying count files. A later
// expiresAt replaces the recorded one. A group denied so far becomes
// pending again.
func (t *Tracker) Grant(ctx context.Context, tenant, groupID, kind string, count int, expiresAt *time.Time) error {
	_, err := t.store.UpdateGroup(ctx, tenant, groupID, func(g *models.RequestGroup, _ bool) error {
		setKind(g, kind)
		g.Granted++
		g.GrantedItems += count
		if expiresAt != nil && (g.ExpiresAt == nil || expiresAt.After(*g.ExpiresAt)) {
			e := *expiresAt
			g.ExpiresAt = &e
		}
		if g.Status == models.StatusDenied {
			g.Status = models.StatusPending
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record grant for group %s: %w", groupID, err)
	}
	return nil
}

// Deny records one denied admission. A group with no grant is marked
// denied so clients can see why nothing happened.
func (t *Tracker) Deny(ctx context.Context, tenant, groupID, kind, reason string) error {
	_, err := t.store.UpdateGroup(ctx, tenant, groupID, func(g *models.RequestGroup, _ bool) error {
		setKind(g, kind)
		g.Denied++
		g.DeniedReason = reason
		if g.Granted == 0 && g.Status == models.StatusPending {
			g.Status = models.StatusDenied
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record denial for group %s: %w", groupID, err)
	}
	return nil
}

// Cancel marks a group cancelled. Messages of the group still queued are
// dropped before dispatch; batches already dispatched are not recalled.
// Completed groups keep their status but are flagged.
func (t *Tracker) Cancel(ctx context.Context, tenant, groupID string) error {
	_, err := t.store.UpdateGroup(ctx, tenant, groupID, func(g *models.RequestGroup, _ bool) error {
		g.Cancelled = true
		if g.Status != models.StatusDone && g.Status != models.StatusError {
			g.Status = models.StatusCancelled
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cancel group %s: %w", groupID, err)
	}

	t.cancelled.Add(cacheKey(tenant, groupID), struct{}{})
	logger.InfoCtx(ctx, "Request group cancelled", logger.KeyTenant, tenant, logger.KeyGroupID, groupID)
	return nil
}

// IsCancelled reports whether the group was cancelled. Unknown groups are
// not cancelled.
func (t *Tracker) IsCancelled(ctx context.Context, tenant, groupID string) (bool, error) {
	key := cacheKey(tenant, groupID)
	if t.cancelled.Contains(key) {
		return true, nil
	}

	g, err := t.store.GetGroup(ctx, tenant, groupID)
	if errors.Is(err, models.ErrGroupNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if g.Cancelled {
		t.cancelled.Add(key, struct{}{})
	}
	return g.Cancelled, nil
}

// RequestDone records the result of one file of the group. The group
// settles to done or error as soon as every admitted file has reported.
func (t *Tracker) RequestDone(ctx context.Context, tenant, groupID string, success bool) error {
	if groupID == "" {
		return nil
	}

	now := t.opts.Now()
	g, err := t.store.UpdateGroup(ctx, tenant, groupID, func(g *models.RequestGroup, _ bool) error {
		if success {
			g.Succeeded++
		} else {
			g.Failed++
		}
		if st := g.Settle(now, 0); st == models.StatusDone || st == models.StatusError {
			g.Status = st
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record result for group %s: %w", groupID, err)
	}

	if g.Status == models.StatusDone || g.Status == models.StatusError {
		logger.DebugCtx(ctx, "Request group settled",
			logger.KeyTenant, tenant, logger.KeyGroupID, groupID, "status", g.Status)
	}
	return nil
}

// Reopen moves a group back to pending before failed files are replayed.
// retried is the number of failed files being replayed; they are taken off
// the failure count so their new results are counted once.
func (t *Tracker) Reopen(ctx context.Context, tenant, groupID string, retried int) error {
	_, err := t.store.UpdateGroup(ctx, tenant, groupID, func(g *models.RequestGroup, exists bool) error {
		if !exists {
			return models.ErrGroupNotFound
		}
		g.Failed -= retried
		if g.Failed < 0 {
			g.Failed = 0
		}
		if g.Status == models.StatusError || g.Status == models.StatusExpired {
			g.Status = models.StatusPending
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reopen group %s: %w", groupID, err)
	}
	return nil
}

// Get returns one group.
func (t *Tracker) Get(ctx context.Context, tenant, groupID string) (*models.RequestGroup, error) {
	return t.store.GetGroup(ctx, tenant, groupID)
}

// List returns the groups of a tenant ordered by id, optionally filtered
// by status.
func (t *Tracker) List(ctx context.Context, tenant string, status models.GroupStatus, limit int) ([]*models.RequestGroup, error) {
	return t.store.ListGroups(ctx, tenant, store.GroupFilter{Status: status, Limit: limit})
}

// Sweep settles the pending groups of a tenant: complete groups become done
// or error, stale ones expire.
func (t *Tracker) Sweep(ctx context.Context, tenant string) (SweepResult, error) {
	var result SweepResult
	now := t.opts.Now()

	after := ""
	for {
		page, err := t.store.ListGroups(ctx, tenant, store.GroupFilter{
			Status: models.StatusPending,
			After:  after,
			Limit:  t.opts.SweepPageSize,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list pending groups: %w", err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].GroupID

		for _, candidate := range page {
			if candidate.Settle(now, t.opts.Expiration) == "" {
				continue
			}
			if err := t.settle(ctx, tenant, candidate.GroupID, now, &result); err != nil {
				return result, err
			}
		}

		if len(page) < t.opts.SweepPageSize {
			break
		}
	}

	if result.Total() > 0 {
		logger.InfoCtx(ctx, "Request groups swept",
			logger.KeyTenant, tenant,
			"done", result.Done,
			"errored", result.Errored,
			"expired", result.Expired)
	}
	return result, nil
}

// settle re-evaluates the group under the store's update so a result
// reported concurrently is not overwritten.
func (t *Tracker) settle(ctx context.Context, tenant, groupID string, now time.Time, result *SweepResult) error {
	var settled models.GroupStatus
	_, err := t.store.UpdateGroup(ctx, tenant, groupID, func(g *models.RequestGroup, _ bool) error {
		settled = g.Settle(now, t.opts.Expiration)
		if settled != "" {
			g.Status = settled
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to settle group %s: %w", groupID, err)
	}

	switch settled {
	case models.StatusDone:
		result.Done++
	case models.StatusError:
		result.Errored++
	case models.StatusExpired:
		result.Expired++
	}
	return nil
}

// setKind records the kind of the request that created the group. Retries
// and cancellations never set it.
func setKind(g *models.RequestGroup, kind string) {
	if g.Kind == "" && requests.Kind(kind).Tracked() {
		g.Kind = kind
	}
}

func cacheKey(tenant, groupID string) string {
	return tenant + "/" + groupID
}
