// Package memory provides an in-memory store.Store for tests and
// single-process deployments that do not need persistence.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/nearstore/pkg/store"
	"github.com/marmos91/nearstore/pkg/store/models"
)

type refKey struct {
	tenant, checksum, storage string
}

type groupKey struct {
	tenant, groupID string
}

// Store is a mutex-guarded store.Store. Returned records are copies.
type Store struct {
	mu       sync.RWMutex
	groups   map[groupKey]*models.RequestGroup
	refs     map[refKey]*models.FileReference
	failures map[string]*models.FailedRequest
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		groups:   make(map[groupKey]*models.RequestGroup),
		refs:     make(map[refKey]*models.FileReference),
		failures: make(map[string]*models.FailedRequest),
		now:      time.Now,
	}
}

func (s *Store) GetGroup(_ context.Context, tenant, groupID string) (*models.RequestGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupKey{tenant, groupID}]
	if !ok {
		return nil, models.ErrGroupNotFound
	}
	return copyGroup(g), nil
}

func (s *Store) ListGroups(_ context.Context, tenant string, filter store.GroupFilter) ([]*models.RequestGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.RequestGroup
	for k, g := range s.groups {
		if k.tenant != tenant {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		if filter.After != "" && k.groupID <= filter.After {
			continue
		}
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) UpdateGroup(_ context.Context, tenant, groupID string, fn store.GroupMutator) (*models.RequestGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := groupKey{tenant, groupID}
	now := s.now()

	current, exists := s.groups[key]
	var g *models.RequestGroup
	if exists {
		g = copyGroup(current)
	} else {
		g = &models.RequestGroup{Tenant: tenant, GroupID: groupID, Status: models.StatusPending, CreatedAt: now}
	}

	if err := fn(g, exists); err != nil {
		return nil, err
	}
	g.Tenant, g.GroupID = tenant, groupID
	g.UpdatedAt = now
	s.groups[key] = g
	return copyGroup(g), nil
}

func (s *Store) GetReference(_ context.Context, tenant, checksum, storage string) (*models.FileReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.refs[refKey{tenant, checksum, storage}]
	if !ok {
		return nil, models.ErrReferenceNotFound
	}
	return copyReference(r), nil
}

func (s *Store) FindReferences(_ context.Context, tenant, checksum string) ([]*models.FileReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.FileReference
	for k, r := range s.refs {
		if k.tenant == tenant && k.checksum == checksum {
			out = append(out, copyReference(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Storage < out[j].Storage })
	return out, nil
}

func (s *Store) UpsertReference(_ context.Context, ref *models.FileReference) (*models.FileReference, error) {
	incoming, err := ref.GetOwners()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := refKey{ref.Tenant, ref.Checksum, ref.Storage}
	now := s.now()

	existing, ok := s.refs[key]
	if !ok {
		created := copyReference(ref)
		created.ID = uuid.New().String()
		created.CreatedAt, created.UpdatedAt = now, now
		if err := created.SetOwners(incoming); err != nil {
			return nil, err
		}
		s.refs[key] = created
		return copyReference(created), nil
	}

	updated := copyReference(existing)
	if ref.URL != "" {
		updated.URL = ref.URL
	}
	if ref.FileName != "" {
		updated.FileName = ref.FileName
	}
	if ref.FileSize > 0 {
		updated.FileSize = ref.FileSize
	}
	if ref.MimeType != "" {
		updated.MimeType = ref.MimeType
	}
	if ref.Type != "" {
		updated.Type = ref.Type
	}
	for _, owner := range incoming {
		if _, err := updated.AddOwner(owner); err != nil {
			return nil, err
		}
	}
	updated.UpdatedAt = now
	s.refs[key] = updated
	return copyReference(updated), nil
}

func (s *Store) SaveReference(_ context.Context, ref *models.FileReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, r := range s.refs {
		if r.ID == ref.ID {
			saved := copyReference(ref)
			saved.Tenant, saved.Checksum, saved.Storage = k.tenant, k.checksum, k.storage
			saved.CreatedAt = r.CreatedAt
			saved.UpdatedAt = s.now()
			s.refs[k] = saved
			return nil
		}
	}
	return models.ErrReferenceNotFound
}

func (s *Store) DeleteReference(_ context.Context, tenant, checksum, storage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := refKey{tenant, checksum, storage}
	if _, ok := s.refs[key]; !ok {
		return models.ErrReferenceNotFound
	}
	delete(s.refs, key)
	return nil
}

func (s *Store) RecordFailure(_ context.Context, failure *models.FailedRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = s.now()
	}
	f := *failure
	s.failures[f.ID] = &f
	return nil
}

func (s *Store) ListFailures(_ context.Context, filter models.FailureFilter) ([]*models.FailedRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.FailedRequest
	for _, f := range s.failures {
		if f.Tenant != filter.Tenant {
			continue
		}
		if filter.Kind != "" && f.Kind != filter.Kind {
			continue
		}
		if !matchesFailure(f, filter) {
			continue
		}
		c := *f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return strings.Compare(out[i].ID, out[j].ID) < 0
	})
	return out, nil
}

func (s *Store) DeleteFailures(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.failures, id)
	}
	return nil
}

func (s *Store) Healthcheck(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func matchesFailure(f *models.FailedRequest, filter models.FailureFilter) bool {
	byGroup := filter.GroupID != "" && f.GroupID == filter.GroupID
	byOwner := len(filter.Owners) > 0 && slices.Contains(filter.Owners, f.Owner)

	switch {
	case filter.GroupID == "" && len(filter.Owners) == 0:
		return true
	default:
		return byGroup || byOwner
	}
}

func copyGroup(g *models.RequestGroup) *models.RequestGroup {
	c := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func copyReference(r *models.FileReference) *models.FileReference {
	c := *r
	c.ParsedOwners = slices.Clone(r.ParsedOwners)
	return &c
}
