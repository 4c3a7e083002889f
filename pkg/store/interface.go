// Package store persists request groups, file references and failed
// requests. GORMStore serves SQLite and PostgreSQL from the same code.
package store

import (
	"context"

	"github.com/marmos91/nearstore/pkg/store/models"
)

// GroupFilter selects request groups of one tenant, ordered by group id.
type GroupFilter struct {
	// Status restricts the result to one status. Empty means any.
	Status models.GroupStatus

	// After is the exclusive lower bound on group id (keyset paging).
	After string

	// Limit caps the result. Zero means no limit.
	Limit int
}

// GroupMutator changes a group inside UpdateGroup. exists is false when
// the group is being created; g then carries only its keys.
type GroupMutator func(g *models.RequestGroup, exists bool) error

// GroupStore persists request groups.
type GroupStore interface {
	GetGroup(ctx context.Context, tenant, groupID string) (*models.RequestGroup, error)
	ListGroups(ctx context.Context, tenant string, filter GroupFilter) ([]*models.RequestGroup, error)

	// UpdateGroup atomically loads (or initializes) a group, applies fn and
	// saves the result.
	UpdateGroup(ctx context.Context, tenant, groupID string, fn GroupMutator) (*models.RequestGroup, error)
}

// ReferenceStore persists file references.
type ReferenceStore interface {
	GetReference(ctx context.Context, tenant, checksum, storage string) (*models.FileReference, error)
	FindReferences(ctx context.Context, tenant, checksum string) ([]*models.FileReference, error)

	// UpsertReference creates the reference or refreshes its attributes,
	// merging owners.
	UpsertReference(ctx context.Context, ref *models.FileReference) (*models.FileReference, error)

	// SaveReference replaces an existing reference.
	SaveReference(ctx context.Context, ref *models.FileReference) error

	DeleteReference(ctx context.Context, tenant, checksum, storage string) error
}

// FailureStore persists failed requests for retry.
type FailureStore interface {
	RecordFailure(ctx context.Context, failure *models.FailedRequest) error
	ListFailures(ctx context.Context, filter models.FailureFilter) ([]*models.FailedRequest, error)
	DeleteFailures(ctx context.Context, ids []string) error
}

// Store is the full persistence surface.
type Store interface {
	GroupStore
	ReferenceStore
	FailureStore

	Healthcheck(ctx context.Context) error
	Close() error
}
