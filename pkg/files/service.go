// Package files implements the domain operations batches are dispatched to:
// storing, deleting, referencing and copying files across storages, making
// nearline files available in the cache, replaying failures and cancelling
// request groups.
//
// Every file of a request reports its result to the request group and a
// failed file is recorded so a later retry can replay it.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store"
	"github.com/marmos91/nearstore/pkg/store/models"
)

const (
	DefaultParallelism       = 8
	DefaultExpiration        = 24 * time.Hour
	DefaultRetrieveAttempts  = 3
	DefaultRetrieveBaseDelay = 500 * time.Millisecond
)

// Groups receives per-file results and retry and cancel transitions.
type Groups interface {
	RequestDone(ctx context.Context, tenant, groupID string, success bool) error
	Reopen(ctx context.Context, tenant, groupID string, retried int) error
	Cancel(ctx context.Context, tenant, groupID string) error
}

// Options configures a Service.
type Options struct {
	// Parallelism bounds concurrent retrievals of one availability request.
	Parallelism int

	// DefaultExpiration applies to availability requests without a date.
	DefaultExpiration time.Duration

	// RetrieveAttempts and RetrieveBaseDelay shape the exponential backoff
	// around nearline retrieval.
	RetrieveAttempts  int
	RetrieveBaseDelay time.Duration

	// Fs resolves file:// origins. Defaults to the OS filesystem.
	Fs afero.Fs

	// HTTPClient fetches http(s) origins. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Service runs file requests against the registered storages.
type Service struct {
	storages   *backend.Registry
	references store.ReferenceStore
	failures   store.FailureStore
	groups     Groups
	cache      *cache.Manager
	opts       Options

	staging singleflight.Group
}

// New creates a service. cache may be nil when availability is not served.
func New(storages *backend.Registry, references store.ReferenceStore, failures store.FailureStore,
	groups Groups, cacheManager *cache.Manager, opts Options) (*Service, error) {
	if storages == nil || references == nil || failures == nil || groups == nil {
		return nil, errors.New("files: storages, references, failures and groups are required")
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.DefaultExpiration <= 0 {
		opts.DefaultExpiration = DefaultExpiration
	}
	if opts.RetrieveAttempts <= 0 {
		opts.RetrieveAttempts = DefaultRetrieveAttempts
	}
	if opts.RetrieveBaseDelay <= 0 {
		opts.RetrieveBaseDelay = DefaultRetrieveBaseDelay
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		storages:   storages,
		references: references,
		failures:   failures,
		groups:     groups,
		cache:      cacheManager,
		opts:       opts,
	}, nil
}

// result reports one file outcome to its group and, on failure, records it
// for retry. payload is the file request replayed by a retry.
func (s *Service) result(ctx context.Context, tenant, groupID string, kind requests.Kind,
	owner, checksum, storage string, payload any, err error) {
	if err != nil {
		logger.WarnCtx(ctx, "File request failed",
			logger.KeyChecksum, checksum, logger.KeyStorage, storage, logger.KeyError, err)

		failure := &models.FailedRequest{
			Tenant:   tenant,
			GroupID:  groupID,
			Kind:     kind.String(),
			Owner:    owner,
			Checksum: checksum,
			Storage:  storage,
			Error:    err.Error(),
		}
		if perr := failure.SetPayload(payload); perr != nil {
			logger.ErrorCtx(ctx, "Failed to encode failed request", logger.KeyError, perr)
		} else if rerr := s.failures.RecordFailure(ctx, failure); rerr != nil {
			logger.ErrorCtx(ctx, "Failed to record failed request", logger.KeyError, rerr)
		}
	}

	if derr := s.groups.RequestDone(ctx, tenant, groupID, err == nil); derr != nil {
		logger.ErrorCtx(ctx, "Failed to report file result", logger.KeyError, derr)
	}
}

// groupContext scopes log lines to one request group.
func groupContext(ctx context.Context, tenant string, kind requests.Kind, groupID string) context.Context {
	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext(tenant)
	}
	return logger.WithContext(ctx, lc.WithKind(kind.String()).WithGroup(groupID))
}

// openOrigin opens the source of a store request.
func (s *Service) openOrigin(ctx context.Context, origin string) (io.ReadCloser, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}

	switch u.Scheme {
	case "file":
		return s.opts.Fs.Open(filepath.FromSlash(u.Path))

	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
		if err != nil {
			return nil, err
		}
		resp, err := s.opts.HTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("origin %s returned %s", origin, resp.Status)
		}
		return resp.Body, nil

	default:
		return nil, fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}
}

// addOwner records owner on an existing reference.
func (s *Service) addOwner(ctx context.Context, ref *models.FileReference, owner string) error {
	changed, err := ref.AddOwner(owner)
	if err != nil || !changed {
		return err
	}
	return s.references.SaveReference(ctx, ref)
}

func newReference(tenant, checksum, storage, location, owner string) (*models.FileReference, error) {
	ref := &models.FileReference{Tenant: tenant, Checksum: checksum, Storage: storage, URL: location}
	var owners []string
	if owner != "" {
		owners = []string{owner}
	}
	if err := ref.SetOwners(owners); err != nil {
		return nil, err
	}
	return ref, nil
}
