package files

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/cache"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// ErrCacheNotConfigured is returned by availability operations on a
// service built without a cache manager.
var ErrCacheNotConfigured = errors.New("files: cache is not configured")

// availabilityItem is the replayable payload of a failed availability file.
type availabilityItem struct {
	Checksum       string    `json:"checksum"`
	ExpirationDate time.Time `json:"expiration_date"`
}

// Availability makes files readable until the request expiration. Files on
// an online storage are available as they are. Files only held by nearline
// storages are staged in the cache, or have their cache entry extended.
func (s *Service) Availability(ctx context.Context, tenant string, reqs []requests.AvailabilityRequest) error {
	if s.cache == nil {
		return ErrCacheNotConfigured
	}
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.makeAvailable(ctx, tenant, req.GroupID, req.Checksums, s.expiration(req.ExpirationDate))
	}
	return nil
}

func (s *Service) expiration(requested *time.Time) time.Time {
	now := s.opts.Now()
	if requested != nil && requested.After(now) {
		return *requested
	}
	return now.Add(s.opts.DefaultExpiration)
}

func (s *Service) makeAvailable(ctx context.Context, tenant, groupID string, checksums []string, expiration time.Time) {
	ctx = groupContext(ctx, tenant, requests.KindAvailability, groupID)
	ctx, span := telemetry.StartFilesSpan(ctx, telemetry.SpanFilesAvailability, tenant, groupID)
	defer span.End()

	checksums = slices.Clone(checksums)
	slices.Sort(checksums)
	checksums = slices.Compact(checksums)

	report := func(checksum string, err error) {
		s.result(ctx, tenant, groupID, requests.KindAvailability, "", checksum, "", availabilityItem{checksum, expiration}, err)
	}

	hits, err := s.cache.Lookup(ctx, tenant, checksums, groupID)
	if err != nil {
		for _, checksum := range checksums {
			report(checksum, err)
		}
		return
	}

	now := s.opts.Now()
	cached := make(map[string]*cache.Entry, len(hits))
	for _, e := range hits {
		if !e.Expired(now) {
			cached[e.Checksum] = e
		}
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Parallelism)
	for _, checksum := range checksums {
		if e, ok := cached[checksum]; ok {
			_, err := s.cache.AddOrRefresh(ctx, refreshRequest(e, expiration, groupID))
			report(checksum, err)
			continue
		}
		g.Go(func() error {
			report(checksum, s.stage(ctx, tenant, groupID, checksum, expiration))
			return nil
		})
	}
	_ = g.Wait()

	logger.InfoCtx(ctx, "Availability request processed",
		logger.KeyItems, len(checksums), "cache_hits", len(cached))
}

// stage makes one file available. result is reported by the caller.
func (s *Service) stage(ctx context.Context, tenant, groupID, checksum string, expiration time.Time) error {
	refs, err := s.references.FindReferences(ctx, tenant, checksum)
	if err != nil {
		return err
	}

	var source *models.FileReference
	var driver backend.Driver
	for _, name := range s.storages.PreferOnline(storageNames(refs)) {
		d, err := s.storages.Get(name)
		if err != nil {
			continue
		}
		if d.Tier() == backend.TierOnline {
			logger.DebugCtx(ctx, "File is online", logger.KeyChecksum, checksum, logger.KeyStorage, name)
			return nil
		}
		source, driver = findStorage(refs, name), d
		break
	}
	if source == nil {
		return fmt.Errorf("%w: %s", errNoSource, checksum)
	}

	type staged struct {
		location string
		size     int64
	}
	v, err, shared := s.staging.Do(tenant+"/"+checksum, func() (any, error) {
		location, size, err := s.retrieveToCache(ctx, tenant, driver, source)
		return staged{location, size}, err
	})
	if err != nil {
		return err
	}
	if shared {
		logger.DebugCtx(ctx, "Joined in-flight staging", logger.KeyChecksum, checksum)
	}

	out := v.(staged)
	_, err = s.cache.AddOrRefresh(ctx, cache.AddRequest{
		Tenant:         tenant,
		Checksum:       checksum,
		FileSize:       out.size,
		FileName:       source.FileName,
		MimeType:       source.MimeType,
		Type:           source.Type,
		Location:       out.location,
		ExpirationDate: expiration,
		GroupIDs:       []string{groupID},
	})
	return err
}

// retrieveToCache copies a nearline file into the cache, retrying transient
// failures with exponential backoff.
func (s *Service) retrieveToCache(ctx context.Context, tenant string, driver backend.Driver, ref *models.FileReference) (string, int64, error) {
	ctx, span := telemetry.StartBackendSpan(ctx, telemetry.SpanBackendRetrieve, driver.Name(), telemetry.Checksum(ref.Checksum))
	defer span.End()

	var (
		location string
		size     int64
		attempt  int
	)
	op := func() error {
		attempt++
		body, err := driver.Retrieve(ctx, ref.URL)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		defer func() { _ = body.Close() }()

		location, size, err = s.cache.Write(ctx, tenant, ref.Checksum, body)
		if errors.Is(err, cache.ErrCachePathUninitialized) || errors.Is(err, cache.ErrInvalidChecksum) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnCtx(ctx, "Retrieval failed, retrying",
			logger.KeyChecksum, ref.Checksum,
			logger.KeyStorage, driver.Name(),
			logger.KeyAttempt, attempt,
			"wait", wait,
			logger.KeyError, err)
	}

	if err := backoff.RetryNotify(op, s.retrieveBackOff(ctx), notify); err != nil {
		telemetry.RecordError(ctx, err)
		return "", 0, fmt.Errorf("failed to stage %s from %s: %w", ref.Checksum, driver.Name(), err)
	}

	logger.DebugCtx(ctx, "File staged",
		logger.KeyChecksum, ref.Checksum, logger.KeyStorage, driver.Name(), logger.KeySize, size)
	return location, size, nil
}

func (s *Service) retrieveBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.RetrieveBaseDelay
	eb.MaxElapsedTime = 0
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.opts.RetrieveAttempts-1)), ctx)
}

func refreshRequest(e *cache.Entry, expiration time.Time, groupID string) cache.AddRequest {
	return cache.AddRequest{
		Tenant:         e.Tenant,
		Checksum:       e.Checksum,
		FileSize:       e.FileSize,
		FileName:       e.FileName,
		MimeType:       e.MimeType,
		Type:           e.Type,
		Location:       e.Location,
		ExpirationDate: expiration,
		GroupIDs:       []string{groupID},
		ExternalCache:  e.ExternalCache,
	}
}
