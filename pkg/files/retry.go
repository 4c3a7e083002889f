package files

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// RetryFilter selects the failed requests to replay. GroupID and Owners
// are alternatives; a failure matching either is replayed.
type RetryFilter struct {
	GroupID string
	Owners  []string
}

// Retry replays the failures selected by each request. Requests are
// checked with CheckRetry at admission; an unsupported one reaching here is
// logged and skipped.
func (s *Service) Retry(ctx context.Context, tenant string, reqs []requests.RetryRequest) error {
	var errs []error
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := req.CheckRetry(); err != nil {
			logger.WarnCtx(ctx, "Retry skipped", logger.KeyReason, err.Error())
			continue
		}

		var err error
		switch req.Kind {
		case requests.KindStore:
			_, err = s.RetryStore(ctx, tenant, RetryFilter{GroupID: req.GroupID, Owners: req.Owners})
		case requests.KindAvailability:
			_, err = s.RetryAvailability(ctx, tenant, req.GroupID)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RetryStore replays failed store files and returns how many were replayed.
// A retry by group and a retry by owners run the same replay; only the
// selection differs.
func (s *Service) RetryStore(ctx context.Context, tenant string, filter RetryFilter) (int, error) {
	if filter.GroupID == "" && len(filter.Owners) == 0 {
		return 0, fmt.Errorf("store retry needs a group or owners")
	}

	ctx, span := telemetry.StartFilesSpan(ctx, telemetry.SpanFilesRetry, tenant, filter.GroupID, telemetry.Kind(requests.KindStore.String()))
	defer span.End()

	byGroup, err := s.takeFailures(ctx, models.FailureFilter{
		Tenant:  tenant,
		Kind:    requests.KindStore.String(),
		GroupID: filter.GroupID,
		Owners:  filter.Owners,
	})
	if err != nil {
		return 0, err
	}

	replayed := 0
	for groupID, failures := range byGroup {
		files := make([]requests.StoreFile, 0, len(failures))
		for _, f := range failures {
			var file requests.StoreFile
			if err := f.DecodePayload(&file); err != nil {
				logger.ErrorCtx(ctx, "Dropping undecodable failed request", "failure_id", f.ID, logger.KeyError, err)
				continue
			}
			files = append(files, file)
		}
		s.storeFiles(ctx, tenant, groupID, files)
		replayed += len(files)
	}
	return replayed, nil
}

// RetryAvailability replays the failed files of an availability group and
// returns how many were replayed.
func (s *Service) RetryAvailability(ctx context.Context, tenant, groupID string) (int, error) {
	if s.cache == nil {
		return 0, ErrCacheNotConfigured
	}
	if groupID == "" {
		return 0, fmt.Errorf("%w: availability requests can only be retried by group", requests.ErrUnsupportedRetry)
	}

	ctx, span := telemetry.StartFilesSpan(ctx, telemetry.SpanFilesRetry, tenant, groupID, telemetry.Kind(requests.KindAvailability.String()))
	defer span.End()

	byGroup, err := s.takeFailures(ctx, models.FailureFilter{
		Tenant:  tenant,
		Kind:    requests.KindAvailability.String(),
		GroupID: groupID,
	})
	if err != nil {
		return 0, err
	}

	// Items of one group may carry different expirations.
	byExpiration := make(map[int64][]string)
	expirations := make(map[int64]time.Time)
	replayed := 0
	for _, f := range byGroup[groupID] {
		var item availabilityItem
		if err := f.DecodePayload(&item); err != nil {
			logger.ErrorCtx(ctx, "Dropping undecodable failed request", "failure_id", f.ID, logger.KeyError, err)
			continue
		}
		key := item.ExpirationDate.UnixNano()
		byExpiration[key] = append(byExpiration[key], item.Checksum)
		expirations[key] = item.ExpirationDate
		replayed++
	}
	for key, checksums := range byExpiration {
		expiration := expirations[key]
		s.makeAvailable(ctx, tenant, groupID, checksums, s.expiration(&expiration))
	}
	return replayed, nil
}

// takeFailures loads the selected failures, removes them from the store and
// reopens their groups. Failures are grouped by request group.
func (s *Service) takeFailures(ctx context.Context, filter models.FailureFilter) (map[string][]*models.FailedRequest, error) {
	failures, err := s.failures.ListFailures(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed requests: %w", err)
	}
	if len(failures) == 0 {
		logger.InfoCtx(ctx, "Nothing to retry", logger.KeyKind, filter.Kind, logger.KeyGroupID, filter.GroupID)
		return nil, nil
	}

	ids := make([]string, len(failures))
	byGroup := make(map[string][]*models.FailedRequest)
	for i, f := range failures {
		ids[i] = f.ID
		byGroup[f.GroupID] = append(byGroup[f.GroupID], f)
	}
	if err := s.failures.DeleteFailures(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to clear failed requests: %w", err)
	}

	for groupID, fs := range byGroup {
		if groupID == "" {
			continue
		}
		if err := s.groups.Reopen(ctx, filter.Tenant, groupID, len(fs)); err != nil {
			logger.WarnCtx(ctx, "Failed to reopen request group", logger.KeyGroupID, groupID, logger.KeyError, err)
		}
	}

	logger.InfoCtx(ctx, "Replaying failed requests",
		logger.KeyKind, filter.Kind, logger.KeyItems, len(failures), "groups", len(byGroup))
	return byGroup, nil
}

// CancelGroups cancels every group named by the requests.
func (s *Service) CancelGroups(ctx context.Context, tenant string, reqs []requests.CancelGroupsRequest) error {
	var errs []error
	for _, req := range reqs {
		for _, groupID := range req.GroupIDs {
			if err := s.groups.Cancel(ctx, tenant, groupID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
