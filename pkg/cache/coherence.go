package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
)

// CheckCoherence removes index rows of internal entries whose staged file
// no longer exists. Orphans are deleted in batches of CoherenceBatchSize.
// It returns the number of rows removed.
func (m *Manager) CheckCoherence(ctx context.Context, tenant string) (int, error) {
	if _, err := m.maxSize(tenant); err != nil {
		return 0, err
	}

	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCacheCoherence, tenant)
	defer span.End()

	start := time.Now()
	q := Query{InternalOnly: true, Limit: m.pageSize}
	orphans := make([]string, 0, min(m.batchSize, m.pageSize))
	removed := 0

	flush := func() error {
		if len(orphans) == 0 {
			return nil
		}
		if err := m.index.DeleteMany(ctx, tenant, orphans); err != nil {
			return fmt.Errorf("failed to delete orphan entries: %w", err)
		}
		removed += len(orphans)
		orphans = orphans[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		page, err := m.index.List(ctx, tenant, q)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return removed, fmt.Errorf("failed to list cache entries: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, e := range page {
			if m.fileMissing(ctx, e) {
				orphans = append(orphans, e.Checksum)
			}
			if len(orphans) >= m.batchSize {
				if err := flush(); err != nil {
					return removed, err
				}
			}
		}

		q.After = page[len(page)-1].Checksum
		if len(page) < m.pageSize {
			break
		}
	}

	if err := flush(); err != nil {
		return removed, err
	}

	span.SetAttributes(telemetry.CacheRemoved(removed))
	m.observeCoherence(tenant, removed, start)

	logger.InfoCtx(ctx, "Cache coherence check finished",
		logger.KeyTenant, tenant,
		logger.KeyEvicted, removed,
		logger.KeyDurationMs, logger.Duration(start))

	return removed, nil
}

func (m *Manager) fileMissing(ctx context.Context, e *Entry) bool {
	path, ok := LocalPath(e.Location)
	if !ok {
		logger.WarnCtx(ctx, "Internal cache entry without local location",
			logger.KeyTenant, e.Tenant, logger.KeyChecksum, e.Checksum, logger.KeyLocation, e.Location)
		return true
	}

	_, err := m.fs.Stat(path)
	switch {
	case err == nil:
		return false
	case isNotExist(err):
		logger.WarnCtx(ctx, "Cached file missing on disk, removing entry",
			logger.KeyTenant, e.Tenant, logger.KeyChecksum, e.Checksum, logger.KeyPath, path)
		return true
	default:
		logger.ErrorCtx(ctx, "Failed to stat cached file",
			logger.KeyTenant, e.Tenant, logger.KeyChecksum, e.Checksum, logger.KeyPath, path, logger.KeyError, err)
		return false
	}
}
