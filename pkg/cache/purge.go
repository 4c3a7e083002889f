package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
)

// Purge evicts entries of a tenant.
//
// In forced mode every entry (internal and external) is removed regardless
// of expiration. Otherwise only internal entries whose expiration date has
// passed are removed. Entries are processed page by page; for each entry the
// physical file is deleted before the index row.
func (m *Manager) Purge(ctx context.Context, tenant string, force bool) (PurgeResult, error) {
	if _, err := m.maxSize(tenant); err != nil {
		return PurgeResult{}, err
	}

	ctx, span := telemetry.StartCacheSpan(ctx, telemetry.SpanCachePurge, tenant, telemetry.CacheForce(force))
	defer span.End()

	start := time.Now()
	q := Query{Limit: m.pageSize}
	if !force {
		q.InternalOnly = true
		q.ExpiredBefore = m.now()
	}

	var result PurgeResult
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		page, err := m.index.List(ctx, tenant, q)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return result, fmt.Errorf("failed to list cache entries: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, e := range page {
			if m.evict(ctx, e) {
				result.Removed++
			} else {
				result.Failed++
			}
		}

		q.After = page[len(page)-1].Checksum
		if len(page) < m.pageSize {
			break
		}
	}

	span.SetAttributes(telemetry.CacheRemoved(result.Removed))
	m.observePurge(tenant, force, result, start)

	logger.InfoCtx(ctx, "Cache purge finished",
		logger.KeyTenant, tenant,
		logger.KeyForce, force,
		logger.KeyEvicted, result.Removed,
		"failed", result.Failed,
		logger.KeyDurationMs, logger.Duration(start))

	return result, nil
}

// evict deletes the physical file of an entry (when this service owns it)
// and then its index row. It reports whether the row was removed.
func (m *Manager) evict(ctx context.Context, e *Entry) bool {
	if e.InternalCache {
		if !m.removeLocalFile(ctx, e) {
			return false
		}
	} else if plugin := m.externalCache(e.ExternalCache); plugin != nil && plugin.AllowsPhysicalDeletion() {
		if err := plugin.Delete(ctx, e); err != nil {
			logger.ErrorCtx(ctx, "External cache deletion failed, keeping entry",
				logger.KeyTenant, e.Tenant,
				logger.KeyChecksum, e.Checksum,
				logger.KeyStorage, e.ExternalCache,
				logger.KeyError, err)
			return false
		}
	}

	if err := m.index.Delete(ctx, e.Tenant, e.Checksum); err != nil {
		logger.ErrorCtx(ctx, "Failed to delete cache entry",
			logger.KeyTenant, e.Tenant, logger.KeyChecksum, e.Checksum, logger.KeyError, err)
		return false
	}
	return true
}

// removeLocalFile deletes the staged file. A missing file counts as already
// deleted. Any other error keeps the entry so a later pass can retry.
func (m *Manager) removeLocalFile(ctx context.Context, e *Entry) bool {
	path, ok := LocalPath(e.Location)
	if !ok {
		return true
	}

	err := m.fs.Remove(path)
	switch {
	case err == nil:
		return true
	case isNotExist(err):
		logger.WarnCtx(ctx, "Cached file already missing, removing entry",
			logger.KeyTenant, e.Tenant, logger.KeyChecksum, e.Checksum, logger.KeyPath, path)
		return true
	default:
		logger.ErrorCtx(ctx, "Failed to delete cached file, keeping entry",
			logger.KeyTenant, e.Tenant, logger.KeyChecksum, e.Checksum, logger.KeyPath, path, logger.KeyError, err)
		return false
	}
}
