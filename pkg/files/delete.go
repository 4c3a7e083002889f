package files

import (
	"context"
	"errors"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// Delete removes an owner from each file. The file itself is deleted once
// no owner is left, or immediately with ForceDelete. Physical deletion only
// happens on storages that allow it; the reference is dropped either way.
func (s *Service) Delete(ctx context.Context, tenant string, reqs []requests.DeleteRequest) error {
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}

		gctx := groupContext(ctx, tenant, requests.KindDelete, req.GroupID)
		gctx, span := telemetry.StartFilesSpan(gctx, telemetry.SpanFilesDelete, tenant, req.GroupID)
		for _, f := range req.Files {
			err := s.deleteFile(gctx, tenant, f)
			s.result(gctx, tenant, req.GroupID, requests.KindDelete, f.Owner, f.Checksum, f.Storage, f, err)
		}
		span.End()
	}
	return nil
}

func (s *Service) deleteFile(ctx context.Context, tenant string, f requests.DeleteFile) error {
	ref, err := s.references.GetReference(ctx, tenant, f.Checksum, f.Storage)
	if errors.Is(err, models.ErrReferenceNotFound) {
		logger.DebugCtx(ctx, "File already deleted", logger.KeyChecksum, f.Checksum, logger.KeyStorage, f.Storage)
		return nil
	}
	if err != nil {
		return err
	}

	if f.Owner != "" {
		remaining, err := ref.RemoveOwner(f.Owner)
		if err != nil {
			return err
		}
		if len(remaining) > 0 && !f.ForceDelete {
			return s.references.SaveReference(ctx, ref)
		}
	}

	driver, err := s.storages.Get(f.Storage)
	if err != nil {
		return err
	}
	if driver.AllowsPhysicalDeletion() {
		ctx, span := telemetry.StartBackendSpan(ctx, telemetry.SpanBackendDelete, f.Storage, telemetry.Checksum(f.Checksum))
		err := driver.Delete(ctx, ref.URL)
		span.End()
		if err != nil {
			return err
		}
	} else {
		logger.InfoCtx(ctx, "Storage does not allow physical deletion, dropping reference only",
			logger.KeyChecksum, f.Checksum, logger.KeyStorage, f.Storage)
	}

	err = s.references.DeleteReference(ctx, tenant, f.Checksum, f.Storage)
	if errors.Is(err, models.ErrReferenceNotFound) {
		return nil
	}
	return err
}
