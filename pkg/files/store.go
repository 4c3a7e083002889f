package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/nearstore/internal/logger"
	"github.com/marmos91/nearstore/internal/telemetry"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// Store copies the files of each request from their origin into the
// requested storage. A file already referenced on that storage only gains
// the new owner.
func (s *Service) Store(ctx context.Context, tenant string, reqs []requests.StoreRequest) error {
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.storeFiles(ctx, tenant, req.GroupID, req.Files)
	}
	return nil
}

func (s *Service) storeFiles(ctx context.Context, tenant, groupID string, files []requests.StoreFile) {
	ctx = groupContext(ctx, tenant, requests.KindStore, groupID)
	ctx, span := telemetry.StartFilesSpan(ctx, telemetry.SpanFilesStore, tenant, groupID)
	defer span.End()

	stored := 0
	for _, f := range files {
		err := s.storeFile(ctx, tenant, f)
		if err == nil {
			stored++
		}
		s.result(ctx, tenant, groupID, requests.KindStore, f.Owner, f.Checksum, f.Storage, f, err)
	}
	logger.InfoCtx(ctx, "Store request processed", logger.KeyItems, len(files), "stored", stored)
}

func (s *Service) storeFile(ctx context.Context, tenant string, f requests.StoreFile) error {
	driver, err := s.storages.Get(f.Storage)
	if err != nil {
		return err
	}

	ref, err := s.references.GetReference(ctx, tenant, f.Checksum, f.Storage)
	switch {
	case err == nil:
		return s.addOwner(ctx, ref, f.Owner)
	case !errors.Is(err, models.ErrReferenceNotFound):
		return err
	}

	body, err := s.openOrigin(ctx, f.Origin)
	if err != nil {
		return fmt.Errorf("failed to open origin: %w", err)
	}
	defer func() { _ = body.Close() }()

	ctx, span := telemetry.StartBackendSpan(ctx, telemetry.SpanBackendStore, f.Storage, telemetry.Checksum(f.Checksum))
	defer span.End()

	location, err := driver.Store(ctx, backend.StoreInput{
		Tenant:       tenant,
		Checksum:     f.Checksum,
		FileName:     f.FileName,
		SubDirectory: f.SubDirectory,
		Size:         f.FileSize,
		Body:         body,
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	ref, err = newReference(tenant, f.Checksum, f.Storage, location, f.Owner)
	if err != nil {
		return err
	}
	ref.FileName, ref.FileSize, ref.MimeType, ref.Type = f.FileName, f.FileSize, f.MimeType, f.Type
	_, err = s.references.UpsertReference(ctx, ref)
	return err
}
