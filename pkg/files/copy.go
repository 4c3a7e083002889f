package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/nearstore/internal/telemetry"
	"github.com/marmos91/nearstore/pkg/backend"
	"github.com/marmos91/nearstore/pkg/requests"
	"github.com/marmos91/nearstore/pkg/store/models"
)

// errNoSource is returned when no storage holds a file.
var errNoSource = errors.New("no storage holds the file")

// Copy replicates files onto a destination storage, reading from the
// fastest storage that holds them.
func (s *Service) Copy(ctx context.Context, tenant string, reqs []requests.CopyRequest) error {
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}

		gctx := groupContext(ctx, tenant, requests.KindCopy, req.GroupID)
		gctx, span := telemetry.StartFilesSpan(gctx, telemetry.SpanFilesCopy, tenant, req.GroupID)
		for _, f := range req.Files {
			err := s.copyFile(gctx, tenant, f)
			s.result(gctx, tenant, req.GroupID, requests.KindCopy, f.Owner, f.Checksum, f.DestinationStorage, f, err)
		}
		span.End()
	}
	return nil
}

func (s *Service) copyFile(ctx context.Context, tenant string, f requests.CopyFile) error {
	dest, err := s.storages.Get(f.DestinationStorage)
	if err != nil {
		return err
	}

	refs, err := s.references.FindReferences(ctx, tenant, f.Checksum)
	if err != nil {
		return err
	}

	var source *models.FileReference
	for _, name := range s.storages.PreferOnline(storageNames(refs)) {
		ref := findStorage(refs, name)
		if name == f.DestinationStorage {
			return s.addOwner(ctx, ref, f.Owner)
		}
		if source == nil {
			if _, err := s.storages.Get(name); err == nil {
				source = ref
			}
		}
	}
	if source == nil {
		return fmt.Errorf("%w: %s", errNoSource, f.Checksum)
	}

	srcDriver, err := s.storages.Get(source.Storage)
	if err != nil {
		return err
	}
	body, err := srcDriver.Retrieve(ctx, source.URL)
	if err != nil {
		return fmt.Errorf("failed to read %s from %s: %w", f.Checksum, source.Storage, err)
	}
	defer func() { _ = body.Close() }()

	location, err := dest.Store(ctx, backend.StoreInput{
		Tenant:       tenant,
		Checksum:     f.Checksum,
		FileName:     source.FileName,
		SubDirectory: f.SubDirectory,
		Size:         source.FileSize,
		Body:         body,
	})
	if err != nil {
		return err
	}

	ref, err := newReference(tenant, f.Checksum, f.DestinationStorage, location, f.Owner)
	if err != nil {
		return err
	}
	ref.FileName, ref.FileSize, ref.MimeType, ref.Type = source.FileName, source.FileSize, source.MimeType, source.Type
	_, err = s.references.UpsertReference(ctx, ref)
	return err
}

func storageNames(refs []*models.FileReference) []string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.Storage
	}
	return names
}

func findStorage(refs []*models.FileReference, name string) *models.FileReference {
	for _, r := range refs {
		if r.Storage == name {
			return r
		}
	}
	return nil
}
