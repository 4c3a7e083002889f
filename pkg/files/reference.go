package files

import (
	"context"

	"github.com/marmos91/nearstore/pkg/requests"
)

// Reference records files that already live on a storage. No bytes move.
func (s *Service) Reference(ctx context.Context, tenant string, reqs []requests.ReferenceRequest) error {
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}

		gctx := groupContext(ctx, tenant, requests.KindReference, req.GroupID)
		for _, f := range req.Files {
			err := s.referenceFile(gctx, tenant, f)
			s.result(gctx, tenant, req.GroupID, requests.KindReference, f.Owner, f.Checksum, f.Storage, f, err)
		}
	}
	return nil
}

func (s *Service) referenceFile(ctx context.Context, tenant string, f requests.ReferenceFile) error {
	if _, err := s.storages.Get(f.Storage); err != nil {
		return err
	}

	ref, err := newReference(tenant, f.Checksum, f.Storage, f.URL, f.Owner)
	if err != nil {
		return err
	}
	ref.FileName, ref.FileSize, ref.MimeType, ref.Type = f.FileName, f.FileSize, f.MimeType, f.Type
	_, err = s.references.UpsertReference(ctx, ref)
	return err
}
