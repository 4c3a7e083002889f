package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marmos91/nearstore/pkg/store/models"
)

func (s *GORMStore) GetReference(ctx context.Context, tenant, checksum, storage string) (*models.FileReference, error) {
	return firstWhere[models.FileReference](s.db, ctx, models.ErrReferenceNotFound,
		"tenant = ? AND checksum = ? AND storage = ?", tenant, checksum, storage)
}

func (s *GORMStore) FindReferences(ctx context.Context, tenant, checksum string) ([]*models.FileReference, error) {
	var refs []*models.FileReference
	err := s.db.WithContext(ctx).
		Where("tenant = ? AND checksum = ?", tenant, checksum).
		Order("storage").
		Find(&refs).Error
	if err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *GORMStore) UpsertReference(ctx context.Context, ref *models.FileReference) (*models.FileReference, error) {
	incoming, err := ref.GetOwners()
	if err != nil {
		return nil, err
	}

	var result *models.FileReference
	err = withCreateRetry(s.db, ctx, func(tx *gorm.DB) error {
		existing, err := lockWhere[models.FileReference](tx, models.ErrReferenceNotFound,
			"tenant = ? AND checksum = ? AND storage = ?", ref.Tenant, ref.Checksum, ref.Storage)

		switch {
		case errors.Is(err, models.ErrReferenceNotFound):
			created := *ref
			created.ID = uuid.New().String()
			if err := created.SetOwners(incoming); err != nil {
				return err
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}
			result = &created
			return nil
		case err != nil:
			return err
		}

		if err := mergeReference(existing, ref, incoming); err != nil {
			return err
		}
		if err := tx.Save(existing).Error; err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *GORMStore) SaveReference(ctx context.Context, ref *models.FileReference) error {
	result := s.db.WithContext(ctx).
		Model(&models.FileReference{}).
		Where("id = ?", ref.ID).
		Select("url", "owners", "file_name", "file_size", "mime_type", "type", "updated_at").
		Updates(ref)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrReferenceNotFound
	}
	return nil
}

func (s *GORMStore) DeleteReference(ctx context.Context, tenant, checksum, storage string) error {
	result := s.db.WithContext(ctx).
		Where("tenant = ? AND checksum = ? AND storage = ?", tenant, checksum, storage).
		Delete(&models.FileReference{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrReferenceNotFound
	}
	return nil
}

// mergeReference refreshes dst with the non-empty attributes of src and
// adds the incoming owners.
func mergeReference(dst, src *models.FileReference, owners []string) error {
	if src.URL != "" {
		dst.URL = src.URL
	}
	if src.FileName != "" {
		dst.FileName = src.FileName
	}
	if src.FileSize > 0 {
		dst.FileSize = src.FileSize
	}
	if src.MimeType != "" {
		dst.MimeType = src.MimeType
	}
	if src.Type != "" {
		dst.Type = src.Type
	}
	for _, owner := range owners {
		if _, err := dst.AddOwner(owner); err != nil {
			return err
		}
	}
	return nil
}
