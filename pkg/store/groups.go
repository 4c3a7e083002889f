package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/marmos91/nearstore/pkg/store/models"
)

func (s *GORMStore) GetGroup(ctx context.Context, tenant, groupID string) (*models.RequestGroup, error) {
	return firstWhere[models.RequestGroup](s.db, ctx, models.ErrGroupNotFound,
		"tenant = ? AND group_id = ?", tenant, groupID)
}

func (s *GORMStore) ListGroups(ctx context.Context, tenant string, filter GroupFilter) ([]*models.RequestGroup, error) {
	q := s.db.WithContext(ctx).Where("tenant = ?", tenant)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.After != "" {
		q = q.Where("group_id > ?", filter.After)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var groups []*models.RequestGroup
	if err := q.Order("group_id").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *GORMStore) UpdateGroup(ctx context.Context, tenant, groupID string, fn GroupMutator) (*models.RequestGroup, error) {
	var result *models.RequestGroup
	err := withCreateRetry(s.db, ctx, func(tx *gorm.DB) error {
		group, err := lockWhere[models.RequestGroup](tx, models.ErrGroupNotFound,
			"tenant = ? AND group_id = ?", tenant, groupID)

		exists := true
		switch {
		case errors.Is(err, models.ErrGroupNotFound):
			exists = false
			group = &models.RequestGroup{Tenant: tenant, GroupID: groupID, Status: models.StatusPending}
		case err != nil:
			return err
		}

		if err := fn(group, exists); err != nil {
			return err
		}

		if exists {
			err = tx.Save(group).Error
		} else {
			err = tx.Create(group).Error
		}
		if err != nil {
			return err
		}
		result = group
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
