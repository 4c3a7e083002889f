package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/marmos91/nearstore/pkg/store/models"
)

func (s *GORMStore) RecordFailure(ctx context.Context, failure *models.FailedRequest) error {
	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(failure).Error
}

func (s *GORMStore) ListFailures(ctx context.Context, filter models.FailureFilter) ([]*models.FailedRequest, error) {
	q := s.db.WithContext(ctx).Where("tenant = ?", filter.Tenant)
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}

	switch {
	case filter.GroupID != "" && len(filter.Owners) > 0:
		q = q.Where("(group_id = ? OR owner IN ?)", filter.GroupID, filter.Owners)
	case filter.GroupID != "":
		q = q.Where("group_id = ?", filter.GroupID)
	case len(filter.Owners) > 0:
		q = q.Where("owner IN ?", filter.Owners)
	}

	var failures []*models.FailedRequest
	if err := q.Order("created_at, id").Find(&failures).Error; err != nil {
		return nil, err
	}
	return failures, nil
}

func (s *GORMStore) DeleteFailures(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.FailedRequest{}).Error
}
