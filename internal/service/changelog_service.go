package service

import (
	"context"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type changeLogReader interface {
	List(ctx context.Context, filter models.ChangeLogFilter) ([]models.ChangeLogEntry, int, error)
	Stats(ctx context.Context, filter models.ChangeLogFilter) (*models.ChangeLogStats, error)
}

// ChangeLogService exposes the audit trail read side.
type ChangeLogService struct {
	repo changeLogReader
}

func NewChangeLogService(repo changeLogReader) *ChangeLogService {
	return &ChangeLogService{repo: repo}
}

// List returns entries newest first.
func (s *ChangeLogService) List(ctx context.Context, filter models.ChangeLogFilter) ([]models.ChangeLogEntry, *models.Pagination, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change log")
	}
	if entries == nil {
		entries = []models.ChangeLogEntry{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Stats counts entries by entity and by actor.
func (s *ChangeLogService) Stats(ctx context.Context, filter models.ChangeLogFilter) (*models.ChangeLogStats, error) {
	stats, err := s.repo.Stats(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute change log stats")
	}
	return stats, nil
}
