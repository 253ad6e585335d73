package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type courseCatalog interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CourseService is the read side of the imported catalog.
type CourseService struct {
	repo courseCatalog
}

func NewCourseService(repo courseCatalog) *CourseService {
	return &CourseService{repo: repo}
}

func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get looks a course up by its surrogate id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}
