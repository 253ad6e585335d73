package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

// CourseSourceRepository persists import provenance rows.
type CourseSourceRepository struct {
	db *sqlx.DB
}

func NewCourseSourceRepository(db *sqlx.DB) *CourseSourceRepository {
	return &CourseSourceRepository{db: db}
}

func (r *CourseSourceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByKey returns the provenance row for (course, tab, row).
func (r *CourseSourceRepository) FindByKey(ctx context.Context, exec sqlx.ExtContext, courseRef string, tab *string, row int) (*models.CourseSource, error) {
	target := r.exec(exec)
	query := target.Rebind(`SELECT id, course_ref, source_tab, source_orientation, module, source_row FROM course_sources
WHERE course_ref = ? AND COALESCE(source_tab, '') = ? AND source_row = ?`)
	var src models.CourseSource
	if err := sqlx.GetContext(ctx, target, &src, query, courseRef, optionalText(tab), row); err != nil {
		return nil, err
	}
	return &src, nil
}

func (r *CourseSourceRepository) Insert(ctx context.Context, exec sqlx.ExtContext, src *models.CourseSource) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	const query = `INSERT INTO course_sources (id, course_ref, source_tab, source_orientation, module, source_row)
VALUES (:id, :course_ref, :source_tab, :source_orientation, :module, :source_row)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, src); err != nil {
		return fmt.Errorf("insert course source: %w", err)
	}
	return nil
}

func (r *CourseSourceRepository) Update(ctx context.Context, exec sqlx.ExtContext, src *models.CourseSource) error {
	const query = `UPDATE course_sources SET source_orientation = :source_orientation, module = :module WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, src); err != nil {
		return fmt.Errorf("update course source: %w", err)
	}
	return nil
}

// ListByCourse returns the provenance of one catalog entry in sheet order.
func (r *CourseSourceRepository) ListByCourse(ctx context.Context, courseRef string) ([]models.CourseSource, error) {
	query := r.db.Rebind(`SELECT id, course_ref, source_tab, source_orientation, module, source_row FROM course_sources WHERE course_ref = ? ORDER BY source_tab, source_row`)
	var sources []models.CourseSource
	if err := r.db.SelectContext(ctx, &sources, query, courseRef); err != nil {
		return nil, fmt.Errorf("list course sources: %w", err)
	}
	return sources, nil
}
