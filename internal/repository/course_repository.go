package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

const courseColumns = `id, course_id, program, year, subject, start_date, end_date, weekday, time_block, format, hours, subject_type, orientation, comments, created_at, updated_at`

// CourseRepository persists the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByKey looks a course up by its catalog identity. A nil orientation only
// matches courses without one.
func (r *CourseRepository) FindByKey(ctx context.Context, exec sqlx.ExtContext, courseID string, orientation *string) (*models.Course, error) {
	target := r.exec(exec)
	query := target.Rebind(`SELECT ` + courseColumns + ` FROM courses WHERE course_id = ? AND COALESCE(orientation, '') = ?`)
	var course models.Course
	if err := sqlx.GetContext(ctx, target, &course, query, courseID, optionalText(orientation)); err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := r.db.Rebind(`SELECT ` + courseColumns + ` FROM courses WHERE id = ?`)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// Insert adds a catalog entry, assigning its surrogate id when missing.
func (r *CourseRepository) Insert(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now

	const query = `INSERT INTO courses (` + courseColumns + `)
VALUES (:id, :course_id, :program, :year, :subject, :start_date, :end_date, :weekday, :time_block, :format, :hours, :subject_type, :orientation, :comments, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, course); err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	return nil
}

// Update overwrites every mutable column, nulls included.
func (r *CourseRepository) Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()
	const query = `UPDATE courses SET program = :program, year = :year, subject = :subject, start_date = :start_date, end_date = :end_date,
weekday = :weekday, time_block = :time_block, format = :format, hours = :hours, subject_type = :subject_type,
orientation = :orientation, comments = :comments, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, course); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// List returns catalog entries ordered by course id then orientation.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(course_id) LIKE ? OR LOWER(COALESCE(subject, '')) LIKE ?)")
		like := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, like, like)
	}
	if filter.Program != "" {
		conditions = append(conditions, "program = ?")
		args = append(args, filter.Program)
	}
	if filter.Year != nil {
		conditions = append(conditions, "year = ?")
		args = append(args, *filter.Year)
	}
	if filter.Orientation != "" {
		conditions = append(conditions, "orientation = ?")
		args = append(args, filter.Orientation)
	}
	if filter.SubjectType != "" {
		conditions = append(conditions, "subject_type = ?")
		args = append(args, filter.SubjectType)
	}

	where := " FROM courses WHERE " + strings.Join(conditions, " AND ")
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := r.db.Rebind(fmt.Sprintf("SELECT %s%s ORDER BY course_id, COALESCE(orientation, '') LIMIT %d OFFSET %d", courseColumns, where, size, offset))
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*)"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// pageWindow clamps paging input to sane bounds and returns limit and offset.
func pageWindow(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 200 {
		size = 50
	}
	return size, (page - 1) * size
}
