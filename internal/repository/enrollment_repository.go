package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

const enrollmentColumns = `id, student_id, course_ref, status, grade, grade_numeric, registered_at, status_changed_at`

// EnrollmentRepository persists course enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := r.db.Rebind(`SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = ?`)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists reports whether the student already has an enrollment for the course.
func (r *EnrollmentRepository) Exists(ctx context.Context, exec sqlx.ExtContext, studentID, courseRef string) (bool, error) {
	target := r.exec(exec)
	var one int
	err := sqlx.GetContext(ctx, target, &one, target.Rebind(`SELECT 1 FROM enrollments WHERE student_id = ? AND course_ref = ? LIMIT 1`), studentID, courseRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.RegisteredAt.IsZero() {
		enrollment.RegisteredAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (` + enrollmentColumns + `)
VALUES (:id, :student_id, :course_ref, :status, :grade, :grade_numeric, :registered_at, :status_changed_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Update writes status, grades and the status timestamp.
func (r *EnrollmentRepository) Update(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET status = :status, grade = :grade, grade_numeric = :grade_numeric, status_changed_at = :status_changed_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	return nil
}

func (r *EnrollmentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM enrollments WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("enrollment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByStudent returns the student's enrollments with catalog info.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	query := r.db.Rebind(`SELECT e.id, e.student_id, e.course_ref, e.status, e.grade, e.grade_numeric, e.registered_at, e.status_changed_at,
c.course_id, c.subject, c.subject_type, c.orientation
FROM enrollments e JOIN courses c ON c.id = e.course_ref
WHERE e.student_id = ? ORDER BY e.registered_at, e.id`)
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}
