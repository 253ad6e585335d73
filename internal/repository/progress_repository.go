package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

const orientationBucket = `COALESCE(c.orientation, '` + models.NoOrientation + `')`

// ProgressRepository holds the read-only queries behind progress and reporting.
type ProgressRepository struct {
	db *sqlx.DB
}

func NewProgressRepository(db *sqlx.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// CompletedElectivesByOrientation counts completed enrollments in courses of
// the given subject type, grouped by orientation in ascending order.
func (r *ProgressRepository) CompletedElectivesByOrientation(ctx context.Context, studentID, electiveType string) ([]models.OrientationCount, error) {
	query := r.db.Rebind(`SELECT ` + orientationBucket + ` AS orientation, COUNT(*) AS count
FROM enrollments e JOIN courses c ON c.id = e.course_ref
WHERE e.student_id = ? AND e.status = ? AND c.subject_type = ?
GROUP BY ` + orientationBucket + ` ORDER BY orientation`)
	var counts []models.OrientationCount
	if err := r.db.SelectContext(ctx, &counts, query, studentID, models.EnrollmentCompleted, electiveType); err != nil {
		return nil, fmt.Errorf("count completed electives: %w", err)
	}
	return counts, nil
}

// PlannedElectivesByOrientation counts planned elective items of a plan that
// the student has not completed yet.
func (r *ProgressRepository) PlannedElectivesByOrientation(ctx context.Context, studentID, planID, electiveType string) ([]models.OrientationCount, error) {
	query := r.db.Rebind(`SELECT ` + orientationBucket + ` AS orientation, COUNT(*) AS count
FROM student_plan_items i JOIN courses c ON c.id = i.course_ref
WHERE i.plan_version_id = ? AND i.state = ? AND c.subject_type = ?
AND NOT EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = ? AND e.course_ref = i.course_ref AND e.status = ?)
GROUP BY ` + orientationBucket + ` ORDER BY orientation`)
	var counts []models.OrientationCount
	err := r.db.SelectContext(ctx, &counts, query, planID, models.PlanItemPlanned, electiveType, studentID, models.EnrollmentCompleted)
	if err != nil {
		return nil, fmt.Errorf("count planned electives: %w", err)
	}
	return counts, nil
}

// DuplicateEnrollments lists courses the student is enrolled in more than once.
func (r *ProgressRepository) DuplicateEnrollments(ctx context.Context, studentID string) ([]models.CountByKey, error) {
	query := r.db.Rebind(`SELECT c.course_id AS key, COUNT(*) AS count
FROM enrollments e JOIN courses c ON c.id = e.course_ref
WHERE e.student_id = ? GROUP BY c.course_id HAVING COUNT(*) > 1 ORDER BY c.course_id`)
	var dups []models.CountByKey
	if err := r.db.SelectContext(ctx, &dups, query, studentID); err != nil {
		return nil, fmt.Errorf("find duplicate enrollments: %w", err)
	}
	return dups, nil
}

// CompletedOutsidePlan lists course ids completed by the student that the plan does not contain.
func (r *ProgressRepository) CompletedOutsidePlan(ctx context.Context, studentID, planID string) ([]string, error) {
	query := r.db.Rebind(`SELECT DISTINCT c.course_id
FROM enrollments e JOIN courses c ON c.id = e.course_ref
WHERE e.student_id = ? AND e.status = ?
AND NOT EXISTS (SELECT 1 FROM student_plan_items i WHERE i.plan_version_id = ? AND i.course_ref = e.course_ref)
ORDER BY c.course_id`)
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, studentID, models.EnrollmentCompleted, planID); err != nil {
		return nil, fmt.Errorf("find completions outside plan: %w", err)
	}
	return ids, nil
}

// CourseDemand counts open plan versions listing each course as planned.
func (r *ProgressRepository) CourseDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.CourseDemand, error) {
	where, args := demandConditions(filter)
	query := r.db.Rebind(`SELECT c.id AS course_ref, c.course_id, c.subject, c.program, c.year, c.orientation, COUNT(DISTINCT v.id) AS plans
FROM student_plan_items i
JOIN plan_versions v ON v.id = i.plan_version_id
JOIN courses c ON c.id = i.course_ref
WHERE ` + where + `
GROUP BY c.id, c.course_id, c.subject, c.program, c.year, c.orientation
ORDER BY plans DESC, c.course_id`)
	var demand []models.CourseDemand
	if err := r.db.SelectContext(ctx, &demand, query, args...); err != nil {
		return nil, fmt.Errorf("course demand: %w", err)
	}
	return demand, nil
}

// ModuleDemand counts planned items of open plan versions per source module
// and course start date. Months are derived by the caller so the query stays
// portable across drivers.
func (r *ProgressRepository) ModuleDemand(ctx context.Context, filter models.CourseDemandFilter) ([]models.ModuleDemandRow, error) {
	where, args := demandConditions(filter)
	query := r.db.Rebind(`SELECT s.module, c.start_date, COUNT(DISTINCT i.id) AS items
FROM student_plan_items i
JOIN plan_versions v ON v.id = i.plan_version_id
JOIN courses c ON c.id = i.course_ref
LEFT JOIN course_sources s ON s.course_ref = c.id
WHERE ` + where + `
GROUP BY s.module, c.start_date
ORDER BY s.module, c.start_date`)
	var rows []models.ModuleDemandRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("module demand: %w", err)
	}
	return rows, nil
}

func demandConditions(filter models.CourseDemandFilter) (string, []interface{}) {
	conditions := []string{"v.valid_until IS NULL", "i.state = ?"}
	args := []interface{}{models.PlanItemPlanned}
	if filter.Program != "" {
		conditions = append(conditions, "c.program = ?")
		args = append(args, filter.Program)
	}
	if filter.Year != nil {
		conditions = append(conditions, "c.year = ?")
		args = append(args, *filter.Year)
	}
	if filter.Orientation != "" {
		conditions = append(conditions, "c.orientation = ?")
		args = append(args, filter.Orientation)
	}
	return strings.Join(conditions, " AND "), args
}

// HealthCounts returns the size of the main tables. Deleted students are excluded.
func (r *ProgressRepository) HealthCounts(ctx context.Context) (*models.HealthCounts, error) {
	query := r.db.Rebind(`SELECT
(SELECT COUNT(*) FROM courses) AS courses,
(SELECT COUNT(*) FROM students WHERE active = ?) AS students,
(SELECT COUNT(*) FROM plan_versions) AS plans,
(SELECT COUNT(*) FROM enrollments) AS enrollments`)
	var counts models.HealthCounts
	if err := r.db.GetContext(ctx, &counts, query, true); err != nil {
		return nil, fmt.Errorf("health counts: %w", err)
	}
	return &counts, nil
}

// Ping checks the database connection.
func (r *ProgressRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
