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

const planVersionColumns = `id, student_id, version_num, valid_from, valid_until, comment`

// PlanRepository persists plan versions and their items.
type PlanRepository struct {
	db *sqlx.DB
}

func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListVersions returns every version of a student's plan, newest first.
func (r *PlanRepository) ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error) {
	query := r.db.Rebind(`SELECT ` + planVersionColumns + ` FROM plan_versions WHERE student_id = ? ORDER BY version_num DESC`)
	var versions []models.PlanVersion
	if err := r.db.SelectContext(ctx, &versions, query, studentID); err != nil {
		return nil, fmt.Errorf("list plan versions: %w", err)
	}
	return versions, nil
}

func (r *PlanRepository) FindVersion(ctx context.Context, id string) (*models.PlanVersion, error) {
	query := r.db.Rebind(`SELECT ` + planVersionColumns + ` FROM plan_versions WHERE id = ?`)
	var version models.PlanVersion
	if err := r.db.GetContext(ctx, &version, query, id); err != nil {
		return nil, err
	}
	return &version, nil
}

// FindOpen returns the version without valid_until, or sql.ErrNoRows.
func (r *PlanRepository) FindOpen(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.PlanVersion, error) {
	target := r.exec(exec)
	query := target.Rebind(`SELECT ` + planVersionColumns + ` FROM plan_versions WHERE student_id = ? AND valid_until IS NULL ORDER BY valid_from DESC LIMIT 1`)
	var version models.PlanVersion
	if err := sqlx.GetContext(ctx, target, &version, query, studentID); err != nil {
		return nil, err
	}
	return &version, nil
}

// CreateVersion inserts a version numbered one past the student's highest.
func (r *PlanRepository) CreateVersion(ctx context.Context, exec sqlx.ExtContext, version *models.PlanVersion) error {
	if version.ID == "" {
		version.ID = uuid.NewString()
	}
	target := r.exec(exec)

	nextQuery := target.Rebind(`SELECT COALESCE(MAX(version_num), 0) + 1 FROM plan_versions WHERE student_id = ?`)
	if err := sqlx.GetContext(ctx, target, &version.VersionNum, nextQuery, version.StudentID); err != nil {
		return fmt.Errorf("compute next plan version: %w", err)
	}

	const insertQuery = `INSERT INTO plan_versions (` + planVersionColumns + `)
VALUES (:id, :student_id, :version_num, :valid_from, :valid_until, :comment)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, version); err != nil {
		return fmt.Errorf("insert plan version: %w", err)
	}
	return nil
}

// CloseVersion stamps valid_until on an open version. Closed versions are never reopened.
func (r *PlanRepository) CloseVersion(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`UPDATE plan_versions SET valid_until = ? WHERE id = ? AND valid_until IS NULL`), at, id)
	if err != nil {
		return fmt.Errorf("close plan version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("plan version rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PlanRepository) AddItem(ctx context.Context, exec sqlx.ExtContext, item *models.StudentPlanItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	const query = `INSERT INTO student_plan_items (id, plan_version_id, course_ref, priority, state, note)
VALUES (:id, :plan_version_id, :course_ref, :priority, :state, :note)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("add plan item: %w", err)
	}
	return nil
}

// FindItem returns one item of a plan, or sql.ErrNoRows.
func (r *PlanRepository) FindItem(ctx context.Context, planID, itemID string) (*models.StudentPlanItem, error) {
	query := r.db.Rebind(`SELECT id, plan_version_id, course_ref, priority, state, note FROM student_plan_items WHERE id = ? AND plan_version_id = ?`)
	var item models.StudentPlanItem
	if err := r.db.GetContext(ctx, &item, query, itemID, planID); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeleteItem removes an item from a plan. A missing item yields sql.ErrNoRows.
func (r *PlanRepository) DeleteItem(ctx context.Context, exec sqlx.ExtContext, planID, itemID string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM student_plan_items WHERE id = ? AND plan_version_id = ?`), itemID, planID)
	if err != nil {
		return fmt.Errorf("delete plan item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("plan item rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasItem reports whether the course is already listed in the plan.
func (r *PlanRepository) HasItem(ctx context.Context, planID, courseRef string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, r.db.Rebind(`SELECT 1 FROM student_plan_items WHERE plan_version_id = ? AND course_ref = ? LIMIT 1`), planID, courseRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check plan item: %w", err)
	}
	return true, nil
}

// ListItems returns the items of a plan joined with their catalog entries.
func (r *PlanRepository) ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error) {
	query := r.db.Rebind(`SELECT i.id, i.plan_version_id, i.course_ref, i.priority, i.state, i.note,
c.course_id, c.subject, c.subject_type, c.orientation
FROM student_plan_items i JOIN courses c ON c.id = i.course_ref
WHERE i.plan_version_id = ? ORDER BY COALESCE(i.priority, 2147483647), c.course_id`)
	var items []models.PlanItemDetail
	if err := r.db.SelectContext(ctx, &items, query, planID); err != nil {
		return nil, fmt.Errorf("list plan items: %w", err)
	}
	return items, nil
}
