package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

const studentColumns = `id, first_name, last_name, email, program, cohort, extra, active, created_at, updated_at, deleted_at`

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns active students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"active = ?"}
	args := []interface{}{true}

	if filter.Program != "" {
		conditions = append(conditions, "program = ?")
		args = append(args, filter.Program)
	}
	if filter.Cohort != "" {
		conditions = append(conditions, "cohort = ?")
		args = append(args, filter.Cohort)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?)")
		like := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, like, like, like)
	}
	where := " FROM students WHERE " + strings.Join(conditions, " AND ")

	allowedSorts := map[string]string{
		"last_name":  "last_name",
		"email":      "email",
		"cohort":     "cohort",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "last_name"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	size, offset := pageWindow(filter.Page, filter.PageSize)

	query := r.db.Rebind(fmt.Sprintf("SELECT %s%s ORDER BY %s %s, id LIMIT %d OFFSET %d", studentColumns, where, column, order, size, offset))
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*)"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student, soft-deleted ones included.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := r.db.Rebind(`SELECT ` + studentColumns + ` FROM students WHERE id = ?`)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByEmail checks whether any student, deleted or not, owns the email.
func (r *StudentRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM students WHERE email = ?"
	args := []interface{}{strings.ToLower(strings.TrimSpace(email))}
	if excludeID != "" {
		query += " AND id <> ?"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, r.db.Rebind(query+" LIMIT 1"), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check email: %w", err)
	}
	return true, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	student.Email = strings.ToLower(strings.TrimSpace(student.Email))
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	const query = `INSERT INTO students (` + studentColumns + `)
VALUES (:id, :first_name, :last_name, :email, :program, :cohort, :extra, :active, :created_at, :updated_at, :deleted_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error {
	student.Email = strings.ToLower(strings.TrimSpace(student.Email))
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET first_name = :first_name, last_name = :last_name, email = :email, program = :program,
cohort = :cohort, extra = :extra, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SoftDelete deactivates a student. Related rows are left untouched.
func (r *StudentRepository) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error {
	target := r.exec(exec)
	query := target.Rebind(`UPDATE students SET active = ?, deleted_at = ?, updated_at = ? WHERE id = ? AND active = ?`)
	result, err := target.ExecContext(ctx, query, false, at, at, id, true)
	if err != nil {
		return fmt.Errorf("soft delete student: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("student rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActiveIDs returns the ids of active students in a cohort or program.
// Exactly one of cohort and program is expected to be set.
func (r *StudentRepository) ListActiveIDs(ctx context.Context, cohort, program string) ([]string, error) {
	query := "SELECT id FROM students WHERE active = ?"
	args := []interface{}{true}
	if cohort != "" {
		query += " AND cohort = ?"
		args = append(args, cohort)
	}
	if program != "" {
		query += " AND program = ?"
		args = append(args, program)
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, r.db.Rebind(query+" ORDER BY id"), args...); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return ids, nil
}

// ListActive returns active students, optionally narrowed to a cohort and a
// program, ordered by name.
func (r *StudentRepository) ListActive(ctx context.Context, cohort, program string) ([]models.Student, error) {
	query := "SELECT " + studentColumns + " FROM students WHERE active = ?"
	args := []interface{}{true}
	if cohort != "" {
		query += " AND cohort = ?"
		args = append(args, cohort)
	}
	if program != "" {
		query += " AND program = ?"
		args = append(args, program)
	}
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, r.db.Rebind(query+" ORDER BY last_name, first_name, id"), args...); err != nil {
		return nil, fmt.Errorf("list active students: %w", err)
	}
	return students, nil
}
