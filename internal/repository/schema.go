package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// The DDL sticks to the subset understood by both PostgreSQL and SQLite:
// TEXT keys, IF NOT EXISTS everywhere, expression indexes for nullable keys.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS courses (
    id TEXT PRIMARY KEY,
    course_id TEXT NOT NULL,
    program TEXT,
    year INTEGER,
    subject TEXT,
    start_date DATE,
    end_date DATE,
    weekday TEXT,
    time_block TEXT,
    format TEXT,
    hours DOUBLE PRECISION,
    subject_type TEXT,
    orientation TEXT,
    comments TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_courses_key ON courses (course_id, COALESCE(orientation, ''))`,
	`CREATE INDEX IF NOT EXISTS ix_courses_program ON courses (program)`,
	`CREATE INDEX IF NOT EXISTS ix_courses_orientation ON courses (orientation)`,
	`CREATE TABLE IF NOT EXISTS course_sources (
    id TEXT PRIMARY KEY,
    course_ref TEXT NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
    source_tab TEXT,
    source_orientation TEXT,
    module TEXT,
    source_row INTEGER NOT NULL
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_course_sources_key ON course_sources (course_ref, COALESCE(source_tab, ''), source_row)`,
	`CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    first_name TEXT NOT NULL,
    last_name TEXT NOT NULL,
    email TEXT NOT NULL,
    program TEXT NOT NULL,
    cohort TEXT,
    extra TEXT,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_students_email ON students (email)`,
	`CREATE INDEX IF NOT EXISTS ix_students_program ON students (program)`,
	`CREATE INDEX IF NOT EXISTS ix_students_cohort ON students (cohort)`,
	`CREATE TABLE IF NOT EXISTS meetings (
    id TEXT PRIMARY KEY,
    student_id TEXT REFERENCES students (id) ON DELETE SET NULL,
    held_at TIMESTAMP NOT NULL,
    target_orientation TEXT,
    agreement TEXT,
    notes TEXT,
    created_at TIMESTAMP NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS ix_meetings_student ON meetings (student_id)`,
	`CREATE TABLE IF NOT EXISTS plan_versions (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students (id) ON DELETE CASCADE,
    version_num INTEGER NOT NULL,
    valid_from TIMESTAMP NOT NULL,
    valid_until TIMESTAMP,
    comment TEXT
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_plan_versions_student_version ON plan_versions (student_id, version_num)`,
	`CREATE TABLE IF NOT EXISTS student_plan_items (
    id TEXT PRIMARY KEY,
    plan_version_id TEXT NOT NULL REFERENCES plan_versions (id) ON DELETE CASCADE,
    course_ref TEXT NOT NULL REFERENCES courses (id) ON DELETE RESTRICT,
    priority INTEGER,
    state TEXT NOT NULL,
    note TEXT
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_plan_items_course ON student_plan_items (plan_version_id, course_ref)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
    id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES students (id) ON DELETE CASCADE,
    course_ref TEXT NOT NULL REFERENCES courses (id) ON DELETE RESTRICT,
    status TEXT NOT NULL,
    grade TEXT,
    grade_numeric DOUBLE PRECISION,
    registered_at TIMESTAMP NOT NULL,
    status_changed_at TIMESTAMP
)`,
	`CREATE INDEX IF NOT EXISTS ix_enrollments_student ON enrollments (student_id)`,
	`CREATE INDEX IF NOT EXISTS ix_enrollments_status ON enrollments (status)`,
	`CREATE TABLE IF NOT EXISTS change_logs (
    id TEXT PRIMARY KEY,
    ts TIMESTAMP NOT NULL,
    actor TEXT,
    entity TEXT NOT NULL,
    entity_id TEXT,
    field TEXT,
    old_value TEXT,
    new_value TEXT,
    reason TEXT
)`,
	`CREATE INDEX IF NOT EXISTS ix_change_logs_entity ON change_logs (entity, entity_id)`,
	`CREATE INDEX IF NOT EXISTS ix_change_logs_ts ON change_logs (ts)`,
}

// EnsureSchema creates every table and index that does not exist yet.
func EnsureSchema(ctx context.Context, exec sqlx.ExecerContext) error {
	for _, stmt := range schemaStatements {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SchemaStatementCount exposes how many statements EnsureSchema issues.
func SchemaStatementCount() int { return len(schemaStatements) }
