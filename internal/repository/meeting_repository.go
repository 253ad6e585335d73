package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/rutas-academicas/internal/models"
)

// MeetingRepository persists advising meetings.
type MeetingRepository struct {
	db *sqlx.DB
}

func NewMeetingRepository(db *sqlx.DB) *MeetingRepository {
	return &MeetingRepository{db: db}
}

func (r *MeetingRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

func (r *MeetingRepository) Create(ctx context.Context, exec sqlx.ExtContext, meeting *models.Meeting) error {
	if meeting.ID == "" {
		meeting.ID = uuid.NewString()
	}
	if meeting.CreatedAt.IsZero() {
		meeting.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO meetings (id, student_id, held_at, target_orientation, agreement, notes, created_at)
VALUES (:id, :student_id, :held_at, :target_orientation, :agreement, :notes, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, meeting); err != nil {
		return fmt.Errorf("create meeting: %w", err)
	}
	return nil
}

func (r *MeetingRepository) FindByID(ctx context.Context, id string) (*models.Meeting, error) {
	query := r.db.Rebind(`SELECT id, student_id, held_at, target_orientation, agreement, notes, created_at FROM meetings WHERE id = ?`)
	var meeting models.Meeting
	if err := r.db.GetContext(ctx, &meeting, query, id); err != nil {
		return nil, err
	}
	return &meeting, nil
}

// ListByStudent returns the student's meetings, oldest first.
func (r *MeetingRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Meeting, error) {
	query := r.db.Rebind(`SELECT id, student_id, held_at, target_orientation, agreement, notes, created_at FROM meetings WHERE student_id = ? ORDER BY held_at, id`)
	var meetings []models.Meeting
	if err := r.db.SelectContext(ctx, &meetings, query, studentID); err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	return meetings, nil
}

func (r *MeetingRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	target := r.exec(exec)
	result, err := target.ExecContext(ctx, target.Rebind(`DELETE FROM meetings WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete meeting: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("meeting rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
