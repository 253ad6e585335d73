package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type meetingRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, meeting *models.Meeting) error
	FindByID(ctx context.Context, id string) (*models.Meeting, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Meeting, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type studentLookup interface {
	Get(ctx context.Context, id string) (*models.Student, error)
}

// CreateMeetingRequest is the payload for logging an advising meeting.
type CreateMeetingRequest struct {
	HeldAt            *time.Time `json:"held_at"`
	TargetOrientation *string    `json:"target_orientation"`
	Agreement         *string    `json:"agreement" validate:"omitempty,max=2000"`
	Notes             *string    `json:"notes" validate:"omitempty,max=4000"`
}

// MeetingService records advising meetings.
type MeetingService struct {
	tx        txProvider
	repo      meetingRepository
	students  studentLookup
	changes   changeLogWriter
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

func NewMeetingService(tx txProvider, repo meetingRepository, students studentLookup, changes changeLogWriter, validate *validator.Validate, clock Clock, logger *zap.Logger) *MeetingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeetingService{tx: tx, repo: repo, students: students, changes: changes, validator: validate, clock: clockOrSystem(clock), logger: logger}
}

// Create logs a meeting for an active student. HeldAt defaults to now.
func (s *MeetingService) Create(ctx context.Context, actor, studentID string, req CreateMeetingRequest) (*models.Meeting, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid meeting payload")
	}
	if _, err := s.students.Get(ctx, studentID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	meeting := &models.Meeting{
		StudentID:         &studentID,
		HeldAt:            now,
		TargetOrientation: req.TargetOrientation,
		Agreement:         req.Agreement,
		Notes:             req.Notes,
		CreatedAt:         now,
	}
	if req.HeldAt != nil {
		meeting.HeldAt = req.HeldAt.UTC()
	}

	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, meeting); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityMeeting, meeting.ID, fieldCreated, "", now)
		entry.NewValue = textPtr(studentID)
		return s.changes.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, internalOr(err, "failed to create meeting")
	}
	return meeting, nil
}

// ListByStudent returns the student's meetings, oldest first.
func (s *MeetingService) ListByStudent(ctx context.Context, studentID string) ([]models.Meeting, error) {
	meetings, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list meetings")
	}
	if meetings == nil {
		meetings = []models.Meeting{}
	}
	return meetings, nil
}

func (s *MeetingService) Delete(ctx context.Context, actor, id string) error {
	meeting, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load meeting")
	}

	now := s.clock.Now()
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityMeeting, id, fieldDeleted, "", now)
		entry.OldValue = meeting.StudentID
		return s.changes.Record(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "meeting not found")
		}
		return internalOr(err, "failed to delete meeting")
	}
	return nil
}
