package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type planRepository interface {
	ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error)
	FindVersion(ctx context.Context, id string) (*models.PlanVersion, error)
	FindOpen(ctx context.Context, exec sqlx.ExtContext, studentID string) (*models.PlanVersion, error)
	CreateVersion(ctx context.Context, exec sqlx.ExtContext, version *models.PlanVersion) error
	CloseVersion(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
	AddItem(ctx context.Context, exec sqlx.ExtContext, item *models.StudentPlanItem) error
	FindItem(ctx context.Context, planID, itemID string) (*models.StudentPlanItem, error)
	DeleteItem(ctx context.Context, exec sqlx.ExtContext, planID, itemID string) error
	HasItem(ctx context.Context, planID, courseRef string) (bool, error)
	ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// PlanVersionRequest carries the optional comment of a new version.
type PlanVersionRequest struct {
	Comment *string `json:"comment" validate:"omitempty,max=1000"`
}

// AddPlanItemRequest adds a course to a plan version.
type AddPlanItemRequest struct {
	CourseRef string               `json:"course_ref" validate:"required"`
	Priority  *int                 `json:"priority" validate:"omitempty,gte=0"`
	State     models.PlanItemState `json:"state" validate:"omitempty,oneof=planned backup"`
	Note      *string              `json:"note"`
}

// PlanService manages versioned study plans. Versions move from open to
// closed and never back.
type PlanService struct {
	tx        txProvider
	repo      planRepository
	students  studentLookup
	courses   courseFinder
	changes   changeLogWriter
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

func NewPlanService(tx txProvider, repo planRepository, students studentLookup, courses courseFinder, changes changeLogWriter, validate *validator.Validate, clock Clock, logger *zap.Logger) *PlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{tx: tx, repo: repo, students: students, courses: courses, changes: changes, validator: validate, clock: clockOrSystem(clock), logger: logger}
}

// ListVersions returns the student's versions, newest first.
func (s *PlanService) ListVersions(ctx context.Context, studentID string) ([]models.PlanVersion, error) {
	versions, err := s.repo.ListVersions(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan versions")
	}
	if versions == nil {
		versions = []models.PlanVersion{}
	}
	return versions, nil
}

// CreateVersion opens the student's next version. It is rejected while another version is open.
func (s *PlanService) CreateVersion(ctx context.Context, actor, studentID string, req PlanVersionRequest) (*models.PlanVersion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}
	if _, err := s.students.Get(ctx, studentID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	version := &models.PlanVersion{StudentID: studentID, ValidFrom: now, Comment: req.Comment}
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		open, err := s.repo.FindOpen(ctx, tx, studentID)
		switch {
		case err == nil:
			return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("plan version v%d is still open", open.VersionNum))
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		return s.openVersion(ctx, tx, actor, version, now)
	})
	if err != nil {
		return nil, internalOr(err, "failed to create plan version")
	}
	return version, nil
}

// CloseAndSucceed closes the open version and opens its successor atomically.
// Items are not carried over.
func (s *PlanService) CloseAndSucceed(ctx context.Context, actor, studentID string, req PlanVersionRequest) (*models.PlanVersion, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}
	if _, err := s.students.Get(ctx, studentID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	successor := &models.PlanVersion{StudentID: studentID, ValidFrom: now, Comment: req.Comment}
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		open, err := s.repo.FindOpen(ctx, tx, studentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no open plan version")
			}
			return err
		}
		if err := s.repo.CloseVersion(ctx, tx, open.ID, now); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityPlanVersion, open.ID, "valid_until", "superseded", now)
		entry.NewValue = textPtr(now.Format(time.RFC3339))
		if err := s.changes.Record(ctx, tx, entry); err != nil {
			return err
		}
		return s.openVersion(ctx, tx, actor, successor, now)
	})
	if err != nil {
		return nil, internalOr(err, "failed to close plan version")
	}
	return successor, nil
}

func (s *PlanService) openVersion(ctx context.Context, tx *sqlx.Tx, actor string, version *models.PlanVersion, now time.Time) error {
	if err := s.repo.CreateVersion(ctx, tx, version); err != nil {
		return err
	}
	entry := newChangeEntry(actor, models.EntityPlanVersion, version.ID, fieldCreated, "", now)
	entry.NewValue = textPtr(fmt.Sprintf("v%d", version.VersionNum))
	return s.changes.Record(ctx, tx, entry)
}

// AddItem appends a course to an open plan version.
func (s *PlanService) AddItem(ctx context.Context, actor, planID string, req AddPlanItemRequest) (*models.StudentPlanItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan item payload")
	}
	version, err := s.findVersion(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !version.Open() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "plan version is closed")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	exists, err := s.repo.HasItem(ctx, planID, req.CourseRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check plan items")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course already in plan version")
	}

	item := &models.StudentPlanItem{
		PlanVersionID: planID,
		CourseRef:     req.CourseRef,
		Priority:      req.Priority,
		State:         req.State,
		Note:          req.Note,
	}
	if item.State == "" {
		item.State = models.PlanItemPlanned
	}

	now := s.clock.Now()
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.AddItem(ctx, tx, item); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityPlanItem, item.ID, fieldCreated, "", now)
		entry.NewValue = textPtr(fmt.Sprintf("%s (%s)", item.CourseRef, item.State))
		return s.changes.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, internalOr(err, "failed to add plan item")
	}
	return item, nil
}

// RemoveItem drops a course from an open plan version.
func (s *PlanService) RemoveItem(ctx context.Context, actor, planID, itemID string) error {
	version, err := s.findVersion(ctx, planID)
	if err != nil {
		return err
	}
	if !version.Open() {
		return appErrors.Clone(appErrors.ErrConflict, "plan version is closed")
	}
	item, err := s.repo.FindItem(ctx, planID, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "plan item not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan item")
	}

	now := s.clock.Now()
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.DeleteItem(ctx, tx, planID, itemID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "plan item not found")
			}
			return err
		}
		entry := newChangeEntry(actor, models.EntityPlanItem, itemID, fieldDeleted, "", now)
		entry.OldValue = textPtr(fmt.Sprintf("%s (%s)", item.CourseRef, item.State))
		return s.changes.Record(ctx, tx, entry)
	})
	if err != nil {
		return internalOr(err, "failed to remove plan item")
	}
	return nil
}

// ListItems returns the items of a plan version with catalog details.
func (s *PlanService) ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error) {
	if _, err := s.findVersion(ctx, planID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan items")
	}
	if items == nil {
		items = []models.PlanItemDetail{}
	}
	return items, nil
}

func (s *PlanService) findVersion(ctx context.Context, planID string) (*models.PlanVersion, error) {
	version, err := s.repo.FindVersion(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan version not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan version")
	}
	return version, nil
}
