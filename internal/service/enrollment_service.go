package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
)

type enrollmentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Exists(ctx context.Context, exec sqlx.ExtContext, studentID, courseRef string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Update(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type planItemLister interface {
	ListItems(ctx context.Context, planID string) ([]models.PlanItemDetail, error)
}

type currentPlanResolver interface {
	CurrentPlan(ctx context.Context, studentID string) (*models.PlanVersion, error)
}

// CreateEnrollmentRequest registers a student in a course.
type CreateEnrollmentRequest struct {
	CourseRef    string                  `json:"course_ref" validate:"required"`
	Status       models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=planned registered completed withdrawn failed"`
	Grade        *string                 `json:"grade"`
	GradeNumeric *float64                `json:"grade_numeric" validate:"omitempty,gte=0"`
}

// UpdateEnrollmentRequest changes status or grades. Nil fields are left alone.
type UpdateEnrollmentRequest struct {
	Status       *models.EnrollmentStatus `json:"status" validate:"omitempty,oneof=planned registered completed withdrawn failed"`
	Grade        *string                  `json:"grade"`
	GradeNumeric *float64                 `json:"grade_numeric" validate:"omitempty,gte=0"`
}

// EnrollmentService manages enrollments. Any status may follow any other.
type EnrollmentService struct {
	tx        txProvider
	repo      enrollmentRepository
	students  studentLookup
	courses   courseFinder
	plans     planItemLister
	current   currentPlanResolver
	changes   changeLogWriter
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

func NewEnrollmentService(tx txProvider, repo enrollmentRepository, students studentLookup, courses courseFinder, plans planItemLister, current currentPlanResolver, changes changeLogWriter, validate *validator.Validate, clock Clock, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:        tx,
		repo:      repo,
		students:  students,
		courses:   courses,
		plans:     plans,
		current:   current,
		changes:   changes,
		validator: validate,
		clock:     clockOrSystem(clock),
		logger:    logger,
	}
}

// ListByStudent returns the student's enrollments with catalog details.
func (s *EnrollmentService) ListByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	enrollments, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	return enrollments, nil
}

// Create enrolls a student once per course. Entering completed stamps the change time.
func (s *EnrollmentService) Create(ctx context.Context, actor, studentID string, req CreateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.students.Get(ctx, studentID); err != nil {
		return nil, err
	}
	if _, err := s.courses.FindByID(ctx, req.CourseRef); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	now := s.clock.Now()
	enrollment := &models.Enrollment{
		StudentID:    studentID,
		CourseRef:    req.CourseRef,
		Status:       req.Status,
		Grade:        req.Grade,
		GradeNumeric: req.GradeNumeric,
		RegisteredAt: now,
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentPlanned
	}
	if enrollment.Status == models.EnrollmentCompleted {
		enrollment.StatusChangedAt = &now
	}

	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		exists, err := s.repo.Exists(ctx, tx, studentID, req.CourseRef)
		if err != nil {
			return err
		}
		if exists {
			return appErrors.Clone(appErrors.ErrConflict, "student already enrolled in course")
		}
		return s.insert(ctx, tx, actor, enrollment, "")
	})
	if err != nil {
		return nil, internalOr(err, "failed to create enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) insert(ctx context.Context, tx *sqlx.Tx, actor string, enrollment *models.Enrollment, reason string) error {
	if err := s.repo.Create(ctx, tx, enrollment); err != nil {
		return err
	}
	entry := newChangeEntry(actor, models.EntityEnrollment, enrollment.ID, fieldCreated, reason, enrollment.RegisteredAt)
	entry.NewValue = textPtr(string(enrollment.Status))
	return s.changes.Record(ctx, tx, entry)
}

// Update applies status and grade changes, logging each changed field.
func (s *EnrollmentService) Update(ctx context.Context, actor, id string, req UpdateEnrollmentRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	existing, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if req.Status != nil {
		updated.Status = *req.Status
	}
	if req.Grade != nil {
		updated.Grade = req.Grade
	}
	if req.GradeNumeric != nil {
		updated.GradeNumeric = req.GradeNumeric
	}

	var changes changeSet
	oldStatus, newStatus := string(existing.Status), string(updated.Status)
	changes.compare(fieldStatus, &oldStatus, &newStatus)
	changes.compare("grade", existing.Grade, updated.Grade)
	changes.compare("grade_numeric", floatText(existing.GradeNumeric), floatText(updated.GradeNumeric))
	if len(changes) == 0 {
		return existing, nil
	}

	now := s.clock.Now()
	if updated.Status != existing.Status && updated.Status == models.EnrollmentCompleted {
		updated.StatusChangedAt = &now
	}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Update(ctx, tx, &updated); err != nil {
			return err
		}
		return changes.record(ctx, s.changes, tx, actor, models.EntityEnrollment, id, "", now)
	})
	if err != nil {
		return nil, internalOr(err, "failed to update enrollment")
	}
	return &updated, nil
}

func (s *EnrollmentService) Delete(ctx context.Context, actor, id string) error {
	existing, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Delete(ctx, tx, id); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityEnrollment, id, fieldDeleted, "", now)
		entry.OldValue = textPtr(string(existing.Status))
		return s.changes.Record(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return internalOr(err, "failed to delete enrollment")
	}
	return nil
}

// CreateFromCurrentPlan enrolls the student as planned in every planned item
// of the current plan that has no enrollment yet.
func (s *EnrollmentService) CreateFromCurrentPlan(ctx context.Context, actor, studentID string) ([]models.Enrollment, error) {
	if _, err := s.students.Get(ctx, studentID); err != nil {
		return nil, err
	}
	plan, err := s.current.CurrentPlan(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no current plan")
	}
	items, err := s.plans.ListItems(ctx, plan.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan items")
	}

	now := s.clock.Now()
	reason := fmt.Sprintf("created from plan v%d", plan.VersionNum)
	created := []models.Enrollment{}
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		for _, item := range items {
			if item.State != models.PlanItemPlanned {
				continue
			}
			exists, err := s.repo.Exists(ctx, tx, studentID, item.CourseRef)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			enrollment := &models.Enrollment{
				StudentID:    studentID,
				CourseRef:    item.CourseRef,
				Status:       models.EnrollmentPlanned,
				RegisteredAt: now,
			}
			if err := s.insert(ctx, tx, actor, enrollment, reason); err != nil {
				return err
			}
			created = append(created, *enrollment)
		}
		return nil
	})
	if err != nil {
		return nil, internalOr(err, "failed to create enrollments from plan")
	}
	s.logger.Info("enrollments created from plan", zap.String("student_id", studentID), zap.Int("plan_version", plan.VersionNum), zap.Int("created", len(created)))
	return created, nil
}

func (s *EnrollmentService) find(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}
