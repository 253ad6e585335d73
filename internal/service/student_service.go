package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/normalize"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
	"github.com/noah-isme/rutas-academicas/pkg/spreadsheet"
)

const (
	softDeleteReason    = "soft delete"
	studentImportReason = "student import"
	statusActive        = "activo"
	statusDeleted       = "eliminado"
)

// Bulk upload headers, matched case-insensitively.
const (
	importColFirstName = "nombre"
	importColLastName  = "apellido"
	importColEmail     = "email"
	importColProgram   = "programa"
	importColCohort    = "cohorte"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	Update(ctx context.Context, exec sqlx.ExtContext, student *models.Student) error
	SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string, at time.Time) error
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	Program   string  `json:"program" validate:"required,oneof=MBA EMBA"`
	Cohort    *string `json:"cohort"`
	Extra     *string `json:"extra"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Email     string  `json:"email" validate:"required,email"`
	Program   string  `json:"program" validate:"required,oneof=MBA EMBA"`
	Cohort    *string `json:"cohort"`
	Extra     *string `json:"extra"`
}

// StudentService handles student use-cases.
type StudentService struct {
	tx        txProvider
	repo      studentRepository
	changes   changeLogWriter
	validator *validator.Validate
	clock     Clock
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(tx txProvider, repo studentRepository, changes changeLogWriter, validate *validator.Validate, clock Clock, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{tx: tx, repo: repo, changes: changes, validator: validate, clock: clockOrSystem(clock), logger: logger}
}

// List returns active students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	if students == nil {
		students = []models.Student{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an active student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

// Create registers a new student. Program defaults to MBA.
func (s *StudentService) Create(ctx context.Context, actor string, req CreateStudentRequest) (*models.Student, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if strings.TrimSpace(req.Program) == "" {
		req.Program = models.ProgramMBA
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if err := s.ensureEmailFree(ctx, req.Email, ""); err != nil {
		return nil, err
	}

	student := &models.Student{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     req.Email,
		Program:   req.Program,
		Cohort:    req.Cohort,
		Extra:     req.Extra,
		Active:    true,
	}
	if err := s.create(ctx, actor, student, ""); err != nil {
		return nil, internalOr(err, "failed to create student")
	}
	return student, nil
}

func (s *StudentService) create(ctx context.Context, actor string, student *models.Student, reason string) error {
	now := s.clock.Now()
	student.CreatedAt = now
	student.UpdatedAt = now
	return withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Create(ctx, tx, student); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityStudent, student.ID, fieldCreated, reason, now)
		entry.NewValue = textPtr(student.Email)
		return s.changes.Record(ctx, tx, entry)
	})
}

// Update modifies a student, logging one entry per changed field.
func (s *StudentService) Update(ctx context.Context, actor, id string, req UpdateStudentRequest) (*models.Student, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Email != existing.Email {
		if err := s.ensureEmailFree(ctx, req.Email, id); err != nil {
			return nil, err
		}
	}

	updated := *existing
	updated.FirstName = strings.TrimSpace(req.FirstName)
	updated.LastName = strings.TrimSpace(req.LastName)
	updated.Email = req.Email
	updated.Program = req.Program
	updated.Cohort = req.Cohort
	updated.Extra = req.Extra

	var changes changeSet
	changes.compare("first_name", &existing.FirstName, &updated.FirstName)
	changes.compare("last_name", &existing.LastName, &updated.LastName)
	changes.compare("email", &existing.Email, &updated.Email)
	changes.compare("program", &existing.Program, &updated.Program)
	changes.compare("cohort", existing.Cohort, updated.Cohort)
	changes.compare("extra", existing.Extra, updated.Extra)
	if len(changes) == 0 {
		return existing, nil
	}

	now := s.clock.Now()
	updated.UpdatedAt = now
	err = withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.Update(ctx, tx, &updated); err != nil {
			return err
		}
		return changes.record(ctx, s.changes, tx, actor, models.EntityStudent, id, "", now)
	})
	if err != nil {
		return nil, internalOr(err, "failed to update student")
	}
	return &updated, nil
}

// Delete soft-deletes a student. Meetings, plans and enrollments are kept.
func (s *StudentService) Delete(ctx context.Context, actor, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	now := s.clock.Now()
	err := withTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.repo.SoftDelete(ctx, tx, id, now); err != nil {
			return err
		}
		entry := newChangeEntry(actor, models.EntityStudent, id, fieldStatus, softDeleteReason, now)
		entry.OldValue = textPtr(statusActive)
		entry.NewValue = textPtr(statusDeleted)
		return s.changes.Record(ctx, tx, entry)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return internalOr(err, "failed to delete student")
	}
	return nil
}

// Import creates students from a CSV or xlsx upload. Problems are reported
// per row; rows without problems are created.
func (s *StudentService) Import(ctx context.Context, actor string, r io.Reader, filename string) models.StudentImportSummary {
	summary := models.StudentImportSummary{Errors: []string{}}
	table, err := spreadsheet.ReadAny(r, filename)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		return summary
	}

	var missing []string
	for _, col := range []string{importColFirstName, importColLastName, importColEmail} {
		if table.IndexFold(col) < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		summary.Errors = append(summary.Errors, fmt.Sprintf("missing required columns: %v", missing))
		return summary
	}

	cell := func(row int, col string) string {
		i := table.IndexFold(col)
		if i < 0 {
			return ""
		}
		return table.Rows[row][i]
	}

	seen := make(map[string]bool)
	for i := range table.Rows {
		firstName := normalize.Key(cell(i, importColFirstName))
		lastName := normalize.Key(cell(i, importColLastName))
		email := strings.ToLower(normalize.Key(cell(i, importColEmail)))
		program := strings.ToUpper(normalize.Key(cell(i, importColProgram)))
		if program == "" {
			program = models.ProgramMBA
		}

		switch {
		case email == "":
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: email is required", i))
			continue
		case firstName == "" || lastName == "":
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: name is required", i))
			continue
		case seen[email]:
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: duplicate email %s in file", i, email))
			continue
		}
		seen[email] = true

		req := CreateStudentRequest{FirstName: firstName, LastName: lastName, Email: email, Program: program, Cohort: normalize.String(cell(i, importColCohort))}
		if err := s.validator.Struct(req); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: invalid student: %v", i, err))
			continue
		}
		exists, err := s.repo.ExistsByEmail(ctx, email, "")
		if err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		if exists {
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: email %s already registered", i, email))
			continue
		}

		student := &models.Student{FirstName: firstName, LastName: lastName, Email: email, Program: program, Cohort: req.Cohort, Active: true}
		if err := s.create(ctx, actor, student, studentImportReason); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %v", i, err))
			continue
		}
		summary.Created++
	}

	s.logger.Info("student import finished", zap.String("actor", actor), zap.Int("created", summary.Created), zap.Int("errors", len(summary.Errors)))
	return summary
}

func (s *StudentService) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}
