package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	"github.com/noah-isme/rutas-academicas/internal/normalize"
	"github.com/noah-isme/rutas-academicas/internal/repository"
	"github.com/noah-isme/rutas-academicas/internal/schedule"
	"github.com/noah-isme/rutas-academicas/pkg/spreadsheet"
)

const importReason = "schedule import"

type courseStore interface {
	FindByKey(ctx context.Context, exec sqlx.ExtContext, courseID string, orientation *string) (*models.Course, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
	Update(ctx context.Context, exec sqlx.ExtContext, course *models.Course) error
}

type courseSourceStore interface {
	FindByKey(ctx context.Context, exec sqlx.ExtContext, courseRef string, tab *string, row int) (*models.CourseSource, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, src *models.CourseSource) error
	Update(ctx context.Context, exec sqlx.ExtContext, src *models.CourseSource) error
}

type importObserver interface {
	ObserveImport(summary models.ImportSummary, duration time.Duration)
}

// ImportOptions tunes a single schedule import.
type ImportOptions struct {
	Actor  string
	DryRun bool
}

// rowResult is the outcome of persisting one schedule row.
type rowResult struct {
	courseCreated bool
	courseUpdated bool
	sourceCreated bool
	sourceUpdated bool
	err           error
}

// ScheduleImportService loads the consolidated schedule into the catalog.
type ScheduleImportService struct {
	tx           txProvider
	courses      courseStore
	sources      courseSourceStore
	changes      changeLogWriter
	metrics      importObserver
	clock        Clock
	logger       *zap.Logger
	ensureSchema func(ctx context.Context, exec sqlx.ExecerContext) error
}

// NewScheduleImportService wires the importer.
func NewScheduleImportService(tx txProvider, courses courseStore, sources courseSourceStore, changes changeLogWriter, metrics importObserver, clock Clock, logger *zap.Logger) *ScheduleImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleImportService{
		tx:           tx,
		courses:      courses,
		sources:      sources,
		changes:      changes,
		metrics:      metrics,
		clock:        clockOrSystem(clock),
		logger:       logger,
		ensureSchema: repository.EnsureSchema,
	}
}

// ImportScheduleFile imports the workbook stored at path.
func (s *ScheduleImportService) ImportScheduleFile(ctx context.Context, path string, opts ImportOptions) models.ImportSummary {
	f, err := os.Open(path)
	if err != nil {
		return s.finish(time.Now(), failedSummary(fmt.Sprintf("open workbook: %v", err)), opts)
	}
	defer f.Close()
	return s.ImportSchedule(ctx, f, opts)
}

// ImportSchedule reads the consolidated schedule sheet from r and persists it.
// Problems are reported in the summary; nothing is returned as an error.
func (s *ScheduleImportService) ImportSchedule(ctx context.Context, r io.Reader, opts ImportOptions) models.ImportSummary {
	table, err := spreadsheet.ReadSheet(r, schedule.SheetName)
	if err != nil {
		return s.finish(time.Now(), failedSummary(err.Error()), opts)
	}
	return s.ImportTable(ctx, table, opts)
}

// ImportTable validates an already parsed sheet and persists it when clean.
func (s *ScheduleImportService) ImportTable(ctx context.Context, table *spreadsheet.Table, opts ImportOptions) models.ImportSummary {
	started := time.Now()
	rows, problems := schedule.Validate(table)
	if len(problems) > 0 {
		return s.finish(started, failedSummary(problems...), opts)
	}
	return s.ImportRows(ctx, rows, opts)
}

// ImportRows persists validated rows in one transaction, each row inside its
// own savepoint. A failing row is rolled back alone and reported.
func (s *ScheduleImportService) ImportRows(ctx context.Context, rows []schedule.Row, opts ImportOptions) models.ImportSummary {
	started := time.Now()
	summary := models.ImportSummary{Errors: []string{}}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return s.finish(started, failedSummary(fmt.Sprintf("begin transaction: %v", err)), opts)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := s.ensureSchema(ctx, tx); err != nil {
		return s.finish(started, failedSummary(fmt.Sprintf("ensure schema: %v", err)), opts)
	}

	now := s.clock.Now()
	for _, row := range rows {
		res := s.importRow(ctx, tx, row, opts.Actor, now)
		if res.err != nil {
			summary.Errors = append(summary.Errors, res.err.Error())
			continue
		}
		if res.courseCreated {
			summary.CreatedCourses++
		}
		if res.courseUpdated {
			summary.UpdatedCourses++
		}
		if res.sourceCreated {
			summary.CreatedSources++
		}
		if res.sourceUpdated {
			summary.UpdatedSources++
		}
	}

	done = true
	if opts.DryRun {
		if err := tx.Rollback(); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("rollback dry run: %v", err))
		}
		return s.finish(started, summary, opts)
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		errs := append(summary.Errors, fmt.Sprintf("commit: %v", err))
		return s.finish(started, models.ImportSummary{Errors: errs}, opts)
	}
	return s.finish(started, summary, opts)
}

func (s *ScheduleImportService) importRow(ctx context.Context, tx *sqlx.Tx, row schedule.Row, actor string, now time.Time) rowResult {
	courseID := normalize.Text(row.CourseID)
	if courseID == "" {
		return rowResult{err: fmt.Errorf("row %d: empty %s", row.Index, schedule.ColCourseID)}
	}

	savepoint := fmt.Sprintf("import_row_%d", row.Index)
	if err := repository.Savepoint(ctx, tx, savepoint); err != nil {
		return rowResult{err: fmt.Errorf("row %d: %w", row.Index, err)}
	}

	res := s.applyRow(ctx, tx, row, courseID, actor, now)
	if res.err != nil {
		if err := repository.RollbackTo(ctx, tx, savepoint); err != nil {
			s.logger.Warn("rollback to savepoint failed", zap.Int("row", row.Index), zap.Error(err))
		}
		_ = repository.Release(ctx, tx, savepoint)
		return rowResult{err: res.err}
	}
	if err := repository.Release(ctx, tx, savepoint); err != nil {
		return rowResult{err: fmt.Errorf("row %d: %w", row.Index, err)}
	}
	return res
}

func (s *ScheduleImportService) applyRow(ctx context.Context, tx *sqlx.Tx, row schedule.Row, courseID, actor string, now time.Time) rowResult {
	var res rowResult
	incoming := courseFromRow(row, courseID)

	existing, err := s.courses.FindByKey(ctx, tx, courseID, row.Orientation)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.courses.Insert(ctx, tx, incoming); err != nil {
			res.err = fmt.Errorf("row %d: course %s: %w", row.Index, courseID, err)
			return res
		}
		entry := newChangeEntry(actor, models.EntityCourse, incoming.ID, fieldCreated, importReason, now)
		entry.NewValue = textPtr(courseID)
		if err := s.changes.Record(ctx, tx, entry); err != nil {
			res.err = fmt.Errorf("row %d: course %s: %w", row.Index, courseID, err)
			return res
		}
		res.courseCreated = true
	case err != nil:
		res.err = fmt.Errorf("row %d: course %s: %w", row.Index, courseID, err)
		return res
	default:
		incoming.ID = existing.ID
		incoming.CreatedAt = existing.CreatedAt
		changes := diffCourse(existing, incoming)
		if len(changes) > 0 {
			if err := s.courses.Update(ctx, tx, incoming); err != nil {
				res.err = fmt.Errorf("row %d: course %s: %w", row.Index, courseID, err)
				return res
			}
			if err := changes.record(ctx, s.changes, tx, actor, models.EntityCourse, incoming.ID, importReason, now); err != nil {
				res.err = fmt.Errorf("row %d: course %s: %w", row.Index, courseID, err)
				return res
			}
			res.courseUpdated = true
		}
	}

	src, err := s.sources.FindByKey(ctx, tx, incoming.ID, row.SourceTab, row.SourceRow())
	switch {
	case errors.Is(err, sql.ErrNoRows):
		src = &models.CourseSource{
			CourseRef:         incoming.ID,
			SourceTab:         row.SourceTab,
			SourceOrientation: row.Orientation,
			Module:            row.Module,
			SourceRow:         row.SourceRow(),
		}
		if err := s.sources.Insert(ctx, tx, src); err != nil {
			res.err = fmt.Errorf("row %d: source of course %s: %w", row.Index, courseID, err)
			return res
		}
		res.sourceCreated = true
	case err != nil:
		res.err = fmt.Errorf("row %d: source of course %s: %w", row.Index, courseID, err)
		return res
	default:
		if !equalText(src.SourceOrientation, row.Orientation) || !equalText(src.Module, row.Module) {
			src.SourceOrientation = row.Orientation
			src.Module = row.Module
			if err := s.sources.Update(ctx, tx, src); err != nil {
				res.err = fmt.Errorf("row %d: source of course %s: %w", row.Index, courseID, err)
				return res
			}
			res.sourceUpdated = true
		}
	}
	return res
}

func (s *ScheduleImportService) finish(started time.Time, summary models.ImportSummary, opts ImportOptions) models.ImportSummary {
	if summary.Errors == nil {
		summary.Errors = []string{}
	}
	duration := time.Since(started)
	if s.metrics != nil && !opts.DryRun {
		s.metrics.ObserveImport(summary, duration)
	}
	s.logger.Info("schedule import finished",
		zap.String("actor", opts.Actor),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("created_courses", summary.CreatedCourses),
		zap.Int("updated_courses", summary.UpdatedCourses),
		zap.Int("created_sources", summary.CreatedSources),
		zap.Int("updated_sources", summary.UpdatedSources),
		zap.Int("errors", len(summary.Errors)),
		zap.Duration("duration", duration),
	)
	return summary
}

func failedSummary(problems ...string) models.ImportSummary {
	return models.ImportSummary{Errors: append([]string{}, problems...)}
}

func courseFromRow(row schedule.Row, courseID string) *models.Course {
	return &models.Course{
		CourseID:    courseID,
		Program:     row.Program,
		Year:        row.Year,
		Subject:     row.Subject,
		StartDate:   row.Start,
		EndDate:     row.End,
		Weekday:     row.Weekday,
		TimeBlock:   row.TimeBlock,
		Format:      row.Format,
		Hours:       row.Hours,
		SubjectType: row.SubjectType,
		Orientation: row.Orientation,
		Comments:    row.Comments,
	}
}

// diffCourse lists the catalog fields whose stored value differs from incoming.
func diffCourse(stored, incoming *models.Course) changeSet {
	var changes changeSet
	changes.compare("program", stored.Program, incoming.Program)
	changes.compare("year", intText(stored.Year), intText(incoming.Year))
	changes.compare("subject", stored.Subject, incoming.Subject)
	changes.compare("start_date", dateText(stored.StartDate), dateText(incoming.StartDate))
	changes.compare("end_date", dateText(stored.EndDate), dateText(incoming.EndDate))
	changes.compare("weekday", stored.Weekday, incoming.Weekday)
	changes.compare("time_block", stored.TimeBlock, incoming.TimeBlock)
	changes.compare("format", stored.Format, incoming.Format)
	changes.compare("hours", floatText(stored.Hours), floatText(incoming.Hours))
	changes.compare("subject_type", stored.SubjectType, incoming.SubjectType)
	changes.compare("orientation", stored.Orientation, incoming.Orientation)
	changes.compare("comments", stored.Comments, incoming.Comments)
	return changes
}
