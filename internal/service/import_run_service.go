package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/models"
	appErrors "github.com/noah-isme/rutas-academicas/pkg/errors"
	"github.com/noah-isme/rutas-academicas/pkg/jobs"
)

// JobTypeScheduleImport tags queued schedule imports.
const JobTypeScheduleImport = "schedule_import"

const reportKindSchedule = "schedule"

type scheduleImporter interface {
	ImportSchedule(ctx context.Context, r io.Reader, opts ImportOptions) models.ImportSummary
}

type reportStore interface {
	Save(ctx context.Context, report *models.ImportReport) error
	Get(ctx context.Context, id string) (*models.ImportReport, error)
}

type uploadSpool interface {
	SaveStream(name string, r io.Reader) (int64, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type reportLookupObserver interface {
	RecordReportLookup(hit bool)
}

type scheduleJob struct {
	ReportID string
	Spool    string
	Options  ImportOptions
}

// ImportRunService tracks schedule import runs: it executes them inline or
// through the serial job queue and keeps their reports.
type ImportRunService struct {
	importer scheduleImporter
	reports  reportStore
	spool    uploadSpool
	queue    jobEnqueuer
	metrics  reportLookupObserver
	clock    Clock
	logger   *zap.Logger
}

// NewImportRunService constructs the run tracker. The queue is attached later
// because the queue itself needs HandleJob.
func NewImportRunService(importer scheduleImporter, reports reportStore, spool uploadSpool, metrics reportLookupObserver, clock Clock, logger *zap.Logger) *ImportRunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportRunService{
		importer: importer,
		reports:  reports,
		spool:    spool,
		metrics:  metrics,
		clock:    clockOrSystem(clock),
		logger:   logger,
	}
}

// AttachQueue enables asynchronous runs.
func (s *ImportRunService) AttachQueue(queue jobEnqueuer) {
	s.queue = queue
}

// RunSchedule imports synchronously and stores the finished report.
func (s *ImportRunService) RunSchedule(ctx context.Context, r io.Reader, filename string, opts ImportOptions) *models.ImportReport {
	report := s.newReport(filename, opts, models.ImportRunning)
	summary := s.importer.ImportSchedule(ctx, r, opts)
	s.complete(ctx, report, summary)
	return report
}

// EnqueueSchedule spools the upload and queues it. The returned report is in
// the queued state; poll Get for the outcome.
func (s *ImportRunService) EnqueueSchedule(ctx context.Context, r io.Reader, filename string, opts ImportOptions) (*models.ImportReport, error) {
	if s.queue == nil || s.spool == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "asynchronous imports are not enabled")
	}

	report := s.newReport(filename, opts, models.ImportQueued)
	spoolName := report.ID + ".xlsx"
	if _, err := s.spool.SaveStream(spoolName, r); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	if err := s.reports.Save(ctx, report); err != nil {
		_ = s.spool.Delete(spoolName)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store import report")
	}

	job := jobs.Job{
		ID:      report.ID,
		Type:    JobTypeScheduleImport,
		Payload: scheduleJob{ReportID: report.ID, Spool: spoolName, Options: opts},
	}
	if err := s.queue.Enqueue(job); err != nil {
		_ = s.spool.Delete(spoolName)
		return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, "import queue unavailable")
	}
	s.logger.Info("schedule import queued", zap.String("report_id", report.ID), zap.String("filename", filename))
	return report, nil
}

// HandleJob is the queue handler for schedule imports.
func (s *ImportRunService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(scheduleJob)
	if !ok {
		return fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload)
	}
	defer func() {
		if err := s.spool.Delete(payload.Spool); err != nil {
			s.logger.Warn("failed to delete spooled upload", zap.String("spool", payload.Spool), zap.Error(err))
		}
	}()

	report, err := s.reports.Get(ctx, payload.ReportID)
	if err != nil {
		report = &models.ImportReport{ID: payload.ReportID, Kind: reportKindSchedule, Actor: payload.Options.Actor, DryRun: payload.Options.DryRun, StartedAt: s.clock.Now()}
	}
	report.Status = models.ImportRunning
	report.StartedAt = s.clock.Now()
	if err := s.reports.Save(ctx, report); err != nil {
		s.logger.Warn("failed to mark import running", zap.String("report_id", report.ID), zap.Error(err))
	}

	f, err := s.spool.Open(payload.Spool)
	if err != nil {
		s.complete(ctx, report, failedSummary(fmt.Sprintf("open spooled upload: %v", err)))
		return err
	}
	defer f.Close()

	summary := s.importer.ImportSchedule(ctx, f, payload.Options)
	s.complete(ctx, report, summary)
	if !summary.OK() {
		return fmt.Errorf("schedule import %s finished with %d errors", report.ID, len(summary.Errors))
	}
	return nil
}

// Get returns a stored report.
func (s *ImportRunService) Get(ctx context.Context, id string) (*models.ImportReport, error) {
	report, err := s.reports.Get(ctx, id)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.observeLookup(false)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "import report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load import report")
	}
	s.observeLookup(true)
	return report, nil
}

// PurgeSpool removes uploads left behind by runs that never finished.
func (s *ImportRunService) PurgeSpool(maxAge time.Duration) {
	if s.spool == nil {
		return
	}
	removed, err := s.spool.CleanupOlderThan(maxAge)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("spool cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("spool cleaned", zap.Int("removed", len(removed)))
	}
}

func (s *ImportRunService) newReport(filename string, opts ImportOptions, status models.ImportStatus) *models.ImportReport {
	return &models.ImportReport{
		ID:        uuid.NewString(),
		Kind:      reportKindSchedule,
		Status:    status,
		Filename:  filename,
		Actor:     opts.Actor,
		DryRun:    opts.DryRun,
		StartedAt: s.clock.Now(),
	}
}

func (s *ImportRunService) complete(ctx context.Context, report *models.ImportReport, summary models.ImportSummary) {
	finished := s.clock.Now()
	report.Status = models.ImportFinished
	report.Summary = &summary
	report.FinishedAt = &finished
	if err := s.reports.Save(ctx, report); err != nil {
		s.logger.Warn("failed to store import report", zap.String("report_id", report.ID), zap.Error(err))
	}
}

func (s *ImportRunService) observeLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordReportLookup(hit)
	}
}
