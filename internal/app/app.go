package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/rutas-academicas/internal/repository"
	"github.com/noah-isme/rutas-academicas/internal/service"
	"github.com/noah-isme/rutas-academicas/pkg/cache"
	"github.com/noah-isme/rutas-academicas/pkg/config"
	"github.com/noah-isme/rutas-academicas/pkg/database"
	"github.com/noah-isme/rutas-academicas/pkg/jobs"
	"github.com/noah-isme/rutas-academicas/pkg/storage"
)

// spoolMaxAge bounds how long an unprocessed upload may sit in the spool.
const spoolMaxAge = 24 * time.Hour

// App owns the storage handles and the services built on them. The HTTP
// server and the CLI share it.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	redis *redis.Client
	queue *jobs.Queue

	Reports *repository.ReportRepository
	Metrics *service.MetricsService

	Courses     *service.CourseService
	Schedule    *service.ScheduleImportService
	Runs        *service.ImportRunService
	Students    *service.StudentService
	Meetings    *service.MeetingService
	Plans       *service.PlanService
	Enrollments *service.EnrollmentService
	Progress    *service.ProgressService
	ChangeLog   *service.ChangeLogService
	Tokens      *service.TokenService
}

// New opens the database, makes sure the schema exists and wires the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repository.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Metrics: service.NewMetricsService()}

	if cfg.Imports.ReportsEnabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, keeping import reports in memory", zap.Error(err))
		} else {
			a.redis = client
		}
	}
	a.Reports = repository.NewReportRepository(a.redis, cfg.Imports.ReportTTL, logger)

	validate := validator.New()
	clock := service.SystemClock

	courseRepo := repository.NewCourseRepository(db)
	sourceRepo := repository.NewCourseSourceRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)
	planRepo := repository.NewPlanRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	changeRepo := repository.NewChangeLogRepository(db)

	a.Courses = service.NewCourseService(courseRepo)
	a.Schedule = service.NewScheduleImportService(db, courseRepo, sourceRepo, changeRepo, a.Metrics, clock, logger.Named("schedule_import"))
	a.Students = service.NewStudentService(db, studentRepo, changeRepo, validate, clock, logger.Named("students"))
	a.Meetings = service.NewMeetingService(db, meetingRepo, a.Students, changeRepo, validate, clock, logger.Named("meetings"))
	a.Plans = service.NewPlanService(db, planRepo, a.Students, courseRepo, changeRepo, validate, clock, logger.Named("plans"))
	a.Progress = service.NewProgressService(planRepo, progressRepo, studentRepo, cfg.Rules, clock, logger.Named("progress"))
	a.Enrollments = service.NewEnrollmentService(db, enrollmentRepo, a.Students, courseRepo, a.Plans, a.Progress, changeRepo, validate, clock, logger.Named("enrollments"))
	a.ChangeLog = service.NewChangeLogService(changeRepo)
	a.Tokens = service.NewTokenService(cfg.JWT, clock)

	spool, err := storage.NewLocalStorage(cfg.Imports.UploadDir)
	if err != nil {
		logger.Warn("upload spool unavailable, async imports disabled", zap.Error(err))
		a.Runs = service.NewImportRunService(a.Schedule, a.Reports, nil, a.Metrics, clock, logger.Named("import_runs"))
	} else {
		a.Runs = service.NewImportRunService(a.Schedule, a.Reports, spool, a.Metrics, clock, logger.Named("import_runs"))
	}
	return a, nil
}

// StartWorkers starts the background import queue. Only long-running
// processes call it.
func (a *App) StartWorkers(ctx context.Context) {
	a.Runs.PurgeSpool(spoolMaxAge)
	a.queue = jobs.NewQueue("imports", a.Runs.HandleJob, jobs.QueueConfig{
		BufferSize: a.Config.Imports.QueueBuffer,
		Logger:     a.Logger.Named("queue"),
	})
	a.queue.Start(ctx)
	a.Runs.AttachQueue(a.queue)
}

// Close stops workers and releases every handle.
func (a *App) Close() {
	if a.queue != nil {
		a.queue.Stop()
	}
	if err := a.Reports.Close(); err != nil {
		a.Logger.Warn("close report store", zap.Error(err))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("close database", zap.Error(err))
	}
}
