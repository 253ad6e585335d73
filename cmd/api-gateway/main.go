package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/rutas-academicas/api/swagger"
	"github.com/noah-isme/rutas-academicas/internal/app"
	"github.com/noah-isme/rutas-academicas/internal/handler"
	internalmiddleware "github.com/noah-isme/rutas-academicas/internal/middleware"
	"github.com/noah-isme/rutas-academicas/pkg/config"
	"github.com/noah-isme/rutas-academicas/pkg/logger"
	corsmiddleware "github.com/noah-isme/rutas-academicas/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/rutas-academicas/pkg/middleware/requestid"
)

// @title Rutas Académicas API
// @version 1.0.0
// @description Schedule import, study plans and elective progress tracking for MBA/EMBA students
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise application", "error", err)
	}
	defer application.Close()
	application.StartWorkers(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(application.Metrics))

	system := handler.NewMetricsHandler(application.Metrics, application.Progress)
	r.GET("/health", system.Health)
	r.GET("/ready", system.Ready)
	r.GET("/metrics", system.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, internalmiddleware.Actor(cfg.JWT.Enabled, application.Tokens))
	handler.Register(api, handler.Handlers{
		Imports:     handler.NewImportHandler(application.Runs, application.Students, cfg.Imports.MaxUploadBytes),
		Students:    handler.NewStudentHandler(application.Students),
		Meetings:    handler.NewMeetingHandler(application.Meetings),
		Plans:       handler.NewPlanHandler(application.Plans),
		Enrollments: handler.NewEnrollmentHandler(application.Enrollments),
		Progress:    handler.NewProgressHandler(application.Progress),
		Audit:       handler.NewAuditHandler(application.ChangeLog),
		Courses:     handler.NewCourseHandler(application.Courses),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "auth", cfg.JWT.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}
