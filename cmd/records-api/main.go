package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-records-api/api/swagger"
	"github.com/noah-isme/sma-records-api/internal/handler"
	"github.com/noah-isme/sma-records-api/internal/middleware"
	"github.com/noah-isme/sma-records-api/internal/models"
	"github.com/noah-isme/sma-records-api/internal/repository"
	"github.com/noah-isme/sma-records-api/internal/service"
	"github.com/noah-isme/sma-records-api/pkg/cache"
	"github.com/noah-isme/sma-records-api/pkg/config"
	"github.com/noah-isme/sma-records-api/pkg/database"
	"github.com/noah-isme/sma-records-api/pkg/events"
	"github.com/noah-isme/sma-records-api/pkg/jobs"
	"github.com/noah-isme/sma-records-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-records-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-records-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-records-api/pkg/storage"
)

// @title Academic Records API
// @version 1.0.0
// @description Grade averages, submission deadlines, deferred tasks and term summaries.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const eventSource = "records-api"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, running without summary cache and run lock", "error", err)
		redisClient = nil
	}

	publisher, err := events.New(cfg.Notifications, eventSource, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init notification publisher", "driver", cfg.Notifications.Driver, "error", err)
	}
	defer publisher.Close() //nolint:errcheck

	app, err := buildApp(cfg, db, redisClient, publisher, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to build application", "error", err)
	}
	defer app.cache.Close() //nolint:errcheck

	if cfg.Scheduler.Enabled {
		queue := jobs.NewQueue("automation", app.automation.Handle, jobs.QueueConfig{Workers: 1, BufferSize: 1, Logger: logr})
		queue.Start(ctx)
		defer queue.Stop()
		app.automation.Start(ctx, queue)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, app, db, logr)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "scheduler", cfg.Scheduler.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}

type application struct {
	metrics     *service.MetricsService
	cache       *repository.CacheRepository
	academic    *repository.AcademicRepository
	engine      *service.AverageEngine
	deadlines   *service.DeadlineTracker
	scheduler   *service.TaskScheduler
	summaries   *service.SummaryGenerator
	scores      *service.ScoreService
	assessments *service.AssessmentService
	artifacts   *service.ArtifactService
	automation  *service.AutomationService
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, publisher events.Publisher, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()
	tx := database.NewTransactor(db)

	academicRepo := repository.NewAcademicRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	curriculumRepo := repository.NewCurriculumRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	averageRepo := repository.NewAverageRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	summaryRepo := repository.NewSummaryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	artifactStore, err := storage.NewLocalStorage(cfg.Artifacts.StorageDir)
	if err != nil {
		return nil, err
	}
	signer := storage.NewSignedURLSigner(cfg.Artifacts.SignedURLSecret, cfg.Artifacts.SignedURLTTL)
	artifacts := service.NewArtifactService(artifactStore, signer, service.ArtifactConfig{
		APIPrefix: cfg.APIPrefix,
		Formats:   cfg.Artifacts.Formats,
	}, logr)

	policy := service.NewGradingPolicy(cfg.Grading)
	engine := service.NewAverageEngine(averageRepo, curriculumRepo, scoreRepo, academicRepo, enrollmentRepo, tx, policy, metrics, logr)
	deadlines := service.NewDeadlineTracker(assessmentRepo, curriculumRepo, publisher, service.DeadlineTrackerConfig{
		DefaultDelayDays: cfg.Grading.DefaultDelayDays,
		UrgentWindow:     cfg.Deadlines.UrgentWindow,
		Topic:            cfg.Notifications.Topic,
		AdminRecipients:  cfg.Deadlines.AdminRecipients,
	}, metrics, logr)
	summaries := service.NewSummaryGenerator(summaryRepo, academicRepo, enrollmentRepo, engine, averageRepo, curriculumRepo, artifacts, cacheRepo, tx, metrics, logr)
	propagator := service.NewEnrollmentPropagator(academicRepo, enrollmentRepo, curriculumRepo, tx, logr)
	scheduler := service.NewTaskScheduler(taskRepo, academicRepo, service.BuildTaskHandlers(summaries, propagator, engine), service.TaskSchedulerConfig{
		TaskTimeout: cfg.Scheduler.TaskTimeout,
		StaleAfter:  cfg.Scheduler.StaleAfter,
	}, validate, metrics, logr)

	return &application{
		metrics:     metrics,
		cache:       cacheRepo,
		academic:    academicRepo,
		engine:      engine,
		deadlines:   deadlines,
		scheduler:   scheduler,
		summaries:   summaries,
		scores:      service.NewScoreService(scoreRepo, assessmentRepo, enrollmentRepo, deadlines, engine, tx, policy, validate, logr),
		assessments: service.NewAssessmentService(assessmentRepo, curriculumRepo, academicRepo, deadlines, validate, logr),
		artifacts:   artifacts,
		automation: service.NewAutomationService(academicRepo, deadlines, scheduler, cache.NewLocker(redisClient, "records:lock"), artifacts, service.AutomationConfig{
			TickInterval: cfg.Scheduler.TickInterval,
			LockTTL:      cfg.Scheduler.LockTTL,
		}, logr),
	}, nil
}

func newRouter(cfg *config.Config, app *application, db *sqlx.DB, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	metricsHandler := handler.NewMetricsHandler(app.metrics, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	assessmentHandler := handler.NewAssessmentHandler(app.assessments, app.deadlines)
	scoreHandler := handler.NewScoreHandler(app.scores)
	averageHandler := handler.NewAverageHandler(app.engine)
	taskHandler := handler.NewTaskHandler(app.scheduler, app.automation)
	summaryHandler := handler.NewSummaryHandler(app.summaries, app.artifacts)

	api := r.Group(cfg.APIPrefix)
	// signed tokens authorize artifact downloads on their own
	api.GET("/summaries/artifacts/:token", summaryHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.JWT.Secret), middleware.AcademicYear(app.academic))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	admin := middleware.RequireRoles(models.RoleAdmin)

	secured.GET("/assessments", staff, assessmentHandler.List)
	secured.POST("/assessments", staff, assessmentHandler.Create)
	secured.GET("/assessments/:id", staff, assessmentHandler.Get)
	secured.POST("/assessments/:id/extend-deadline", admin, assessmentHandler.ExtendDeadline)
	secured.POST("/assessments/:id/authorize-modification", admin, assessmentHandler.AuthorizeModification)
	secured.GET("/assessments/:id/scores", staff, scoreHandler.List)
	secured.POST("/assessments/:id/scores", staff, scoreHandler.Submit)
	secured.PUT("/scores/:id", staff, scoreHandler.Update)

	secured.POST("/averages/component", staff, averageHandler.Component)
	secured.POST("/averages/unit", staff, averageHandler.Unit)
	secured.POST("/averages/term", staff, averageHandler.Term)
	secured.POST("/averages/recompute", admin, averageHandler.RecomputeClass)

	secured.GET("/tasks", admin, taskHandler.List)
	secured.POST("/tasks", admin, taskHandler.Schedule)
	secured.POST("/tasks/run-due", admin, taskHandler.RunDue)
	secured.GET("/tasks/:id", admin, taskHandler.Get)

	secured.POST("/summaries", admin, summaryHandler.Generate)
	secured.GET("/summaries/:id", staff, summaryHandler.Get)
	secured.GET("/summaries/:id/links", staff, summaryHandler.Links)
	secured.GET("/classes/:id/summaries", staff, summaryHandler.ListByClass)

	secured.GET("/metrics/snapshot", admin, metricsHandler.Snapshot)

	return r
}
