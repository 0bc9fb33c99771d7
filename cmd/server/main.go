package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	appsync "github.com/crm/backend/internal/application/worksync"
	"github.com/crm/backend/internal/domain/shared"
	"github.com/crm/backend/internal/domain/worksync"
	"github.com/crm/backend/internal/infrastructure/auth"
	"github.com/crm/backend/internal/infrastructure/cache"
	"github.com/crm/backend/internal/infrastructure/config"
	"github.com/crm/backend/internal/infrastructure/logger"
	"github.com/crm/backend/internal/infrastructure/persistence"
	"github.com/crm/backend/internal/infrastructure/scheduler"
	"github.com/crm/backend/internal/infrastructure/telemetry"
	"github.com/crm/backend/internal/infrastructure/tracker"
	"github.com/crm/backend/internal/interfaces/http/handler"
	"github.com/crm/backend/internal/interfaces/http/middleware"
	"github.com/crm/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	_ "github.com/crm/backend/docs"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			CRM Sync API
//	@version		1.0
//	@description	Keeps CRM entity status and Jira issues in step

//	@BasePath	/

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting CRM sync service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	ctx := context.Background()

	// Telemetry providers are installed globally; disabled providers are no-ops
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfigFrom(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	exportLevel, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		exportLevel = zapcore.InfoLevel
	}
	log = loggerProvider.Bridge(log, exportLevel)

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.ConfigFrom(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfigFrom(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	meter := meterProvider.Meter("crm-sync")

	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create sync metrics", zap.Error(err))
	}

	// Database with a zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabase(ctx, &cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:    cfg.Telemetry.DBTraceEnabled,
		LogFullSQL: cfg.Telemetry.DBLogFullSQL,
		DBName:     cfg.Database.DBName,
	}, log); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	entityRepo := persistence.NewGormEntityRepository(db.DB)
	companyRepo := persistence.NewGormCompanyRepository(db.DB)

	// The tracker adapter fails fast on missing credentials or base URL
	jira, err := newTracker(cfg.Tracker, log)
	if err != nil {
		log.Fatal("Failed to configure issue tracker", zap.Error(err))
	}

	mapping := worksync.NewDefaultStatusMapping()
	for _, a := range mapping.Ambiguities() {
		log.Warn("Ambiguous status mapping",
			zap.String("entity_type", string(a.EntityType)),
			zap.String("transition", a.Transition),
			zap.String("chosen", a.Chosen),
			zap.Strings("shadowed", a.Shadowed),
		)
	}

	// Application services
	engine := appsync.NewSyncEngine(jira, mapping, log, appsync.WithEngineMetrics(syncMetrics))
	cleaner := appsync.NewOrphanCleaner(entityRepo, jira, log, syncMetrics)

	reconcilerOpts := []appsync.ReconcilerOption{appsync.WithReconcilerMetrics(syncMetrics)}
	if cfg.Sync.CleanupOnSweep {
		reconcilerOpts = append(reconcilerOpts, appsync.WithCleanupOnSweep(cleaner))
	}
	reconciler := appsync.NewReconciler(entityRepo, companyRepo, engine, log, reconcilerOpts...)

	webhookOpts := []appsync.WebhookServiceOption{appsync.WithWebhookMetrics(syncMetrics)}
	var dedupeStore shared.IdempotencyStore
	if cfg.Sync.WebhookDedupe {
		dedupeStore, err = cache.NewIdempotencyStoreFactory(cfg.Redis, cache.WithLogger(log)).
			CreateStore(ctx, cfg.Sync.DedupeBackend)
		if err != nil {
			log.Fatal("Failed to create webhook dedupe store", zap.Error(err))
		}
		defer func() {
			if err := dedupeStore.Close(); err != nil {
				log.Warn("Error closing dedupe store", zap.Error(err))
			}
		}()
		webhookOpts = append(webhookOpts, appsync.WithDeliveryDedupe(dedupeStore, cfg.Sync.WebhookDedupeTTL))
	}
	webhookService := appsync.NewWebhookService(entityRepo, mapping, log, webhookOpts...)

	linkService := appsync.NewLinkService(entityRepo, jira, cfg.Tracker.DefaultProjectKey, log)
	pushService := appsync.NewPushService(linkService, engine)

	// Background reconciliation
	reconcileScheduler := scheduler.NewReconciliationScheduler(reconciler, log, scheduler.ReconciliationSchedulerConfig{
		Enabled:     cfg.Sync.SchedulerEnabled,
		Interval:    cfg.Sync.ReconcileInterval,
		HistorySize: cfg.Sync.HistorySize,
	})
	if cfg.Sync.SchedulerEnabled {
		reconcileScheduler.Start(ctx)
	} else {
		log.Info("Reconciliation scheduler disabled")
	}

	jwtService := auth.NewJWTService(cfg.JWT)

	// HTTP handlers
	syncHandler := handler.NewSyncHandler(reconcileScheduler, cleaner, linkService, pushService)
	webhookHandler := handler.NewWebhookHandler(webhookService)
	systemHandler := handler.NewSystemHandler(version, healthChecks(db, dedupeStore))

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}

	engineHTTP := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engineHTTP.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	httpMetrics, err := middleware.HTTPMetrics(meter)
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing - Server spans, health checks skipped
	// 5. Metrics - Request count and latency
	// 6. Profiling - Pyroscope labels, when profiling is on
	// 7. Security - Add security headers
	// 8. CORS - Handle cross-origin requests
	// 9. BodyLimit - Limit request body size
	engineHTTP.Use(middleware.RequestID())
	engineHTTP.Use(logger.Recovery(log))
	engineHTTP.Use(logger.GinMiddleware(log))
	engineHTTP.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
		SkipPaths:   []string{router.HealthPath},
	}))
	engineHTTP.Use(httpMetrics)
	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = profiler.IsEnabled()
	engineHTTP.Use(middleware.ProfilingWithConfig(profilingConfig))
	engineHTTP.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	if len(cfg.HTTP.CORSAllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	}
	if len(cfg.HTTP.CORSAllowMethods) > 0 {
		corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	}
	if len(cfg.HTTP.CORSAllowHeaders) > 0 {
		corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	}
	engineHTTP.Use(middleware.CORSWithConfig(corsConfig))
	engineHTTP.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	jwtAuth := middleware.JWTAuth(jwtService, log)

	// Public routes outside API versioning
	router.RegisterPublic(engineHTTP, webhookHandler, systemHandler)
	router.RegisterDocs(engineHTTP, middleware.SwaggerProtection(cfg.Swagger, jwtAuth))

	// Company-scoped sync API. Profiling runs again after auth to pick up company_id.
	syncMiddleware := []gin.HandlerFunc{jwtAuth, middleware.SpanEnricher()}
	if profiler.IsEnabled() {
		syncMiddleware = append(syncMiddleware, middleware.Profiling())
	}
	r := router.NewRouter(engineHTTP, router.WithAPIVersion("v1"))
	r.Register(router.SyncRoutes(syncHandler, syncMiddleware...))
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engineHTTP,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	// The scheduler stops between companies; an in-flight company finishes first
	reconcileScheduler.Stop(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop failed", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Logger provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newTracker(cfg config.TrackerConfig, log *zap.Logger) (*tracker.JiraAdapter, error) {
	jiraConfig := tracker.NewJiraConfig(cfg.BaseURL, cfg.Email, cfg.APIToken)
	if cfg.Timeout > 0 {
		jiraConfig.Timeout = cfg.Timeout
	}
	jiraConfig.MaxRetries = cfg.MaxRetries
	jiraConfig.RetryInitialInterval = cfg.RetryInitialInterval
	if cfg.DefaultIssueType != "" {
		jiraConfig.DefaultIssueType = cfg.DefaultIssueType
	}
	return tracker.NewJiraAdapter(jiraConfig, tracker.WithLogger(log))
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthChecks checks the database and, when the dedupe store is backed by
// Redis, the store's own client. A Redis outage degrades health but not service.
func healthChecks(db pinger, dedupe shared.IdempotencyStore) map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{
		"database": db.Ping,
	}
	if store, ok := dedupe.(pinger); ok {
		checks["redis"] = store.Ping
	}
	return checks
}
