// Package main is the entry point for the CropLens API server.
//
// It loads configuration (env, dotenv, SSM), builds the dependency graph
// (database pool, external vision clients, scoring engine, advice chain,
// event publisher, metrics recorder), mounts the HTTP chassis, and serves
// until SIGINT or SIGTERM triggers a graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"croplens/internal/advice"
	"croplens/internal/api/handlers"
	"croplens/internal/assessments"
	"croplens/internal/auth"
	"croplens/internal/config"
	"croplens/internal/core"
	"croplens/internal/db"
	"croplens/internal/external"
	"croplens/internal/metrics"
	"croplens/internal/queue"
	"croplens/internal/scoring"
	"croplens/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// SSM resolution is skipped for APP_ENV=local, so the provider is safe to
	// construct unconditionally; its client is created lazily on first use.
	cfg, err := config.LoadConfig(config.NewSSMProvider(os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("croplens API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database pool.
	pool, err := newDatabasePool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	// AWS clients are shared by the SQS publisher and the CloudWatch recorder.
	// Both are optional; the stack degrades to no-ops when unconfigured.
	publisher, recorder := newAWSComponents(ctx, cfg, logger)

	// External vision and generation providers. Stubbed for local runs.
	clients := external.NewClientRegistry(cfg, logger)

	// Domain services.
	catalog := scoring.NewCatalog()
	scorer := scoring.NewScorer(catalog, logger)
	advisor := advice.NewService(clients.Generator, logger)

	assessmentRepo := db.NewAssessmentRepository(pool)
	assessmentSvc := assessments.NewService(
		assessmentRepo,
		scorer,
		clients.Detector,
		clients.Species,
		advisor,
		publisher,
		recorder,
		logger,
		nil,
	)

	keyRepo := db.NewAPIKeyRepository(pool)
	authSvc := auth.NewService(keyRepo, nil, nil, logger)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = recorder
	srv.Authenticator = authSvc
	srv.RateLimiter = core.NewMemoryRateLimiter(
		cfg.Security.RateLimitPerWindow,
		cfg.Security.RateLimitWindow,
		nil,
	)
	srv.HealthProbes = []core.HealthProbe{
		{Name: "database", Check: pool.Ping},
	}
	srv.OnShutdown(pool.Close)

	assessmentHandler := handlers.NewAssessmentHandler(assessmentSvc, srv.Validator, logger)
	adviceHandler := handlers.NewAdviceHandler(advisor, logger)
	speciesHandler := handlers.NewSpeciesHandler(clients.Species, srv.Validator, logger)
	catalogHandler := handlers.NewCatalogHandler(catalog)
	apiKeyHandler := handlers.NewAPIKeyHandler(authSvc, &apiKeyRepoAdapter{repo: keyRepo}, srv.Validator, logger)

	srv.V1Routes = append(srv.V1Routes,
		assessmentHandler.RegisterRoutes,
		adviceHandler.RegisterRoutes,
		speciesHandler.RegisterRoutes,
		catalogHandler.RegisterRoutes,
		apiKeyHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return serveHTTP(ctx, srv, cfg, logger)
}

// newDatabasePool builds the pgx connection pool from the database config.
func newDatabasePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Database.AcquireTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// newAWSComponents constructs the SQS event publisher and CloudWatch metrics
// recorder. Either degrades gracefully: a disabled publisher swallows events,
// and metrics fall back to the no-op recorder when disabled or when the AWS
// config cannot be loaded.
func newAWSComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (types.EventPublisher, metrics.Recorder) {
	needSQS := cfg.AWS.AssessmentEventsQueue != ""
	needCloudWatch := cfg.Observability.EnableMetrics && cfg.Environment != "local"

	if !needSQS && !needCloudWatch {
		return queue.NewPublisher(nil, "", logger), metrics.NoopRecorder{}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWS.Region),
	}
	if cfg.AWS.EndpointURL != "" {
		opts = append(opts, awsconfig.WithBaseEndpoint(cfg.AWS.EndpointURL))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("failed to load AWS config, events and metrics disabled", "error", err)
		return queue.NewPublisher(nil, "", logger), metrics.NoopRecorder{}
	}

	publisher := queue.NewPublisher(nil, "", logger)
	if needSQS {
		publisher = queue.NewPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS.AssessmentEventsQueue, logger)
		logger.Info("assessment event publishing enabled", "queue", cfg.AWS.AssessmentEventsQueue)
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if needCloudWatch {
		recorder = metrics.NewCloudWatchRecorder(cloudwatch.NewFromConfig(awsCfg), logger)
		logger.Info("cloudwatch metrics enabled", "namespace", cfg.Observability.MetricNamespace)
	}

	return publisher, recorder
}

// serveHTTP runs the HTTP listener until the context is cancelled by a
// shutdown signal, then drains in-flight requests within the configured
// shutdown timeout.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	srv.Shutdown(shutdownCtx)

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}

// apiKeyRepoAdapter bridges the handler-local APIKeyRepo interface to the
// database repository's parameter type.
type apiKeyRepoAdapter struct {
	repo *db.APIKeyRepository
}

func (a *apiKeyRepoAdapter) List(ctx context.Context, params handlers.APIKeyListParams) ([]*types.APIKey, error) {
	return a.repo.List(ctx, db.ListAPIKeysParams{
		ActiveOnly: params.ActiveOnly,
		Prefix:     params.Prefix,
		Limit:      params.Limit,
		Cursor:     params.Cursor,
	})
}

func (a *apiKeyRepoAdapter) Delete(ctx context.Context, id string) error {
	return a.repo.Delete(ctx, id)
}
