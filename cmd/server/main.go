package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/stock-monitor/internal/api"
	"github.com/irfndi/stock-monitor/internal/api/handlers"
	"github.com/irfndi/stock-monitor/internal/cache"
	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/irfndi/stock-monitor/internal/database"
	"github.com/irfndi/stock-monitor/internal/logging"
	"github.com/irfndi/stock-monitor/internal/metrics"
	"github.com/irfndi/stock-monitor/internal/screening"
	"github.com/irfndi/stock-monitor/internal/services"
	"github.com/irfndi/stock-monitor/internal/telemetry"
	"github.com/irfndi/stock-monitor/pkg/marketdata"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize telemetry first
	provider, err := telemetry.InitTelemetry(ctx, cfg.Telemetry, cfg.Environment)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shutdown telemetry: %v\n", err)
		}
	}()

	logger, otlpLogger := logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        cfg.Telemetry.Enabled && cfg.Telemetry.OTLPEndpoint != "",
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		ServiceName:    serviceName(cfg),
		ServiceVersion: serviceVersion(cfg),
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	if otlpLogger != nil {
		defer func() { _ = otlpLogger.Shutdown(context.Background()) }()
	}

	// Services log through logrus
	logrusLogger := logging.NewLogrusLogger(cfg.LogLevel)

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.Pool); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		logrusLogger.Info("Database schema is up to date")
	}

	redis, err := database.NewRedisConnection(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redis.Close()

	registry := metrics.NewRegistry()
	monitor, err := buildApp(ctx, cfg, db, redis, registry, logrusLogger)
	if err != nil {
		return err
	}

	monitor.controller.Start(cfg.Monitor.HealthCheckInterval)
	monitor.cleanup.Start(cfg.Monitor.CleanupInterval)

	router := gin.New()
	api.SetupRoutes(router, monitor.handlers, api.RouterConfig{
		ServiceName:    serviceName(cfg),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		Metrics:        registry,
		TracerProvider: otel.GetTracerProvider(),
	})

	srv := newHTTPServer(cfg.Server, router)
	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(serviceName(cfg), serviceVersion(cfg), cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.LogShutdown(serviceName(cfg), "signal received")
	case err := <-serverErr:
		logger.WithError(err).Error("HTTP server failed")
	}

	// Give outstanding requests a deadline for completion
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := monitor.controller.Stop(shutdownCtx); err != nil {
		logrusLogger.WithError(err).Warn("Refresh job did not stop in time")
	}
	monitor.cleanup.Stop()
	if err := monitor.marketData.Close(); err != nil {
		logrusLogger.WithError(err).Warn("Failed to close market data client")
	}

	logrusLogger.Info("Server exited gracefully")
	return nil
}

type app struct {
	handlers   api.Handlers
	controller *services.RefreshJobController
	cleanup    *services.CleanupService
	marketData *marketdata.Client
}

// buildApp wires stores, services and handlers on top of open connections.
func buildApp(
	ctx context.Context,
	cfg *config.Config,
	db *database.PostgresDB,
	redis *database.RedisClient,
	registry *metrics.Registry,
	logger *logrus.Logger,
) (*app, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pool := database.NewTracedPool(db.Pool, logger)
	watchlistRepo := database.NewWatchlistRepository(pool, cfg.Monitor.ArchiveRetention)
	archiveRepo := database.NewArchiveRepository(pool, cfg.Monitor.ArchiveRetention)

	viewCache := cache.NewViewCache(redis.Client, cfg.Redis.ViewCacheTTL, logger)
	// Views cached by a previous process may predate its last writes.
	if err := viewCache.Reset(ctx); err != nil {
		logger.WithError(err).Warn("Failed to reset view cache")
	}
	barCache := cache.NewRedisJSONCache(redis.Client, cfg.Redis.BarCacheTTL, "market_bars:", logger)
	jobStore := cache.NewJobStore(redis.Client, cfg.Redis.JobTTL)

	if err := registry.Register(metrics.CacheCounters("views",
		func() float64 { return float64(viewCache.Stats().Hits) },
		func() float64 { return float64(viewCache.Stats().Misses) },
	)...); err != nil {
		return nil, fmt.Errorf("failed to register view cache metrics: %w", err)
	}
	if err := registry.Register(metrics.CacheCounters("market_bars",
		func() float64 { return float64(barCache.GetStats().Hits) },
		func() float64 { return float64(barCache.GetStats().Misses) },
	)...); err != nil {
		return nil, fmt.Errorf("failed to register bar cache metrics: %w", err)
	}

	marketData := marketdata.NewClient(&cfg.MarketData, barCache, logger)
	pipeline := screening.NewDefaultPipeline(marketData, screening.OptionsFromConfig(cfg.Monitor, cfg.MarketData))
	notifier := services.NewNotificationService(cfg.Telegram, logger)
	tracer := telemetry.NewBusinessTracer(otel.GetTracerProvider())
	locks := services.NewKeyedMutex()

	orchestrator := services.NewHealthCheckOrchestrator(
		watchlistRepo, pipeline, viewCache, locks, notifier, tracer, registry, logger,
		services.HealthCheckOptions{
			Workers:     cfg.Monitor.HealthCheckWorkers,
			ItemTimeout: cfg.Monitor.EvaluatorTimeout,
		},
	)
	controller := services.NewRefreshJobController(orchestrator, watchlistRepo, jobStore, viewCache, registry, logger)
	watchlist := services.NewWatchlistService(
		watchlistRepo, archiveRepo, viewCache, locks, cfg.Monitor.MaxBatchSize, registry, logger,
	)
	cleanup := services.NewCleanupService(archiveRepo, viewCache, registry, logger, viewCache, barCache)

	return &app{
		handlers: api.Handlers{
			Health:    handlers.NewHealthHandler(db, redis, marketData, serviceVersion(cfg), logger),
			Watchlist: handlers.NewWatchlistHandler(watchlist),
			Refresh:   handlers.NewRefreshHandler(controller),
		},
		controller: controller,
		cleanup:    cleanup,
		marketData: marketData,
	}, nil
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}
}

func serviceName(cfg *config.Config) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return "stock-monitor"
}

func serviceVersion(cfg *config.Config) string {
	if cfg.Telemetry.ServiceVersion != "" {
		return cfg.Telemetry.ServiceVersion
	}
	return telemetry.ServiceVersion
}
