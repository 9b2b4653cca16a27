package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/crestpointmarketing/eventra-app-sub000/cmd/mainconfig"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/api/router"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/app/bootstrap"
	appconfig "github.com/crestpointmarketing/eventra-app-sub000/internal/config"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/drafts"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/leads"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/observability/metrics"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/recommend"
	"github.com/crestpointmarketing/eventra-app-sub000/internal/templates"
	"github.com/crestpointmarketing/eventra-app-sub000/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting eventra template engine API",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsHandler, engineMetrics := setupMetrics()

	pool, sqlDB, err := bootstrap.BuildPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
		defer sqlDB.Close()
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory template and lead stores")
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	guarded, closeLLM, err := bootstrap.BuildLLM(ctx, cfg, &awsCfg, engineMetrics, logger)
	if err != nil {
		logger.Error("failed to build language model client", "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	engine, err := bootstrap.BuildEngine(ctx, cfg, bootstrap.Deps{
		Pool:    pool,
		SQLDB:   sqlDB,
		Redis:   redisClient,
		AWS:     &awsCfg,
		LLM:     guarded,
		Metrics: engineMetrics,
	}, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	// Setup router
	r := router.New(&router.Config{
		Logger:             logger,
		TemplatesHandler:   templates.NewHandler(engine.Templates, logger),
		LeadsHandler:       leads.NewHandler(engine.Leads, logger),
		RecommendHandler:   recommend.NewHandler(engine.Recommend, logger),
		DraftsHandler:      drafts.NewHandler(engine.Drafts, logger),
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReadyChecks:        readyChecks(pool, redisClient),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	engine.Notifier.Wait()

	logger.Info("server stopped")
}

// setupMetrics builds a private registry with the engine collectors plus the
// Go runtime and process collectors.
func setupMetrics() (http.Handler, *metrics.EngineMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewEngineMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func readyChecks(pool *pgxpool.Pool, redisClient *redis.Client) map[string]router.ReadyCheck {
	checks := map[string]router.ReadyCheck{}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	return checks
}
