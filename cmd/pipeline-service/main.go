// pipeline-service is the HTTP API server for running pipelines.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"pipeline/internal/api"
	"pipeline/internal/artifact"
	"pipeline/internal/config"
	"pipeline/internal/executor"
	"pipeline/internal/health"
	"pipeline/internal/history"
	"pipeline/internal/notifier"
	"pipeline/internal/observability"
	"pipeline/internal/service"
	"syscall"
	"time"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	notifierCfg := notifier.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create webhook notifier
	webhookNotifier := notifier.NewMemory(notifierCfg, metrics)

	// Create step runner
	runner, err := newRunner(svcCfg)
	if err != nil {
		return err
	}
	defer runner.Close()

	// Create artifact store
	artifactStore, err := artifact.NewStore(svcCfg.ArtifactRoot)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	// Open run history (optional)
	var historyStore *history.Store
	if svcCfg.HistoryPath != "" {
		historyStore, err = history.Open(svcCfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer historyStore.Close()
		slog.Info("Run history enabled", "path", svcCfg.HistoryPath)
	}

	// Create health checker
	healthChecker := health.NewChecker(runner, svcCfg.ArtifactRoot)

	// Create run service
	exec := executor.New(runner, executor.Config{
		DefaultTimeout: svcCfg.DefaultStepTimeout,
	})
	runService := service.New(exec, service.Options{
		Store:    artifactStore,
		History:  historyStore,
		Notifier: webhookNotifier,
		Metrics:  metrics,
	})

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Service:       runService,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Cancel in-flight runs; dispatched steps are signalled and
	// their final results recorded before the engines release.
	slog.Info("Stopping in-flight runs")
	runService.StopAll()

	// Phase 4: Drain webhook notifier
	slog.Info("Draining webhook notifier")
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifierCancel()
	if err := webhookNotifier.Close(notifierCtx); err != nil {
		slog.Warn("Notifier shutdown error", "error", err)
	}

	// Log final notifier stats
	stats := webhookNotifier.Stats()
	slog.Info("Notifier stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}

func newRunner(cfg *config.ServiceConfig) (executor.Runner, error) {
	switch cfg.Runner {
	case "docker":
		runner, err := executor.NewDockerRunner(cfg.StepImage)
		if err != nil {
			return nil, fmt.Errorf("connect to Docker daemon: %w", err)
		}
		slog.Info("Using Docker step runner", "image", cfg.StepImage)
		return runner, nil
	case "local", "":
		slog.Info("Using local step runner")
		return executor.NewLocalRunner(), nil
	default:
		return nil, fmt.Errorf("unknown step runner %q", cfg.Runner)
	}
}
