// Package main is the entrypoint for the OTA orchestrator server.
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

	"github.com/joho/godotenv"
	"github.com/otahub/otahub/internal/api"
	"github.com/otahub/otahub/internal/api/handler"
	mw "github.com/otahub/otahub/internal/api/middleware"
	"github.com/otahub/otahub/internal/api/response"
	"github.com/otahub/otahub/internal/artifact"
	"github.com/otahub/otahub/internal/auth"
	"github.com/otahub/otahub/internal/bus"
	"github.com/otahub/otahub/internal/cache"
	"github.com/otahub/otahub/internal/config"
	"github.com/otahub/otahub/internal/ota"
	"github.com/otahub/otahub/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "topic_prefix", cfg.MQTT.TopicPrefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Check the artifact root
	if info, err := os.Stat(cfg.Artifacts.Dir); err != nil || !info.IsDir() {
		return fmt.Errorf("artifact dir %s is not a readable directory", cfg.Artifacts.Dir)
	}

	// 3. Connect to the MQTT broker (non-fatal if down; it retries in background)
	busClient, err := bus.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connect mqtt: %w", err)
	}
	defer busClient.Close()

	// 4. Wire the core: job store, artifact store, dispatcher, reconciler
	jobs := store.NewMemoryStore()
	artifacts := artifact.NewStore(cfg.Artifacts.Dir, cfg.Server.PublicBase)
	svc := ota.NewService(jobs, artifacts, busClient, cfg.MQTT.TopicPrefix)

	reconciler := ota.NewReconciler(jobs, busClient, cfg.MQTT.TopicPrefix)
	if err := reconciler.Start(); err != nil {
		return fmt.Errorf("subscribe to status topic: %w", err)
	}
	slog.Info("status reconciler started", "filter", cfg.MQTT.TopicPrefix+"+/ota/status")

	// 5. Auth middleware backed by the remote validator
	validator := auth.NewHTTPValidator(cfg.Auth.ValidateURL, cfg.Auth.RequiredService, cfg.Auth.Timeout)
	authMW := mw.NewAuth(validator)

	// 6. Optional rate limiting when Redis is configured
	var rateLimit *mw.RateLimit
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		rateLimit = mw.NewRateLimit(redisCache, cfg.Redis.RequestsPerMin)
		slog.Info("rate limiting enabled", "requests_per_min", cfg.Redis.RequestsPerMin)
	}

	// 7. Build router with dependencies
	router := api.NewRouter(api.Dependencies{
		Auth:      authMW,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(busClient),

		CreateJob:   handler.NewCreateJobHandler(svc),
		ListJobs:    handler.NewListJobsHandler(svc),
		GetJob:      handler.NewGetJobHandler(svc),
		DispatchJob: handler.NewDispatchJobHandler(svc),

		ListArtifacts: handler.NewListArtifactsHandler(artifacts),
		GetArtifact:   handler.NewGetArtifactHandler(artifacts),
	})

	// 8. Start HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout; the deferred bus disconnect lets the
	// current in-flight status message finish before the client goes away.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// brokerProbe reports bus connectivity for the health endpoint.
type brokerProbe interface {
	Connected() bool
}

// healthHandler reports overall liveness plus the broker link state. A down
// broker degrades the response but does not fail it: the control plane can
// still answer reads while the bus reconnects.
func healthHandler(probe brokerProbe) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		broker := "ok"
		if !probe.Connected() {
			broker = "degraded"
		}
		response.JSON(w, map[string]any{
			"status": "ok",
			"services": map[string]string{
				"broker": broker,
			},
		})
	}
}
