// GreenWatch - conversational turn runner
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/greenwatch-runner/internal/api"
	"github.com/ashureev/greenwatch-runner/internal/config"
	"github.com/ashureev/greenwatch-runner/internal/generation"
	"github.com/ashureev/greenwatch-runner/internal/middleware"
	"github.com/ashureev/greenwatch-runner/internal/orchestrator"
	"github.com/ashureev/greenwatch-runner/internal/sink"
	"github.com/ashureev/greenwatch-runner/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("Invalid log level, using info", "level", cfg.LogLevel)
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("Starting server",
		"addr", cfg.Addr(),
		"backend", cfg.Generation.Backend,
		"sink", cfg.Sink.Kind,
		"debug_routes", cfg.DebugRoutes,
	)

	// Generation backend. A remote backend that cannot connect is not fatal;
	// turns fall back until it comes up.
	backend, err := generation.New(cfg.Generation, logger)
	if err != nil {
		slog.Warn("Generation backend unavailable, replies will use the fallback text",
			"backend", cfg.Generation.Backend, "error", err)
		backend = generation.NewUnready()
	}
	if c, ok := backend.(io.Closer); ok {
		defer func() {
			if closeErr := c.Close(); closeErr != nil {
				slog.Error("Failed to close generation backend", "error", closeErr)
			}
		}()
	}
	slog.Info("Generation backend ready", "model", backend.Name(), "loaded", backend.IsLoaded(), "on_device", backend.OnDevice())

	events, err := sink.NewNotifierFromConfig(cfg.Sink, logger)
	if err != nil {
		slog.Error("Failed to initialize event sink", "error", err)
		os.Exit(1)
	}

	orch := orchestrator.New(store.NewMemoryStore(store.WithLogger(logger)), backend, events, logger)

	// Initialize handlers.
	baseHandler := api.NewHandler(orch, events, cfg)
	healthHandler := api.NewHealthHandler(baseHandler)
	sessionHandler := api.NewSessionHandler(baseHandler)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	if cfg.DebugRoutes {
		api.NewDebugHandler(baseHandler).RegisterRoutes(r)
		slog.Warn("Debug routes enabled")
	}

	// No WriteTimeout: turns may wait on a slow model and /session/ws is long-lived.
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if err := events.Close(shutdownCtx); err != nil {
		slog.Error("Failed to flush event sink", "error", err)
	}
	stats := events.Stats()
	slog.Info("Server stopped successfully", "sink_sent", stats.Sent, "sink_failed", stats.Failed, "sink_dropped", stats.Dropped)
}
