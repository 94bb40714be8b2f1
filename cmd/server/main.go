// HireLens - Real-time interview collaboration hub
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hirelens/hirelens/internal/analysis"
	"github.com/hirelens/hirelens/internal/api"
	"github.com/hirelens/hirelens/internal/auth"
	"github.com/hirelens/hirelens/internal/config"
	"github.com/hirelens/hirelens/internal/middleware"
	"github.com/hirelens/hirelens/internal/session"
	"github.com/hirelens/hirelens/internal/store"
	"github.com/joho/godotenv"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	verifier := auth.NewVerifier(cfg.JWTSecret, repo)

	gateway := analysis.NewClient(cfg.Analysis, logger)
	if cfg.Analysis.APIKey == "" {
		slog.Warn("ANALYSIS_API_KEY not set, analysis passes will fail until configured")
	}

	// Core session services. The registry is the only session index in the
	// process and is reachable solely through the connection gateway.
	registry := session.NewRegistry()
	aggregator := session.NewAggregator(gateway, cfg.Session, nil)
	controller := session.NewController(repo, aggregator)
	hub := session.NewGateway(registry, aggregator, controller, verifier, repo, cfg.Session)

	// HTTP surface.
	baseHandler := api.NewHandler(repo, verifier, cfg)
	interviewHandler := api.NewInterviewHandler(baseHandler)
	healthHandler := api.NewHealthHandler(baseHandler)

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	interviewHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", hub.ServeHTTP)

	// Note: no WriteTimeout, WebSocket sessions are long-lived.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
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

	// Close live sessions before the HTTP listener so peers get a distinct
	// close status instead of a dropped TCP connection.
	hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
