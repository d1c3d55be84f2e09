package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/planner-kpi/internal/api"
	"github.com/terra-clan/planner-kpi/internal/config"
	"github.com/terra-clan/planner-kpi/internal/dashboard"
	"github.com/terra-clan/planner-kpi/internal/directory"
	"github.com/terra-clan/planner-kpi/internal/graph"
	"github.com/terra-clan/planner-kpi/internal/plans"
	"github.com/terra-clan/planner-kpi/internal/refresh"
	"github.com/terra-clan/planner-kpi/internal/storage"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting kpi-server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Run database migrations
	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected successfully")

	// Optional shared directory cache
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(initCtx).Err(); err != nil {
			slog.Warn("redis unreachable, directory cache stays process-local", "error", err)
		} else {
			slog.Info("redis connected", "address", cfg.Redis.Address)
		}
	}

	// Microsoft Graph client (app-only credentials)
	graphClient := graph.NewClient(graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		BaseURL:      cfg.Graph.BaseURL,
		Timeout:      cfg.Graph.Timeout,
	})

	// Tracked plans registry
	registry := plans.NewRegistry()
	if err := registry.Load(cfg.Plans.File); err != nil {
		slog.Warn("failed to load plans registry", "file", cfg.Plans.File, "error", err)
	}

	// Assignee directory resolver
	resolver := directory.NewCachedResolver(graphClient, redisClient, cfg.Directory.CacheTTL)

	// Dashboard manager
	manager := dashboard.NewManager(
		graphClient,
		resolver,
		repo,
		registry,
		cfg.Session.TTL,
		cfg.Refresh.StaleAfter,
	)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, registry, repo)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start background refresh worker, pushing live updates after each cycle
	worker := refresh.NewWorker(manager, cfg.Refresh.Interval, server.NotifyRefresh)
	worker.Start(ctx)

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("kpi-server stopped")
}
