package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scrim-lobby/internal/config"
	"github.com/scrim-lobby/internal/domain"
	"github.com/scrim-lobby/internal/eventbus"
	"github.com/scrim-lobby/internal/handler"
	"github.com/scrim-lobby/internal/kafka"
	"github.com/scrim-lobby/internal/notify"
	"github.com/scrim-lobby/internal/postgres"
	"github.com/scrim-lobby/internal/redis"
	"github.com/scrim-lobby/internal/service"
	"github.com/scrim-lobby/internal/store"
	"github.com/scrim-lobby/internal/websocket"
	"github.com/scrim-lobby/internal/worker"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
		if err := cfg.ApplyEnv(); err != nil {
			logger.Error("invalid environment configuration", "error", err)
			os.Exit(1)
		}
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.jwt_secret is required")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize record store
	fileStore, err := store.NewFileStore(cfg.Store.DataDir, logger)
	if err != nil {
		logger.Error("failed to open data directory", "error", err)
		os.Exit(1)
	}
	if err := fileStore.Init(domain.Collections()...); err != nil {
		logger.Error("failed to initialize collections", "error", err)
		os.Exit(1)
	}
	logger.Info("record store ready", "data_dir", fileStore.Dir())

	// Initialize event bus
	bus := eventbus.NewBus(&cfg.EventBus, logger)

	// Initialize services
	users := service.NewUserDirectory(fileStore, logger)
	scrimService := service.NewScrimService(fileStore, bus, users, logger)
	feedbackService := service.NewFeedbackService(fileStore, scrimService, users, logger)

	// Notification sink
	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.Notifications.Sink == "redis" {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		queue, err := redis.NewNotificationQueue(&cfg.Redis, logger)
		if err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer queue.Close()
		notifier = queue
		logger.Info("connected to Redis", "queue_key", cfg.Redis.QueueKey)
	}
	subscribers := notify.NewSubscribers(scrimService, users, notifier, cfg.Notifications.Concurrency, logger)
	subscribers.Register(bus)

	// Audit log
	if cfg.Postgres.Enabled {
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		postgresRepo, err := postgres.NewRepository(&cfg.Postgres, logger)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		defer postgresRepo.Close()

		if err := postgresRepo.RunMigrations(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		postgresRepo.Register(bus)
		logger.Info("connected to PostgreSQL")
	}

	// Event export
	var kafkaPublisher *kafka.Publisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err = kafka.NewPublisher(&cfg.Kafka, logger)
		if err != nil {
			logger.Warn("failed to create Kafka publisher, continuing without export", "error", err)
			kafkaPublisher = nil
		} else {
			kafkaPublisher.Register(bus)
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub(&cfg.WebSocket, scrimService, logger)
	wsHub.Follow(bus)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	bus.Start()

	// Initialize scheduler
	scheduler := worker.NewScheduler(scrimService, subscribers, &cfg.Scheduler, logger)
	if cfg.Scheduler.Enabled {
		if err := scheduler.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", "error", err)
			os.Exit(1)
		}
	}

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(scrimService, feedbackService, users, bus, wsHub, &cfg.Auth, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server first so no new commands publish events
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	// Stop scheduler
	if err := scheduler.Stop(); err != nil {
		logger.Error("failed to stop scheduler", "error", err)
	}

	// Drain the event bus
	if err := bus.Shutdown(shutdownCtx); err != nil {
		logger.Error("event bus did not drain", "error", err, "stats", bus.Stats())
	}

	// Stop WebSocket hub
	wsHub.Stop()

	// Flush Kafka export
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Close(); err != nil {
			logger.Error("failed to close Kafka publisher", "error", err)
		}
	}

	logger.Info("server stopped")
}
