package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.Setup(slog.LevelInfo)
	logger.Info("Starting worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.JobMaxAttempts)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	throttle := worker.NewThrottle(cfg.UserJobLimit, cfg.UserJobWindow)
	defer throttle.Stop()

	views := cache.NewViews(256, 5*time.Minute)
	processor := worker.NewProcessor(repo, views, throttle, cfg.CycleTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Worker configured",
		"workers", cfg.WorkerCount,
		log.FieldQueue, cfg.AMQPQueue,
		"max_attempts", cfg.JobMaxAttempts)

	go func() {
		if err := amqpClient.Consume(ctx, cfg.WorkerCount, processor.Handle); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Job consumption failed", log.FieldError, err)
			}
			cancel()
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	cancel()

	// Give in-flight jobs a moment to finish before the process exits.
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
