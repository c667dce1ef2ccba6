package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/notify/gmail"
	"fintrack/internal/notify/memory"
	"fintrack/internal/scheduler"
	"fintrack/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.Setup(slog.LevelInfo)
	logger.Info("Starting scheduler")

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

	sender, err := newSender(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize notification sender", log.FieldError, err)
		os.Exit(1)
	}

	recurring := scheduler.NewRecurring(repo, amqpClient, logger)
	budgets := scheduler.NewBudgetEvaluator(repo, sender, cfg.AlertThresholdPct, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Scheduler configured",
		"recurring_interval", cfg.RecurringInterval,
		"budget_check_interval", cfg.BudgetCheckInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	recurringTicker := time.NewTicker(cfg.RecurringInterval)
	defer recurringTicker.Stop()
	budgetTicker := time.NewTicker(cfg.BudgetCheckInterval)
	defer budgetTicker.Stop()

	runRecurring := func(now time.Time) {
		cycleCtx, cycleCancel := context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cycleCancel()
		if _, err := recurring.RunCycle(cycleCtx, now); err != nil {
			logger.Error("Recurring cycle failed", log.FieldError, err)
		}
	}
	runBudgets := func(now time.Time) {
		cycleCtx, cycleCancel := context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cycleCancel()
		if _, err := budgets.RunCycle(cycleCtx, now); err != nil {
			logger.Error("Budget cycle failed", log.FieldError, err)
		}
	}

	// Run both cycles once on startup, then on their tickers.
	runRecurring(time.Now())
	runBudgets(time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-recurringTicker.C:
				runRecurring(now)
			case now := <-budgetTicker.C:
				runBudgets(now)
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())
	cancel()

	logger.Info("Scheduler shutdown complete")
}

func newSender(cfg *config.Config, logger *log.Logger) (notify.Sender, error) {
	switch cfg.NotifyBackend {
	case "gmail":
		return gmail.NewFromEnv(context.Background())
	default:
		logger.Info("Using in-memory notification sender - alerts are not delivered externally")
		return memory.New(), nil
	}
}
