package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"festa/internal/amqp"
	"festa/internal/config"
	"festa/internal/export"
	gsheet "festa/internal/export/google"
	mem "festa/internal/export/memory"
	xlog "festa/internal/log"
	"festa/internal/storage"
	"festa/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := xlog.New(xlog.DefaultConfig())
	xlog.SetDefault(logger)
	workerLog := logger.WithComponent(xlog.ComponentWorker)

	workerLog.Info("Starting festa-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		workerLog.Error("Configuration validation failed", xlog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		workerLog.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		workerLog.Error("Failed to initialize SQLite repository", xlog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var writer export.SnapshotWriter
	switch cfg.ExportBackend {
	case "sheets":
		client, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			workerLog.Error("Failed to initialize Google Sheets client", xlog.FieldError, err)
			os.Exit(1)
		}
		writer = client
		workerLog.Info("Google Sheets export backend initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	default:
		writer = mem.New()
		workerLog.Info("Memory export backend initialized")
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		workerLog.Error("Failed to initialize AMQP client", xlog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exportWorker := worker.NewExportWorker(repo, writer, cfg.ExportConcurrency)

	// Catch up on anything published while the worker was down.
	workerLog.Info("Performing startup export sweep")
	if err := exportWorker.ExportAll(ctx); err != nil {
		workerLog.Error("Startup export sweep failed", xlog.FieldError, err)
		// Keep consuming; individual messages will retry the failed events.
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		workerLog.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	workerLog.Info("Consuming budget export messages", "queue", cfg.AMQPQueue)
	err = amqpClient.ConsumeBudgetExports(ctx, func(msg *amqp.BudgetExportMessage) error {
		return exportWorker.HandleExportMessage(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		workerLog.Error("Consumer stopped with error", xlog.FieldError, err)
		os.Exit(1)
	}

	workerLog.Info("Worker stopped gracefully")
}
