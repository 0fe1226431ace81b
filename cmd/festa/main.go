package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"festa/internal/amqp"
	"festa/internal/blob"
	"festa/internal/cache"
	"festa/internal/config"
	apphttp "festa/internal/http"
	xlog "festa/internal/log"
	"festa/internal/services"
	"festa/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := xlog.New(xlog.DefaultConfig())
	xlog.SetDefault(logger)
	appLog := logger.WithComponent(xlog.ComponentApp)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		appLog.Error("Configuration validation failed", xlog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		appLog.Error("Failed to initialize SQLite repository", xlog.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	store := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register(store)
	cacheManager.StartCleanup(cfg.CacheTTL)
	defer cacheManager.Stop()

	// The AMQP publisher is optional; without it writes still succeed and
	// exports are picked up by the worker's startup sweep.
	var publisher services.ExportPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			appLog.Error("Failed to initialize AMQP client", xlog.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		appLog.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		appLog.Info("AMQP disabled - no AMQP_URL provided")
	}

	blobs, err := blob.NewStore(cfg.AttachmentDir, cfg.AttachmentURLPrefix)
	if err != nil {
		appLog.Error("Failed to initialize attachment store", xlog.FieldError, err, "dir", cfg.AttachmentDir)
		os.Exit(1)
	}

	budget := services.NewBudgetService(repo, store, publisher).WithAttachmentRemover(blobs)
	recalc := services.NewRecalcService(repo, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := services.NewRecalcProcessor(recalc, services.RecalcProcessorConfig{
		SweepInterval: cfg.RecalcSweepInterval,
	})
	if err := processor.Start(ctx); err != nil {
		appLog.Error("Failed to start recalculation processor", xlog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, cfg.JWTSecret, budget, recalc, repo, blobs,
		logger.WithComponent(xlog.ComponentHTTP))

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		appLog.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := processor.Stop(shutdownCtx); err != nil {
			appLog.Error("Recalculation processor shutdown error", xlog.FieldError, err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLog.Error("Server shutdown error", xlog.FieldError, err)
		}
		cancel()
	}()

	appLog.Info("Starting festa server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("Server error", xlog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	appLog.Info("Server stopped gracefully")
}
