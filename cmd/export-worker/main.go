package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"contas/internal/amqp"
	"contas/internal/config"
	"contas/internal/export"
	"contas/internal/export/google"
	"contas/internal/export/memory"
	"contas/internal/storage"
	"contas/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting export-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	exporter, err := newExporter(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize exporter", "error", err, "backend", cfg.ExportBackend)
		os.Exit(1)
	}
	logger.Info("Exporter initialized", "backend", cfg.ExportBackend)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exportWorker := worker.NewExportWorker(repo, exporter)

	// Catch up on anything exported while the worker was down.
	logger.Info("Performing startup export scan...")
	if err := exportWorker.ExportAll(ctx); err != nil {
		logger.Error("Startup export scan failed", "error", err)
		// Don't exit - the event stream still works.
	}

	go func() {
		if err := amqpClient.Consume(ctx, exportWorker.Handler(ctx)); err != nil {
			if err != context.Canceled {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	// Periodic scan for missed events.
	ticker := time.NewTicker(cfg.ExportScanInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := exportWorker.ExportAll(ctx); err != nil {
					logger.Error("Periodic export scan failed", "error", err)
				}
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down export-worker...")
	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("Export-worker shutdown complete")
}

func newExporter(ctx context.Context, cfg *config.Config) (export.SheetExporter, error) {
	switch cfg.ExportBackend {
	case export.GoogleBackend:
		return google.NewFromEnv(ctx)
	default:
		return memory.New(), nil
	}
}
