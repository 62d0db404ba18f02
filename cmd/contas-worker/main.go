package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"contas/internal/amqp"
	"contas/internal/config"
	"contas/internal/core"
	"contas/internal/services"
	"contas/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting contas-worker")

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

	// AMQP is optional: without it sheets still materialize, they just
	// stop announcing themselves to the export worker.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange)
		}
	} else {
		logger.Info("AMQP disabled - sheet events will not be published")
	}

	sheetService := services.NewSheetService(repo, amqpClient)
	settlementService := services.NewSettlementService(repo, sheetService, amqpClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Materialization loop configured",
		"interval", cfg.MaterializeInterval,
		"concurrency", cfg.MaterializeConcurrency,
		"settlement_day", cfg.SettlementDay)

	ticker := time.NewTicker(cfg.MaterializeInterval)
	defer ticker.Stop()

	runPass(ctx, cfg, sheetService, settlementService, repo, time.Now())

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				runPass(ctx, cfg, sheetService, settlementService, repo, now)
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

	logger.Info("Shutting down contas-worker...")
	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("Contas-worker shutdown complete")
}

// runPass refreshes the current month's sheet for every active account,
// then settles joint accounts whose settlement date arrived.
func runPass(ctx context.Context, cfg *config.Config, sheets *services.SheetService, settlements *services.SettlementService, repo *storage.Repository, now time.Time) {
	accounts, err := repo.ListActiveAccounts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list accounts", "error", err)
		return
	}

	year, month := now.Year(), int(now.Month())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaterializeConcurrency)
	for _, account := range accounts {
		account := account
		g.Go(func() error {
			if _, err := sheets.Refresh(gctx, account.OwnerID, account.ID, year, month); err != nil {
				slog.ErrorContext(gctx, "Failed to refresh sheet",
					"owner_id", account.OwnerID,
					"account_id", account.ID,
					"error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "Materialization pass failed", "error", err)
		return
	}

	settleDue(ctx, cfg, settlements, repo, now)

	slog.InfoContext(ctx, "Materialization pass complete",
		"accounts", len(accounts),
		"period", now.Format("2006-01"))
}

// settleDue runs settlement for each joint account at most once per
// settlement date: only when the configured day of the month has passed
// and the account has not settled since.
func settleDue(ctx context.Context, cfg *config.Config, settlements *services.SettlementService, repo *storage.Repository, now time.Time) {
	joints, err := repo.ListActiveJointAccounts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to list joint accounts", "error", err)
		return
	}

	due := core.NewDate(now.Year(), int(now.Month()), cfg.SettlementDay)
	today := core.DateOf(now)
	for _, account := range joints {
		if today.Before(due.Time) {
			continue
		}
		if !account.LastSettlementAt.IsZero() && !account.LastSettlementAt.Before(due.Time) {
			continue
		}
		result, err := settlements.Settle(ctx, account.ID, now)
		if err != nil {
			slog.ErrorContext(ctx, "Settlement failed", "account_id", account.ID, "error", err)
			continue
		}
		slog.InfoContext(ctx, "Settlement complete",
			"account_id", account.ID,
			"net_cents", result.Net.Cents,
			"postings", len(result.Postings))
	}
}
