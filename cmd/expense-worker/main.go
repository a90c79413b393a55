package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"expense/internal/amqp"
	"expense/internal/cli"
	"expense/internal/config"
	"expense/internal/log"
	gsheet "expense/internal/sheets/google"
	"expense/internal/storage"
	"expense/internal/worker"
)

func main() {
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	flag.Parse()

	if err := cli.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(os.Stdout, os.Getenv("LOG_LEVEL")).WithComponent(log.ComponentWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(ctx context.Context, logger *log.Logger) error {
	logger.Info("Starting expense-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		return err
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("initialize SQLite repository at %s: %w", cfg.SQLiteDBPath, err)
	}
	defer repo.Close()

	credentials, err := cfg.ServiceAccountJSON()
	if err != nil {
		return err
	}
	sheets, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: credentials,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	if err := sheets.EnsureHeader(ctx); err != nil {
		return err
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer consumer.Close()

	w := worker.NewMirrorWorker(repo, sheets, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Events consumed meanwhile may be overwritten by older state; the
		// next event for the same id corrects the row.
		if err := w.StartupSync(gctx); err != nil {
			logger.Error("Startup sync incomplete", log.FieldError, err)
		}
		return nil
	})
	g.Go(func() error {
		return w.Run(gctx, consumer)
	})
	return g.Wait()
}
