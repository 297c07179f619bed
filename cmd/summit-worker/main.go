package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"summit/internal/amqp"
	"summit/internal/cli"
	"summit/internal/log"
	"summit/internal/services"
	"summit/internal/sheets"
	gsheet "summit/internal/sheets/google"
	"summit/internal/sheets/memory"
	"summit/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting summit-worker")

	repo := cli.OpenRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mirror sheets.Mirror
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			TabPrefix:       cfg.SheetsTabPrefix,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		mirror = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memory.New(cfg.SheetsTabPrefix)
		logger.Info("Google Sheets disabled - mirroring processed journals in memory")
	}

	syncWorker := worker.NewSyncWorker(
		services.NewSyncService(repo, mirror, 4),
		worker.Config{BatchSize: cfg.SyncBatchSize, Interval: cfg.SyncInterval},
	)

	// Datasets processed while the worker was down are picked up here.
	logger.Info("Performing startup sync check...")
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			err := amqpClient.ConsumeWithReconnect(gctx, syncWorker.HandleMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic backfill only")
	}

	g.Go(func() error {
		if err := syncWorker.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return syncWorker.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", "error", err)
		return
	}
	logger.Info("Worker shutdown complete")
}
