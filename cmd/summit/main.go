package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"summit/internal/amqp"
	"summit/internal/cache"
	"summit/internal/cli"
	apphttp "summit/internal/http"
	"summit/internal/log"
	"summit/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	repo := cli.OpenRepository(logger, cfg.SQLiteDBPath)

	// A nil *amqp.Client must not reach the service as a non-nil interface.
	var publisher services.EventPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			_ = repo.Close()
			os.Exit(1)
		}
		publisher = client
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - dataset events will not be published")
	}

	svc := services.NewReconcileService(repo, publisher, services.Options{
		EUSubsidiaryID: cfg.EUSubsidiaryID,
		StatusCacheTTL: cfg.StatusCacheTTL,
	})
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("Failed to close service", "error", err)
		}
	}()

	caches := cache.NewManager()
	caches.Register(svc.StatusCache())
	if cfg.StatusCacheTTL > 0 {
		caches.StartCleanup(time.Minute)
	}
	defer caches.Stop()

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		MaxUploadBytes:     cfg.MaxUploadBytes,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting summit server",
		"port", cfg.Port,
		"db", cfg.SQLiteDBPath,
		"eu_subsidiary_id", cfg.EUSubsidiaryID)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		cancel()
		return
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
