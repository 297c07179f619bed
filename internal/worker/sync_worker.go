package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"summit/internal/amqp"
	"summit/internal/services"
)

// Config tunes the periodic backfill.
type Config struct {
	// BatchSize is the max number of runs synced per poll (default: 10).
	BatchSize int
	// Interval is how often unsynced runs are looked for (default: 30s).
	Interval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 10, Interval: 30 * time.Second}
}

// SyncWorker mirrors processed datasets to the spreadsheet. It reacts to
// dataset events and periodically backfills runs whose event was lost.
type SyncWorker struct {
	sync   *services.SyncService
	config Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncWorker(syncService *services.SyncService, config Config) *SyncWorker {
	def := DefaultConfig()
	if config.BatchSize < 1 {
		config.BatchSize = def.BatchSize
	}
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	return &SyncWorker{sync: syncService, config: config}
}

// HandleMessage applies one dataset event.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.DatasetEventMessage) error {
	key := msg.Dataset()
	slog.InfoContext(ctx, "Processing dataset event",
		"id", msg.ID,
		"event", msg.Event,
		"dataset", key.String(),
		"run_id", msg.RunID)

	switch msg.Event {
	case amqp.EventDatasetProcessed:
		if err := w.sync.SyncDataset(ctx, key, msg.RunID); err != nil {
			return fmt.Errorf("sync dataset %s: %w", key, err)
		}
	case amqp.EventDatasetCleared:
		if err := w.sync.ClearDataset(ctx, key); err != nil {
			return fmt.Errorf("clear dataset %s: %w", key, err)
		}
	default:
		slog.WarnContext(ctx, "Ignoring unknown dataset event", "event", msg.Event)
	}
	return nil
}

// StartupSyncCheck syncs a larger batch of pending runs, recovering from
// worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.sync.Backfill(ctx, w.config.BatchSize*5)
	if n > 0 || err != nil {
		slog.InfoContext(ctx, "Startup sync completed", "synced", n, "error", err)
	}
	if err != nil {
		return fmt.Errorf("startup sync: %w", err)
	}
	return nil
}

// Start begins the backfill loop. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Sync worker started",
		"interval", w.config.Interval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for the current batch to finish.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync worker stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync worker stop timed out")
		return ctx.Err()
	}
}

func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	w.mu.Lock()
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.sync.Backfill(ctx, w.config.BatchSize)
			if err != nil {
				slog.ErrorContext(ctx, "Backfill failed", "error", err)
			}
			if n > 0 {
				slog.InfoContext(ctx, "Backfilled processed datasets", "count", n)
			}
		}
	}
}
