package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"summit/internal/core"
	"summit/internal/export"
	"summit/internal/sheets"
	"summit/internal/storage"
)

// SyncService mirrors processed datasets into a spreadsheet.
type SyncService struct {
	storage     *storage.SQLiteRepository
	mirror      sheets.Mirror
	concurrency int
}

// NewSyncService creates a sync service writing at most concurrency journal
// tabs at once.
func NewSyncService(repo *storage.SQLiteRepository, mirror sheets.Mirror, concurrency int) *SyncService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncService{storage: repo, mirror: mirror, concurrency: concurrency}
}

// SyncDataset writes every processed journal of the dataset to its tab and
// marks the run as synced. An empty runID syncs whatever run is current;
// otherwise a run that was cleared or replaced since is skipped.
func (s *SyncService) SyncDataset(ctx context.Context, key core.DatasetKey, runID string) error {
	run, err := s.storage.Run(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		slog.InfoContext(ctx, "Dataset no longer processed, skipping sync", "dataset", key.String(), "run_id", runID)
		return nil
	}
	if err != nil {
		return err
	}
	if runID != "" && run.ID != runID {
		slog.InfoContext(ctx, "Stale processing run, skipping sync",
			"dataset", key.String(),
			"run_id", runID,
			"current_run_id", run.ID)
		return nil
	}
	if !run.Completed() {
		return fmt.Errorf("processing run %s of %s is not complete", run.ID, key)
	}

	summaries, err := s.storage.ProcessedSummaries(ctx, key)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, sum := range summaries {
		journalType := sum.JournalType
		g.Go(func() error {
			rows, err := s.storage.ProcessedRows(gctx, key, journalType)
			if err != nil {
				return err
			}
			if _, err := s.mirror.WriteJournal(gctx, key, journalType, export.JournalTable(rows)); err != nil {
				return fmt.Errorf("write %s journal: %w", journalType, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.storage.MarkRunSynced(ctx, key, run.ID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			slog.WarnContext(ctx, "Run cleared while syncing", "dataset", key.String(), "run_id", run.ID)
			return nil
		}
		return err
	}

	slog.InfoContext(ctx, "Dataset synced to spreadsheet",
		"dataset", key.String(),
		"run_id", run.ID,
		"journals", len(summaries))
	return nil
}

// ClearDataset removes the dataset's tabs. A dataset that was processed
// again in the meantime is left alone.
func (s *SyncService) ClearDataset(ctx context.Context, key core.DatasetKey) error {
	if _, err := s.storage.Run(ctx, key); err == nil {
		slog.InfoContext(ctx, "Dataset processed again, keeping its tabs", "dataset", key.String())
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	if err := s.mirror.ClearDataset(ctx, key); err != nil {
		return fmt.Errorf("clear dataset tabs: %w", err)
	}
	return nil
}

// Backfill syncs up to limit completed runs that were never mirrored. It
// returns how many were synced; a failing dataset does not stop the others.
func (s *SyncService) Backfill(ctx context.Context, limit int) (int, error) {
	runs, err := s.storage.UnsyncedRuns(ctx, limit)
	if err != nil {
		return 0, err
	}

	synced := 0
	var errs []error
	for _, run := range runs {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		if err := s.SyncDataset(ctx, run.Dataset, run.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync dataset", "dataset", run.Dataset.String(), "run_id", run.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		synced++
	}
	return synced, errors.Join(errs...)
}
