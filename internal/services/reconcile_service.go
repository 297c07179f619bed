package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"summit/internal/amqp"
	"summit/internal/cache"
	"summit/internal/core"
	"summit/internal/export"
	"summit/internal/reconcile"
	"summit/internal/storage"
)

// EventPublisher announces dataset changes to the sync worker.
type EventPublisher interface {
	PublishDatasetEvent(ctx context.Context, msg *amqp.DatasetEventMessage) error
}

// Options tune a ReconcileService.
type Options struct {
	// EUSubsidiaryID selects the subsidiary that uploads the EU/AED journal set.
	EUSubsidiaryID int64
	// StatusCacheTTL keeps dataset status for repeated polls; zero disables it.
	StatusCacheTTL time.Duration
	// StatusCacheSize bounds the number of cached datasets.
	StatusCacheSize int
}

// ReconcileService runs the dataset workflow: journals and installments in,
// proportional reduction, verification, exports and reset.
type ReconcileService struct {
	storage   *storage.SQLiteRepository
	publisher EventPublisher
	status    *cache.LRUCache[DatasetStatus]
	process   singleflight.Group
	euSubID   int64
}

func NewReconcileService(repo *storage.SQLiteRepository, publisher EventPublisher, opts Options) *ReconcileService {
	size := opts.StatusCacheSize
	if size <= 0 {
		size = 256
	}
	return &ReconcileService{
		storage:   repo,
		publisher: publisher,
		status:    cache.NewLRUCache[DatasetStatus](size, opts.StatusCacheTTL),
		euSubID:   opts.EUSubsidiaryID,
	}
}

// StatusCache exposes the status cache so it can be swept by a cache.Manager.
func (s *ReconcileService) StatusCache() cache.Cleaner { return s.status }

// StatusCacheEntries reports how many dataset states are cached.
func (s *ReconcileService) StatusCacheEntries() int { return s.status.Size() }

// Ready checks the database.
func (s *ReconcileService) Ready(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// JournalTypes lists the journal types the subsidiary uploads.
func (s *ReconcileService) JournalTypes(key core.DatasetKey) []core.JournalType {
	return core.UploadJournalTypes(s.euSubID > 0 && key.SubsidiaryID == s.euSubID)
}

// DatasetStatus is the state of one dataset and its totals.
type DatasetStatus struct {
	Dataset        core.DatasetKey
	State          core.DatasetState
	Counts         storage.DatasetCounts
	Journals       []core.JournalSummary
	OriginalTotal  decimal.Decimal
	Processed      []core.JournalSummary
	ProcessedTotal decimal.Decimal
	SummitTotal    decimal.Decimal
	Run            *core.ProcessingRun
}

// Status reports the dataset state. Results are cached briefly and every
// mutation of the dataset drops its entry.
func (s *ReconcileService) Status(ctx context.Context, key core.DatasetKey) (DatasetStatus, error) {
	if err := key.Validate(); err != nil {
		return DatasetStatus{}, err
	}
	return s.status.Load(key.String(), func() (DatasetStatus, error) {
		return s.loadStatus(ctx, key)
	})
}

func (s *ReconcileService) loadStatus(ctx context.Context, key core.DatasetKey) (DatasetStatus, error) {
	st := DatasetStatus{Dataset: key, OriginalTotal: decimal.Zero, ProcessedTotal: decimal.Zero, SummitTotal: decimal.Zero}

	counts, err := s.storage.Counts(ctx, key)
	if err != nil {
		return st, err
	}
	st.Counts = counts
	st.State = counts.State()

	if st.Journals, err = s.storage.JournalSummaries(ctx, key); err != nil {
		return st, err
	}
	st.OriginalTotal = totalOf(st.Journals)

	if counts.Processed == 0 {
		return st, nil
	}

	if st.Processed, err = s.storage.ProcessedSummaries(ctx, key); err != nil {
		return st, err
	}
	st.ProcessedTotal = totalOf(st.Processed)
	for _, sum := range st.Processed {
		if sum.JournalType == core.JournalSummitInstallments {
			st.SummitTotal = sum.Total
		}
	}

	run, err := s.storage.Run(ctx, key)
	switch {
	case err == nil:
		st.Run = &run
	case !errors.Is(err, storage.ErrNotFound):
		return st, err
	}
	return st, nil
}

// JournalUploadResult describes one stored journal file.
type JournalUploadResult struct {
	JournalType core.JournalType
	Created     int
	Total       decimal.Decimal
	State       core.DatasetState
}

// UploadJournals stores one journal file of a dataset. Each journal type is
// uploaded once; processed datasets must be cleared first.
func (s *ReconcileService) UploadJournals(ctx context.Context, key core.DatasetKey, journalType core.JournalType, filename string, records []core.Record) (JournalUploadResult, error) {
	res := JournalUploadResult{JournalType: journalType, Total: decimal.Zero}
	if err := key.Validate(); err != nil {
		return res, err
	}
	if !slices.Contains(s.JournalTypes(key), journalType) {
		return res, &core.ValidationError{Message: fmt.Sprintf("journal type %s is not uploaded by subsidiary %d", journalType, key.SubsidiaryID)}
	}
	if len(records) == 0 {
		return res, &core.ValidationError{Message: "no journal rows to upload"}
	}

	rows, err := core.NewJournalRows(key, journalType, filename, records)
	if err != nil {
		return res, err
	}

	err = s.storage.InTx(ctx, func(tx *storage.SQLiteRepository) error {
		counts, err := tx.Counts(ctx, key)
		if err != nil {
			return err
		}
		if counts.Processed > 0 {
			return &core.ConflictError{Message: "dataset has already been processed, clear it before uploading journals"}
		}
		if err := tx.InsertJournalRows(ctx, rows); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return &core.ConflictError{Message: fmt.Sprintf("%s journal already uploaded for this dataset", journalType)}
			}
			return err
		}
		counts.Journals += len(rows)
		res.State = counts.State()
		return nil
	})
	s.invalidate(key)
	if err != nil {
		return res, err
	}

	res.Created = len(rows)
	res.Total = reconcile.TotalJournal(rows)
	slog.InfoContext(ctx, "Journal uploaded",
		"job_id", key.JobID,
		"subsidiary_id", key.SubsidiaryID,
		"journal_type", journalType,
		"rows", res.Created)
	return res, nil
}

// JournalUploadState is the upload progress of one expected journal type.
type JournalUploadState struct {
	JournalType core.JournalType
	Uploaded    bool
	Count       int
	Total       decimal.Decimal
}

// JournalsUploadStatus lists every expected journal type of the dataset.
func (s *ReconcileService) JournalsUploadStatus(ctx context.Context, key core.DatasetKey) ([]JournalUploadState, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	summaries, err := s.storage.JournalSummaries(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]JournalUploadState, 0, len(summaries))
	for _, jt := range s.JournalTypes(key) {
		st := JournalUploadState{JournalType: jt, Total: decimal.Zero}
		for _, sum := range summaries {
			if sum.JournalType == jt {
				st.Uploaded, st.Count, st.Total = true, sum.Count, sum.Total
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// CombinedData returns every uploaded journal row of the dataset.
func (s *ReconcileService) CombinedData(ctx context.Context, key core.DatasetKey) ([]core.JournalRow, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	rows, err := s.storage.JournalRows(ctx, key, "")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &core.NotFoundError{Message: "no journals uploaded for this dataset"}
	}
	return rows, nil
}

// SummitUploadResult describes a stored installment upload.
type SummitUploadResult struct {
	UploadedCount      int
	ClientCount        int
	DuplicatesCombined int
	SkippedCount       int
	TotalAmount        decimal.Decimal
}

// UploadSummit aggregates installment lines per client and stores them.
// Lines with a blank or zero amount are skipped.
func (s *ReconcileService) UploadSummit(ctx context.Context, key core.DatasetKey, lines []core.InstallmentLine) (SummitUploadResult, error) {
	res := SummitUploadResult{TotalAmount: decimal.Zero}
	if err := key.Validate(); err != nil {
		return res, err
	}

	kept, skipped := reconcile.FilterBlank(lines)
	if len(kept) == 0 {
		return res, &core.ValidationError{Message: "no installment lines with an amount"}
	}
	records, err := reconcile.Aggregate(key, kept)
	if err != nil {
		return res, err
	}

	err = s.storage.InTx(ctx, func(tx *storage.SQLiteRepository) error {
		counts, err := tx.Counts(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case counts.Processed > 0:
			return &core.ConflictError{Message: "dataset has already been processed, clear it before uploading summit data"}
		case counts.Installments > 0:
			return &core.ConflictError{Message: "summit data already uploaded for this dataset"}
		case counts.Journals == 0:
			return &core.StateError{Message: "journals must be uploaded before summit data"}
		}
		if err := tx.InsertInstallments(ctx, records); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return &core.ConflictError{Message: "summit data already uploaded for this dataset"}
			}
			return err
		}
		return nil
	})
	s.invalidate(key)
	if err != nil {
		return res, err
	}

	res.UploadedCount = len(kept)
	res.ClientCount = len(records)
	res.DuplicatesCombined = reconcile.DuplicatesCombined(records)
	res.SkippedCount = skipped
	for _, r := range records {
		res.TotalAmount = res.TotalAmount.Add(r.Amount)
	}

	slog.InfoContext(ctx, "Summit data uploaded",
		"job_id", key.JobID,
		"subsidiary_id", key.SubsidiaryID,
		"lines", res.UploadedCount,
		"clients", res.ClientCount,
		"skipped", res.SkippedCount)
	return res, nil
}

// MatchSummary is a match preview with its totals.
type MatchSummary struct {
	Results []core.MatchResult
	Totals  reconcile.MatchTotals
}

// MatchSummit classifies the installments against the original journals
// and stores the result. Journal rows are not modified.
func (s *ReconcileService) MatchSummit(ctx context.Context, key core.DatasetKey) (MatchSummary, error) {
	var out MatchSummary
	if err := key.Validate(); err != nil {
		return out, err
	}

	err := s.storage.InTx(ctx, func(tx *storage.SQLiteRepository) error {
		counts, err := tx.Counts(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case counts.Journals == 0:
			return &core.StateError{Message: "journals must be uploaded before matching"}
		case counts.Installments == 0:
			return &core.StateError{Message: "summit data must be uploaded before matching"}
		case counts.Matches > 0:
			return &core.ConflictError{Message: "summit data already matched, clear the match results first"}
		}

		rows, err := tx.JournalRows(ctx, key, "")
		if err != nil {
			return err
		}
		installments, err := tx.Installments(ctx, key)
		if err != nil {
			return err
		}
		out.Results = reconcile.Preview(rows, installments)
		return tx.InsertMatchResults(ctx, key, out.Results)
	})
	s.invalidate(key)
	if err != nil {
		return MatchSummary{}, err
	}

	out.Totals = reconcile.Summarise(out.Results)
	slog.InfoContext(ctx, "Summit data matched",
		"job_id", key.JobID,
		"subsidiary_id", key.SubsidiaryID,
		"matched", out.Totals.MatchedCount,
		"insufficient", out.Totals.InsufficientCount,
		"unmatched", out.Totals.UnmatchedCount)
	return out, nil
}

// MatchResults returns the stored match preview.
func (s *ReconcileService) MatchResults(ctx context.Context, key core.DatasetKey) (MatchSummary, error) {
	if err := key.Validate(); err != nil {
		return MatchSummary{}, err
	}
	results, err := s.storage.MatchResults(ctx, key, "")
	if err != nil {
		return MatchSummary{}, err
	}
	if len(results) == 0 {
		return MatchSummary{}, &core.NotFoundError{Message: "no match results for this dataset"}
	}
	return MatchSummary{Results: results, Totals: reconcile.Summarise(results)}, nil
}

// MatchResultsExport renders stored match results of one status; the empty
// status selects all of them.
func (s *ReconcileService) MatchResultsExport(ctx context.Context, key core.DatasetKey, status core.MatchStatus) (export.Table, error) {
	if err := key.Validate(); err != nil {
		return export.Table{}, err
	}
	results, err := s.storage.MatchResults(ctx, key, status)
	if err != nil {
		return export.Table{}, err
	}
	if len(results) == 0 {
		return export.Table{}, &core.NotFoundError{Message: "no match results for this dataset"}
	}
	return export.MatchResultsTable(results), nil
}

// ClearMatches drops the match preview of a dataset.
func (s *ReconcileService) ClearMatches(ctx context.Context, key core.DatasetKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	n, err := s.storage.DeleteMatchResults(ctx, key)
	s.invalidate(key)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, &core.NotFoundError{Message: "no match results to clear"}
	}
	return n, nil
}

// ProcessOutcome is the result of a process call.
type ProcessOutcome struct {
	Run   core.ProcessingRun
	Files []core.GeneratedFile
}

// Process applies the installments to a copy of the journals, appends the
// installment rows and verifies the dataset total. A failed verification
// is reported in the run; the processed rows are kept.
//
// A dataset is processed at most once until it is cleared. Concurrent calls
// for the same dataset share one execution; a call after completion gets a
// ConflictError.
func (s *ReconcileService) Process(ctx context.Context, key core.DatasetKey) (ProcessOutcome, error) {
	if err := key.Validate(); err != nil {
		return ProcessOutcome{}, err
	}

	// The shared execution must not be cut short by the first caller leaving.
	detached := context.WithoutCancel(ctx)
	v, err, shared := s.process.Do(key.String(), func() (any, error) {
		return s.runProcess(detached, key)
	})
	if shared {
		slog.DebugContext(ctx, "Process call joined a run in flight", "dataset", key.String())
	}
	if err != nil {
		return ProcessOutcome{}, err
	}
	return v.(ProcessOutcome), nil
}

func (s *ReconcileService) runProcess(ctx context.Context, key core.DatasetKey) (ProcessOutcome, error) {
	runID := uuid.NewString()
	var files []core.GeneratedFile
	var verification reconcile.Verification

	err := s.storage.InTx(ctx, func(tx *storage.SQLiteRepository) error {
		counts, err := tx.Counts(ctx, key)
		if err != nil {
			return err
		}
		switch {
		case counts.Journals == 0:
			return &core.NotFoundError{Message: "no journals found for this dataset"}
		case counts.Processed > 0:
			return &core.ConflictError{Message: "dataset has already been processed"}
		case counts.Installments == 0:
			return &core.StateError{Message: "summit data must be uploaded before processing"}
		}

		if err := tx.BeginRun(ctx, key, runID); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				return &core.ConflictError{Message: "dataset has already been processed"}
			}
			return err
		}
		if _, err := tx.CopyToProcessed(ctx, key); err != nil {
			return err
		}

		rows, err := tx.ProcessedRows(ctx, key, "")
		if err != nil {
			return err
		}
		installments, err := tx.Installments(ctx, key)
		if err != nil {
			return err
		}

		result := reconcile.Reduce(rows, installments)
		if err := tx.UpdateProcessedAmounts(ctx, result.Updated); err != nil {
			return err
		}
		if err := tx.InsertProcessedRows(ctx, result.Appended); err != nil {
			return err
		}

		original, err := tx.JournalSummaries(ctx, key)
		if err != nil {
			return err
		}
		processed, err := tx.ProcessedSummaries(ctx, key)
		if err != nil {
			return err
		}
		verification = reconcile.Verify(totalOf(original), totalOf(processed))
		for _, sum := range processed {
			files = append(files, core.GeneratedFile{JournalType: sum.JournalType, RowCount: sum.Count, TotalAmount: sum.Total})
		}

		return tx.CompleteRun(ctx, core.ProcessingRun{
			ID:                   runID,
			Dataset:              key,
			MatchedCount:         result.MatchedCount,
			UnmatchedCount:       result.UnmatchedCount,
			TotalSummitAmount:    result.TotalSummitAmount,
			UnmatchedSummitTotal: result.UnmatchedSummitTotal,
			OriginalTotal:        verification.OriginalTotal,
			ProcessedTotal:       verification.ProcessedTotal,
			Difference:           verification.Difference,
			VerificationPassed:   verification.Passed,
			Unmatched:            result.Unmatched,
		})
	})
	s.invalidate(key)
	if err != nil {
		return ProcessOutcome{}, err
	}

	run, err := s.storage.Run(ctx, key)
	if err != nil {
		return ProcessOutcome{}, fmt.Errorf("read processing run: %w", err)
	}

	if !verification.Passed {
		slog.WarnContext(ctx, "Processed totals do not balance",
			"job_id", key.JobID,
			"subsidiary_id", key.SubsidiaryID,
			"run_id", runID,
			"original_total", verification.OriginalTotal.String(),
			"processed_total", verification.ProcessedTotal.String(),
			"difference", verification.Difference.String())
	}
	slog.InfoContext(ctx, "Dataset processed",
		"job_id", key.JobID,
		"subsidiary_id", key.SubsidiaryID,
		"run_id", runID,
		"matched", run.MatchedCount,
		"unmatched", run.UnmatchedCount,
		"verification_passed", run.VerificationPassed)

	s.publish(ctx, amqp.EventDatasetProcessed, key, runID)
	return ProcessOutcome{Run: run, Files: files}, nil
}

// ClearResult counts the rows removed by a reset.
type ClearResult struct {
	Journals     int64
	Installments int64
	Processed    int64
	Matches      int64
	Runs         int64
}

// Clear resets a dataset to its uploaded journals: installments, processed
// rows, match results and the processing run are removed in one
// transaction.
func (s *ReconcileService) Clear(ctx context.Context, key core.DatasetKey) (ClearResult, error) {
	return s.clear(ctx, key, false)
}

// ClearJournals removes everything stored for the dataset, journals
// included.
func (s *ReconcileService) ClearJournals(ctx context.Context, key core.DatasetKey) (ClearResult, error) {
	return s.clear(ctx, key, true)
}

func (s *ReconcileService) clear(ctx context.Context, key core.DatasetKey, journals bool) (ClearResult, error) {
	var res ClearResult
	if err := key.Validate(); err != nil {
		return res, err
	}

	err := s.storage.InTx(ctx, func(tx *storage.SQLiteRepository) error {
		counts, err := tx.Counts(ctx, key)
		if err != nil {
			return err
		}
		if counts == (storage.DatasetCounts{}) {
			return &core.NotFoundError{Message: "no data found for this dataset"}
		}

		if res.Installments, err = tx.DeleteInstallments(ctx, key); err != nil {
			return err
		}
		if res.Processed, err = tx.DeleteProcessed(ctx, key); err != nil {
			return err
		}
		if res.Matches, err = tx.DeleteMatchResults(ctx, key); err != nil {
			return err
		}
		if res.Runs, err = tx.DeleteRun(ctx, key); err != nil {
			return err
		}
		if journals {
			if res.Journals, err = tx.DeleteJournals(ctx, key); err != nil {
				return err
			}
		}
		return nil
	})
	s.invalidate(key)
	if err != nil {
		return ClearResult{}, err
	}

	slog.InfoContext(ctx, "Dataset cleared",
		"job_id", key.JobID,
		"subsidiary_id", key.SubsidiaryID,
		"journals", res.Journals,
		"installments", res.Installments,
		"processed", res.Processed,
		"matches", res.Matches)

	if res.Processed > 0 || res.Runs > 0 {
		s.publish(ctx, amqp.EventDatasetCleared, key, "")
	}
	return res, nil
}

// ListJournals lists the processed journals available for download.
func (s *ReconcileService) ListJournals(ctx context.Context, key core.DatasetKey) ([]core.JournalSummary, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	summaries, err := s.storage.ProcessedSummaries(ctx, key)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []core.JournalSummary{}
	}
	return summaries, nil
}

// JournalExport lays out one processed journal for download.
func (s *ReconcileService) JournalExport(ctx context.Context, key core.DatasetKey, journalType core.JournalType) (export.Table, error) {
	if err := key.Validate(); err != nil {
		return export.Table{}, err
	}
	rows, err := s.storage.ProcessedRows(ctx, key, journalType)
	if err != nil {
		return export.Table{}, err
	}
	if len(rows) == 0 {
		return export.Table{}, &core.NotFoundError{Message: fmt.Sprintf("no processed %s journal for this dataset", journalType)}
	}
	return export.JournalTable(rows), nil
}

// UnmatchedExport lists the installments the last process call left out.
func (s *ReconcileService) UnmatchedExport(ctx context.Context, key core.DatasetKey) (export.Table, error) {
	if err := key.Validate(); err != nil {
		return export.Table{}, err
	}
	run, err := s.storage.Run(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return export.Table{}, &core.NotFoundError{Message: "dataset has not been processed"}
	}
	if err != nil {
		return export.Table{}, err
	}
	if len(run.Unmatched) == 0 {
		return export.Table{}, &core.NotFoundError{Message: "no unmatched installments for this dataset"}
	}
	return export.UnmatchedTable(run.Unmatched), nil
}

func (s *ReconcileService) invalidate(key core.DatasetKey) {
	s.status.Delete(key.String())
}

// publish sends a dataset event. Failures are logged; the dataset change
// is already committed and the worker backfill catches up.
func (s *ReconcileService) publish(ctx context.Context, event amqp.EventType, key core.DatasetKey, runID string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "No event publisher configured, skipping dataset event", "event", event)
		return
	}
	msg := amqp.NewDatasetEventMessage(event, key, runID)
	if err := s.publisher.PublishDatasetEvent(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish dataset event",
			"event", event,
			"job_id", key.JobID,
			"subsidiary_id", key.SubsidiaryID,
			"error", err)
	}
}

// Close closes storage and the publisher when it can be closed.
func (s *ReconcileService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	return errors.Join(errs...)
}

func totalOf(summaries []core.JournalSummary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.Total)
	}
	return total
}
