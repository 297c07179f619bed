package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"summit/internal/core"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
)

// DatasetCounts holds the row counts the dataset state is derived from.
type DatasetCounts struct {
	Journals     int
	Installments int
	Processed    int
	Matches      int
}

// State derives the workflow position from the counts.
func (c DatasetCounts) State() core.DatasetState {
	return core.DeriveState(c.Journals, c.Installments, c.Processed)
}

type SQLiteRepository struct {
	db      *sql.DB
	tx      *sql.Tx
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dataSourceName(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && r.tx == nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// InTx runs fn against a repository bound to one transaction. The
// transaction commits when fn returns nil and rolls back otherwise. Calls on
// a repository already bound to a transaction join it.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(tx *SQLiteRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txRepo := &SQLiteRepository{db: r.db, tx: tx, queries: r.queries.WithTx(tx)}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Counts returns the row counts of every table of a dataset.
func (r *SQLiteRepository) Counts(ctx context.Context, key core.DatasetKey) (DatasetCounts, error) {
	p := params(key)
	var c DatasetCounts

	journals, err := r.queries.CountJournalRows(ctx, p)
	if err != nil {
		return c, fmt.Errorf("count journal rows: %w", err)
	}
	installments, err := r.queries.CountInstallmentRecords(ctx, p)
	if err != nil {
		return c, fmt.Errorf("count installment records: %w", err)
	}
	processed, err := r.queries.CountProcessedRows(ctx, p)
	if err != nil {
		return c, fmt.Errorf("count processed rows: %w", err)
	}
	matches, err := r.queries.CountMatchResults(ctx, p)
	if err != nil {
		return c, fmt.Errorf("count match results: %w", err)
	}

	c.Journals = int(journals)
	c.Installments = int(installments)
	c.Processed = int(processed)
	c.Matches = int(matches)
	return c, nil
}

// InsertJournalRows stores one uploaded journal file. A journal type that
// already has rows for the dataset is rejected with ErrAlreadyExists.
func (r *SQLiteRepository) InsertJournalRows(ctx context.Context, rows []core.JournalRow) error {
	return r.InTx(ctx, func(tx *SQLiteRepository) error {
		seen := make(map[core.JournalType]bool)
		for _, row := range rows {
			if seen[row.JournalType] {
				continue
			}
			seen[row.JournalType] = true
			n, err := tx.queries.CountJournalRowsByType(ctx, CountJournalRowsByTypeParams{
				JobID:        row.Dataset.JobID,
				SubsidiaryID: row.Dataset.SubsidiaryID,
				JournalType:  string(row.JournalType),
			})
			if err != nil {
				return fmt.Errorf("count journal rows: %w", err)
			}
			if n > 0 {
				return fmt.Errorf("journal %s: %w", row.JournalType, ErrAlreadyExists)
			}
		}

		for _, row := range rows {
			cols, err := json.Marshal(row.Columns)
			if err != nil {
				return fmt.Errorf("encode journal columns: %w", err)
			}
			err = tx.queries.CreateJournalRow(ctx, CreateJournalRowParams{
				JobID:         row.Dataset.JobID,
				SubsidiaryID:  row.Dataset.SubsidiaryID,
				JournalType:   string(row.JournalType),
				ClientID:      row.ClientID,
				InvoiceNumber: row.InvoiceNumber,
				Amount:        row.Amount.String(),
				ColumnsJson:   string(cols),
				Filename:      row.Filename,
			})
			if err != nil {
				return fmt.Errorf("create journal row: %w", err)
			}
		}
		return nil
	})
}

// JournalRows lists the original rows of a dataset, optionally of one type.
func (r *SQLiteRepository) JournalRows(ctx context.Context, key core.DatasetKey, journalType core.JournalType) ([]core.JournalRow, error) {
	var (
		dbRows []JournalRow
		err    error
	)
	if journalType == "" {
		dbRows, err = r.queries.ListJournalRows(ctx, params(key))
	} else {
		dbRows, err = r.queries.ListJournalRowsByType(ctx, ListJournalRowsByTypeParams{
			JobID:        key.JobID,
			SubsidiaryID: key.SubsidiaryID,
			JournalType:  string(journalType),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("list journal rows: %w", err)
	}

	out := make([]core.JournalRow, len(dbRows))
	for i, row := range dbRows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("journal row %d amount: %w", row.ID, err)
		}
		var cols core.Record
		if err := json.Unmarshal([]byte(row.ColumnsJson), &cols); err != nil {
			return nil, fmt.Errorf("journal row %d columns: %w", row.ID, err)
		}
		out[i] = core.JournalRow{
			ID:            row.ID,
			Dataset:       key,
			JournalType:   core.JournalType(row.JournalType),
			ClientID:      row.ClientID,
			InvoiceNumber: row.InvoiceNumber,
			Amount:        amount,
			Columns:       cols,
			Filename:      row.Filename,
		}
	}
	return out, nil
}

// JournalSummaries totals the original rows per journal type, in upload order.
func (r *SQLiteRepository) JournalSummaries(ctx context.Context, key core.DatasetKey) ([]core.JournalSummary, error) {
	rows, err := r.queries.ListJournalAmounts(ctx, params(key))
	if err != nil {
		return nil, fmt.Errorf("list journal amounts: %w", err)
	}
	return summarise(rows)
}

// DeleteJournals removes a dataset's uploaded journals.
func (r *SQLiteRepository) DeleteJournals(ctx context.Context, key core.DatasetKey) (int64, error) {
	n, err := r.queries.DeleteJournalRows(ctx, params(key))
	if err != nil {
		return 0, fmt.Errorf("delete journal rows: %w", err)
	}
	return n, nil
}

// InsertInstallments stores the aggregated installments of a dataset.
func (r *SQLiteRepository) InsertInstallments(ctx context.Context, records []core.InstallmentRecord) error {
	return r.InTx(ctx, func(tx *SQLiteRepository) error {
		for _, rec := range records {
			err := tx.queries.CreateInstallmentRecord(ctx, CreateInstallmentRecordParams{
				JobID:        rec.Dataset.JobID,
				SubsidiaryID: rec.Dataset.SubsidiaryID,
				ClientID:     rec.ClientID,
				Region:       rec.Region,
				Amount:       rec.Amount.String(),
				LineCount:    int64(rec.LineCount),
			})
			if isConstraintViolation(err) {
				return fmt.Errorf("installment for client %s: %w", rec.ClientID, ErrAlreadyExists)
			}
			if err != nil {
				return fmt.Errorf("create installment record: %w", err)
			}
		}
		return nil
	})
}

// Installments lists a dataset's installments in upload order.
func (r *SQLiteRepository) Installments(ctx context.Context, key core.DatasetKey) ([]core.InstallmentRecord, error) {
	rows, err := r.queries.ListInstallmentRecords(ctx, params(key))
	if err != nil {
		return nil, fmt.Errorf("list installment records: %w", err)
	}
	out := make([]core.InstallmentRecord, len(rows))
	for i, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("installment %d amount: %w", row.ID, err)
		}
		out[i] = core.InstallmentRecord{
			Dataset:   key,
			ClientID:  row.ClientID,
			Region:    row.Region,
			Amount:    amount,
			LineCount: int(row.LineCount),
		}
	}
	return out, nil
}

// DeleteInstallments removes a dataset's installments.
func (r *SQLiteRepository) DeleteInstallments(ctx context.Context, key core.DatasetKey) (int64, error) {
	n, err := r.queries.DeleteInstallmentRecords(ctx, params(key))
	if err != nil {
		return 0, fmt.Errorf("delete installment records: %w", err)
	}
	return n, nil
}

// CopyToProcessed copies every original row of the dataset into the
// processed table verbatim.
func (r *SQLiteRepository) CopyToProcessed(ctx context.Context, key core.DatasetKey) (int64, error) {
	n, err := r.queries.CopyJournalRowsToProcessed(ctx, params(key))
	if err != nil {
		return 0, fmt.Errorf("copy journal rows: %w", err)
	}
	return n, nil
}

// ProcessedRows lists a dataset's processed rows, optionally of one type.
func (r *SQLiteRepository) ProcessedRows(ctx context.Context, key core.DatasetKey, journalType core.JournalType) ([]core.ProcessedJournalRow, error) {
	var (
		dbRows []ProcessedJournalRow
		err    error
	)
	if journalType == "" {
		dbRows, err = r.queries.ListProcessedRows(ctx, params(key))
	} else {
		dbRows, err = r.queries.ListProcessedRowsByType(ctx, ListProcessedRowsByTypeParams{
			JobID:        key.JobID,
			SubsidiaryID: key.SubsidiaryID,
			JournalType:  string(journalType),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("list processed rows: %w", err)
	}

	out := make([]core.ProcessedJournalRow, len(dbRows))
	for i, row := range dbRows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("processed row %d amount: %w", row.ID, err)
		}
		var cols core.Record
		if err := json.Unmarshal([]byte(row.ColumnsJson), &cols); err != nil {
			return nil, fmt.Errorf("processed row %d columns: %w", row.ID, err)
		}
		out[i] = core.ProcessedJournalRow{
			ID:            row.ID,
			SourceRowID:   row.SourceRowID,
			Dataset:       key,
			JournalType:   core.JournalType(row.JournalType),
			ClientID:      row.ClientID,
			InvoiceNumber: row.InvoiceNumber,
			Amount:        amount,
			Columns:       cols,
		}
	}
	return out, nil
}

// ProcessedSummaries totals the processed rows per journal type.
func (r *SQLiteRepository) ProcessedSummaries(ctx context.Context, key core.DatasetKey) ([]core.JournalSummary, error) {
	rows, err := r.queries.ListProcessedAmounts(ctx, params(key))
	if err != nil {
		return nil, fmt.Errorf("list processed amounts: %w", err)
	}
	return summarise(rows)
}

// UpdateProcessedAmounts writes back reduced amounts.
func (r *SQLiteRepository) UpdateProcessedAmounts(ctx context.Context, rows []core.ProcessedJournalRow) error {
	return r.InTx(ctx, func(tx *SQLiteRepository) error {
		for _, row := range rows {
			err := tx.queries.UpdateProcessedAmount(ctx, UpdateProcessedAmountParams{
				Amount: core.RoundAmount(row.Amount).String(),
				ID:     row.ID,
			})
			if err != nil {
				return fmt.Errorf("update processed row %d: %w", row.ID, err)
			}
		}
		return nil
	})
}

// InsertProcessedRows appends synthesized rows to the processed table.
func (r *SQLiteRepository) InsertProcessedRows(ctx context.Context, rows []core.ProcessedJournalRow) error {
	return r.InTx(ctx, func(tx *SQLiteRepository) error {
		for _, row := range rows {
			cols, err := json.Marshal(row.Columns)
			if err != nil {
				return fmt.Errorf("encode processed columns: %w", err)
			}
			err = tx.queries.CreateProcessedRow(ctx, CreateProcessedRowParams{
				SourceRowID:   row.SourceRowID,
				JobID:         row.Dataset.JobID,
				SubsidiaryID:  row.Dataset.SubsidiaryID,
				JournalType:   string(row.JournalType),
				ClientID:      row.ClientID,
				InvoiceNumber: row.InvoiceNumber,
				Amount:        core.RoundAmount(row.Amount).String(),
				ColumnsJson:   string(cols),
			})
			if err != nil {
				return fmt.Errorf("create processed row: %w", err)
			}
		}
		return nil
	})
}

// DeleteProcessed removes a dataset's processed rows.
func (r *SQLiteRepository) DeleteProcessed(ctx context.Context, key core.DatasetKey) (int64, error) {
	n, err := r.queries.DeleteProcessedRows(ctx, params(key))
	if err != nil {
		return 0, fmt.Errorf("delete processed rows: %w", err)
	}
	return n, nil
}

// InsertMatchResults stores a match preview.
func (r *SQLiteRepository) InsertMatchResults(ctx context.Context, key core.DatasetKey, results []core.MatchResult) error {
	return r.InTx(ctx, func(tx *SQLiteRepository) error {
		for _, m := range results {
			err := tx.queries.CreateMatchResult(ctx, CreateMatchResultParams{
				JobID:             key.JobID,
				SubsidiaryID:      key.SubsidiaryID,
				ClientID:          m.ClientID,
				Status:            string(m.Status),
				TotalReceived:     m.TotalReceived.String(),
				InstallmentAmount: m.InstallmentAmount.String(),
				RemainingAmount:   m.RemainingAmount.String(),
			})
			if isConstraintViolation(err) {
				return fmt.Errorf("match result for client %s: %w", m.ClientID, ErrAlreadyExists)
			}
			if err != nil {
				return fmt.Errorf("create match result: %w", err)
			}
		}
		return nil
	})
}

// MatchResults lists the stored preview, optionally filtered by status.
func (r *SQLiteRepository) MatchResults(ctx context.Context, key core.DatasetKey, status core.MatchStatus) ([]core.MatchResult, error) {
	rows, err := r.queries.ListMatchResults(ctx, params(key))
	if err != nil {
		return nil, fmt.Errorf("list match results: %w", err)
	}

	out := make([]core.MatchResult, 0, len(rows))
	for _, row := range rows {
		if status != "" && row.Status != string(status) {
			continue
		}
		m := core.MatchResult{ClientID: row.ClientID, Status: core.MatchStatus(row.Status)}
		if m.TotalReceived, err = decimal.NewFromString(row.TotalReceived); err != nil {
			return nil, fmt.Errorf("match result %d total: %w", row.ID, err)
		}
		if m.InstallmentAmount, err = decimal.NewFromString(row.InstallmentAmount); err != nil {
			return nil, fmt.Errorf("match result %d installment: %w", row.ID, err)
		}
		if m.RemainingAmount, err = decimal.NewFromString(row.RemainingAmount); err != nil {
			return nil, fmt.Errorf("match result %d remaining: %w", row.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteMatchResults removes a dataset's match preview.
func (r *SQLiteRepository) DeleteMatchResults(ctx context.Context, key core.DatasetKey) (int64, error) {
	n, err := r.queries.DeleteMatchResults(ctx, params(key))
	if err != nil {
		return 0, fmt.Errorf("delete match results: %w", err)
	}
	return n, nil
}

// BeginRun claims the dataset for one process call. A second claim for the
// same dataset fails with ErrAlreadyExists until the run is deleted.
func (r *SQLiteRepository) BeginRun(ctx context.Context, key core.DatasetKey, runID string) error {
	err := r.queries.CreateProcessingRun(ctx, CreateProcessingRunParams{
		JobID:        key.JobID,
		SubsidiaryID: key.SubsidiaryID,
		RunID:        runID,
	})
	if isConstraintViolation(err) {
		return fmt.Errorf("processing run for %s: %w", key, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("create processing run: %w", err)
	}
	return nil
}

// CompleteRun stores the outcome of a process call.
func (r *SQLiteRepository) CompleteRun(ctx context.Context, run core.ProcessingRun) error {
	unmatched := run.Unmatched
	if unmatched == nil {
		unmatched = []core.UnmatchedInstallment{}
	}
	unmatchedJSON, err := json.Marshal(unmatched)
	if err != nil {
		return fmt.Errorf("encode unmatched installments: %w", err)
	}

	completedAt := time.Now().UTC()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}

	err = r.queries.CompleteProcessingRun(ctx, CompleteProcessingRunParams{
		MatchedCount:         int64(run.MatchedCount),
		UnmatchedCount:       int64(run.UnmatchedCount),
		TotalSummitAmount:    run.TotalSummitAmount.String(),
		UnmatchedSummitTotal: run.UnmatchedSummitTotal.String(),
		OriginalTotal:        run.OriginalTotal.String(),
		ProcessedTotal:       run.ProcessedTotal.String(),
		Difference:           run.Difference.String(),
		VerificationPassed:   run.VerificationPassed,
		UnmatchedJson:        string(unmatchedJSON),
		CompletedAt:          sql.NullTime{Time: completedAt, Valid: true},
		JobID:                run.Dataset.JobID,
		SubsidiaryID:         run.Dataset.SubsidiaryID,
		RunID:                run.ID,
	})
	if err != nil {
		return fmt.Errorf("complete processing run: %w", err)
	}
	return nil
}

// Run returns the processing run of a dataset or ErrNotFound.
func (r *SQLiteRepository) Run(ctx context.Context, key core.DatasetKey) (core.ProcessingRun, error) {
	row, err := r.queries.GetProcessingRun(ctx, params(key))
	if errors.Is(err, sql.ErrNoRows) {
		return core.ProcessingRun{}, ErrNotFound
	}
	if err != nil {
		return core.ProcessingRun{}, fmt.Errorf("get processing run: %w", err)
	}
	return toProcessingRun(row)
}

// UnsyncedRuns returns completed runs not yet mirrored to the spreadsheet.
func (r *SQLiteRepository) UnsyncedRuns(ctx context.Context, limit int) ([]core.ProcessingRun, error) {
	rows, err := r.queries.ListUnsyncedRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unsynced runs: %w", err)
	}
	out := make([]core.ProcessingRun, 0, len(rows))
	for _, row := range rows {
		run, err := toProcessingRun(row)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// MarkRunSynced flags a run as mirrored. It reports ErrNotFound when the run
// was cleared or replaced in the meantime.
func (r *SQLiteRepository) MarkRunSynced(ctx context.Context, key core.DatasetKey, runID string) error {
	n, err := r.queries.MarkRunSynced(ctx, MarkRunSyncedParams{
		SyncedAt:     sql.NullTime{Time: time.Now().UTC(), Valid: true},
		JobID:        key.JobID,
		SubsidiaryID: key.SubsidiaryID,
		RunID:        runID,
	})
	if err != nil {
		return fmt.Errorf("mark run synced: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	slog.InfoContext(ctx, "Processing run marked as synced", "dataset", key.String(), "run_id", runID)
	return nil
}

// DeleteRun removes a dataset's processing run.
func (r *SQLiteRepository) DeleteRun(ctx context.Context, key core.DatasetKey) (int64, error) {
	n, err := r.queries.DeleteProcessingRun(ctx, params(key))
	if err != nil {
		return 0, fmt.Errorf("delete processing run: %w", err)
	}
	return n, nil
}

func params(key core.DatasetKey) DatasetParams {
	return DatasetParams{JobID: key.JobID, SubsidiaryID: key.SubsidiaryID}
}

func summarise(rows []AmountRow) ([]core.JournalSummary, error) {
	index := make(map[string]int)
	var out []core.JournalSummary
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s amount %q: %w", row.JournalType, row.Amount, err)
		}
		pos, ok := index[row.JournalType]
		if !ok {
			pos = len(out)
			index[row.JournalType] = pos
			out = append(out, core.JournalSummary{JournalType: core.JournalType(row.JournalType), Total: decimal.Zero})
		}
		out[pos].Count++
		out[pos].Total = out[pos].Total.Add(amount)
	}
	return out, nil
}

func toProcessingRun(row ProcessingRun) (core.ProcessingRun, error) {
	run := core.ProcessingRun{
		ID:                 row.RunID,
		Dataset:            core.DatasetKey{JobID: row.JobID, SubsidiaryID: row.SubsidiaryID},
		MatchedCount:       int(row.MatchedCount),
		UnmatchedCount:     int(row.UnmatchedCount),
		VerificationPassed: row.VerificationPassed,
		CreatedAt:          row.CreatedAt.Time,
	}

	amounts := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&run.TotalSummitAmount, row.TotalSummitAmount},
		{&run.UnmatchedSummitTotal, row.UnmatchedSummitTotal},
		{&run.OriginalTotal, row.OriginalTotal},
		{&run.ProcessedTotal, row.ProcessedTotal},
		{&run.Difference, row.Difference},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.src)
		if err != nil {
			return run, fmt.Errorf("processing run %s amount %q: %w", row.RunID, a.src, err)
		}
		*a.dst = v
	}

	if err := json.Unmarshal([]byte(row.UnmatchedJson), &run.Unmatched); err != nil {
		return run, fmt.Errorf("processing run %s unmatched: %w", row.RunID, err)
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		run.CompletedAt = &t
	}
	if row.SyncedAt.Valid {
		t := row.SyncedAt.Time
		run.SyncedAt = &t
	}
	return run, nil
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
