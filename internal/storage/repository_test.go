package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"summit/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "summit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

var key = core.DatasetKey{JobID: 3, SubsidiaryID: 1}

func journal(jt core.JournalType, client, amount string) core.JournalRow {
	return core.JournalRow{
		Dataset:     key,
		JournalType: jt,
		ClientID:    client,
		Amount:      decimal.RequireFromString(amount),
		Columns: core.Record{
			{Name: "Client", Value: client},
			{Name: "Amount", Value: amount},
			{Name: "Memo", Value: "x"},
		},
		Filename: string(jt) + ".csv",
	}
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summit.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	repo.Close()

	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("version=%d dirty=%v", version, dirty)
	}

	// Second open is a no-op migration.
	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	repo.Close()
}

func TestJournalRowsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.InsertJournalRows(ctx, []core.JournalRow{
		journal(core.JournalMain, "A", "100"),
		journal(core.JournalMain, "B", "12.345"),
	})
	if err != nil {
		t.Fatalf("InsertJournalRows: %v", err)
	}
	if err := repo.InsertJournalRows(ctx, []core.JournalRow{journal(core.JournalPOA, "A", "50")}); err != nil {
		t.Fatalf("InsertJournalRows POA: %v", err)
	}

	err = repo.InsertJournalRows(ctx, []core.JournalRow{journal(core.JournalMain, "C", "1")})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	rows, err := repo.JournalRows(ctx, key, "")
	if err != nil {
		t.Fatalf("JournalRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if got := rows[1].Columns.Names(); got[0] != "Client" || got[2] != "Memo" {
		t.Fatalf("column order lost: %v", got)
	}
	if !rows[1].Amount.Equal(decimal.RequireFromString("12.345")) {
		t.Fatalf("amount not stored verbatim: %s", rows[1].Amount)
	}

	main, err := repo.JournalRows(ctx, key, core.JournalMain)
	if err != nil || len(main) != 2 {
		t.Fatalf("JournalRows Main: %v %d", err, len(main))
	}

	summaries, err := repo.JournalSummaries(ctx, key)
	if err != nil {
		t.Fatalf("JournalSummaries: %v", err)
	}
	if len(summaries) != 2 || summaries[0].JournalType != core.JournalMain || summaries[0].Count != 2 {
		t.Fatalf("summaries %+v", summaries)
	}
	if !summaries[0].Total.Equal(decimal.RequireFromString("112.345")) {
		t.Fatalf("main total %s", summaries[0].Total)
	}

	other := core.DatasetKey{JobID: 3, SubsidiaryID: 2}
	counts, err := repo.Counts(ctx, other)
	if err != nil || counts.Journals != 0 {
		t.Fatalf("datasets must be isolated: %+v %v", counts, err)
	}
}

func TestProcessedCopyAndUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.InsertJournalRows(ctx, []core.JournalRow{journal(core.JournalMain, "A", "100")}); err != nil {
		t.Fatalf("InsertJournalRows: %v", err)
	}
	n, err := repo.CopyToProcessed(ctx, key)
	if err != nil || n != 1 {
		t.Fatalf("CopyToProcessed: %d %v", n, err)
	}

	rows, err := repo.ProcessedRows(ctx, key, "")
	if err != nil || len(rows) != 1 {
		t.Fatalf("ProcessedRows: %v %d", err, len(rows))
	}
	if rows[0].SourceRowID == 0 || rows[0].Columns.Value("Memo") != "x" {
		t.Fatalf("copy not verbatim: %+v", rows[0])
	}

	rows[0].Amount = decimal.RequireFromString("40.004")
	if err := repo.UpdateProcessedAmounts(ctx, rows); err != nil {
		t.Fatalf("UpdateProcessedAmounts: %v", err)
	}
	err = repo.InsertProcessedRows(ctx, []core.ProcessedJournalRow{{
		Dataset:     key,
		JournalType: core.JournalSummitInstallments,
		ClientID:    "A",
		Amount:      decimal.RequireFromString("60"),
		Columns:     core.Record{{Name: "client_id", Value: "A"}},
	}})
	if err != nil {
		t.Fatalf("InsertProcessedRows: %v", err)
	}

	summaries, err := repo.ProcessedSummaries(ctx, key)
	if err != nil {
		t.Fatalf("ProcessedSummaries: %v", err)
	}
	if len(summaries) != 2 || !summaries[0].Total.Equal(decimal.RequireFromString("40")) {
		t.Fatalf("summaries %+v", summaries)
	}

	original, err := repo.JournalRows(ctx, key, "")
	if err != nil || !original[0].Amount.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("original rows must stay untouched: %v %+v", err, original)
	}
}

func TestInstallmentsAndMatches(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	recs := []core.InstallmentRecord{
		{Dataset: key, ClientID: "A", Region: "IE", Amount: decimal.RequireFromString("90"), LineCount: 2},
		{Dataset: key, ClientID: "B", Amount: decimal.RequireFromString("5")},
	}
	if err := repo.InsertInstallments(ctx, recs); err != nil {
		t.Fatalf("InsertInstallments: %v", err)
	}
	if err := repo.InsertInstallments(ctx, recs[:1]); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := repo.Installments(ctx, key)
	if err != nil || len(got) != 2 || got[0].ClientID != "A" || got[0].LineCount != 2 {
		t.Fatalf("Installments: %v %+v", err, got)
	}

	err = repo.InsertMatchResults(ctx, key, []core.MatchResult{
		{ClientID: "A", Status: core.MatchMatched, TotalReceived: decimal.NewFromInt(150), InstallmentAmount: decimal.NewFromInt(90), RemainingAmount: decimal.NewFromInt(60)},
		{ClientID: "B", Status: core.MatchUnmatched, TotalReceived: decimal.Zero, InstallmentAmount: decimal.NewFromInt(5), RemainingAmount: decimal.Zero},
	})
	if err != nil {
		t.Fatalf("InsertMatchResults: %v", err)
	}
	matched, err := repo.MatchResults(ctx, key, core.MatchMatched)
	if err != nil || len(matched) != 1 || !matched[0].RemainingAmount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("MatchResults: %v %+v", err, matched)
	}

	counts, err := repo.Counts(ctx, key)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Installments != 2 || counts.Matches != 2 {
		t.Fatalf("counts %+v", counts)
	}
}

func TestProcessingRunLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.Run(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.BeginRun(ctx, key, "run-1"); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := repo.BeginRun(ctx, key, "run-2"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second BeginRun should conflict, got %v", err)
	}

	unsynced, err := repo.UnsyncedRuns(ctx, 10)
	if err != nil || len(unsynced) != 0 {
		t.Fatalf("incomplete runs are not synced: %v %d", err, len(unsynced))
	}

	err = repo.CompleteRun(ctx, core.ProcessingRun{
		ID:                 "run-1",
		Dataset:            key,
		MatchedCount:       1,
		UnmatchedCount:     1,
		TotalSummitAmount:  decimal.NewFromInt(90),
		OriginalTotal:      decimal.NewFromInt(150),
		ProcessedTotal:     decimal.NewFromInt(150),
		Difference:         decimal.Zero,
		VerificationPassed: true,
		Unmatched: []core.UnmatchedInstallment{
			{ClientID: "Z", InstallmentAmount: decimal.NewFromInt(5), ClientTotal: decimal.Zero, Reason: core.ReasonNotFound},
		},
	})
	if err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	run, err := repo.Run(ctx, key)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !run.Completed() || !run.VerificationPassed || run.MatchedCount != 1 {
		t.Fatalf("run %+v", run)
	}
	if len(run.Unmatched) != 1 || run.Unmatched[0].Reason != core.ReasonNotFound || !run.Unmatched[0].InstallmentAmount.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("unmatched %+v", run.Unmatched)
	}

	unsynced, err = repo.UnsyncedRuns(ctx, 10)
	if err != nil || len(unsynced) != 1 {
		t.Fatalf("UnsyncedRuns: %v %d", err, len(unsynced))
	}
	if err := repo.MarkRunSynced(ctx, key, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("stale run id should not sync, got %v", err)
	}
	if err := repo.MarkRunSynced(ctx, key, "run-1"); err != nil {
		t.Fatalf("MarkRunSynced: %v", err)
	}
	if unsynced, _ = repo.UnsyncedRuns(ctx, 10); len(unsynced) != 0 {
		t.Fatalf("run still unsynced")
	}

	if n, err := repo.DeleteRun(ctx, key); err != nil || n != 1 {
		t.Fatalf("DeleteRun: %d %v", n, err)
	}
	if err := repo.BeginRun(ctx, key, "run-3"); err != nil {
		t.Fatalf("BeginRun after delete: %v", err)
	}
}

func TestInTxRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.InTx(ctx, func(tx *SQLiteRepository) error {
		if err := tx.BeginRun(ctx, key, "run-1"); err != nil {
			return err
		}
		if err := tx.InsertJournalRows(ctx, []core.JournalRow{journal(core.JournalMain, "A", "1")}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	counts, err := repo.Counts(ctx, key)
	if err != nil || counts.Journals != 0 {
		t.Fatalf("rows survived rollback: %+v %v", counts, err)
	}
	if _, err := repo.Run(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("run survived rollback: %v", err)
	}
}
