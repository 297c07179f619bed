package storage

import (
	"database/sql"
)

type JournalRow struct {
	ID            int64
	JobID         int64
	SubsidiaryID  int64
	JournalType   string
	ClientID      string
	InvoiceNumber string
	Amount        string
	ColumnsJson   string
	Filename      string
	CreatedAt     sql.NullTime
}

type InstallmentRecord struct {
	ID           int64
	JobID        int64
	SubsidiaryID int64
	ClientID     string
	Region       string
	Amount       string
	LineCount    int64
	CreatedAt    sql.NullTime
}

type ProcessedJournalRow struct {
	ID            int64
	SourceRowID   int64
	JobID         int64
	SubsidiaryID  int64
	JournalType   string
	ClientID      string
	InvoiceNumber string
	Amount        string
	ColumnsJson   string
	CreatedAt     sql.NullTime
}

type MatchResult struct {
	ID                int64
	JobID             int64
	SubsidiaryID      int64
	ClientID          string
	Status            string
	TotalReceived     string
	InstallmentAmount string
	RemainingAmount   string
	CreatedAt         sql.NullTime
}

type ProcessingRun struct {
	JobID                int64
	SubsidiaryID         int64
	RunID                string
	MatchedCount         int64
	UnmatchedCount       int64
	TotalSummitAmount    string
	UnmatchedSummitTotal string
	OriginalTotal        string
	ProcessedTotal       string
	Difference           string
	VerificationPassed   bool
	UnmatchedJson        string
	CreatedAt            sql.NullTime
	CompletedAt          sql.NullTime
	SyncedAt             sql.NullTime
}

// DatasetParams scopes a query to one (job_id, subsidiary_id) pair.
type DatasetParams struct {
	JobID        int64
	SubsidiaryID int64
}

// AmountRow is the light projection used for totals.
type AmountRow struct {
	JournalType string
	Amount      string
}
