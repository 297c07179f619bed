package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProcessingRun records one process call of a dataset.
type ProcessingRun struct {
	ID                   string
	Dataset              DatasetKey
	MatchedCount         int
	UnmatchedCount       int
	TotalSummitAmount    decimal.Decimal
	UnmatchedSummitTotal decimal.Decimal
	OriginalTotal        decimal.Decimal
	ProcessedTotal       decimal.Decimal
	Difference           decimal.Decimal
	VerificationPassed   bool
	Unmatched            []UnmatchedInstallment
	CreatedAt            time.Time
	CompletedAt          *time.Time
	SyncedAt             *time.Time
}

// Completed reports whether the run reached the verification step.
func (r ProcessingRun) Completed() bool { return r.CompletedAt != nil }

// GeneratedFile describes one processed journal available for download.
type GeneratedFile struct {
	JournalType JournalType
	RowCount    int
	TotalAmount decimal.Decimal
}
