package reconcile

import (
	"github.com/shopspring/decimal"

	"summit/internal/core"
)

// Verification compares a dataset's totals before and after processing.
type Verification struct {
	OriginalTotal  decimal.Decimal
	ProcessedTotal decimal.Decimal
	Difference     decimal.Decimal
	Passed         bool
}

// Verify reports whether the processed total equals the original total
// within core.Tolerance. A failed check is informational: callers keep the
// processed rows and surface the flag.
func Verify(originalTotal, processedTotal decimal.Decimal) Verification {
	return Verification{
		OriginalTotal:  originalTotal,
		ProcessedTotal: processedTotal,
		Difference:     processedTotal.Sub(originalTotal),
		Passed:         core.WithinTolerance(originalTotal, processedTotal),
	}
}

// TotalJournal sums original journal rows.
func TotalJournal(rows []core.JournalRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total
}

// TotalProcessed sums processed journal rows.
func TotalProcessed(rows []core.ProcessedJournalRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Amount)
	}
	return total
}
