package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"summit/internal/core"
)

// Preview classifies each aggregated installment against the original
// journal totals without touching any row. Clients absent from the journals
// are unmatched, clients whose total is below the installment are
// insufficient, the rest are matched. Installments that are not positive
// are ignored.
func Preview(rows []core.JournalRow, installments []core.InstallmentRecord) []core.MatchResult {
	totals := make(map[string]decimal.Decimal)
	for _, r := range rows {
		id := strings.TrimSpace(r.ClientID)
		if id == "" {
			continue
		}
		totals[id] = totals[id].Add(r.Amount)
	}

	out := make([]core.MatchResult, 0, len(installments))
	for _, inst := range installments {
		if !inst.Amount.IsPositive() {
			continue
		}
		clientID := strings.TrimSpace(inst.ClientID)
		res := core.MatchResult{
			ClientID:          clientID,
			InstallmentAmount: inst.Amount,
			TotalReceived:     decimal.Zero,
			RemainingAmount:   decimal.Zero,
		}

		total, ok := totals[clientID]
		switch {
		case !ok:
			res.Status = core.MatchUnmatched
		case total.LessThan(inst.Amount):
			res.Status = core.MatchInsufficient
			res.TotalReceived = total
			res.RemainingAmount = total.Sub(inst.Amount)
		default:
			res.Status = core.MatchMatched
			res.TotalReceived = total
			res.RemainingAmount = total.Sub(inst.Amount)
		}
		out = append(out, res)
	}
	return out
}

// MatchTotals summarises preview results.
type MatchTotals struct {
	MatchedCount         int
	MatchedTotalReceived decimal.Decimal
	MatchedInstallment   decimal.Decimal
	MatchedRemaining     decimal.Decimal
	InsufficientCount    int
	UnmatchedCount       int
}

// Summarise totals preview results by status.
func Summarise(results []core.MatchResult) MatchTotals {
	t := MatchTotals{
		MatchedTotalReceived: decimal.Zero,
		MatchedInstallment:   decimal.Zero,
		MatchedRemaining:     decimal.Zero,
	}
	for _, r := range results {
		switch r.Status {
		case core.MatchMatched:
			t.MatchedCount++
			t.MatchedTotalReceived = t.MatchedTotalReceived.Add(r.TotalReceived)
			t.MatchedInstallment = t.MatchedInstallment.Add(r.InstallmentAmount)
			t.MatchedRemaining = t.MatchedRemaining.Add(r.RemainingAmount)
		case core.MatchInsufficient:
			t.InsufficientCount++
		case core.MatchUnmatched:
			t.UnmatchedCount++
		}
	}
	return t
}
