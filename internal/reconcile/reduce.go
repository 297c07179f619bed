package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"

	"summit/internal/core"
)

// Result is the outcome of one reduction pass.
type Result struct {
	// Rows is the full working set after reduction, in input order.
	Rows []core.ProcessedJournalRow
	// Updated holds the rows whose amount changed, in input order.
	Updated []core.ProcessedJournalRow
	// Appended holds one installment row per matched client.
	Appended []core.ProcessedJournalRow

	MatchedCount         int
	UnmatchedCount       int
	TotalSummitAmount    decimal.Decimal
	UnmatchedSummitTotal decimal.Decimal
	Unmatched            []core.UnmatchedInstallment
}

// Reduce applies aggregated installments to a dataset's processed rows.
//
// Rows are grouped by trimmed client id across all journal types; rows
// without a client id never match. An installment whose client is missing,
// has a zero balance or a balance below the installment is reported as
// unmatched and leaves the rows untouched. A matched installment is split
// across the client's rows in proportion to each row's share of the client
// total, and one Salon_Summit_Installments row carrying the installment is
// appended. Installments that are not positive are ignored.
//
// Installments are rounded to AmountScale first; rows are expected to hold
// amounts already rounded at upload. Splits are computed at
// DivisionPrecision and rounded to AmountScale once per row; the rounding
// residue of a client goes to its largest row so the client's rows plus the
// installment equal its total.
// The input slice is not modified.
func Reduce(rows []core.ProcessedJournalRow, installments []core.InstallmentRecord) Result {
	work := make([]core.ProcessedJournalRow, len(rows))
	copy(work, rows)

	lookup := make(map[string][]int)
	for i, r := range work {
		id := strings.TrimSpace(r.ClientID)
		if id == "" {
			continue
		}
		lookup[id] = append(lookup[id], i)
	}

	res := Result{
		TotalSummitAmount:    decimal.Zero,
		UnmatchedSummitTotal: decimal.Zero,
	}
	changed := make(map[int]bool)

	for _, inst := range installments {
		inst.Amount = core.RoundAmount(inst.Amount)
		if !inst.Amount.IsPositive() {
			continue
		}
		clientID := strings.TrimSpace(inst.ClientID)

		idx, ok := lookup[clientID]
		if !ok {
			res.unmatched(inst, decimal.Zero, core.ReasonNotFound)
			continue
		}

		total := decimal.Zero
		for _, i := range idx {
			total = total.Add(work[i].Amount)
		}
		total = core.RoundAmount(total)

		switch {
		case total.IsZero():
			res.unmatched(inst, total, core.ReasonZeroBalance)
			continue
		case total.LessThan(inst.Amount):
			res.unmatched(inst, total, core.ReasonInsufficient)
			continue
		}

		split(work, idx, total, inst.Amount)
		for _, i := range idx {
			changed[i] = true
		}

		res.Appended = append(res.Appended, installmentRow(work[idx[0]], rows[idx[0]].Columns, clientID, inst))
		res.MatchedCount++
		res.TotalSummitAmount = res.TotalSummitAmount.Add(inst.Amount)
	}

	for i := range work {
		if changed[i] {
			res.Updated = append(res.Updated, work[i])
		}
	}
	res.Rows = work
	return res
}

func (r *Result) unmatched(inst core.InstallmentRecord, clientTotal decimal.Decimal, reason core.UnmatchReason) {
	r.UnmatchedCount++
	r.UnmatchedSummitTotal = r.UnmatchedSummitTotal.Add(inst.Amount)
	r.Unmatched = append(r.Unmatched, core.UnmatchedInstallment{
		ClientID:          strings.TrimSpace(inst.ClientID),
		Region:            inst.Region,
		InstallmentAmount: inst.Amount,
		ClientTotal:       clientTotal,
		Reason:            reason,
	})
}

// split reduces work[idx] by installment in proportion to each row's share of total.
func split(work []core.ProcessedJournalRow, idx []int, total, installment decimal.Decimal) {
	target := core.RoundAmount(total.Sub(installment))
	rounded := decimal.Zero
	largest := -1

	for _, i := range idx {
		reduction := work[i].Amount.Mul(installment).DivRound(total, core.DivisionPrecision)
		work[i].Amount = core.RoundAmount(work[i].Amount.Sub(reduction))
		rounded = rounded.Add(work[i].Amount)
		if largest < 0 || work[i].Amount.Abs().GreaterThan(work[largest].Amount.Abs()) {
			largest = i
		}
	}

	if residue := target.Sub(rounded); !residue.IsZero() {
		work[largest].Amount = work[largest].Amount.Add(residue)
	}
}

// installmentRow builds the synthesized journal line for a matched client.
// It starts with the fixed summit columns and carries the remaining
// columns of the client's first row.
func installmentRow(first core.ProcessedJournalRow, firstColumns core.Record, clientID string, inst core.InstallmentRecord) core.ProcessedJournalRow {
	amount := inst.Amount

	cols := core.Record{
		{Name: "client_id", Value: clientID},
		{Name: "region", Value: inst.Region},
		{Name: "amount", Value: core.FormatAmount(amount)},
	}
	carried := firstColumns.Without(append(append([]string{}, core.ClientIDColumns...), "region", "amount", "journal_type")...)
	cols = append(cols, carried...)
	cols = append(cols, core.Column{Name: "journal_type", Value: string(core.JournalSummitInstallments)})

	return core.ProcessedJournalRow{
		Dataset:       first.Dataset,
		JournalType:   core.JournalSummitInstallments,
		ClientID:      clientID,
		InvoiceNumber: first.InvoiceNumber,
		Amount:        amount,
		Columns:       cols,
	}
}
