// Package reconcile holds the installment arithmetic: aggregation of an
// upload, the proportional reduction of journal rows and the balance check.
package reconcile

import (
	"fmt"
	"strings"

	"summit/internal/core"
)

// FilterBlank drops spreadsheet padding from an upload: lines whose amount is
// blank or zero. Anything else, including malformed amounts and amounts
// without a client id, is left for Aggregate to judge.
func FilterBlank(lines []core.InstallmentLine) (kept []core.InstallmentLine, skipped int) {
	kept = make([]core.InstallmentLine, 0, len(lines))
	for _, l := range lines {
		amount, err := core.ParseAmountOrZero(l.Amount)
		if err == nil && amount.IsZero() {
			skipped++
			continue
		}
		kept = append(kept, l)
	}
	return kept, skipped
}

// Aggregate combines installment lines into one record per client id.
//
// Each line amount is rounded to core.AmountScale before amounts of the same
// client are summed. The region of the last line wins.
// The result keeps the order in which clients first appear. It fails on an
// empty client id or a non-numeric or negative amount.
func Aggregate(key core.DatasetKey, lines []core.InstallmentLine) ([]core.InstallmentRecord, error) {
	index := make(map[string]int, len(lines))
	out := make([]core.InstallmentRecord, 0, len(lines))

	for i, l := range lines {
		lineNo := l.Line
		if lineNo == 0 {
			lineNo = i + 1
		}

		client := strings.TrimSpace(l.ClientID)
		if client == "" {
			return nil, &core.ValidationError{Message: fmt.Sprintf("line %d: client id is empty", lineNo)}
		}

		amount, err := core.ParseAmount(l.Amount)
		if err != nil {
			return nil, &core.ValidationError{
				Message: fmt.Sprintf("line %d: invalid installment amount %q", lineNo, l.Amount),
				Err:     err,
			}
		}
		if amount.IsNegative() {
			return nil, &core.ValidationError{
				Message: fmt.Sprintf("line %d: installment amount %s is negative", lineNo, amount),
			}
		}

		amount = core.RoundAmount(amount)

		region := strings.TrimSpace(l.Region)
		if pos, ok := index[client]; ok {
			rec := &out[pos]
			rec.Amount = rec.Amount.Add(amount)
			rec.LineCount++
			if region != "" {
				rec.Region = region
			}
			continue
		}

		index[client] = len(out)
		out = append(out, core.InstallmentRecord{
			Dataset:   key,
			ClientID:  client,
			Region:    region,
			Amount:    amount,
			LineCount: 1,
		})
	}
	return out, nil
}

// DuplicatesCombined counts the lines folded into an earlier record.
func DuplicatesCombined(records []core.InstallmentRecord) int {
	n := 0
	for _, r := range records {
		n += r.LineCount - 1
	}
	return n
}
