package export

import (
	"strings"

	"summit/internal/core"
)

// JournalTable lays out processed rows. The header is the union of the rows'
// column names in first-seen order, so installment rows carrying metadata
// from different journal types keep all of it; a name repeated within one
// row keeps each occurrence. The amount column carries the stored amount;
// untouched amounts keep their uploaded text. Rows without uploaded columns
// use core.FallbackExportHeader.
func JournalTable(rows []core.ProcessedJournalRow) Table {
	if len(rows) == 0 || len(rows[0].Columns) == 0 {
		return fallbackTable(rows)
	}

	header := unionHeader(rows)
	amountCol := -1
	for i, name := range header {
		if isAmountColumn(name) {
			amountCol = i
			break
		}
	}
	if amountCol < 0 {
		header = append(header, "amount")
		amountCol = len(header) - 1
	}

	t := Table{Header: header, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		line := cells(header, r.Columns)
		line[amountCol] = amountText(r)
		t.Rows = append(t.Rows, line)
	}
	return t
}

// unionHeader collects column names in first-seen order. A name appears as
// many times as the most it occurs within a single row.
func unionHeader(rows []core.ProcessedJournalRow) []string {
	var header []string
	counts := make(map[string]int)
	for _, r := range rows {
		seen := make(map[string]int, len(r.Columns))
		for _, c := range r.Columns {
			seen[c.Name]++
			if seen[c.Name] > counts[c.Name] {
				header = append(header, c.Name)
				counts[c.Name]++
			}
		}
	}
	return header
}

// cells places a row's values under header. The n-th occurrence of a name in
// the header takes the n-th column of that name in the row; missing columns
// stay empty.
func cells(header []string, cols core.Record) []string {
	line := make([]string, len(header))
	taken := make(map[string]int, len(header))
	for i, name := range header {
		line[i] = nthValue(cols, name, taken[name])
		taken[name]++
	}
	return line
}

func nthValue(cols core.Record, name string, n int) string {
	for _, c := range cols {
		if c.Name != name {
			continue
		}
		if n == 0 {
			return c.Value
		}
		n--
	}
	return ""
}

func isAmountColumn(name string) bool {
	for _, alias := range core.AmountColumns {
		if strings.EqualFold(strings.TrimSpace(name), alias) {
			return true
		}
	}
	return false
}

func fallbackTable(rows []core.ProcessedJournalRow) Table {
	t := Table{Header: append([]string(nil), core.FallbackExportHeader...), Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{r.ClientID, r.InvoiceNumber, core.FormatAmount(r.Amount), string(r.JournalType)})
	}
	return t
}

func amountText(r core.ProcessedJournalRow) string {
	if raw, ok := r.Columns.Lookup(core.AmountColumns...); ok {
		if v, err := core.ParseAmountOrZero(raw); err == nil && v.Equal(r.Amount) {
			return raw
		}
	}
	return core.FormatAmount(r.Amount)
}

// MatchResultsTable lists match preview results.
func MatchResultsTable(results []core.MatchResult) Table {
	t := Table{
		Header: []string{"Client ID", "Total Received", "Installment Amount", "Remaining Amount", "Status"},
		Rows:   make([][]string, 0, len(results)),
	}
	for _, m := range results {
		t.Rows = append(t.Rows, []string{
			m.ClientID,
			core.FormatAmount(m.TotalReceived),
			core.FormatAmount(m.InstallmentAmount),
			core.FormatAmount(m.RemainingAmount),
			string(m.Status),
		})
	}
	return t
}

// UnmatchedTable lists the installments a processing run left out.
func UnmatchedTable(unmatched []core.UnmatchedInstallment) Table {
	t := Table{
		Header: []string{"OAK ID", "Region", "Amount (Instalment)", "Reason"},
		Rows:   make([][]string, 0, len(unmatched)),
	}
	for _, u := range unmatched {
		t.Rows = append(t.Rows, []string{u.ClientID, u.Region, core.FormatAmount(u.InstallmentAmount), u.Describe()})
	}
	return t
}
