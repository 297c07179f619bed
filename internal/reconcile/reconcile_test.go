package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"summit/internal/core"
)

var testKey = core.DatasetKey{JobID: 7, SubsidiaryID: 1}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func row(id int64, client string, jt core.JournalType, amount string) core.ProcessedJournalRow {
	return core.ProcessedJournalRow{
		ID:            id,
		SourceRowID:   id,
		Dataset:       testKey,
		JournalType:   jt,
		ClientID:      client,
		InvoiceNumber: "INV-" + client,
		Amount:        d(amount),
		Columns: core.Record{
			{Name: "Client", Value: client},
			{Name: "invoice_number", Value: "INV-" + client},
			{Name: "amount", Value: amount},
			{Name: "memo", Value: string(jt)},
		},
	}
}

func inst(client, amount string) core.InstallmentRecord {
	return core.InstallmentRecord{Dataset: testKey, ClientID: client, Region: "IE", Amount: d(amount), LineCount: 1}
}

func TestAggregate(t *testing.T) {
	lines := []core.InstallmentLine{
		{Line: 1, ClientID: "A", Region: "IE", Amount: "50"},
		{Line: 2, ClientID: " B ", Region: "UK", Amount: "10.10"},
		{Line: 3, ClientID: "A", Region: "NI", Amount: "40"},
		{Line: 4, ClientID: "A", Region: "", Amount: "0.05"},
	}
	got, err := Aggregate(testKey, lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected one record per client, got %d", len(got))
	}
	if got[0].ClientID != "A" || !got[0].Amount.Equal(d("90.05")) || got[0].LineCount != 3 || got[0].Region != "NI" {
		t.Fatalf("client A: %+v", got[0])
	}
	if got[1].ClientID != "B" || !got[1].Amount.Equal(d("10.10")) {
		t.Fatalf("client B: %+v", got[1])
	}
	if n := DuplicatesCombined(got); n != 2 {
		t.Fatalf("expected 2 duplicates combined, got %d", n)
	}
}

func TestAggregateValidation(t *testing.T) {
	cases := map[string][]core.InstallmentLine{
		"empty client": {{Line: 1, ClientID: "  ", Amount: "10"}},
		"non numeric":  {{Line: 1, ClientID: "A", Amount: "ten"}},
		"negative":     {{Line: 1, ClientID: "A", Amount: "-5"}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Aggregate(testKey, lines); !core.IsValidation(err) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestFilterBlank(t *testing.T) {
	kept, skipped := FilterBlank([]core.InstallmentLine{
		{ClientID: "", Amount: ""},
		{ClientID: "A", Amount: "0"},
		{ClientID: "B", Amount: "12"},
		{ClientID: "", Amount: "5"},
		{ClientID: "C", Amount: "bad"},
	})
	if skipped != 2 || len(kept) != 3 {
		t.Fatalf("kept=%v skipped=%d", kept, skipped)
	}
}

func TestReduceProportionalExample(t *testing.T) {
	rows := []core.ProcessedJournalRow{
		row(1, "A", core.JournalMain, "100"),
		row(2, "A", core.JournalPOA, "50"),
	}
	res := Reduce(rows, []core.InstallmentRecord{inst("A", "90")})

	if res.MatchedCount != 1 || res.UnmatchedCount != 0 {
		t.Fatalf("matched=%d unmatched=%d", res.MatchedCount, res.UnmatchedCount)
	}
	if !res.Rows[0].Amount.Equal(d("40")) || !res.Rows[1].Amount.Equal(d("20")) {
		t.Fatalf("reduced amounts %s %s", res.Rows[0].Amount, res.Rows[1].Amount)
	}
	if len(res.Updated) != 2 {
		t.Fatalf("expected 2 updated rows, got %d", len(res.Updated))
	}
	if len(res.Appended) != 1 {
		t.Fatalf("expected one installment row, got %d", len(res.Appended))
	}
	app := res.Appended[0]
	if app.JournalType != core.JournalSummitInstallments || !app.Amount.Equal(d("90")) || app.ClientID != "A" {
		t.Fatalf("installment row %+v", app)
	}
	if app.InvoiceNumber != "INV-A" || app.SourceRowID != 0 {
		t.Fatalf("installment row metadata %+v", app)
	}
	wantCols := []string{"client_id", "region", "amount", "invoice_number", "memo", "journal_type"}
	if got := app.Columns.Names(); len(got) != len(wantCols) {
		t.Fatalf("columns %v, want %v", got, wantCols)
	} else {
		for i := range got {
			if got[i] != wantCols[i] {
				t.Fatalf("columns %v, want %v", got, wantCols)
			}
		}
	}
	if app.Columns.Value("region") != "IE" || app.Columns.Value("amount") != "90.00" {
		t.Fatalf("installment columns %v", app.Columns)
	}

	total := TotalProcessed(append(res.Rows, res.Appended...))
	if v := Verify(d("150"), total); !v.Passed || !v.Difference.IsZero() {
		t.Fatalf("verification %+v", v)
	}
	if !res.TotalSummitAmount.Equal(d("90")) {
		t.Fatalf("total summit %s", res.TotalSummitAmount)
	}

	if !rows[0].Amount.Equal(d("100")) {
		t.Fatalf("input rows must not be modified")
	}
}

func TestReduceUnmatchedReasons(t *testing.T) {
	rows := []core.ProcessedJournalRow{
		row(1, "A", core.JournalMain, "30"),
		row(2, "Z", core.JournalMain, "10"),
		row(3, "Z", core.JournalPOA, "-10"),
		row(4, "", core.JournalMain, "500"),
	}
	res := Reduce(rows, []core.InstallmentRecord{
		inst("A", "31"),
		inst("Z", "1"),
		inst("MISSING", "5"),
		inst("A", "0"),
	})

	if res.MatchedCount != 0 || res.UnmatchedCount != 3 {
		t.Fatalf("matched=%d unmatched=%d", res.MatchedCount, res.UnmatchedCount)
	}
	want := []core.UnmatchReason{core.ReasonInsufficient, core.ReasonZeroBalance, core.ReasonNotFound}
	for i, u := range res.Unmatched {
		if u.Reason != want[i] {
			t.Errorf("unmatched[%d] reason %s, want %s", i, u.Reason, want[i])
		}
	}
	if !res.Unmatched[0].ClientTotal.Equal(d("30")) {
		t.Fatalf("insufficient client total %s", res.Unmatched[0].ClientTotal)
	}
	if !res.UnmatchedSummitTotal.Equal(d("37")) {
		t.Fatalf("unmatched total %s", res.UnmatchedSummitTotal)
	}
	for i := range rows {
		if !res.Rows[i].Amount.Equal(rows[i].Amount) {
			t.Fatalf("row %d changed although unmatched", i)
		}
	}
	if len(res.Updated) != 0 || len(res.Appended) != 0 {
		t.Fatalf("nothing should be written")
	}
}

func TestReduceRoundingResidue(t *testing.T) {
	rows := []core.ProcessedJournalRow{
		row(1, "A", core.JournalMain, "33.33"),
		row(2, "A", core.JournalPOA, "33.33"),
		row(3, "A", core.JournalCrossSubsidiary, "33.34"),
		row(4, "B", core.JournalMain, "10"),
	}
	res := Reduce(rows, []core.InstallmentRecord{inst("A", "10"), inst("B", "3.33")})

	clientA := TotalProcessed(res.Rows[:3])
	if !clientA.Equal(d("90")) {
		t.Fatalf("client A rows should sum to 90, got %s", clientA)
	}
	for _, r := range res.Rows {
		if r.Amount.Exponent() < -core.AmountScale {
			t.Fatalf("amount %s not rounded", r.Amount)
		}
	}

	original := TotalProcessed(rows)
	processed := TotalProcessed(append(res.Rows, res.Appended...))
	if !processed.Equal(original) {
		t.Fatalf("dataset total changed: %s -> %s", original, processed)
	}
}

func TestReduceMatchedClientInvariant(t *testing.T) {
	rows := []core.ProcessedJournalRow{
		row(1, "A", core.JournalMain, "12.34"),
		row(2, "A", core.JournalPOA, "56.78"),
		row(3, "A", core.JournalCrossSubsidiary, "0.01"),
		row(4, "B", core.JournalMain, "7"),
		row(5, "B", core.JournalMain, "7"),
	}
	res := Reduce(rows, []core.InstallmentRecord{inst("A", "69.12"), inst("B", "13.99")})
	if res.MatchedCount != 2 {
		t.Fatalf("expected 2 matches, got %d", res.MatchedCount)
	}

	byClient := map[string]decimal.Decimal{}
	for _, r := range append(res.Rows, res.Appended...) {
		byClient[r.ClientID] = byClient[r.ClientID].Add(r.Amount)
	}
	if !byClient["A"].Equal(d("69.13")) || !byClient["B"].Equal(d("14")) {
		t.Fatalf("client totals not preserved: %v", byClient)
	}
}

func TestReduceSubCentAmountsKeepDatasetTotal(t *testing.T) {
	records := []core.Record{
		{{Name: "Client", Value: "A"}, {Name: "Amount", Value: "10.004"}},
		{{Name: "Client", Value: "B"}, {Name: "Amount", Value: "10.004"}},
		{{Name: "Client", Value: "C"}, {Name: "Amount", Value: "10.004"}},
		{{Name: "Client", Value: "D"}, {Name: "Amount", Value: "100"}},
		{{Name: "Client", Value: "E"}, {Name: "Amount", Value: "33.335"}},
		{{Name: "Client", Value: "E"}, {Name: "Amount", Value: "66.667"}},
	}
	journal, err := core.NewJournalRows(testKey, core.JournalMain, "main.csv", records)
	if err != nil {
		t.Fatalf("NewJournalRows: %v", err)
	}
	rows := make([]core.ProcessedJournalRow, 0, len(journal))
	for i, j := range journal {
		j.ID = int64(i + 1)
		rows = append(rows, core.ProcessedFrom(j))
	}

	installments, err := Aggregate(testKey, []core.InstallmentLine{
		{Line: 1, ClientID: "A", Amount: "1"},
		{Line: 2, ClientID: "B", Amount: "1"},
		{Line: 3, ClientID: "C", Amount: "1"},
		{Line: 4, ClientID: "D", Amount: "10.005"},
		{Line: 5, ClientID: "E", Amount: "12.3456"},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	res := Reduce(rows, installments)
	if res.MatchedCount != 5 {
		t.Fatalf("expected 5 matches, got %d", res.MatchedCount)
	}

	v := Verify(TotalJournal(journal), TotalProcessed(append(res.Rows, res.Appended...)))
	if !v.Passed || !v.Difference.IsZero() {
		t.Fatalf("original=%s processed=%s difference=%s", v.OriginalTotal, v.ProcessedTotal, v.Difference)
	}
	if !v.OriginalTotal.Equal(d("230.01")) {
		t.Fatalf("original total = %s, want 230.01", v.OriginalTotal)
	}

	byClient := map[string]decimal.Decimal{}
	for _, r := range append(res.Rows, res.Appended...) {
		if r.Amount.Exponent() < -core.AmountScale {
			t.Fatalf("amount %s of client %s not rounded", r.Amount, r.ClientID)
		}
		byClient[r.ClientID] = byClient[r.ClientID].Add(r.Amount)
	}
	want := map[string]string{"A": "10", "B": "10", "C": "10", "D": "100", "E": "100.01"}
	for client, total := range want {
		if !byClient[client].Equal(d(total)) {
			t.Errorf("client %s total = %s, want %s", client, byClient[client], total)
		}
	}

	if !res.Rows[3].Amount.Equal(d("89.99")) {
		t.Errorf("client D reduced to %s, want 89.99", res.Rows[3].Amount)
	}
	for _, a := range res.Appended {
		if a.ClientID == "D" && !a.Amount.Equal(d("10.01")) {
			t.Errorf("client D installment row = %s, want 10.01", a.Amount)
		}
	}
}

func TestPreview(t *testing.T) {
	rows := []core.JournalRow{
		{ClientID: "A", Amount: d("100")},
		{ClientID: " A", Amount: d("50")},
		{ClientID: "B", Amount: d("5")},
	}
	got := Preview(rows, []core.InstallmentRecord{inst("A", "90"), inst("B", "10"), inst("C", "1"), inst("D", "0")})
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Status != core.MatchMatched || !got[0].RemainingAmount.Equal(d("60")) || !got[0].TotalReceived.Equal(d("150")) {
		t.Fatalf("A: %+v", got[0])
	}
	if got[1].Status != core.MatchInsufficient || !got[1].RemainingAmount.Equal(d("-5")) {
		t.Fatalf("B: %+v", got[1])
	}
	if got[2].Status != core.MatchUnmatched || !got[2].TotalReceived.IsZero() {
		t.Fatalf("C: %+v", got[2])
	}

	totals := Summarise(got)
	if totals.MatchedCount != 1 || totals.InsufficientCount != 1 || totals.UnmatchedCount != 1 {
		t.Fatalf("totals %+v", totals)
	}
	if !totals.MatchedInstallment.Equal(d("90")) || !totals.MatchedRemaining.Equal(d("60")) {
		t.Fatalf("totals %+v", totals)
	}
}

func TestVerifyTolerance(t *testing.T) {
	if v := Verify(d("100"), d("100.01")); !v.Passed {
		t.Fatalf("one minor unit should pass")
	}
	v := Verify(d("100"), d("99.98"))
	if v.Passed || !v.Difference.Equal(d("-0.02")) {
		t.Fatalf("unexpected %+v", v)
	}
}
