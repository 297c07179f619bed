package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDeriveState(t *testing.T) {
	cases := []struct {
		journals, installments, processed int
		want                              DatasetState
	}{
		{0, 0, 0, StateEmpty},
		{3, 0, 0, StateJournalsUploaded},
		{3, 2, 0, StateSummitUploaded},
		{3, 2, 4, StateProcessingComplete},
		{0, 0, 4, StateProcessingComplete},
	}
	for _, tc := range cases {
		if got := DeriveState(tc.journals, tc.installments, tc.processed); got != tc.want {
			t.Errorf("DeriveState(%d,%d,%d) = %s, want %s", tc.journals, tc.installments, tc.processed, got, tc.want)
		}
	}
	if !StateJournalsUploaded.CanUploadSummit() || StateSummitUploaded.CanUploadSummit() {
		t.Fatalf("summit upload only allowed after journals")
	}
	if !StateSummitUploaded.CanProcess() || StateProcessingComplete.CanProcess() {
		t.Fatalf("processing only allowed after summit upload")
	}
}

func TestDatasetStateJSON(t *testing.T) {
	b, err := json.Marshal(map[string]DatasetState{"dataset_status": StateSummitUploaded})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"dataset_status":"summit_uploaded"}` {
		t.Fatalf("unexpected json %s", b)
	}
}

func TestDatasetKeyValidate(t *testing.T) {
	if err := (DatasetKey{JobID: 1, SubsidiaryID: 2}).Validate(); err != nil {
		t.Fatalf("expected valid key, got %v", err)
	}
	for _, k := range []DatasetKey{{0, 1}, {1, 0}, {-1, 1}} {
		if err := k.Validate(); !IsValidation(err) {
			t.Fatalf("%v: expected validation error, got %v", k, err)
		}
	}
}

func TestParseJournalType(t *testing.T) {
	for _, s := range []string{"Main", "POA", "Cross_Subsidiary", "Salon_Summit_Installments", "Refunds_AED"} {
		if _, err := ParseJournalType(s); err != nil {
			t.Errorf("%s: unexpected error %v", s, err)
		}
	}
	if _, err := ParseJournalType("Payroll"); !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := UploadJournalTypes(false); len(got) != 3 {
		t.Fatalf("expected 3 standard types, got %v", got)
	}
}

func TestParseMatchStatus(t *testing.T) {
	if s, err := ParseMatchStatus("all"); err != nil || s != "" {
		t.Fatalf("all should map to empty status, got %q err=%v", s, err)
	}
	if s, err := ParseMatchStatus("insufficient"); err != nil || s != MatchInsufficient {
		t.Fatalf("got %q err=%v", s, err)
	}
	if _, err := ParseMatchStatus("nope"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRecordJSONKeepsOrder(t *testing.T) {
	in := `{"Date":"2025-01-01","Client":"A1","amount":100.50,"memo":null,"tags":["x"],"paid":true}`
	var rec Record
	if err := json.Unmarshal([]byte(in), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := Record{
		{"Date", "2025-01-01"},
		{"Client", "A1"},
		{"amount", "100.50"},
		{"memo", ""},
		{"tags", `["x"]`},
		{"paid", "true"},
	}
	if !reflect.DeepEqual(rec, want) {
		t.Fatalf("got %#v", rec)
	}

	out, err := json.Marshal(Record{{"b", "1"}, {"a", "2"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"b":"1","a":"2"}` {
		t.Fatalf("order lost: %s", out)
	}

	if err := json.Unmarshal([]byte(`[1,2]`), &rec); err == nil {
		t.Fatalf("expected error for non-object")
	}
}

func TestRecordHelpers(t *testing.T) {
	rec := Record{{"Client", "A"}, {" Amount ", "10"}, {"memo", "x"}}
	if v, ok := rec.Lookup(ClientIDColumns...); !ok || v != "A" {
		t.Fatalf("lookup client: %q %v", v, ok)
	}
	if i := rec.Index("amount"); i != 1 {
		t.Fatalf("expected amount at 1, got %d", i)
	}
	cl := rec.Clone().Set("amount", "5").Set("region", "EU")
	if rec[1].Value != "10" {
		t.Fatalf("clone must not share storage")
	}
	if cl[1].Value != "5" || cl[3].Name != "region" {
		t.Fatalf("unexpected set result %#v", cl)
	}
	if got := rec.Without("memo", "client").Names(); !reflect.DeepEqual(got, []string{" Amount "}) {
		t.Fatalf("without: %v", got)
	}
}

func TestNewJournalRows(t *testing.T) {
	key := DatasetKey{JobID: 1, SubsidiaryID: 2}
	recs := []Record{
		{{"Client", " A "}, {"Invoice", "INV-1"}, {"Amount", "1,000.25"}},
		{{"client_id", "B"}, {"amount", ""}},
	}
	rows, err := NewJournalRows(key, JournalMain, "main.csv", recs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows[0].ClientID != "A" || rows[0].InvoiceNumber != "INV-1" || !rows[0].Amount.Equal(decimal.RequireFromString("1000.25")) {
		t.Fatalf("row 0: %+v", rows[0])
	}
	if !rows[1].Amount.IsZero() || rows[1].Filename != "main.csv" {
		t.Fatalf("row 1: %+v", rows[1])
	}

	rounded, err := NewJournalRows(key, JournalPOA, "", []Record{
		{{"client_id", "C"}, {"amount", "10.004"}},
		{{"client_id", "C"}, {"amount", "10.005"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rounded[0].Amount.Equal(decimal.RequireFromString("10")) || !rounded[1].Amount.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("amounts not rounded on upload: %s, %s", rounded[0].Amount, rounded[1].Amount)
	}

	_, err = NewJournalRows(key, JournalMain, "", []Record{{{"amount", "ten"}}})
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected wrapped validation error, got %v", err)
	}
}

func TestNewInstallmentLines(t *testing.T) {
	lines := NewInstallmentLines([]Record{
		{{"OAK ID", "A"}, {"Region", "IE"}, {"Amount (Instalment)", "90"}},
		{{"oak_id", "B"}, {"installment_amount", "10"}},
	})
	if lines[0].ClientID != "A" || lines[0].Region != "IE" || lines[0].Amount != "90" || lines[0].Line != 1 {
		t.Fatalf("line 0: %+v", lines[0])
	}
	if lines[1].ClientID != "B" || lines[1].Amount != "10" || lines[1].Line != 2 {
		t.Fatalf("line 1: %+v", lines[1])
	}
}

func TestUnmatchedDescribe(t *testing.T) {
	u := UnmatchedInstallment{Reason: ReasonInsufficient, ClientTotal: decimal.RequireFromString("12.5")}
	if got := u.Describe(); got != "Insufficient amount (has 12.50)" {
		t.Fatalf("got %q", got)
	}
}
