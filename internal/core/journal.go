package core

import (
	"fmt"
	"strings"
)

// Column aliases recognised in uploaded files, compared case-insensitively.
var (
	ClientIDColumns      = []string{"client_id", "client", "client_number", "client id"}
	InvoiceNumberColumns = []string{"invoice_number", "invoice", "invoice number"}
	AmountColumns        = []string{"amount"}
	RegionColumns        = []string{"region"}

	SummitClientColumns = []string{"oak_id", "oak id", "client_id", "client"}
	SummitAmountColumns = []string{"installment_amount", "amount (instalment)", "amount (installment)", "instalment", "installment", "amount"}
)

// FallbackExportHeader is used for rows uploaded without pass-through columns.
var FallbackExportHeader = []string{"client_id", "invoice_number", "amount", "journal_type"}

// SummitHeader is the fixed leading schema of synthesized installment rows.
var SummitHeader = []string{"client_id", "region", "amount"}

// NewJournalRows builds journal rows from uploaded records. Amounts are
// rounded to AmountScale so the stored original and every later split use
// the same figures. Line numbers in errors are 1-based positions in records.
func NewJournalRows(key DatasetKey, journalType JournalType, filename string, records []Record) ([]JournalRow, error) {
	rows := make([]JournalRow, 0, len(records))
	for i, rec := range records {
		clientID, _ := rec.Lookup(ClientIDColumns...)
		invoice, _ := rec.Lookup(InvoiceNumberColumns...)
		rawAmount, _ := rec.Lookup(AmountColumns...)

		amount, err := ParseAmountOrZero(rawAmount)
		if err != nil {
			return nil, &ValidationError{
				Message: fmt.Sprintf("row %d: invalid amount %q", i+1, rawAmount),
				Err:     err,
			}
		}

		rows = append(rows, JournalRow{
			Dataset:       key,
			JournalType:   journalType,
			ClientID:      strings.TrimSpace(clientID),
			InvoiceNumber: strings.TrimSpace(invoice),
			Amount:        RoundAmount(amount),
			Columns:       rec.Clone(),
			Filename:      filename,
		})
	}
	return rows, nil
}

// NewInstallmentLines maps uploaded summit records onto installment lines.
func NewInstallmentLines(records []Record) []InstallmentLine {
	lines := make([]InstallmentLine, 0, len(records))
	for i, rec := range records {
		clientID, _ := rec.Lookup(SummitClientColumns...)
		region, _ := rec.Lookup(RegionColumns...)
		amount, _ := rec.Lookup(SummitAmountColumns...)
		lines = append(lines, InstallmentLine{
			Line:     i + 1,
			ClientID: clientID,
			Region:   region,
			Amount:   amount,
		})
	}
	return lines
}
