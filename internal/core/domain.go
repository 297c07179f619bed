package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// JournalType names one journal file of a dataset.
type JournalType string

const (
	JournalMain            JournalType = "Main"
	JournalPOA             JournalType = "POA"
	JournalCrossSubsidiary JournalType = "Cross_Subsidiary"

	// JournalSummitInstallments is only ever synthesized by processing.
	JournalSummitInstallments JournalType = "Salon_Summit_Installments"

	JournalMainEU             JournalType = "Main_EU"
	JournalPOAEU              JournalType = "POA_EU"
	JournalCrossSubsidiaryEU  JournalType = "Cross_Subsidiary_EU"
	JournalRefundsEU          JournalType = "Refunds_EU"
	JournalMainAED            JournalType = "Main_AED"
	JournalPOAAED             JournalType = "POA_AED"
	JournalCrossSubsidiaryAED JournalType = "Cross_Subsidiary_AED"
	JournalRefundsAED         JournalType = "Refunds_AED"
)

var (
	standardJournalTypes = []JournalType{JournalMain, JournalPOA, JournalCrossSubsidiary}
	euJournalTypes       = []JournalType{
		JournalMainEU, JournalPOAEU, JournalCrossSubsidiaryEU, JournalRefundsEU,
		JournalMainAED, JournalPOAAED, JournalCrossSubsidiaryAED, JournalRefundsAED,
	}
)

// UploadJournalTypes returns the journal types a subsidiary uploads.
func UploadJournalTypes(eu bool) []JournalType {
	src := standardJournalTypes
	if eu {
		src = euJournalTypes
	}
	return append([]JournalType(nil), src...)
}

// ParseJournalType accepts any known journal type, including the synthesized one.
func ParseJournalType(s string) (JournalType, error) {
	s = strings.TrimSpace(s)
	if JournalType(s) == JournalSummitInstallments {
		return JournalSummitInstallments, nil
	}
	for _, t := range append(UploadJournalTypes(false), UploadJournalTypes(true)...) {
		if string(t) == s {
			return t, nil
		}
	}
	return "", &ValidationError{Message: fmt.Sprintf("invalid journal_type: %q", s)}
}

// DatasetKey identifies one unit of work.
type DatasetKey struct {
	JobID        int64
	SubsidiaryID int64
}

func (k DatasetKey) String() string {
	return fmt.Sprintf("job_%d_sub_%d", k.JobID, k.SubsidiaryID)
}

// Validate requires both ids to be positive.
func (k DatasetKey) Validate() error {
	if k.JobID <= 0 {
		return &ValidationError{Message: "job_id must be a positive integer"}
	}
	if k.SubsidiaryID <= 0 {
		return &ValidationError{Message: "subsidiary_id must be a positive integer"}
	}
	return nil
}

type (
	// JournalRow is an uploaded journal line. It is never modified after upload.
	JournalRow struct {
		ID            int64
		Dataset       DatasetKey
		JournalType   JournalType
		ClientID      string
		InvoiceNumber string
		Amount        decimal.Decimal
		Columns       Record
		Filename      string
	}

	// ProcessedJournalRow is the working copy of a JournalRow, or a
	// synthesized installment row when SourceRowID is zero.
	ProcessedJournalRow struct {
		ID            int64
		SourceRowID   int64
		Dataset       DatasetKey
		JournalType   JournalType
		ClientID      string
		InvoiceNumber string
		Amount        decimal.Decimal
		Columns       Record
	}

	// InstallmentLine is one raw line of an installment upload.
	InstallmentLine struct {
		Line     int
		ClientID string
		Region   string
		Amount   string
	}

	// InstallmentRecord is the aggregated installment of one client.
	InstallmentRecord struct {
		Dataset   DatasetKey
		ClientID  string
		Region    string
		Amount    decimal.Decimal
		LineCount int
	}

	// JournalSummary totals one journal type of a dataset.
	JournalSummary struct {
		JournalType JournalType
		Count       int
		Total       decimal.Decimal
	}
)

// ProcessedFrom copies an original row into a processed row.
func ProcessedFrom(r JournalRow) ProcessedJournalRow {
	return ProcessedJournalRow{
		SourceRowID:   r.ID,
		Dataset:       r.Dataset,
		JournalType:   r.JournalType,
		ClientID:      r.ClientID,
		InvoiceNumber: r.InvoiceNumber,
		Amount:        r.Amount,
		Columns:       r.Columns.Clone(),
	}
}

// MatchStatus classifies an installment against the journals.
type MatchStatus string

const (
	MatchMatched      MatchStatus = "matched"
	MatchInsufficient MatchStatus = "insufficient"
	MatchUnmatched    MatchStatus = "unmatched"
)

// ParseMatchStatus accepts a status or "all", which yields the empty status.
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch MatchStatus(s) {
	case MatchMatched, MatchInsufficient, MatchUnmatched:
		return MatchStatus(s), nil
	}
	if s == "all" {
		return "", nil
	}
	return "", &ValidationError{Message: fmt.Sprintf("invalid match type: %q", s)}
}

// MatchResult is the preview outcome for one client.
type MatchResult struct {
	ClientID          string
	Status            MatchStatus
	TotalReceived     decimal.Decimal
	InstallmentAmount decimal.Decimal
	RemainingAmount   decimal.Decimal
}

// UnmatchReason explains why an installment was not applied.
type UnmatchReason string

const (
	ReasonNotFound     UnmatchReason = "not_found"
	ReasonZeroBalance  UnmatchReason = "zero_balance"
	ReasonInsufficient UnmatchReason = "insufficient"
)

// UnmatchedInstallment is an installment left out of processing.
type UnmatchedInstallment struct {
	ClientID          string          `json:"oak_id"`
	Region            string          `json:"region"`
	InstallmentAmount decimal.Decimal `json:"installment_amount"`
	ClientTotal       decimal.Decimal `json:"client_total"`
	Reason            UnmatchReason   `json:"reason"`
}

// Describe returns a human readable reason.
func (u UnmatchedInstallment) Describe() string {
	switch u.Reason {
	case ReasonNotFound:
		return "Not found in journals"
	case ReasonZeroBalance:
		return "Zero amount in journals"
	case ReasonInsufficient:
		return fmt.Sprintf("Insufficient amount (has %s)", FormatAmount(u.ClientTotal))
	}
	return string(u.Reason)
}

var ErrInvalidAmount = errors.New("invalid amount")
