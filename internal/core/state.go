package core

// DatasetState is the workflow position of a dataset, derived from row counts.
type DatasetState int

const (
	StateEmpty DatasetState = iota
	StateJournalsUploaded
	StateSummitUploaded
	StateProcessingComplete
)

var stateNames = map[DatasetState]string{
	StateEmpty:              "empty",
	StateJournalsUploaded:   "journals_uploaded",
	StateSummitUploaded:     "summit_uploaded",
	StateProcessingComplete: "processing_complete",
}

func (s DatasetState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name in JSON payloads.
func (s DatasetState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeriveState maps row counts onto the workflow. Processed rows win over
// installments, installments over journals.
func DeriveState(journals, installments, processed int) DatasetState {
	switch {
	case processed > 0:
		return StateProcessingComplete
	case installments > 0:
		return StateSummitUploaded
	case journals > 0:
		return StateJournalsUploaded
	}
	return StateEmpty
}

// CanUploadSummit reports whether installments may be uploaded.
func (s DatasetState) CanUploadSummit() bool { return s == StateJournalsUploaded }

// CanProcess reports whether installments can be applied to the journals.
func (s DatasetState) CanProcess() bool { return s == StateSummitUploaded }
