// Package sheets mirrors processed journals into a spreadsheet.
package sheets

import (
	"context"
	"fmt"
	"strings"

	"summit/internal/core"
	"summit/internal/export"
)

// Ports for outbound adapters.
type (
	// JournalWriter replaces the content of one journal tab of a dataset.
	JournalWriter interface {
		WriteJournal(ctx context.Context, key core.DatasetKey, journalType core.JournalType, table export.Table) (ref string, err error)
	}

	// JournalClearer removes every tab of a dataset.
	JournalClearer interface {
		ClearDataset(ctx context.Context, key core.DatasetKey) error
	}

	// Mirror is what the sync worker needs from an adapter.
	Mirror interface {
		JournalWriter
		JournalClearer
	}
)

// maxTabTitle is the longest sheet title the Sheets API accepts.
const maxTabTitle = 100

// DatasetTabPrefix is the title prefix shared by all tabs of a dataset.
func DatasetTabPrefix(prefix string, key core.DatasetKey) string {
	return fmt.Sprintf("%s %d-%d ", strings.TrimSpace(prefix), key.JobID, key.SubsidiaryID)
}

// TabName names the tab holding one journal of a dataset.
func TabName(prefix string, key core.DatasetKey, journalType core.JournalType) string {
	name := DatasetTabPrefix(prefix, key) + string(journalType)
	if len(name) > maxTabTitle {
		name = name[:maxTabTitle]
	}
	return name
}
