// Package memory is an in-process sheets adapter used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"summit/internal/core"
	"summit/internal/export"
	ports "summit/internal/sheets"
)

var _ ports.Mirror = (*Store)(nil)

type Store struct {
	mu     sync.Mutex
	prefix string
	tabs   map[string]export.Table
	writes int
}

func New(prefix string) *Store {
	if prefix == "" {
		prefix = "Summit"
	}
	return &Store{prefix: prefix, tabs: make(map[string]export.Table)}
}

// WriteJournal stores a copy of table under the journal's tab name.
func (s *Store) WriteJournal(_ context.Context, key core.DatasetKey, journalType core.JournalType, table export.Table) (string, error) {
	name := ports.TabName(s.prefix, key, journalType)

	cp := export.Table{Header: append([]string(nil), table.Header...)}
	for _, row := range table.Rows {
		cp.Rows = append(cp.Rows, append([]string(nil), row...))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[name] = cp
	s.writes++
	return "mem:" + name, nil
}

// ClearDataset drops every tab of the dataset.
func (s *Store) ClearDataset(_ context.Context, key core.DatasetKey) error {
	prefix := ports.DatasetTabPrefix(s.prefix, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.tabs {
		if strings.HasPrefix(name, prefix) {
			delete(s.tabs, name)
		}
	}
	return nil
}

// Tab returns the stored table of one journal.
func (s *Store) Tab(key core.DatasetKey, journalType core.JournalType) (export.Table, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[ports.TabName(s.prefix, key, journalType)]
	return t, ok
}

// Tabs lists tab names in sorted order.
func (s *Store) Tabs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tabs))
	for name := range s.tabs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Writes counts WriteJournal calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
