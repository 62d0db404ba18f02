// Package memory is an in-process exporter for tests and local runs.
package memory

import (
	"context"
	"sync"

	"contas/internal/export"
)

type Store struct {
	mu   sync.Mutex
	tabs map[string]export.Snapshot
}

var _ export.SheetExporter = (*Store)(nil)

func New() *Store {
	return &Store{tabs: make(map[string]export.Snapshot)}
}

// WriteSheet replaces the snapshot's tab.
func (s *Store) WriteSheet(_ context.Context, snap *export.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[snap.TabName()] = *snap
	return nil
}

// Snapshot returns the last write to a tab.
func (s *Store) Snapshot(tab string) (export.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.tabs[tab]
	return snap, ok
}

// Tabs returns the names of every written tab.
func (s *Store) Tabs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tabs))
	for tab := range s.tabs {
		out = append(out, tab)
	}
	return out
}
