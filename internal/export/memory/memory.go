// Package memory is an in-process snapshot sink for local development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"festa/internal/export"
)

type Store struct {
	mu    sync.Mutex
	items []export.Snapshot
}

var _ export.SnapshotWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) WriteSnapshot(_ context.Context, snap export.Snapshot) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snap)
	return fmt.Sprintf("mem:%d", len(s.items)), nil
}

// Snapshots returns a copy of everything written so far.
func (s *Store) Snapshots() []export.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]export.Snapshot(nil), s.items...)
}
