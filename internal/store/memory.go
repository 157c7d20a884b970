package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dominieq/market-stock/internal/sim"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and development. Not suitable for production (no persistence).
//
// Documents are held as marshaled JSON so callers never share mutable
// state with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]memoryEntry
}

type memoryEntry struct {
	info     SnapshotInfo
	document []byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, name string, snap *sim.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[name] = memoryEntry{
		info: SnapshotInfo{
			Name:    name,
			TakenAt: snap.TakenAt,
			SavedAt: time.Now().UTC(),
		},
		document: data,
	}
	return nil
}

func (s *MemoryStore) LoadSnapshot(_ context.Context, name string) (*sim.Snapshot, error) {
	s.mu.RLock()
	e, ok := s.snapshots[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var snap sim.Snapshot
	if err := json.Unmarshal(e.document, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", name, err)
	}
	return &snap, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context) ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SnapshotInfo, 0, len(s.snapshots))
	for _, e := range s.snapshots {
		infos = append(infos, e.info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].SavedAt.After(infos[j].SavedAt)
	})
	return infos, nil
}

func (s *MemoryStore) DeleteSnapshot(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.snapshots[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.snapshots, name)
	return nil
}
