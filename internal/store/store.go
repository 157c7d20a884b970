// Package store persists named simulation snapshots. PostgreSQL is the
// source of truth; Redis provides a read-through cache; the in-memory
// store backs testing and development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/dominieq/market-stock/internal/sim"
)

// ErrNotFound is returned when a named snapshot does not exist.
var ErrNotFound = errors.New("store: snapshot not found")

// SnapshotInfo describes a saved snapshot without its document.
type SnapshotInfo struct {
	Name    string    `json:"name"`
	TakenAt time.Time `json:"taken_at"`
	SavedAt time.Time `json:"saved_at"`
}

// Store persists complete simulation snapshots under caller-chosen names.
// Saving under an existing name replaces the previous document.
type Store interface {
	// SaveSnapshot persists a snapshot under the given name.
	SaveSnapshot(ctx context.Context, name string, snap *sim.Snapshot) error

	// LoadSnapshot retrieves a snapshot by name.
	LoadSnapshot(ctx context.Context, name string) (*sim.Snapshot, error)

	// ListSnapshots returns metadata for all saved snapshots, newest first.
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)

	// DeleteSnapshot removes a snapshot by name.
	DeleteSnapshot(ctx context.Context, name string) error
}
