package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dominieq/market-stock/internal/sim"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The full snapshot is stored as one JSONB document per name; saving
// under an existing name replaces it.
//
// Expected schema:
//
//	CREATE TABLE snapshots (
//	    name     TEXT PRIMARY KEY,
//	    taken_at TIMESTAMPTZ NOT NULL,
//	    saved_at TIMESTAMPTZ NOT NULL,
//	    document JSONB NOT NULL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, name string, snap *sim.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", name, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (name, taken_at, saved_at, document)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO UPDATE
		 SET taken_at = EXCLUDED.taken_at,
		     saved_at = EXCLUDED.saved_at,
		     document = EXCLUDED.document`,
		name, snap.TakenAt, time.Now().UTC(), data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", name, err)
	}
	return nil
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context, name string) (*sim.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM snapshots WHERE name = $1`, name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", name, err)
	}

	var snap sim.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", name, err)
	}
	return &snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, taken_at, saved_at FROM snapshots ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.Name, &info.TakenAt, &info.SavedAt); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}
