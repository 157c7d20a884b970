package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dominieq/market-stock/internal/sim"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) SaveSnapshot(ctx context.Context, name string, snap *sim.Snapshot) error {
	if err := s.primary.SaveSnapshot(ctx, name, snap); err != nil {
		return err
	}
	s.cacheSnapshot(ctx, name, snap)
	return nil
}

func (s *CachedStore) LoadSnapshot(ctx context.Context, name string) (*sim.Snapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, snapshotKey(name)).Bytes()
	if err == nil {
		var snap sim.Snapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.LoadSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}

	s.cacheSnapshot(ctx, name, snap)
	return snap, nil
}

// ListSnapshots is not cached; the listing must reflect deletes and saves
// made by other processes.
func (s *CachedStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	return s.primary.ListSnapshots(ctx)
}

func (s *CachedStore) DeleteSnapshot(ctx context.Context, name string) error {
	if err := s.primary.DeleteSnapshot(ctx, name); err != nil {
		return err
	}
	s.rdb.Del(ctx, snapshotKey(name))
	return nil
}

func (s *CachedStore) cacheSnapshot(ctx context.Context, name string, snap *sim.Snapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, snapshotKey(name), data, s.ttl)
	}
}

func snapshotKey(name string) string { return fmt.Sprintf("snapshot:%s", name) }
