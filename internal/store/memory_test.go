package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/model"
	"github.com/dominieq/market-stock/internal/sim"
	"github.com/dominieq/market-stock/internal/store"
)

func sampleSnapshot(budget int64) *sim.Snapshot {
	return &sim.Snapshot{
		TakenAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Player: sim.EntitySnapshot{
			ID:     "player-1",
			Kind:   model.EntityPlayer,
			Name:   "Player",
			Budget: decimal.NewFromInt(budget),
		},
		MainCurrency: sim.AssetSnapshot{
			Name:      "PLN",
			Kind:      model.AssetCurrency,
			History:   []decimal.Decimal{decimal.NewFromInt(1)},
			Available: -1,
		},
	}
}

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, "morning", sampleSnapshot(100)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap, err := s.LoadSnapshot(ctx, "morning")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if snap.Player.ID != "player-1" {
		t.Errorf("player ID = %q, want player-1", snap.Player.ID)
	}
	if !snap.Player.Budget.Equal(decimal.NewFromInt(100)) {
		t.Errorf("player budget = %s, want 100", snap.Player.Budget)
	}
	if snap.MainCurrency.Available != -1 {
		t.Errorf("main currency available = %d, want -1", snap.MainCurrency.Available)
	}
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	s := store.NewMemoryStore()

	if _, err := s.LoadSnapshot(context.Background(), "absent"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_SaveReplaces(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, "game", sampleSnapshot(100)); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := s.SaveSnapshot(ctx, "game", sampleSnapshot(250)); err != nil {
		t.Fatalf("second save: %v", err)
	}

	snap, err := s.LoadSnapshot(ctx, "game")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if !snap.Player.Budget.Equal(decimal.NewFromInt(250)) {
		t.Errorf("budget = %s, want the replacing document's 250", snap.Player.Budget)
	}

	infos, err := s.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(infos) != 1 {
		t.Errorf("listed %d snapshots, want 1", len(infos))
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if err := s.SaveSnapshot(ctx, name, sampleSnapshot(1)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		time.Sleep(time.Millisecond)
	}

	infos, err := s.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("listed %d snapshots, want 3", len(infos))
	}
	if infos[0].Name != "third" || infos[2].Name != "first" {
		t.Errorf("order = [%s %s %s], want newest first", infos[0].Name, infos[1].Name, infos[2].Name)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, "gone", sampleSnapshot(1)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.DeleteSnapshot(ctx, "gone"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, err := s.LoadSnapshot(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("load after delete err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSnapshot(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
