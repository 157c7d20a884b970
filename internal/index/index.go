// Package index maintains the top-K / bottom-K rate projections a stock
// exchange publishes over its listed assets.
//
// An Index holds no reconcilable state of its own: every recomputation is
// a full rebuild from a snapshot of the source collection, so it only ever
// describes one consistent point in time.
package index

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/model"
)

// Kind selects the ordering of an index.
type Kind string

const (
	// Max keeps the K highest-rated assets, descending.
	Max Kind = "max"
	// Min keeps the K lowest-rated assets, ascending.
	Min Kind = "min"
)

var (
	// ErrInvalidCapacity is returned when K < 1.
	ErrInvalidCapacity = errors.New("index: capacity must be at least 1")

	// ErrInvalidKind is returned for kinds other than Max and Min.
	ErrInvalidKind = errors.New("index: kind must be max or min")
)

// Index is a derived, ordered subset of at most K assets ranked by current
// rate, plus the sum of the members' rates. Ties keep the relative order
// of the source collection.
type Index struct {
	Name     string
	Kind     Kind
	Capacity int

	mu      sync.RWMutex
	members []*model.Asset
	value   decimal.Decimal
}

// New creates an empty index. The first Rebuild populates it.
func New(name string, kind Kind, capacity int) (*Index, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}
	if kind != Max && kind != Min {
		return nil, ErrInvalidKind
	}
	return &Index{Name: name, Kind: kind, Capacity: capacity}, nil
}

// Rebuild recomputes membership and value from a snapshot of the source
// collection. Concurrent trades may move rates while this runs; the
// rebuild ranks by the rates it reads and the next trade triggers the
// next rebuild.
func (ix *Index) Rebuild(source []*model.Asset) {
	ranked := make([]*model.Asset, len(source))
	copy(ranked, source)

	rates := make(map[string]decimal.Decimal, len(ranked))
	for _, a := range ranked {
		rates[a.Name] = a.CurrentRate()
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := rates[ranked[i].Name], rates[ranked[j].Name]
		if ix.Kind == Max {
			return ri.GreaterThan(rj)
		}
		return ri.LessThan(rj)
	})

	if len(ranked) > ix.Capacity {
		ranked = ranked[:ix.Capacity]
	}

	value := decimal.Zero
	for _, a := range ranked {
		value = value.Add(rates[a.Name])
	}

	ix.mu.Lock()
	ix.members = ranked
	ix.value = value
	ix.mu.Unlock()
}

// Members returns a copy of the current membership in rank order.
func (ix *Index) Members() []*model.Asset {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*model.Asset, len(ix.members))
	copy(out, ix.members)
	return out
}

// Contains reports whether the named asset is currently a member.
func (ix *Index) Contains(name string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, a := range ix.members {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Value returns the sum of the members' rates as of the last rebuild.
func (ix *Index) Value() decimal.Decimal {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.value
}
