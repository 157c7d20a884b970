package model

import "sync"

// Holding is one briefcase entry: an owned asset and how many units of it.
type Holding struct {
	Asset    *Asset
	Quantity int64
}

// Briefcase maps owned assets to quantities. Every entity owns exactly one
// briefcase and only trades made on behalf of that entity mutate it, but
// the briefcase still locks itself so concurrent readers (snapshots,
// views) see consistent state.
//
// Entries never hold a zero quantity: draining a holding removes it.
type Briefcase struct {
	mu       sync.Mutex
	holdings map[string]*Holding
	order    []string // insertion order, for deterministic iteration
}

// NewBriefcase creates an empty briefcase.
func NewBriefcase() *Briefcase {
	return &Briefcase{holdings: make(map[string]*Holding)}
}

// Add credits n units of an asset, creating the entry if absent.
// Non-positive n is ignored.
func (b *Briefcase) Add(asset *Asset, n int64) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[asset.Name]
	if !ok {
		b.holdings[asset.Name] = &Holding{Asset: asset, Quantity: n}
		b.order = append(b.order, asset.Name)
		return
	}
	h.Quantity += n
}

// Remove debits n units of the named asset. The removal is all-or-nothing:
// if fewer than n units are held, nothing changes and 0 is returned;
// otherwise n is returned and the entry is deleted when it reaches zero.
func (b *Briefcase) Remove(name string, n int64) int64 {
	if n <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.holdings[name]
	if !ok || h.Quantity < n {
		return 0
	}
	h.Quantity -= n
	if h.Quantity == 0 {
		delete(b.holdings, name)
		for i, o := range b.order {
			if o == name {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
	return n
}

// Quantity returns the units held of the named asset, zero if none.
func (b *Briefcase) Quantity(name string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.holdings[name]; ok {
		return h.Quantity
	}
	return 0
}

// Holdings returns a copy of all entries in insertion order.
func (b *Briefcase) Holdings() []Holding {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Holding, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, *b.holdings[name])
	}
	return out
}

// Empty reports whether the briefcase holds nothing.
func (b *Briefcase) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.holdings) == 0
}
