package model

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ExchangeKind tags the exchange variant.
type ExchangeKind string

const (
	ExchangeStock     ExchangeKind = "stock"
	ExchangeCurrency  ExchangeKind = "currency"
	ExchangeCommodity ExchangeKind = "commodity"
)

// Exchange owns a collection of listed assets. Listing order is preserved:
// ranking indices break rate ties by the order assets were listed.
// Structural mutation (list/delist) takes the exchange lock; reading takes
// a copy out under the same lock.
type Exchange struct {
	ID      string          `json:"id"`
	Kind    ExchangeKind    `json:"kind"`
	City    string          `json:"city"`
	Country string          `json:"country"`
	Margin  decimal.Decimal `json:"margin"`

	mu     sync.RWMutex
	assets []*Asset
	byName map[string]*Asset
}

// NewExchange creates an empty exchange.
func NewExchange(id string, kind ExchangeKind, city, country string, margin decimal.Decimal) *Exchange {
	return &Exchange{
		ID:      id,
		Kind:    kind,
		City:    city,
		Country: country,
		Margin:  margin,
		byName:  make(map[string]*Asset),
	}
}

// List adds an asset to the exchange. Listing the same name twice is a
// no-op.
func (x *Exchange) List(a *Asset) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.byName[a.Name]; ok {
		return
	}
	x.byName[a.Name] = a
	x.assets = append(x.assets, a)
}

// Delist removes the named asset and returns it, or nil if not listed.
func (x *Exchange) Delist(name string) *Asset {
	x.mu.Lock()
	defer x.mu.Unlock()
	a, ok := x.byName[name]
	if !ok {
		return nil
	}
	delete(x.byName, name)
	for i, listed := range x.assets {
		if listed == a {
			x.assets = append(x.assets[:i], x.assets[i+1:]...)
			break
		}
	}
	return a
}

// Asset returns the named listed asset, or nil.
func (x *Exchange) Asset(name string) *Asset {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.byName[name]
}

// Assets returns a copy of the listed assets in listing order.
func (x *Exchange) Assets() []*Asset {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]*Asset, len(x.assets))
	copy(out, x.assets)
	return out
}

// Lists reports whether the named asset is listed here.
func (x *Exchange) Lists(name string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.byName[name]
	return ok
}
