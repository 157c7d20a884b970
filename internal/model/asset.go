// Package model defines the core domain types shared across the simulation
// engine: assets, exchanges, entities, and the briefcase ledger.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/quantity"
	"github.com/dominieq/market-stock/internal/rate"
)

// AssetKind tags the tradable instrument variant. Kind-specific state
// (quantity counter, issuer) lives in optional fields of Asset, dispatched
// by switching on Kind rather than by type inspection.
type AssetKind string

const (
	AssetShare     AssetKind = "share"
	AssetCurrency  AssetKind = "currency"
	AssetCommodity AssetKind = "commodity"
	AssetFundUnit  AssetKind = "fund_unit"
)

// Issuable reports whether assets of this kind carry a quantity counter
// limiting the units available for purchase.
func (k AssetKind) Issuable() bool {
	return k == AssetShare || k == AssetFundUnit
}

// Asset is a tradable instrument listed on an exchange. Identity is the
// name, which is unique across the whole simulation. The rate track and
// the quantity counter are self-locking; tradeMu additionally serializes
// whole trades on one asset so that re-pricing and counter updates of a
// single trade are never interleaved with another trade on the same asset.
type Asset struct {
	Name   string          `json:"name"`
	Kind   AssetKind       `json:"kind"`
	Margin decimal.Decimal `json:"margin"` // fee fraction taken from sale proceeds

	Track *rate.Track `json:"-"`

	// Available counts units currently purchasable. Nil for currencies
	// and commodities, which trade without a supply limit.
	Available *quantity.Counter `json:"-"`

	// IssuerID references the issuing entity (company for shares, fund
	// for fund units). Empty otherwise.
	IssuerID string `json:"issuer_id,omitempty"`

	tradeMu sync.Mutex
}

// NewAsset creates a non-issuable asset (currency or commodity).
func NewAsset(name string, kind AssetKind, margin, openingRate decimal.Decimal, rateCfg rate.Config) *Asset {
	return &Asset{
		Name:   name,
		Kind:   kind,
		Margin: margin,
		Track:  rate.NewTrack(rateCfg, openingRate),
	}
}

// NewIssuedAsset creates a share or fund unit backed by an issuer and a
// counter of purchasable units.
func NewIssuedAsset(name string, kind AssetKind, margin, openingRate decimal.Decimal, rateCfg rate.Config, issuerID string, units int64) *Asset {
	a := NewAsset(name, kind, margin, openingRate, rateCfg)
	a.IssuerID = issuerID
	a.Available = quantity.NewCounter(units)
	return a
}

// CurrentRate returns the asset's most recent rate.
func (a *Asset) CurrentRate() decimal.Decimal {
	return a.Track.Current()
}

// AvailableUnits returns the purchasable unit count, or -1 when the asset
// has no supply limit.
func (a *Asset) AvailableUnits() int64 {
	if a.Available == nil {
		return -1
	}
	return a.Available.Value()
}

// LockTrade serializes a full trade on this asset.
func (a *Asset) LockTrade()   { a.tradeMu.Lock() }
func (a *Asset) UnlockTrade() { a.tradeMu.Unlock() }
