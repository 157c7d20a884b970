// Package trade implements order execution: the buy algorithm with
// slippage re-pricing and buying-pressure price impact, and the sell
// algorithm with margin deduction and selling-pressure price impact.
//
// Rejected trades are not errors: both Buy and Sell return the quantity
// actually traded, zero when nothing happened. Callers — autonomous
// workers and the player alike — proceed normally on zero.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/model"
)

// Default price-impact factors: a buy raises the rate 5%, a sell lowers
// it 5%.
var (
	DefaultBuyImpact  = decimal.NewFromFloat(1.05)
	DefaultSellImpact = decimal.NewFromFloat(0.95)
)

// Config holds the price-impact factors applied after each execution.
type Config struct {
	BuyImpact  decimal.Decimal
	SellImpact decimal.Decimal
}

// DefaultConfig returns the standard 5%/5% impact factors.
func DefaultConfig() Config {
	return Config{BuyImpact: DefaultBuyImpact, SellImpact: DefaultSellImpact}
}

// Executor runs buys and sells against assets and entities. A whole trade
// on one asset is serialized via the asset's trade lock; trades on
// different assets run in parallel.
//
// onExecuted, when set, is invoked after every completed trade with the
// affected asset — the orchestrator uses it to rebuild dependent ranking
// indices and broadcast the rate move.
type Executor struct {
	cfg        Config
	onExecuted func(*model.Asset)
}

// NewExecutor creates an executor. Pass nil for onExecuted if no
// post-trade notification is needed.
func NewExecutor(cfg Config, onExecuted func(*model.Asset)) *Executor {
	if cfg.BuyImpact.IsZero() {
		cfg.BuyImpact = DefaultBuyImpact
	}
	if cfg.SellImpact.IsZero() {
		cfg.SellImpact = DefaultSellImpact
	}
	return &Executor{cfg: cfg, onExecuted: onExecuted}
}

// Buy purchases up to requested units of asset for buyer. observedRate is
// the rate the buyer saw when deciding to trade; if the current rate has
// moved since (slippage), the fillable quantity is re-priced to
// floor(requested × observed ÷ current), preserving the buyer's original
// budget intent. The quantity is further clamped to the asset's available
// units, the asset's rate rises by the buy impact, and the cost moves
// from the buyer's budget into the briefcase.
//
// Returns the quantity actually bought; zero means the trade was rejected
// (nothing affordable or available) and nothing changed.
func (e *Executor) Buy(asset *model.Asset, requested int64, observedRate decimal.Decimal, buyer *model.Entity) int64 {
	if requested <= 0 {
		return 0
	}

	asset.LockTrade()
	defer asset.UnlockTrade()

	// Re-read the rate: another trade may have moved it since the buyer
	// chose this asset.
	current := asset.Track.Current()
	if current.LessThanOrEqual(decimal.Zero) {
		// A worthless asset cannot be re-priced against.
		return 0
	}

	affordable := decimal.NewFromInt(requested).
		Mul(observedRate).
		Div(current).
		Floor().
		IntPart()
	if affordable < 0 {
		affordable = 0
	}

	if asset.Available != nil {
		if avail := asset.Available.Value(); affordable > avail {
			affordable = avail
		}
	}

	cost := current.Mul(decimal.NewFromInt(affordable))
	if affordable == 0 || buyer.Budget().LessThan(cost) {
		return 0
	}

	if asset.Available != nil {
		before := asset.Available.Value()
		after := asset.Available.Decrease(affordable)
		if after == before {
			// Rejected decrease: the units vanished between the clamp
			// and the decrease. Nothing to buy.
			return 0
		}
	}

	if !buyer.Debit(cost) {
		// Budget raced below cost; undo the reservation.
		if asset.Available != nil {
			asset.Available.Increase(affordable)
		}
		return 0
	}

	asset.Track.Append(current.Mul(e.cfg.BuyImpact))
	buyer.Briefcase.Add(asset, affordable)

	slog.Info("buy executed",
		"asset", asset.Name,
		"buyer", buyer.Name,
		"quantity", affordable,
		"rate", current.String(),
		"cost", cost.String(),
	)

	if e.onExecuted != nil {
		e.onExecuted(asset)
	}
	return affordable
}

// Sell disposes quantity units of asset from seller's briefcase. The
// removal is all-or-nothing: holding fewer than quantity units rejects
// the trade. Proceeds per unit are the current rate less the asset's
// margin; the rate then falls by the sell impact, and share units return
// to the issuer's pool of purchasable units.
//
// Returns the quantity actually sold, zero on rejection.
func (e *Executor) Sell(asset *model.Asset, quantity int64, seller *model.Entity) int64 {
	if quantity <= 0 {
		return 0
	}

	asset.LockTrade()
	defer asset.UnlockTrade()

	removed := seller.Briefcase.Remove(asset.Name, quantity)
	if removed == 0 {
		return 0
	}

	current := asset.Track.Current()
	one := decimal.NewFromInt(1)
	perUnit := current.Mul(one.Sub(asset.Margin))
	proceeds := perUnit.Mul(decimal.NewFromInt(removed))

	asset.Track.Append(current.Mul(e.cfg.SellImpact))
	seller.Credit(proceeds)

	if asset.Kind == model.AssetShare && asset.Available != nil {
		asset.Available.Increase(removed)
	}

	slog.Info("sell executed",
		"asset", asset.Name,
		"seller", seller.Name,
		"quantity", removed,
		"rate", current.String(),
		"proceeds", proceeds.String(),
	)

	if e.onExecuted != nil {
		e.onExecuted(asset)
	}
	return removed
}
