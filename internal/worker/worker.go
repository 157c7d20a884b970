// Package worker runs the autonomous behavior loop of investors,
// investment funds, and companies. One worker goroutine is scheduled per
// entity; the entity record itself stays passive so the scheduling
// strategy can change without touching the data model.
package worker

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/model"
)

// Market is the orchestrator surface a worker trades against.
type Market interface {
	// TradableAssets returns a snapshot of every currently tradable asset
	// across all exchanges.
	TradableAssets() []*model.Asset

	// Buy executes a purchase on behalf of the entity. Returns the
	// quantity actually bought, zero on rejection.
	Buy(buyer *model.Entity, asset *model.Asset, quantity int64, observedRate decimal.Decimal) int64

	// Sell executes a sale on behalf of the entity. Returns the quantity
	// actually sold, zero on rejection.
	Sell(seller *model.Entity, asset *model.Asset, quantity int64) int64
}

// Config bounds the worker's random sleeps, budget refreshes, and unit
// issues.
type Config struct {
	// MinSleep/MaxSleep bound the pause between loop actions.
	MinSleep time.Duration
	MaxSleep time.Duration

	// RefreshMin/RefreshMax bound the periodic budget increment.
	RefreshMin decimal.Decimal
	RefreshMax decimal.Decimal

	// IssueMin/IssueMax bound the units a fund or company adds to its
	// issued asset each cycle.
	IssueMin int64
	IssueMax int64
}

// DefaultConfig returns the standard worker timing and refresh bounds.
func DefaultConfig() Config {
	return Config{
		MinSleep:   1 * time.Second,
		MaxSleep:   5 * time.Second,
		RefreshMin: decimal.NewFromInt(10),
		RefreshMax: decimal.NewFromInt(100),
		IssueMin:   10,
		IssueMax:   500,
	}
}

// Worker drives one entity. The loop sleeps a random duration, performs
// one trade (buy or sell, chosen at random), sleeps again, then refreshes
// the entity's budget and issued units. Termination is cooperative:
// the stop signal is observed at loop boundaries, never mid-trade.
type Worker struct {
	cfg    Config
	entity *model.Entity
	market Market
	rng    *rand.Rand

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a worker for an entity. The rand.Rand is owned exclusively
// by this worker.
func New(cfg Config, entity *model.Entity, market Market, rng *rand.Rand) *Worker {
	return &Worker{
		cfg:    cfg,
		entity: entity,
		market: market,
		rng:    rng,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the behavior loop in its own goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Terminate requests a cooperative stop. Safe to call more than once.
// The worker may still be mid-sleep; use Join to wait for exit.
func (w *Worker) Terminate() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Join waits up to bound for the worker to exit. Returns false if the
// bound elapsed first.
func (w *Worker) Join(bound time.Duration) bool {
	select {
	case <-w.done:
		return true
	case <-time.After(bound):
		return false
	}
}

// SleepCeiling returns the longest single pause the loop can take; a
// terminator waiting this long plus a grace period will normally observe
// the exit.
func (w *Worker) SleepCeiling() time.Duration {
	return w.cfg.MaxSleep
}

func (w *Worker) run() {
	defer close(w.done)

	slog.Info("worker started", "entity", w.entity.Name, "kind", w.entity.Kind)
	for {
		if !w.sleep() {
			break
		}

		if w.rng.Intn(2) == 0 {
			w.chooseAndBuy()
		} else {
			w.chooseAndSell()
		}

		if !w.sleep() {
			break
		}
		w.refresh()
	}
	slog.Info("worker terminated", "entity", w.entity.Name)
}

// sleep pauses for a random duration within the configured bounds.
// Returns false when the worker was terminated during the pause.
func (w *Worker) sleep() bool {
	span := w.cfg.MaxSleep - w.cfg.MinSleep
	d := w.cfg.MinSleep
	if span > 0 {
		d += time.Duration(w.rng.Int63n(int64(span)))
	}
	select {
	case <-w.stop:
		return false
	case <-time.After(d):
		return true
	}
}

func (w *Worker) chooseAndBuy() {
	asset, qty, observed, ok := ChooseToBuy(w.entity.Budget(), w.market.TradableAssets())
	if !ok {
		return
	}
	if bought := w.market.Buy(w.entity, asset, qty, observed); bought == 0 {
		slog.Debug("buy rejected", "entity", w.entity.Name, "asset", asset.Name)
	}
}

func (w *Worker) chooseAndSell() {
	asset, qty, ok := ChooseToSell(w.rng, w.entity)
	if !ok {
		return
	}
	if sold := w.market.Sell(w.entity, asset, qty); sold == 0 {
		slog.Debug("sell rejected", "entity", w.entity.Name, "asset", asset.Name)
	}
}

// refresh tops up the entity's budget and, for issuers, adds units to the
// issued asset's purchasable pool.
func (w *Worker) refresh() {
	span := w.cfg.RefreshMax.Sub(w.cfg.RefreshMin)
	increment := w.cfg.RefreshMin.Add(span.Mul(decimal.NewFromFloat(w.rng.Float64()))).Round(2)
	w.entity.Credit(increment)

	if w.entity.Issued != nil && w.entity.Issued.Available != nil {
		units := w.cfg.IssueMin
		if w.cfg.IssueMax > w.cfg.IssueMin {
			units += w.rng.Int63n(w.cfg.IssueMax - w.cfg.IssueMin + 1)
		}
		w.entity.Issued.Available.Increase(units)
	}
}

// ChooseToBuy applies the buy selection rule: among the tradable assets,
// compute the quantity affordable on the full budget at each asset's
// current rate; among assets affording at least one unit, pick the one
// with the highest rate (ties: first encountered). Returns the chosen
// asset, the affordable quantity, and the observed rate; ok is false when
// nothing is affordable.
func ChooseToBuy(budget decimal.Decimal, assets []*model.Asset) (asset *model.Asset, quantity int64, observed decimal.Decimal, ok bool) {
	for _, a := range assets {
		r := a.CurrentRate()
		if r.LessThanOrEqual(decimal.Zero) {
			continue
		}
		q := budget.Div(r).Floor().IntPart()
		if q < 1 {
			continue
		}
		if asset == nil || r.GreaterThan(observed) {
			asset, quantity, observed = a, q, r
		}
	}
	return asset, quantity, observed, asset != nil
}

// ChooseToSell applies the sell selection rule: pick the held asset with
// the highest current rate and a uniformly random quantity between 1 and
// the held amount. ok is false when the briefcase is empty.
func ChooseToSell(rng *rand.Rand, seller *model.Entity) (asset *model.Asset, quantity int64, ok bool) {
	var held int64
	var best decimal.Decimal
	for _, h := range seller.Briefcase.Holdings() {
		r := h.Asset.CurrentRate()
		if asset == nil || r.GreaterThan(best) {
			asset, held, best = h.Asset, h.Quantity, r
		}
	}
	if asset == nil {
		return nil, 0, false
	}
	return asset, 1 + rng.Int63n(held), true
}
