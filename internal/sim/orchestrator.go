// Package sim owns the whole simulation: every exchange, asset, entity,
// ranking index, and worker lifecycle. All structural mutation goes
// through the Orchestrator — workers and views only ever see snapshots or
// self-locking objects.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/generator"
	"github.com/dominieq/market-stock/internal/index"
	"github.com/dominieq/market-stock/internal/metrics"
	"github.com/dominieq/market-stock/internal/model"
	"github.com/dominieq/market-stock/internal/rate"
	"github.com/dominieq/market-stock/internal/trade"
	"github.com/dominieq/market-stock/internal/worker"
)

var (
	// ErrUnknownExchange is returned for operations on an absent exchange.
	ErrUnknownExchange = errors.New("sim: unknown exchange")

	// ErrUnknownAsset is returned for operations on an absent asset.
	ErrUnknownAsset = errors.New("sim: unknown asset")

	// ErrUnknownEntity is returned for operations on an absent entity.
	ErrUnknownEntity = errors.New("sim: unknown entity")

	// ErrUnknownIndex is returned for operations on an absent index.
	ErrUnknownIndex = errors.New("sim: unknown index")

	// ErrKindMismatch is returned when an asset or index kind does not
	// suit the target exchange.
	ErrKindMismatch = errors.New("sim: kind does not suit this exchange")

	// ErrTradeRejected signals a player trade that did not execute:
	// not enough budget, units, or holdings.
	ErrTradeRejected = errors.New("sim: not enough budget/units")
)

// Config gathers the tunable parameters of a simulation run.
type Config struct {
	Rate   rate.Config
	Trade  trade.Config
	Worker worker.Config

	// JoinGrace is added on top of a worker's sleep ceiling when waiting
	// for it to terminate.
	JoinGrace time.Duration
}

// DefaultConfig returns the standard simulation parameters.
func DefaultConfig() Config {
	return Config{
		Rate:      rate.DefaultConfig(),
		Trade:     trade.DefaultConfig(),
		Worker:    worker.DefaultConfig(),
		JoinGrace: time.Second,
	}
}

// Orchestrator is the root aggregate. It owns the registries, routes all
// trades through one executor, and manages one background worker per
// investor, fund, and company. The player is created once at construction
// and acts only through PlayerBuy/PlayerSell.
type Orchestrator struct {
	cfg      Config
	gen      *generator.Generator
	onChange func(*model.Asset)

	mu            sync.RWMutex
	rng           *rand.Rand // guarded by mu; admin draws only
	exchanges     map[string]*model.Exchange
	exchangeOrder []string
	entities      map[string]*model.Entity
	entityOrder   []string
	registry      map[string]*model.Asset
	registryOrder []string
	indices       map[string]map[string]*index.Index // exchange ID → index name
	workers       map[string]*worker.Worker          // entity ID

	exec         *trade.Executor
	player       *model.Entity
	mainCurrency *model.Asset
}

// New creates a simulation with a player and a main comparison currency,
// but no exchanges or autonomous entities yet. onChange, when non-nil, is
// invoked after every executed trade with the affected asset (after
// dependent indices were rebuilt).
func New(gen *generator.Generator, rng *rand.Rand, cfg Config, onChange func(*model.Asset)) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		gen:       gen,
		onChange:  onChange,
		rng:       rng,
		exchanges: make(map[string]*model.Exchange),
		entities:  make(map[string]*model.Entity),
		registry:  make(map[string]*model.Asset),
		indices:   make(map[string]map[string]*index.Index),
		workers:   make(map[string]*worker.Worker),
	}
	o.exec = trade.NewExecutor(cfg.Trade, o.assetChanged)

	o.player = model.NewEntity(uuid.New().String(), model.EntityPlayer, "Player", gen.Capital())
	o.mainCurrency = model.NewAsset(gen.CurrencyName(), model.AssetCurrency,
		decimal.Zero, decimal.NewFromInt(1), cfg.Rate)
	return o
}

// Player returns the singleton player entity.
func (o *Orchestrator) Player() *model.Entity { return o.player }

// MainCurrency returns the reference currency all Currency assets are
// quoted against. It is not itself tradable.
func (o *Orchestrator) MainCurrency() *model.Asset { return o.mainCurrency }

// --- Exchanges ---

// AddExchange creates an exchange of the given kind with drawn location
// and margin.
func (o *Orchestrator) AddExchange(kind model.ExchangeKind) (*model.Exchange, error) {
	switch kind {
	case model.ExchangeStock, model.ExchangeCurrency, model.ExchangeCommodity:
	default:
		return nil, fmt.Errorf("%w: %q", ErrKindMismatch, kind)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	x := model.NewExchange(uuid.New().String(), kind, o.gen.City(), o.gen.Country(), o.gen.Margin())
	o.exchanges[x.ID] = x
	o.exchangeOrder = append(o.exchangeOrder, x.ID)
	o.indices[x.ID] = make(map[string]*index.Index)

	slog.Info("exchange added", "id", x.ID, "kind", kind, "city", x.City)
	return x, nil
}

// RemoveExchange removes an exchange and cascades: every listed asset
// leaves the registry, every issuing company is terminated and its worker
// joined, and every index of the exchange is dropped.
func (o *Orchestrator) RemoveExchange(id string) error {
	o.mu.Lock()
	x, ok := o.exchanges[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExchange, id)
	}

	delete(o.exchanges, id)
	o.exchangeOrder = removeString(o.exchangeOrder, id)
	delete(o.indices, id)

	var stopped []*worker.Worker
	for _, a := range x.Assets() {
		o.deregisterAssetLocked(a.Name)
		if a.IssuerID != "" {
			if w := o.detachEntityLocked(a.IssuerID); w != nil {
				stopped = append(stopped, w)
			}
		}
	}
	o.mu.Unlock()

	// Joining happens outside the lock: a worker finishing a trade may
	// need the read lock to rebuild indices.
	for _, w := range stopped {
		o.joinWorker(w)
	}

	slog.Info("exchange removed", "id", id)
	return nil
}

// Exchange returns the exchange with the given ID, or nil.
func (o *Orchestrator) Exchange(id string) *model.Exchange {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.exchanges[id]
}

// Exchanges returns all exchanges in creation order.
func (o *Orchestrator) Exchanges() []*model.Exchange {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*model.Exchange, 0, len(o.exchangeOrder))
	for _, id := range o.exchangeOrder {
		out = append(out, o.exchanges[id])
	}
	return out
}

// --- Assets ---

// assetKindFor maps exchange kinds to the asset kind they list.
var assetKindFor = map[model.ExchangeKind]model.AssetKind{
	model.ExchangeStock:     model.AssetShare,
	model.ExchangeCurrency:  model.AssetCurrency,
	model.ExchangeCommodity: model.AssetCommodity,
}

// AddAsset creates and lists an asset of the kind the exchange trades.
// Listing a share also creates the issuing company entity and starts its
// worker.
func (o *Orchestrator) AddAsset(exchangeID string) (*model.Asset, error) {
	o.mu.Lock()

	x, ok := o.exchanges[exchangeID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeID)
	}

	kind := assetKindFor[x.Kind]
	var a *model.Asset
	var companyWorker *worker.Worker

	switch kind {
	case model.AssetShare:
		name := o.uniqueNameLocked(o.gen.CompanyName())
		company := model.NewEntity(uuid.New().String(), model.EntityCompany, name, o.gen.Capital())
		company.Revenue = o.gen.Revenue()
		company.Profit = o.gen.Profit()
		company.Capital = o.gen.Capital()

		a = model.NewIssuedAsset(name, kind, x.Margin, o.gen.OpeningRate(),
			o.cfg.Rate, company.ID, o.gen.IssuedUnits())
		company.Issued = a

		o.entities[company.ID] = company
		o.entityOrder = append(o.entityOrder, company.ID)
		companyWorker = o.spawnWorkerLocked(company)
	case model.AssetCurrency:
		a = model.NewAsset(o.uniqueNameLocked(o.gen.CurrencyName()), kind,
			x.Margin, o.gen.OpeningRate(), o.cfg.Rate)
	case model.AssetCommodity:
		a = model.NewAsset(o.uniqueNameLocked(o.gen.CommodityName()), kind,
			x.Margin, o.gen.OpeningRate(), o.cfg.Rate)
	}

	x.List(a)
	o.registry[a.Name] = a
	o.registryOrder = append(o.registryOrder, a.Name)
	indices := o.indicesForLocked(exchangeID)
	source := x.Assets()
	o.mu.Unlock()

	for _, ix := range indices {
		ix.Rebuild(source)
	}
	if companyWorker != nil {
		companyWorker.Start()
	}

	slog.Info("asset added", "name", a.Name, "kind", kind, "exchange", exchangeID)
	return a, nil
}

// RemoveAsset delists an asset from its exchange and deregisters it.
// Removing a share also terminates its issuing company.
func (o *Orchestrator) RemoveAsset(exchangeID, name string) error {
	o.mu.Lock()

	x, ok := o.exchanges[exchangeID]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeID)
	}
	a := x.Delist(name)
	if a == nil {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownAsset, name)
	}

	o.deregisterAssetLocked(name)
	var stopped *worker.Worker
	if a.IssuerID != "" {
		stopped = o.detachEntityLocked(a.IssuerID)
	}
	indices := o.indicesForLocked(exchangeID)
	source := x.Assets()
	o.mu.Unlock()

	for _, ix := range indices {
		ix.Rebuild(source)
	}
	if stopped != nil {
		o.joinWorker(stopped)
	}

	slog.Info("asset removed", "name", name, "exchange", exchangeID)
	return nil
}

// Asset returns the named tradable asset, or nil.
func (o *Orchestrator) Asset(name string) *model.Asset {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.registry[name]
}

// TradableAssets returns a snapshot of every tradable asset across all
// exchanges and funds, in registration order. This is the view workers
// select from.
func (o *Orchestrator) TradableAssets() []*model.Asset {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*model.Asset, 0, len(o.registryOrder))
	for _, name := range o.registryOrder {
		out = append(out, o.registry[name])
	}
	return out
}

// --- Indices ---

// AddIndex creates a ranking index over a stock exchange's listed assets
// and computes its initial membership.
func (o *Orchestrator) AddIndex(exchangeID, name string, kind index.Kind, capacity int) (*index.Index, error) {
	o.mu.Lock()

	x, ok := o.exchanges[exchangeID]
	if !ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeID)
	}
	if x.Kind != model.ExchangeStock {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: indices require a stock exchange", ErrKindMismatch)
	}

	ix, err := index.New(name, kind, capacity)
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.indices[exchangeID][name] = ix
	source := x.Assets()
	o.mu.Unlock()

	ix.Rebuild(source)
	slog.Info("index added", "name", name, "kind", kind, "capacity", capacity)
	return ix, nil
}

// RemoveIndex drops an index from a stock exchange.
func (o *Orchestrator) RemoveIndex(exchangeID, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	byName, ok := o.indices[exchangeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExchange, exchangeID)
	}
	if _, ok := byName[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIndex, name)
	}
	delete(byName, name)
	return nil
}

// Indices returns the indices of an exchange.
func (o *Orchestrator) Indices(exchangeID string) []*index.Index {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.indicesForLocked(exchangeID)
}

// --- Entities ---

// AddInvestor creates an investor with drawn identity and budget and
// starts its worker.
func (o *Orchestrator) AddInvestor() (*model.Entity, error) {
	o.mu.Lock()
	e := model.NewEntity(uuid.New().String(), model.EntityInvestor, o.gen.PersonName(), o.gen.Capital())
	e.PESEL = o.gen.PESEL()
	o.entities[e.ID] = e
	o.entityOrder = append(o.entityOrder, e.ID)
	w := o.spawnWorkerLocked(e)
	o.mu.Unlock()

	w.Start()
	slog.Info("investor added", "id", e.ID, "name", e.Name)
	return e, nil
}

// AddFund creates an investment fund, registers its tradable fund unit,
// and starts its worker.
func (o *Orchestrator) AddFund() (*model.Entity, error) {
	o.mu.Lock()
	e := model.NewEntity(uuid.New().String(), model.EntityFund, o.gen.FundName(), o.gen.Capital())

	unitName := o.uniqueNameLocked(e.Name + " Units")
	unit := model.NewIssuedAsset(unitName, model.AssetFundUnit, o.gen.Margin(),
		o.gen.OpeningRate(), o.cfg.Rate, e.ID, o.gen.IssuedUnits())
	e.Issued = unit

	o.entities[e.ID] = e
	o.entityOrder = append(o.entityOrder, e.ID)
	o.registry[unitName] = unit
	o.registryOrder = append(o.registryOrder, unitName)
	w := o.spawnWorkerLocked(e)
	o.mu.Unlock()

	w.Start()
	slog.Info("fund added", "id", e.ID, "name", e.Name, "unit", unitName)
	return e, nil
}

// RemoveEntity terminates an investor or fund, waits (bounded) for its
// worker, and removes it together with any asset it issued. Companies are
// removed through their share's exchange, not directly.
func (o *Orchestrator) RemoveEntity(id string) error {
	o.mu.Lock()
	e, ok := o.entities[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownEntity, id)
	}
	if e.Kind == model.EntityCompany {
		o.mu.Unlock()
		return fmt.Errorf("%w: companies are removed via their share's exchange", ErrKindMismatch)
	}
	if e.Issued != nil {
		o.deregisterAssetLocked(e.Issued.Name)
	}
	w := o.detachEntityLocked(id)
	o.mu.Unlock()

	if w != nil {
		o.joinWorker(w)
	}
	slog.Info("entity removed", "id", id, "name", e.Name)
	return nil
}

// Entity returns the entity with the given ID, or nil.
func (o *Orchestrator) Entity(id string) *model.Entity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entities[id]
}

// Entities returns all autonomous entities in creation order.
func (o *Orchestrator) Entities() []*model.Entity {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*model.Entity, 0, len(o.entityOrder))
	for _, id := range o.entityOrder {
		out = append(out, o.entities[id])
	}
	return out
}

// --- Trading ---

// Buy routes a worker's purchase through the shared executor.
func (o *Orchestrator) Buy(buyer *model.Entity, asset *model.Asset, quantity int64, observedRate decimal.Decimal) int64 {
	bought := o.exec.Buy(asset, quantity, observedRate, buyer)
	if bought > 0 {
		metrics.TradesTotal.WithLabelValues("buy", string(asset.Kind)).Inc()
	} else {
		metrics.TradeRejections.WithLabelValues("buy").Inc()
	}
	return bought
}

// Sell routes a worker's sale through the shared executor.
func (o *Orchestrator) Sell(seller *model.Entity, asset *model.Asset, quantity int64) int64 {
	sold := o.exec.Sell(asset, quantity, seller)
	if sold > 0 {
		metrics.TradesTotal.WithLabelValues("sell", string(asset.Kind)).Inc()
	} else {
		metrics.TradeRejections.WithLabelValues("sell").Inc()
	}
	return sold
}

// PlayerBuy purchases on behalf of the player at the currently observed
// rate. A rejected trade returns ErrTradeRejected so the caller can
// notify the player; workers never see this error.
func (o *Orchestrator) PlayerBuy(assetName string, quantity int64) (int64, error) {
	a := o.Asset(assetName)
	if a == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, assetName)
	}
	bought := o.Buy(o.player, a, quantity, a.CurrentRate())
	if bought == 0 {
		return 0, ErrTradeRejected
	}
	return bought, nil
}

// PlayerSell sells from the player's briefcase.
func (o *Orchestrator) PlayerSell(assetName string, quantity int64) (int64, error) {
	a := o.Asset(assetName)
	if a == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, assetName)
	}
	sold := o.Sell(o.player, a, quantity)
	if sold == 0 {
		return 0, ErrTradeRejected
	}
	return sold, nil
}

// --- Lifecycle ---

// Shutdown terminates every worker and waits (bounded) for each.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	stopped := make([]*worker.Worker, 0, len(o.workers))
	for id, w := range o.workers {
		w.Terminate()
		stopped = append(stopped, w)
		delete(o.workers, id)
	}
	o.mu.Unlock()

	for _, w := range stopped {
		o.joinWorker(w)
	}
	slog.Info("simulation stopped", "workers", len(stopped))
}

// --- internals ---

// assetChanged is the executor's post-trade hook: rebuild every index
// whose exchange lists the asset, then notify the view layer.
func (o *Orchestrator) assetChanged(a *model.Asset) {
	type rebuild struct {
		ix     *index.Index
		source []*model.Asset
	}
	var rebuilds []rebuild

	o.mu.RLock()
	for id, x := range o.exchanges {
		if !x.Lists(a.Name) {
			continue
		}
		source := x.Assets()
		for _, ix := range o.indices[id] {
			rebuilds = append(rebuilds, rebuild{ix: ix, source: source})
		}
	}
	onChange := o.onChange
	o.mu.RUnlock()

	for _, r := range rebuilds {
		r.ix.Rebuild(r.source)
	}
	if onChange != nil {
		onChange(a)
	}
}

// spawnWorkerLocked creates (but does not start) a worker for an entity.
// Each worker gets its own rand.Rand derived from the admin source, so
// runs stay reproducible under a fixed seed.
func (o *Orchestrator) spawnWorkerLocked(e *model.Entity) *worker.Worker {
	w := worker.New(o.cfg.Worker, e, o, rand.New(rand.NewSource(o.rng.Int63())))
	o.workers[e.ID] = w
	metrics.ActiveWorkers.Inc()
	return w
}

// detachEntityLocked removes an entity and terminates its worker,
// returning the worker for the caller to join outside the lock.
func (o *Orchestrator) detachEntityLocked(id string) *worker.Worker {
	if _, ok := o.entities[id]; !ok {
		return nil
	}
	delete(o.entities, id)
	o.entityOrder = removeString(o.entityOrder, id)

	w := o.workers[id]
	if w == nil {
		return nil
	}
	delete(o.workers, id)
	w.Terminate()
	return w
}

// joinWorker waits for a terminated worker, bounded by a full loop cycle
// (two sleeps) plus the configured grace. An overrun is reported and the
// removal proceeds best-effort.
func (o *Orchestrator) joinWorker(w *worker.Worker) {
	bound := 2*w.SleepCeiling() + o.cfg.JoinGrace
	if !w.Join(bound) {
		slog.Warn("worker did not terminate within bound", "bound", bound)
	}
	metrics.ActiveWorkers.Dec()
}

func (o *Orchestrator) deregisterAssetLocked(name string) {
	if _, ok := o.registry[name]; !ok {
		return
	}
	delete(o.registry, name)
	o.registryOrder = removeString(o.registryOrder, name)
}

func (o *Orchestrator) indicesForLocked(exchangeID string) []*index.Index {
	byName := o.indices[exchangeID]
	out := make([]*index.Index, 0, len(byName))
	for _, ix := range byName {
		out = append(out, ix)
	}
	return out
}

// uniqueNameLocked disambiguates drawn names, which come from finite
// lists: "Orbis", "Orbis 2", "Orbis 3", ...
func (o *Orchestrator) uniqueNameLocked(base string) string {
	if _, taken := o.registry[base]; !taken {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s %d", base, n)
		if _, taken := o.registry[candidate]; !taken {
			return candidate
		}
	}
}

func removeString(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
