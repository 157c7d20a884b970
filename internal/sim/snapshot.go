package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/generator"
	"github.com/dominieq/market-stock/internal/index"
	"github.com/dominieq/market-stock/internal/model"
	"github.com/dominieq/market-stock/internal/rate"
	"github.com/dominieq/market-stock/internal/worker"
)

// The snapshot types form the complete, acyclic document handed to the
// persistence collaborator. Assets appear once, under their exchange (or
// under FundUnits for unlisted fund units); everything else references
// them by name. Issuers are referenced by entity ID. Restore resolves all
// references back to one shared object per identity.

// AssetSnapshot captures one asset, including its full rate window.
type AssetSnapshot struct {
	Name      string            `json:"name"`
	Kind      model.AssetKind   `json:"kind"`
	Margin    decimal.Decimal   `json:"margin"`
	History   []decimal.Decimal `json:"history"`   // oldest first; last = current
	Available int64             `json:"available"` // -1: no supply limit
	IssuerID  string            `json:"issuer_id,omitempty"`
}

// HoldingSnapshot references an asset by name.
type HoldingSnapshot struct {
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

// EntitySnapshot captures one participant with its briefcase.
type EntitySnapshot struct {
	ID       string            `json:"id"`
	Kind     model.EntityKind  `json:"kind"`
	Name     string            `json:"name"`
	PESEL    string            `json:"pesel,omitempty"`
	Revenue  decimal.Decimal   `json:"revenue,omitempty"`
	Profit   decimal.Decimal   `json:"profit,omitempty"`
	Capital  decimal.Decimal   `json:"capital,omitempty"`
	Budget   decimal.Decimal   `json:"budget"`
	Issued   string            `json:"issued,omitempty"` // asset name
	Holdings []HoldingSnapshot `json:"holdings,omitempty"`
}

// IndexSnapshot captures an index definition; membership is derived and
// recomputed on restore.
type IndexSnapshot struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Capacity int    `json:"capacity"`
}

// ExchangeSnapshot captures an exchange with its listed assets in listing
// order.
type ExchangeSnapshot struct {
	ID      string             `json:"id"`
	Kind    model.ExchangeKind `json:"kind"`
	City    string             `json:"city"`
	Country string             `json:"country"`
	Margin  decimal.Decimal    `json:"margin"`
	Assets  []AssetSnapshot    `json:"assets"`
	Indices []IndexSnapshot    `json:"indices,omitempty"`
}

// Snapshot is the root document.
type Snapshot struct {
	TakenAt      time.Time          `json:"taken_at"`
	Player       EntitySnapshot     `json:"player"`
	MainCurrency AssetSnapshot      `json:"main_currency"`
	Exchanges    []ExchangeSnapshot `json:"exchanges"`
	FundUnits    []AssetSnapshot    `json:"fund_units,omitempty"`
	Entities     []EntitySnapshot   `json:"entities"`
}

// Snapshot captures the complete structural state of the simulation.
// Workers keep running; each asset and briefcase is read atomically, so
// the document is internally consistent per object.
func (o *Orchestrator) Snapshot() *Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := &Snapshot{
		TakenAt:      time.Now().UTC(),
		Player:       snapEntity(o.player),
		MainCurrency: snapAsset(o.mainCurrency),
	}

	listed := make(map[string]bool)
	for _, id := range o.exchangeOrder {
		x := o.exchanges[id]
		xs := ExchangeSnapshot{
			ID:      x.ID,
			Kind:    x.Kind,
			City:    x.City,
			Country: x.Country,
			Margin:  x.Margin,
		}
		for _, a := range x.Assets() {
			xs.Assets = append(xs.Assets, snapAsset(a))
			listed[a.Name] = true
		}
		for _, ix := range o.indices[id] {
			xs.Indices = append(xs.Indices, IndexSnapshot{
				Name:     ix.Name,
				Kind:     string(ix.Kind),
				Capacity: ix.Capacity,
			})
		}
		snap.Exchanges = append(snap.Exchanges, xs)
	}

	// Fund units are tradable but not listed on an exchange.
	for _, name := range o.registryOrder {
		if !listed[name] {
			snap.FundUnits = append(snap.FundUnits, snapAsset(o.registry[name]))
		}
	}

	for _, id := range o.entityOrder {
		snap.Entities = append(snap.Entities, snapEntity(o.entities[id]))
	}
	return snap
}

func snapAsset(a *model.Asset) AssetSnapshot {
	return AssetSnapshot{
		Name:      a.Name,
		Kind:      a.Kind,
		Margin:    a.Margin,
		History:   a.Track.History(),
		Available: a.AvailableUnits(),
		IssuerID:  a.IssuerID,
	}
}

func snapEntity(e *model.Entity) EntitySnapshot {
	es := EntitySnapshot{
		ID:      e.ID,
		Kind:    e.Kind,
		Name:    e.Name,
		PESEL:   e.PESEL,
		Revenue: e.Revenue,
		Profit:  e.Profit,
		Capital: e.Capital,
		Budget:  e.Budget(),
	}
	if e.Issued != nil {
		es.Issued = e.Issued.Name
	}
	for _, h := range e.Briefcase.Holdings() {
		es.Holdings = append(es.Holdings, HoldingSnapshot{
			Asset:    h.Asset.Name,
			Quantity: h.Quantity,
		})
	}
	return es
}

// Restore reconstructs an equivalent simulation from a snapshot. Every
// cross-reference — a share's issuer, a briefcase entry's asset — resolves
// to the same restored object, not a duplicate. Workers for all
// autonomous entities are started before returning.
func Restore(gen *generator.Generator, rng *rand.Rand, cfg Config, onChange func(*model.Asset), snap *Snapshot) (*Orchestrator, error) {
	o := New(gen, rng, cfg, onChange)

	o.mainCurrency = restoreAsset(snap.MainCurrency, cfg.Rate)
	o.player = model.NewEntity(snap.Player.ID, model.EntityPlayer, snap.Player.Name, snap.Player.Budget)

	o.mu.Lock()

	for _, xs := range snap.Exchanges {
		x := model.NewExchange(xs.ID, xs.Kind, xs.City, xs.Country, xs.Margin)
		o.exchanges[x.ID] = x
		o.exchangeOrder = append(o.exchangeOrder, x.ID)
		o.indices[x.ID] = make(map[string]*index.Index)

		for _, as := range xs.Assets {
			a := restoreAsset(as, cfg.Rate)
			x.List(a)
			o.registry[a.Name] = a
			o.registryOrder = append(o.registryOrder, a.Name)
		}
	}
	for _, as := range snap.FundUnits {
		a := restoreAsset(as, cfg.Rate)
		o.registry[a.Name] = a
		o.registryOrder = append(o.registryOrder, a.Name)
	}

	var started []*worker.Worker
	for _, es := range snap.Entities {
		e := model.NewEntity(es.ID, es.Kind, es.Name, es.Budget)
		e.PESEL = es.PESEL
		e.Revenue = es.Revenue
		e.Profit = es.Profit
		e.Capital = es.Capital
		if es.Issued != "" {
			issued, ok := o.registry[es.Issued]
			if !ok {
				o.mu.Unlock()
				return nil, fmt.Errorf("%w: issued asset %s of entity %s", ErrUnknownAsset, es.Issued, es.ID)
			}
			e.Issued = issued
		}
		for _, h := range es.Holdings {
			a, ok := o.registry[h.Asset]
			if !ok {
				o.mu.Unlock()
				return nil, fmt.Errorf("%w: held asset %s of entity %s", ErrUnknownAsset, h.Asset, es.ID)
			}
			e.Briefcase.Add(a, h.Quantity)
		}
		o.entities[e.ID] = e
		o.entityOrder = append(o.entityOrder, e.ID)
		if e.Kind.Autonomous() {
			started = append(started, o.spawnWorkerLocked(e))
		}
	}

	// Restore player holdings against the shared registry.
	for _, h := range snap.Player.Holdings {
		a, ok := o.registry[h.Asset]
		if !ok {
			o.mu.Unlock()
			return nil, fmt.Errorf("%w: held asset %s of player", ErrUnknownAsset, h.Asset)
		}
		o.player.Briefcase.Add(a, h.Quantity)
	}

	o.mu.Unlock()

	// Index definitions go through the regular path so the initial
	// membership is computed the same way as at creation.
	for _, xs := range snap.Exchanges {
		for _, is := range xs.Indices {
			if _, err := o.AddIndex(xs.ID, is.Name, index.Kind(is.Kind), is.Capacity); err != nil {
				return nil, err
			}
		}
	}

	for _, w := range started {
		w.Start()
	}
	return o, nil
}

func restoreAsset(as AssetSnapshot, rateCfg rate.Config) *model.Asset {
	history := as.History
	initial := decimal.Zero
	if len(history) > 0 {
		initial = history[0]
	}

	var a *model.Asset
	if as.Available >= 0 {
		a = model.NewIssuedAsset(as.Name, as.Kind, as.Margin, initial, rateCfg, as.IssuerID, as.Available)
	} else {
		a = model.NewAsset(as.Name, as.Kind, as.Margin, initial, rateCfg)
	}
	if len(history) > 1 {
		for _, r := range history[1:] {
			a.Track.Append(r)
		}
	}
	return a
}
