// Package api provides the HTTP view surface of the simulation: exchange,
// asset, index, and entity management, player trading, and snapshot
// persistence.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/index"
	"github.com/dominieq/market-stock/internal/model"
	"github.com/dominieq/market-stock/internal/sim"
	"github.com/dominieq/market-stock/internal/store"
)

// RestoreFunc builds a fresh orchestrator from a persisted snapshot. The
// service does not know the generator or seed, so the binary supplies the
// construction.
type RestoreFunc func(*sim.Snapshot) (*sim.Orchestrator, error)

// Service handles simulation operations over one orchestrator. Restoring
// a snapshot swaps the orchestrator atomically; in-flight requests finish
// against the one they started with.
type Service struct {
	mu      sync.RWMutex
	sim     *sim.Orchestrator
	store   store.Store
	restore RestoreFunc
}

// NewService creates the view service. restore may be nil, in which case
// snapshot restore requests are rejected.
func NewService(o *sim.Orchestrator, st store.Store, restore RestoreFunc) *Service {
	return &Service{sim: o, store: st, restore: restore}
}

// Sim returns the current orchestrator.
func (s *Service) Sim() *sim.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sim
}

// Router builds the /api/v1 route table. The WebSocket hub is optional.
func (s *Service) Router(hub *WSHub) chi.Router {
	r := chi.NewRouter()

	if hub != nil {
		r.Get("/ws", hub.HandleWS)
	}

	r.Get("/simulation", s.GetSimulation)

	r.Get("/exchanges", s.ListExchanges)
	r.Post("/exchanges", s.CreateExchange)
	r.Delete("/exchanges/{exchangeID}", s.DeleteExchange)

	r.Get("/exchanges/{exchangeID}/assets", s.ListExchangeAssets)
	r.Post("/exchanges/{exchangeID}/assets", s.CreateAsset)
	r.Delete("/exchanges/{exchangeID}/assets/{assetName}", s.DeleteAsset)

	r.Get("/exchanges/{exchangeID}/indices", s.ListIndices)
	r.Post("/exchanges/{exchangeID}/indices", s.CreateIndex)
	r.Delete("/exchanges/{exchangeID}/indices/{indexName}", s.DeleteIndex)

	r.Get("/entities", s.ListEntities)
	r.Post("/entities", s.CreateEntity)
	r.Delete("/entities/{entityID}", s.DeleteEntity)

	r.Get("/assets", s.ListAssets)

	r.Get("/player", s.GetPlayer)
	r.Post("/player/buy", s.PlayerBuy)
	r.Post("/player/sell", s.PlayerSell)

	r.Get("/snapshots", s.ListSnapshots)
	r.Put("/snapshots/{snapshotName}", s.SaveSnapshot)
	r.Post("/snapshots/{snapshotName}/restore", s.RestoreSnapshot)
	r.Delete("/snapshots/{snapshotName}", s.DeleteSnapshot)

	return r
}

// --- View types ---

// AssetView is the wire representation of a tradable asset.
type AssetView struct {
	Name      string          `json:"name"`
	Kind      model.AssetKind `json:"kind"`
	Margin    decimal.Decimal `json:"margin"`
	Rate      decimal.Decimal `json:"rate"`
	MinRate   decimal.Decimal `json:"min_rate"`
	MaxRate   decimal.Decimal `json:"max_rate"`
	Available int64           `json:"available"` // -1: no supply limit
	IssuerID  string          `json:"issuer_id,omitempty"`
}

// ExchangeView is the wire representation of an exchange.
type ExchangeView struct {
	ID      string             `json:"id"`
	Kind    model.ExchangeKind `json:"kind"`
	City    string             `json:"city"`
	Country string             `json:"country"`
	Margin  decimal.Decimal    `json:"margin"`
	Assets  []AssetView        `json:"assets"`
}

// IndexView is the wire representation of a ranking index.
type IndexView struct {
	Name     string          `json:"name"`
	Kind     index.Kind      `json:"kind"`
	Capacity int             `json:"capacity"`
	Value    decimal.Decimal `json:"value"`
	Members  []string        `json:"members"`
}

// HoldingView is one briefcase entry.
type HoldingView struct {
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

// EntityView is the wire representation of a market participant.
type EntityView struct {
	ID       string           `json:"id"`
	Kind     model.EntityKind `json:"kind"`
	Name     string           `json:"name"`
	PESEL    string           `json:"pesel,omitempty"`
	Budget   decimal.Decimal  `json:"budget"`
	Issued   string           `json:"issued,omitempty"`
	Holdings []HoldingView    `json:"holdings"`
}

func viewAsset(a *model.Asset) AssetView {
	return AssetView{
		Name:      a.Name,
		Kind:      a.Kind,
		Margin:    a.Margin,
		Rate:      a.CurrentRate(),
		MinRate:   a.Track.Min(),
		MaxRate:   a.Track.Max(),
		Available: a.AvailableUnits(),
		IssuerID:  a.IssuerID,
	}
}

func viewExchange(x *model.Exchange) ExchangeView {
	v := ExchangeView{
		ID:      x.ID,
		Kind:    x.Kind,
		City:    x.City,
		Country: x.Country,
		Margin:  x.Margin,
		Assets:  []AssetView{},
	}
	for _, a := range x.Assets() {
		v.Assets = append(v.Assets, viewAsset(a))
	}
	return v
}

func viewIndex(ix *index.Index) IndexView {
	v := IndexView{
		Name:     ix.Name,
		Kind:     ix.Kind,
		Capacity: ix.Capacity,
		Value:    ix.Value(),
		Members:  []string{},
	}
	for _, m := range ix.Members() {
		v.Members = append(v.Members, m.Name)
	}
	return v
}

func viewEntity(e *model.Entity) EntityView {
	v := EntityView{
		ID:       e.ID,
		Kind:     e.Kind,
		Name:     e.Name,
		PESEL:    e.PESEL,
		Budget:   e.Budget(),
		Holdings: []HoldingView{},
	}
	if e.Issued != nil {
		v.Issued = e.Issued.Name
	}
	for _, h := range e.Briefcase.Holdings() {
		v.Holdings = append(v.Holdings, HoldingView{Asset: h.Asset.Name, Quantity: h.Quantity})
	}
	return v
}

// --- Simulation ---

// GetSimulation handles GET /api/v1/simulation
func (s *Service) GetSimulation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim().Snapshot())
}

// --- Exchanges ---

// CreateExchangeRequest is the JSON body for exchange creation.
type CreateExchangeRequest struct {
	Kind model.ExchangeKind `json:"kind"` // "stock", "currency", or "commodity"
}

// ListExchanges handles GET /api/v1/exchanges
func (s *Service) ListExchanges(w http.ResponseWriter, r *http.Request) {
	views := []ExchangeView{}
	for _, x := range s.Sim().Exchanges() {
		views = append(views, viewExchange(x))
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateExchange handles POST /api/v1/exchanges
func (s *Service) CreateExchange(w http.ResponseWriter, r *http.Request) {
	var req CreateExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	x, err := s.Sim().AddExchange(req.Kind)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, viewExchange(x))
}

// DeleteExchange handles DELETE /api/v1/exchanges/{exchangeID}
func (s *Service) DeleteExchange(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim().RemoveExchange(chi.URLParam(r, "exchangeID")); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Assets ---

// ListExchangeAssets handles GET /api/v1/exchanges/{exchangeID}/assets
func (s *Service) ListExchangeAssets(w http.ResponseWriter, r *http.Request) {
	x := s.Sim().Exchange(chi.URLParam(r, "exchangeID"))
	if x == nil {
		writeError(w, "exchange not found", http.StatusNotFound)
		return
	}
	views := []AssetView{}
	for _, a := range x.Assets() {
		views = append(views, viewAsset(a))
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateAsset handles POST /api/v1/exchanges/{exchangeID}/assets
// The asset kind follows the exchange; shares bring their issuing company
// to life as a side effect.
func (s *Service) CreateAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.Sim().AddAsset(chi.URLParam(r, "exchangeID"))
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, viewAsset(a))
}

// DeleteAsset handles DELETE /api/v1/exchanges/{exchangeID}/assets/{assetName}
func (s *Service) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	err := s.Sim().RemoveAsset(chi.URLParam(r, "exchangeID"), chi.URLParam(r, "assetName"))
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAssets handles GET /api/v1/assets
// Returns every tradable asset across exchanges and funds.
func (s *Service) ListAssets(w http.ResponseWriter, r *http.Request) {
	views := []AssetView{}
	for _, a := range s.Sim().TradableAssets() {
		views = append(views, viewAsset(a))
	}
	writeJSON(w, http.StatusOK, views)
}

// --- Indices ---

// CreateIndexRequest is the JSON body for index creation.
type CreateIndexRequest struct {
	Name     string     `json:"name"`
	Kind     index.Kind `json:"kind"` // "max" or "min"
	Capacity int        `json:"capacity"`
}

// ListIndices handles GET /api/v1/exchanges/{exchangeID}/indices
func (s *Service) ListIndices(w http.ResponseWriter, r *http.Request) {
	exchangeID := chi.URLParam(r, "exchangeID")
	if s.Sim().Exchange(exchangeID) == nil {
		writeError(w, "exchange not found", http.StatusNotFound)
		return
	}
	views := []IndexView{}
	for _, ix := range s.Sim().Indices(exchangeID) {
		views = append(views, viewIndex(ix))
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateIndex handles POST /api/v1/exchanges/{exchangeID}/indices
func (s *Service) CreateIndex(w http.ResponseWriter, r *http.Request) {
	var req CreateIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}

	ix, err := s.Sim().AddIndex(chi.URLParam(r, "exchangeID"), req.Name, req.Kind, req.Capacity)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, viewIndex(ix))
}

// DeleteIndex handles DELETE /api/v1/exchanges/{exchangeID}/indices/{indexName}
func (s *Service) DeleteIndex(w http.ResponseWriter, r *http.Request) {
	err := s.Sim().RemoveIndex(chi.URLParam(r, "exchangeID"), chi.URLParam(r, "indexName"))
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Entities ---

// CreateEntityRequest is the JSON body for entity creation. Companies
// cannot be created directly; they come to life with their share.
type CreateEntityRequest struct {
	Kind model.EntityKind `json:"kind"` // "investor" or "investment_fund"
}

// ListEntities handles GET /api/v1/entities
func (s *Service) ListEntities(w http.ResponseWriter, r *http.Request) {
	views := []EntityView{}
	for _, e := range s.Sim().Entities() {
		views = append(views, viewEntity(e))
	}
	writeJSON(w, http.StatusOK, views)
}

// CreateEntity handles POST /api/v1/entities
func (s *Service) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		e   *model.Entity
		err error
	)
	switch req.Kind {
	case model.EntityInvestor:
		e, err = s.Sim().AddInvestor()
	case model.EntityFund:
		e, err = s.Sim().AddFund()
	default:
		writeError(w, "kind must be investor or investment_fund", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, viewEntity(e))
}

// DeleteEntity handles DELETE /api/v1/entities/{entityID}
func (s *Service) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim().RemoveEntity(chi.URLParam(r, "entityID")); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Player ---

// PlayerTradeRequest is the JSON body for player buy and sell orders.
type PlayerTradeRequest struct {
	Asset    string `json:"asset"`
	Quantity int64  `json:"quantity"`
}

// PlayerTradeResponse reports an executed player trade.
type PlayerTradeResponse struct {
	Asset    string          `json:"asset"`
	Quantity int64           `json:"quantity"` // units actually traded
	Rate     decimal.Decimal `json:"rate"`     // rate after the trade
	Budget   decimal.Decimal `json:"budget"`
}

// GetPlayer handles GET /api/v1/player
func (s *Service) GetPlayer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewEntity(s.Sim().Player()))
}

// PlayerBuy handles POST /api/v1/player/buy
// A rejected order (not enough budget or units) returns 409.
func (s *Service) PlayerBuy(w http.ResponseWriter, r *http.Request) {
	s.playerTrade(w, r, func(o *sim.Orchestrator, req PlayerTradeRequest) (int64, error) {
		return o.PlayerBuy(req.Asset, req.Quantity)
	})
}

// PlayerSell handles POST /api/v1/player/sell
// Selling more than held is rejected with 409.
func (s *Service) PlayerSell(w http.ResponseWriter, r *http.Request) {
	s.playerTrade(w, r, func(o *sim.Orchestrator, req PlayerTradeRequest) (int64, error) {
		return o.PlayerSell(req.Asset, req.Quantity)
	})
}

func (s *Service) playerTrade(w http.ResponseWriter, r *http.Request, execute func(*sim.Orchestrator, PlayerTradeRequest) (int64, error)) {
	var req PlayerTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Asset == "" {
		writeError(w, "asset is required", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		writeError(w, "quantity must be positive", http.StatusBadRequest)
		return
	}

	o := s.Sim()
	traded, err := execute(o, req)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	a := o.Asset(req.Asset)
	resp := PlayerTradeResponse{
		Asset:    req.Asset,
		Quantity: traded,
		Budget:   o.Player().Budget(),
	}
	if a != nil {
		resp.Rate = a.CurrentRate()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Snapshots ---

// ListSnapshots handles GET /api/v1/snapshots
func (s *Service) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, "failed to list snapshots", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []store.SnapshotInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// SaveSnapshot handles PUT /api/v1/snapshots/{snapshotName}
// Captures the current simulation state under the given name.
func (s *Service) SaveSnapshot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "snapshotName")
	snap := s.Sim().Snapshot()
	if err := s.store.SaveSnapshot(r.Context(), name, snap); err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	slog.Info("snapshot saved", "name", name)
	writeJSON(w, http.StatusCreated, store.SnapshotInfo{Name: name, TakenAt: snap.TakenAt})
}

// RestoreSnapshot handles POST /api/v1/snapshots/{snapshotName}/restore
// Replaces the running simulation with one rebuilt from the snapshot.
// The previous simulation's workers are terminated.
func (s *Service) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.restore == nil {
		writeError(w, "restore is not configured", http.StatusServiceUnavailable)
		return
	}
	name := chi.URLParam(r, "snapshotName")

	snap, err := s.store.LoadSnapshot(r.Context(), name)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	restored, err := s.restore(snap)
	if err != nil {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	old := s.sim
	s.sim = restored
	s.mu.Unlock()
	old.Shutdown()

	slog.Info("snapshot restored", "name", name)
	writeJSON(w, http.StatusOK, restored.Snapshot())
}

// DeleteSnapshot handles DELETE /api/v1/snapshots/{snapshotName}
func (s *Service) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSnapshot(r.Context(), chi.URLParam(r, "snapshotName")); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- helpers ---

// errStatus maps domain errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, sim.ErrTradeRejected):
		return http.StatusConflict
	case errors.Is(err, sim.ErrUnknownExchange),
		errors.Is(err, sim.ErrUnknownAsset),
		errors.Is(err, sim.ErrUnknownEntity),
		errors.Is(err, sim.ErrUnknownIndex),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrKindMismatch),
		errors.Is(err, index.ErrInvalidCapacity),
		errors.Is(err, index.ErrInvalidKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
