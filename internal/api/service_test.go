package api_test

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dominieq/market-stock/internal/api"
	"github.com/dominieq/market-stock/internal/generator"
	"github.com/dominieq/market-stock/internal/sim"
	"github.com/dominieq/market-stock/internal/store"
)

// newTestEnv creates a Service over a fresh simulation with hour-long
// worker sleeps (so autonomous trades never race the assertions) and an
// in-memory snapshot store.
func newTestEnv(t *testing.T) (*api.Service, chi.Router) {
	t.Helper()

	cfg := sim.DefaultConfig()
	cfg.Worker.MinSleep = time.Hour
	cfg.Worker.MaxSleep = time.Hour

	newSim := func(seed int64) (*generator.Generator, *rand.Rand) {
		rng := rand.New(rand.NewSource(seed))
		gen, err := generator.New(rng, generator.DefaultSources())
		if err != nil {
			t.Fatalf("generator.New: %v", err)
		}
		return gen, rng
	}

	gen, rng := newSim(42)
	o := sim.New(gen, rng, cfg, nil)
	t.Cleanup(o.Shutdown)

	restore := func(snap *sim.Snapshot) (*sim.Orchestrator, error) {
		g, r := newSim(43)
		return sim.Restore(g, r, cfg, nil, snap)
	}

	svc := api.NewService(o, store.NewMemoryStore(), restore)
	router := chi.NewRouter()
	router.Mount("/api/v1", svc.Router(nil))
	return svc, router
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return v
}

func createExchange(t *testing.T, router chi.Router, kind string) api.ExchangeView {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/exchanges", map[string]string{"kind": kind})
	if w.Code != http.StatusCreated {
		t.Fatalf("create exchange: %d: %s", w.Code, w.Body.String())
	}
	return decode[api.ExchangeView](t, w)
}

func createAsset(t *testing.T, router chi.Router, exchangeID string) api.AssetView {
	t.Helper()
	w := do(t, router, "POST", "/api/v1/exchanges/"+exchangeID+"/assets", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create asset: %d: %s", w.Code, w.Body.String())
	}
	return decode[api.AssetView](t, w)
}

func TestCreateExchange(t *testing.T) {
	_, router := newTestEnv(t)

	x := createExchange(t, router, "stock")
	if x.ID == "" || x.Kind != "stock" || x.City == "" {
		t.Errorf("incomplete exchange view: %+v", x)
	}

	w := do(t, router, "GET", "/api/v1/exchanges", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list exchanges: %d", w.Code)
	}
	if got := decode[[]api.ExchangeView](t, w); len(got) != 1 || got[0].ID != x.ID {
		t.Errorf("listed %+v, want the created exchange", got)
	}
}

func TestCreateExchange_BadKind(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/exchanges", map[string]string{"kind": "bazaar"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateAsset_ShareBringsCompany(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "stock")

	a := createAsset(t, router, x.ID)
	if a.Kind != "share" || a.IssuerID == "" {
		t.Fatalf("asset view %+v, want a share with an issuer", a)
	}

	w := do(t, router, "GET", "/api/v1/entities", nil)
	entities := decode[[]api.EntityView](t, w)
	if len(entities) != 1 || entities[0].Kind != "company" || entities[0].ID != a.IssuerID {
		t.Errorf("entities %+v, want exactly the issuing company", entities)
	}
}

func TestDeleteAsset(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "commodity")
	a := createAsset(t, router, x.ID)

	path := "/api/v1/exchanges/" + x.ID + "/assets/" + url.PathEscape(a.Name)
	if w := do(t, router, "DELETE", path, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete asset: %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, router, "DELETE", path, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: %d, want 404", w.Code)
	}

	w := do(t, router, "GET", "/api/v1/assets", nil)
	if got := decode[[]api.AssetView](t, w); len(got) != 0 {
		t.Errorf("tradable assets after delete: %+v, want none", got)
	}
}

func TestCreateIndex(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "stock")
	createAsset(t, router, x.ID)
	createAsset(t, router, x.ID)

	w := do(t, router, "POST", "/api/v1/exchanges/"+x.ID+"/indices",
		api.CreateIndexRequest{Name: "TOP1", Kind: "max", Capacity: 1})
	if w.Code != http.StatusCreated {
		t.Fatalf("create index: %d: %s", w.Code, w.Body.String())
	}
	ix := decode[api.IndexView](t, w)
	if len(ix.Members) != 1 {
		t.Errorf("index members = %v, want exactly one", ix.Members)
	}
	if !ix.Value.IsPositive() {
		t.Errorf("index value = %s, want positive", ix.Value)
	}
}

func TestCreateIndex_OnCurrencyExchange(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "currency")

	w := do(t, router, "POST", "/api/v1/exchanges/"+x.ID+"/indices",
		api.CreateIndexRequest{Name: "FX", Kind: "max", Capacity: 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateEntity_Investor(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/entities", map[string]string{"kind": "investor"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create investor: %d: %s", w.Code, w.Body.String())
	}
	e := decode[api.EntityView](t, w)
	if e.Kind != "investor" || len(e.PESEL) != 11 {
		t.Errorf("investor view %+v, want an 11-digit PESEL", e)
	}

	if w := do(t, router, "DELETE", "/api/v1/entities/"+e.ID, nil); w.Code != http.StatusNoContent {
		t.Errorf("delete investor: %d", w.Code)
	}
}

func TestCreateEntity_FundRegistersUnits(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/entities", map[string]string{"kind": "investment_fund"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create fund: %d: %s", w.Code, w.Body.String())
	}
	e := decode[api.EntityView](t, w)
	if e.Issued == "" {
		t.Fatal("fund view has no issued asset")
	}

	w = do(t, router, "GET", "/api/v1/assets", nil)
	assets := decode[[]api.AssetView](t, w)
	if len(assets) != 1 || assets[0].Name != e.Issued {
		t.Errorf("tradable assets %+v, want the fund unit %q", assets, e.Issued)
	}
}

func TestDeleteEntity_CompanyRejected(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "stock")
	a := createAsset(t, router, x.ID)

	w := do(t, router, "DELETE", "/api/v1/entities/"+a.IssuerID, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPlayerBuyAndSell(t *testing.T) {
	svc, router := newTestEnv(t)
	x := createExchange(t, router, "commodity")
	a := createAsset(t, router, x.ID)

	before := svc.Sim().Player().Budget()

	w := do(t, router, "POST", "/api/v1/player/buy",
		api.PlayerTradeRequest{Asset: a.Name, Quantity: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("player buy: %d: %s", w.Code, w.Body.String())
	}
	resp := decode[api.PlayerTradeResponse](t, w)
	if resp.Quantity != 2 {
		t.Errorf("bought %d, want 2", resp.Quantity)
	}
	if !resp.Budget.LessThan(before) {
		t.Errorf("budget %s did not decrease from %s", resp.Budget, before)
	}

	w = do(t, router, "POST", "/api/v1/player/sell",
		api.PlayerTradeRequest{Asset: a.Name, Quantity: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("player sell: %d: %s", w.Code, w.Body.String())
	}
	if resp := decode[api.PlayerTradeResponse](t, w); resp.Quantity != 2 {
		t.Errorf("sold %d, want 2", resp.Quantity)
	}

	w = do(t, router, "GET", "/api/v1/player", nil)
	if p := decode[api.EntityView](t, w); len(p.Holdings) != 0 {
		t.Errorf("player still holds %+v", p.Holdings)
	}
}

func TestPlayerSell_UnheldReturns409(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "commodity")
	a := createAsset(t, router, x.ID)

	w := do(t, router, "POST", "/api/v1/player/sell",
		api.PlayerTradeRequest{Asset: a.Name, Quantity: 1})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Errorf("expected an explanatory error body, got %q", w.Body.String())
	}
}

func TestPlayerBuy_UnknownAssetReturns404(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/player/buy",
		api.PlayerTradeRequest{Asset: "no such asset", Quantity: 1})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPlayerBuy_InvalidQuantity(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/player/buy",
		api.PlayerTradeRequest{Asset: "Gold", Quantity: 0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetSimulation(t *testing.T) {
	_, router := newTestEnv(t)
	x := createExchange(t, router, "stock")
	createAsset(t, router, x.ID)

	w := do(t, router, "GET", "/api/v1/simulation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get simulation: %d", w.Code)
	}
	snap := decode[sim.Snapshot](t, w)
	if len(snap.Exchanges) != 1 || len(snap.Exchanges[0].Assets) != 1 {
		t.Errorf("snapshot %+v, want one exchange with one asset", snap.Exchanges)
	}
	if snap.Player.ID == "" {
		t.Error("snapshot has no player")
	}
}

func TestSnapshotSaveAndRestore(t *testing.T) {
	svc, router := newTestEnv(t)
	x := createExchange(t, router, "commodity")
	a := createAsset(t, router, x.ID)

	if w := do(t, router, "POST", "/api/v1/player/buy",
		api.PlayerTradeRequest{Asset: a.Name, Quantity: 5}); w.Code != http.StatusOK {
		t.Fatalf("player buy: %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, router, "PUT", "/api/v1/snapshots/checkpoint", nil); w.Code != http.StatusCreated {
		t.Fatalf("save snapshot: %d: %s", w.Code, w.Body.String())
	}

	// Mutate past the checkpoint, then roll back.
	if w := do(t, router, "POST", "/api/v1/player/sell",
		api.PlayerTradeRequest{Asset: a.Name, Quantity: 5}); w.Code != http.StatusOK {
		t.Fatalf("player sell: %d: %s", w.Code, w.Body.String())
	}

	w := do(t, router, "POST", "/api/v1/snapshots/checkpoint/restore", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore snapshot: %d: %s", w.Code, w.Body.String())
	}
	defer svc.Sim().Shutdown()

	if q := svc.Sim().Player().Briefcase.Quantity(a.Name); q != 5 {
		t.Errorf("restored player holds %d units, want 5", q)
	}

	w = do(t, router, "GET", "/api/v1/snapshots", nil)
	if infos := decode[[]store.SnapshotInfo](t, w); len(infos) != 1 || infos[0].Name != "checkpoint" {
		t.Errorf("listed snapshots %+v, want just the checkpoint", infos)
	}
}

func TestRestoreSnapshot_Missing(t *testing.T) {
	_, router := newTestEnv(t)

	w := do(t, router, "POST", "/api/v1/snapshots/absent/restore", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}
