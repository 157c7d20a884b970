package trade_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dominieq/market-stock/internal/model"
	"github.com/dominieq/market-stock/internal/rate"
	"github.com/dominieq/market-stock/internal/trade"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func commodity(name string, r float64) *model.Asset {
	return model.NewAsset(name, model.AssetCommodity, d(0.05), d(r), rate.DefaultConfig())
}

func share(name string, r float64, issuer string, units int64) *model.Asset {
	return model.NewIssuedAsset(name, model.AssetShare, d(0.05), d(r), rate.DefaultConfig(), issuer, units)
}

func investor(budget float64) *model.Entity {
	return model.NewEntity("e1", model.EntityInvestor, "Jan Kowalski", d(budget))
}

func TestBuy_BudgetConservation(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := commodity("Gold", 5)
	buyer := investor(100)

	bought := exec.Buy(asset, 20, d(5), buyer)
	if bought != 20 {
		t.Fatalf("expected 20 bought, got %d", bought)
	}
	// Budget decreases by exactly q*r.
	if !buyer.Budget().Equal(d(0)) {
		t.Errorf("expected budget 0, got %s", buyer.Budget())
	}
	if got := buyer.Briefcase.Quantity("Gold"); got != 20 {
		t.Errorf("expected 20 units held, got %d", got)
	}
	// Buying pressure raises the rate 5%.
	if !asset.CurrentRate().Equal(d(5.25)) {
		t.Errorf("expected rate 5.25, got %s", asset.CurrentRate())
	}
}

func TestBuy_SlippageReprices(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := commodity("Gold", 5)
	buyer := investor(1000)

	// A concurrent trade moved the rate to 4 after the buyer observed 5.
	asset.Track.Append(d(4))

	bought := exec.Buy(asset, 100, d(5), buyer)
	if bought != 125 {
		t.Fatalf("expected floor(100*5/4)=125, got %d", bought)
	}
	// Charged at the current rate, not the observed one.
	if !buyer.Budget().Equal(d(1000 - 125*4)) {
		t.Errorf("expected budget 500, got %s", buyer.Budget())
	}
}

func TestBuy_ClampedToAvailableUnits(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := share("Orbis", 2, "company-1", 7)
	buyer := investor(100)

	bought := exec.Buy(asset, 20, d(2), buyer)
	if bought != 7 {
		t.Fatalf("expected clamp to 7 available units, got %d", bought)
	}
	if asset.Available.Value() != 0 {
		t.Errorf("expected counter drained, got %d", asset.Available.Value())
	}
}

func TestBuy_InsufficientBudgetNoSideEffects(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := share("Orbis", 10, "company-1", 100)
	buyer := investor(5)

	if bought := exec.Buy(asset, 3, d(10), buyer); bought != 0 {
		t.Fatalf("expected rejection, got %d", bought)
	}
	if !buyer.Budget().Equal(d(5)) {
		t.Errorf("budget should be unchanged, got %s", buyer.Budget())
	}
	if asset.Available.Value() != 100 {
		t.Errorf("counter should be unchanged, got %d", asset.Available.Value())
	}
	if !asset.CurrentRate().Equal(d(10)) {
		t.Errorf("rate should be unchanged, got %s", asset.CurrentRate())
	}
	if !buyer.Briefcase.Empty() {
		t.Error("briefcase should stay empty")
	}
}

func TestBuy_ZeroRequested(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	if got := exec.Buy(commodity("Gold", 5), 0, d(5), investor(100)); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestBuy_WorthlessAssetRejected(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := commodity("Scrap", 1)
	asset.Track.Append(decimal.Zero)

	if got := exec.Buy(asset, 10, d(1), investor(100)); got != 0 {
		t.Errorf("expected rejection at zero rate, got %d", got)
	}
}

func TestSell_ProceedsWithMargin(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := commodity("Gold", 10) // margin 0.05
	seller := investor(0)
	seller.Briefcase.Add(asset, 4)

	sold := exec.Sell(asset, 4, seller)
	if sold != 4 {
		t.Fatalf("expected 4 sold, got %d", sold)
	}
	// Budget increases by exactly q*r*(1-m) = 4*10*0.95.
	if !seller.Budget().Equal(d(38)) {
		t.Errorf("expected budget 38, got %s", seller.Budget())
	}
	// Selling pressure lowers the rate 5%.
	if !asset.CurrentRate().Equal(d(9.5)) {
		t.Errorf("expected rate 9.5, got %s", asset.CurrentRate())
	}
	if !seller.Briefcase.Empty() {
		t.Error("holding should be removed after selling everything")
	}
}

func TestSell_InsufficientHoldingRejected(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := commodity("Gold", 10)
	seller := investor(0)
	seller.Briefcase.Add(asset, 3)

	if sold := exec.Sell(asset, 4, seller); sold != 0 {
		t.Fatalf("expected rejection, got %d", sold)
	}
	if !seller.Budget().Equal(d(0)) {
		t.Errorf("budget should be unchanged, got %s", seller.Budget())
	}
	if got := seller.Briefcase.Quantity("Gold"); got != 3 {
		t.Errorf("holding should be unchanged, got %d", got)
	}
	if !asset.CurrentRate().Equal(d(10)) {
		t.Errorf("rate should be unchanged, got %s", asset.CurrentRate())
	}
}

func TestSell_SharesReturnToIssuerCounter(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := share("Orbis", 2, "company-1", 10)
	seller := investor(0)
	seller.Briefcase.Add(asset, 6)

	if sold := exec.Sell(asset, 6, seller); sold != 6 {
		t.Fatalf("expected 6 sold, got %d", sold)
	}
	if asset.Available.Value() != 16 {
		t.Errorf("expected 16 units back in the pool, got %d", asset.Available.Value())
	}
}

func TestExecutor_OnExecutedHook(t *testing.T) {
	var notified []string
	exec := trade.NewExecutor(trade.DefaultConfig(), func(a *model.Asset) {
		notified = append(notified, a.Name)
	})

	asset := commodity("Gold", 5)
	buyer := investor(100)

	exec.Buy(asset, 2, d(5), buyer)
	exec.Sell(asset, 2, buyer)

	if len(notified) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(notified))
	}

	// Rejected trades do not notify.
	notified = notified[:0]
	exec.Sell(asset, 99, buyer)
	if len(notified) != 0 {
		t.Error("rejected trade should not notify")
	}
}

func TestBuyThenSell_RoundTrip(t *testing.T) {
	exec := trade.NewExecutor(trade.DefaultConfig(), nil)
	asset := share("Orbis", 4, "company-1", 1000)
	buyer := investor(100)

	bought := exec.Buy(asset, 25, d(4), buyer) // costs 100
	if bought != 25 {
		t.Fatalf("expected 25 bought, got %d", bought)
	}

	sold := exec.Sell(asset, 25, buyer)
	if sold != 25 {
		t.Fatalf("expected 25 sold, got %d", sold)
	}

	// Bought at 4, sold at 4.2 (post-impact) less 5% margin: 25*4.2*0.95.
	if !buyer.Budget().Equal(d(99.75)) {
		t.Errorf("expected budget 99.75, got %s", buyer.Budget())
	}
	if asset.Available.Value() != 1000 {
		t.Errorf("all units should be back, got %d", asset.Available.Value())
	}
}
