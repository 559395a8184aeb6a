package strategy

import (
	"context"
	"testing"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/ledger"
	"hl-mm-bot/internal/market"
	"hl-mm-bot/internal/risk"
	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
)

func spotMMParams() config.StrategyParams {
	return config.StrategyParams{
		Name:         NameSpotMM,
		Venue:        "hl-main",
		Symbol:       "HYPE/USDC",
		BidSpread:    0.0005,
		AskSpread:    0.0005,
		OrderAmount:  1,
		RefreshTime:  time.Second,
		OrderMaxAge:  30 * time.Second,
		TickSize:     0.01,
		MinOrderSize: 0.1,
	}
}

type mmFixture struct {
	mm     *MarketMaker
	client *stubClient
	exec   *stubExec
	book   *ledger.Ledger
}

func newMMFixture(params config.StrategyParams) *mmFixture {
	client := &stubClient{
		name: "hl-main",
		snap: market.Snapshot{Venue: "hl-main", Symbol: "HYPE/USDC", MidPrice: 100, BestBid: 99.9, BestAsk: 100.1},
		balances: map[string]venue.Balance{
			"USDC": {Asset: "USDC", Available: 1000},
			"HYPE": {Asset: "HYPE", Available: 10},
		},
	}
	ex := &stubExec{venueName: "hl-main"}
	book := ledger.New()
	guard := risk.NewGuard(config.RiskConfig{
		MaxConsecutiveRejects: 5,
		MaxConnectivityErrors: 3,
		CancelTimeout:         time.Second,
	}, book, nil, zap.NewNop())
	mm := NewMarketMaker(params, client, ex, book, guard, nil, nil, zap.NewNop())
	return &mmFixture{mm: mm, client: client, exec: ex, book: book}
}

func TestMarketMakerCycleQuotesBothSides(t *testing.T) {
	f := newMMFixture(spotMMParams())

	requote, err := f.mm.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if requote {
		t.Fatal("first cycle has no fills, must not requote")
	}
	if len(f.exec.placed) != 2 {
		t.Fatalf("placements = %d, want 2", len(f.exec.placed))
	}
	buy, sell := f.exec.placed[0], f.exec.placed[1]
	if buy.Side != venue.SideBuy || sell.Side != venue.SideSell {
		t.Fatalf("side order = %s then %s, want buy then sell", buy.Side, sell.Side)
	}
	if buy.Price != 99.95 || sell.Price != 100.05 {
		t.Fatalf("prices = %v/%v, want 99.95/100.05", buy.Price, sell.Price)
	}
	if buy.Size != 1 || sell.Size != 1 {
		t.Fatalf("sizes = %v/%v, want 1/1", buy.Size, sell.Size)
	}

	rs := f.mm.Snapshot()
	if !rs.HasBuyOrder || !rs.HasSellOrder || rs.MidPrice != 100 {
		t.Fatalf("run metrics = %+v", rs)
	}
}

func TestMarketMakerSecondCycleKeepsFreshOrders(t *testing.T) {
	f := newMMFixture(spotMMParams())
	if _, err := f.mm.Cycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	// The venue still shows both orders open.
	for _, o := range f.book.All() {
		f.client.open = append(f.client.open, venue.OpenOrder{OrderID: o.OrderID, Symbol: o.Symbol, Side: o.Side, Price: o.Price, Size: o.Size})
	}

	if _, err := f.mm.Cycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if len(f.exec.placed) != 2 {
		t.Fatalf("fresh orders were replaced: %d placements", len(f.exec.placed))
	}
}

func TestMarketMakerFillTriggersRequote(t *testing.T) {
	f := newMMFixture(spotMMParams())
	if _, err := f.mm.Cycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	// Only the sell order is still open: the buy was filled.
	for _, o := range f.book.All() {
		if o.Side == venue.SideSell {
			f.client.open = append(f.client.open, venue.OpenOrder{OrderID: o.OrderID, Symbol: o.Symbol, Side: o.Side})
		}
	}

	requote, err := f.mm.Cycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if !requote {
		t.Fatal("a detected fill must requote immediately")
	}
}

func TestMarketMakerSpotBalanceCaps(t *testing.T) {
	f := newMMFixture(spotMMParams())
	// Quote balance cannot fund the buy, base balance is dust.
	f.client.balances = map[string]venue.Balance{
		"USDC": {Asset: "USDC", Available: 10},
		"HYPE": {Asset: "HYPE", Available: 0.05},
	}

	requote, err := f.mm.Cycle(context.Background())
	if err != nil || requote {
		t.Fatalf("Cycle = (%v, %v), want (false, nil)", requote, err)
	}
	if len(f.exec.placed) != 0 {
		t.Fatalf("placements = %d, want 0 with unfunded balances", len(f.exec.placed))
	}
}

func TestMarketMakerSellCappedByBaseBalance(t *testing.T) {
	f := newMMFixture(spotMMParams())
	f.client.balances["HYPE"] = venue.Balance{Asset: "HYPE", Available: 0.5}

	if _, err := f.mm.Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if len(f.exec.placed) != 2 {
		t.Fatalf("placements = %d, want 2", len(f.exec.placed))
	}
	if sell := f.exec.placed[1]; sell.Size != 0.5 {
		t.Fatalf("sell size = %v, want capped to 0.5", sell.Size)
	}
}

func TestMarketMakerInvalidSnapshotSkipsCycle(t *testing.T) {
	f := newMMFixture(spotMMParams())
	f.client.snap = market.Snapshot{Venue: "hl-main", Symbol: "HYPE/USDC", MidPrice: 0}

	requote, err := f.mm.Cycle(context.Background())
	if err != nil || requote {
		t.Fatalf("Cycle = (%v, %v), want skipped (false, nil)", requote, err)
	}
	if len(f.exec.placed) != 0 {
		t.Fatalf("placements on invalid snapshot: %d", len(f.exec.placed))
	}
}

func TestMarketMakerInitCancelsLeftovers(t *testing.T) {
	f := newMMFixture(spotMMParams())
	if err := f.mm.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if f.exec.cancelAlls != 1 {
		t.Fatalf("cancel-alls = %d, want 1", f.exec.cancelAlls)
	}
}
