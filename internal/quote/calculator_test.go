package quote

import (
	"errors"
	"math"
	"testing"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/market"
)

func baseParams() config.StrategyParams {
	return config.StrategyParams{
		Symbol:      "ETH/USDC",
		BidSpread:   0.0005,
		AskSpread:   0.0005,
		OrderAmount: 0.5,
		TickSize:    0.01,
	}
}

func TestComputeStaticSpreads(t *testing.T) {
	snap := market.Snapshot{
		Venue:    "hl",
		Symbol:   "ETH/USDC",
		MidPrice: 3256.75,
		BestBid:  3256.70,
		BestAsk:  3256.80,
	}
	quotes, err := Compute(snap, baseParams())
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if math.Abs(quotes.Bid-3255.12) > 1e-9 {
		t.Fatalf("bid = %v, want 3255.12", quotes.Bid)
	}
	if math.Abs(quotes.Ask-3258.38) > 1e-9 {
		t.Fatalf("ask = %v, want 3258.38", quotes.Ask)
	}
	if quotes.Size != 0.5 {
		t.Fatalf("size = %v, want 0.5", quotes.Size)
	}
	if quotes.SpreadFactor != 1 {
		t.Fatalf("spread factor = %v, want 1", quotes.SpreadFactor)
	}
}

func TestComputeRejectsInvalidSnapshot(t *testing.T) {
	cases := []market.Snapshot{
		{MidPrice: 0},
		{MidPrice: -1},
		{MidPrice: 100, BestBid: 100.5, BestAsk: 100.4},
	}
	for _, snap := range cases {
		if _, err := Compute(snap, baseParams()); !errors.Is(err, market.ErrInvalidSnapshot) {
			t.Fatalf("Compute(%+v) error = %v, want ErrInvalidSnapshot", snap, err)
		}
	}
}

func TestComputeBidNeverCrossesBook(t *testing.T) {
	params := baseParams()
	params.BidSpread = 0.00001
	params.AskSpread = 0.00001
	snap := market.Snapshot{
		MidPrice: 3256.75,
		BestBid:  3256.74,
		BestAsk:  3256.76,
	}
	quotes, err := Compute(snap, params)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	if quotes.Bid >= snap.BestAsk {
		t.Fatalf("bid %v crosses best ask %v", quotes.Bid, snap.BestAsk)
	}
	if quotes.Ask <= snap.BestBid {
		t.Fatalf("ask %v crosses best bid %v", quotes.Ask, snap.BestBid)
	}
	if quotes.Bid >= quotes.Ask {
		t.Fatalf("quotes crossed: bid %v ask %v", quotes.Bid, quotes.Ask)
	}
}

func TestSpreadFactorStaticByDefault(t *testing.T) {
	snap := market.Snapshot{MidPrice: 100, Samples: []float64{99, 100, 101}}
	if got := SpreadFactor(snap, baseParams()); got != 1 {
		t.Fatalf("SpreadFactor = %v, want 1 with dynamic spreads off", got)
	}
}

func TestSpreadFactorFallsBackBelowTwoSamples(t *testing.T) {
	params := baseParams()
	params.UseDynamicSpreads = true
	params.VolReference = 0.01
	params.MinSpreadFactor = 0.5
	params.MaxSpreadFactor = 3.0
	snap := market.Snapshot{MidPrice: 100, Samples: []float64{100}}
	if got := SpreadFactor(snap, params); got != 1 {
		t.Fatalf("SpreadFactor = %v, want 1 with a single sample", got)
	}
}

func TestSpreadFactorClamped(t *testing.T) {
	params := baseParams()
	params.UseDynamicSpreads = true
	params.VolReference = 0.01
	params.MinSpreadFactor = 0.5
	params.MaxSpreadFactor = 3.0

	// Flat market: zero deviation clamps to the floor.
	calm := market.Snapshot{MidPrice: 100, Samples: []float64{100, 100, 100}}
	if got := SpreadFactor(calm, params); got != 0.5 {
		t.Fatalf("calm SpreadFactor = %v, want 0.5", got)
	}

	// Wild market: relative stddev far above reference clamps to the cap.
	wild := market.Snapshot{MidPrice: 100, Samples: []float64{80, 120, 80, 120}}
	if got := SpreadFactor(wild, params); got != 3.0 {
		t.Fatalf("wild SpreadFactor = %v, want 3.0", got)
	}
}

func TestSpreadFactorMidRange(t *testing.T) {
	params := baseParams()
	params.UseDynamicSpreads = true
	params.VolReference = 0.008
	params.MinSpreadFactor = 0.5
	params.MaxSpreadFactor = 3.0
	// stddev of {99,101} is 1, so the relative deviation is 0.01.
	snap := market.Snapshot{MidPrice: 100, Samples: []float64{99, 101}}
	want := 0.01 / 0.008
	if got := SpreadFactor(snap, params); math.Abs(got-want) > 1e-12 {
		t.Fatalf("SpreadFactor = %v, want %v", got, want)
	}
}

func TestInferTick(t *testing.T) {
	cases := []struct {
		price float64
		want  float64
	}{
		{25000, 0.5},
		{3256.75, 0.1},
		{150, 0.01},
		{42, 0.001},
		{3.5, 0.0001},
		{0.42, 0.00001},
	}
	for _, tc := range cases {
		if got := InferTick(tc.price); got != tc.want {
			t.Fatalf("InferTick(%v) = %v, want %v", tc.price, got, tc.want)
		}
	}
}

func TestRoundToTick(t *testing.T) {
	cases := []struct {
		price, tick, want float64
	}{
		{3255.121625, 0.01, 3255.12},
		{3258.378375, 0.01, 3258.38},
		{100.26, 0.5, 100.5},
		{1.23456, 0, 1.23456},
	}
	for _, tc := range cases {
		if got := RoundToTick(tc.price, tc.tick); math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("RoundToTick(%v, %v) = %v, want %v", tc.price, tc.tick, got, tc.want)
		}
	}
}
