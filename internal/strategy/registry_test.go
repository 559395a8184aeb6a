package strategy

import (
	"testing"
	"time"
)

func TestListStrategiesSorted(t *testing.T) {
	list := ListStrategies()
	if len(list) != 3 {
		t.Fatalf("strategies = %d, want 3", len(list))
	}
	want := []string{NameCrossArb, NamePerpMM, NameSpotMM}
	for i, d := range list {
		if d.Name != want[i] {
			t.Fatalf("strategy %d = %s, want %s", i, d.Name, want[i])
		}
	}
}

func TestGetStrategyParams(t *testing.T) {
	params, err := GetStrategyParams(NameSpotMM)
	if err != nil {
		t.Fatalf("GetStrategyParams: %v", err)
	}
	spread, ok := params["bid_spread"]
	if !ok {
		t.Fatal("bid_spread missing")
	}
	if spread.Default != 0.0005 {
		t.Fatalf("bid_spread default = %v, want 0.0005", spread.Default)
	}
	if spread.Description == "" {
		t.Fatal("bid_spread has no description")
	}
	if _, ok := params["leverage"]; ok {
		t.Fatal("spot strategy should not expose leverage")
	}

	perp, err := GetStrategyParams(NamePerpMM)
	if err != nil {
		t.Fatalf("GetStrategyParams perp: %v", err)
	}
	if _, ok := perp["leverage"]; !ok {
		t.Fatal("perp strategy should expose leverage")
	}

	if _, err := GetStrategyParams("nope"); err == nil {
		t.Fatal("unknown strategy accepted")
	}
}

func TestBuildStrategyParams(t *testing.T) {
	params, err := BuildStrategyParams(NameSpotMM, map[string]any{
		"symbol":       "HYPE/USDC",
		"order_amount": 0.5,
		"refresh_time": 5,
		"bid_spread":   0.001,
	})
	if err != nil {
		t.Fatalf("BuildStrategyParams: %v", err)
	}
	if params.Symbol != "HYPE/USDC" {
		t.Fatalf("symbol = %s", params.Symbol)
	}
	if params.RefreshTime != 5*time.Second {
		t.Fatalf("refresh time = %v, want 5s", params.RefreshTime)
	}
	if params.BidSpread != 0.001 {
		t.Fatalf("bid spread = %v, want 0.001", params.BidSpread)
	}
	// Defaults fill the rest.
	if params.AskSpread <= 0 {
		t.Fatalf("ask spread default missing: %v", params.AskSpread)
	}
	if params.IsPerp {
		t.Fatal("spot strategy marked perp")
	}
}

func TestBuildStrategyParamsPerpLeverage(t *testing.T) {
	params, err := BuildStrategyParams(NamePerpMM, map[string]any{
		"symbol":       "ETH",
		"order_amount": 0.1,
		"leverage":     5,
	})
	if err != nil {
		t.Fatalf("BuildStrategyParams: %v", err)
	}
	if !params.IsPerp || params.Leverage != 5 {
		t.Fatalf("perp params = isPerp %v leverage %d", params.IsPerp, params.Leverage)
	}
}

func TestBuildStrategyParamsRejections(t *testing.T) {
	if _, err := BuildStrategyParams("nope", nil); err == nil {
		t.Fatal("unknown strategy accepted")
	}
	if _, err := BuildStrategyParams(NameCrossArb, nil); err == nil {
		t.Fatal("arb strategy accepted by market-making builder")
	}
	if _, err := BuildStrategyParams(NameSpotMM, map[string]any{"bogus": 1}); err == nil {
		t.Fatal("unknown parameter accepted")
	}
	if _, err := BuildStrategyParams(NameSpotMM, map[string]any{"symbol": 7}); err == nil {
		t.Fatal("wrong type accepted")
	}
	// Missing order_amount fails validation.
	if _, err := BuildStrategyParams(NameSpotMM, map[string]any{"symbol": "ETH/USDC"}); err == nil {
		t.Fatal("unfunded params accepted")
	}
}
