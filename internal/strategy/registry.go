package strategy

import (
	"fmt"
	"sort"
	"time"

	"hl-mm-bot/internal/config"
)

// ParamSpec describes one tunable so a controlling surface can render a
// prompt or form without knowing the strategy.
type ParamSpec struct {
	Value       any    `json:"value"`
	Description string `json:"description"`
	Default     any    `json:"default"`
}

type Descriptor struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
}

const (
	NameSpotMM   = "spot_market_maker"
	NamePerpMM   = "perp_market_maker"
	NameCrossArb = "cross_exchange_arb"
)

func mmParamSpecs(isPerp bool) map[string]ParamSpec {
	specs := map[string]ParamSpec{
		"symbol":                    {Description: "Trading pair symbol", Default: ""},
		"bid_spread":                {Description: "Spread below mid price for buy orders (as a decimal)", Default: 0.0005},
		"ask_spread":                {Description: "Spread above mid price for sell orders (as a decimal)", Default: 0.0005},
		"order_amount":              {Description: "Size of each order", Default: 0.0},
		"refresh_time":              {Description: "Seconds between order refresh cycles", Default: 10},
		"order_max_age":             {Description: "Seconds before an unfilled order is cancelled and replaced", Default: 30},
		"price_deviation_threshold": {Description: "Relative drift from target price that forces replacement", Default: 0.002},
		"max_order_distance":        {Description: "Maximum relative distance from mid before replacement (0 disables)", Default: 0.0},
		"use_dynamic_spreads":       {Description: "Scale spreads by recent volatility", Default: false},
		"volatility_window":         {Description: "Number of mid-price samples in the volatility window", Default: 100},
	}
	if isPerp {
		specs["leverage"] = ParamSpec{Description: "Leverage for perpetual trading", Default: 1}
	}
	return specs
}

func arbParamSpecs() map[string]ParamSpec {
	return map[string]ParamSpec{
		"symbol":                  {Description: "Base trading pair symbol", Default: ""},
		"min_delta_percentage":    {Description: "Minimum fractional price delta to trigger arbitrage", Default: 0.001},
		"max_order_size":          {Description: "Maximum size per arbitrage trade", Default: 0.01},
		"max_inventory_imbalance": {Description: "Maximum allowed inventory imbalance between venues", Default: 0.03},
		"refresh_time":            {Description: "Seconds between arbitrage evaluations", Default: 1},
	}
}

var descriptors = map[string]Descriptor{
	NameSpotMM: {
		Name:        NameSpotMM,
		Description: "Places buy and sell orders around the mid price to earn the spread",
		Params:      mmParamSpecs(false),
	},
	NamePerpMM: {
		Name:        NamePerpMM,
		Description: "Market making on perpetual contracts with configurable leverage",
		Params:      mmParamSpecs(true),
	},
	NameCrossArb: {
		Name:        NameCrossArb,
		Description: "Executes on price differences between two venues",
		Params:      arbParamSpecs(),
	},
}

func ListStrategies() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func GetStrategyParams(name string) (map[string]ParamSpec, error) {
	d, ok := descriptors[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	out := make(map[string]ParamSpec, len(d.Params))
	for k, v := range d.Params {
		out[k] = v
	}
	return out, nil
}

// BuildStrategyParams applies a flat key→value mapping (JSON-compatible, as
// supplied by the controlling surface at start time) over the defaults of a
// named market-making strategy.
func BuildStrategyParams(name string, overrides map[string]any) (config.StrategyParams, error) {
	if _, ok := descriptors[name]; !ok {
		return config.StrategyParams{}, fmt.Errorf("unknown strategy %q", name)
	}
	if name == NameCrossArb {
		return config.StrategyParams{}, fmt.Errorf("strategy %q takes arbitrage params", name)
	}
	params := config.StrategyParams{Name: name, IsPerp: name == NamePerpMM}
	for key, raw := range overrides {
		if err := applyStrategyParam(&params, key, raw); err != nil {
			return config.StrategyParams{}, err
		}
	}
	config.ApplyStrategyDefaults(&params)
	return params, config.ValidateStrategy(&params)
}

func applyStrategyParam(p *config.StrategyParams, key string, raw any) error {
	switch key {
	case "symbol":
		return asString(key, raw, &p.Symbol)
	case "venue":
		return asString(key, raw, &p.Venue)
	case "bid_spread":
		return asFloat(key, raw, &p.BidSpread)
	case "ask_spread":
		return asFloat(key, raw, &p.AskSpread)
	case "order_amount":
		return asFloat(key, raw, &p.OrderAmount)
	case "refresh_time":
		return asSeconds(key, raw, &p.RefreshTime)
	case "order_max_age":
		return asSeconds(key, raw, &p.OrderMaxAge)
	case "price_deviation_threshold":
		return asFloat(key, raw, &p.PriceDeviationThreshold)
	case "max_order_distance":
		return asFloat(key, raw, &p.MaxOrderDistance)
	case "leverage":
		return asInt(key, raw, &p.Leverage)
	case "use_dynamic_spreads":
		return asBool(key, raw, &p.UseDynamicSpreads)
	case "volatility_window":
		return asInt(key, raw, &p.VolatilityWindow)
	case "tick_size":
		return asFloat(key, raw, &p.TickSize)
	default:
		return fmt.Errorf("unknown parameter %q", key)
	}
}

func asString(key string, raw any, dst *string) error {
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("parameter %q: expected string, got %T", key, raw)
	}
	*dst = s
	return nil
}

func asFloat(key string, raw any, dst *float64) error {
	switch v := raw.(type) {
	case float64:
		*dst = v
	case int:
		*dst = float64(v)
	default:
		return fmt.Errorf("parameter %q: expected number, got %T", key, raw)
	}
	return nil
}

func asInt(key string, raw any, dst *int) error {
	switch v := raw.(type) {
	case int:
		*dst = v
	case float64:
		*dst = int(v)
	default:
		return fmt.Errorf("parameter %q: expected integer, got %T", key, raw)
	}
	return nil
}

func asBool(key string, raw any, dst *bool) error {
	b, ok := raw.(bool)
	if !ok {
		return fmt.Errorf("parameter %q: expected bool, got %T", key, raw)
	}
	*dst = b
	return nil
}

func asSeconds(key string, raw any, dst *time.Duration) error {
	var secs float64
	if err := asFloat(key, raw, &secs); err != nil {
		return err
	}
	*dst = time.Duration(secs * float64(time.Second))
	return nil
}
