package quote

import (
	"fmt"
	"math"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/market"
)

// Quotes is one cycle's target prices and size for both sides.
type Quotes struct {
	Bid          float64
	Ask          float64
	Size         float64
	SpreadFactor float64
}

// Compute derives target quotes from a snapshot. Base prices offset the mid
// by the configured spreads; with dynamic spreads enabled the offsets are
// scaled by a clamped volatility factor. Prices are rounded to the tick and
// never cross the opposite side of the book.
func Compute(snap market.Snapshot, params config.StrategyParams) (Quotes, error) {
	if err := snap.Validate(); err != nil {
		return Quotes{}, fmt.Errorf("compute quotes for %s: %w", params.Symbol, err)
	}

	factor := SpreadFactor(snap, params)
	bid := snap.MidPrice * (1 - params.BidSpread*factor)
	ask := snap.MidPrice * (1 + params.AskSpread*factor)

	tick := params.TickSize
	if tick <= 0 {
		tick = InferTick(snap.MidPrice)
	}
	if snap.BestAsk > 0 {
		bid = math.Min(bid, snap.BestAsk-tick)
	}
	if snap.BestBid > 0 {
		ask = math.Max(ask, snap.BestBid+tick)
	}
	bid = RoundToTick(bid, tick)
	ask = RoundToTick(ask, tick)
	if bid <= 0 || ask <= 0 || bid >= ask {
		return Quotes{}, fmt.Errorf("quotes crossed for %s (bid %.8f ask %.8f): %w", params.Symbol, bid, ask, market.ErrInvalidSnapshot)
	}

	return Quotes{Bid: bid, Ask: ask, Size: params.OrderAmount, SpreadFactor: factor}, nil
}

// SpreadFactor returns 1 for static spreads. For dynamic spreads it is the
// relative standard deviation of recent mids normalized by the reference
// volatility, clamped to the configured range. Fewer than two samples fall
// back to static spreads.
func SpreadFactor(snap market.Snapshot, params config.StrategyParams) float64 {
	if !params.UseDynamicSpreads {
		return 1
	}
	if len(snap.Samples) < 2 {
		return 1
	}
	samples := snap.Samples
	if params.VolatilityWindow > 0 && len(samples) > params.VolatilityWindow {
		samples = samples[len(samples)-params.VolatilityWindow:]
	}
	relStd := market.StdDev(samples) / snap.MidPrice
	factor := relStd / params.VolReference
	return Clamp(factor, params.MinSpreadFactor, params.MaxSpreadFactor)
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// InferTick estimates a tick from price magnitude when the venue does not
// report one.
func InferTick(price float64) float64 {
	switch {
	case price >= 10000:
		return 0.5
	case price >= 1000:
		return 0.1
	case price >= 100:
		return 0.01
	case price >= 10:
		return 0.001
	case price >= 1:
		return 0.0001
	default:
		return 0.00001
	}
}

func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	rounded := math.Round(price/tick) * tick
	decimals := 0
	if tick < 1 {
		decimals = -int(math.Floor(math.Log10(tick)))
	}
	factor := math.Pow10(decimals)
	return math.Round(rounded*factor) / factor
}
