package delta

import (
	"math"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/market"
)

// Mapping ties one logical symbol to its spelling on each venue.
type Mapping struct {
	Symbol  string
	VenueA  string
	VenueB  string
	SymbolA string
	SymbolB string
}

func MappingFromParams(p config.ArbitrageParams) Mapping {
	m := Mapping{
		Symbol:  p.Symbol,
		VenueA:  p.VenueA,
		VenueB:  p.VenueB,
		SymbolA: p.SymbolA,
		SymbolB: p.SymbolB,
	}
	if m.SymbolA == "" {
		m.SymbolA = p.Symbol
	}
	if m.SymbolB == "" {
		m.SymbolB = p.Symbol
	}
	return m
}

// Opportunity is ephemeral: computed fresh each cycle, superseded by the
// next cycle's computation, never persisted.
type Opportunity struct {
	Symbol     string
	BuyVenue   string
	SellVenue  string
	BuySymbol  string
	SellSymbol string
	BuyPrice   float64
	SellPrice  float64
	Delta      float64
	Size       float64
	DetectedAt time.Time
}

// ExpectedProfit ignores fees; the threshold is expected to price those in.
func (o *Opportunity) ExpectedProfit() float64 {
	return (o.SellPrice - o.BuyPrice) * o.Size
}

// Evaluate compares the two venues' books in both directions and emits the
// better executable cross, if any. Delta is fractional: (sell-side bid minus
// buy-side ask) over the buy-side ask. sizeCap bounds the tradable size on
// top of max_order_size; zero or negative size suppresses the opportunity.
func Evaluate(a, b market.Snapshot, mapping Mapping, params config.ArbitrageParams, sizeCap float64) *Opportunity {
	if a.BestBid <= 0 || a.BestAsk <= 0 || b.BestBid <= 0 || b.BestAsk <= 0 {
		return nil
	}

	size := params.MaxOrderSize
	if sizeCap > 0 {
		size = math.Min(size, sizeCap)
	}
	if size <= 0 {
		return nil
	}

	// Buy on B, sell on A.
	deltaAB := (a.BestBid - b.BestAsk) / b.BestAsk
	// Buy on A, sell on B.
	deltaBA := (b.BestBid - a.BestAsk) / a.BestAsk

	best := deltaAB
	buyOnA := false
	if deltaBA > best {
		best = deltaBA
		buyOnA = true
	}
	if best < params.MinDeltaPercentage {
		return nil
	}

	opp := &Opportunity{
		Symbol:     mapping.Symbol,
		Delta:      best,
		Size:       size,
		DetectedAt: time.Now().UTC(),
	}
	if buyOnA {
		opp.BuyVenue, opp.BuySymbol, opp.BuyPrice = mapping.VenueA, mapping.SymbolA, a.BestAsk
		opp.SellVenue, opp.SellSymbol, opp.SellPrice = mapping.VenueB, mapping.SymbolB, b.BestBid
	} else {
		opp.BuyVenue, opp.BuySymbol, opp.BuyPrice = mapping.VenueB, mapping.SymbolB, b.BestAsk
		opp.SellVenue, opp.SellSymbol, opp.SellPrice = mapping.VenueA, mapping.SymbolA, a.BestBid
	}
	return opp
}
