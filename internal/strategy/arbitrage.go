package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/delta"
	"hl-mm-bot/internal/history"
	"hl-mm-bot/internal/inventory"
	"hl-mm-bot/internal/market"
	"hl-mm-bot/internal/metrics"
	"hl-mm-bot/internal/refresh"
	"hl-mm-bot/internal/risk"
	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
)

// Arbitrageur watches one market on two venues and executes both legs of a
// cross when the bid on one side clears the ask on the other by the
// configured margin. Legs are never placed without a prior all-or-nothing
// inventory reservation for both.
type Arbitrageur struct {
	params     config.ArbitrageParams
	mapping    delta.Mapping
	clients    map[string]venue.Client
	execs      map[string]VenueExecutor
	tracker    *inventory.Tracker
	guard      *risk.Guard
	metrics    *metrics.Metrics
	hist       *history.Writer
	log        *zap.Logger
	baseAsset  string
	quoteAsset string

	mu   sync.Mutex
	last RunMetrics
}

func NewArbitrageur(params config.ArbitrageParams, clients map[string]venue.Client, execs map[string]VenueExecutor, tracker *inventory.Tracker, guard *risk.Guard, m *metrics.Metrics, hist *history.Writer, log *zap.Logger) *Arbitrageur {
	if m == nil {
		m = metrics.NewNoop()
	}
	if tracker == nil {
		tracker = inventory.NewTracker()
	}
	base, quoteAsset := splitSymbol(params.Symbol)
	return &Arbitrageur{
		params:     params,
		mapping:    delta.MappingFromParams(params),
		clients:    clients,
		execs:      execs,
		tracker:    tracker,
		guard:      guard,
		metrics:    m,
		hist:       hist,
		log:        log,
		baseAsset:  base,
		quoteAsset: quoteAsset,
	}
}

func (a *Arbitrageur) Name() string {
	return NameCrossArb
}

func (a *Arbitrageur) Interval() time.Duration {
	return a.params.RefreshTime
}

func (a *Arbitrageur) Init(ctx context.Context) error {
	for name, ex := range a.execs {
		symbol := a.mapping.SymbolA
		if name == a.mapping.VenueB {
			symbol = a.mapping.SymbolB
		}
		if _, err := ex.CancelAll(ctx, symbol); err != nil {
			return fmt.Errorf("cancel leftover orders on %s: %w", name, venue.Classify(err))
		}
	}
	return nil
}

func (a *Arbitrageur) Cycle(ctx context.Context) (bool, error) {
	snapA, err := a.clients[a.mapping.VenueA].GetSnapshot(ctx, a.mapping.SymbolA)
	if err != nil {
		return false, a.connectivity(venue.Classify(err))
	}
	snapB, err := a.clients[a.mapping.VenueB].GetSnapshot(ctx, a.mapping.SymbolB)
	if err != nil {
		return false, a.connectivity(venue.Classify(err))
	}
	if err := snapA.Validate(); err != nil {
		a.skip(err)
		return false, nil
	}
	if err := snapB.Validate(); err != nil {
		a.skip(err)
		return false, nil
	}
	if err := a.refreshBalances(ctx); err != nil {
		return false, a.connectivity(err)
	}

	opp := delta.Evaluate(snapA, snapB, a.mapping, a.params, 0)
	a.metrics.CyclesTotal.Inc()
	a.record(snapA, snapB, opp)
	if opp == nil {
		return false, nil
	}
	a.metrics.OpportunitiesFound.Inc()

	opp.Size = a.fundedSize(opp)
	if opp.Size <= 0 {
		a.blocked(opp, "insufficient inventory")
		return false, nil
	}
	if over, deficient := a.overImbalanceCap(snapA, snapB); over && opp.BuyVenue != deficient {
		a.blocked(opp, "inventory imbalance cap")
		return false, nil
	}

	buyLeg := inventory.Leg{Venue: opp.BuyVenue, Asset: a.quoteAsset, Size: opp.Size * opp.BuyPrice}
	sellLeg := inventory.Leg{Venue: opp.SellVenue, Asset: a.baseAsset, Size: opp.Size}
	if !a.tracker.ReservePair(buyLeg, sellLeg) {
		a.blocked(opp, "reservation failed")
		return false, nil
	}
	defer func() {
		a.tracker.Release(buyLeg.Venue, buyLeg.Asset, buyLeg.Size)
		a.tracker.Release(sellLeg.Venue, sellLeg.Asset, sellLeg.Size)
	}()

	placed, err := a.execute(ctx, opp)
	if err != nil {
		return false, err
	}
	if !placed {
		return false, nil
	}
	a.metrics.OpportunitiesExecuted.Inc()
	a.hist.EnqueueTrade(history.TradeRow{
		Time:      time.Now().UTC(),
		Symbol:    opp.Symbol,
		BuyVenue:  opp.BuyVenue,
		SellVenue: opp.SellVenue,
		BuyPrice:  opp.BuyPrice,
		SellPrice: opp.SellPrice,
		Size:      opp.Size,
		Delta:     opp.Delta,
	})
	a.log.Info("arbitrage executed",
		zap.String("buy_venue", opp.BuyVenue),
		zap.String("sell_venue", opp.SellVenue),
		zap.Float64("delta", opp.Delta),
		zap.Float64("size", opp.Size),
		zap.Float64("expected_profit", opp.ExpectedProfit()))
	return true, nil
}

// execute places the buy leg first, then the sell leg, and reports whether
// both legs actually went live. A tolerated buy-leg failure returns
// (false, nil): nothing was placed, nothing gets recorded. A sell-leg
// failure after the buy is live leaves directional exposure, so it
// escalates rather than attempting a rollback the venue may equally refuse.
func (a *Arbitrageur) execute(ctx context.Context, opp *delta.Opportunity) (bool, error) {
	if err := a.guard.Allow(); err != nil {
		return false, err
	}
	_, err := a.execs[opp.BuyVenue].PlaceOrder(ctx, venue.OrderRequest{
		Symbol: opp.BuySymbol,
		Side:   venue.SideBuy,
		Price:  opp.BuyPrice,
		Size:   opp.Size,
	})
	if err != nil {
		a.metrics.OpportunitiesBlocked.Inc()
		return false, a.legFailure("buy", opp.BuyVenue, err)
	}
	a.metrics.OrdersPlaced.Inc()

	_, err = a.execs[opp.SellVenue].PlaceOrder(ctx, venue.OrderRequest{
		Symbol: opp.SellSymbol,
		Side:   venue.SideSell,
		Price:  opp.SellPrice,
		Size:   opp.Size,
	})
	if err != nil {
		return false, fmt.Errorf("%w: sell leg on %s after buy leg placed: %w", refresh.ErrEscalate, opp.SellVenue, err)
	}
	a.metrics.OrdersPlaced.Inc()
	a.guard.RecordSuccess()
	return true, nil
}

// legFailure maps a first-leg error: nothing is live yet, so only balance
// exhaustion and rejection streaks escalate.
func (a *Arbitrageur) legFailure(leg, venueName string, err error) error {
	switch {
	case errors.Is(err, venue.ErrInsufficientBalance):
		return fmt.Errorf("%w: %s leg on %s: %w", refresh.ErrEscalate, leg, venueName, err)
	case errors.Is(err, venue.ErrOrderRejected):
		a.metrics.OrdersRejected.Inc()
		if a.guard.RecordRejection() {
			return fmt.Errorf("%w: rejection streak on %s: %w", refresh.ErrEscalate, venueName, err)
		}
		a.log.Warn("leg rejected", zap.String("leg", leg), zap.String("venue", venueName), zap.Error(err))
		return nil
	default:
		return a.connectivity(err)
	}
}

func (a *Arbitrageur) refreshBalances(ctx context.Context) error {
	for name, client := range a.clients {
		balances, err := client.Balances(ctx)
		if err != nil {
			return venue.Classify(err)
		}
		a.tracker.UpdateBalances(name, balances)
	}
	return nil
}

// fundedSize bounds the opportunity to what both legs can actually settle:
// base inventory on the sell venue and quote inventory on the buy venue.
func (a *Arbitrageur) fundedSize(opp *delta.Opportunity) float64 {
	size := opp.Size
	if holding, ok := a.tracker.Holding(opp.SellVenue, a.baseAsset); ok {
		size = min(size, holding.Available())
	} else {
		return 0
	}
	if holding, ok := a.tracker.Holding(opp.BuyVenue, a.quoteAsset); ok && opp.BuyPrice > 0 {
		size = min(size, holding.Available()/opp.BuyPrice)
	} else {
		return 0
	}
	return size
}

func (a *Arbitrageur) overImbalanceCap(snapA, snapB market.Snapshot) (bool, string) {
	if a.params.MaxInventoryImbalance <= 0 {
		return false, ""
	}
	imbalance, deficient := a.tracker.BaseImbalance(a.mapping.VenueA, a.mapping.VenueB, a.baseAsset, snapA.MidPrice, snapB.MidPrice)
	return imbalance > a.params.MaxInventoryImbalance, deficient
}

func (a *Arbitrageur) connectivity(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, venue.ErrConnectivity) {
		if a.guard.RecordConnectivity() {
			return fmt.Errorf("%w: connectivity streak: %w", refresh.ErrEscalate, err)
		}
		a.metrics.CyclesSkipped.Inc()
		a.log.Warn("skipping cycle on connectivity error", zap.Error(err))
		return nil
	}
	return err
}

func (a *Arbitrageur) skip(err error) {
	a.metrics.CyclesSkipped.Inc()
	a.log.Warn("skipping cycle on invalid snapshot", zap.Error(err))
}

func (a *Arbitrageur) blocked(opp *delta.Opportunity, reason string) {
	a.metrics.OpportunitiesBlocked.Inc()
	a.log.Info("opportunity blocked",
		zap.String("reason", reason),
		zap.String("buy_venue", opp.BuyVenue),
		zap.String("sell_venue", opp.SellVenue),
		zap.Float64("delta", opp.Delta))
}

func (a *Arbitrageur) record(snapA, snapB market.Snapshot, opp *delta.Opportunity) {
	last := RunMetrics{
		Venue:       a.mapping.VenueA + "+" + a.mapping.VenueB,
		Symbol:      a.params.Symbol,
		MidPrice:    snapA.MidPrice,
		LastRefresh: time.Now().UTC(),
	}
	if opp != nil {
		last.BidPrice = opp.BuyPrice
		last.AskPrice = opp.SellPrice
		last.SpreadFactor = opp.Delta
	}
	a.mu.Lock()
	a.last = last
	a.mu.Unlock()
}

func (a *Arbitrageur) Teardown(ctx context.Context) error {
	var errs []error
	for name, ex := range a.execs {
		symbol := a.mapping.SymbolA
		if name == a.mapping.VenueB {
			symbol = a.mapping.SymbolB
		}
		if _, err := ex.CancelAll(ctx, symbol); err != nil {
			errs = append(errs, fmt.Errorf("cancel all on %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (a *Arbitrageur) Snapshot() RunMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}
