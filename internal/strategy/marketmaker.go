package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/history"
	"hl-mm-bot/internal/ledger"
	"hl-mm-bot/internal/market"
	"hl-mm-bot/internal/metrics"
	"hl-mm-bot/internal/quote"
	"hl-mm-bot/internal/refresh"
	"hl-mm-bot/internal/risk"
	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
)

// VenueExecutor is what a runner needs from the order executor.
type VenueExecutor interface {
	refresh.OrderExecutor
	CancelAll(ctx context.Context, symbol string) (int, error)
}

// MarketMaker quotes both sides of one book, replacing stale orders each
// cycle and requoting immediately after fills.
type MarketMaker struct {
	params     config.StrategyParams
	client     venue.Client
	exec       VenueExecutor
	controller *refresh.Controller
	book       *ledger.Ledger
	guard      *risk.Guard
	metrics    *metrics.Metrics
	hist       *history.Writer
	log        *zap.Logger
	ring       *market.SampleRing
	baseAsset  string
	quoteAsset string

	mu   sync.Mutex
	last RunMetrics
}

func NewMarketMaker(params config.StrategyParams, client venue.Client, ex VenueExecutor, book *ledger.Ledger, guard *risk.Guard, m *metrics.Metrics, hist *history.Writer, log *zap.Logger) *MarketMaker {
	if m == nil {
		m = metrics.NewNoop()
	}
	base, quoteAsset := splitSymbol(params.Symbol)
	return &MarketMaker{
		params:     params,
		client:     client,
		exec:       ex,
		controller: refresh.New(params, ex, client, book, guard, m, log),
		book:       book,
		guard:      guard,
		metrics:    m,
		hist:       hist,
		log:        log,
		ring:       market.NewSampleRing(params.VolatilityWindow),
		baseAsset:  base,
		quoteAsset: quoteAsset,
	}
}

func (m *MarketMaker) Name() string {
	return m.params.Name
}

func (m *MarketMaker) Interval() time.Duration {
	return m.params.RefreshTime
}

// Init starts the run from a clean book: leftover orders from a previous
// process are cancelled before the first quote goes out.
func (m *MarketMaker) Init(ctx context.Context) error {
	if m.params.IsPerp && m.params.Leverage > 1 {
		if setter, ok := m.client.(venue.LeverageSetter); ok {
			if err := setter.SetLeverage(ctx, m.params.Symbol, m.params.Leverage); err != nil {
				return fmt.Errorf("set leverage: %w", venue.Classify(err))
			}
			m.log.Info("leverage set", zap.Int("leverage", m.params.Leverage), zap.String("symbol", m.params.Symbol))
		}
	}
	count, err := m.exec.CancelAll(ctx, m.params.Symbol)
	if err != nil {
		return fmt.Errorf("cancel leftover orders: %w", venue.Classify(err))
	}
	if count > 0 {
		m.log.Info("cancelled leftover orders", zap.Int("count", count))
	}
	return nil
}

func (m *MarketMaker) Cycle(ctx context.Context) (bool, error) {
	snap, err := m.client.GetSnapshot(ctx, m.params.Symbol)
	if err != nil {
		return false, m.connectivity(venue.Classify(err))
	}
	m.ring.Push(snap.MidPrice)
	snap.Samples = m.ring.Values()

	quotes, err := quote.Compute(snap, m.params)
	if err != nil {
		if errors.Is(err, market.ErrInvalidSnapshot) {
			m.metrics.CyclesSkipped.Inc()
			m.log.Warn("skipping cycle on invalid snapshot", zap.Error(err))
			return false, nil
		}
		return false, err
	}

	targets := refresh.Targets{
		BidPrice: quotes.Bid,
		AskPrice: quotes.Ask,
		BuySize:  quotes.Size,
		SellSize: quotes.Size,
	}
	if !m.params.IsPerp {
		if err := m.capSizes(ctx, quotes, &targets); err != nil {
			return false, m.connectivity(err)
		}
	}

	res, err := m.controller.Reconcile(ctx, snap, targets)
	m.metrics.CyclesTotal.Inc()
	m.record(snap, quotes, res)
	if err != nil {
		return false, err
	}
	return res.Fills > 0, nil
}

// capSizes applies spot balance limits: the sell side never exceeds the
// base balance, the buy side is dropped when the quote balance cannot fund
// it.
func (m *MarketMaker) capSizes(ctx context.Context, quotes quote.Quotes, targets *refresh.Targets) error {
	balances, err := m.client.Balances(ctx)
	if err != nil {
		return venue.Classify(err)
	}
	if bal, ok := balances[m.quoteAsset]; ok {
		if bal.Available < targets.BuySize*quotes.Bid {
			targets.BuySize = 0
		}
	}
	baseBal := balances[m.baseAsset]
	if baseBal.Available < targets.SellSize {
		targets.SellSize = baseBal.Available
	}
	if targets.SellSize < m.params.MinOrderSize {
		targets.SellSize = 0
	}
	return nil
}

func (m *MarketMaker) connectivity(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, venue.ErrConnectivity) {
		if m.guard.RecordConnectivity() {
			return fmt.Errorf("%w: connectivity streak: %w", refresh.ErrEscalate, err)
		}
		m.metrics.CyclesSkipped.Inc()
		m.log.Warn("skipping cycle on connectivity error", zap.Error(err))
		return nil
	}
	return err
}

func (m *MarketMaker) record(snap market.Snapshot, quotes quote.Quotes, res refresh.Result) {
	_, hasBuy := m.book.Get(m.client.Name(), m.params.Symbol, venue.SideBuy)
	_, hasSell := m.book.Get(m.client.Name(), m.params.Symbol, venue.SideSell)
	now := time.Now().UTC()
	m.mu.Lock()
	m.last = RunMetrics{
		Venue:        m.client.Name(),
		Symbol:       m.params.Symbol,
		MidPrice:     snap.MidPrice,
		BidPrice:     quotes.Bid,
		AskPrice:     quotes.Ask,
		SpreadFactor: quotes.SpreadFactor,
		HasBuyOrder:  hasBuy,
		HasSellOrder: hasSell,
		LastRefresh:  now,
	}
	m.mu.Unlock()
	m.hist.EnqueueQuote(history.QuoteRow{
		Time:         now,
		Venue:        m.client.Name(),
		Symbol:       m.params.Symbol,
		MidPrice:     snap.MidPrice,
		BidPrice:     quotes.Bid,
		AskPrice:     quotes.Ask,
		SpreadFactor: quotes.SpreadFactor,
		HasBuyOrder:  hasBuy,
		HasSellOrder: hasSell,
		Fills:        res.Fills,
	})
}

func (m *MarketMaker) Teardown(ctx context.Context) error {
	return m.controller.CancelOwned(ctx)
}

func (m *MarketMaker) Snapshot() RunMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func splitSymbol(symbol string) (string, string) {
	base, quoteAsset, ok := strings.Cut(symbol, "/")
	if !ok {
		return symbol, "USDC"
	}
	return base, quoteAsset
}
