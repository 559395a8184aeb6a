package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/ledger"
	"hl-mm-bot/internal/market"
	"hl-mm-bot/internal/metrics"
	"hl-mm-bot/internal/risk"
	"hl-mm-bot/internal/venue"

	"go.uber.org/zap"
)

// ErrEscalate tells the caller the guard's trigger conditions are met. The
// controller itself never trips the guard; the strategy loop owns that.
var ErrEscalate = errors.New("escalate to risk guard")

// OrderExecutor is the slice of the executor the controller drives.
type OrderExecutor interface {
	Venue() string
	PlaceOrder(ctx context.Context, req venue.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// OpenOrderLister reports which of our orders the venue still considers
// open, used to detect fills and external cancels.
type OpenOrderLister interface {
	OpenOrders(ctx context.Context, symbol string) ([]venue.OpenOrder, error)
}

// Targets is one cycle's desired quoting state. A zero size on a side means
// the side is not quoted this cycle.
type Targets struct {
	BidPrice float64
	AskPrice float64
	BuySize  float64
	SellSize float64
}

type Result struct {
	Placed   int
	Replaced int
	Fills    int
}

// Controller drives the per-side place/replace/cancel state machine. Buy
// side is always evaluated before sell side so cycles are deterministic.
type Controller struct {
	params  config.StrategyParams
	exec    OrderExecutor
	orders  OpenOrderLister
	book    *ledger.Ledger
	guard   *risk.Guard
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func New(params config.StrategyParams, exec OrderExecutor, orders OpenOrderLister, book *ledger.Ledger, guard *risk.Guard, m *metrics.Metrics, log *zap.Logger) *Controller {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Controller{
		params:  params,
		exec:    exec,
		orders:  orders,
		book:    book,
		guard:   guard,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// SetClock overrides the controller's clock. Tests only.
func (c *Controller) SetClock(now func() time.Time) {
	c.now = now
}

// SyncFills reconciles the ledger against the venue's open-order set. A
// tracked resting order missing from the set is treated as filled: the side
// is cleared and the caller requotes immediately.
func (c *Controller) SyncFills(ctx context.Context) (int, error) {
	buy, hasBuy := c.book.Get(c.exec.Venue(), c.params.Symbol, venue.SideBuy)
	sell, hasSell := c.book.Get(c.exec.Venue(), c.params.Symbol, venue.SideSell)
	if !hasBuy && !hasSell {
		return 0, nil
	}
	open, err := c.orders.OpenOrders(ctx, c.params.Symbol)
	if err != nil {
		return 0, venue.Classify(err)
	}
	openSet := make(map[string]struct{}, len(open))
	for _, o := range open {
		openSet[o.OrderID] = struct{}{}
	}
	fills := 0
	if hasBuy {
		if _, ok := openSet[buy.OrderID]; !ok {
			c.book.Resolve(c.exec.Venue(), c.params.Symbol, venue.SideBuy, ledger.StatusFilled)
			c.metrics.OrdersFilled.Inc()
			c.log.Info("buy order left the book", zap.String("order_id", buy.OrderID), zap.Float64("price", buy.Price))
			fills++
		}
	}
	if hasSell {
		if _, ok := openSet[sell.OrderID]; !ok {
			c.book.Resolve(c.exec.Venue(), c.params.Symbol, venue.SideSell, ledger.StatusFilled)
			c.metrics.OrdersFilled.Inc()
			c.log.Info("sell order left the book", zap.String("order_id", sell.OrderID), zap.Float64("price", sell.Price))
			fills++
		}
	}
	return fills, nil
}

// Reconcile runs one refresh cycle against the given snapshot and targets.
func (c *Controller) Reconcile(ctx context.Context, snap market.Snapshot, targets Targets) (Result, error) {
	var res Result
	fills, err := c.SyncFills(ctx)
	if err != nil {
		return res, c.recordFailure(err)
	}
	res.Fills = fills

	if err := c.reconcileSide(ctx, venue.SideBuy, targets.BidPrice, targets.BuySize, snap, &res); err != nil {
		return res, err
	}
	if err := c.reconcileSide(ctx, venue.SideSell, targets.AskPrice, targets.SellSize, snap, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (c *Controller) reconcileSide(ctx context.Context, side venue.Side, targetPrice, size float64, snap market.Snapshot, res *Result) error {
	if targetPrice <= 0 {
		return nil
	}
	order, exists := c.book.Get(c.exec.Venue(), c.params.Symbol, side)
	if exists {
		reason, stale := c.staleness(order, targetPrice, snap.MidPrice)
		if !stale {
			return nil
		}
		if err := c.replace(ctx, order, reason); err != nil {
			return err
		}
		res.Replaced++
		exists = false
	}
	if exists || size < c.params.MinOrderSize {
		return nil
	}
	if err := c.place(ctx, side, targetPrice, size); err != nil {
		return err
	}
	res.Placed++
	return nil
}

// staleness applies the two independent replacement tests: order age, and
// price deviation from target or distance from mid.
func (c *Controller) staleness(order ledger.WorkingOrder, targetPrice, mid float64) (string, bool) {
	if c.params.OrderMaxAge > 0 && c.now().Sub(order.PlacedAt) > c.params.OrderMaxAge {
		return "max age exceeded", true
	}
	if targetPrice > 0 && c.params.PriceDeviationThreshold > 0 {
		deviation := math.Abs(order.Price-targetPrice) / targetPrice
		if deviation > c.params.PriceDeviationThreshold {
			return "target deviation", true
		}
	}
	if mid > 0 && c.params.MaxOrderDistance > 0 {
		distance := math.Abs(order.Price-mid) / mid
		if distance > c.params.MaxOrderDistance {
			return "mid distance", true
		}
	}
	return "", false
}

// replace is cancel-then-place; the empty-side window between the two is
// accepted risk since the venue offers no replace-in-place primitive. The
// place half happens on the caller's next step through reconcileSide.
func (c *Controller) replace(ctx context.Context, order ledger.WorkingOrder, reason string) error {
	c.book.MarkStatus(order.Venue, order.Symbol, order.Side, ledger.StatusCancelling)
	if err := c.exec.CancelOrder(ctx, order.Symbol, order.OrderID); err != nil {
		err = venue.Classify(err)
		if errors.Is(err, venue.ErrConnectivity) {
			c.book.MarkStatus(order.Venue, order.Symbol, order.Side, ledger.StatusStale)
			return c.recordFailure(err)
		}
		// Cancel on an already-gone order: the open-order sync next cycle
		// settles which way it went.
		c.log.Warn("cancel returned an error, dropping order from ledger",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}
	c.book.Resolve(order.Venue, order.Symbol, order.Side, ledger.StatusCancelled)
	c.metrics.OrdersCancelled.Inc()
	c.log.Info("replaced stale order",
		zap.String("side", string(order.Side)),
		zap.String("reason", reason),
		zap.String("order_id", order.OrderID),
		zap.Float64("price", order.Price))
	return nil
}

func (c *Controller) place(ctx context.Context, side venue.Side, price, size float64) error {
	if c.guard != nil {
		if err := c.guard.Allow(); err != nil {
			return err
		}
	}
	orderID, err := c.exec.PlaceOrder(ctx, venue.OrderRequest{
		Symbol: c.params.Symbol,
		Side:   side,
		Price:  price,
		Size:   size,
	})
	if err != nil {
		err = venue.Classify(err)
		switch {
		case errors.Is(err, venue.ErrInsufficientBalance):
			return fmt.Errorf("%w: %w", ErrEscalate, err)
		case errors.Is(err, venue.ErrOrderRejected):
			c.metrics.OrdersRejected.Inc()
			if c.guard != nil && c.guard.RecordRejection() {
				return fmt.Errorf("%w: rejection streak: %w", ErrEscalate, err)
			}
			c.log.Warn("order rejected, will retry at recomputed price",
				zap.String("side", string(side)), zap.Error(err))
			return nil
		default:
			return c.recordFailure(err)
		}
	}
	c.book.Track(ledger.WorkingOrder{
		OrderID:  orderID,
		Venue:    c.exec.Venue(),
		Symbol:   c.params.Symbol,
		Side:     side,
		Price:    price,
		Size:     size,
		PlacedAt: c.now(),
		Status:   ledger.StatusResting,
	})
	c.metrics.OrdersPlaced.Inc()
	if c.guard != nil {
		c.guard.RecordSuccess()
	}
	c.log.Info("placed order",
		zap.String("side", string(side)),
		zap.Float64("price", price),
		zap.Float64("size", size),
		zap.String("order_id", orderID))
	return nil
}

func (c *Controller) recordFailure(err error) error {
	if errors.Is(err, venue.ErrConnectivity) && c.guard != nil && c.guard.RecordConnectivity() {
		return fmt.Errorf("%w: connectivity streak: %w", ErrEscalate, err)
	}
	return err
}

// CancelOwned cancels this controller's own tracked orders, buy before
// sell. Graceful teardown, not the guard's cancel-all.
func (c *Controller) CancelOwned(ctx context.Context) error {
	var firstErr error
	for _, side := range []venue.Side{venue.SideBuy, venue.SideSell} {
		order, ok := c.book.Get(c.exec.Venue(), c.params.Symbol, side)
		if !ok {
			continue
		}
		if err := c.exec.CancelOrder(ctx, order.Symbol, order.OrderID); err != nil {
			if firstErr == nil {
				firstErr = venue.Classify(err)
			}
			c.log.Warn("teardown cancel failed", zap.String("order_id", order.OrderID), zap.Error(err))
		}
		c.book.Resolve(order.Venue, order.Symbol, order.Side, ledger.StatusCancelled)
		c.metrics.OrdersCancelled.Inc()
	}
	return firstErr
}
