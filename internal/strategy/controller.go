package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-mm-bot/internal/alerts"
	"hl-mm-bot/internal/risk"
	"hl-mm-bot/internal/state"

	"go.uber.org/zap"
)

var ErrAlreadyRunning = errors.New("a strategy run is already active")

const teardownTimeout = 30 * time.Second

// RunState is a point-in-time copy of the controller's view of the run.
// Reading it never mutates anything.
type RunState struct {
	Status       RunStatus
	Strategy     string
	Venue        string
	Symbol       string
	MidPrice     float64
	BidPrice     float64
	AskPrice     float64
	SpreadFactor float64
	HasBuyOrder  bool
	HasSellOrder bool
	StartedAt    time.Time
	LastRefresh  time.Time
	FaultReason  string
	FaultAt      time.Time
}

// Controller owns the single active run. Start rejects a second concurrent
// run; Stop is idempotent; a guard trip faults the run from inside the
// loop.
type Controller struct {
	sm    *StateMachine
	guard *risk.Guard
	store state.Store
	tg    *alerts.Telegram
	log   *zap.Logger

	mu          sync.Mutex
	runner      Runner
	cancel      context.CancelFunc
	done        chan struct{}
	wake        chan struct{}
	startedAt   time.Time
	faultReason string
	faultAt     time.Time
}

func NewController(guard *risk.Guard, store state.Store, tg *alerts.Telegram, log *zap.Logger) *Controller {
	c := &Controller{
		sm:    NewStateMachine(),
		guard: guard,
		store: store,
		tg:    tg,
		log:   log,
	}
	if guard != nil {
		guard.OnTrip(c.fault)
	}
	return c
}

// Start brings up the runner and launches the refresh loop. The loop's
// context is detached from the caller's so an expired start request cannot
// kill a run that already came up.
func (c *Controller) Start(ctx context.Context, runner Runner) error {
	c.mu.Lock()
	switch c.sm.Status() {
	case StatusStarting, StatusRunning, StatusStopping:
		name := c.runner.Name()
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, name)
	}
	c.sm.Apply(EventStart)
	c.runner = runner
	c.faultReason = ""
	c.faultAt = time.Time{}
	c.startedAt = time.Now().UTC()
	c.wake = make(chan struct{}, 1)
	c.mu.Unlock()

	if c.guard != nil {
		c.guard.Rearm()
	}
	if err := runner.Init(ctx); err != nil {
		c.sm.Apply(EventFault)
		c.mu.Lock()
		c.faultReason = err.Error()
		c.faultAt = time.Now().UTC()
		c.mu.Unlock()
		c.persist(context.WithoutCancel(ctx))
		return fmt.Errorf("init %s: %w", runner.Name(), err)
	}
	// Stop (or a guard trip) may have landed while Init was in flight; the
	// loop must not launch once Stop has returned.
	c.mu.Lock()
	if c.sm.Status() != StatusStarting {
		c.mu.Unlock()
		tdCtx, tdCancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer tdCancel()
		if terr := runner.Teardown(tdCtx); terr != nil {
			c.log.Warn("teardown after aborted start failed", zap.Error(terr))
		}
		return fmt.Errorf("start %s aborted: run stopped during init", runner.Name())
	}
	c.sm.Apply(EventStarted)
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.log.Info("strategy started", zap.String("strategy", runner.Name()))
	c.tg.Notify("strategy %s started", runner.Name())
	go c.loop(loopCtx, runner, done)
	return nil
}

func (c *Controller) loop(ctx context.Context, runner Runner, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(runner.Interval())
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}
	for {
		requote, err := runner.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("cycle failed, tripping guard", zap.Error(err))
			if c.guard != nil {
				c.guard.Trip(ctx, err)
			} else {
				c.fault(err)
			}
			return
		}
		c.persist(ctx)
		if requote {
			continue
		}
		timer.Reset(runner.Interval())
		select {
		case <-ctx.Done():
			return
		case <-c.wakeChan():
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}
}

// Stop winds the run down and waits for the loop to exit before teardown so
// no cycle races the final cancels. Calling it with nothing running is a
// no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.sm.Status() {
	case StatusIdle, StatusStopped, StatusFaulted:
		c.mu.Unlock()
		return nil
	}
	c.sm.Apply(EventStop)
	runner := c.runner
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tdCtx, tdCancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer tdCancel()
	var err error
	if runner != nil {
		if err = runner.Teardown(tdCtx); err != nil {
			c.log.Warn("teardown failed", zap.Error(err))
		}
	}
	c.sm.Apply(EventStopped)
	c.persist(tdCtx)
	c.log.Info("strategy stopped", zap.String("strategy", runner.Name()))
	c.tg.Notify("strategy %s stopped", runner.Name())
	return err
}

// Status reads the current run without touching it.
func (c *Controller) Status() RunState {
	c.mu.Lock()
	runner := c.runner
	startedAt := c.startedAt
	faultReason := c.faultReason
	faultAt := c.faultAt
	c.mu.Unlock()

	rs := RunState{
		Status:      c.sm.Status(),
		StartedAt:   startedAt,
		FaultReason: faultReason,
		FaultAt:     faultAt,
	}
	if runner != nil {
		rs.Strategy = runner.Name()
		m := runner.Snapshot()
		rs.Venue = m.Venue
		rs.Symbol = m.Symbol
		rs.MidPrice = m.MidPrice
		rs.BidPrice = m.BidPrice
		rs.AskPrice = m.AskPrice
		rs.SpreadFactor = m.SpreadFactor
		rs.HasBuyOrder = m.HasBuyOrder
		rs.HasSellOrder = m.HasSellOrder
		rs.LastRefresh = m.LastRefresh
	}
	return rs
}

// Wake nudges the loop to requote immediately instead of waiting out the
// refresh timer.
func (c *Controller) Wake() {
	select {
	case c.wakeChan() <- struct{}{}:
	default:
	}
}

func (c *Controller) wakeChan() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wake == nil {
		c.wake = make(chan struct{}, 1)
	}
	return c.wake
}

// fault is the guard's trip callback: the run transitions to FAULTED and
// the loop context is cancelled. Cancel-all already happened inside the
// guard before this fires.
func (c *Controller) fault(cause error) {
	c.sm.Apply(EventFault)
	c.mu.Lock()
	c.faultReason = cause.Error()
	c.faultAt = time.Now().UTC()
	runner := c.runner
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	name := ""
	if runner != nil {
		name = runner.Name()
	}
	c.log.Error("strategy faulted", zap.String("strategy", name), zap.Error(cause))
	c.tg.Notify("strategy %s FAULTED: %v", name, cause)
	ctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	c.persist(ctx)
}

func (c *Controller) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	rs := c.Status()
	snap := state.RunSnapshot{
		Strategy:      rs.Strategy,
		Venue:         rs.Venue,
		Symbol:        rs.Symbol,
		Status:        string(rs.Status),
		MidPrice:      rs.MidPrice,
		BidPrice:      rs.BidPrice,
		AskPrice:      rs.AskPrice,
		HasBuyOrder:   rs.HasBuyOrder,
		HasSellOrder:  rs.HasSellOrder,
		FaultReason:   rs.FaultReason,
		LastRefreshMS: rs.LastRefresh.UnixMilli(),
		UpdatedAtMS:   time.Now().UnixMilli(),
	}
	if err := state.SaveRunSnapshot(ctx, c.store, snap); err != nil {
		c.log.Warn("persist run snapshot failed", zap.Error(err))
	}
}
