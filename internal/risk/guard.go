package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hl-mm-bot/internal/config"
	"hl-mm-bot/internal/ledger"
	"hl-mm-bot/internal/metrics"

	"go.uber.org/zap"
)

var ErrGuardTripped = errors.New("risk guard tripped")

// CancelAller is the slice of the executor the guard needs: the ability to
// flatten order exposure on one venue.
type CancelAller interface {
	Venue() string
	CancelAll(ctx context.Context, symbol string) (int, error)
}

// Guard is the cross-cutting fail-safe. Any trigger forces a cancel-all on
// every registered venue and latches the guard; no further placements are
// allowed until the operator starts a fresh run. The latch is one-way per
// run and never self-heals.
type Guard struct {
	cfg     config.RiskConfig
	log     *zap.Logger
	metrics *metrics.Metrics
	book    *ledger.Ledger

	mu         sync.Mutex
	executors  []CancelAller
	tripped    bool
	cause      error
	trippedAt  time.Time
	onTrip     func(cause error)
	rejectRun  int
	connectRun int
}

func NewGuard(cfg config.RiskConfig, book *ledger.Ledger, m *metrics.Metrics, log *zap.Logger) *Guard {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Guard{cfg: cfg, log: log, metrics: m, book: book}
}

func (g *Guard) Register(exec CancelAller) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.executors = append(g.executors, exec)
}

// OnTrip installs the controller's fault callback. Called at most once per
// latch.
func (g *Guard) OnTrip(fn func(cause error)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onTrip = fn
}

// Allow reports whether order placement is currently permitted.
func (g *Guard) Allow() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tripped {
		return fmt.Errorf("%w: %v", ErrGuardTripped, g.cause)
	}
	return nil
}

func (g *Guard) Tripped() (bool, error, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped, g.cause, g.trippedAt
}

// Rearm resets the latch and failure streaks for a fresh run. The operator
// owns this decision; the guard never rearms itself.
func (g *Guard) Rearm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tripped = false
	g.cause = nil
	g.trippedAt = time.Time{}
	g.rejectRun = 0
	g.connectRun = 0
}

// Trip performs the auto-cancel-all and latches the guard. Safe to call
// repeatedly and with an empty ledger; only the first call per latch does
// work.
func (g *Guard) Trip(ctx context.Context, cause error) {
	g.mu.Lock()
	if g.tripped {
		g.mu.Unlock()
		return
	}
	g.tripped = true
	g.cause = cause
	g.trippedAt = time.Now().UTC()
	executors := make([]CancelAller, len(g.executors))
	copy(executors, g.executors)
	onTrip := g.onTrip
	g.mu.Unlock()

	g.metrics.GuardTripped.Inc()
	g.log.Error("risk guard tripped, cancelling all orders", zap.Error(cause))

	cancelCtx := ctx
	if g.cfg.CancelTimeout > 0 {
		var cancel context.CancelFunc
		cancelCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), g.cfg.CancelTimeout)
		defer cancel()
	}
	total := 0
	for _, exec := range executors {
		count, err := exec.CancelAll(cancelCtx, "")
		if err != nil {
			g.log.Error("cancel-all failed during guard trip", zap.String("venue", exec.Venue()), zap.Error(err))
			continue
		}
		total += count
	}
	if g.book != nil {
		g.book.Clear()
	}
	g.log.Info("auto-cancel-all complete", zap.Int("cancelled", total))
	if onTrip != nil {
		onTrip(cause)
	}
}

// RecordRejection counts consecutive rejections and reports whether the
// streak has reached the escalation threshold.
func (g *Guard) RecordRejection() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectRun++
	return g.cfg.MaxConsecutiveRejects > 0 && g.rejectRun >= g.cfg.MaxConsecutiveRejects
}

// RecordConnectivity counts consecutive connectivity failures that survived
// local retry and reports whether to escalate.
func (g *Guard) RecordConnectivity() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connectRun++
	return g.cfg.MaxConnectivityErrors > 0 && g.connectRun >= g.cfg.MaxConnectivityErrors
}

// RecordSuccess clears both failure streaks.
func (g *Guard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rejectRun = 0
	g.connectRun = 0
}
