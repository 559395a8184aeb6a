package strategy

import (
	"context"
	"time"
)

// Runner is one strategy variant driven by the controller's refresh loop.
type Runner interface {
	Name() string
	Interval() time.Duration
	Init(ctx context.Context) error
	// Cycle runs one refresh cycle. requote asks the controller to run the
	// next cycle immediately instead of waiting out the timer.
	Cycle(ctx context.Context) (requote bool, err error)
	Teardown(ctx context.Context) error
	Snapshot() RunMetrics
}

// RunMetrics is the derived, read-only view a status query reports.
type RunMetrics struct {
	Venue        string
	Symbol       string
	MidPrice     float64
	BidPrice     float64
	AskPrice     float64
	SpreadFactor float64
	HasBuyOrder  bool
	HasSellOrder bool
	LastRefresh  time.Time
}
