package market

import (
	"errors"
	"time"
)

var ErrInvalidSnapshot = errors.New("invalid market snapshot")

// Snapshot is a read-only view of the top of book for one symbol on one
// venue. Samples holds the most recent mid prices, oldest first, bounded by
// the provider's volatility window.
type Snapshot struct {
	Venue     string
	Symbol    string
	MidPrice  float64
	BestBid   float64
	BestAsk   float64
	Timestamp time.Time
	Samples   []float64
}

func (s Snapshot) Validate() error {
	if s.MidPrice <= 0 {
		return ErrInvalidSnapshot
	}
	if s.BestBid > 0 && s.BestAsk > 0 && s.BestBid >= s.BestAsk {
		return ErrInvalidSnapshot
	}
	return nil
}

func (s Snapshot) Age(now time.Time) time.Duration {
	if s.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(s.Timestamp)
}
