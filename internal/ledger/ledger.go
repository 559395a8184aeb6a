package ledger

import (
	"sync"
	"time"

	"hl-mm-bot/internal/venue"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusResting    Status = "RESTING"
	StatusStale      Status = "STALE"
	StatusCancelling Status = "CANCELLING"
	StatusCancelled  Status = "CANCELLED"
	StatusFilled     Status = "FILLED"
	StatusRejected   Status = "REJECTED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusFilled, StatusRejected:
		return true
	}
	return false
}

// WorkingOrder is this engine's record of one of its own orders. OrderID is
// empty only while placement is in flight.
type WorkingOrder struct {
	OrderID  string
	Venue    string
	Symbol   string
	Side     venue.Side
	Price    float64
	Size     float64
	PlacedAt time.Time
	Status   Status
}

type key struct {
	venue  string
	symbol string
	side   venue.Side
}

// Ledger is the authoritative in-memory record of working orders. At most
// one order per venue/symbol/side is tracked; orders reaching a terminal
// status are removed rather than kept.
type Ledger struct {
	mu     sync.RWMutex
	orders map[key]WorkingOrder
}

func New() *Ledger {
	return &Ledger{orders: make(map[key]WorkingOrder)}
}

// Track records an order. Terminal statuses clear the slot instead.
func (l *Ledger) Track(order WorkingOrder) {
	k := key{order.Venue, order.Symbol, order.Side}
	l.mu.Lock()
	defer l.mu.Unlock()
	if order.Status.Terminal() {
		delete(l.orders, k)
		return
	}
	l.orders[k] = order
}

func (l *Ledger) Get(venueName, symbol string, side venue.Side) (WorkingOrder, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	order, ok := l.orders[key{venueName, symbol, side}]
	return order, ok
}

// Resolve transitions the tracked order for a slot to a terminal status,
// removing it. Returns the order that was cleared, if any.
func (l *Ledger) Resolve(venueName, symbol string, side venue.Side, status Status) (WorkingOrder, bool) {
	k := key{venueName, symbol, side}
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[k]
	if !ok {
		return WorkingOrder{}, false
	}
	order.Status = status
	delete(l.orders, k)
	return order, true
}

func (l *Ledger) MarkStatus(venueName, symbol string, side venue.Side, status Status) {
	k := key{venueName, symbol, side}
	l.mu.Lock()
	defer l.mu.Unlock()
	order, ok := l.orders[k]
	if !ok {
		return
	}
	if status.Terminal() {
		delete(l.orders, k)
		return
	}
	order.Status = status
	l.orders[k] = order
}

// All returns a copy of every tracked order.
func (l *Ledger) All() []WorkingOrder {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]WorkingOrder, 0, len(l.orders))
	for _, order := range l.orders {
		out = append(out, order)
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders = make(map[key]WorkingOrder)
}
