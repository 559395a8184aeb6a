package inventory

import (
	"math"
	"sync"
	"time"

	"hl-mm-bot/internal/venue"
)

// Holding is one venue/asset line: what the venue last confirmed, and what
// this engine has reserved against in-flight trades.
type Holding struct {
	Venue     string
	Asset     string
	Confirmed float64
	Reserved  float64
}

func (h Holding) Available() float64 {
	avail := h.Confirmed - h.Reserved
	if avail < 0 {
		return 0
	}
	return avail
}

// Snapshot is a point-in-time copy of every holding.
type Snapshot struct {
	Holdings  []Holding
	UpdatedAt map[string]time.Time
}

// Tracker maintains the split-inventory view for cross-exchange runs.
// Reserve and release are atomic with respect to concurrent opportunity
// evaluations; reserved amounts never exceed the last confirmed balance.
type Tracker struct {
	mu       sync.Mutex
	holdings map[string]map[string]Holding
	updated  map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		holdings: make(map[string]map[string]Holding),
		updated:  make(map[string]time.Time),
	}
}

// UpdateBalances replaces one venue's confirmed balances. Existing
// reservations survive the refresh.
func (t *Tracker) UpdateBalances(venueName string, balances map[string]venue.Balance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := make(map[string]Holding, len(balances))
	prev := t.holdings[venueName]
	for asset, bal := range balances {
		holding := Holding{Venue: venueName, Asset: asset, Confirmed: bal.Available + bal.InOrders}
		if existing, ok := prev[asset]; ok {
			holding.Reserved = existing.Reserved
		}
		next[asset] = holding
	}
	t.holdings[venueName] = next
	t.updated[venueName] = time.Now().UTC()
}

// CheckAndReserve reserves size of an asset when the available balance
// covers it. Returns false without side effects otherwise.
func (t *Tracker) CheckAndReserve(venueName, asset string, size float64) bool {
	if size <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserveLocked(venueName, asset, size)
}

// Leg names one side of a two-leg reservation.
type Leg struct {
	Venue string
	Asset string
	Size  float64
}

// ReservePair reserves both legs or neither. This is the gate in front of
// opportunity execution: no order is placed unless both reservations held.
func (t *Tracker) ReservePair(a, b Leg) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.reserveLocked(a.Venue, a.Asset, a.Size) {
		return false
	}
	if !t.reserveLocked(b.Venue, b.Asset, b.Size) {
		t.releaseLocked(a.Venue, a.Asset, a.Size)
		return false
	}
	return true
}

func (t *Tracker) Release(venueName, asset string, size float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releaseLocked(venueName, asset, size)
}

func (t *Tracker) reserveLocked(venueName, asset string, size float64) bool {
	assets, ok := t.holdings[venueName]
	if !ok {
		return false
	}
	holding, ok := assets[asset]
	if !ok || holding.Available() < size {
		return false
	}
	holding.Reserved += size
	assets[asset] = holding
	return true
}

func (t *Tracker) releaseLocked(venueName, asset string, size float64) {
	assets, ok := t.holdings[venueName]
	if !ok {
		return
	}
	holding, ok := assets[asset]
	if !ok {
		return
	}
	holding.Reserved -= size
	if holding.Reserved < 0 {
		holding.Reserved = 0
	}
	assets[asset] = holding
}

func (t *Tracker) Holding(venueName, asset string) (Holding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	assets, ok := t.holdings[venueName]
	if !ok {
		return Holding{}, false
	}
	holding, ok := assets[asset]
	return holding, ok
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	snap := Snapshot{UpdatedAt: make(map[string]time.Time, len(t.updated))}
	for venueName, ts := range t.updated {
		snap.UpdatedAt[venueName] = ts
	}
	for _, assets := range t.holdings {
		for _, holding := range assets {
			snap.Holdings = append(snap.Holdings, holding)
		}
	}
	return snap
}

func (t *Tracker) Fresh(venueName string, maxAge time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts, ok := t.updated[venueName]
	if !ok {
		return false
	}
	return time.Since(ts) <= maxAge
}

// BaseImbalance values the base asset held on each venue and returns the
// relative imbalance plus the venue holding less, which is the only side
// new inventory may be bought on while over the cap.
func (t *Tracker) BaseImbalance(venueA, venueB, asset string, priceA, priceB float64) (float64, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	valueA := t.valueLocked(venueA, asset, priceA)
	valueB := t.valueLocked(venueB, asset, priceB)
	total := valueA + valueB
	if total <= 0 {
		return 0, ""
	}
	imbalance := math.Abs(valueA-valueB) / total
	deficient := venueA
	if valueB < valueA {
		deficient = venueB
	}
	return imbalance, deficient
}

func (t *Tracker) valueLocked(venueName, asset string, price float64) float64 {
	assets, ok := t.holdings[venueName]
	if !ok {
		return 0
	}
	holding, ok := assets[asset]
	if !ok {
		return 0
	}
	return holding.Confirmed * price
}
