package inventory

import (
	"math"
	"testing"
	"time"

	"hl-mm-bot/internal/venue"
)

func seeded() *Tracker {
	tracker := NewTracker()
	tracker.UpdateBalances("hl-main", map[string]venue.Balance{
		"HYPE": {Asset: "HYPE", Available: 3, InOrders: 0},
		"USDC": {Asset: "USDC", Available: 500, InOrders: 0},
	})
	tracker.UpdateBalances("hl-alt", map[string]venue.Balance{
		"HYPE": {Asset: "HYPE", Available: 1, InOrders: 0},
		"USDC": {Asset: "USDC", Available: 200, InOrders: 0},
	})
	return tracker
}

func TestCheckAndReserveBounds(t *testing.T) {
	tracker := seeded()
	if !tracker.CheckAndReserve("hl-main", "HYPE", 2) {
		t.Fatal("reserve within balance refused")
	}
	if tracker.CheckAndReserve("hl-main", "HYPE", 2) {
		t.Fatal("reserve beyond available accepted")
	}
	holding, _ := tracker.Holding("hl-main", "HYPE")
	if holding.Available() != 1 {
		t.Fatalf("available = %v, want 1", holding.Available())
	}
	if tracker.CheckAndReserve("hl-main", "HYPE", 0) {
		t.Fatal("zero-size reserve accepted")
	}
	if tracker.CheckAndReserve("nowhere", "HYPE", 1) {
		t.Fatal("unknown venue reserve accepted")
	}
}

func TestReservationsSurviveBalanceRefresh(t *testing.T) {
	tracker := seeded()
	tracker.CheckAndReserve("hl-main", "HYPE", 2)
	tracker.UpdateBalances("hl-main", map[string]venue.Balance{
		"HYPE": {Asset: "HYPE", Available: 2.5, InOrders: 0.5},
	})
	holding, _ := tracker.Holding("hl-main", "HYPE")
	if holding.Confirmed != 3 {
		t.Fatalf("confirmed = %v, want 3", holding.Confirmed)
	}
	if holding.Reserved != 2 {
		t.Fatalf("reserved = %v, want 2 after refresh", holding.Reserved)
	}
}

func TestReservePairAllOrNothing(t *testing.T) {
	tracker := seeded()
	buy := Leg{Venue: "hl-main", Asset: "USDC", Size: 100}
	sell := Leg{Venue: "hl-alt", Asset: "HYPE", Size: 5} // exceeds the 1 held

	if tracker.ReservePair(buy, sell) {
		t.Fatal("pair reserved with an unfundable leg")
	}
	holding, _ := tracker.Holding("hl-main", "USDC")
	if holding.Reserved != 0 {
		t.Fatalf("first leg reservation leaked: %v", holding.Reserved)
	}

	sell.Size = 1
	if !tracker.ReservePair(buy, sell) {
		t.Fatal("fundable pair refused")
	}
	usdc, _ := tracker.Holding("hl-main", "USDC")
	hype, _ := tracker.Holding("hl-alt", "HYPE")
	if usdc.Reserved != 100 || hype.Reserved != 1 {
		t.Fatalf("reservations = %v / %v, want 100 / 1", usdc.Reserved, hype.Reserved)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	tracker := seeded()
	tracker.CheckAndReserve("hl-main", "HYPE", 1)
	tracker.Release("hl-main", "HYPE", 5)
	holding, _ := tracker.Holding("hl-main", "HYPE")
	if holding.Reserved != 0 {
		t.Fatalf("reserved = %v, want 0", holding.Reserved)
	}
	tracker.Release("nowhere", "HYPE", 1)
}

func TestBaseImbalance(t *testing.T) {
	tracker := seeded()
	imbalance, deficient := tracker.BaseImbalance("hl-main", "hl-alt", "HYPE", 100, 100)
	if math.Abs(imbalance-0.5) > 1e-12 {
		t.Fatalf("imbalance = %v, want 0.5", imbalance)
	}
	if deficient != "hl-alt" {
		t.Fatalf("deficient = %s, want hl-alt", deficient)
	}

	empty := NewTracker()
	imbalance, deficient = empty.BaseImbalance("a", "b", "HYPE", 100, 100)
	if imbalance != 0 || deficient != "" {
		t.Fatalf("empty tracker imbalance = %v %q, want 0 and empty venue", imbalance, deficient)
	}
}

func TestFresh(t *testing.T) {
	tracker := seeded()
	if !tracker.Fresh("hl-main", time.Minute) {
		t.Fatal("just-updated venue reported stale")
	}
	if tracker.Fresh("nowhere", time.Minute) {
		t.Fatal("unknown venue reported fresh")
	}
}

func TestSnapshotCopies(t *testing.T) {
	tracker := seeded()
	snap := tracker.Snapshot()
	if len(snap.Holdings) != 4 {
		t.Fatalf("holdings = %d, want 4", len(snap.Holdings))
	}
	if _, ok := snap.UpdatedAt["hl-main"]; !ok {
		t.Fatal("missing update timestamp for hl-main")
	}
}
