package depth

import (
	"math"
	"testing"

	"github.com/hftsim/backtest/simtypes"
)

func TestHashMapEmptyBestIsNaN(t *testing.T) {
	d := NewHashMapMarketDepth(0.1, 0.001)
	if !math.IsNaN(d.BestBid()) || !math.IsNaN(d.BestAsk()) {
		t.Fatalf("expected NaN best prices on an empty book")
	}
}

func TestHashMapUpdateBidDepthTracksBest(t *testing.T) {
	d := NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 1.0, 1)
	d.UpdateBidDepth(100.5, 2.0, 2)

	if got := d.BestBid(); math.Abs(got-100.5) > 1e-9 {
		t.Fatalf("expected best bid 100.5, got %v", got)
	}
	if got := d.BestBidQty(); got != 2.0 {
		t.Fatalf("expected best bid qty 2.0, got %v", got)
	}
}

func TestHashMapBidAskCross(t *testing.T) {
	d := NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 1.0, 1)
	d.UpdateAskDepth(101.0, 1.0, 2)

	// A new bid crossing the best ask must retract the stale ask.
	d.UpdateBidDepth(101.0, 1.0, 3)
	if got := d.BestAsk(); !math.IsNaN(got) {
		t.Fatalf("expected best ask to clear after a crossing bid, got %v", got)
	}
}

func TestHashMapWithdrawingBestBidFallsBackToNextLevel(t *testing.T) {
	d := NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 1.0, 1)
	d.UpdateBidDepth(100.5, 1.0, 2)

	d.UpdateBidDepth(100.5, 0, 3) // withdraw the top level

	if got := d.BestBid(); math.Abs(got-100.0) > 1e-9 {
		t.Fatalf("expected best bid to fall back to 100.0, got %v", got)
	}
}

func TestHashMapClearDepth(t *testing.T) {
	d := NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 1.0, 1)
	d.UpdateBidDepth(99.0, 1.0, 2)

	d.ClearDepth(simtypes.Buy, math.NaN())

	if got := d.BestBidQty(); got != 0 {
		t.Fatalf("expected bid side cleared, got qty %v", got)
	}
}
