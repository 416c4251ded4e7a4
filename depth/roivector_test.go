package depth

import (
	"math"
	"testing"
)

func TestROIVectorOutsideRangeReadsAsNaN(t *testing.T) {
	d := NewROIVectorMarketDepth(0.1, 0.001, 90.0, 110.0)
	d.UpdateBidDepth(50.0, 5.0, 1) // below the ROI lower bound

	if qty := d.BidQtyAtTick(priceTick(50.0, 0.1)); !math.IsNaN(qty) {
		t.Fatalf("expected out-of-ROI reads to return NaN, got %v", qty)
	}
	if !math.IsNaN(d.BestBid()) {
		t.Fatalf("expected no best bid to form from an out-of-ROI update, got %v", d.BestBid())
	}
}

func TestROIVectorTracksBestWithinRange(t *testing.T) {
	d := NewROIVectorMarketDepth(0.1, 0.001, 90.0, 110.0)
	d.UpdateBidDepth(100.0, 2.0, 1)
	d.UpdateBidDepth(100.5, 1.0, 2)

	if d.BestBid() != 100.5 {
		t.Fatalf("expected best bid 100.5, got %v", d.BestBid())
	}
	if d.BestBidQty() != 1.0 {
		t.Fatalf("expected best bid qty 1.0, got %v", d.BestBidQty())
	}
}

func TestROIVectorWithdrawingBestFallsBackWithinROI(t *testing.T) {
	d := NewROIVectorMarketDepth(0.1, 0.001, 90.0, 110.0)
	d.UpdateBidDepth(100.0, 2.0, 1)
	d.UpdateBidDepth(100.5, 1.0, 2)

	d.UpdateBidDepth(100.5, 0.0, 3)

	if d.BestBid() != 100.0 {
		t.Fatalf("expected best bid to fall back to 100.0, got %v", d.BestBid())
	}
}
