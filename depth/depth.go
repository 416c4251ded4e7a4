// Package depth implements the price-indexed bid/ask quantity stores used
// by the local and exchange processors: a hash-map variant, a fixed-range
// (ROI) vector variant, and a "fused" L1+L2 variant with per-tick
// staleness checks. All three satisfy MarketDepth; L3MarketDepth is
// implemented additionally where an order-level (market-by-order) feed is
// in play.
package depth

import (
	"math"

	"github.com/hftsim/backtest/simtypes"
)

// Sentinels denoting an empty side.
const (
	InvalidMin = math.MinInt64
	InvalidMax = math.MaxInt64
)

// L2MarketDepth is the aggregated price-level view of the book.
type L2MarketDepth interface {
	// UpdateBidDepth applies an L2 bid update and returns
	// (price_tick, prev_best_bid_tick, new_best_bid_tick, prev_qty, new_qty, ts).
	UpdateBidDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64)
	// UpdateAskDepth is the symmetric ask-side operation.
	UpdateAskDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64)
	// ClearDepth wipes one side up to and including upToPx, or both sides
	// when side is zero and upToPx is NaN.
	ClearDepth(side simtypes.Side, upToPx float64)
}

// MarketDepth is the common read surface shared by every depth variant.
type MarketDepth interface {
	L2MarketDepth

	BestBid() float64
	BestAsk() float64
	BestBidTick() int64
	BestAskTick() int64
	BestBidQty() float64
	BestAskQty() float64
	TickSize() float64
	LotSize() float64
	BidQtyAtTick(priceTick int64) float64
	AskQtyAtTick(priceTick int64) float64
}

// Snapshottable depths can replay and re-emit DepthSnapshotEvent records
// for durable reconstruction (spec §4.1 apply_snapshot/snapshot).
type Snapshottable interface {
	ApplySnapshot(events []simtypes.Event)
	Snapshot() []simtypes.Event
}

// L3Order is the per-order state an L3MarketDepth tracks for add/modify/
// delete/fill operations.
type L3Order struct {
	OrderID   uint64
	Side      simtypes.Side
	PriceTick int64
	Qty       float64
	Timestamp int64
}

// L3MarketDepth is implemented by depth variants that support order-level
// (market-by-order) feeds.
type L3MarketDepth interface {
	MarketDepth

	AddBuyOrder(orderID uint64, px, qty float64, ts int64) (prevBestTick, newBestTick int64, err error)
	AddSellOrder(orderID uint64, px, qty float64, ts int64) (prevBestTick, newBestTick int64, err error)
	DeleteOrder(orderID uint64, ts int64) (side simtypes.Side, prevBestTick, newBestTick int64, err error)
	ModifyOrder(orderID uint64, px, qty float64, ts int64) (side simtypes.Side, prevBestTick, newBestTick int64, err error)
	ClearOrders(side simtypes.Side)
	Orders() map[uint64]L3Order
}

func priceTick(px, tickSize float64) int64 {
	return int64(math.Round(px / tickSize))
}

func lots(qty, lotSize float64) int64 {
	return int64(math.Round(qty / lotSize))
}

// depthBelow scans (start-1) down to end inclusive for the nearest
// non-empty tick, returning InvalidMin if none is found.
func depthBelow(side map[int64]float64, start, end int64) int64 {
	for t := start - 1; t >= end; t-- {
		if side[t] > 0 {
			return t
		}
	}
	return InvalidMin
}

// depthAbove scans (start+1) up to end inclusive for the nearest non-empty
// tick, returning InvalidMax if none is found.
func depthAbove(side map[int64]float64, start, end int64) int64 {
	for t := start + 1; t <= end; t++ {
		if side[t] > 0 {
			return t
		}
	}
	return InvalidMax
}
