package depth

import (
	"math"

	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
)

// ROIVectorMarketDepth stores only the range of interest (ROI) in a flat
// slice instead of a map, trading unbounded tick coverage for the
// performance of array indexing. Ticks outside [roiLB, roiUB] are silently
// dropped from L2 updates and read back as NaN/zero, matching the
// range-of-interest trade-off described in spec §4.1.
type ROIVectorMarketDepth struct {
	tickSize float64
	lotSize  float64

	bidDepth []float64
	askDepth []float64

	bestBidTick int64
	bestAskTick int64
	lowBidTick  int64
	highAskTick int64

	roiLB int64
	roiUB int64

	orders map[uint64]L3Order
}

// NewROIVectorMarketDepth constructs a depth confined to [roiLBpx, roiUBpx].
func NewROIVectorMarketDepth(tickSize, lotSize, roiLBpx, roiUBpx float64) *ROIVectorMarketDepth {
	roiLB := priceTick(roiLBpx, tickSize)
	roiUB := priceTick(roiUBpx, tickSize)
	roiRange := int(roiUB + 1 - roiLB)
	return &ROIVectorMarketDepth{
		tickSize:    tickSize,
		lotSize:     lotSize,
		bidDepth:    make([]float64, roiRange),
		askDepth:    make([]float64, roiRange),
		bestBidTick: InvalidMin,
		bestAskTick: InvalidMax,
		lowBidTick:  InvalidMax,
		highAskTick: InvalidMin,
		roiLB:       roiLB,
		roiUB:       roiUB,
		orders:      make(map[uint64]L3Order),
	}
}

// ROI returns the range of interest in natural price units.
func (d *ROIVectorMarketDepth) ROI() (float64, float64) {
	return float64(d.roiLB) * d.tickSize, float64(d.roiUB) * d.tickSize
}

// ROITick returns the range of interest in ticks.
func (d *ROIVectorMarketDepth) ROITick() (int64, int64) { return d.roiLB, d.roiUB }

func (d *ROIVectorMarketDepth) inROI(tick int64) bool { return tick >= d.roiLB && tick <= d.roiUB }

func roiDepthBelow(depth []float64, start, end, roiLB, roiUB int64) int64 {
	s := int64min(start, roiUB) - roiLB
	e := int64max(end, roiLB) - roiLB
	for t := s - 1; t >= e; t-- {
		if depth[t] > 0 {
			return t + roiLB
		}
	}
	return InvalidMin
}

func roiDepthAbove(depth []float64, start, end, roiLB, roiUB int64) int64 {
	s := int64max(start, roiLB) - roiLB
	e := int64min(end, roiUB) - roiLB
	for t := s + 1; t <= e; t++ {
		if depth[t] > 0 {
			return t + roiLB
		}
	}
	return InvalidMax
}

func int64min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func int64max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func (d *ROIVectorMarketDepth) TickSize() float64 { return d.tickSize }
func (d *ROIVectorMarketDepth) LotSize() float64  { return d.lotSize }
func (d *ROIVectorMarketDepth) BestBidTick() int64 { return d.bestBidTick }
func (d *ROIVectorMarketDepth) BestAskTick() int64 { return d.bestAskTick }

func (d *ROIVectorMarketDepth) BestBid() float64 {
	if d.bestBidTick == InvalidMin {
		return math.NaN()
	}
	return float64(d.bestBidTick) * d.tickSize
}

func (d *ROIVectorMarketDepth) BestAsk() float64 {
	if d.bestAskTick == InvalidMax {
		return math.NaN()
	}
	return float64(d.bestAskTick) * d.tickSize
}

func (d *ROIVectorMarketDepth) BestBidQty() float64 {
	if !d.inROI(d.bestBidTick) {
		return 0
	}
	return d.bidDepth[d.bestBidTick-d.roiLB]
}

func (d *ROIVectorMarketDepth) BestAskQty() float64 {
	if !d.inROI(d.bestAskTick) {
		return math.NaN()
	}
	return d.askDepth[d.bestAskTick-d.roiLB]
}

func (d *ROIVectorMarketDepth) BidQtyAtTick(tick int64) float64 {
	if !d.inROI(tick) {
		return math.NaN()
	}
	return d.bidDepth[tick-d.roiLB]
}

func (d *ROIVectorMarketDepth) AskQtyAtTick(tick int64) float64 {
	if !d.inROI(tick) {
		return math.NaN()
	}
	return d.askDepth[tick-d.roiLB]
}

func (d *ROIVectorMarketDepth) UpdateBidDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	qtyLot := lots(qty, d.lotSize)
	prevBest := d.bestBidTick
	if !d.inROI(tick) {
		return tick, prevBest, d.bestBidTick, 0, qty, ts
	}
	idx := tick - d.roiLB
	prevQty := d.bidDepth[idx]
	d.bidDepth[idx] = qty

	if qtyLot == 0 {
		if tick == d.bestBidTick {
			d.bestBidTick = roiDepthBelow(d.bidDepth, d.bestBidTick, d.lowBidTick, d.roiLB, d.roiUB)
			if d.bestBidTick == InvalidMin {
				d.lowBidTick = InvalidMax
			}
		}
	} else {
		if tick > d.bestBidTick {
			d.bestBidTick = tick
			if d.bestBidTick >= d.bestAskTick {
				d.bestAskTick = roiDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick, d.roiLB, d.roiUB)
			}
		}
		d.lowBidTick = int64min(d.lowBidTick, tick)
	}
	return tick, prevBest, d.bestBidTick, prevQty, qty, ts
}

func (d *ROIVectorMarketDepth) UpdateAskDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	qtyLot := lots(qty, d.lotSize)
	prevBest := d.bestAskTick
	if !d.inROI(tick) {
		return tick, prevBest, d.bestAskTick, 0, qty, ts
	}
	idx := tick - d.roiLB
	prevQty := d.askDepth[idx]
	d.askDepth[idx] = qty

	if qtyLot == 0 {
		if tick == d.bestAskTick {
			d.bestAskTick = roiDepthAbove(d.askDepth, d.bestAskTick, d.highAskTick, d.roiLB, d.roiUB)
			if d.bestAskTick == InvalidMax {
				d.highAskTick = InvalidMin
			}
		}
	} else {
		if tick < d.bestAskTick {
			d.bestAskTick = tick
			if d.bestBidTick >= d.bestAskTick {
				d.bestBidTick = roiDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick, d.roiLB, d.roiUB)
			}
		}
		d.highAskTick = int64max(d.highAskTick, tick)
	}
	return tick, prevBest, d.bestAskTick, prevQty, qty, ts
}

func (d *ROIVectorMarketDepth) ClearDepth(side simtypes.Side, upToPx float64) {
	switch side {
	case simtypes.Buy:
		if !math.IsInf(upToPx, 0) && !math.IsNaN(upToPx) {
			clearUpto := priceTick(upToPx, d.tickSize)
			if d.bestBidTick != InvalidMin {
				from := int64max(clearUpto-d.roiLB, 0)
				to := d.bestBidTick + 1 - d.roiLB
				for t := from; t < to; t++ {
					d.bidDepth[t] = 0
				}
			}
			lowBidTick := d.lowBidTick
			if lowBidTick == InvalidMax {
				lowBidTick = d.roiLB
			}
			scanFrom := clearUpto - 1
			if scanFrom < d.roiLB {
				scanFrom = d.roiLB
			} else if scanFrom > d.roiUB {
				scanFrom = d.roiUB
			}
			d.bestBidTick = roiDepthBelow(d.bidDepth, scanFrom+1, lowBidTick, d.roiLB, d.roiUB)
		} else {
			for i := range d.bidDepth {
				d.bidDepth[i] = 0
			}
			d.bestBidTick = InvalidMin
		}
		if d.bestBidTick == InvalidMin {
			d.lowBidTick = InvalidMax
		}
	case simtypes.Sell:
		if !math.IsInf(upToPx, 0) && !math.IsNaN(upToPx) {
			clearUpto := priceTick(upToPx, d.tickSize)
			if d.bestAskTick != InvalidMax {
				from := d.bestAskTick - d.roiLB
				to := int64min(clearUpto+1-d.roiLB, int64(len(d.askDepth)))
				for t := from; t < to; t++ {
					d.askDepth[t] = 0
				}
			}
			highAskTick := d.highAskTick
			if highAskTick == InvalidMin {
				highAskTick = d.roiUB
			}
			scanFrom := clearUpto + 1
			if scanFrom < d.roiLB {
				scanFrom = d.roiLB
			} else if scanFrom > d.roiUB {
				scanFrom = d.roiUB
			}
			d.bestAskTick = roiDepthAbove(d.askDepth, scanFrom-1, highAskTick, d.roiLB, d.roiUB)
		} else {
			for i := range d.askDepth {
				d.askDepth[i] = 0
			}
			d.bestAskTick = InvalidMax
		}
		if d.bestAskTick == InvalidMax {
			d.highAskTick = InvalidMin
		}
	default:
		for i := range d.bidDepth {
			d.bidDepth[i] = 0
		}
		for i := range d.askDepth {
			d.askDepth[i] = 0
		}
		d.bestBidTick = InvalidMin
		d.bestAskTick = InvalidMax
		d.lowBidTick = InvalidMax
		d.highAskTick = InvalidMin
	}
}

func (d *ROIVectorMarketDepth) add(o L3Order) error {
	if _, exists := d.orders[o.OrderID]; exists {
		return simerr.ErrOrderIDExist
	}
	d.orders[o.OrderID] = o
	if !d.inROI(o.PriceTick) {
		return nil
	}
	idx := o.PriceTick - d.roiLB
	if o.Side == simtypes.Buy {
		d.bidDepth[idx] += o.Qty
	} else {
		d.askDepth[idx] += o.Qty
	}
	return nil
}

func (d *ROIVectorMarketDepth) AddBuyOrder(orderID uint64, px, qty float64, ts int64) (int64, int64, error) {
	tick := priceTick(px, d.tickSize)
	if err := d.add(L3Order{OrderID: orderID, Side: simtypes.Buy, PriceTick: tick, Qty: qty, Timestamp: ts}); err != nil {
		return 0, 0, err
	}
	prevBest := d.bestBidTick
	if d.inROI(tick) {
		if tick > d.bestBidTick {
			d.bestBidTick = tick
			if d.bestBidTick >= d.bestAskTick {
				d.bestAskTick = roiDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick, d.roiLB, d.roiUB)
			}
		}
		d.lowBidTick = int64min(d.lowBidTick, tick)
	}
	return prevBest, d.bestBidTick, nil
}

func (d *ROIVectorMarketDepth) AddSellOrder(orderID uint64, px, qty float64, ts int64) (int64, int64, error) {
	tick := priceTick(px, d.tickSize)
	if err := d.add(L3Order{OrderID: orderID, Side: simtypes.Sell, PriceTick: tick, Qty: qty, Timestamp: ts}); err != nil {
		return 0, 0, err
	}
	prevBest := d.bestAskTick
	if d.inROI(tick) {
		if tick < d.bestAskTick {
			d.bestAskTick = tick
			if d.bestBidTick >= d.bestAskTick {
				d.bestBidTick = roiDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick, d.roiLB, d.roiUB)
			}
		}
		d.highAskTick = int64max(d.highAskTick, tick)
	}
	return prevBest, d.bestAskTick, nil
}

func (d *ROIVectorMarketDepth) DeleteOrder(orderID uint64, _ int64) (simtypes.Side, int64, int64, error) {
	o, ok := d.orders[orderID]
	if !ok {
		return 0, 0, 0, simerr.ErrOrderNotFound
	}
	delete(d.orders, orderID)
	if !d.inROI(o.PriceTick) {
		if o.Side == simtypes.Buy {
			return simtypes.Buy, d.bestBidTick, d.bestBidTick, nil
		}
		return simtypes.Sell, d.bestAskTick, d.bestAskTick, nil
	}
	idx := o.PriceTick - d.roiLB
	if o.Side == simtypes.Buy {
		prevBest := d.bestBidTick
		d.bidDepth[idx] -= o.Qty
		if lots(d.bidDepth[idx], d.lotSize) == 0 {
			d.bidDepth[idx] = 0
			if o.PriceTick == d.bestBidTick {
				d.bestBidTick = roiDepthBelow(d.bidDepth, d.bestBidTick, d.lowBidTick, d.roiLB, d.roiUB)
				if d.bestBidTick == InvalidMin {
					d.lowBidTick = InvalidMax
				}
			}
		}
		return simtypes.Buy, prevBest, d.bestBidTick, nil
	}
	prevBest := d.bestAskTick
	d.askDepth[idx] -= o.Qty
	if lots(d.askDepth[idx], d.lotSize) == 0 {
		d.askDepth[idx] = 0
		if o.PriceTick == d.bestAskTick {
			d.bestAskTick = roiDepthAbove(d.askDepth, d.bestAskTick, d.highAskTick, d.roiLB, d.roiUB)
			if d.bestAskTick == InvalidMax {
				d.highAskTick = InvalidMin
			}
		}
	}
	return simtypes.Sell, prevBest, d.bestAskTick, nil
}

// ModifyOrder follows the same stricter in-place rule as HashMapMarketDepth:
// update in place only when price is unchanged and qty is non-increasing.
func (d *ROIVectorMarketDepth) ModifyOrder(orderID uint64, px, qty float64, ts int64) (simtypes.Side, int64, int64, error) {
	o, ok := d.orders[orderID]
	if !ok {
		return 0, 0, 0, simerr.ErrOrderNotFound
	}
	tick := priceTick(px, d.tickSize)
	if tick == o.PriceTick && qty <= o.Qty {
		if d.inROI(o.PriceTick) {
			idx := o.PriceTick - d.roiLB
			if o.Side == simtypes.Buy {
				d.bidDepth[idx] += qty - o.Qty
			} else {
				d.askDepth[idx] += qty - o.Qty
			}
		}
		o.Qty = qty
		o.Timestamp = ts
		d.orders[orderID] = o
		if o.Side == simtypes.Buy {
			return simtypes.Buy, d.bestBidTick, d.bestBidTick, nil
		}
		return simtypes.Sell, d.bestAskTick, d.bestAskTick, nil
	}

	side, prevBest, _, err := d.DeleteOrder(orderID, ts)
	if err != nil {
		return 0, 0, 0, err
	}
	var newBest int64
	if side == simtypes.Buy {
		_, newBest, err = d.AddBuyOrder(orderID, px, qty, ts)
	} else {
		_, newBest, err = d.AddSellOrder(orderID, px, qty, ts)
	}
	if err != nil {
		return 0, 0, 0, err
	}
	return side, prevBest, newBest, nil
}

func (d *ROIVectorMarketDepth) ClearOrders(side simtypes.Side) {
	switch side {
	case simtypes.Buy:
		d.ClearDepth(simtypes.Buy, math.Inf(-1))
		for id, o := range d.orders {
			if o.Side == simtypes.Buy {
				delete(d.orders, id)
			}
		}
	case simtypes.Sell:
		d.ClearDepth(simtypes.Sell, math.Inf(1))
		for id, o := range d.orders {
			if o.Side == simtypes.Sell {
				delete(d.orders, id)
			}
		}
	default:
		d.ClearDepth(0, math.NaN())
		d.orders = make(map[uint64]L3Order)
	}
}

func (d *ROIVectorMarketDepth) Orders() map[uint64]L3Order { return d.orders }

// ApplySnapshot resets the ROI window and replays DepthSnapshotEvent
// records falling inside it; events outside the ROI are dropped.
func (d *ROIVectorMarketDepth) ApplySnapshot(events []simtypes.Event) {
	d.bestBidTick = InvalidMin
	d.bestAskTick = InvalidMax
	d.lowBidTick = InvalidMax
	d.highAskTick = InvalidMin
	for i := range d.bidDepth {
		d.bidDepth[i] = 0
	}
	for i := range d.askDepth {
		d.askDepth[i] = 0
	}

	for _, ev := range events {
		if !ev.Flags.Has(simtypes.DepthSnapshotEvent) {
			continue
		}
		tick := priceTick(ev.Px, d.tickSize)
		if !d.inROI(tick) {
			continue
		}
		idx := tick - d.roiLB
		if ev.Flags.Has(simtypes.BuyFlag) {
			d.bestBidTick = int64max(d.bestBidTick, tick)
			d.lowBidTick = int64min(d.lowBidTick, tick)
			d.bidDepth[idx] = ev.Qty
		} else if ev.Flags.Has(simtypes.SellFlag) {
			d.bestAskTick = int64min(d.bestAskTick, tick)
			d.highAskTick = int64max(d.highAskTick, tick)
			d.askDepth[idx] = ev.Qty
		}
	}
}

// Snapshot is not implemented for the ROI-vector variant: it never sees
// ticks outside its range of interest, so it cannot serve as the source of
// truth for a full-book snapshot the way HashMapMarketDepth can.
func (d *ROIVectorMarketDepth) Snapshot() []simtypes.Event { return nil }
