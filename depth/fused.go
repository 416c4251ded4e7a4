package depth

import (
	"math"

	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
)

type qtyTimestamp struct {
	qty float64
	ts  int64
}

// FusedMarketDepth coexists an L1 (top-of-book tick/quote) feed with an L2
// depth feed on the same book, which is useful when a venue publishes both
// and arrival order between them is not guaranteed. Every price level
// carries its own last-update timestamp so a best bid/ask recomputation
// never lets a stale update clobber a fresher one (spec §4.1, §6 scenario
// S6).
type FusedMarketDepth struct {
	tickSize float64
	lotSize  float64

	bidDepth map[int64]qtyTimestamp
	askDepth map[int64]qtyTimestamp

	bestBidTick      int64
	bestAskTick      int64
	bestBidTimestamp int64
	bestAskTimestamp int64
	lowBidTick       int64
	highAskTick      int64

	orders map[uint64]L3Order
}

// NewFusedMarketDepth constructs an empty fused depth for one asset.
func NewFusedMarketDepth(tickSize, lotSize float64) *FusedMarketDepth {
	return &FusedMarketDepth{
		tickSize:    tickSize,
		lotSize:     lotSize,
		bidDepth:    make(map[int64]qtyTimestamp),
		askDepth:    make(map[int64]qtyTimestamp),
		bestBidTick: InvalidMin,
		bestAskTick: InvalidMax,
		lowBidTick:  InvalidMax,
		highAskTick: InvalidMin,
		orders:      make(map[uint64]L3Order),
	}
}

func fusedDepthBelow(depth map[int64]qtyTimestamp, start, end int64) int64 {
	for t := start - 1; t >= end; t-- {
		if depth[t].qty > 0 {
			return t
		}
	}
	return InvalidMin
}

func fusedDepthAbove(depth map[int64]qtyTimestamp, start, end int64) int64 {
	for t := start + 1; t <= end; t++ {
		if depth[t].qty > 0 {
			return t
		}
	}
	return InvalidMax
}

func (d *FusedMarketDepth) TickSize() float64  { return d.tickSize }
func (d *FusedMarketDepth) LotSize() float64   { return d.lotSize }
func (d *FusedMarketDepth) BestBidTick() int64  { return d.bestBidTick }
func (d *FusedMarketDepth) BestAskTick() int64  { return d.bestAskTick }

func (d *FusedMarketDepth) BestBid() float64 {
	if d.bestBidTick == InvalidMin {
		return math.NaN()
	}
	return float64(d.bestBidTick) * d.tickSize
}

func (d *FusedMarketDepth) BestAsk() float64 {
	if d.bestAskTick == InvalidMax {
		return math.NaN()
	}
	return float64(d.bestAskTick) * d.tickSize
}

func (d *FusedMarketDepth) BestBidQty() float64 { return d.bidDepth[d.bestBidTick].qty }
func (d *FusedMarketDepth) BestAskQty() float64 { return d.askDepth[d.bestAskTick].qty }

func (d *FusedMarketDepth) BidQtyAtTick(tick int64) float64 { return d.bidDepth[tick].qty }
func (d *FusedMarketDepth) AskQtyAtTick(tick int64) float64 { return d.askDepth[tick].qty }

// UpdateBidDepth applies an L2 bid-side depth update, taking the per-tick
// timestamp into account so an out-of-order feed delivery cannot regress
// the recorded best bid.
func (d *FusedMarketDepth) UpdateBidDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	qtyLot := lots(qty, d.lotSize)
	prevBest := d.bestBidTick

	cur, existed := d.bidDepth[tick]
	var prevQty float64
	if existed {
		prevQty = cur.qty
		if ts > cur.ts {
			if qtyLot > 0 {
				d.bidDepth[tick] = qtyTimestamp{qty, ts}
			} else {
				delete(d.bidDepth, tick)
			}
		}
	} else {
		prevQty = 0
		if qtyLot > 0 {
			d.bidDepth[tick] = qtyTimestamp{qty, ts}
		}
	}

	if qtyLot == 0 {
		if tick == d.bestBidTick && ts >= d.bestBidTimestamp {
			d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestBidTick, d.lowBidTick)
			d.bestBidTimestamp = ts
			if d.bestBidTick == InvalidMin {
				d.lowBidTick = InvalidMax
			}
		}
	} else {
		if tick >= d.bestBidTick && ts >= d.bestBidTimestamp {
			d.bestBidTick = tick
			d.bestBidTimestamp = ts
			if d.bestBidTick >= d.bestAskTick {
				if ts >= d.bestAskTimestamp {
					d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
					d.bestAskTimestamp = ts
				} else {
					d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
					d.bestBidTimestamp = d.bestAskTimestamp
				}
			}
		}
		d.lowBidTick = int64min(d.lowBidTick, tick)
	}
	return tick, prevBest, d.bestBidTick, prevQty, qty, ts
}

// UpdateAskDepth is the ask-side mirror of UpdateBidDepth.
func (d *FusedMarketDepth) UpdateAskDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	qtyLot := lots(qty, d.lotSize)
	prevBest := d.bestAskTick

	cur, existed := d.askDepth[tick]
	var prevQty float64
	if existed {
		prevQty = cur.qty
		if ts > cur.ts {
			if qtyLot > 0 {
				d.askDepth[tick] = qtyTimestamp{qty, ts}
			} else {
				delete(d.askDepth, tick)
			}
		}
	} else {
		prevQty = 0
		if qtyLot > 0 {
			d.askDepth[tick] = qtyTimestamp{qty, ts}
		}
	}

	if qtyLot == 0 {
		if tick == d.bestAskTick && ts >= d.bestAskTimestamp {
			d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestAskTick, d.highAskTick)
			d.bestAskTimestamp = ts
			if d.bestAskTick == InvalidMax {
				d.highAskTick = InvalidMin
			}
		}
	} else {
		if tick <= d.bestAskTick && ts >= d.bestAskTimestamp {
			d.bestAskTick = tick
			d.bestAskTimestamp = ts
			if d.bestBidTick >= d.bestAskTick {
				if ts >= d.bestBidTimestamp {
					d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
					d.bestBidTimestamp = ts
				} else {
					d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
					d.bestAskTimestamp = d.bestBidTimestamp
				}
			}
		}
		d.highAskTick = int64max(d.highAskTick, tick)
	}
	return tick, prevBest, d.bestAskTick, prevQty, qty, ts
}

// UpdateBestBid applies an L1 top-of-book tick without touching the
// aggregated L2 map beyond the one tick it names.
func (d *FusedMarketDepth) UpdateBestBid(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	prevBest := d.bestBidTick
	cur, existed := d.bidDepth[tick]
	var prevQty float64
	if existed {
		prevQty = cur.qty
		if ts > cur.ts {
			d.bidDepth[tick] = qtyTimestamp{qty, ts}
		}
	} else {
		d.bidDepth[tick] = qtyTimestamp{qty, ts}
	}

	if ts >= d.bestBidTimestamp {
		d.bestBidTick = tick
		d.bestBidTimestamp = ts
		if d.bestBidTick >= d.bestAskTick {
			if ts >= d.bestAskTimestamp {
				d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
				d.bestAskTimestamp = ts
			} else {
				d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
				d.bestBidTimestamp = d.bestAskTimestamp
			}
		}
	}
	return tick, prevBest, d.bestBidTick, prevQty, qty, ts
}

// UpdateBestAsk is the ask-side mirror of UpdateBestBid.
func (d *FusedMarketDepth) UpdateBestAsk(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	prevBest := d.bestAskTick
	cur, existed := d.askDepth[tick]
	var prevQty float64
	if existed {
		prevQty = cur.qty
		if ts > cur.ts {
			d.askDepth[tick] = qtyTimestamp{qty, ts}
		}
	} else {
		d.askDepth[tick] = qtyTimestamp{qty, ts}
	}

	if ts >= d.bestAskTimestamp {
		d.bestAskTick = tick
		d.bestAskTimestamp = ts
		if d.bestBidTick >= d.bestAskTick {
			if ts >= d.bestBidTimestamp {
				d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
				d.bestBidTimestamp = ts
			} else {
				d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
				d.bestAskTimestamp = d.bestBidTimestamp
			}
		}
	}
	return tick, prevBest, d.bestAskTick, prevQty, qty, ts
}

func (d *FusedMarketDepth) ClearDepth(side simtypes.Side, upToPx float64) {
	switch side {
	case simtypes.Buy:
		clearUpto := priceTick(upToPx, d.tickSize)
		if d.bestBidTick != InvalidMin {
			for t := clearUpto; t <= d.bestBidTick; t++ {
				delete(d.bidDepth, t)
			}
		}
		d.bestBidTick = fusedDepthBelow(d.bidDepth, clearUpto, d.lowBidTick)
		if d.bestBidTick == InvalidMin {
			d.lowBidTick = InvalidMax
		}
	case simtypes.Sell:
		clearUpto := priceTick(upToPx, d.tickSize)
		if d.bestAskTick != InvalidMax {
			for t := d.bestAskTick; t <= clearUpto; t++ {
				delete(d.askDepth, t)
			}
		}
		d.bestAskTick = fusedDepthAbove(d.askDepth, clearUpto, d.highAskTick)
		if d.bestAskTick == InvalidMax {
			d.highAskTick = InvalidMin
		}
	default:
		d.bidDepth = make(map[int64]qtyTimestamp)
		d.askDepth = make(map[int64]qtyTimestamp)
		d.bestBidTick = InvalidMin
		d.bestAskTick = InvalidMax
		d.lowBidTick = InvalidMax
		d.highAskTick = InvalidMin
	}
}

func (d *FusedMarketDepth) add(o L3Order) error {
	if _, exists := d.orders[o.OrderID]; exists {
		return simerr.ErrOrderIDExist
	}
	d.orders[o.OrderID] = o
	if o.Side == simtypes.Buy {
		cur := d.bidDepth[o.PriceTick]
		cur.qty += o.Qty
		d.bidDepth[o.PriceTick] = cur
	} else {
		cur := d.askDepth[o.PriceTick]
		cur.qty += o.Qty
		d.askDepth[o.PriceTick] = cur
	}
	return nil
}

func (d *FusedMarketDepth) AddBuyOrder(orderID uint64, px, qty float64, ts int64) (int64, int64, error) {
	tick := priceTick(px, d.tickSize)
	if err := d.add(L3Order{OrderID: orderID, Side: simtypes.Buy, PriceTick: tick, Qty: qty, Timestamp: ts}); err != nil {
		return 0, 0, err
	}
	prevBest := d.bestBidTick
	if tick > d.bestBidTick {
		d.bestBidTick = tick
		if d.bestBidTick >= d.bestAskTick {
			d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
		}
	}
	d.lowBidTick = int64min(d.lowBidTick, tick)
	return prevBest, d.bestBidTick, nil
}

func (d *FusedMarketDepth) AddSellOrder(orderID uint64, px, qty float64, ts int64) (int64, int64, error) {
	tick := priceTick(px, d.tickSize)
	if err := d.add(L3Order{OrderID: orderID, Side: simtypes.Sell, PriceTick: tick, Qty: qty, Timestamp: ts}); err != nil {
		return 0, 0, err
	}
	prevBest := d.bestAskTick
	if tick < d.bestAskTick {
		d.bestAskTick = tick
		if d.bestBidTick >= d.bestAskTick {
			d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
		}
	}
	d.highAskTick = int64max(d.highAskTick, tick)
	return prevBest, d.bestAskTick, nil
}

func (d *FusedMarketDepth) DeleteOrder(orderID uint64, _ int64) (simtypes.Side, int64, int64, error) {
	o, ok := d.orders[orderID]
	if !ok {
		return 0, 0, 0, simerr.ErrOrderNotFound
	}
	delete(d.orders, orderID)
	if o.Side == simtypes.Buy {
		prevBest := d.bestBidTick
		cur := d.bidDepth[o.PriceTick]
		cur.qty -= o.Qty
		d.bidDepth[o.PriceTick] = cur
		if lots(cur.qty, d.lotSize) == 0 {
			delete(d.bidDepth, o.PriceTick)
			if o.PriceTick == d.bestBidTick {
				d.bestBidTick = fusedDepthBelow(d.bidDepth, d.bestBidTick, d.lowBidTick)
				if d.bestBidTick == InvalidMin {
					d.lowBidTick = InvalidMax
				}
			}
		}
		return simtypes.Buy, prevBest, d.bestBidTick, nil
	}
	prevBest := d.bestAskTick
	cur := d.askDepth[o.PriceTick]
	cur.qty -= o.Qty
	d.askDepth[o.PriceTick] = cur
	if lots(cur.qty, d.lotSize) == 0 {
		delete(d.askDepth, o.PriceTick)
		if o.PriceTick == d.bestAskTick {
			d.bestAskTick = fusedDepthAbove(d.askDepth, d.bestAskTick, d.highAskTick)
			if d.bestAskTick == InvalidMax {
				d.highAskTick = InvalidMin
			}
		}
	}
	return simtypes.Sell, prevBest, d.bestAskTick, nil
}

// ModifyOrder applies the same in-place-iff-price-unchanged-and-qty-
// non-increasing rule as the other variants.
func (d *FusedMarketDepth) ModifyOrder(orderID uint64, px, qty float64, ts int64) (simtypes.Side, int64, int64, error) {
	o, ok := d.orders[orderID]
	if !ok {
		return 0, 0, 0, simerr.ErrOrderNotFound
	}
	tick := priceTick(px, d.tickSize)
	if tick == o.PriceTick && qty <= o.Qty {
		if o.Side == simtypes.Buy {
			cur := d.bidDepth[o.PriceTick]
			cur.qty += qty - o.Qty
			d.bidDepth[o.PriceTick] = cur
		} else {
			cur := d.askDepth[o.PriceTick]
			cur.qty += qty - o.Qty
			d.askDepth[o.PriceTick] = cur
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

func (d *FusedMarketDepth) ClearOrders(side simtypes.Side) {
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

func (d *FusedMarketDepth) Orders() map[uint64]L3Order { return d.orders }

// ApplySnapshot resets and replays DepthSnapshotEvent records, recording
// each level's exchange timestamp as its qtyTimestamp.
func (d *FusedMarketDepth) ApplySnapshot(events []simtypes.Event) {
	d.bestBidTick = InvalidMin
	d.bestAskTick = InvalidMax
	d.lowBidTick = InvalidMax
	d.highAskTick = InvalidMin
	d.bidDepth = make(map[int64]qtyTimestamp)
	d.askDepth = make(map[int64]qtyTimestamp)

	for _, ev := range events {
		if !ev.Flags.Has(simtypes.DepthSnapshotEvent) {
			continue
		}
		tick := priceTick(ev.Px, d.tickSize)
		if ev.Flags.Has(simtypes.BuyFlag) {
			d.bestBidTick = int64max(d.bestBidTick, tick)
			d.lowBidTick = int64min(d.lowBidTick, tick)
			d.bidDepth[tick] = qtyTimestamp{ev.Qty, ev.ExchTs}
		} else if ev.Flags.Has(simtypes.SellFlag) {
			d.bestAskTick = int64min(d.bestAskTick, tick)
			d.highAskTick = int64max(d.highAskTick, tick)
			d.askDepth[tick] = qtyTimestamp{ev.Qty, ev.ExchTs}
		}
	}
}

// Snapshot emits bid-desc then ask-asc levels tagged with each level's
// last-update timestamp.
func (d *FusedMarketDepth) Snapshot() []simtypes.Event {
	events := make([]simtypes.Event, 0, len(d.bidDepth)+len(d.askDepth))

	bidTicks := make([]int64, 0, len(d.bidDepth))
	for t := range d.bidDepth {
		bidTicks = append(bidTicks, t)
	}
	sortDesc(bidTicks)
	for _, t := range bidTicks {
		qt := d.bidDepth[t]
		events = append(events, simtypes.Event{
			Flags:  simtypes.ExchFlag | simtypes.LocalFlag | simtypes.BuyFlag | simtypes.DepthSnapshotEvent,
			ExchTs: qt.ts,
			Px:     float64(t) * d.tickSize,
			Qty:    qt.qty,
		})
	}

	askTicks := make([]int64, 0, len(d.askDepth))
	for t := range d.askDepth {
		askTicks = append(askTicks, t)
	}
	sortAsc(askTicks)
	for _, t := range askTicks {
		qt := d.askDepth[t]
		events = append(events, simtypes.Event{
			Flags:  simtypes.ExchFlag | simtypes.LocalFlag | simtypes.SellFlag | simtypes.DepthSnapshotEvent,
			ExchTs: qt.ts,
			Px:     float64(t) * d.tickSize,
			Qty:    qt.qty,
		})
	}
	return events
}
