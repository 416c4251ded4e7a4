package depth

import (
	"math"

	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
)

// HashMapMarketDepth is a price-tick-indexed depth store backed by Go maps.
// Compared to a sorted-tree variant it naturally self-heals the best
// bid/ask when depth feed events are missing, because it always rescans
// from the last known best instead of trusting stale tree nodes.
type HashMapMarketDepth struct {
	tickSize float64
	lotSize  float64

	bidDepth map[int64]float64
	askDepth map[int64]float64

	bestBidTick int64
	bestAskTick int64
	lowBidTick  int64
	highAskTick int64

	orders map[uint64]L3Order
}

// NewHashMapMarketDepth constructs an empty depth for one asset.
func NewHashMapMarketDepth(tickSize, lotSize float64) *HashMapMarketDepth {
	return &HashMapMarketDepth{
		tickSize:    tickSize,
		lotSize:     lotSize,
		bidDepth:    make(map[int64]float64),
		askDepth:    make(map[int64]float64),
		bestBidTick: InvalidMin,
		bestAskTick: InvalidMax,
		lowBidTick:  InvalidMax,
		highAskTick: InvalidMin,
		orders:      make(map[uint64]L3Order),
	}
}

func (d *HashMapMarketDepth) TickSize() float64 { return d.tickSize }
func (d *HashMapMarketDepth) LotSize() float64  { return d.lotSize }

func (d *HashMapMarketDepth) BestBidTick() int64 { return d.bestBidTick }
func (d *HashMapMarketDepth) BestAskTick() int64 { return d.bestAskTick }

func (d *HashMapMarketDepth) BestBid() float64 {
	if d.bestBidTick == InvalidMin {
		return math.NaN()
	}
	return float64(d.bestBidTick) * d.tickSize
}

func (d *HashMapMarketDepth) BestAsk() float64 {
	if d.bestAskTick == InvalidMax {
		return math.NaN()
	}
	return float64(d.bestAskTick) * d.tickSize
}

func (d *HashMapMarketDepth) BestBidQty() float64 { return d.bidDepth[d.bestBidTick] }
func (d *HashMapMarketDepth) BestAskQty() float64 { return d.askDepth[d.bestAskTick] }

func (d *HashMapMarketDepth) BidQtyAtTick(tick int64) float64 { return d.bidDepth[tick] }
func (d *HashMapMarketDepth) AskQtyAtTick(tick int64) float64 { return d.askDepth[tick] }

func (d *HashMapMarketDepth) UpdateBidDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	qtyLot := lots(qty, d.lotSize)
	prevBest := d.bestBidTick
	prevQty, existed := d.bidDepth[tick]
	if qtyLot > 0 {
		d.bidDepth[tick] = qty
	} else if existed {
		delete(d.bidDepth, tick)
	}

	if qtyLot == 0 {
		if tick == d.bestBidTick {
			d.bestBidTick = depthBelow(d.bidDepth, d.bestBidTick, d.lowBidTick)
			if d.bestBidTick == InvalidMin {
				d.lowBidTick = InvalidMax
			}
		}
	} else {
		if tick > d.bestBidTick {
			d.bestBidTick = tick
			if d.bestBidTick >= d.bestAskTick {
				d.bestAskTick = depthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
			}
		}
		if tick < d.lowBidTick {
			d.lowBidTick = tick
		}
	}
	return tick, prevBest, d.bestBidTick, prevQty, qty, ts
}

func (d *HashMapMarketDepth) UpdateAskDepth(px, qty float64, ts int64) (int64, int64, int64, float64, float64, int64) {
	tick := priceTick(px, d.tickSize)
	qtyLot := lots(qty, d.lotSize)
	prevBest := d.bestAskTick
	prevQty, existed := d.askDepth[tick]
	if qtyLot > 0 {
		d.askDepth[tick] = qty
	} else if existed {
		delete(d.askDepth, tick)
	}

	if qtyLot == 0 {
		if tick == d.bestAskTick {
			d.bestAskTick = depthAbove(d.askDepth, d.bestAskTick, d.highAskTick)
			if d.bestAskTick == InvalidMax {
				d.highAskTick = InvalidMin
			}
		}
	} else {
		if tick < d.bestAskTick {
			d.bestAskTick = tick
			if d.bestBidTick >= d.bestAskTick {
				d.bestBidTick = depthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
			}
		}
		if tick > d.highAskTick {
			d.highAskTick = tick
		}
	}
	return tick, prevBest, d.bestAskTick, prevQty, qty, ts
}

func (d *HashMapMarketDepth) ClearDepth(side simtypes.Side, upToPx float64) {
	switch side {
	case simtypes.Buy:
		if !math.IsInf(upToPx, 0) && !math.IsNaN(upToPx) {
			clearUpto := priceTick(upToPx, d.tickSize)
			if d.bestBidTick != InvalidMin {
				for t := clearUpto; t <= d.bestBidTick; t++ {
					delete(d.bidDepth, t)
				}
			}
			d.bestBidTick = depthBelow(d.bidDepth, clearUpto+1, d.lowBidTick)
		} else {
			d.bidDepth = make(map[int64]float64)
			d.bestBidTick = InvalidMin
		}
		if d.bestBidTick == InvalidMin {
			d.lowBidTick = InvalidMax
		}
	case simtypes.Sell:
		if !math.IsInf(upToPx, 0) && !math.IsNaN(upToPx) {
			clearUpto := priceTick(upToPx, d.tickSize)
			if d.bestAskTick != InvalidMax {
				for t := d.bestAskTick; t <= clearUpto; t++ {
					delete(d.askDepth, t)
				}
			}
			d.bestAskTick = depthAbove(d.askDepth, clearUpto, d.highAskTick)
		} else {
			d.askDepth = make(map[int64]float64)
			d.bestAskTick = InvalidMax
		}
		if d.bestAskTick == InvalidMax {
			d.highAskTick = InvalidMin
		}
	default:
		d.bidDepth = make(map[int64]float64)
		d.askDepth = make(map[int64]float64)
		d.bestBidTick = InvalidMin
		d.bestAskTick = InvalidMax
		d.lowBidTick = InvalidMax
		d.highAskTick = InvalidMin
	}
}

func (d *HashMapMarketDepth) add(o L3Order) error {
	if _, exists := d.orders[o.OrderID]; exists {
		return simerr.ErrOrderIDExist
	}
	d.orders[o.OrderID] = o
	if o.Side == simtypes.Buy {
		d.bidDepth[o.PriceTick] += o.Qty
	} else {
		d.askDepth[o.PriceTick] += o.Qty
	}
	return nil
}

func (d *HashMapMarketDepth) AddBuyOrder(orderID uint64, px, qty float64, ts int64) (int64, int64, error) {
	tick := priceTick(px, d.tickSize)
	if err := d.add(L3Order{OrderID: orderID, Side: simtypes.Buy, PriceTick: tick, Qty: qty, Timestamp: ts}); err != nil {
		return 0, 0, err
	}
	prevBest := d.bestBidTick
	if tick > d.bestBidTick {
		d.bestBidTick = tick
		if d.bestBidTick >= d.bestAskTick {
			d.bestAskTick = depthAbove(d.askDepth, d.bestBidTick, d.highAskTick)
		}
	}
	if tick < d.lowBidTick {
		d.lowBidTick = tick
	}
	return prevBest, d.bestBidTick, nil
}

func (d *HashMapMarketDepth) AddSellOrder(orderID uint64, px, qty float64, ts int64) (int64, int64, error) {
	tick := priceTick(px, d.tickSize)
	if err := d.add(L3Order{OrderID: orderID, Side: simtypes.Sell, PriceTick: tick, Qty: qty, Timestamp: ts}); err != nil {
		return 0, 0, err
	}
	prevBest := d.bestAskTick
	if tick < d.bestAskTick {
		d.bestAskTick = tick
		if d.bestBidTick >= d.bestAskTick {
			d.bestBidTick = depthBelow(d.bidDepth, d.bestAskTick, d.lowBidTick)
		}
	}
	if tick > d.highAskTick {
		d.highAskTick = tick
	}
	return prevBest, d.bestAskTick, nil
}

func (d *HashMapMarketDepth) DeleteOrder(orderID uint64, _ int64) (simtypes.Side, int64, int64, error) {
	o, ok := d.orders[orderID]
	if !ok {
		return 0, 0, 0, simerr.ErrOrderNotFound
	}
	delete(d.orders, orderID)
	if o.Side == simtypes.Buy {
		prevBest := d.bestBidTick
		d.bidDepth[o.PriceTick] -= o.Qty
		if lots(d.bidDepth[o.PriceTick], d.lotSize) == 0 {
			delete(d.bidDepth, o.PriceTick)
			if o.PriceTick == d.bestBidTick {
				d.bestBidTick = depthBelow(d.bidDepth, d.bestBidTick, d.lowBidTick)
				if d.bestBidTick == InvalidMin {
					d.lowBidTick = InvalidMax
				}
			}
		}
		return simtypes.Buy, prevBest, d.bestBidTick, nil
	}
	prevBest := d.bestAskTick
	d.askDepth[o.PriceTick] -= o.Qty
	if lots(d.askDepth[o.PriceTick], d.lotSize) == 0 {
		delete(d.askDepth, o.PriceTick)
		if o.PriceTick == d.bestAskTick {
			d.bestAskTick = depthAbove(d.askDepth, d.bestAskTick, d.highAskTick)
			if d.bestAskTick == InvalidMax {
				d.highAskTick = InvalidMin
			}
		}
	}
	return simtypes.Sell, prevBest, d.bestAskTick, nil
}

// ModifyOrder follows spec §4.1: updates in place when the price is
// unchanged and the quantity is non-increasing; otherwise delete+add,
// which loses queue priority.
func (d *HashMapMarketDepth) ModifyOrder(orderID uint64, px, qty float64, ts int64) (simtypes.Side, int64, int64, error) {
	o, ok := d.orders[orderID]
	if !ok {
		return 0, 0, 0, simerr.ErrOrderNotFound
	}
	tick := priceTick(px, d.tickSize)
	if tick == o.PriceTick && qty <= o.Qty {
		if o.Side == simtypes.Buy {
			d.bidDepth[o.PriceTick] += qty - o.Qty
		} else {
			d.askDepth[o.PriceTick] += qty - o.Qty
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

func (d *HashMapMarketDepth) ClearOrders(side simtypes.Side) {
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

func (d *HashMapMarketDepth) Orders() map[uint64]L3Order { return d.orders }

// ApplySnapshot resets state and replays only DepthSnapshotEvent records.
func (d *HashMapMarketDepth) ApplySnapshot(events []simtypes.Event) {
	d.bestBidTick = InvalidMin
	d.bestAskTick = InvalidMax
	d.lowBidTick = InvalidMax
	d.highAskTick = InvalidMin
	d.bidDepth = make(map[int64]float64)
	d.askDepth = make(map[int64]float64)

	for _, ev := range events {
		if !ev.Flags.Has(simtypes.DepthSnapshotEvent) {
			continue
		}
		tick := priceTick(ev.Px, d.tickSize)
		if ev.Flags.Has(simtypes.BuyFlag) {
			if tick > d.bestBidTick {
				d.bestBidTick = tick
			}
			if tick < d.lowBidTick {
				d.lowBidTick = tick
			}
			d.bidDepth[tick] = ev.Qty
		} else if ev.Flags.Has(simtypes.SellFlag) {
			if tick < d.bestAskTick {
				d.bestAskTick = tick
			}
			if tick > d.highAskTick {
				d.highAskTick = tick
			}
			d.askDepth[tick] = ev.Qty
		}
	}
}

// Snapshot emits depth levels bid-desc then ask-asc for durable
// reconstruction via ApplySnapshot.
func (d *HashMapMarketDepth) Snapshot() []simtypes.Event {
	events := make([]simtypes.Event, 0, len(d.bidDepth)+len(d.askDepth))

	bidTicks := make([]int64, 0, len(d.bidDepth))
	for t := range d.bidDepth {
		bidTicks = append(bidTicks, t)
	}
	sortDesc(bidTicks)
	for _, t := range bidTicks {
		events = append(events, simtypes.Event{
			Flags: simtypes.ExchFlag | simtypes.LocalFlag | simtypes.BuyFlag | simtypes.DepthSnapshotEvent,
			Px:    float64(t) * d.tickSize,
			Qty:   d.bidDepth[t],
		})
	}

	askTicks := make([]int64, 0, len(d.askDepth))
	for t := range d.askDepth {
		askTicks = append(askTicks, t)
	}
	sortAsc(askTicks)
	for _, t := range askTicks {
		events = append(events, simtypes.Event{
			Flags: simtypes.ExchFlag | simtypes.LocalFlag | simtypes.SellFlag | simtypes.DepthSnapshotEvent,
			Px:    float64(t) * d.tickSize,
			Qty:   d.askDepth[t],
		})
	}
	return events
}

func sortDesc(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] < s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func sortAsc(s []int64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
