// Package exchange implements the exchange-side processors: resting-order
// books that consume exchange-visible feed events and order requests,
// running them through a queue model to decide fills.
package exchange

import (
	"github.com/hftsim/backtest/bus"
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/feed"
	"github.com/hftsim/backtest/metrics"
	"github.com/hftsim/backtest/models"
	"github.com/hftsim/backtest/queue"
	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"
)

// NoPartialFillExchange matches orders without partial fills: a resting
// order either fills in full or not at all. This is a faithful model of
// venues (most spot and perpetual futures exchanges) where iceberg/refresh
// semantics make partial execution reports rare enough to ignore, trading
// fill realism for much simpler queue-position bookkeeping.
//
// Full-execution conditions (spec §4.4):
//
//	Buy resting order fills when: incoming ask crosses it, a sell trade
//	prints below its price, or a sell trade prints at its price and the
//	queue model reports the order has reached the front.
//	Sell resting order is the mirror image.
//
// Liquidity-taking orders (IOC/FOK/Market) always fill in full at the
// current best, regardless of displayed quantity there — unrealistic for
// large size, acceptable for a no-partial-fill model.
type NoPartialFillExchange struct {
	orders     map[uint64]*simtypes.Order
	buyOrders  map[int64]map[uint64]struct{}
	sellOrders map[int64]map[uint64]struct{}

	orderE2L *bus.ExchToLocal
	orderL2E *bus.LocalToExch
	latency  models.LatencyModel

	Depth      depth.MarketDepth
	State      *state.State
	QueueModel queue.Model

	filledOrders []uint64

	feedCursor *feed.Cursor

	symbol  string
	metrics *metrics.Collector
}

// NewNoPartialFillExchange constructs a resting-order book over d.
func NewNoPartialFillExchange(d depth.MarketDepth, st *state.State, qm queue.Model, orderL2E *bus.LocalToExch, orderE2L *bus.ExchToLocal, latency models.LatencyModel) *NoPartialFillExchange {
	return &NoPartialFillExchange{
		orders:     make(map[uint64]*simtypes.Order),
		buyOrders:  make(map[int64]map[uint64]struct{}),
		sellOrders: make(map[int64]map[uint64]struct{}),
		orderE2L:   orderE2L,
		orderL2E:   orderL2E,
		latency:    latency,
		Depth:      d,
		State:      st,
		QueueModel: qm,
	}
}

// SetFeed wires the exchange-visible event stream this processor will walk
// as the driver advances. It must be called once before InitializeData.
func (e *NoPartialFillExchange) SetFeed(events []simtypes.Event) {
	e.feedCursor = feed.NewCursor(events, simtypes.ExchFlag)
}

// SetMetrics installs the Prometheus collector fills are reported against
// under symbol. Unset by default, in which case fills go unrecorded.
func (e *NoPartialFillExchange) SetMetrics(symbol string, m *metrics.Collector) {
	e.symbol = symbol
	e.metrics = m
}

// InitializeData positions the feed cursor at the first exchange-visible
// event and returns its timestamp, or simerr.ErrEndOfData if the feed is
// empty.
func (e *NoPartialFillExchange) InitializeData() (int64, error) {
	ts, ok := e.feedCursor.Initialize()
	if !ok {
		return 0, simerr.ErrEndOfData
	}
	return ts, nil
}

// ProcessData runs the event at the feed cursor's current position through
// Process and advances to the next exchange-visible event, returning its
// timestamp, or simerr.ErrEndOfData once the feed is exhausted.
func (e *NoPartialFillExchange) ProcessData() (int64, error) {
	if err := e.Process(e.feedCursor.Current()); err != nil {
		return 0, err
	}
	ts, ok := e.feedCursor.Advance()
	if !ok {
		return 0, simerr.ErrEndOfData
	}
	return ts, nil
}

// EarliestSendOrderTimestamp reports the visibility timestamp of the next
// response this processor has queued toward the local side.
func (e *NoPartialFillExchange) EarliestSendOrderTimestamp() int64 {
	return e.orderE2L.EarliestTimestamp()
}

// EarliestRecvOrderTimestamp reports the visibility timestamp of the next
// request waiting to be acknowledged from the local side.
func (e *NoPartialFillExchange) EarliestRecvOrderTimestamp() int64 {
	return e.orderL2E.EarliestTimestamp()
}

func (e *NoPartialFillExchange) checkIfSellFilled(order *simtypes.Order, priceTick int64, qty float64, ts int64) error {
	switch {
	case order.PriceTick > priceTick:
	case order.PriceTick < priceTick:
		e.filledOrders = append(e.filledOrders, order.OrderID)
		return e.fill(order, ts, true, order.PriceTick, true)
	default:
		e.QueueModel.Trade(order, qty, e.Depth)
		if e.QueueModel.IsFilled(order, e.Depth) > 0 {
			e.filledOrders = append(e.filledOrders, order.OrderID)
			return e.fill(order, ts, true, order.PriceTick, true)
		}
	}
	return nil
}

func (e *NoPartialFillExchange) checkIfBuyFilled(order *simtypes.Order, priceTick int64, qty float64, ts int64) error {
	switch {
	case order.PriceTick < priceTick:
	case order.PriceTick > priceTick:
		e.filledOrders = append(e.filledOrders, order.OrderID)
		return e.fill(order, ts, true, order.PriceTick, true)
	default:
		e.QueueModel.Trade(order, qty, e.Depth)
		if e.QueueModel.IsFilled(order, e.Depth) > 0 {
			e.filledOrders = append(e.filledOrders, order.OrderID)
			return e.fill(order, ts, true, order.PriceTick, true)
		}
	}
	return nil
}

// fill finalizes order as Filled, charges fee/position through State, and
// optionally enqueues the response on the exchange-to-local bus.
func (e *NoPartialFillExchange) fill(order *simtypes.Order, ts int64, maker bool, execPriceTick int64, makeResponse bool) error {
	if order.Status.Terminal() {
		return simerr.ErrInvalidOrderStatus
	}

	order.Maker = maker
	if maker {
		order.ExecPriceTick = order.PriceTick
	} else {
		order.ExecPriceTick = execPriceTick
	}
	order.ExecQty = order.LeavesQty
	order.LeavesQty = 0
	order.Status = simtypes.Filled
	order.ExchTs = ts

	side := 1
	if order.Side == simtypes.Sell {
		side = -1
	}
	e.State.ApplyFill(side, float64(order.ExecPriceTick)*order.TickSize, order.ExecQty, maker)
	if e.metrics != nil {
		e.metrics.RecordFill(e.symbol, order.Side.String(), maker, order.LocalTs, ts)
	}

	if makeResponse {
		e.orderE2L.Append(order.Clone(), ts+e.latency.ResponseLatency(ts))
	}
	return nil
}

func (e *NoPartialFillExchange) removeFilledOrders() {
	for _, id := range e.filledOrders {
		order, ok := e.orders[id]
		if !ok {
			continue
		}
		delete(e.orders, id)
		if order.Side == simtypes.Buy {
			delete(e.buyOrders[order.PriceTick], id)
		} else {
			delete(e.sellOrders[order.PriceTick], id)
		}
	}
	e.filledOrders = e.filledOrders[:0]
}

func (e *NoPartialFillExchange) onBidQtyChg(priceTick int64, prevQty, newQty float64) {
	for id := range e.buyOrders[priceTick] {
		e.QueueModel.Depth(e.orders[id], prevQty, newQty, e.Depth)
	}
}

func (e *NoPartialFillExchange) onAskQtyChg(priceTick int64, prevQty, newQty float64) {
	for id := range e.sellOrders[priceTick] {
		e.QueueModel.Depth(e.orders[id], prevQty, newQty, e.Depth)
	}
}

func (e *NoPartialFillExchange) onBestBidUpdate(prevBest, newBest, ts int64) error {
	if prevBest == depth.InvalidMin || int64(len(e.orders)) < newBest-prevBest {
		for id, order := range e.orders {
			if order.Side == simtypes.Sell && order.PriceTick <= newBest {
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, true); err != nil {
					return err
				}
			}
		}
	} else {
		for t := prevBest + 1; t <= newBest; t++ {
			for id := range e.sellOrders[t] {
				order := e.orders[id]
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, true); err != nil {
					return err
				}
			}
		}
	}
	e.removeFilledOrders()
	return nil
}

func (e *NoPartialFillExchange) onBestAskUpdate(prevBest, newBest, ts int64) error {
	if prevBest == depth.InvalidMax || int64(len(e.orders)) < prevBest-newBest {
		for id, order := range e.orders {
			if order.Side == simtypes.Buy && order.PriceTick >= newBest {
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, true); err != nil {
					return err
				}
			}
		}
	} else {
		for t := newBest; t < prevBest; t++ {
			for id := range e.buyOrders[t] {
				order := e.orders[id]
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, true); err != nil {
					return err
				}
			}
		}
	}
	e.removeFilledOrders()
	return nil
}

// AckNew processes a new order request, either resting it in the book or
// immediately filling/expiring it depending on its type, TIF, and whether
// it crosses the book.
func (e *NoPartialFillExchange) AckNew(order *simtypes.Order, ts int64) error {
	if _, exists := e.orders[order.OrderID]; exists {
		return simerr.ErrOrderIDExist
	}

	if order.OrdType == simtypes.Market {
		if order.Side == simtypes.Buy {
			return e.fill(order, ts, false, e.Depth.BestAskTick(), false)
		}
		return e.fill(order, ts, false, e.Depth.BestBidTick(), false)
	}

	if order.Side == simtypes.Buy {
		if order.PriceTick >= e.Depth.BestAskTick() {
			switch order.TIF {
			case simtypes.GTX:
				order.Status = simtypes.Expired
				order.ExchTs = ts
				return nil
			default:
				return e.fill(order, ts, false, e.Depth.BestAskTick(), false)
			}
		}
		switch order.TIF {
		case simtypes.GTC, simtypes.GTX:
			e.QueueModel.NewOrder(order, e.Depth)
			order.Status = simtypes.New
			if e.buyOrders[order.PriceTick] == nil {
				e.buyOrders[order.PriceTick] = make(map[uint64]struct{})
			}
			e.buyOrders[order.PriceTick][order.OrderID] = struct{}{}
			order.ExchTs = ts
			e.orders[order.OrderID] = order
			return nil
		default: // FOK, IOC
			order.Status = simtypes.Expired
			order.ExchTs = ts
			return nil
		}
	}

	if order.PriceTick <= e.Depth.BestBidTick() {
		switch order.TIF {
		case simtypes.GTX:
			order.Status = simtypes.Expired
			order.ExchTs = ts
			return nil
		default:
			return e.fill(order, ts, false, e.Depth.BestBidTick(), false)
		}
	}
	switch order.TIF {
	case simtypes.GTC, simtypes.GTX:
		e.QueueModel.NewOrder(order, e.Depth)
		order.Status = simtypes.New
		if e.sellOrders[order.PriceTick] == nil {
			e.sellOrders[order.PriceTick] = make(map[uint64]struct{})
		}
		e.sellOrders[order.PriceTick][order.OrderID] = struct{}{}
		order.ExchTs = ts
		e.orders[order.OrderID] = order
		return nil
	default:
		order.Status = simtypes.Expired
		order.ExchTs = ts
		return nil
	}
}

// AckCancel removes a resting order, or marks the request rejected if the
// order no longer exists (already filled or expired).
func (e *NoPartialFillExchange) AckCancel(order *simtypes.Order, ts int64) error {
	exch, ok := e.orders[order.OrderID]
	if !ok {
		order.Req = simtypes.ReqNone
		order.Status = simtypes.Rejected
		order.ExchTs = ts
		return nil
	}
	delete(e.orders, order.OrderID)
	if exch.Side == simtypes.Buy {
		delete(e.buyOrders[exch.PriceTick], exch.OrderID)
	} else {
		delete(e.sellOrders[exch.PriceTick], exch.OrderID)
	}
	*order = *exch
	order.Status = simtypes.Canceled
	order.ExchTs = ts
	return nil
}

// AckModify re-prices/re-sizes a resting order. It resets queue priority
// (cancel+re-add) whenever the price changes or the quantity increases;
// a same-price, non-increasing quantity change updates in place and keeps
// queue priority.
func (e *NoPartialFillExchange) AckModify(order *simtypes.Order, ts int64, resetQueuePos bool) error {
	exch, ok := e.orders[order.OrderID]
	if !ok {
		order.Status = simtypes.Rejected
		order.ExchTs = ts
		return nil
	}

	if resetQueuePos || exch.PriceTick != order.PriceTick || order.Qty > exch.LeavesQty {
		canceled := *order
		if err := e.AckCancel(&canceled, ts); err != nil {
			return err
		}
		return e.AckNew(order, ts)
	}

	exch.Qty = order.Qty
	exch.LeavesQty = order.Qty
	exch.ExchTs = ts
	order.LeavesQty = order.Qty
	order.ExchTs = ts
	return nil
}

// Process applies one exchange-visible feed event: depth updates (which
// may trigger maker fills as the touch moves) or trade prints (which may
// advance or complete resting orders' queue positions).
func (e *NoPartialFillExchange) Process(ev simtypes.Event) error {
	switch {
	case ev.Flags.Has(simtypes.DepthClearEvent) && ev.Flags.Has(simtypes.BuyFlag):
		e.Depth.ClearDepth(simtypes.Buy, ev.Px)
	case ev.Flags.Has(simtypes.DepthClearEvent) && ev.Flags.Has(simtypes.SellFlag):
		e.Depth.ClearDepth(simtypes.Sell, ev.Px)
	case ev.Flags.Has(simtypes.DepthClearEvent):
		e.Depth.ClearDepth(0, 0)
	case ev.Flags.Has(simtypes.BuyFlag) && (ev.Flags.Has(simtypes.DepthEvent) || ev.Flags.Has(simtypes.DepthSnapshotEvent)):
		priceTick, prevBest, newBest, prevQty, newQty, ts := e.Depth.UpdateBidDepth(ev.Px, ev.Qty, ev.ExchTs)
		e.onBidQtyChg(priceTick, prevQty, newQty)
		if newBest > prevBest {
			return e.onBestBidUpdate(prevBest, newBest, ts)
		}
	case ev.Flags.Has(simtypes.SellFlag) && (ev.Flags.Has(simtypes.DepthEvent) || ev.Flags.Has(simtypes.DepthSnapshotEvent)):
		priceTick, prevBest, newBest, prevQty, newQty, ts := e.Depth.UpdateAskDepth(ev.Px, ev.Qty, ev.ExchTs)
		e.onAskQtyChg(priceTick, prevQty, newQty)
		if newBest < prevBest {
			return e.onBestAskUpdate(prevBest, newBest, ts)
		}
	case ev.Flags.Has(simtypes.TradeEvent) && ev.Flags.Has(simtypes.BuyFlag):
		priceTick := simtypes.RoundToTick(ev.Px, e.Depth.TickSize())
		bestBid := e.Depth.BestBidTick()
		if bestBid == depth.InvalidMin || int64(len(e.orders)) < priceTick-bestBid {
			for _, order := range e.orders {
				if order.Side == simtypes.Sell {
					if err := e.checkIfSellFilled(order, priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		} else {
			for t := bestBid + 1; t <= priceTick; t++ {
				for id := range e.sellOrders[t] {
					if err := e.checkIfSellFilled(e.orders[id], priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		}
		e.removeFilledOrders()
	case ev.Flags.Has(simtypes.TradeEvent) && ev.Flags.Has(simtypes.SellFlag):
		priceTick := simtypes.RoundToTick(ev.Px, e.Depth.TickSize())
		bestAsk := e.Depth.BestAskTick()
		if bestAsk == depth.InvalidMax || int64(len(e.orders)) < bestAsk-priceTick {
			for _, order := range e.orders {
				if order.Side == simtypes.Buy {
					if err := e.checkIfBuyFilled(order, priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		} else {
			for t := priceTick; t < bestAsk; t++ {
				for id := range e.buyOrders[t] {
					if err := e.checkIfBuyFilled(e.orders[id], priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		}
		e.removeFilledOrders()
	}
	return nil
}

// ProcessRecvOrder drains requests visible by ts from the local-to-exchange
// bus, acknowledging each and enqueueing a response.
func (e *NoPartialFillExchange) ProcessRecvOrder(ts int64) error {
	for e.orderL2E.Len() > 0 && e.orderL2E.EarliestTimestamp() <= ts {
		order, _ := e.orderL2E.Pop()
		switch order.Req {
		case simtypes.ReqNew:
			order.Req = simtypes.ReqNone
			if err := e.AckNew(&order, ts); err != nil {
				return err
			}
		case simtypes.ReqCanceled:
			order.Req = simtypes.ReqNone
			if err := e.AckCancel(&order, ts); err != nil {
				return err
			}
		case simtypes.ReqReplaced:
			order.Req = simtypes.ReqNone
			if err := e.AckModify(&order, ts, false); err != nil {
				return err
			}
		default:
			return simerr.ErrInvalidOrderRequest
		}
		e.orderE2L.Append(order, ts+e.latency.ResponseLatency(ts))
	}
	return nil
}
