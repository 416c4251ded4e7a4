package exchange

import (
	"math"

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

// PartialFillExchange matches orders with partial fills: a resting order's
// leaves_qty shrinks by exactly the quantity the queue model estimates was
// executable ahead of it (clamped to the trade print's quantity and to the
// order's remaining size), and the
// order stays resting with PartiallyFilled status until leaves_qty reaches
// zero. This is the more realistic but more bookkeeping-heavy sibling of
// NoPartialFillExchange (spec §4.5): where that variant fills an order
// whole the instant it reaches the front, this one lets a single trade
// print partially consume several orders' remaining size in turn.
type PartialFillExchange struct {
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

// NewPartialFillExchange constructs a resting-order book over d.
func NewPartialFillExchange(d depth.MarketDepth, st *state.State, qm queue.Model, orderL2E *bus.LocalToExch, orderE2L *bus.ExchToLocal, latency models.LatencyModel) *PartialFillExchange {
	return &PartialFillExchange{
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
func (e *PartialFillExchange) SetFeed(events []simtypes.Event) {
	e.feedCursor = feed.NewCursor(events, simtypes.ExchFlag)
}

// SetMetrics installs the Prometheus collector fills are reported against
// under symbol. Unset by default, in which case fills go unrecorded.
func (e *PartialFillExchange) SetMetrics(symbol string, m *metrics.Collector) {
	e.symbol = symbol
	e.metrics = m
}

// InitializeData positions the feed cursor at the first exchange-visible
// event and returns its timestamp, or simerr.ErrEndOfData if the feed is
// empty.
func (e *PartialFillExchange) InitializeData() (int64, error) {
	ts, ok := e.feedCursor.Initialize()
	if !ok {
		return 0, simerr.ErrEndOfData
	}
	return ts, nil
}

// ProcessData runs the event at the feed cursor's current position through
// Process and advances to the next exchange-visible event, returning its
// timestamp, or simerr.ErrEndOfData once the feed is exhausted.
func (e *PartialFillExchange) ProcessData() (int64, error) {
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
func (e *PartialFillExchange) EarliestSendOrderTimestamp() int64 {
	return e.orderE2L.EarliestTimestamp()
}

// EarliestRecvOrderTimestamp reports the visibility timestamp of the next
// request waiting to be acknowledged from the local side.
func (e *PartialFillExchange) EarliestRecvOrderTimestamp() int64 {
	return e.orderL2E.EarliestTimestamp()
}

func (e *PartialFillExchange) checkSellFilled(order *simtypes.Order, priceTick int64, qty float64, ts int64) error {
	switch {
	case order.PriceTick > priceTick:
	case order.PriceTick < priceTick:
		e.filledOrders = append(e.filledOrders, order.OrderID)
		return e.fill(order, ts, true, order.PriceTick, order.LeavesQty, true)
	default:
		e.QueueModel.Trade(order, qty, e.Depth)
		filledQty := e.QueueModel.IsFilled(order, e.Depth)
		if filledQty > 0 {
			execQty := math.Min(math.Min(filledQty, qty), order.LeavesQty)
			if simtypes.RoundToLot(order.LeavesQty-execQty, e.Depth.LotSize()) <= 0 {
				e.filledOrders = append(e.filledOrders, order.OrderID)
			}
			return e.fill(order, ts, true, order.PriceTick, execQty, true)
		}
	}
	return nil
}

func (e *PartialFillExchange) checkBuyFilled(order *simtypes.Order, priceTick int64, qty float64, ts int64) error {
	switch {
	case order.PriceTick < priceTick:
	case order.PriceTick > priceTick:
		e.filledOrders = append(e.filledOrders, order.OrderID)
		return e.fill(order, ts, true, order.PriceTick, order.LeavesQty, true)
	default:
		e.QueueModel.Trade(order, qty, e.Depth)
		filledQty := e.QueueModel.IsFilled(order, e.Depth)
		if filledQty > 0 {
			execQty := math.Min(math.Min(filledQty, qty), order.LeavesQty)
			if simtypes.RoundToLot(order.LeavesQty-execQty, e.Depth.LotSize()) <= 0 {
				e.filledOrders = append(e.filledOrders, order.OrderID)
			}
			return e.fill(order, ts, true, order.PriceTick, execQty, true)
		}
	}
	return nil
}

func (e *PartialFillExchange) fill(order *simtypes.Order, ts int64, maker bool, execPriceTick int64, execQty float64, makeResponse bool) error {
	if order.Status.Terminal() {
		return simerr.ErrInvalidOrderStatus
	}

	order.Maker = maker
	if maker {
		order.ExecPriceTick = order.PriceTick
	} else {
		order.ExecPriceTick = execPriceTick
	}
	order.ExecQty = execQty
	order.LeavesQty -= execQty
	if simtypes.RoundToLot(order.LeavesQty, e.Depth.LotSize()) > 0 {
		order.Status = simtypes.PartiallyFilled
	} else {
		order.Status = simtypes.Filled
	}
	order.ExchTs = ts

	side := 1
	if order.Side == simtypes.Sell {
		side = -1
	}
	e.State.ApplyFill(side, float64(order.ExecPriceTick)*order.TickSize, execQty, maker)
	if e.metrics != nil {
		e.metrics.RecordFill(e.symbol, order.Side.String(), maker, order.LocalTs, ts)
	}

	if makeResponse {
		e.orderE2L.Append(order.Clone(), ts+e.latency.ResponseLatency(ts))
	}
	return nil
}

func (e *PartialFillExchange) removeFilledOrders() {
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

func (e *PartialFillExchange) onBidQtyChg(priceTick int64, prevQty, newQty float64) {
	for id := range e.buyOrders[priceTick] {
		e.QueueModel.Depth(e.orders[id], prevQty, newQty, e.Depth)
	}
}

func (e *PartialFillExchange) onAskQtyChg(priceTick int64, prevQty, newQty float64) {
	for id := range e.sellOrders[priceTick] {
		e.QueueModel.Depth(e.orders[id], prevQty, newQty, e.Depth)
	}
}

// onBestBidUpdate fills, in full, every resting sell order whose price sits
// at or below the new best bid: a depth-driven best move (as opposed to a
// trade print) consumes whatever rested there entirely, the same as
// NoPartialFillExchange.onBestBidUpdate.
func (e *PartialFillExchange) onBestBidUpdate(prevBest, newBest, ts int64) error {
	if prevBest == depth.InvalidMin || int64(len(e.orders)) < newBest-prevBest {
		for id, order := range e.orders {
			if order.Side == simtypes.Sell && order.PriceTick <= newBest {
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, order.LeavesQty, true); err != nil {
					return err
				}
			}
		}
	} else {
		for t := prevBest + 1; t <= newBest; t++ {
			for id := range e.sellOrders[t] {
				order := e.orders[id]
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, order.LeavesQty, true); err != nil {
					return err
				}
			}
		}
	}
	e.removeFilledOrders()
	return nil
}

// onBestAskUpdate is the mirror of onBestBidUpdate for resting buy orders.
func (e *PartialFillExchange) onBestAskUpdate(prevBest, newBest, ts int64) error {
	if prevBest == depth.InvalidMax || int64(len(e.orders)) < prevBest-newBest {
		for id, order := range e.orders {
			if order.Side == simtypes.Buy && order.PriceTick >= newBest {
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, order.LeavesQty, true); err != nil {
					return err
				}
			}
		}
	} else {
		for t := newBest; t < prevBest; t++ {
			for id := range e.buyOrders[t] {
				order := e.orders[id]
				e.filledOrders = append(e.filledOrders, id)
				if err := e.fill(order, ts, true, order.PriceTick, order.LeavesQty, true); err != nil {
					return err
				}
			}
		}
	}
	e.removeFilledOrders()
	return nil
}

// marketTickSpan bounds how many ticks past the best a Market order walks
// looking for liquidity. The depth a backtest replays never actually runs
// out within a realistic number of ticks; this is a safety bound, not a
// modeled constraint.
const marketTickSpan = 100

// AckNew processes a new order request. A marketable GTC/IOC/FOK/Market
// order walks the opposite book tick by tick, partially filling at each
// tick's displayed quantity, rather than consuming the whole order at a
// single price the way NoPartialFillExchange does.
func (e *PartialFillExchange) AckNew(order *simtypes.Order, ts int64) error {
	if _, exists := e.orders[order.OrderID]; exists {
		return simerr.ErrOrderIDExist
	}

	if order.OrdType == simtypes.Market {
		var err error
		if order.Side == simtypes.Buy {
			err = e.walkAsks(order, ts, e.Depth.BestAskTick(), e.Depth.BestAskTick()+marketTickSpan-1, false)
		} else {
			err = e.walkBids(order, ts, e.Depth.BestBidTick(), e.Depth.BestBidTick()-marketTickSpan, false)
		}
		if err != nil {
			return err
		}
		if !order.Status.Terminal() {
			order.Status = simtypes.Expired
			order.ExchTs = ts
		}
		return nil
	}

	if order.Side == simtypes.Buy {
		if order.PriceTick >= e.Depth.BestAskTick() {
			return e.crossBuy(order, ts)
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
		default:
			order.Status = simtypes.Expired
			order.ExchTs = ts
			return nil
		}
	}

	if order.PriceTick <= e.Depth.BestBidTick() {
		return e.crossSell(order, ts)
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

// crossBuy handles a buy limit order whose price already crosses the best
// ask, dispatching by time-in-force.
func (e *PartialFillExchange) crossBuy(order *simtypes.Order, ts int64) error {
	switch order.TIF {
	case simtypes.GTX:
		order.Status = simtypes.Expired
		order.ExchTs = ts
		return nil
	case simtypes.FOK:
		if !e.askLiquidityCovers(e.Depth.BestAskTick(), order.PriceTick, order.Qty) {
			order.Status = simtypes.Expired
			order.ExchTs = ts
			return nil
		}
		return e.walkAsks(order, ts, e.Depth.BestAskTick(), order.PriceTick, false)
	case simtypes.IOC:
		if err := e.walkAsks(order, ts, e.Depth.BestAskTick(), order.PriceTick, false); err != nil {
			return err
		}
		if !order.Status.Terminal() {
			order.Status = simtypes.Expired
			order.ExchTs = ts
		}
		return nil
	default: // GTC
		if err := e.walkAsks(order, ts, e.Depth.BestAskTick(), order.PriceTick-1, false); err != nil {
			return err
		}
		if order.Status.Terminal() {
			return nil
		}
		// The order cannot rest in the ask book — it would have to affect
		// depth the replayed feed doesn't carry — so whatever liquidity
		// couldn't be found on the book is forced through at its own limit.
		return e.fill(order, ts, false, order.PriceTick, order.LeavesQty, false)
	}
}

// crossSell is the mirror of crossBuy for a sell limit order crossing the
// best bid.
func (e *PartialFillExchange) crossSell(order *simtypes.Order, ts int64) error {
	switch order.TIF {
	case simtypes.GTX:
		order.Status = simtypes.Expired
		order.ExchTs = ts
		return nil
	case simtypes.FOK:
		if !e.bidLiquidityCovers(order.PriceTick, e.Depth.BestBidTick(), order.Qty) {
			order.Status = simtypes.Expired
			order.ExchTs = ts
			return nil
		}
		return e.walkBids(order, ts, e.Depth.BestBidTick(), order.PriceTick, false)
	case simtypes.IOC:
		if err := e.walkBids(order, ts, e.Depth.BestBidTick(), order.PriceTick, false); err != nil {
			return err
		}
		if !order.Status.Terminal() {
			order.Status = simtypes.Expired
			order.ExchTs = ts
		}
		return nil
	default: // GTC
		if err := e.walkBids(order, ts, e.Depth.BestBidTick(), order.PriceTick, false); err != nil {
			return err
		}
		if order.Status.Terminal() {
			return nil
		}
		return e.fill(order, ts, false, order.PriceTick, order.LeavesQty, false)
	}
}

// walkAsks fills order, tick by tick, from fromTick up to and including
// toTick, taking min(qty_at_tick, leaves_qty) at each non-empty tick. It
// stops as soon as order is fully filled.
func (e *PartialFillExchange) walkAsks(order *simtypes.Order, ts int64, fromTick, toTick int64, maker bool) error {
	for t := fromTick; t <= toTick; t++ {
		qty := e.Depth.AskQtyAtTick(t)
		if qty > 0 {
			execQty := math.Min(qty, order.LeavesQty)
			if err := e.fill(order, ts, maker, t, execQty, false); err != nil {
				return err
			}
		}
		if order.Status.Terminal() {
			return nil
		}
	}
	return nil
}

// walkBids mirrors walkAsks for the bid side; fromTick counts down to
// toTick.
func (e *PartialFillExchange) walkBids(order *simtypes.Order, ts int64, fromTick, toTick int64, maker bool) error {
	for t := fromTick; t >= toTick; t-- {
		qty := e.Depth.BidQtyAtTick(t)
		if qty > 0 {
			execQty := math.Min(qty, order.LeavesQty)
			if err := e.fill(order, ts, maker, t, execQty, false); err != nil {
				return err
			}
		}
		if order.Status.Terminal() {
			return nil
		}
	}
	return nil
}

// askLiquidityCovers reports whether the displayed ask quantity between
// fromTick and toTick (inclusive) sums, in whole lots, to at least qty —
// the feasibility check FOK needs before committing to any fill.
func (e *PartialFillExchange) askLiquidityCovers(fromTick, toTick int64, qty float64) bool {
	var cum float64
	for t := fromTick; t <= toTick; t++ {
		cum += e.Depth.AskQtyAtTick(t)
		if simtypes.RoundToLot(cum, e.Depth.LotSize()) >= simtypes.RoundToLot(qty, e.Depth.LotSize()) {
			return true
		}
	}
	return false
}

// bidLiquidityCovers is the mirror of askLiquidityCovers for the bid side.
func (e *PartialFillExchange) bidLiquidityCovers(fromTick, toTick int64, qty float64) bool {
	var cum float64
	for t := toTick; t >= fromTick; t-- {
		cum += e.Depth.BidQtyAtTick(t)
		if simtypes.RoundToLot(cum, e.Depth.LotSize()) >= simtypes.RoundToLot(qty, e.Depth.LotSize()) {
			return true
		}
	}
	return false
}

// AckCancel is identical to NoPartialFillExchange.AckCancel.
func (e *PartialFillExchange) AckCancel(order *simtypes.Order, ts int64) error {
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

// AckModify is identical in rule to NoPartialFillExchange.AckModify.
func (e *PartialFillExchange) AckModify(order *simtypes.Order, ts int64, resetQueuePos bool) error {
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

// Process applies one exchange-visible feed event the same way
// NoPartialFillExchange.Process does: depth updates may move the touch
// through resting orders, and trade prints advance or complete resting
// orders' queue positions — except here a trade print may only partially
// consume each order it reaches.
func (e *PartialFillExchange) Process(ev simtypes.Event) error {
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
					if err := e.checkSellFilled(order, priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		} else {
			for t := bestBid + 1; t <= priceTick; t++ {
				for id := range e.sellOrders[t] {
					if err := e.checkSellFilled(e.orders[id], priceTick, ev.Qty, ev.ExchTs); err != nil {
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
					if err := e.checkBuyFilled(order, priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		} else {
			for t := priceTick; t < bestAsk; t++ {
				for id := range e.buyOrders[t] {
					if err := e.checkBuyFilled(e.orders[id], priceTick, ev.Qty, ev.ExchTs); err != nil {
						return err
					}
				}
			}
		}
		e.removeFilledOrders()
	}
	return nil
}

// ProcessRecvOrder mirrors NoPartialFillExchange.ProcessRecvOrder.
func (e *PartialFillExchange) ProcessRecvOrder(ts int64) error {
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
