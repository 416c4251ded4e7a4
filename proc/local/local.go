// Package local implements the bot-facing processor: the depth and order
// state a strategy actually observes, submit/cancel entry points, and the
// local side of applying order-entry latency and merging exchange
// responses.
package local

import (
	"go.uber.org/zap"

	"github.com/hftsim/backtest/bus"
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/feed"
	"github.com/hftsim/backtest/logging"
	"github.com/hftsim/backtest/metrics"
	"github.com/hftsim/backtest/models"
	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"
)

// Local is the processor a Bot interacts with directly: it owns the
// bot-visible depth and order map, submits/cancels orders through an
// order-entry LatencyModel, and merges responses arriving on the
// exchange-to-local bus.
type Local struct {
	orders   map[uint64]*simtypes.Order
	ordersTo *bus.LocalToExch
	ordersE2L *bus.ExchToLocal

	Depth   depth.MarketDepth
	State   *state.State
	Latency models.LatencyModel

	trades          []simtypes.Event
	tradesCap       int
	lastFeedLatency *[2]int64
	lastOrderLatency *[3]int64

	feedCursor *feed.Cursor
	log        logging.Logger

	symbol  string
	metrics *metrics.Collector
}

// New constructs a Local processor over d, wired to the given order buses.
func New(d depth.MarketDepth, st *state.State, latency models.LatencyModel, ordersTo *bus.LocalToExch, ordersE2L *bus.ExchToLocal, tradesCap int) *Local {
	return &Local{
		orders:    make(map[uint64]*simtypes.Order),
		ordersTo:  ordersTo,
		ordersE2L: ordersE2L,
		Depth:     d,
		State:     st,
		Latency:   latency,
		tradesCap: tradesCap,
		log:       logging.Nop(),
	}
}

// SetLogger installs the logger used for non-fatal warnings (e.g. a stale
// out-of-order exch_ts on a merged response). Defaults to a no-op logger.
func (l *Local) SetLogger(log logging.Logger) { l.log = log }

// SetMetrics installs the Prometheus collector events, fills, and position
// are reported against under symbol. Unset by default, in which case this
// processor records nothing.
func (l *Local) SetMetrics(symbol string, m *metrics.Collector) {
	l.symbol = symbol
	l.metrics = m
}

// SetFeed wires the local-visible event stream this processor will walk as
// the driver advances. It must be called once before InitializeData.
func (l *Local) SetFeed(events []simtypes.Event) {
	l.feedCursor = feed.NewCursor(events, simtypes.LocalFlag)
}

// InitializeData positions the feed cursor at the first local-visible
// event and returns its timestamp, or simerr.ErrEndOfData if the feed is
// empty.
func (l *Local) InitializeData() (int64, error) {
	ts, ok := l.feedCursor.Initialize()
	if !ok {
		return 0, simerr.ErrEndOfData
	}
	return ts, nil
}

// ProcessData applies the event at the feed cursor's current position and
// advances to the next local-visible event, returning its timestamp, or
// simerr.ErrEndOfData once the feed is exhausted.
func (l *Local) ProcessData() (int64, error) {
	l.ProcessDataEvent(l.feedCursor.Current())
	ts, ok := l.feedCursor.Advance()
	if !ok {
		return 0, simerr.ErrEndOfData
	}
	return ts, nil
}

// EarliestSendOrderTimestamp reports the visibility timestamp of the next
// request this processor has queued toward the exchange.
func (l *Local) EarliestSendOrderTimestamp() int64 {
	return l.ordersTo.EarliestTimestamp()
}

// EarliestRecvOrderTimestamp reports the visibility timestamp of the next
// response waiting to be merged from the exchange.
func (l *Local) EarliestRecvOrderTimestamp() int64 {
	return l.ordersE2L.EarliestTimestamp()
}

// SubmitOrder enters a new order request. A negative entry latency
// (as a LatencyModel may report for a simulated rejection, e.g. a rate
// limit) rejects the order locally instead of sending it to the exchange.
func (l *Local) SubmitOrder(orderID uint64, side simtypes.Side, price, qty float64, ordType simtypes.OrdType, tif simtypes.TimeInForce, ts int64) error {
	if _, exists := l.orders[orderID]; exists {
		return simerr.ErrOrderIDExist
	}

	priceTick := simtypes.RoundToTick(price, l.Depth.TickSize())
	order := &simtypes.Order{
		OrderID:   orderID,
		Side:      side,
		OrdType:   ordType,
		TIF:       tif,
		PriceTick: priceTick,
		TickSize:  l.Depth.TickSize(),
		Qty:       qty,
		LeavesQty: qty,
		Status:    simtypes.None,
		Req:       simtypes.ReqNew,
		LocalTs:   ts,
	}
	l.orders[orderID] = order

	if l.metrics != nil {
		l.metrics.OrdersSubmitted.WithLabelValues(l.symbol, side.String()).Inc()
	}

	entryLatency := l.Latency.EntryLatency(ts)
	if entryLatency < 0 {
		rejected := *order
		rejected.Req = simtypes.ReqNone
		rejected.Status = simtypes.Rejected
		l.ordersE2L.Append(rejected, ts-entryLatency)
	} else {
		l.ordersTo.Append(*order, ts+entryLatency)
	}
	return nil
}

// Cancel enters a cancel request for a resting order. It returns
// ErrOrderRequestInProcess if the order already has a request in flight,
// and ErrOrderNotFound if it is unknown locally.
func (l *Local) Cancel(orderID uint64, ts int64) error {
	order, ok := l.orders[orderID]
	if !ok {
		return simerr.ErrOrderNotFound
	}
	if order.Req != simtypes.ReqNone {
		return simerr.ErrOrderRequestInProcess
	}

	order.Req = simtypes.ReqCanceled
	entryLatency := l.Latency.EntryLatency(ts)
	if entryLatency < 0 {
		rejected := *order
		rejected.Req = simtypes.ReqNone
		l.ordersE2L.Append(rejected, ts-entryLatency)
	} else {
		l.ordersTo.Append(*order, ts+entryLatency)
	}
	return nil
}

// Modify enters a replace request for a resting order's price and/or
// quantity, subject to the same in-flight and existence checks as Cancel.
func (l *Local) Modify(orderID uint64, price, qty float64, ts int64) error {
	order, ok := l.orders[orderID]
	if !ok {
		return simerr.ErrOrderNotFound
	}
	if order.Req != simtypes.ReqNone {
		return simerr.ErrOrderRequestInProcess
	}

	order.Req = simtypes.ReqReplaced
	order.PriceTick = simtypes.RoundToTick(price, l.Depth.TickSize())
	order.Qty = qty
	order.LeavesQty = qty

	entryLatency := l.Latency.EntryLatency(ts)
	if entryLatency < 0 {
		rejected := *order
		rejected.Req = simtypes.ReqNone
		l.ordersE2L.Append(rejected, ts-entryLatency)
	} else {
		l.ordersTo.Append(*order, ts+entryLatency)
	}
	return nil
}

// ClearInactiveOrders drops locally tracked orders that have reached a
// terminal status and need no further bookkeeping.
func (l *Local) ClearInactiveOrders() {
	for id, order := range l.orders {
		if order.Status.Terminal() {
			delete(l.orders, id)
		}
	}
}

// Orders returns the bot-visible order map.
func (l *Local) Orders() map[uint64]*simtypes.Order { return l.orders }

// MarketDepth returns the bot-visible depth.
func (l *Local) MarketDepth() depth.MarketDepth { return l.Depth }

// StateValues returns the bot-visible account state.
func (l *Local) StateValues() *state.State { return l.State }

// Position returns the current net position.
func (l *Local) Position() float64 {
	p, _ := l.State.Position.Float64()
	return p
}

// LastTrades returns the trade prints buffered since the last ClearLastTrades.
func (l *Local) LastTrades() []simtypes.Event { return l.trades }

// ClearLastTrades empties the trade print buffer.
func (l *Local) ClearLastTrades() { l.trades = l.trades[:0] }

// FeedLatency returns the last observed (exch_ts, local_ts) feed pair, if any.
func (l *Local) FeedLatency() (exchTs, localTs int64, ok bool) {
	if l.lastFeedLatency == nil {
		return 0, 0, false
	}
	return l.lastFeedLatency[0], l.lastFeedLatency[1], true
}

// OrderLatency returns the last observed (local_ts, exch_ts, recv_ts)
// round trip, if any.
func (l *Local) OrderLatency() (localTs, exchTs, recvTs int64, ok bool) {
	if l.lastOrderLatency == nil {
		return 0, 0, 0, false
	}
	return l.lastOrderLatency[0], l.lastOrderLatency[1], l.lastOrderLatency[2], true
}

// ProcessDataEvent applies one local-visible feed event to the bot-visible
// depth, buffering it if it is a trade print and tradesCap > 0.
func (l *Local) ProcessDataEvent(ev simtypes.Event) {
	switch {
	case ev.Flags.Has(simtypes.DepthClearEvent) && ev.Flags.Has(simtypes.BuyFlag):
		l.Depth.ClearDepth(simtypes.Buy, ev.Px)
	case ev.Flags.Has(simtypes.DepthClearEvent) && ev.Flags.Has(simtypes.SellFlag):
		l.Depth.ClearDepth(simtypes.Sell, ev.Px)
	case ev.Flags.Has(simtypes.DepthClearEvent):
		l.Depth.ClearDepth(0, 0)
	case ev.Flags.Has(simtypes.BuyFlag) && (ev.Flags.Has(simtypes.DepthEvent) || ev.Flags.Has(simtypes.DepthSnapshotEvent)):
		l.Depth.UpdateBidDepth(ev.Px, ev.Qty, ev.LocalTs)
	case ev.Flags.Has(simtypes.SellFlag) && (ev.Flags.Has(simtypes.DepthEvent) || ev.Flags.Has(simtypes.DepthSnapshotEvent)):
		l.Depth.UpdateAskDepth(ev.Px, ev.Qty, ev.LocalTs)
	case ev.Flags.Has(simtypes.TradeEvent):
		if l.tradesCap > 0 {
			l.trades = append(l.trades, ev)
		}
	}
	l.lastFeedLatency = &[2]int64{ev.ExchTs, ev.LocalTs}
}

// ProcessRecvOrder drains responses visible by ts from the exchange-to-
// local bus and merges them into local order state, reporting whether the
// response for waitRespOrderID (if any) arrived.
func (l *Local) ProcessRecvOrder(ts int64, waitRespOrderID *uint64) bool {
	received := false
	for l.ordersE2L.Len() > 0 && l.ordersE2L.EarliestTimestamp() == ts {
		order, recvTs := l.ordersE2L.Pop()

		if order.ExchTs > 0 {
			l.lastOrderLatency = &[3]int64{order.LocalTs, order.ExchTs, recvTs}
			if l.metrics != nil && recvTs > order.ExchTs {
				l.metrics.ResponseLatencyUs.WithLabelValues(l.symbol).Observe(float64(recvTs-order.ExchTs) / 1000.0)
			}
		}
		if waitRespOrderID != nil && order.OrderID == *waitRespOrderID {
			received = true
		}
		l.mergeRecvOrder(order)
	}
	return received
}

func (l *Local) mergeRecvOrder(order simtypes.Order) {
	if order.Status == simtypes.Filled || order.Status == simtypes.PartiallyFilled {
		side := 1
		if order.Side == simtypes.Sell {
			side = -1
		}
		l.State.ApplyFill(side, float64(order.ExecPriceTick)*order.TickSize, order.ExecQty, order.Maker)
		if l.metrics != nil {
			l.metrics.OpenPosition.WithLabelValues(l.symbol).Set(l.State.Position.InexactFloat64())
		}
	}

	local, exists := l.orders[order.OrderID]
	if !exists {
		if order.Status != simtypes.Rejected {
			o := order
			l.orders[order.OrderID] = &o
		}
		return
	}

	if order.Status == simtypes.Rejected {
		if order.LocalTs == local.LocalTs {
			if local.Req == simtypes.ReqNew {
				local.Req = simtypes.ReqNone
				local.Status = simtypes.Expired
			} else {
				local.Req = simtypes.ReqNone
			}
		}
		return
	}
	if stale := local.Update(&order); stale {
		l.log.Warn("stale order response exch_ts",
			zap.Uint64("order_id", order.OrderID),
			zap.Int64("local_exch_ts", local.ExchTs),
			zap.Int64("resp_exch_ts", order.ExchTs))
	}
}
