package queue

import (
	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
)

// L3OrderSource tags whether an order resting in an L3FIFOModel queue came
// from the replayed market feed or from the backtest itself.
type L3OrderSource int

const (
	SourceMarket L3OrderSource = iota
	SourceBacktest
)

// L3OrderID identifies a resting order by its feed-assigned or
// backtest-assigned ID plus its source, since the two ID spaces can
// collide.
type L3OrderID struct {
	ID     uint64
	Source L3OrderSource
}

func idOf(o simtypes.Order) L3OrderID {
	return L3OrderID{ID: o.OrderID, Source: o.Q.(L3OrderSource)}
}

// L3FIFOModel backtests a market-by-order feed under strict price-time
// priority: every order, market and backtest alike, sits in one FIFO queue
// per price level and fills in queue order. A backtest order is treated as
// filled when a market order queued behind it at the same level fills.
type L3FIFOModel struct {
	locations map[L3OrderID]struct {
		side simtypes.Side
		tick int64
	}
	bidQueue map[int64][]simtypes.Order
	askQueue map[int64][]simtypes.Order
}

// NewL3FIFOModel constructs an empty L3 FIFO queue model.
func NewL3FIFOModel() *L3FIFOModel {
	return &L3FIFOModel{
		locations: make(map[L3OrderID]struct {
			side simtypes.Side
			tick int64
		}),
		bidQueue: make(map[int64][]simtypes.Order),
		askQueue: make(map[int64][]simtypes.Order),
	}
}

func (m *L3FIFOModel) queueFor(side simtypes.Side) map[int64][]simtypes.Order {
	if side == simtypes.Buy {
		return m.bidQueue
	}
	return m.askQueue
}

// AddOrder inserts an order at the back of its price level's FIFO queue.
func (m *L3FIFOModel) AddOrder(id L3OrderID, order simtypes.Order) error {
	if _, exists := m.locations[id]; exists {
		return simerr.ErrOrderIDExist
	}
	order.Q = id.Source
	q := m.queueFor(order.Side)
	q[order.PriceTick] = append(q[order.PriceTick], order)
	m.locations[id] = struct {
		side simtypes.Side
		tick int64
	}{order.Side, order.PriceTick}
	return nil
}

// CancelOrder removes and returns an order from its queue, wherever it
// sits within the level (not necessarily at the front).
func (m *L3FIFOModel) CancelOrder(id L3OrderID) (simtypes.Order, error) {
	loc, ok := m.locations[id]
	if !ok {
		return simtypes.Order{}, simerr.ErrOrderNotFound
	}
	delete(m.locations, id)
	q := m.queueFor(loc.side)
	queue := q[loc.tick]
	for i, o := range queue {
		if idOf(o) == id {
			removed := o
			q[loc.tick] = append(queue[:i], queue[i+1:]...)
			return removed, nil
		}
	}
	return simtypes.Order{}, simerr.ErrOrderNotFound
}

// ModifyOrder updates an order in place (leaves_qty decrease, same price)
// or moves it to the back of the destination level's queue (price change
// or leaves_qty increase), losing queue priority in the latter case.
func (m *L3FIFOModel) ModifyOrder(id L3OrderID, order simtypes.Order) error {
	loc, ok := m.locations[id]
	if !ok {
		return simerr.ErrOrderNotFound
	}
	q := m.queueFor(loc.side)
	queue := q[loc.tick]

	pos := -1
	for i, o := range queue {
		if idOf(o) == id {
			if o.PriceTick != order.PriceTick || o.LeavesQty < order.LeavesQty {
				pos = i
			} else {
				queue[i].LeavesQty = order.LeavesQty
				queue[i].Qty = order.Qty
			}
			break
		}
	}
	if pos < 0 {
		return nil
	}

	prevOrder := queue[pos]
	q[loc.tick] = append(queue[:pos], queue[pos+1:]...)
	order.Q = id.Source
	dest := m.queueFor(order.Side)
	if prevOrder.PriceTick != order.PriceTick {
		dest[order.PriceTick] = append(dest[order.PriceTick], order)
		m.locations[id] = struct {
			side simtypes.Side
			tick int64
		}{order.Side, order.PriceTick}
	} else {
		q[loc.tick] = append(q[loc.tick], order)
	}
	return nil
}

// Fill removes every backtest-sourced order ahead of id in its queue (they
// are implicitly filled by the same print) and returns them; id itself is
// removed only when deleteOrder is true, mirroring venues that send fill
// and delete-order events separately.
func (m *L3FIFOModel) Fill(id L3OrderID, deleteOrder bool) ([]simtypes.Order, error) {
	loc, ok := m.locations[id]
	if !ok {
		return nil, simerr.ErrOrderNotFound
	}
	q := m.queueFor(loc.side)
	queue := q[loc.tick]

	var filled []simtypes.Order
	pos := -1
	i := 0
	for i < len(queue) {
		o := queue[i]
		if idOf(o) == id {
			pos = i
			break
		}
		if o.Q.(L3OrderSource) == SourceBacktest {
			filled = append(filled, o)
			queue = append(queue[:i], queue[i+1:]...)
			continue
		}
		i++
	}
	q[loc.tick] = queue
	if pos < 0 {
		return nil, simerr.ErrOrderNotFound
	}
	if deleteOrder {
		delete(m.locations, id)
		q[loc.tick] = append(queue[:pos], queue[pos+1:]...)
	}
	return filled, nil
}
