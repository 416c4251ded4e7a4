// Package bus implements the timestamp-ordered FIFO channels that carry
// order requests from the local processor to the exchange processor, and
// order responses back, each tagged with the timestamp at which the
// receiving side is allowed to observe the entry (spec §4.6).
package bus

import (
	"math"

	"github.com/hftsim/backtest/simtypes"
)

// entry pairs a payload with the timestamp the receiving processor may
// observe it at, honoring the entry/response latency that was applied
// before pushing into the bus.
type entry struct {
	ts      int64
	payload simtypes.Order
}

// OrderBus is a single-producer, single-consumer FIFO of Order payloads,
// each gated by a visibility timestamp. Entries are pushed in the order
// they are submitted and always pop in that same order: visibility
// timestamps are expected non-decreasing because the latency model is
// applied at push time relative to a monotonically advancing clock.
type OrderBus struct {
	entries []entry
}

// New constructs an empty bus.
func New() *OrderBus { return &OrderBus{} }

// Append pushes a payload visible at ts.
func (b *OrderBus) Append(order simtypes.Order, ts int64) {
	b.entries = append(b.entries, entry{ts: ts, payload: order})
}

// Len reports the number of entries currently queued.
func (b *OrderBus) Len() int { return len(b.entries) }

// EarliestTimestamp returns the visibility timestamp of the front entry,
// or math.MaxInt64 if the bus is empty, so schedulers can compare it
// directly against other event timestamps without a presence check.
func (b *OrderBus) EarliestTimestamp() int64 {
	if len(b.entries) == 0 {
		return math.MaxInt64
	}
	return b.entries[0].ts
}

// Pop removes and returns the front entry. It panics if the bus is empty;
// callers must check Len or EarliestTimestamp first.
func (b *OrderBus) Pop() (simtypes.Order, int64) {
	e := b.entries[0]
	b.entries = b.entries[1:]
	return e.payload, e.ts
}

// Peek returns the front entry without removing it.
func (b *OrderBus) Peek() (simtypes.Order, int64) {
	e := b.entries[0]
	return e.payload, e.ts
}

// ExchToLocal is the exchange-to-local direction of the order bus; it is a
// distinct named type from OrderBus so processor code reads unambiguously
// about which direction a given bus reference flows.
type ExchToLocal struct {
	OrderBus
}

// NewExchToLocal constructs an empty exchange-to-local bus.
func NewExchToLocal() *ExchToLocal { return &ExchToLocal{} }

// LocalToExch is the local-to-exchange direction of the order bus.
type LocalToExch struct {
	OrderBus
}

// NewLocalToExch constructs an empty local-to-exchange bus.
func NewLocalToExch() *LocalToExch { return &LocalToExch{} }
