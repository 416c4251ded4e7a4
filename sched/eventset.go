// Package sched implements the EventSet scheduler (spec §4.7): the total
// order over per-asset local-feed, exchange-feed, order-send, and
// order-receive timestamps that the backtest driver pops from on every
// iteration. It is the single place total event ordering is decided, so
// every other processor package can stay ignorant of cross-asset interleaving.
package sched

import "math"

// Kind identifies which of an asset's four timestamp slots an Event came
// from.
type Kind int

const (
	// LocalData is the asset's local-visible feed cursor.
	LocalData Kind = iota
	// LocalOrder is the earliest response waiting on the exchange-to-local
	// bus (an order response becoming visible to Local).
	LocalOrder
	// ExchData is the asset's exchange-visible feed cursor.
	ExchData
	// ExchOrder is the earliest request waiting on the local-to-exchange
	// bus (an order request becoming visible to Exchange).
	ExchOrder
)

// invalid marks a slot as having no further events (end of data).
const invalid = int64(math.MaxInt64)

// Event is the next thing the driver should process: the asset and which
// of its four slots produced the smallest timestamp.
type Event struct {
	AssetNo   int
	Kind      Kind
	Timestamp int64
}

// priority ranks kinds for the same-timestamp tiebreak required by spec
// §4.7: ExchData before ExchOrder before LocalData before LocalOrder, so
// exchange-side state (the book, resting orders) always advances before
// the bot observes anything dated at the same instant.
func priority(k Kind) int {
	switch k {
	case ExchData:
		return 0
	case ExchOrder:
		return 1
	case LocalData:
		return 2
	default: // LocalOrder
		return 3
	}
}

// EventSet tracks the four timestamp slots per asset and hands out the
// globally next event across all assets and slots.
type EventSet struct {
	localData  []int64
	localOrder []int64
	exchData   []int64
	exchOrder  []int64
}

// New constructs an EventSet for numAssets assets, all slots starting
// invalid until populated via the Update* methods.
func New(numAssets int) *EventSet {
	es := &EventSet{
		localData:  make([]int64, numAssets),
		localOrder: make([]int64, numAssets),
		exchData:   make([]int64, numAssets),
		exchOrder:  make([]int64, numAssets),
	}
	for i := 0; i < numAssets; i++ {
		es.localData[i] = invalid
		es.localOrder[i] = invalid
		es.exchData[i] = invalid
		es.exchOrder[i] = invalid
	}
	return es
}

// UpdateLocalData sets asset asset_no's local-feed slot to ts.
func (es *EventSet) UpdateLocalData(assetNo int, ts int64) { es.localData[assetNo] = ts }

// InvalidateLocalData marks asset asset_no's local-feed slot as exhausted.
func (es *EventSet) InvalidateLocalData(assetNo int) { es.localData[assetNo] = invalid }

// UpdateExchData sets asset asset_no's exchange-feed slot to ts.
func (es *EventSet) UpdateExchData(assetNo int, ts int64) { es.exchData[assetNo] = ts }

// InvalidateExchData marks asset asset_no's exchange-feed slot as exhausted.
func (es *EventSet) InvalidateExchData(assetNo int) { es.exchData[assetNo] = invalid }

// UpdateLocalOrder sets asset asset_no's order-response slot to ts.
func (es *EventSet) UpdateLocalOrder(assetNo int, ts int64) { es.localOrder[assetNo] = ts }

// UpdateExchOrder sets asset asset_no's order-request slot to ts.
func (es *EventSet) UpdateExchOrder(assetNo int, ts int64) { es.exchOrder[assetNo] = ts }

// Next returns the globally earliest pending event across all assets and
// slots, or ok=false if every slot is invalid (the run is over).
func (es *EventSet) Next() (ev Event, ok bool) {
	best := Event{Timestamp: invalid}
	found := false

	consider := func(assetNo int, kind Kind, ts int64) {
		if ts == invalid {
			return
		}
		if !found || ts < best.Timestamp ||
			(ts == best.Timestamp && priority(kind) < priority(best.Kind)) {
			best = Event{AssetNo: assetNo, Kind: kind, Timestamp: ts}
			found = true
		}
	}

	for i := range es.localData {
		consider(i, ExchData, es.exchData[i])
		consider(i, ExchOrder, es.exchOrder[i])
		consider(i, LocalData, es.localData[i])
		consider(i, LocalOrder, es.localOrder[i])
	}

	return best, found
}
