// Package fixture generates deterministic synthetic feed files for the
// backtest kernel. It runs a scripted sequence of orders through a small
// price-time priority matcher and records the resulting depth and trade
// events as simtypes.Event, in the same JSON shape feed.LoadEventsFromFile
// reads. It exists because this kernel has no connector wired (the
// connector package is interface-only) and exercising the driver end to
// end otherwise requires hand-authored fixture files.
package fixture

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/hftsim/backtest/simtypes"
)

// Order is one scripted order fed into the matcher while generating a
// fixture.
type Order struct {
	Side      simtypes.Side
	Price     float64
	Qty       float64
	Timestamp int64
}

// resting is a book entry still waiting to be matched.
type resting struct {
	price float64
	qty   float64
}

// book holds the matcher's state for a single symbol: one price-time
// priority queue per side. Orders are inserted and scanned in place rather
// than through a heap — fixture scripts are small and generated once per
// run, so the simplicity is worth more than heap.Interface's O(log n)
// push/pop.
type book struct {
	bids []resting // highest price first
	asks []resting // lowest price first
}

// tradeLeg is one execution match produces, reported as a trade print at
// the resting order's price — the same price-setting convention the
// exchange processors use for maker fills.
type tradeLeg struct {
	price float64
	qty   float64
}

// GenerateDeterministicFeed runs script through a single symbol's book and
// returns the resulting depth and trade events, interleaved in submission
// order and visible to both the local and exchange side (the feed format
// has no notion of a synthetic/live split).
func GenerateDeterministicFeed(symbol string, tickSize, lotSize float64, script []Order) []simtypes.Event {
	// tickSize/lotSize aren't applied to the matcher itself (it matches on
	// raw prices); they're accepted here so a caller generating a fixture
	// for a given config.AssetConfig doesn't need a second source of truth
	// for the asset's rounding granularity.
	b := &book{}

	var events []simtypes.Event
	for _, o := range script {
		for _, tr := range b.match(o) {
			events = append(events, simtypes.Event{
				Flags:   simtypes.LocalFlag | simtypes.ExchFlag | simtypes.SellFlag | simtypes.TradeEvent,
				Px:      tr.price,
				Qty:     tr.qty,
				LocalTs: o.Timestamp,
				ExchTs:  o.Timestamp,
			})
		}
		events = append(events, b.depthEvents(o.Timestamp)...)
	}
	return events
}

// match runs o against the opposite side of the book in price-time
// priority, consuming resting quantity until o is exhausted or the book no
// longer crosses it, then rests whatever remains of o.
func (b *book) match(o Order) []tradeLeg {
	var trades []tradeLeg
	leaves := o.Qty

	if o.Side == simtypes.Buy {
		for leaves > 0 && len(b.asks) > 0 && b.asks[0].price <= o.Price {
			top := &b.asks[0]
			qty := min(leaves, top.qty)
			trades = append(trades, tradeLeg{price: top.price, qty: qty})
			leaves -= qty
			top.qty -= qty
			if top.qty <= 0 {
				b.asks = b.asks[1:]
			}
		}
		if leaves > 0 {
			b.insertBid(resting{price: o.Price, qty: leaves})
		}
	} else {
		for leaves > 0 && len(b.bids) > 0 && b.bids[0].price >= o.Price {
			top := &b.bids[0]
			qty := min(leaves, top.qty)
			trades = append(trades, tradeLeg{price: top.price, qty: qty})
			leaves -= qty
			top.qty -= qty
			if top.qty <= 0 {
				b.bids = b.bids[1:]
			}
		}
		if leaves > 0 {
			b.insertAsk(resting{price: o.Price, qty: leaves})
		}
	}
	return trades
}

func (b *book) insertBid(r resting) {
	b.bids = append(b.bids, r)
	sort.SliceStable(b.bids, func(i, j int) bool { return b.bids[i].price > b.bids[j].price })
}

func (b *book) insertAsk(r resting) {
	b.asks = append(b.asks, r)
	sort.SliceStable(b.asks, func(i, j int) bool { return b.asks[i].price < b.asks[j].price })
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// depthEvents reports the current best bid/ask as L1 depth events. A real
// feed would carry every level that changed; a fixture only needs enough
// depth for the queue models under test to have a touch to react to.
func (b *book) depthEvents(ts int64) []simtypes.Event {
	var out []simtypes.Event
	if len(b.bids) > 0 {
		out = append(out, simtypes.Event{
			Flags:   simtypes.LocalFlag | simtypes.ExchFlag | simtypes.BuyFlag | simtypes.DepthEvent,
			Px:      b.bids[0].price,
			Qty:     b.bids[0].qty,
			LocalTs: ts,
			ExchTs:  ts,
		})
	}
	if len(b.asks) > 0 {
		out = append(out, simtypes.Event{
			Flags:   simtypes.LocalFlag | simtypes.ExchFlag | simtypes.SellFlag | simtypes.DepthEvent,
			Px:      b.asks[0].price,
			Qty:     b.asks[0].qty,
			LocalTs: ts,
			ExchTs:  ts,
		})
	}
	return out
}

// WriteFeedFile marshals events to path as the JSON array
// feed.LoadEventsFromFile expects.
func WriteFeedFile(path string, events []simtypes.Event) error {
	raw, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal feed events: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write feed file %s: %w", path, err)
	}
	return nil
}
