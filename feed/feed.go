// Package feed holds the replayed historical event stream each processor
// walks independently: a timestamp-sorted slice of simtypes.Event, visible
// to a processor only through its LocalFlag/ExchFlag bit (spec §6, "Event
// input data format"). The in-memory cursor here stands in for the
// teacher's chunked file reader, which this kernel's backtest scope does
// not need: a single run's data comfortably fits in memory.
package feed

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hftsim/backtest/simtypes"
)

// LoadEventsFromFile reads a feed file: a JSON array of simtypes.Event,
// sorted ascending by the timestamp relevant to each event's visibility
// bit. The original ships a compressed npz columnar format; this kernel
// takes JSON instead since it needs no extra dependency to read or, for
// test fixtures, to write.
func LoadEventsFromFile(path string) ([]simtypes.Event, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed file %s: %w", path, err)
	}
	var events []simtypes.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("parse feed file %s: %w", path, err)
	}
	return events, nil
}

// Cursor walks a feed's events filtered to a single visibility bit,
// tracking the position of the next unconsumed event of that kind.
type Cursor struct {
	events     []simtypes.Event
	visibility simtypes.EventFlag
	idx        int
}

// NewCursor constructs a cursor over events, exposing only those visible
// to the given bit (simtypes.LocalFlag or simtypes.ExchFlag).
func NewCursor(events []simtypes.Event, visibility simtypes.EventFlag) *Cursor {
	return &Cursor{events: events, visibility: visibility}
}

// Initialize positions the cursor at the first visible event and returns
// its timestamp. ok is false if no visible event exists (end of data).
func (c *Cursor) Initialize() (ts int64, ok bool) {
	for c.idx = 0; c.idx < len(c.events); c.idx++ {
		if c.events[c.idx].Visible(c.visibility) {
			return c.events[c.idx].Timestamp(c.visibility), true
		}
	}
	return 0, false
}

// Current returns the event at the cursor's position. The caller must only
// call this after a successful Initialize or Advance.
func (c *Cursor) Current() simtypes.Event { return c.events[c.idx] }

// Advance moves the cursor to the next visible event after the current
// position and returns its timestamp. ok is false if none remains.
func (c *Cursor) Advance() (ts int64, ok bool) {
	for c.idx++; c.idx < len(c.events); c.idx++ {
		if c.events[c.idx].Visible(c.visibility) {
			return c.events[c.idx].Timestamp(c.visibility), true
		}
	}
	return 0, false
}
