package feed

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hftsim/backtest/simtypes"
)

func TestCursorFiltersByVisibility(t *testing.T) {
	events := []simtypes.Event{
		{Flags: simtypes.LocalFlag, LocalTs: 10},
		{Flags: simtypes.ExchFlag, ExchTs: 20},
		{Flags: simtypes.LocalFlag, LocalTs: 30},
	}
	c := NewCursor(events, simtypes.LocalFlag)

	ts, ok := c.Initialize()
	if !ok || ts != 10 {
		t.Fatalf("expected first local event at 10, got %d (ok=%v)", ts, ok)
	}
	ts, ok = c.Advance()
	if !ok || ts != 30 {
		t.Fatalf("expected next local event at 30, got %d (ok=%v)", ts, ok)
	}
	if _, ok = c.Advance(); ok {
		t.Fatalf("expected end of data after the last local event")
	}
}

func TestCursorInitializeEmptyIsNotOk(t *testing.T) {
	c := NewCursor(nil, simtypes.ExchFlag)
	if _, ok := c.Initialize(); ok {
		t.Fatalf("expected no event from an empty feed")
	}
}

func TestLoadEventsFromFileRoundTrips(t *testing.T) {
	events := []simtypes.Event{
		{Flags: simtypes.LocalFlag | simtypes.ExchFlag | simtypes.TradeEvent, LocalTs: 1, ExchTs: 1, Px: 100, Qty: 1},
	}
	raw, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "feed.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	got, err := LoadEventsFromFile(path)
	if err != nil {
		t.Fatalf("LoadEventsFromFile: %v", err)
	}
	if len(got) != 1 || got[0].Px != 100 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestLoadEventsFromFileMissing(t *testing.T) {
	if _, err := LoadEventsFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected an error for a missing feed file")
	}
}
