package fixture

import (
	"path/filepath"
	"testing"

	"github.com/hftsim/backtest/feed"
	"github.com/hftsim/backtest/simtypes"
)

func TestGenerateDeterministicFeedProducesCrossingTrade(t *testing.T) {
	script := []Order{
		{Side: simtypes.Sell, Price: 101.0, Qty: 1.0, Timestamp: 1},
		{Side: simtypes.Buy, Price: 101.0, Qty: 1.0, Timestamp: 2},
	}
	events := GenerateDeterministicFeed("BTCUSDT", 0.1, 0.001, script)

	var sawTrade bool
	for _, ev := range events {
		if ev.Flags.Has(simtypes.TradeEvent) {
			sawTrade = true
		}
	}
	if !sawTrade {
		t.Fatalf("expected a crossing order pair to produce at least one trade event")
	}
}

func TestWriteFeedFileRoundTripsWithLoader(t *testing.T) {
	script := []Order{
		{Side: simtypes.Sell, Price: 101.0, Qty: 1.0, Timestamp: 1},
	}
	events := GenerateDeterministicFeed("BTCUSDT", 0.1, 0.001, script)

	path := filepath.Join(t.TempDir(), "feed.json")
	if err := WriteFeedFile(path, events); err != nil {
		t.Fatalf("WriteFeedFile: %v", err)
	}

	loaded, err := feed.LoadEventsFromFile(path)
	if err != nil {
		t.Fatalf("LoadEventsFromFile: %v", err)
	}
	if len(loaded) != len(events) {
		t.Fatalf("expected %d events round-tripped, got %d", len(events), len(loaded))
	}
}
