package builder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hftsim/backtest/config"
	"github.com/hftsim/backtest/logging"
	"github.com/hftsim/backtest/simtypes"
)

func writeFeedFixture(t *testing.T) string {
	t.Helper()
	events := []simtypes.Event{
		{Flags: simtypes.LocalFlag | simtypes.ExchFlag | simtypes.DepthEvent | simtypes.BuyFlag, Px: 100.0, Qty: 1.0, LocalTs: 1, ExchTs: 1},
	}
	raw, err := json.Marshal(events)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "feed.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestBuildAssetAssemblesAHashMapNoPartialFillStack(t *testing.T) {
	cfg := config.AssetConfig{
		Symbol:     "BTCUSDT",
		DataPath:   writeFeedFixture(t),
		TickSize:   0.1,
		LotSize:    0.001,
		Exchange:   "no_partial_fill",
		AssetType:  "linear",
		QueueModel: "risk_adverse",
		DepthKind:  "hashmap",
	}

	asset, err := BuildAsset(cfg, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("BuildAsset: %v", err)
	}
	if asset.Local == nil || asset.Exch == nil {
		t.Fatalf("expected both processors to be built")
	}
}

func TestBuildAssetRejectsUnknownDepthKind(t *testing.T) {
	cfg := config.AssetConfig{
		Symbol: "BTCUSDT", DataPath: writeFeedFixture(t),
		TickSize: 0.1, LotSize: 0.001,
		Exchange: "no_partial_fill", AssetType: "linear", DepthKind: "bogus",
	}
	if _, err := BuildAsset(cfg, logging.Nop(), nil); err == nil {
		t.Fatalf("expected an unknown depth_kind to fail")
	}
}

func TestBuildAssetRejectsMissingFeedFile(t *testing.T) {
	cfg := config.AssetConfig{
		Symbol: "BTCUSDT", DataPath: filepath.Join(t.TempDir(), "missing.json"),
		TickSize: 0.1, LotSize: 0.001,
		Exchange: "partial_fill", AssetType: "linear", DepthKind: "hashmap",
	}
	if _, err := BuildAsset(cfg, logging.Nop(), nil); err == nil {
		t.Fatalf("expected a missing feed file to fail")
	}
}
