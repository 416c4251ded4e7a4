package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validYAML = `
logging:
  level: debug
assets:
  - symbol: BTCUSDT
    data_path: btcusdt.json
    tick_size: 0.1
    lot_size: 0.001
    exchange: no_partial_fill
    asset_type: linear
    depth_kind: hashmap
    entry_latency_ns: 1000
    response_latency_ns: 1000
    maker_fee_rate: -0.0001
    taker_fee_rate: 0.0004
    trades_capacity: 100
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, validYAML)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Len(t, cfg.Assets, 1)
	require.Equal(t, "BTCUSDT", cfg.Assets[0].Symbol)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverridesLoggingLevel(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("HFTSIM_LOGGING_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "error", cfg.Logging.Level)
}

func TestValidateRejectsEmptyAssets(t *testing.T) {
	cfg := &Config{}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownExchange(t *testing.T) {
	cfg := &Config{Assets: []AssetConfig{{
		Symbol: "X", TickSize: 1, LotSize: 1,
		Exchange: "bogus", AssetType: "linear", DepthKind: "hashmap",
	}}}
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresROIBoundsForROIDepth(t *testing.T) {
	cfg := &Config{Assets: []AssetConfig{{
		Symbol: "X", TickSize: 1, LotSize: 1,
		Exchange: "no_partial_fill", AssetType: "linear", DepthKind: "roi_vector",
		ROILowerPx: 100, ROIUpperPx: 100,
	}}}
	require.Error(t, cfg.Validate())
}
