// Package builder constructs a backtest.Backtest's per-asset processor
// stack from a config.Config, following the same assembly the driver's
// own tests wire by hand: one depth, one state, one queue model, one pair
// of order buses, and a Local/Exchange processor pair sharing them.
package builder

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hftsim/backtest/backtest"
	"github.com/hftsim/backtest/bus"
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/feed"
	"github.com/hftsim/backtest/logging"
	"github.com/hftsim/backtest/metrics"
	"github.com/hftsim/backtest/models"
	"github.com/hftsim/backtest/proc/exchange"
	"github.com/hftsim/backtest/proc/local"
	"github.com/hftsim/backtest/queue"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"

	"github.com/hftsim/backtest/config"
)

// BuildAsset assembles one config.AssetConfig into a backtest.Asset: a
// depth/state/queue-model stack, an order bus pair, and the Local/Exchange
// processor pair that reads the asset's feed file. When collector is
// non-nil, the asset's Local and Exchange processors report their run
// counters against it under cfg.Symbol.
func BuildAsset(cfg config.AssetConfig, log logging.Logger, collector *metrics.Collector) (backtest.Asset, error) {
	d, err := newDepth(cfg)
	if err != nil {
		return backtest.Asset{}, err
	}

	assetType, err := newAssetType(cfg.AssetType)
	if err != nil {
		return backtest.Asset{}, err
	}
	fee := models.TieredFeeModel{MakerRate: cfg.MakerFeeRate, TakerRate: cfg.TakerFeeRate}

	localState := state.New(assetType, fee)
	exchState := state.New(assetType, fee)

	latency, err := newLatencyModel(cfg)
	if err != nil {
		return backtest.Asset{}, err
	}

	qm, err := newQueueModel(cfg.QueueModel)
	if err != nil {
		return backtest.Asset{}, err
	}

	ordersL2E := bus.NewLocalToExch()
	ordersE2L := bus.NewExchToLocal()

	loc := local.New(d, localState, latency, ordersL2E, ordersE2L, cfg.TradesCapacity)
	loc.SetLogger(log)
	loc.SetMetrics(cfg.Symbol, collector)

	exchDepth, err := newDepth(cfg)
	if err != nil {
		return backtest.Asset{}, err
	}
	exch, err := newExchProcessor(cfg.Exchange, exchDepth, exchState, qm, ordersL2E, ordersE2L, latency)
	if err != nil {
		return backtest.Asset{}, err
	}
	exch.SetMetrics(cfg.Symbol, collector)

	events, err := feed.LoadEventsFromFile(cfg.DataPath)
	if err != nil {
		return backtest.Asset{}, err
	}
	loc.SetFeed(events)
	exch.SetFeed(events)

	return backtest.Asset{Symbol: cfg.Symbol, Local: loc, Exch: exch, Metrics: collector}, nil
}

// exchProcessor is the subset of backtest.ExchProcessor plus SetFeed that
// both exchange.NoPartialFillExchange and exchange.PartialFillExchange
// implement; the builder needs SetFeed, which the driver itself does not.
type exchProcessor interface {
	backtest.ExchProcessor
	SetFeed(events []simtypes.Event)
	SetMetrics(symbol string, m *metrics.Collector)
}

func newExchProcessor(kind string, d depth.MarketDepth, st *state.State, qm queue.Model, orderL2E *bus.LocalToExch, orderE2L *bus.ExchToLocal, latency models.LatencyModel) (exchProcessor, error) {
	switch kind {
	case "no_partial_fill":
		return exchange.NewNoPartialFillExchange(d, st, qm, orderL2E, orderE2L, latency), nil
	case "partial_fill":
		return exchange.NewPartialFillExchange(d, st, qm, orderL2E, orderE2L, latency), nil
	default:
		return nil, fmt.Errorf("unknown exchange kind %q", kind)
	}
}

func newDepth(cfg config.AssetConfig) (depth.MarketDepth, error) {
	switch cfg.DepthKind {
	case "hashmap":
		return depth.NewHashMapMarketDepth(cfg.TickSize, cfg.LotSize), nil
	case "roi_vector":
		return depth.NewROIVectorMarketDepth(cfg.TickSize, cfg.LotSize, cfg.ROILowerPx, cfg.ROIUpperPx), nil
	case "fused":
		return depth.NewFusedMarketDepth(cfg.TickSize, cfg.LotSize), nil
	default:
		return nil, fmt.Errorf("unknown depth_kind %q", cfg.DepthKind)
	}
}

func newAssetType(kind string) (models.AssetType, error) {
	switch kind {
	case "linear":
		return models.LinearAsset{}, nil
	case "inverse":
		return models.InverseAsset{}, nil
	default:
		return nil, fmt.Errorf("unknown asset_type %q", kind)
	}
}

func newLatencyModel(cfg config.AssetConfig) (models.LatencyModel, error) {
	if cfg.LatencyDataPath != "" {
		rows, err := loadLatencyRows(cfg.LatencyDataPath)
		if err != nil {
			return nil, err
		}
		return models.NewIntpLatencyModel(rows), nil
	}
	return models.ConstantLatencyModel{Entry: cfg.EntryLatencyNs, Response: cfg.ResponseLatencyNs}, nil
}

func newQueueModel(kind string) (queue.Model, error) {
	switch kind {
	case "", "risk_adverse":
		return queue.RiskAdverseModel{}, nil
	case "prob_power3":
		return queue.ProbModel{Prob: queue.Power3{N: 3}}, nil
	case "l3_fifo":
		return queue.NewL3FIFOModel(), nil
	default:
		return nil, fmt.Errorf("unknown queue_model %q", kind)
	}
}

func loadLatencyRows(path string) ([]models.LatencyRow, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read latency file %s: %w", path, err)
	}
	var rows []models.LatencyRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse latency file %s: %w", path, err)
	}
	return rows, nil
}
