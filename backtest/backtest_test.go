package backtest_test

import (
	"testing"

	"github.com/hftsim/backtest/backtest"
	"github.com/hftsim/backtest/bus"
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/models"
	"github.com/hftsim/backtest/proc/exchange"
	"github.com/hftsim/backtest/proc/local"
	"github.com/hftsim/backtest/queue"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"
)

func newSingleAssetBacktest(t *testing.T) *backtest.Backtest {
	t.Helper()

	localDepth := depth.NewHashMapMarketDepth(0.1, 0.001)
	exchDepth := depth.NewHashMapMarketDepth(0.1, 0.001)
	localState := state.New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0})
	exchState := state.New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0})
	latency := models.ConstantLatencyModel{Entry: 10, Response: 5}
	l2e := bus.NewLocalToExch()
	e2l := bus.NewExchToLocal()

	loc := local.New(localDepth, localState, latency, l2e, e2l, 10)
	exch := exchange.NewNoPartialFillExchange(exchDepth, exchState, queue.RiskAdverseModel{}, l2e, e2l, latency)

	events := []simtypes.Event{
		{
			Flags:   simtypes.LocalFlag | simtypes.ExchFlag | simtypes.SellFlag | simtypes.DepthEvent,
			Px:      101.0, Qty: 5.0, LocalTs: 0, ExchTs: 0,
		},
	}
	loc.SetFeed(events)
	exch.SetFeed(events)

	return backtest.New([]backtest.Asset{{Local: loc, Exch: exch}})
}

func TestGotoEndLoadsInitialDepthOnBothSides(t *testing.T) {
	bt := newSingleAssetBacktest(t)
	if _, err := bt.GotoEnd(); err != nil {
		t.Fatalf("GotoEnd: %v", err)
	}

	d, err := bt.Depth(0)
	if err != nil {
		t.Fatalf("Depth: %v", err)
	}
	if d.BestAsk() != 101.0 {
		t.Fatalf("expected local depth to reflect the seeded ask, got %v", d.BestAsk())
	}
}

func TestSubmitBuyOrderWaitsForCrossingFill(t *testing.T) {
	bt := newSingleAssetBacktest(t)
	if _, err := bt.GotoEnd(); err != nil {
		t.Fatalf("GotoEnd: %v", err)
	}

	ok, err := bt.SubmitBuyOrder(0, 1, 101.0, 1.0, simtypes.GTC, simtypes.Limit, true)
	if err != nil {
		t.Fatalf("SubmitBuyOrder: %v", err)
	}
	// GotoEnd already consumed the only feed event, so once the response is
	// merged the wait runs into end of data and reports false.
	if ok {
		t.Fatalf("expected end of data after the order's response was merged")
	}

	pos, err := bt.Position(0)
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if pos != 1.0 {
		t.Fatalf("expected a filled position of 1.0, got %v", pos)
	}

	orders, err := bt.Orders(0)
	if err != nil {
		t.Fatalf("Orders: %v", err)
	}
	if o, ok := orders[1]; ok && o.Status != simtypes.Filled {
		t.Fatalf("expected order 1 to be filled, got %v", o.Status)
	}
}

func TestUnknownAssetNoIsRejected(t *testing.T) {
	bt := newSingleAssetBacktest(t)
	if _, err := bt.Position(5); err == nil {
		t.Fatalf("expected an out-of-range asset number to fail")
	}
}
