package queue

import (
	"testing"

	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/simtypes"
)

func TestRiskAdverseModelFillsOnTrade(t *testing.T) {
	d := depth.NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 2.0, 1)

	order := &simtypes.Order{Side: simtypes.Buy, PriceTick: simtypes.RoundToTick(100.0, 0.1)}
	m := RiskAdverseModel{}
	m.NewOrder(order, d)

	m.Trade(order, 2.5, d)

	filled := m.IsFilled(order, d)
	if filled <= 0 {
		t.Fatalf("expected the order to be considered filled once trades exceed front queue, got %v", filled)
	}
}

func TestRiskAdverseModelNotFilledBeforeFrontClears(t *testing.T) {
	d := depth.NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 5.0, 1)

	order := &simtypes.Order{Side: simtypes.Buy, PriceTick: simtypes.RoundToTick(100.0, 0.1)}
	m := RiskAdverseModel{}
	m.NewOrder(order, d)

	m.Trade(order, 1.0, d)

	if filled := m.IsFilled(order, d); filled != 0 {
		t.Fatalf("expected no fill while queue ahead remains, got %v", filled)
	}
}

func TestProbModelAdvancesOnTrade(t *testing.T) {
	d := depth.NewHashMapMarketDepth(0.1, 0.001)
	d.UpdateBidDepth(100.0, 2.0, 1)

	order := &simtypes.Order{Side: simtypes.Buy, PriceTick: simtypes.RoundToTick(100.0, 0.1)}
	m := ProbModel{Prob: Power2{N: 2}}
	m.NewOrder(order, d)

	before := order.Q.(*QueuePos).FrontQQty
	m.Trade(order, 0.5, d)
	after := order.Q.(*QueuePos).FrontQQty

	if after != before-0.5 {
		t.Fatalf("expected front queue qty to decrease by traded qty, before=%v after=%v", before, after)
	}
}
