package exchange

import (
	"testing"

	"github.com/hftsim/backtest/bus"
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/models"
	"github.com/hftsim/backtest/queue"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"
)

func newTestPartialFillExchange() (*PartialFillExchange, *bus.LocalToExch, *bus.ExchToLocal) {
	d := depth.NewHashMapMarketDepth(0.1, 0.001)
	st := state.New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0})
	l2e := bus.NewLocalToExch()
	e2l := bus.NewExchToLocal()
	return NewPartialFillExchange(d, st, queue.RiskAdverseModel{}, l2e, e2l, models.ConstantLatencyModel{Entry: 0, Response: 0}), l2e, e2l
}

func TestPartialFillLeavesOrderRestingUntilFullyExecuted(t *testing.T) {
	e, _, _ := newTestPartialFillExchange()

	priceTick := simtypes.RoundToTick(100.0, 0.1)
	order := &simtypes.Order{
		OrderID: 1, Side: simtypes.Buy, OrdType: simtypes.Limit, TIF: simtypes.GTC,
		PriceTick: priceTick, Qty: 1.0, LeavesQty: 1.0,
	}
	if err := e.AckNew(order, 10); err != nil {
		t.Fatalf("AckNew: %v", err)
	}

	trade := simtypes.Event{
		Flags: simtypes.ExchFlag | simtypes.TradeEvent | simtypes.SellFlag,
		Px:    100.0, Qty: 0.4, ExchTs: 20,
	}
	if err := e.Process(trade); err != nil {
		t.Fatalf("Process: %v", err)
	}

	resting := e.orders[1]
	if resting == nil {
		t.Fatalf("expected the order to still be resting after a partial fill")
	}
	if resting.Status != simtypes.PartiallyFilled {
		t.Fatalf("expected PartiallyFilled, got %v", resting.Status)
	}
	if resting.LeavesQty != 0.6 {
		t.Fatalf("expected 0.6 leaves qty remaining, got %v", resting.LeavesQty)
	}

	// A second trade exhausting the remainder must fully fill and remove it.
	trade2 := simtypes.Event{
		Flags: simtypes.ExchFlag | simtypes.TradeEvent | simtypes.SellFlag,
		Px:    100.0, Qty: 0.6, ExchTs: 30,
	}
	if err := e.Process(trade2); err != nil {
		t.Fatalf("Process second trade: %v", err)
	}
	if _, stillResting := e.orders[1]; stillResting {
		t.Fatalf("expected the order to be removed once fully filled")
	}
}

func TestPartialFillMarketOrderFillsEntireLeavesQty(t *testing.T) {
	e, _, _ := newTestPartialFillExchange()
	e.Depth.UpdateAskDepth(101.0, 5.0, 1)

	order := &simtypes.Order{
		OrderID: 1, Side: simtypes.Buy, OrdType: simtypes.Market,
		Qty: 2.0, LeavesQty: 2.0,
	}
	if err := e.AckNew(order, 10); err != nil {
		t.Fatalf("AckNew: %v", err)
	}
	if order.Status != simtypes.Filled || order.ExecQty != 2.0 {
		t.Fatalf("expected a market order to fill its entire leaves qty, got status=%v execQty=%v", order.Status, order.ExecQty)
	}
}

func TestPartialFillGTCBuyWalksMultipleAskTicksThenForcesRemainder(t *testing.T) {
	e, _, _ := newTestPartialFillExchange()
	e.Depth.UpdateAskDepth(101.0, 1.0, 1)
	e.Depth.UpdateAskDepth(101.1, 1.0, 1)

	limitTick := simtypes.RoundToTick(101.2, 0.1)
	order := &simtypes.Order{
		OrderID: 1, Side: simtypes.Buy, OrdType: simtypes.Limit, TIF: simtypes.GTC,
		PriceTick: limitTick, Qty: 3.0, LeavesQty: 3.0,
	}
	if err := e.AckNew(order, 10); err != nil {
		t.Fatalf("AckNew: %v", err)
	}
	if order.Status != simtypes.Filled {
		t.Fatalf("expected Filled, got %v", order.Status)
	}
	if order.ExecQty != 1.0 {
		t.Fatalf("expected the last fill leg to report the forced-through remainder (1.0), got %v", order.ExecQty)
	}
	// 1.0 from each of the two ask ticks, plus 1.0 forced through at the
	// order's own limit once the book ran out of displayed liquidity.
	if order.LeavesQty != 0 {
		t.Fatalf("expected leaves_qty to reach zero, got %v", order.LeavesQty)
	}
}

func TestPartialFillIOCBuyExpiresUnfilledRemainderAfterWalkingBook(t *testing.T) {
	e, _, _ := newTestPartialFillExchange()
	e.Depth.UpdateAskDepth(101.0, 1.0, 1)

	limitTick := simtypes.RoundToTick(101.0, 0.1)
	order := &simtypes.Order{
		OrderID: 1, Side: simtypes.Buy, OrdType: simtypes.Limit, TIF: simtypes.IOC,
		PriceTick: limitTick, Qty: 3.0, LeavesQty: 3.0,
	}
	if err := e.AckNew(order, 10); err != nil {
		t.Fatalf("AckNew: %v", err)
	}
	if order.Status != simtypes.Expired {
		t.Fatalf("expected an IOC order to expire once the book is exhausted within its limit, got %v", order.Status)
	}
	if order.LeavesQty != 2.0 {
		t.Fatalf("expected the 1.0 available at the touch to have been taken, leaving 2.0, got %v", order.LeavesQty)
	}
}

func TestPartialFillFOKBuyExpiresWithoutTouchingBookWhenUnderfilled(t *testing.T) {
	e, _, _ := newTestPartialFillExchange()
	e.Depth.UpdateAskDepth(101.0, 1.0, 1)

	limitTick := simtypes.RoundToTick(101.0, 0.1)
	order := &simtypes.Order{
		OrderID: 1, Side: simtypes.Buy, OrdType: simtypes.Limit, TIF: simtypes.FOK,
		PriceTick: limitTick, Qty: 3.0, LeavesQty: 3.0,
	}
	if err := e.AckNew(order, 10); err != nil {
		t.Fatalf("AckNew: %v", err)
	}
	if order.Status != simtypes.Expired {
		t.Fatalf("expected FOK to expire when the book can't cover the full size, got %v", order.Status)
	}
	if order.LeavesQty != 3.0 {
		t.Fatalf("expected a killed FOK order to have taken nothing, got leaves_qty=%v", order.LeavesQty)
	}
}

func TestPartialFillBestBidMoveFillsRestingSellInFull(t *testing.T) {
	e, _, _ := newTestPartialFillExchange()
	e.Depth.UpdateBidDepth(99.0, 1.0, 1)
	e.Depth.UpdateAskDepth(101.0, 1.0, 1)

	sellTick := simtypes.RoundToTick(100.0, 0.1)
	restingSell := &simtypes.Order{
		OrderID: 2, Side: simtypes.Sell, OrdType: simtypes.Limit, TIF: simtypes.GTC,
		PriceTick: sellTick, Qty: 0.5, LeavesQty: 0.5,
	}
	if err := e.AckNew(restingSell, 10); err != nil {
		t.Fatalf("AckNew: %v", err)
	}

	// The bid depth update moves the best bid up through the resting sell's
	// price without a trade print ever being reported.
	if err := e.Process(simtypes.Event{
		Flags: simtypes.ExchFlag | simtypes.DepthEvent | simtypes.BuyFlag,
		Px:    100.0, Qty: 2.0, ExchTs: 20,
	}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if _, stillResting := e.orders[2]; stillResting {
		t.Fatalf("expected the resting sell order to be filled and removed once the best bid moved through it")
	}
}
