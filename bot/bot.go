// Package bot defines the Bot interface (spec §6): the single surface a
// strategy drives, implemented by backtest.Backtest in this kernel and,
// in principle, by a live trading driver wired to real connectors.
package bot

import (
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"
)

// Bot is the language-neutral trading surface from spec §6. Every
// index-taking method validates asset_no against NumAssets and returns a
// hard error out of range.
type Bot interface {
	CurrentTimestamp() int64
	NumAssets() int

	Position(assetNo int) (float64, error)
	StateValues(assetNo int) (*state.State, error)
	Depth(assetNo int) (depth.MarketDepth, error)
	LastTrades(assetNo int) ([]simtypes.Event, error)
	ClearLastTrades(assetNo *int)
	Orders(assetNo int) (map[uint64]*simtypes.Order, error)

	SubmitBuyOrder(assetNo int, orderID uint64, price, qty float64, tif simtypes.TimeInForce, ordType simtypes.OrdType, wait bool) (bool, error)
	SubmitSellOrder(assetNo int, orderID uint64, price, qty float64, tif simtypes.TimeInForce, ordType simtypes.OrdType, wait bool) (bool, error)
	Modify(assetNo int, orderID uint64, price, qty float64, wait bool) (bool, error)
	Cancel(assetNo int, orderID uint64, wait bool) (bool, error)
	ClearInactiveOrders(assetNo *int)

	WaitOrderResponse(assetNo int, orderID uint64, timeout int64) (bool, error)
	WaitNextFeed(includeOrderResp bool, timeout int64) (bool, error)
	Elapse(duration int64) (bool, error)
	ElapseBt(duration int64) (bool, error)
	Close() error

	FeedLatency(assetNo int) (exchTs, localTs int64, ok bool)
	OrderLatency(assetNo int) (localTs, exchTs, recvTs int64, ok bool)
}
