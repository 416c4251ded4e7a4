// Package backtest implements the deterministic, single-threaded driver
// loop (spec §4.8) that interleaves each asset's local feed, exchange
// feed, order-send, and order-receive streams through sched.EventSet and
// exposes the result as the external Bot surface (spec §6).
package backtest

import (
	"math"

	"github.com/hftsim/backtest/bot"
	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/metrics"
	"github.com/hftsim/backtest/sched"
	"github.com/hftsim/backtest/simerr"
	"github.com/hftsim/backtest/simtypes"
	"github.com/hftsim/backtest/state"
)

// Backtest implements bot.Bot.
var _ bot.Bot = (*Backtest)(nil)

// UntilEndOfData is the target timestamp GotoEnd and the waiting forms of
// submit/modify/cancel run toward: run out the entire remaining feed.
const UntilEndOfData = int64(math.MaxInt64)

// LocalProcessor is the subset of proc/local.Local the driver and Bot
// surface need; it exists so Backtest can be built and tested against a
// fake without depending on the concrete processor package.
type LocalProcessor interface {
	InitializeData() (int64, error)
	ProcessData() (int64, error)
	ProcessRecvOrder(ts int64, waitRespOrderID *uint64) bool
	EarliestSendOrderTimestamp() int64
	EarliestRecvOrderTimestamp() int64

	SubmitOrder(orderID uint64, side simtypes.Side, price, qty float64, ordType simtypes.OrdType, tif simtypes.TimeInForce, ts int64) error
	Modify(orderID uint64, price, qty float64, ts int64) error
	Cancel(orderID uint64, ts int64) error
	ClearInactiveOrders()

	Orders() map[uint64]*simtypes.Order
	Position() float64
	MarketDepth() depth.MarketDepth
	StateValues() *state.State
	LastTrades() []simtypes.Event
	ClearLastTrades()
	FeedLatency() (exchTs, localTs int64, ok bool)
	OrderLatency() (localTs, exchTs, recvTs int64, ok bool)
}

// ExchProcessor is the subset of proc/exchange's two processor types the
// driver needs.
type ExchProcessor interface {
	InitializeData() (int64, error)
	ProcessData() (int64, error)
	ProcessRecvOrder(ts int64) error
	EarliestSendOrderTimestamp() int64
	EarliestRecvOrderTimestamp() int64
}

// Asset pairs one asset's local and exchange processors. Symbol and
// Metrics are optional: when Metrics is nil the driver records nothing
// for this asset.
type Asset struct {
	Symbol  string
	Local   LocalProcessor
	Exch    ExchProcessor
	Metrics *metrics.Collector
}

func (a *Asset) recordEvent(kind string) {
	if a.Metrics != nil {
		a.Metrics.EventsProcessed.WithLabelValues(a.Symbol, kind).Inc()
	}
}

// waitKind distinguishes the three wait_order_response dispositions the
// original goto<WAIT_NEXT_FEED> shares across submit/cancel/modify and the
// explicit wait call.
type waitKind int

const (
	waitNone waitKind = iota
	waitAny
	waitSpecified
)

type waitOrderResponse struct {
	kind     waitKind
	assetNo  int
	orderID  uint64
}

// Backtest drives a fixed set of assets through their paired local/exchange
// processors in strict event-timestamp order (spec §4.7/§4.8). It is not
// safe for concurrent use: the core is single-threaded by design (spec §5).
type Backtest struct {
	curTs  int64
	evs    *sched.EventSet
	assets []Asset
}

// New constructs a Backtest over assets. cur_ts starts at math.MaxInt64,
// the sentinel the Rust original uses to mean "not yet initialized";
// initializeEvs populates the EventSet on the first goto call.
func New(assets []Asset) *Backtest {
	return &Backtest{
		curTs:  UntilEndOfData,
		evs:    sched.New(len(assets)),
		assets: assets,
	}
}

func (b *Backtest) initializeEvs() error {
	for assetNo, asset := range b.assets {
		ts, err := asset.Local.InitializeData()
		switch {
		case err == nil:
			b.evs.UpdateLocalData(assetNo, ts)
		case simerr.Of(err, simerr.CodeEndOfData):
			b.evs.InvalidateLocalData(assetNo)
		default:
			return err
		}
	}
	for assetNo, asset := range b.assets {
		ts, err := asset.Exch.InitializeData()
		switch {
		case err == nil:
			b.evs.UpdateExchData(assetNo, ts)
		case simerr.Of(err, simerr.CodeEndOfData):
			b.evs.InvalidateExchData(assetNo)
		default:
			return err
		}
	}
	return nil
}

// GotoEnd runs every asset's feeds and order buses out to exhaustion.
func (b *Backtest) GotoEnd() (bool, error) {
	if b.curTs == UntilEndOfData {
		if err := b.initializeEvs(); err != nil {
			return false, err
		}
		ev, ok := b.evs.Next()
		if !ok {
			return false, nil
		}
		b.curTs = ev.Timestamp
	}
	return b.goto_(UntilEndOfData, false, waitOrderResponse{kind: waitNone})
}

// goto_ is the driver's core loop (spec §4.8): pop the globally next event
// in EventSet order and dispatch it, until an event is later than
// targetTimestamp (stop there) or the EventSet is exhausted (stop for
// good). waitNextFeed tightens targetTimestamp to the timestamp of the
// first LocalData event observed, matching WAIT_NEXT_FEED in the original.
func (b *Backtest) goto_(targetTimestamp int64, waitNextFeed bool, wait waitOrderResponse) (bool, error) {
	for assetNo, asset := range b.assets {
		b.evs.UpdateExchOrder(assetNo, asset.Local.EarliestSendOrderTimestamp())
		b.evs.UpdateLocalOrder(assetNo, asset.Local.EarliestRecvOrderTimestamp())
	}

	for {
		ev, ok := b.evs.Next()
		if !ok {
			return false, nil
		}
		if ev.Timestamp > targetTimestamp {
			b.curTs = targetTimestamp
			return true, nil
		}

		asset := &b.assets[ev.AssetNo]
		switch ev.Kind {
		case sched.LocalData:
			nextTs, err := asset.Local.ProcessData()
			switch {
			case err == nil:
				b.evs.UpdateLocalData(ev.AssetNo, nextTs)
			case simerr.Of(err, simerr.CodeEndOfData):
				b.evs.InvalidateLocalData(ev.AssetNo)
			default:
				return false, err
			}
			asset.recordEvent("local_data")
			if waitNextFeed {
				targetTimestamp = ev.Timestamp
			}

		case sched.LocalOrder:
			var waitID *uint64
			if wait.kind == waitSpecified && ev.AssetNo == wait.assetNo {
				id := wait.orderID
				waitID = &id
			}
			received := asset.Local.ProcessRecvOrder(ev.Timestamp, waitID)
			asset.recordEvent("local_order")
			if received || wait.kind == waitAny {
				targetTimestamp = ev.Timestamp
			}
			b.evs.UpdateLocalOrder(ev.AssetNo, asset.Local.EarliestRecvOrderTimestamp())

		case sched.ExchData:
			nextTs, err := asset.Exch.ProcessData()
			switch {
			case err == nil:
				b.evs.UpdateExchData(ev.AssetNo, nextTs)
			case simerr.Of(err, simerr.CodeEndOfData):
				b.evs.InvalidateExchData(ev.AssetNo)
			default:
				return false, err
			}
			asset.recordEvent("exch_data")
			b.evs.UpdateLocalOrder(ev.AssetNo, asset.Exch.EarliestSendOrderTimestamp())

		case sched.ExchOrder:
			if err := asset.Exch.ProcessRecvOrder(ev.Timestamp); err != nil {
				return false, err
			}
			asset.recordEvent("exch_order")
			b.evs.UpdateExchOrder(ev.AssetNo, asset.Exch.EarliestRecvOrderTimestamp())
			b.evs.UpdateLocalOrder(ev.AssetNo, asset.Exch.EarliestSendOrderTimestamp())
		}
	}
}

func (b *Backtest) ensureInitialized() (bool, error) {
	if b.curTs != UntilEndOfData {
		return true, nil
	}
	if err := b.initializeEvs(); err != nil {
		return false, err
	}
	ev, ok := b.evs.Next()
	if !ok {
		return false, nil
	}
	b.curTs = ev.Timestamp
	return true, nil
}

// CurrentTimestamp returns the timestamp the driver last stopped at.
func (b *Backtest) CurrentTimestamp() int64 { return b.curTs }

// NumAssets returns the number of assets this backtest was built with.
func (b *Backtest) NumAssets() int { return len(b.assets) }

func (b *Backtest) checkAssetNo(assetNo int) error {
	if assetNo < 0 || assetNo >= len(b.assets) {
		return simerr.ErrInstrumentNotFound
	}
	return nil
}

// Position returns assetNo's current net position.
func (b *Backtest) Position(assetNo int) (float64, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return 0, err
	}
	return b.assets[assetNo].Local.Position(), nil
}

// StateValues returns assetNo's bot-visible account state.
func (b *Backtest) StateValues(assetNo int) (*state.State, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return nil, err
	}
	return b.assets[assetNo].Local.StateValues(), nil
}

// Depth returns assetNo's bot-visible market depth.
func (b *Backtest) Depth(assetNo int) (depth.MarketDepth, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return nil, err
	}
	return b.assets[assetNo].Local.MarketDepth(), nil
}

// LastTrades returns the trade prints buffered for assetNo since the last
// ClearLastTrades call.
func (b *Backtest) LastTrades(assetNo int) ([]simtypes.Event, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return nil, err
	}
	return b.assets[assetNo].Local.LastTrades(), nil
}

// ClearLastTrades empties the trade buffer for assetNo, or for every asset
// if assetNo is nil.
func (b *Backtest) ClearLastTrades(assetNo *int) {
	if assetNo != nil {
		b.assets[*assetNo].Local.ClearLastTrades()
		return
	}
	for _, asset := range b.assets {
		asset.Local.ClearLastTrades()
	}
}

// Orders returns assetNo's bot-visible order map.
func (b *Backtest) Orders(assetNo int) (map[uint64]*simtypes.Order, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return nil, err
	}
	return b.assets[assetNo].Local.Orders(), nil
}

// SubmitBuyOrder submits a new buy order on assetNo, optionally blocking
// until its response arrives (or end of data).
func (b *Backtest) SubmitBuyOrder(assetNo int, orderID uint64, price, qty float64, tif simtypes.TimeInForce, ordType simtypes.OrdType, wait bool) (bool, error) {
	return b.submitOrder(assetNo, orderID, simtypes.Buy, price, qty, tif, ordType, wait)
}

// SubmitSellOrder submits a new sell order on assetNo, optionally blocking
// until its response arrives (or end of data).
func (b *Backtest) SubmitSellOrder(assetNo int, orderID uint64, price, qty float64, tif simtypes.TimeInForce, ordType simtypes.OrdType, wait bool) (bool, error) {
	return b.submitOrder(assetNo, orderID, simtypes.Sell, price, qty, tif, ordType, wait)
}

func (b *Backtest) submitOrder(assetNo int, orderID uint64, side simtypes.Side, price, qty float64, tif simtypes.TimeInForce, ordType simtypes.OrdType, wait bool) (bool, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return false, err
	}
	if err := b.assets[assetNo].Local.SubmitOrder(orderID, side, price, qty, ordType, tif, b.curTs); err != nil {
		return false, err
	}
	if wait {
		return b.goto_(UntilEndOfData, false, waitOrderResponse{kind: waitSpecified, assetNo: assetNo, orderID: orderID})
	}
	return true, nil
}

// Modify submits a replace request for an existing order on assetNo.
func (b *Backtest) Modify(assetNo int, orderID uint64, price, qty float64, wait bool) (bool, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return false, err
	}
	if err := b.assets[assetNo].Local.Modify(orderID, price, qty, b.curTs); err != nil {
		return false, err
	}
	if wait {
		return b.goto_(UntilEndOfData, false, waitOrderResponse{kind: waitSpecified, assetNo: assetNo, orderID: orderID})
	}
	return true, nil
}

// Cancel submits a cancel request for an existing order on assetNo.
func (b *Backtest) Cancel(assetNo int, orderID uint64, wait bool) (bool, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return false, err
	}
	if err := b.assets[assetNo].Local.Cancel(orderID, b.curTs); err != nil {
		return false, err
	}
	if wait {
		return b.goto_(UntilEndOfData, false, waitOrderResponse{kind: waitSpecified, assetNo: assetNo, orderID: orderID})
	}
	return true, nil
}

// ClearInactiveOrders drops terminal-status orders from assetNo, or from
// every asset if assetNo is nil.
func (b *Backtest) ClearInactiveOrders(assetNo *int) {
	if assetNo != nil {
		b.assets[*assetNo].Local.ClearInactiveOrders()
		return
	}
	for _, asset := range b.assets {
		asset.Local.ClearInactiveOrders()
	}
}

// WaitOrderResponse runs the driver forward until orderID's response on
// assetNo arrives or timeout elapses, returning false only at end of data.
func (b *Backtest) WaitOrderResponse(assetNo int, orderID uint64, timeout int64) (bool, error) {
	if err := b.checkAssetNo(assetNo); err != nil {
		return false, err
	}
	return b.goto_(b.curTs+timeout, false, waitOrderResponse{kind: waitSpecified, assetNo: assetNo, orderID: orderID})
}

// WaitNextFeed runs the driver forward to the next feed event (optionally
// also stopping for any order response), bounded by timeout.
func (b *Backtest) WaitNextFeed(includeOrderResp bool, timeout int64) (bool, error) {
	ok, err := b.ensureInitialized()
	if err != nil || !ok {
		return ok, err
	}
	wait := waitOrderResponse{kind: waitNone}
	if includeOrderResp {
		wait.kind = waitAny
	}
	return b.goto_(b.curTs+timeout, true, wait)
}

// Elapse advances the driver by duration, processing every event in
// between; it does not stop early for feed or order events the way
// WaitNextFeed/WaitOrderResponse do.
func (b *Backtest) Elapse(duration int64) (bool, error) {
	ok, err := b.ensureInitialized()
	if err != nil || !ok {
		return ok, err
	}
	return b.goto_(b.curTs+duration, false, waitOrderResponse{kind: waitNone})
}

// ElapseBt is an alias for Elapse kept for symmetry with the external
// interface's naming (spec §6); in this kernel backtest and live share one
// clock-advance semantic.
func (b *Backtest) ElapseBt(duration int64) (bool, error) { return b.Elapse(duration) }

// Close releases no resources in this in-memory kernel; it exists so the
// Bot surface is symmetric with a live implementation that would flush
// connectors here.
func (b *Backtest) Close() error { return nil }

// FeedLatency returns assetNo's last observed (exch_ts, local_ts) feed pair.
func (b *Backtest) FeedLatency(assetNo int) (exchTs, localTs int64, ok bool) {
	return b.assets[assetNo].Local.FeedLatency()
}

// OrderLatency returns assetNo's last observed (local_ts, exch_ts, recv_ts)
// order round trip.
func (b *Backtest) OrderLatency(assetNo int) (localTs, exchTs, recvTs int64, ok bool) {
	return b.assets[assetNo].Local.OrderLatency()
}
