package simtypes

import "math"

// Side is the direction of an order or a trade event.
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "Unknown"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrdType is the style of an order.
type OrdType int

const (
	Limit OrdType = iota + 1
	Market
)

// TimeInForce is the time-in-force of an order.
type TimeInForce int

const (
	GTC TimeInForce = iota + 1 // good-'til-canceled
	GTX                        // post-only
	FOK                        // fill-or-kill
	IOC                        // immediate-or-cancel
)

// Status is the lifecycle state of an Order.
type Status int

const (
	None Status = iota
	New
	PartiallyFilled
	Filled
	Canceled
	Expired
	Rejected
	Replaced
)

func (s Status) String() string {
	switch s {
	case None:
		return "None"
	case New:
		return "New"
	case PartiallyFilled:
		return "PartiallyFilled"
	case Filled:
		return "Filled"
	case Canceled:
		return "Canceled"
	case Expired:
		return "Expired"
	case Rejected:
		return "Rejected"
	case Replaced:
		return "Replaced"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case Filled, Canceled, Expired, Rejected:
		return true
	default:
		return false
	}
}

// Request is the in-flight request kind carried on the order bus.
type Request int

const (
	ReqNone Request = iota
	ReqNew
	ReqCanceled
	ReqReplaced
)

// Order is the unit of bot-visible and exchange-resting state. Q is an
// opaque, model-specific queue-position blob: owned and interpreted only by
// the exchange processor's QueueModel, transparent to the local processor
// and to the bot.
type Order struct {
	OrderID       uint64
	Side          Side
	OrdType       OrdType
	TIF           TimeInForce
	PriceTick     int64
	TickSize      float64
	Qty           float64
	LeavesQty     float64
	ExecQty       float64
	ExecPriceTick int64
	Status        Status
	Req           Request
	ExchTs        int64
	LocalTs       int64
	Maker         bool
	Q             interface{}
}

// Price returns the order's limit price in natural units.
func (o *Order) Price() float64 { return float64(o.PriceTick) * o.TickSize }

// Update merges a response's qty/price/status into the order, ignoring
// regressions in exch_ts (§3 invariant: a rare violation is never fatal).
// It reports stale=true when resp carries an older exch_ts than the order
// already has, so the caller can log a warning; ExchTs itself is not moved
// backward in that case.
func (o *Order) Update(resp *Order) (stale bool) {
	o.LeavesQty = resp.LeavesQty
	o.ExecQty = resp.ExecQty
	o.ExecPriceTick = resp.ExecPriceTick
	o.Status = resp.Status
	o.Maker = resp.Maker
	if resp.ExchTs < o.ExchTs {
		return true
	}
	o.ExchTs = resp.ExchTs
	return false
}

// Clone returns a shallow copy of the order suitable for carrying across
// the order bus (the Q blob is not deep-copied; once an order is resting at
// the exchange, only the exchange processor mutates Q).
func (o Order) Clone() Order { return o }

// RoundToTick converts a natural price to the nearest price tick.
func RoundToTick(price, tickSize float64) int64 {
	return int64(math.Round(price / tickSize))
}

// RoundToLot returns how many whole lots qty represents.
func RoundToLot(qty, lotSize float64) int64 {
	return int64(math.Round(qty / lotSize))
}
