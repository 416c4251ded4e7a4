// Package queue estimates an order's position in its price level's queue,
// the input the exchange processor uses to decide whether a resting order
// has been filled ahead of a matching market trade.
package queue

import (
	"math"

	"github.com/hftsim/backtest/depth"
	"github.com/hftsim/backtest/simtypes"
)

// Model adjusts and reads back an order's opaque queue-position state
// (carried in simtypes.Order.Q) as market events arrive at its price level.
type Model interface {
	// NewOrder initializes Q when the exchange accepts a new resting order.
	NewOrder(order *simtypes.Order, d depth.MarketDepth)
	// Trade adjusts Q when a market trade prints at the order's price.
	Trade(order *simtypes.Order, qty float64, d depth.MarketDepth)
	// Depth adjusts Q when the level's aggregate quantity changes.
	Depth(order *simtypes.Order, prevQty, newQty float64, d depth.MarketDepth)
	// IsFilled returns the quantity considered filled, zero if none.
	IsFilled(order *simtypes.Order, d depth.MarketDepth) float64
}

func frontQtyAtOrderTick(order *simtypes.Order, d depth.MarketDepth) float64 {
	if order.Side == simtypes.Buy {
		return d.BidQtyAtTick(order.PriceTick)
	}
	return d.AskQtyAtTick(order.PriceTick)
}

// RiskAdverseModel is a conservative queue-position model: the order's
// queue advances by the full size of trades printed at its level, while a
// depth decrease moves it forward only by clamping the quantity ahead to
// the level's new size. This underestimates fill likelihood relative to
// actual exchange behavior, hence "risk adverse".
type RiskAdverseModel struct{}

func (RiskAdverseModel) NewOrder(order *simtypes.Order, d depth.MarketDepth) {
	frontQty := frontQtyAtOrderTick(order, d)
	order.Q = &frontQty
}

func (RiskAdverseModel) Trade(order *simtypes.Order, qty float64, _ depth.MarketDepth) {
	frontQty := order.Q.(*float64)
	*frontQty -= qty
}

func (RiskAdverseModel) Depth(order *simtypes.Order, _, newQty float64, _ depth.MarketDepth) {
	frontQty := order.Q.(*float64)
	*frontQty = math.Min(*frontQty, newQty)
}

func (RiskAdverseModel) IsFilled(order *simtypes.Order, d depth.MarketDepth) float64 {
	frontQty := *order.Q.(*float64)
	if math.Round(frontQty/d.LotSize()) < 0 {
		return math.Floor(-frontQty/d.LotSize()) * d.LotSize()
	}
	return 0
}

// QueuePos is the state a ProbModel tracks per order.
type QueuePos struct {
	FrontQQty   float64
	CumTradeQty float64
}

// Probability estimates the chance that a depth decrease at an order's
// level happened behind rather than in front of the order's queue
// position, given the quantity ahead (front) and behind (back) it.
type Probability interface {
	Prob(front, back float64) float64
}

// ProbModel is the probability-weighted queue position model: an order's
// position advances on same-price trades, and partially advances on
// same-price depth decreases proportional to the probability the decrease
// occurred behind it. Trade-caused decreases are subtracted from the
// depth-change signal first, so they are never double counted.
type ProbModel struct {
	Prob Probability
}

func (m ProbModel) NewOrder(order *simtypes.Order, d depth.MarketDepth) {
	order.Q = &QueuePos{FrontQQty: frontQtyAtOrderTick(order, d)}
}

func (m ProbModel) Trade(order *simtypes.Order, qty float64, _ depth.MarketDepth) {
	q := order.Q.(*QueuePos)
	q.FrontQQty -= qty
	q.CumTradeQty += qty
}

func (m ProbModel) Depth(order *simtypes.Order, prevQty, newQty float64, _ depth.MarketDepth) {
	chg := prevQty - newQty
	q := order.Q.(*QueuePos)
	chg -= q.CumTradeQty
	q.CumTradeQty = 0

	if chg < 0 {
		q.FrontQQty = math.Min(q.FrontQQty, newQty)
		return
	}

	front := q.FrontQQty
	back := prevQty - front

	prob := m.Prob.Prob(front, back)
	if math.IsInf(prob, 0) {
		prob = 1.0
	}

	estFront := front - (1-prob)*chg + math.Min(back-prob*chg, 0)
	q.FrontQQty = math.Min(estFront, newQty)
}

func (m ProbModel) IsFilled(order *simtypes.Order, d depth.MarketDepth) float64 {
	q := order.Q.(*QueuePos)
	if math.Round(q.FrontQQty/d.LotSize()) < 0 {
		return math.Floor(-q.FrontQQty/d.LotSize()) * d.LotSize()
	}
	return 0
}

// Power1 uses f(x) = x^n, prob = f(back) / (f(back) + f(front)).
type Power1 struct{ N float64 }

func (p Power1) Prob(front, back float64) float64 {
	fb, ff := math.Pow(back, p.N), math.Pow(front, p.N)
	return fb / (fb + ff)
}

// Power2 uses f(x) = x^n, prob = f(back) / f(back + front).
type Power2 struct{ N float64 }

func (p Power2) Prob(front, back float64) float64 {
	return math.Pow(back, p.N) / math.Pow(back+front, p.N)
}

// Power3 uses f(x) = x^n, prob = 1 - f(front / (front + back)).
type Power3 struct{ N float64 }

func (p Power3) Prob(front, back float64) float64 {
	return 1 - math.Pow(front/(front+back), p.N)
}

// Log1 uses f(x) = log(1+x), prob = f(back) / (f(back) + f(front)).
type Log1 struct{}

func (Log1) Prob(front, back float64) float64 {
	fb, ff := math.Log1p(back), math.Log1p(front)
	return fb / (fb + ff)
}

// Log2 uses f(x) = log(1+x), prob = f(back) / f(back + front).
type Log2 struct{}

func (Log2) Prob(front, back float64) float64 {
	return math.Log1p(back) / math.Log1p(back+front)
}
