// Package state tracks the money-like account values the exchange
// processor updates on every fill: position, balance, fee paid, and trade
// counters. Values flowing through here use decimal.Decimal, following the
// teacher's use of shopspring/decimal for anything that accumulates money
// across many small arithmetic operations.
package state

import (
	"github.com/shopspring/decimal"

	"github.com/hftsim/backtest/models"
)

// State is one asset's running account state.
type State struct {
	Asset models.AssetType
	Fee   models.FeeModel

	Position    decimal.Decimal
	Balance     decimal.Decimal
	FeePaid     decimal.Decimal
	NumTrades   int64
	TradeQty    decimal.Decimal
	TradeAmount decimal.Decimal
}

// New constructs a zeroed account state for one asset.
func New(asset models.AssetType, fee models.FeeModel) *State {
	return &State{Asset: asset, Fee: fee}
}

// ApplyFill updates position, balance, and fee counters for a single fill.
// side is +1 for a buy fill, -1 for a sell fill.
func (s *State) ApplyFill(side int, execPrice, execQty float64, maker bool) {
	sideD := decimal.NewFromInt(int64(side))
	qtyD := decimal.NewFromFloat(execQty)
	priceD := decimal.NewFromFloat(execPrice)

	signedQty := sideD.Mul(qtyD)
	s.Position = s.Position.Add(signedQty)

	amount := decimal.NewFromFloat(s.Asset.Amount(execPrice, execQty))
	s.Balance = s.Balance.Sub(amount.Mul(sideD))

	fee := decimal.NewFromFloat(s.Fee.Fee(execPrice, execQty, maker))
	s.FeePaid = s.FeePaid.Add(fee)
	s.Balance = s.Balance.Sub(fee)

	s.NumTrades++
	s.TradeQty = s.TradeQty.Add(qtyD)
	s.TradeAmount = s.TradeAmount.Add(priceD.Mul(qtyD))
}

// EquityAt returns balance plus the mark-to-market value of the open
// position at the given mark price.
func (s *State) EquityAt(markPrice float64) decimal.Decimal {
	if s.Position.IsZero() {
		return s.Balance
	}
	posF, _ := s.Position.Float64()
	notional := s.Asset.Amount(markPrice, posF)
	return s.Balance.Add(decimal.NewFromFloat(notional))
}
