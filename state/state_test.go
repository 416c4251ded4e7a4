package state

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hftsim/backtest/models"
)

func TestApplyFillBuyUpdatesPositionAndBalance(t *testing.T) {
	s := New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0.001})

	s.ApplyFill(1, 100.0, 2.0, false)

	if !s.Position.Equal(decimal.NewFromFloat(2.0)) {
		t.Fatalf("expected position 2.0, got %s", s.Position)
	}
	if s.NumTrades != 1 {
		t.Fatalf("expected 1 trade counted, got %d", s.NumTrades)
	}
	// Balance drops by notional (200) plus fee (0.2).
	want := decimal.NewFromFloat(-200.2)
	if !s.Balance.Equal(want) {
		t.Fatalf("expected balance %s, got %s", want, s.Balance)
	}
}

func TestApplyFillSellReducesPosition(t *testing.T) {
	s := New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0})
	s.ApplyFill(1, 100.0, 1.0, true)
	s.ApplyFill(-1, 110.0, 1.0, true)

	if !s.Position.IsZero() {
		t.Fatalf("expected flat position after an equal-size sell, got %s", s.Position)
	}
	if s.NumTrades != 2 {
		t.Fatalf("expected 2 trades counted, got %d", s.NumTrades)
	}
}

func TestEquityAtMarksOpenPosition(t *testing.T) {
	s := New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0})
	s.ApplyFill(1, 100.0, 1.0, true)

	equity := s.EquityAt(110.0)
	want := decimal.NewFromFloat(-100.0).Add(decimal.NewFromFloat(110.0))
	if !equity.Equal(want) {
		t.Fatalf("expected equity %s, got %s", want, equity)
	}
}

func TestEquityAtFlatPositionIsJustBalance(t *testing.T) {
	s := New(models.LinearAsset{}, models.FlatFeeModel{Rate: 0})
	if !s.EquityAt(123.0).IsZero() {
		t.Fatalf("expected zero equity with no fills, got %s", s.EquityAt(123.0))
	}
}
