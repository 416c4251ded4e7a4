package models

import "testing"

func TestFlatFeeModel(t *testing.T) {
	m := FlatFeeModel{Rate: 0.001}
	if got := m.Fee(100, 2, true); got != 0.2 {
		t.Fatalf("expected fee 0.2, got %v", got)
	}
	if got := m.Fee(100, 2, false); got != 0.2 {
		t.Fatalf("flat fee should not depend on maker/taker, got %v", got)
	}
}

func TestTieredFeeModel(t *testing.T) {
	m := TieredFeeModel{MakerRate: -0.0001, TakerRate: 0.0004}
	if got := m.Fee(1000, 1, true); got != -0.1 {
		t.Fatalf("expected maker rebate -0.1, got %v", got)
	}
	if got := m.Fee(1000, 1, false); got != 0.4 {
		t.Fatalf("expected taker fee 0.4, got %v", got)
	}
}

func TestAssetTypeAmountAndPnL(t *testing.T) {
	linear := LinearAsset{}
	if got := linear.Amount(100, 2); got != 200 {
		t.Fatalf("expected linear amount 200, got %v", got)
	}
	if got := linear.PnL(100, 110, 2); got != 20 {
		t.Fatalf("expected linear pnl 20, got %v", got)
	}

	inverse := InverseAsset{}
	if got := inverse.Amount(100, 200); got != 2 {
		t.Fatalf("expected inverse amount 2, got %v", got)
	}
}
