package simtypes

import "testing"

func TestUpdateAdvancesExchTs(t *testing.T) {
	o := &Order{ExchTs: 100}
	stale := o.Update(&Order{ExchTs: 200, LeavesQty: 1, Status: PartiallyFilled})
	if stale {
		t.Fatalf("expected a forward update to not be stale")
	}
	if o.ExchTs != 200 || o.Status != PartiallyFilled {
		t.Fatalf("expected fields merged from response, got %+v", o)
	}
}

func TestUpdateDetectsStaleResponse(t *testing.T) {
	o := &Order{ExchTs: 200, Status: PartiallyFilled}
	stale := o.Update(&Order{ExchTs: 100, Status: Filled})
	if !stale {
		t.Fatalf("expected an older exch_ts to be reported stale")
	}
	if o.ExchTs != 200 {
		t.Fatalf("expected exch_ts to not move backward, got %d", o.ExchTs)
	}
	if o.Status != Filled {
		t.Fatalf("expected non-timestamp fields to still merge even when stale, got %v", o.Status)
	}
}

func TestRoundToTickAndLot(t *testing.T) {
	// 100.05/0.1 evaluates to 1000.4999999999999 in float64, so it rounds down.
	if got := RoundToTick(100.05, 0.1); got != 1000 {
		t.Fatalf("expected tick 1000, got %d", got)
	}
	if got := RoundToLot(0.015, 0.01); got != 2 {
		t.Fatalf("expected 2 lots, got %d", got)
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{Filled, Canceled, Expired, Rejected} {
		if !s.Terminal() {
			t.Fatalf("expected %v to be terminal", s)
		}
	}
	for _, s := range []Status{None, New, PartiallyFilled, Replaced} {
		if s.Terminal() {
			t.Fatalf("expected %v to not be terminal", s)
		}
	}
}

func TestSideOpposite(t *testing.T) {
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Fatalf("expected Buy/Sell to be opposites")
	}
}
