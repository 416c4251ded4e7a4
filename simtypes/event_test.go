package simtypes

import "testing"

func TestEventVisible(t *testing.T) {
	ev := Event{Flags: LocalFlag | TradeEvent}
	if !ev.Visible(LocalFlag) {
		t.Fatalf("expected event to be local-visible")
	}
	if ev.Visible(ExchFlag) {
		t.Fatalf("expected event to not be exchange-visible")
	}
}

func TestEventTimestampPicksSideByVisibility(t *testing.T) {
	ev := Event{LocalTs: 10, ExchTs: 20}
	if got := ev.Timestamp(LocalFlag); got != 10 {
		t.Fatalf("expected local timestamp 10, got %d", got)
	}
	if got := ev.Timestamp(ExchFlag); got != 20 {
		t.Fatalf("expected exch timestamp 20, got %d", got)
	}
}

func TestFlagsSide(t *testing.T) {
	if side, ok := (BuyFlag | TradeEvent).Side(); !ok || side != Buy {
		t.Fatalf("expected Buy side, got %v ok=%v", side, ok)
	}
	if _, ok := TradeEvent.Side(); ok {
		t.Fatalf("expected no side when neither bit is set")
	}
}
