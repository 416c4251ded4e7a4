package metrics

import "testing"

func TestGetCollectorIsASingleton(t *testing.T) {
	a := GetCollector()
	b := GetCollector()
	if a != b {
		t.Fatalf("expected GetCollector to return the same instance")
	}
}

func TestRecordFillDoesNotPanic(t *testing.T) {
	c := GetCollector()
	c.RecordFill("BTCUSDT", "buy", true, 100, 150)
	c.RecordFill("BTCUSDT", "sell", false, 100, 100)
}

func TestHandlerIsNonNil(t *testing.T) {
	if Handler() == nil {
		t.Fatalf("expected a non-nil scrape handler")
	}
}
