package models

import "testing"

func TestConstantLatencyModel(t *testing.T) {
	m := ConstantLatencyModel{Entry: 100, Response: 50}
	if got := m.EntryLatency(0); got != 100 {
		t.Fatalf("expected entry latency 100, got %d", got)
	}
	if got := m.ResponseLatency(999); got != 50 {
		t.Fatalf("expected response latency 50, got %d", got)
	}
}

func TestIntpLatencyModelClampsOutsideRange(t *testing.T) {
	m := NewIntpLatencyModel([]LatencyRow{
		{LocalTs: 100, ExchTs: 150, RespTs: 200},
		{LocalTs: 200, ExchTs: 260, RespTs: 310},
	})

	if got := m.EntryLatency(0); got != 50 {
		t.Fatalf("expected first row's latency before range, got %d", got)
	}
	if got := m.EntryLatency(1000); got != 60 {
		t.Fatalf("expected last row's latency after range, got %d", got)
	}
}

func TestIntpLatencyModelInterpolates(t *testing.T) {
	m := NewIntpLatencyModel([]LatencyRow{
		{LocalTs: 0, ExchTs: 100, RespTs: 200},
		{LocalTs: 100, ExchTs: 250, RespTs: 400},
	})

	// Halfway between the two samples, latency should be halfway between
	// the two observed entry latencies (100 and 150).
	got := m.EntryLatency(50)
	if got != 125 {
		t.Fatalf("expected interpolated entry latency 125, got %d", got)
	}
}

func TestIntpLatencyModelEmptyTable(t *testing.T) {
	m := NewIntpLatencyModel(nil)
	if got := m.EntryLatency(42); got != 0 {
		t.Fatalf("expected zero latency from an empty table, got %d", got)
	}
	if got := m.ResponseLatency(42); got != 0 {
		t.Fatalf("expected zero latency from an empty table, got %d", got)
	}
}
