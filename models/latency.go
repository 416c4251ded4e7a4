// Package models holds the pure-function plug-in points the exchange and
// local processors consult on every order and fill: latency, fees, and
// the linear/inverse contract-value conversion for an asset.
package models

// LatencyModel estimates the one-way delay a request or response
// experiences crossing the wire between the local processor and the
// exchange processor.
type LatencyModel interface {
	// EntryLatency is added to an order request's local timestamp to
	// compute when the exchange processor observes it.
	EntryLatency(localTs int64) int64
	// ResponseLatency is added to an order response's exchange timestamp
	// to compute when the local processor observes it.
	ResponseLatency(exchTs int64) int64
}

// ConstantLatencyModel applies one fixed delay to every request and one
// fixed delay to every response, regardless of timestamp.
type ConstantLatencyModel struct {
	Entry    int64
	Response int64
}

func (m ConstantLatencyModel) EntryLatency(int64) int64    { return m.Entry }
func (m ConstantLatencyModel) ResponseLatency(int64) int64 { return m.Response }

// LatencyRow is one observed (local_ts, exch_ts, resp_ts) sample used by
// IntpLatencyModel to interpolate latency at timestamps between samples.
type LatencyRow struct {
	LocalTs int64
	ExchTs  int64
	RespTs  int64
}

// IntpLatencyModel linearly interpolates entry and response latency from a
// sorted table of historically observed round trips, extrapolating with
// the nearest sample's latency outside the table's range.
type IntpLatencyModel struct {
	rows []LatencyRow
}

// NewIntpLatencyModel constructs a model from rows sorted ascending by
// LocalTs; behavior is undefined for an unsorted table, and an empty
// table yields zero latency.
func NewIntpLatencyModel(rows []LatencyRow) *IntpLatencyModel {
	return &IntpLatencyModel{rows: rows}
}

func (m *IntpLatencyModel) EntryLatency(localTs int64) int64 {
	if len(m.rows) == 0 {
		return 0
	}
	if localTs <= m.rows[0].LocalTs {
		return m.rows[0].ExchTs - m.rows[0].LocalTs
	}
	last := m.rows[len(m.rows)-1]
	if localTs >= last.LocalTs {
		return last.ExchTs - last.LocalTs
	}
	lo, hi := m.bracket(localTs)
	frac := float64(localTs-lo.LocalTs) / float64(hi.LocalTs-lo.LocalTs)
	loLat := float64(lo.ExchTs - lo.LocalTs)
	hiLat := float64(hi.ExchTs - hi.LocalTs)
	return lo.ExchTs - lo.LocalTs + int64(frac*(hiLat-loLat))
}

func (m *IntpLatencyModel) ResponseLatency(exchTs int64) int64 {
	if len(m.rows) == 0 {
		return 0
	}
	if exchTs <= m.rows[0].ExchTs {
		return m.rows[0].RespTs - m.rows[0].ExchTs
	}
	last := m.rows[len(m.rows)-1]
	if exchTs >= last.ExchTs {
		return last.RespTs - last.ExchTs
	}
	var lo, hi LatencyRow
	for i := 1; i < len(m.rows); i++ {
		if m.rows[i].ExchTs >= exchTs {
			lo, hi = m.rows[i-1], m.rows[i]
			break
		}
	}
	frac := float64(exchTs-lo.ExchTs) / float64(hi.ExchTs-lo.ExchTs)
	loLat := float64(lo.RespTs - lo.ExchTs)
	hiLat := float64(hi.RespTs - hi.ExchTs)
	return lo.RespTs - lo.ExchTs + int64(frac*(hiLat-loLat))
}

func (m *IntpLatencyModel) bracket(localTs int64) (LatencyRow, LatencyRow) {
	for i := 1; i < len(m.rows); i++ {
		if m.rows[i].LocalTs >= localTs {
			return m.rows[i-1], m.rows[i]
		}
	}
	return m.rows[len(m.rows)-2], m.rows[len(m.rows)-1]
}
