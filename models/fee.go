package models

// FeeModel computes the fee charged on a fill, in quote currency.
// Exec price/qty are in natural units; maker reports whether the fill
// rested (true) or crossed (false) the book, since venues commonly rebate
// makers and charge takers at different rates.
type FeeModel interface {
	Fee(execPrice, execQty float64, maker bool) float64
}

// FlatFeeModel charges a single rate regardless of maker/taker side,
// e.g. a flat 10bps: Rate = 0.0010.
type FlatFeeModel struct {
	Rate float64
}

func (m FlatFeeModel) Fee(execPrice, execQty float64, _ bool) float64 {
	return execPrice * execQty * m.Rate
}

// TieredFeeModel applies distinct maker and taker rates; a negative
// MakerRate is a rebate.
type TieredFeeModel struct {
	MakerRate float64
	TakerRate float64
}

func (m TieredFeeModel) Fee(execPrice, execQty float64, maker bool) float64 {
	rate := m.TakerRate
	if maker {
		rate = m.MakerRate
	}
	return execPrice * execQty * rate
}
