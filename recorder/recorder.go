// Package recorder defines the Recorder interface: a hook for snapshotting
// account state for offline performance-metric computation. Only the
// interface and the record shape are defined here; the backtest driver
// does not call a Recorder, and no concrete file-backed recorder
// (Parquet/NPY, as the original does) is provided.
package recorder

// Record is one asset's account snapshot at a point in time.
type Record struct {
	Timestamp        int64
	Price            float64
	Position         float64
	Balance          float64
	Fee              float64
	NumTrades        int64
	NumMessages      int64
	NumCancellations int64
	NumCreations     int64
	NumModifications int64
	TradingVolume    float64
	TradingValue     float64
}

// Recorder receives one Record per asset for each snapshot its caller
// records.
type Recorder interface {
	Record(assetNo int, rec Record) error
}
