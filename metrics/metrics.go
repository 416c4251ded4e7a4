// Package metrics exposes the kernel's run counters as Prometheus
// collectors, scaled down from the singleton-collector pattern the wider
// retrieval pack uses for live trading services to the handful of series a
// deterministic backtest run actually produces.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the kernel's run metrics.
type Collector struct {
	EventsProcessed *prometheus.CounterVec
	OrdersSubmitted *prometheus.CounterVec
	OrdersFilled    *prometheus.CounterVec
	FillLatencyUs   *prometheus.HistogramVec
	ResponseLatencyUs *prometheus.HistogramVec
	OpenPosition    *prometheus.GaugeVec
}

var (
	collector     *Collector
	collectorOnce sync.Once
)

// GetCollector returns the process-wide singleton collector, constructing
// and registering it on first use.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{
		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hftsim",
				Subsystem: "driver",
				Name:      "events_processed_total",
				Help:      "Feed and order-bus events dispatched by the driver.",
			},
			[]string{"symbol", "kind"},
		),
		OrdersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hftsim",
				Subsystem: "orders",
				Name:      "submitted_total",
				Help:      "Orders submitted to the exchange processor.",
			},
			[]string{"symbol", "side"},
		),
		OrdersFilled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hftsim",
				Subsystem: "orders",
				Name:      "filled_total",
				Help:      "Orders (or partial fills) that completed a trade.",
			},
			[]string{"symbol", "side", "maker"},
		),
		FillLatencyUs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hftsim",
				Subsystem: "orders",
				Name:      "fill_latency_us",
				Help:      "Microseconds between order entry and fill.",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{"symbol"},
		),
		ResponseLatencyUs: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hftsim",
				Subsystem: "orders",
				Name:      "response_latency_us",
				Help:      "Microseconds between exchange ack and local visibility.",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000},
			},
			[]string{"symbol"},
		),
		OpenPosition: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "hftsim",
				Subsystem: "state",
				Name:      "open_position",
				Help:      "Current net position per asset.",
			},
			[]string{"symbol"},
		),
	}
	prometheus.MustRegister(
		c.EventsProcessed,
		c.OrdersSubmitted,
		c.OrdersFilled,
		c.FillLatencyUs,
		c.ResponseLatencyUs,
		c.OpenPosition,
	)
	return c
}

// RecordFill records a completed (or partially completed) fill.
func (c *Collector) RecordFill(symbol, side string, maker bool, entryTs, fillTs int64) {
	makerLabel := "taker"
	if maker {
		makerLabel = "maker"
	}
	c.OrdersFilled.WithLabelValues(symbol, side, makerLabel).Inc()
	if fillTs > entryTs {
		c.FillLatencyUs.WithLabelValues(symbol).Observe(float64(fillTs-entryTs) / 1000.0)
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }
