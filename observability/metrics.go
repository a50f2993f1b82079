package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetricsRegistry records settlement activity: one counter pair per
// operation segmented by outcome, plus a latency histogram. Registered
// lazily on the default prometheus registerer.
type MarketMetricsRegistry struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	feePool    prometheus.Gauge
	openOrders prometheus.Gauge
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetricsRegistry
)

// MarketMetrics returns the lazily-initialised settlement metrics registry.
func MarketMetrics() *MarketMetricsRegistry {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetricsRegistry{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ominis",
				Subsystem: "market",
				Name:      "operations_total",
				Help:      "Total settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "ominis",
				Subsystem: "market",
				Name:      "operation_seconds",
				Help:      "Settlement operation latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			feePool: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ominis",
				Subsystem: "market",
				Name:      "fee_pool_units",
				Help:      "Accrued protocol fees in payment-token units.",
			}),
			openOrders: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ominis",
				Subsystem: "market",
				Name:      "open_orders",
				Help:      "Number of orders currently open.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.latency,
			marketRegistry.feePool,
			marketRegistry.openOrders,
		)
	})
	return marketRegistry
}

// ObserveOperation records one settlement call with its outcome and duration.
func (m *MarketMetricsRegistry) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// SetFeePool updates the accrued fee gauge.
func (m *MarketMetricsRegistry) SetFeePool(units float64) {
	if m == nil {
		return
	}
	m.feePool.Set(units)
}

// SetOpenOrders updates the open-order gauge.
func (m *MarketMetricsRegistry) SetOpenOrders(n int) {
	if m == nil {
		return
	}
	m.openOrders.Set(float64(n))
}
