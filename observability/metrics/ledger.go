package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	blockHeight   prometheus.Gauge
	blockSeconds  prometheus.Histogram
	blockEvents   *prometheus.CounterVec
	blockFailures prometheus.Counter
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "capchain_block_height",
				Help: "Height of the last committed block.",
			}),
			blockSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "capchain_block_seconds",
				Help:    "Wall clock time spent producing one block.",
				Buckets: prometheus.DefBuckets,
			}),
			blockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "capchain_block_events_total",
				Help: "Events emitted by committed blocks, by event type.",
			}, []string{"type"}),
			blockFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "capchain_block_failures_total",
				Help: "Blocks whose begin or end hook returned an error.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.blockHeight,
			ledgerRegistry.blockSeconds,
			ledgerRegistry.blockEvents,
			ledgerRegistry.blockFailures,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveBlock(height uint64, seconds float64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(height))
	m.blockSeconds.Observe(seconds)
}

func (m *LedgerMetrics) ObserveEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.blockEvents.WithLabelValues(eventType).Inc()
}

func (m *LedgerMetrics) ObserveBlockFailure() {
	if m == nil {
		return
	}
	m.blockFailures.Inc()
}
