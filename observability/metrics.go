package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type ledgerMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	effects    *prometheus.CounterVec
	simulated  *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *ledgerMetrics
)

// Ledger returns the lazily-initialised metrics registry recording ledger
// operations and the collaborator calls they produce.
func Ledger() *ledgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &ledgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tranchefi",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by module, operation and outcome.",
			}, []string{"module", "operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tranchefi",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency of ledger operations including effect dispatch.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			effects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tranchefi",
				Subsystem: "ledger",
				Name:      "effects_total",
				Help:      "Collaborator calls issued after commits, segmented by kind and outcome.",
			}, []string{"kind", "outcome"}),
			simulated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tranchefi",
				Subsystem: "ledger",
				Name:      "simulations_total",
				Help:      "Dry-run operations whose state changes were discarded.",
			}, []string{"module", "operation"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.effects,
			ledgerRegistry.simulated,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records the outcome of a ledger operation. outcome should
// be a stable label such as "ok" or the error kind.
func (m *ledgerMetrics) ObserveOperation(module, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(module, operation, outcome).Inc()
	m.latency.WithLabelValues(module, operation).Observe(duration.Seconds())
}

// RecordEffect counts a dispatched effect.
func (m *ledgerMetrics) RecordEffect(kind string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.effects.WithLabelValues(kind, outcome).Inc()
}

// RecordSimulation counts a dry run.
func (m *ledgerMetrics) RecordSimulation(module, operation string) {
	if m == nil {
		return
	}
	m.simulated.WithLabelValues(module, operation).Inc()
}
