package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger module.
type Metrics struct {
	// Transfer outcomes by stable reason ("completed" on success)
	TransferOutcome *prometheus.CounterVec

	// Full transfer duration including the atomic scope
	TransferLatency prometheus.Histogram

	// Fee degradations: configured fee account was unresolvable at transfer time
	FeeDegraded prometheus.Counter
}

// New creates a Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		TransferOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "giro_ledger_transfer_outcomes_total",
			Help: "Total transfer outcomes by reason",
		}, []string{"outcome"}),

		TransferLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "giro_ledger_transfer_duration_seconds",
			Help:    "Duration of transfer execution including the atomic scope",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		FeeDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "giro_ledger_fee_degraded_total",
			Help: "Transfers that proceeded with zero fee because the fee account was unresolvable",
		}),
	}
}

// IncrementOutcome records a transfer outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.TransferOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveTransferLatency records one transfer duration.
func (m *Metrics) ObserveTransferLatency(d time.Duration) {
	if m != nil {
		m.TransferLatency.Observe(d.Seconds())
	}
}

// IncrementFeeDegraded records a fee degradation.
func (m *Metrics) IncrementFeeDegraded() {
	if m != nil {
		m.FeeDegraded.Inc()
	}
}
