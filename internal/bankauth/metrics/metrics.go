package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the bank authentication module.
type Metrics struct {
	// Challenge issuance volume
	ChallengesIssued prometheus.Counter

	// Ticket issuance outcomes by stable reason ("issued" on success)
	TicketOutcome *prometheus.CounterVec

	// Ownership oracle round-trip latency
	OracleLatency prometheus.Histogram
}

// New creates a Metrics instance with all bank auth metrics registered.
func New() *Metrics {
	return &Metrics{
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "giro_bankauth_challenges_issued_total",
			Help: "Total authentication challenges issued",
		}),

		TicketOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "giro_bankauth_ticket_outcomes_total",
			Help: "Total ticket issuance outcomes by reason",
		}, []string{"outcome"}),

		OracleLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "giro_bankauth_oracle_duration_seconds",
			Help:    "Duration of ownership oracle queries",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncrementChallenges records an issued challenge.
func (m *Metrics) IncrementChallenges() {
	if m != nil {
		m.ChallengesIssued.Inc()
	}
}

// IncrementOutcome records a ticket issuance outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.TicketOutcome.WithLabelValues(outcome).Inc()
	}
}

// ObserveOracleLatency records one oracle round trip.
func (m *Metrics) ObserveOracleLatency(d time.Duration) {
	if m != nil {
		m.OracleLatency.Observe(d.Seconds())
	}
}
