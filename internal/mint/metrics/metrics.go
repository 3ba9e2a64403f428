package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the mint module.
type Metrics struct {
	// Authorization outcomes: issued, reissued, or the failure kind
	AuthorizeOutcome *prometheus.CounterVec

	AuthorizeLatency prometheus.Histogram

	// Identifiers handed out per category
	Allocations *prometheus.CounterVec

	// Records moved to confirmed by source (chain_event, registration)
	Confirmations *prometheus.CounterVec

	ReconcileFailures prometheus.Counter

	// Last block the chain watcher fully applied
	WatcherCursor prometheus.Gauge
}

// New creates a new Metrics instance with all mint metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthorizeOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_authorize_outcomes_total",
			Help: "Authorization requests by outcome",
		}, []string{"outcome"}),

		AuthorizeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mintgate_authorize_duration_seconds",
			Help:    "Duration of authorization including eligibility, allocation and signing",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		Allocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_allocations_total",
			Help: "Identifiers allocated by category",
		}, []string{"category"}),

		Confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mintgate_confirmations_total",
			Help: "Mint records confirmed by source",
		}, []string{"source"}),

		ReconcileFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "mintgate_reconcile_failures_total",
			Help: "Chain events that could not be applied and await redelivery",
		}),

		WatcherCursor: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mintgate_chain_watcher_cursor_block",
			Help: "Highest block whose mint events have been applied",
		}),
	}
}

func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.AuthorizeOutcome.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveAuthorizeLatency(d time.Duration) {
	if m != nil {
		m.AuthorizeLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementAllocation(category int) {
	if m != nil {
		m.Allocations.WithLabelValues(strconv.Itoa(category)).Inc()
	}
}

func (m *Metrics) IncrementConfirmation(source string) {
	if m != nil {
		m.Confirmations.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) IncrementReconcileFailure() {
	if m != nil {
		m.ReconcileFailures.Inc()
	}
}

func (m *Metrics) SetWatcherCursor(block uint64) {
	if m != nil {
		m.WatcherCursor.Set(float64(block))
	}
}
