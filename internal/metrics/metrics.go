// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vietddude/acumba/internal/resilience"
)

var (
	// CallsTotal tracks finished guarded calls per operation and outcome
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acumba_calls_total",
			Help: "Total number of guarded API calls",
		},
		[]string{"operation", "outcome"},
	)

	// ErrorsTotal tracks every raised error, recovered or not
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acumba_errors_total",
			Help: "Total number of API errors by kind",
		},
		[]string{"operation", "kind"},
	)

	// RetriesTotal tracks scheduled retries
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acumba_retries_total",
			Help: "Total number of retries scheduled",
		},
		[]string{"operation"},
	)

	// BreakerRejectionsTotal tracks calls refused by an open breaker
	BreakerRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acumba_breaker_rejections_total",
			Help: "Total number of calls rejected by the circuit breaker",
		},
		[]string{"operation"},
	)

	// BreakerState is 0 when closed, 1 when half-open and 2 when open
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acumba_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"breaker"},
	)

	// CallLatency tracks guarded call latency, retries included
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acumba_call_latency_seconds",
			Help:    "Guarded API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// BulkItemsTotal tracks bulk items per operation and result
	BulkItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acumba_bulk_items_total",
			Help: "Total number of bulk items processed",
		},
		[]string{"operation", "result"},
	)

	// DLQDepth tracks pending dead-lettered operations
	DLQDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acumba_dlq_depth",
			Help: "Number of pending operations in the dead-letter queue",
		},
	)

	// DBConnectionPoolUsage tracks the share of open database connections
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acumba_db_pool_usage_percent",
			Help: "Open database connections as a percentage of the pool size",
		},
	)
)

// Observer feeds Guard telemetry into the collectors above.
type Observer struct{}

var _ resilience.Observer = Observer{}

func (Observer) CallFinished(op string, outcome resilience.Outcome, took time.Duration) {
	CallsTotal.WithLabelValues(op, string(outcome)).Inc()
	if outcome == resilience.OutcomeRejected {
		BreakerRejectionsTotal.WithLabelValues(op).Inc()
		return
	}
	CallLatency.WithLabelValues(op).Observe(took.Seconds())
}

func (Observer) ErrorRecorded(op string, kind resilience.Kind) {
	ErrorsTotal.WithLabelValues(op, string(kind)).Inc()
}

func (Observer) RetryScheduled(op string, _ int, _ time.Duration) {
	RetriesTotal.WithLabelValues(op).Inc()
}

func (Observer) BreakerStateChanged(name string, _, to resilience.State) {
	BreakerState.WithLabelValues(name).Set(StateValue(to))
}

// StateValue maps a breaker state to its gauge value.
func StateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	}
	return 0
}
