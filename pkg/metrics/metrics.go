// Package metrics exposes queueio's Prometheus catalog: invocation
// throughput, completion status, suspend/resume latency, and how many
// invocations are in flight per routine. All of it is derived from the
// lifecycle events a Stream already publishes, rather than by reaching
// into broker or receiver internals, so the catalog stays accurate
// regardless of which Broker implementation is running.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// InvocationsSubmittedTotal counts every invocation enqueued, by
	// routine.
	InvocationsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queueio_invocations_submitted_total",
			Help: "Total number of invocations submitted, by routine",
		},
		[]string{"routine"},
	)

	// InvocationsCompletedTotal counts every invocation that reached a
	// final Ok or Err result, by routine and outcome.
	InvocationsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queueio_invocations_completed_total",
			Help: "Total number of invocations completed, by routine and status",
		},
		[]string{"routine", "status"},
	)

	// InvocationsSuspendedTotal counts every Suspended event, by
	// routine. A single invocation may suspend more than once.
	InvocationsSuspendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queueio_invocations_suspended_total",
			Help: "Total number of times invocations suspended, by routine",
		},
		[]string{"routine"},
	)

	// InvocationsInFlight is the number of invocations submitted but not
	// yet completed, by routine — a proxy for queue depth plus active
	// execution, since neither is separately observable across every
	// Broker implementation.
	InvocationsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queueio_invocations_in_flight",
			Help: "Number of invocations submitted but not yet completed, by routine",
		},
		[]string{"routine"},
	)

	// InvocationDuration is the time from Submitted to Completed, by
	// routine.
	InvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queueio_invocation_duration_seconds",
			Help:    "Time from submission to completion, by routine",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"routine"},
	)

	// SuspensionDuration is the time from Suspended to Resumed, by
	// routine — how long a routine actually spent awaiting a
	// Suspension.
	SuspensionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queueio_suspension_duration_seconds",
			Help:    "Time spent suspended awaiting a value or error, by routine",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"routine"},
	)
)

func init() {
	prometheus.MustRegister(
		InvocationsSubmittedTotal,
		InvocationsCompletedTotal,
		InvocationsSuspendedTotal,
		InvocationsInFlight,
		InvocationDuration,
		SuspensionDuration,
	)
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
