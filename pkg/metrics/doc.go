/*
Package metrics provides Prometheus metrics collection, health checking,
and HTTP exposition for queueio.

The metrics package defines and registers queueio's invocation-lifecycle
metrics using the Prometheus client library, giving observability into
throughput, completion outcomes, and suspension latency without reaching
into broker or receiver internals. Metrics are exposed via an HTTP
endpoint for scraping by Prometheus servers.

# Architecture

queueio's metrics system is event-driven rather than poll-driven: a
Collector subscribes to the same Stream a worker pool consumes from,
and derives every counter, gauge, and histogram from the lifecycle
events Submitted, Suspended, Resumed, and Completed.

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │                  Stream                      │          │
	│  │  Submitted / Suspended / Resumed / Completed │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │                Collector                     │          │
	│  │  - tracks routine + timestamps per invocation│          │
	│  │  - updates vectors on each event             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Prometheus Registry                │          │
	│  │  - MustRegister at package init              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                            │          │
	│  │  - Handler: metrics.Handler()                │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metric Catalog

	queueio_invocations_submitted_total{routine}            counter
	queueio_invocations_completed_total{routine,status}      counter
	queueio_invocations_suspended_total{routine}             counter
	queueio_invocations_in_flight{routine}                   gauge
	queueio_invocation_duration_seconds{routine}             histogram
	queueio_suspension_duration_seconds{routine}             histogram

status is "ok" or "error", matching the Completed event's Result.

# Example Queries

Invocation throughput by routine over the last 5 minutes:

	rate(queueio_invocations_submitted_total[5m])

Error rate by routine:

	rate(queueio_invocations_completed_total{status="error"}[5m])
	  / rate(queueio_invocations_completed_total[5m])

p99 invocation latency:

	histogram_quantile(0.99, rate(queueio_invocation_duration_seconds_bucket[5m]))

Invocations stuck in flight (a proxy for queue backlog plus active
execution, since depth isn't separately observable across every Broker
implementation):

	queueio_invocations_in_flight

# Health and Readiness

Health is modeled on what this process actually needs to move
invocations: the broker and journal connections (MarkBroker and
MarkJournal record their state) and each worker pool's liveness
(Heartbeat, keyed by queue spec, carrying the pool's concurrency and
current in-flight count). A pool silent longer than PoolStaleAfter
degrades overall health; a downed connection makes it unhealthy.
Readiness requires both connections up, nothing more, so a
producer-only process with no pools still reports ready. HealthHandler,
ReadyHandler, and LivenessHandler serve /health, /ready, and /live.

# Usage

	metrics.MarkBroker(true, "")
	metrics.MarkJournal(true, "")

	collector := metrics.NewCollector(rt.Stream())
	collector.Start()
	defer collector.Stop()

	metrics.Heartbeat("default=4", 4, collector.InFlight())

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
*/
package metrics
