// Package metrics exposes Prometheus collectors for Traceline's
// operational counters and latency histograms.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EmailsProcessed counts inbound emails handled successfully.
	EmailsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traceline",
		Subsystem: "mail",
		Name:      "emails_processed_total",
		Help:      "Inbound emails processed successfully.",
	})

	// EmailsFailed counts inbound emails that could not be processed.
	EmailsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traceline",
		Subsystem: "mail",
		Name:      "emails_failed_total",
		Help:      "Inbound emails that failed processing.",
	})

	// EmailParses counts parse outcomes by method (structured, llm, none).
	EmailParses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traceline",
		Subsystem: "mail",
		Name:      "email_parses_total",
		Help:      "Reply parse outcomes by method.",
	}, []string{"method"})

	// SolverRuns counts schedule solves by resulting status.
	SolverRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "traceline",
		Subsystem: "scheduler",
		Name:      "solver_runs_total",
		Help:      "Schedule solves by status.",
	}, []string{"status"})

	// SolverDuration observes solver wall time.
	SolverDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "traceline",
		Subsystem: "scheduler",
		Name:      "solver_duration_seconds",
		Help:      "Wall time per schedule solve.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	// SignaturesCreated counts new digital signatures.
	SignaturesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traceline",
		Subsystem: "signature",
		Name:      "created_total",
		Help:      "Digital signatures created.",
	})

	// SignaturesInvalidated counts signatures invalidated by mutation or request.
	SignaturesInvalidated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "traceline",
		Subsystem: "signature",
		Name:      "invalidated_total",
		Help:      "Digital signatures invalidated.",
	})

	// HTTPDuration observes request latency by method, route pattern, and status.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "traceline",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Handler returns the /metrics scrape handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
