// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	Panics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Handler panics recovered, by route",
		},
		[]string{"route"},
	)

	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignment_transitions_total",
			Help: "Assignment status transitions applied",
		},
		[]string{"from", "to"},
	)

	TimedOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assignments_timed_out_total",
			Help: "Assignments moved to timeout, by detection path (sweep or lazy)",
		},
		[]string{"source"},
	)

	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_evaluations_total",
			Help: "AI evaluation attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ScorerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_scorer_duration_seconds",
			Help:    "Latency of calls to the external scorer",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	SideEffectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "side_effects_failed_total",
			Help: "Failed fire-and-forget side effects (notification, email, enqueue)",
		},
		[]string{"kind"},
	)

	EvaluationJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evaluation_jobs_total",
			Help: "Evaluation jobs processed by the queue consumer",
		},
		[]string{"outcome"},
	)
)

var once sync.Once

// Register adds every collector to reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	once.Do(func() {
		reg.MustRegister(
			RequestCounter,
			RequestDuration,
			Panics,
			Transitions,
			TimedOut,
			Evaluations,
			ScorerDuration,
			SideEffectFailures,
			EvaluationJobs,
		)
	})
}

// Handler serves the default gatherer in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
