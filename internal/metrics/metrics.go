// Package metrics exposes Prometheus collectors for the guard layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"GuardLane/pkg/breaker"
)

var (
	// BreakerState tracks the current state per dependency
	// (0 CLOSED, 1 OPEN, 2 HALF_OPEN).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "guardlane",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current circuit breaker state (0=closed, 1=open, 2=half_open).",
	}, []string{"dependency"})

	// BreakerTransitions counts state transitions per dependency.
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guardlane",
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Circuit breaker state transitions.",
	}, []string{"dependency", "to"})

	// RateLimitDecisions counts limiter admissions and rejections.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guardlane",
		Subsystem: "ratelimit",
		Name:      "decisions_total",
		Help:      "Rate limiter admission decisions.",
	}, []string{"limiter", "outcome"})

	// RateLimitKeys tracks the number of caller keys each limiter holds.
	RateLimitKeys = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "guardlane",
		Subsystem: "ratelimit",
		Name:      "keys",
		Help:      "Caller keys currently tracked per limiter.",
	}, []string{"limiter"})
)

// ObserveBreakerTransition is a breaker.StateChangeHook updating the
// breaker collectors.
func ObserveBreakerTransition(name string, _, to breaker.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
	BreakerTransitions.WithLabelValues(name, to.String()).Inc()
}

// ObserveRateLimitDecision records one limiter decision.
func ObserveRateLimitDecision(limiter string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	RateLimitDecisions.WithLabelValues(limiter, outcome).Inc()
}
