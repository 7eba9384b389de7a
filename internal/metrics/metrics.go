// Package metrics exposes Prometheus instrumentation for provider calls and
// consensus decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OpValidate  = "validate"
	OpSummarize = "summarize"
)

// Status labels.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPanic   = "panic"
)

var (
	// providerCalls counts adapter calls.
	// Labels: provider, operation (validate, summarize), status (success, error, panic)
	providerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jazamiti",
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "Total AI provider calls by outcome",
	}, []string{"provider", "operation", "status"})

	// providerLatency measures adapter call latency.
	// Labels: provider, operation
	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jazamiti",
		Subsystem: "provider",
		Name:      "latency_seconds",
		Help:      "AI provider call latency in seconds",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"provider", "operation"})

	// consensusDecisions counts consensus outcomes.
	// Labels: decision (valid, invalid), strength (strong, weak, none)
	consensusDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jazamiti",
		Subsystem: "consensus",
		Name:      "decisions_total",
		Help:      "Total consensus decisions by outcome and strength",
	}, []string{"decision", "strength"})

	// consensusConfidence tracks the distribution of mean confidence.
	consensusConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jazamiti",
		Subsystem: "consensus",
		Name:      "confidence",
		Help:      "Distribution of consensus confidence scores",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	// consensusFallbacks counts whole-operation fallbacks.
	// Labels: operation
	consensusFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jazamiti",
		Subsystem: "consensus",
		Name:      "fallbacks_total",
		Help:      "Total fallback results returned after an internal error",
	}, []string{"operation"})
)

// RecordProviderCall records one adapter call and its latency.
func RecordProviderCall(provider, operation, status string, durationSec float64) {
	providerCalls.WithLabelValues(provider, operation, status).Inc()
	providerLatency.WithLabelValues(provider, operation).Observe(durationSec)
}

// RecordDecision records a computed consensus result.
//
// Inputs:
//
//	valid - The final decision.
//	reached - Whether the threshold was met.
//	verdicts - Number of verdicts the decision was computed from.
//	confidence - Mean confidence (0.0-1.0).
func RecordDecision(valid, reached bool, verdicts int, confidence float64) {
	decision := "invalid"
	if valid {
		decision = "valid"
	}
	strength := "weak"
	switch {
	case verdicts == 0:
		strength = "none"
	case reached:
		strength = "strong"
	}
	consensusDecisions.WithLabelValues(decision, strength).Inc()
	if verdicts > 0 {
		consensusConfidence.Observe(confidence)
	}
}

// RecordFallback records an operation that returned its safe default.
func RecordFallback(operation string) {
	consensusFallbacks.WithLabelValues(operation).Inc()
}
