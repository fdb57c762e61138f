package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for evaluation runs.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	metrics.RecordPair("graded", 1.2)
type Metrics struct {
	// RunCounter counts evaluation runs.
	// Labels: retriever, status (ok|failed)
	RunCounter *prometheus.CounterVec

	// PairCounter counts evaluated pairs by outcome.
	// Labels: outcome (graded|skipped_generation|skipped_answer|...)
	PairCounter *prometheus.CounterVec

	// PairLatency measures answer-generation latency per graded pair.
	PairLatency prometheus.Histogram

	// LLMRequestCounter counts model calls.
	// Labels: provider, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRequestDuration measures model call latency in seconds.
	// Labels: provider
	LLMRequestDuration *prometheus.HistogramVec

	// EmbeddingRequestCounter counts embedding batches.
	// Labels: provider, status (success|error|rejected)
	EmbeddingRequestCounter *prometheus.CounterVec

	// HTTPRequestCounter counts HTTP requests.
	// Labels: method, path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil registerer falls back to the Prometheus default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaeval_runs_total",
				Help: "Total number of evaluation runs by retriever strategy and status",
			},
			[]string{"retriever", "status"},
		),

		PairCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaeval_pairs_total",
				Help: "Total number of evaluation pairs by outcome",
			},
			[]string{"outcome"},
		),

		PairLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qaeval_pair_latency_seconds",
				Help:    "Answer-generation latency of graded pairs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaeval_llm_requests_total",
				Help: "Total number of LLM requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qaeval_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider"},
		),

		EmbeddingRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaeval_embedding_requests_total",
				Help: "Total number of embedding requests by provider and status",
			},
			[]string{"provider", "status"},
		),

		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qaeval_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordRun increments the run counter.
func (m *Metrics) RecordRun(retriever, status string) {
	if m == nil {
		return
	}
	m.RunCounter.WithLabelValues(retriever, status).Inc()
}

// RecordPair records one pair outcome. Latency is observed only for graded pairs.
func (m *Metrics) RecordPair(outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	m.PairCounter.WithLabelValues(outcome).Inc()
	if outcome == "graded" {
		m.PairLatency.Observe(latencySeconds)
	}
}

// RecordLLMRequest records metrics for one model call.
func (m *Metrics) RecordLLMRequest(provider, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// RecordEmbeddingRequest records one embedding batch.
func (m *Metrics) RecordEmbeddingRequest(provider, status string) {
	if m == nil {
		return
	}
	m.EmbeddingRequestCounter.WithLabelValues(provider, status).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
}
