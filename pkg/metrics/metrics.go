package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouterTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evergreen_router_turns_total",
			Help: "Router turns by classified intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	RouterToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evergreen_router_tool_calls_total",
			Help: "Capability invocations requested by the LLM",
		},
		[]string{"tool", "outcome"},
	)

	RouterTurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evergreen_router_turn_duration_seconds",
			Help:    "Duration of a router turn",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"intent"},
	)

	EmbeddingCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evergreen_embedding_cache_total",
			Help: "Embedding cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	EmbeddingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "evergreen_embedding_duration_seconds",
			Help: "Latency of embedding provider calls",
		},
	)

	RetrievalResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "evergreen_retrieval_results",
			Help:    "Number of results returned per retrieval query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)

	ReportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evergreen_report_runs_total",
			Help: "Per-customer report generations by outcome",
		},
		[]string{"outcome"},
	)

	ReportsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evergreen_reports_in_flight",
			Help: "Report generations currently running",
		},
	)
)

const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeDenied    = "denied"
	OutcomeTruncated = "truncated"
	OutcomeFallback  = "fallback"
)
