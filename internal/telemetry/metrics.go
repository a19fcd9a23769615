package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig controls whether the three orchestrator-level metrics
// this package exposes are collected at all.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled,omitempty"`
	Namespace string `yaml:"namespace,omitempty"`
}

func (c *MetricsConfig) SetDefaults() {
	if c.Namespace == "" {
		c.Namespace = "genesis"
	}
}

// Metrics collects the three signals SPEC_FULL.md names: tool invocation
// counts, path-planning duration, and precedent hit rate (derived from
// the hit/miss/empty counter's label breakdown, the usual Prometheus
// rate-over-counter approach rather than a pre-computed gauge). A nil
// *Metrics is valid and every method on it is a no-op, so callers never
// need to branch on whether metrics collection is enabled.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	pathPlanningDuration *prometheus.HistogramVec
	pathsFound           *prometheus.HistogramVec

	precedentLookups *prometheus.CounterVec
}

// NewMetrics builds a registry and the five metric families behind those
// three signals, or returns a nil *Metrics when cfg disables collection.
func NewMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	cfg.SetDefaults()

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.toolCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "executor",
		Name:      "tool_calls_total",
		Help:      "Total number of tool invocations by outcome.",
	}, []string{"tool_name", "status"})

	m.toolCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "executor",
		Name:      "tool_call_duration_seconds",
		Help:      "Tool invocation duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
	}, []string{"tool_name"})

	m.pathPlanningDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "planner",
		Name:      "path_planning_duration_seconds",
		Help:      "Duration of a single FindPaths run in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"input_type"})

	m.pathsFound = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: "planner",
		Name:      "paths_found_count",
		Help:      "Number of candidate paths a FindPaths run returned.",
		Buckets:   prometheus.LinearBuckets(0, 2, 9),
	}, []string{"input_type"})

	m.precedentLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: "precedent",
		Name:      "lookups_total",
		Help:      "Total precedent lookups by result (hit, miss, empty).",
	}, []string{"result"})

	m.registry.MustRegister(m.toolCalls, m.toolCallDuration, m.pathPlanningDuration, m.pathsFound, m.precedentLookups)
	return m
}

// RecordToolCall records one tool invocation's outcome and duration.
func (m *Metrics) RecordToolCall(toolName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName, status).Inc()
	m.toolCallDuration.WithLabelValues(toolName).Observe(duration.Seconds())
}

// RecordPathPlanning records how long one FindPaths run took and how
// many candidates it returned.
func (m *Metrics) RecordPathPlanning(inputType string, duration time.Duration, pathCount int) {
	if m == nil {
		return
	}
	m.pathPlanningDuration.WithLabelValues(inputType).Observe(duration.Seconds())
	m.pathsFound.WithLabelValues(inputType).Observe(float64(pathCount))
}

// RecordPrecedentLookup records one precedent lookup's result: "hit",
// "miss" (scored below threshold), or "empty" (no candidates at all).
func (m *Metrics) RecordPrecedentLookup(result string) {
	if m == nil {
		return
	}
	m.precedentLookups.WithLabelValues(result).Inc()
}

// Handler exposes the registry over HTTP for Prometheus to scrape.
// Serving 503 when metrics are disabled keeps the route wireable
// unconditionally in the server's router without a nil check at the
// call site.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
