// Package metrics provides the Prometheus metrics registry the planner and
// registry loader observe through.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets are the execution-latency histogram boundaries, in
// milliseconds.
var latencyBuckets = []float64{50, 100, 200, 400, 800, 1600, 3200, 6400}

// Metrics holds every instrument the core observes through.
type Metrics struct {
	ToolsLoaded             prometheus.Gauge
	ToolLoadErrors          prometheus.Counter
	PlannerBidsTotal        *prometheus.CounterVec
	PlannerSelectionTotal   *prometheus.CounterVec
	PlannerFallbacksTotal   *prometheus.CounterVec
	PlannerExecutionLatency *prometheus.HistogramVec
	TraceCreatedTotal       prometheus.Counter
	TraceEventsTotal        prometheus.Counter
}

// New creates and registers every instrument with reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ToolsLoaded: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "caprouter",
			Name:      "tools_loaded",
			Help:      "Number of tools in the currently published registry snapshot",
		}),
		ToolLoadErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "caprouter",
			Name:      "tool_load_errors",
			Help:      "Total registry rebuilds that failed (read, parse, or validation error)",
		}),
		PlannerBidsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "caprouter",
			Name:      "planner_bids_total",
			Help:      "Total scored candidate bids",
		}, []string{"capability", "tool"}),
		PlannerSelectionTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "caprouter",
			Name:      "planner_selection_total",
			Help:      "Total successful candidate selections",
		}, []string{"capability", "tool"}),
		PlannerFallbacksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "caprouter",
			Name:      "planner_fallbacks_total",
			Help:      "Total fallback transitions (failure or post-check reject)",
		}, []string{"capability"}),
		PlannerExecutionLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "caprouter",
			Name:      "planner_execution_latency_ms",
			Help:      "Successful execution latency in milliseconds",
			Buckets:   latencyBuckets,
		}, []string{"tool"}),
		TraceCreatedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "caprouter",
			Name:      "trace_created_total",
			Help:      "Total traces created",
		}),
		TraceEventsTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "caprouter",
			Name:      "trace_events_total",
			Help:      "Total trace events recorded",
		}),
	}
}
