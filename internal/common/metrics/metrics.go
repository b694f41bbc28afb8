// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_sessions_active",
			Help: "Number of realtime intake sessions currently open",
		},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sessions_total",
			Help: "Total number of realtime intake sessions by outcome",
		},
		[]string{"outcome"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_tool_calls_total",
			Help: "Total number of tool invocations intercepted by the relay",
		},
		[]string{"tool", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "gateway_tool_call_duration_seconds",
			Help: "Duration of tool invocations in seconds",
		},
		[]string{"tool"},
	)

	RecordsStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_intake_records_stored_total",
			Help: "Total number of intake records persisted",
		},
	)

	SearchDocumentsReturned = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_search_documents_returned",
			Help:    "Number of documents returned per knowledge base query",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
	)
)
