package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtalk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashtalk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Turn metrics
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtalk_turns_total",
			Help: "Total number of chat turns processed",
		},
		[]string{"status"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashtalk_turn_duration_seconds",
			Help:    "Chat turn duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	tokensStreamed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hashtalk_tokens_streamed_total",
			Help: "Total number of token events streamed to clients",
		},
	)

	// Tool metrics
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtalk_tool_calls_total",
			Help: "Total number of tool invocations",
		},
		[]string{"tool", "status"},
	)

	toolCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hashtalk_tool_call_duration_seconds",
			Help:    "Tool invocation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Compaction metrics
	compactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hashtalk_compactions_total",
			Help: "Total number of history compactions",
		},
		[]string{"status"},
	)

	compactionTurnsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hashtalk_compaction_turns_dropped_total",
			Help: "Total number of turns folded into summaries",
		},
	)

	// Stream metrics
	activeStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hashtalk_active_streams",
			Help: "Number of active SSE streams",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all Prometheus metrics. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			turnsTotal,
			turnDuration,
			tokensStreamed,
			toolCallsTotal,
			toolCallDuration,
			compactionsTotal,
			compactionTurnsDropped,
			activeStreams,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTurn records one completed chat turn
func RecordTurn(status string, duration time.Duration) {
	turnsTotal.WithLabelValues(status).Inc()
	turnDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordTokenStreamed counts one token event delivered to a client
func RecordTokenStreamed() {
	tokensStreamed.Inc()
}

// RecordToolCall records one tool invocation
func RecordToolCall(tool, status string, duration time.Duration) {
	toolCallsTotal.WithLabelValues(tool, status).Inc()
	toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordCompaction records one compaction attempt and the turns it folded away
func RecordCompaction(status string, turnsDropped int) {
	compactionsTotal.WithLabelValues(status).Inc()
	if turnsDropped > 0 {
		compactionTurnsDropped.Add(float64(turnsDropped))
	}
}

// StreamOpened increments the active stream gauge
func StreamOpened() {
	activeStreams.Inc()
}

// StreamClosed decrements the active stream gauge
func StreamClosed() {
	activeStreams.Dec()
}
