// Package metrics exposes Prometheus collectors for Hookflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookflow_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookflow_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookflow_webhook_deliveries_total",
			Help: "Total number of inbound webhook deliveries by outcome",
		},
		[]string{"trigger_key", "outcome"},
	)

	runsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookflow_runs_started_total",
			Help: "Total number of scenario runs picked up by the engine",
		},
		[]string{"trigger_key"},
	)

	runsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookflow_runs_completed_total",
			Help: "Total number of scenario runs driven to a terminal status",
		},
		[]string{"trigger_key", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookflow_run_duration_seconds",
			Help:    "Scenario run duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"trigger_key"},
	)

	nodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hookflow_node_executions_total",
			Help: "Total number of node executions by type and status",
		},
		[]string{"node_type", "status"},
	)

	nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hookflow_node_duration_seconds",
			Help:    "Node execution time in seconds",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"node_type"},
	)

	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookflow_active_runs",
			Help: "Number of runs currently executing",
		},
	)

	watcherConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hookflow_watcher_connections",
			Help: "Number of active execution-watch WebSocket connections",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWebhookDelivery counts a delivery outcome: accepted, idempotent,
// rejected, unauthorized, replay or unmatched.
func RecordWebhookDelivery(triggerKey, outcome string) {
	webhookDeliveries.WithLabelValues(triggerKey, outcome).Inc()
}

func RecordRunStarted(triggerKey string) {
	runsStarted.WithLabelValues(triggerKey).Inc()
	activeRuns.Inc()
}

func RecordRunCompleted(triggerKey, status string, duration time.Duration) {
	runsCompleted.WithLabelValues(triggerKey, status).Inc()
	runDuration.WithLabelValues(triggerKey).Observe(duration.Seconds())
	activeRuns.Dec()
}

func RecordNodeExecution(nodeType, status string, duration time.Duration) {
	nodeExecutions.WithLabelValues(nodeType, status).Inc()
	nodeDuration.WithLabelValues(nodeType).Observe(duration.Seconds())
}

func IncrementWatchers() {
	watcherConnections.Inc()
}

func DecrementWatchers() {
	watcherConnections.Dec()
}
