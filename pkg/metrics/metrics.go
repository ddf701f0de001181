package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the agent.
// Using promauto for automatic registration with default registry.
var (
	// --- Execution Metrics ---

	// ExecutionsTotal counts finished executions by outcome and script kind.
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskagent",
			Subsystem: "executions",
			Name:      "total",
			Help:      "Total number of script executions by status and kind",
		},
		[]string{"status", "kind"},
	)

	// ExecutionDuration tracks script execution duration.
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskagent",
			Subsystem: "executions",
			Name:      "duration_seconds",
			Help:      "Duration of script executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5m
		},
		[]string{"kind", "status"},
	)

	// ExecutionTimeouts counts executions killed at the timeout boundary.
	ExecutionTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskagent",
			Subsystem: "executions",
			Name:      "timeouts_total",
			Help:      "Total number of script executions that hit the timeout",
		},
	)

	// --- Executor Metrics ---

	// ScriptsRunning tracks concurrent executions on this agent.
	ScriptsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "taskagent",
			Subsystem: "executor",
			Name:      "scripts_running",
			Help:      "Number of scripts currently running on this agent",
		},
	)

	// ArtifactsSwept counts stale script artifacts removed by the janitor.
	ArtifactsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskagent",
			Subsystem: "janitor",
			Name:      "artifacts_swept_total",
			Help:      "Total number of stale script artifacts removed",
		},
	)

	// --- Agent Metrics ---

	// HeartbeatsSent counts registration lease renewals.
	HeartbeatsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskagent",
			Subsystem: "agent",
			Name:      "heartbeats_total",
			Help:      "Total registration heartbeats sent",
		},
	)

	// OutcomesPublished counts outcome events by publish result.
	OutcomesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskagent",
			Subsystem: "events",
			Name:      "outcomes_published_total",
			Help:      "Total outcome events handed to the publisher by result",
		},
		[]string{"result"},
	)
)

// RecordExecution records metrics for a completed execution.
func RecordExecution(kind, status string, durationSeconds float64) {
	ExecutionsTotal.WithLabelValues(status, kind).Inc()
	ExecutionDuration.WithLabelValues(kind, status).Observe(durationSeconds)
}
