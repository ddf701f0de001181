package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordExecution(t *testing.T) {
	counter := ExecutionsTotal.WithLabelValues("success", "python")
	before := testutil.ToFloat64(counter)

	RecordExecution("python", "success", 0.25)
	RecordExecution("python", "success", 1.5)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.Equal(t, 0.0, testutil.ToFloat64(ExecutionsTotal.WithLabelValues("error", "unused-kind")))
}

func TestMetricNames(t *testing.T) {
	assert.Equal(t, 1, testutil.CollectAndCount(ExecutionTimeouts, "taskagent_executions_timeouts_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(ScriptsRunning, "taskagent_executor_scripts_running"))
	assert.Equal(t, 1, testutil.CollectAndCount(ArtifactsSwept, "taskagent_janitor_artifacts_swept_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(HeartbeatsSent, "taskagent_agent_heartbeats_total"))
}
