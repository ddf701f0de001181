package executor

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker counts executions currently in flight. It is informational only:
// nothing in the engine reads it to make decisions.
type Tracker struct {
	running atomic.Int64
	gauge   prometheus.Gauge
}

// NewTracker creates a tracker mirroring its count into gauge (may be nil).
func NewTracker(gauge prometheus.Gauge) *Tracker {
	return &Tracker{gauge: gauge}
}

// begin marks one execution as started and returns the matching end func.
func (t *Tracker) begin() func() {
	t.running.Add(1)
	if t.gauge != nil {
		t.gauge.Inc()
	}
	return func() {
		t.running.Add(-1)
		if t.gauge != nil {
			t.gauge.Dec()
		}
	}
}

// Count returns the number of executions currently running.
func (t *Tracker) Count() int {
	return int(t.running.Load())
}
