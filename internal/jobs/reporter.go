// Package jobs tracks the engine's two live job slots, one single backtest
// and one batch optimization, and persists finished jobs as records.
package jobs

import (
	"sync"
	"time"

	"github.com/aristath/crucible/internal/domain"
	"github.com/aristath/crucible/internal/events"
)

// Throttle interval for progress events (avoid spam)
const progressThrottleInterval = 100 * time.Millisecond

// Reporter pushes one job's lifecycle and progress events onto the bus.
// Progress events are throttled; lifecycle events always go out.
type Reporter struct {
	bus   *events.Bus
	jobID string
	kind  domain.JobKind

	mu         sync.Mutex
	lastReport time.Time
}

// NewReporter creates a reporter for one job
func NewReporter(bus *events.Bus, jobID string, kind domain.JobKind) *Reporter {
	return &Reporter{bus: bus, jobID: jobID, kind: kind}
}

// Started emits the JobStarted lifecycle event
func (r *Reporter) Started() {
	if r == nil || r.bus == nil {
		return
	}
	r.bus.Emit(events.JobStarted, "jobs", events.JobStatusData{
		JobID:     r.jobID,
		JobKind:   string(r.kind),
		Status:    "started",
		Timestamp: time.Now().UTC(),
	})
}

// Progress emits a throttled JobProgress event. Reaching 100% bypasses the
// throttle so the final update always lands.
func (r *Reporter) Progress(current, total int, phase string, details map[string]interface{}) {
	if r == nil || r.bus == nil {
		return
	}

	complete := total > 0 && current >= total

	r.mu.Lock()
	if !complete && time.Since(r.lastReport) < progressThrottleInterval {
		r.mu.Unlock()
		return
	}
	r.lastReport = time.Now()
	r.mu.Unlock()

	r.bus.Emit(events.JobProgress, "jobs", events.JobStatusData{
		JobID:   r.jobID,
		JobKind: string(r.kind),
		Status:  "progress",
		Progress: &events.JobProgressInfo{
			Current: current,
			Total:   total,
			Phase:   phase,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	})
}

// Completed emits the JobCompleted lifecycle event
func (r *Reporter) Completed(duration time.Duration) {
	if r == nil || r.bus == nil {
		return
	}
	r.bus.Emit(events.JobCompleted, "jobs", events.JobStatusData{
		JobID:     r.jobID,
		JobKind:   string(r.kind),
		Status:    "completed",
		Duration:  duration.Seconds(),
		Timestamp: time.Now().UTC(),
	})
}

// Failed emits the JobFailed lifecycle event
func (r *Reporter) Failed(err error, duration time.Duration) {
	if r == nil || r.bus == nil {
		return
	}
	data := events.JobStatusData{
		JobID:     r.jobID,
		JobKind:   string(r.kind),
		Status:    "failed",
		Duration:  duration.Seconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		data.Error = err.Error()
	}
	r.bus.Emit(events.JobFailed, "jobs", data)
}

// Aborted emits the JobAborted lifecycle event
func (r *Reporter) Aborted(duration time.Duration) {
	if r == nil || r.bus == nil {
		return
	}
	r.bus.Emit(events.JobAborted, "jobs", events.JobStatusData{
		JobID:     r.jobID,
		JobKind:   string(r.kind),
		Status:    "aborted",
		Duration:  duration.Seconds(),
		Timestamp: time.Now().UTC(),
	})
}
