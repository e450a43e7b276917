package runner

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// State is the lifecycle state of a run.
type State string

const (
	StatePending    State = "PENDING"
	StateRunning    State = "RUNNING"
	StateFinished   State = "FINISHED"
	StateTerminated State = "TERMINATED"
)

// ErrRunInProgress is returned when a trace id is already executing.
var ErrRunInProgress = errors.New("a run with this trace id is in progress")

// RunStatus is a snapshot of one run.
type RunStatus struct {
	TraceID     string    `json:"traceId"`
	OutboundID  string    `json:"outboundID"`
	SessionID   string    `json:"sessionId,omitempty"`
	Counterpart string    `json:"counterpart,omitempty"`
	State       State     `json:"state"`
	Executed    int       `json:"executedRequests"`
	Total       int       `json:"totalRequests"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

type run struct {
	status    RunStatus
	terminate bool
}

// RunRegistry owns the state of every run in the process, keyed by trace
// id. It holds the termination flags checked between requests.
type RunRegistry struct {
	mu   sync.Mutex
	runs map[string]*run
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]*run)}
}

func (r *RunRegistry) begin(trace *Trace, counterpart string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.runs[trace.TraceID]; ok && !existing.done() {
		return ErrRunInProgress
	}
	r.runs[trace.TraceID] = &run{status: RunStatus{
		TraceID:     trace.TraceID,
		OutboundID:  trace.OutboundID,
		SessionID:   trace.SessionID,
		Counterpart: counterpart,
		State:       StatePending,
		Total:       total,
	}}
	return nil
}

func (r *run) done() bool {
	return r.status.State == StateFinished || r.status.State == StateTerminated
}

func (r *RunRegistry) update(traceID string, fn func(*RunStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.runs[traceID]; ok {
		fn(&entry.status)
	}
}

// RequestTermination flags a pending or running run. It reports whether
// a run was flagged; unknown and finished runs are left alone.
func (r *RunRegistry) RequestTermination(traceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[traceID]
	if !ok || entry.done() {
		return false
	}
	entry.terminate = true
	return true
}

// consumeTermination clears the flag and reports whether it was set.
func (r *RunRegistry) consumeTermination(traceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[traceID]
	if !ok || !entry.terminate {
		return false
	}
	entry.terminate = false
	return true
}

// Status returns a snapshot of the run.
func (r *RunRegistry) Status(traceID string) (RunStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.runs[traceID]
	if !ok {
		return RunStatus{}, false
	}
	return entry.status, true
}

// Active returns the trace ids of runs that have not completed.
func (r *RunRegistry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, entry := range r.runs {
		if !entry.done() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Forget drops completed runs older than maxAge.
func (r *RunRegistry) Forget(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, entry := range r.runs {
		if entry.done() && entry.status.CompletedAt.Before(cutoff) {
			delete(r.runs, id)
			removed++
		}
	}
	return removed
}
