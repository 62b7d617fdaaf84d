package runner

import (
	"time"

	"github.com/marketpipe/marketpipe/logging"
	"github.com/marketpipe/marketpipe/pipeline"
)

// RunState represents the current state of the runner.
type RunState int

const (
	// RunStateIdle indicates no pipeline run is in progress.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a pipeline run is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// RunStatus describes the current or last pipeline run.
type RunStatus struct {
	// State is the current state of the runner.
	State RunState `json:"state"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil while a run is in progress.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error is the failure description. Empty on success.
	Error string `json:"error,omitempty"`
	// Summary is the per-task outcome of the completed run. Nil while a
	// run is in progress.
	Summary *pipeline.RunSummary `json:"summary,omitempty"`
	// TaskLogs holds the captured log entries per task.
	TaskLogs map[string][]logging.LogEntry `json:"task_logs,omitempty"`
}

// RunRecord is the persisted form of a completed run.
type RunRecord struct {
	// ID is the pipeline run ID.
	ID        string                        `json:"id"`
	StartedAt time.Time                     `json:"started_at"`
	EndedAt   time.Time                     `json:"ended_at"`
	Error     string                        `json:"error,omitempty"`
	Summary   *pipeline.RunSummary          `json:"summary,omitempty"`
	TaskLogs  map[string][]logging.LogEntry `json:"task_logs,omitempty"`
}
