package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status represents the execution state of a task.
type Status int

const (
	// StatusPending indicates the task has been registered but not yet run.
	StatusPending Status = iota

	// StatusRunning indicates the task's operation is currently executing.
	StatusRunning

	// StatusSucceeded indicates the operation returned without error.
	StatusSucceeded

	// StatusFailed indicates the operation returned an error, or the task
	// was never started because a dependency did not succeed (the error is
	// then a *SkipError).
	StatusFailed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler, accepting the same string form
// MarshalJSON produces. Persisted run reports depend on this round trip.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "pending":
		*s = StatusPending
	case "running":
		*s = StatusRunning
	case "succeeded":
		*s = StatusSucceeded
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown task status %q", name)
	}
	return nil
}

// Inputs maps a dependency's task name to the result it produced.
// Operations read only the keys they care about and ignore the rest, which
// permits heterogeneous fan-in where not every upstream result matters to a
// given task.
type Inputs map[string]any

// Operation is the work a task wraps. The context is passed through from
// RunAll so blocking I/O inside operations stays cancellable; the scheduler
// itself imposes no deadline.
type Operation func(ctx context.Context, in Inputs) (any, error)

// Task is a named, dependency-aware unit of pipeline work. Tasks are built
// by the orchestrator for a single run and mutated by the scheduler as it
// executes; they are not reused across runs.
type Task struct {
	name   string
	op     Operation
	deps   []string
	status Status
	result any
	err    error
}

// NewTask creates a task wrapping op, with optional dependency names.
// Dependency names are validated when the owning scheduler resolves its
// execution order.
func NewTask(name string, op Operation, deps ...string) *Task {
	t := &Task{
		name:   name,
		op:     op,
		status: StatusPending,
	}
	for _, d := range deps {
		t.AddDependency(d)
	}
	return t
}

// AddDependency registers that this task must wait for another named task.
// Duplicate names are ignored.
func (t *Task) AddDependency(name string) {
	for _, d := range t.deps {
		if d == name {
			return
		}
	}
	t.deps = append(t.deps, name)
}

// Name returns the task's unique name.
func (t *Task) Name() string { return t.name }

// Dependencies returns a copy of the declared dependency names, in
// declaration order.
func (t *Task) Dependencies() []string {
	deps := make([]string, len(t.deps))
	copy(deps, t.deps)
	return deps
}

// Status returns the task's current state.
func (t *Task) Status() Status { return t.status }

// Result returns the value produced by a succeeded task, nil otherwise.
func (t *Task) Result() any { return t.result }

// Err returns the captured error for a failed task, nil otherwise.
// For tasks skipped over a failed dependency this is a *SkipError.
func (t *Task) Err() error { return t.err }

// run invokes the wrapped operation once and records the outcome on the
// task. The operation's error is captured, never propagated: the scheduler
// inspects status instead, so one task's failure cannot crash the loop.
func (t *Task) run(ctx context.Context, in Inputs) {
	t.status = StatusRunning
	result, err := t.op(ctx, in)
	if err != nil {
		t.status = StatusFailed
		t.err = err
		return
	}
	t.status = StatusSucceeded
	t.result = result
}

// skip marks the task failed without running it, recording which dependency
// did not succeed.
func (t *Task) skip(dependency string) {
	t.status = StatusFailed
	t.err = &SkipError{Dependency: dependency}
}
