// Package scheduler provides dependency-ordered, sequential execution of
// named tasks.
//
// A Scheduler owns a set of uniquely named tasks, resolves a deterministic
// topological order over their declared dependencies, and executes them one
// at a time. A task only runs once every dependency has succeeded; if a
// dependency failed, the dependent is marked failed with a skip reason and
// its operation is never invoked. One task's failure never aborts the run;
// it only prevents the tasks downstream of it.
//
// Execution is strictly sequential: source volumes are small and
// I/O-bound waits are not the bottleneck at this scale, and a single
// execution loop keeps the status map free of locking.
//
// # Example
//
//	s := scheduler.New(scheduler.WithLogger(logger))
//	s.AddTask(scheduler.NewTask("extract", extractOp))
//	s.AddTask(scheduler.NewTask("load", loadOp, "extract"))
//	results, err := s.RunAll(ctx)
//	if err != nil {
//	    // structural problem: duplicate name, unknown dependency, or cycle
//	}
//	if results["load"].Status != scheduler.StatusSucceeded {
//	    // operational failure, reason in results["load"].Err
//	}
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Result is the immutable per-task outcome snapshot returned by RunAll.
type Result struct {
	Name     string
	Status   Status
	Value    any
	Err      error
	Duration time.Duration
}

// Skipped reports whether the task failed without ever running because a
// dependency did not succeed.
func (r Result) Skipped() bool {
	if r.Err == nil {
		return false
	}
	_, ok := r.Err.(*SkipError)
	return ok
}

// Scheduler orders and executes a set of tasks respecting dependencies.
// It is built fresh for each pipeline run and is not safe for concurrent use.
type Scheduler struct {
	tasks  map[string]*Task
	order  []string // insertion order, the tie-break for ResolveOrder
	logger *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for per-task execution logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger.With("component", "scheduler")
	}
}

// New creates an empty Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tasks:  make(map[string]*Task),
		logger: slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTask registers a task. Returns a *DuplicateTaskNameError if a task with
// the same name already exists; the duplicate is not added.
func (s *Scheduler) AddTask(t *Task) error {
	if _, exists := s.tasks[t.name]; exists {
		return &DuplicateTaskNameError{Name: t.name}
	}
	s.tasks[t.name] = t
	s.order = append(s.order, t.name)
	return nil
}

// Task returns the registered task with the given name.
func (s *Scheduler) Task(name string) (*Task, bool) {
	t, ok := s.tasks[name]
	return t, ok
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int { return len(s.tasks) }

// ResolveOrder computes a topological ordering over all registered tasks.
//
// The algorithm repeatedly scans tasks in insertion order and places the
// first one whose dependencies are all already placed. The insertion-order
// tie-break makes the result deterministic: repeated runs over the same
// graph always execute tasks in the same order, which matters for
// reproducible logs and test assertions.
//
// Returns a *InvalidDependencyError if any task names an unregistered
// dependency, or a *CyclicDependencyError naming a cycle participant if no
// progress can be made while tasks remain unplaced.
func (s *Scheduler) ResolveOrder() ([]string, error) {
	for _, name := range s.order {
		for _, dep := range s.tasks[name].deps {
			if _, ok := s.tasks[dep]; !ok {
				return nil, &InvalidDependencyError{Task: name, Dependency: dep}
			}
		}
	}

	placed := make(map[string]bool, len(s.order))
	resolved := make([]string, 0, len(s.order))

	for len(resolved) < len(s.order) {
		progressed := false
		for _, name := range s.order {
			if placed[name] {
				continue
			}
			ready := true
			for _, dep := range s.tasks[name].deps {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[name] = true
				resolved = append(resolved, name)
				progressed = true
			}
		}
		if !progressed {
			// Every unplaced task waits on another unplaced task, so the
			// remainder contains at least one cycle. Name the first
			// unplaced task in insertion order.
			for _, name := range s.order {
				if !placed[name] {
					return nil, &CyclicDependencyError{Task: name}
				}
			}
		}
	}

	return resolved, nil
}

// RunAll resolves the execution order and runs every task sequentially.
//
// A structural error (unknown dependency, cycle) aborts before any task
// executes and is returned; no task leaves StatusPending in that case.
// Operational failures are captured per task: a failing task is recorded as
// failed, its dependents are marked failed with a skip reason without being
// invoked, and unrelated tasks still run. RunAll itself never returns an
// error for operational failures.
//
// The context is handed to each operation; the scheduler applies no
// cancellation or timeout of its own, so a hanging operation stalls the run.
func (s *Scheduler) RunAll(ctx context.Context) (map[string]Result, error) {
	order, err := s.ResolveOrder()
	if err != nil {
		return nil, err
	}

	s.logger.Info("execution order resolved", "tasks", len(order), "order", order)

	durations := make(map[string]time.Duration, len(order))
	for _, name := range order {
		t := s.tasks[name]

		if failedDep := s.firstFailedDependency(t); failedDep != "" {
			t.skip(failedDep)
			s.logger.Warn("task skipped",
				"task", name,
				"failed_dependency", failedDep,
			)
			continue
		}

		inputs := make(Inputs, len(t.deps))
		for _, dep := range t.deps {
			inputs[dep] = s.tasks[dep].result
		}

		s.logger.Info("task started", "task", name)
		start := time.Now()
		t.run(ctx, inputs)
		elapsed := time.Since(start)
		durations[name] = elapsed

		if t.err != nil {
			s.logger.Error("task failed", "task", name, "duration", elapsed, "error", t.err)
		} else {
			s.logger.Info("task succeeded", "task", name, "duration", elapsed)
		}
	}

	results := make(map[string]Result, len(order))
	for _, name := range order {
		t := s.tasks[name]
		results[name] = Result{
			Name:     name,
			Status:   t.status,
			Value:    t.result,
			Err:      t.err,
			Duration: durations[name],
		}
	}
	return results, nil
}

// firstFailedDependency returns the name of the first declared dependency
// that did not succeed, or "" if all dependencies succeeded.
func (s *Scheduler) firstFailedDependency(t *Task) string {
	for _, dep := range t.deps {
		if s.tasks[dep].status != StatusSucceeded {
			return dep
		}
	}
	return ""
}
