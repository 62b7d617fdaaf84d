package scheduler

import "fmt"

// DuplicateTaskNameError is returned by AddTask when a task with the same
// name is already registered.
type DuplicateTaskNameError struct {
	Name string
}

func (e *DuplicateTaskNameError) Error() string {
	return fmt.Sprintf("task %q already exists", e.Name)
}

// InvalidDependencyError is returned by ResolveOrder when a task declares a
// dependency on a name that was never registered. Dependencies are validated
// at resolve time, not registration time, so tasks may be added in any order.
type InvalidDependencyError struct {
	Task       string
	Dependency string
}

func (e *InvalidDependencyError) Error() string {
	return fmt.Sprintf("task %q depends on unknown task %q", e.Task, e.Dependency)
}

// CyclicDependencyError is returned by ResolveOrder when the dependency
// graph contains a cycle. Task names one task that participates in it.
type CyclicDependencyError struct {
	Task string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle involving task %q", e.Task)
}

// SkipError records why a task was failed without being executed: one of its
// dependencies did not reach StatusSucceeded.
type SkipError struct {
	Dependency string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skipped: dependency %s did not succeed", e.Dependency)
}
