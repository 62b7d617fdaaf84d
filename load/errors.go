package load

import "fmt"

// LoadError wraps a failure in one of the loaders, identifying the target
// it was writing to.
type LoadError struct {
	Target string // "database" or "csv"
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Target, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
