package transform

import "fmt"

// TransformError wraps a failure in one of the transformation stages.
type TransformError struct {
	Stage string // "csv", "json", "api", "merge" or "metrics"
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Stage, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}
