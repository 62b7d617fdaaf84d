package extract

import "fmt"

// ExtractionError wraps a failure in one of the extractors, identifying the
// source it came from.
type ExtractionError struct {
	Source string // "csv", "json" or "api"
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
