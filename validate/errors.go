package validate

import (
	"fmt"
	"strings"
)

// ValidationError is returned in strict mode when the data needed repairs.
// It carries every warning raised during validation.
type ValidationError struct {
	Warnings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed with %d warnings: %s",
		len(e.Warnings), strings.Join(e.Warnings, "; "))
}
