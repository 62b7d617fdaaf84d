package runner

import "github.com/marketpipe/marketpipe/logging"

// StateStore manages persistence of run history.
type StateStore interface {
	// History returns completed runs, most recent first, with logs
	// stripped to keep listings small.
	History() []RunRecord
	// Logs returns the captured task logs for a specific run, or nil if
	// the run is unknown.
	Logs(id string) map[string][]logging.LogEntry
	// Save persists a completed run.
	Save(RunRecord) error
}
