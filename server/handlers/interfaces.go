// Package handlers provides HTTP handlers for the marketpipe server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/logging"
	"github.com/marketpipe/marketpipe/pipeline"
	"github.com/marketpipe/marketpipe/server/runner"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() config.Config
}

// PipelineRunner can start pipeline runs.
type PipelineRunner interface {
	Run(req pipeline.Request) error
}

// RunStatusProvider provides access to run status.
type RunStatusProvider interface {
	Status() runner.RunStatus
}

// HistoryProvider provides access to run history and per-run logs.
type HistoryProvider interface {
	History() []runner.RunRecord
	Logs(id string) map[string][]logging.LogEntry
}

// NextRunProvider reports the next scheduled run, nil when no schedule is
// configured.
type NextRunProvider interface {
	NextRun() *time.Time
}
