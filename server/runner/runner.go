// Package runner manages pipeline run execution for the marketpipe server.
//
// The runner handles:
//   - Starting pipeline runs in the background
//   - Preventing concurrent runs
//   - Tracking current run status with live captured task logs
//   - Maintaining history of completed runs
//
// Each run builds a fresh orchestrator with a fresh log collector, so task
// logs are captured per run and attached to the stored history.
//
// # Example
//
//	r := runner.New(cfg, logger)
//
//	if err := r.Run(pipeline.Request{}); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	status := r.Status()
//	if status.State == runner.RunStateRunning {
//	    // Run in progress - status includes the logs captured so far
//	}
//
//	history := r.History() // Most recent first
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/logging"
	"github.com/marketpipe/marketpipe/metrics"
	"github.com/marketpipe/marketpipe/pipeline"
)

const defaultMaxHistorySize = 100

// ErrRunInProgress is returned when attempting to start a run while one is
// already running.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Runner manages pipeline run execution.
type Runner struct {
	logger  *slog.Logger
	cfg     config.Config
	store   StateStore
	metrics *metrics.Pipeline

	mu        sync.Mutex
	runStatus RunStatus
	collector *logging.LogCollector // current run's captured logs
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for
// persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) { r.store = store }
}

// WithMetrics records pipeline metrics for every run.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(r *Runner) { r.metrics = m }
}

// New creates a new Runner.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger:    logger.With("component", "runner"),
		cfg:       cfg,
		store:     NewMemoryStore(cfg.Server.HistorySize),
		runStatus: RunStatus{State: RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a pipeline run in the background.
// Returns ErrRunInProgress if a run is already in progress, or an error if
// the request names a source that is not enabled.
func (r *Runner) Run(req pipeline.Request) error {
	for _, s := range req.Sources {
		if !slices.Contains(r.cfg.Sources.Enabled, s) {
			return fmt.Errorf("source %q is not enabled (enabled: %v)", s, r.cfg.Sources.Enabled)
		}
	}

	collector := logging.NewLogCollector()
	if !r.tryStart(collector) {
		return ErrRunInProgress
	}

	r.logger.Info("starting pipeline run", "sources", req.Sources)

	go func() {
		summary, err := r.executeRun(context.Background(), req, collector)
		r.finish(summary, collector, err)
	}()

	return nil
}

// Status returns the current run status. While a run is in progress the
// status carries the task logs captured so far; when idle it describes the
// last completed run.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.runStatus
	if status.State == RunStateRunning && r.collector != nil {
		status.TaskLogs = r.collector.GetAllLogs()
	}
	return status
}

// IsRunning returns true if a pipeline run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the completed runs, most recent first.
func (r *Runner) History() []RunRecord {
	return r.store.History()
}

// Logs returns the captured task logs for a completed run.
func (r *Runner) Logs(id string) map[string][]logging.LogEntry {
	return r.store.Logs(id)
}

// tryStart attempts to transition from idle to running.
func (r *Runner) tryStart(collector *logging.LogCollector) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.runStatus.State == RunStateRunning {
		return false
	}

	now := time.Now()
	r.runStatus = RunStatus{
		State:     RunStateRunning,
		StartedAt: &now,
	}
	r.collector = collector
	return true
}

// finish transitions from running to idle and records the outcome.
func (r *Runner) finish(summary *pipeline.RunSummary, collector *logging.LogCollector, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endTime := time.Now()
	duration := endTime.Sub(*r.runStatus.StartedAt)

	r.runStatus.State = RunStateIdle
	r.runStatus.EndedAt = &endTime
	r.runStatus.Summary = summary
	r.runStatus.TaskLogs = collector.GetAllLogs()
	r.runStatus.Error = ""

	switch {
	case err != nil:
		r.runStatus.Error = err.Error()
		r.logger.Error("pipeline run failed", "error", err, "duration", duration)
	case summary != nil && !summary.Success:
		r.runStatus.Error = fmt.Sprintf("%d task(s) failed, %d skipped", summary.Failed, summary.Skipped)
		r.logger.Error("pipeline run failed", "error", r.runStatus.Error, "duration", duration)
	default:
		r.logger.Info("pipeline run completed", "duration", duration)
	}

	record := RunRecord{
		StartedAt: *r.runStatus.StartedAt,
		EndedAt:   endTime,
		Error:     r.runStatus.Error,
		Summary:   summary,
		TaskLogs:  r.runStatus.TaskLogs,
	}
	if summary != nil {
		record.ID = summary.RunID
	} else {
		record.ID = r.runStatus.StartedAt.Format("2006-01-02T15-04-05")
	}

	if err := r.store.Save(record); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
}

// executeRun builds a fresh orchestrator with log capture and runs it.
func (r *Runner) executeRun(ctx context.Context, req pipeline.Request, collector *logging.LogCollector) (*pipeline.RunSummary, error) {
	opts := []pipeline.Option{
		pipeline.WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
	}
	if r.metrics != nil {
		opts = append(opts, pipeline.WithMetrics(r.metrics))
	}

	orchestrator := pipeline.New(r.cfg, r.logger, opts...)
	summary, err := orchestrator.Run(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pipeline execution failed: %w", err)
	}
	return summary, nil
}
