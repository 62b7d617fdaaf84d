package metrics

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketpipe/marketpipe/config"
)

// Pipeline is the metric set recorded by the orchestrator.
type Pipeline struct {
	// RunsTotal counts completed runs by outcome ("success" or "failure").
	RunsTotal CounterVec
	// RunDuration is the wall clock duration of the last run in seconds.
	RunDuration Gauge
	// LastRunTimestamp is the unix time the last run finished.
	LastRunTimestamp Gauge
	// TaskDuration is the duration of each task in seconds.
	TaskDuration GaugeVec
	// TasksTotal counts task completions by task and status.
	TasksTotal CounterVec
	// RowsExtracted counts rows pulled from each source.
	RowsExtracted CounterVec
	// RowsLoaded counts rows written to each target.
	RowsLoaded CounterVec
	// ValidationWarnings counts warnings raised by data validation.
	ValidationWarnings Counter
}

// NewPipeline creates the pipeline metric set against the given registry.
func NewPipeline(reg Registry) (*Pipeline, error) {
	p := &Pipeline{}
	var err error

	if p.RunsTotal, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_total",
		Help: "Completed pipeline runs by outcome.",
	}, []string{"outcome"}); err != nil {
		return nil, fmt.Errorf("creating runs_total: %w", err)
	}

	if p.RunDuration, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "run_duration_seconds",
		Help: "Wall clock duration of the last pipeline run.",
	}); err != nil {
		return nil, fmt.Errorf("creating run_duration_seconds: %w", err)
	}

	if p.LastRunTimestamp, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "last_run_timestamp_seconds",
		Help: "Unix time the last pipeline run finished.",
	}); err != nil {
		return nil, fmt.Errorf("creating last_run_timestamp_seconds: %w", err)
	}

	if p.TaskDuration, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "task_duration_seconds",
		Help: "Duration of each pipeline task.",
	}, []string{"task"}); err != nil {
		return nil, fmt.Errorf("creating task_duration_seconds: %w", err)
	}

	if p.TasksTotal, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_total",
		Help: "Task completions by task and status.",
	}, []string{"task", "status"}); err != nil {
		return nil, fmt.Errorf("creating tasks_total: %w", err)
	}

	if p.RowsExtracted, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "rows_extracted_total",
		Help: "Rows pulled from each data source.",
	}, []string{"source"}); err != nil {
		return nil, fmt.Errorf("creating rows_extracted_total: %w", err)
	}

	if p.RowsLoaded, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "rows_loaded_total",
		Help: "Rows written to each load target.",
	}, []string{"target"}); err != nil {
		return nil, fmt.Errorf("creating rows_loaded_total: %w", err)
	}

	if p.ValidationWarnings, err = reg.NewCounter(prometheus.CounterOpts{
		Name: "validation_warnings_total",
		Help: "Warnings raised by data validation.",
	}); err != nil {
		return nil, fmt.Errorf("creating validation_warnings_total: %w", err)
	}

	return p, nil
}

// NewRegistry builds a Registry from the monitoring configuration: a
// PushRegistry when a remote write URL is set, otherwise a NopRegistry.
func NewRegistry(cfg config.MonitoringConfig) Registry {
	if cfg.RemoteWriteURL == "" {
		return NewNopRegistry()
	}
	instance, _ := os.Hostname()
	return NewPushRegistry(PushConfig{
		URL:      cfg.RemoteWriteURL,
		Prefix:   cfg.MetricsPrefix,
		Job:      cfg.JobName,
		Instance: instance,
	})
}
