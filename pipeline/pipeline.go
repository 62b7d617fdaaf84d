// Package pipeline builds and runs the ETL task graph for one run: extraction
// per enabled source, per-source transformation, metric calculation over the
// merged data, validation, and the database and CSV load targets.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
	"github.com/marketpipe/marketpipe/extract"
	"github.com/marketpipe/marketpipe/load"
	"github.com/marketpipe/marketpipe/logging"
	"github.com/marketpipe/marketpipe/metrics"
	"github.com/marketpipe/marketpipe/scheduler"
	"github.com/marketpipe/marketpipe/transform"
	"github.com/marketpipe/marketpipe/validate"
)

// Task names, stable across runs for logs and run history.
const (
	TaskExtractCSV       = "extract_csv"
	TaskExtractJSON      = "extract_json"
	TaskExtractAPI       = "extract_api"
	TaskTransformCSV     = "transform_csv_data"
	TaskTransformJSON    = "transform_json_data"
	TaskTransformAPI     = "transform_api_data"
	TaskCalculateMetrics = "calculate_metrics"
	TaskValidateData     = "validate_data"
	TaskLoadToDB         = "load_to_db"
	TaskExportToCSV      = "export_to_csv"
)

// loadTasks are the tasks whose outcome decides run success.
var loadTasks = []string{TaskLoadToDB, TaskExportToCSV}

// Request selects what a single run extracts. Zero values fall back to the
// configured defaults.
type Request struct {
	// Sources restricts the run to a subset of the enabled sources.
	Sources []string `json:"sources,omitempty"`
	// Symbols overrides the configured stock symbols for the api source.
	Symbols []string `json:"symbols,omitempty"`
	// Start and End bound the api date range.
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
	// StrictValidation fails the run on any validation warning.
	StrictValidation bool `json:"strict_validation,omitempty"`
}

// Orchestrator builds the task graph for pipeline runs. It is safe to reuse
// across runs; every Run gets a fresh Scheduler and fresh collaborators.
type Orchestrator struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Pipeline
	hook    logging.LoggerHook
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records run and task metrics against the given set.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLoggerHook derives per-task loggers through the hook, so a caller can
// capture each task's log output (used by the server's run history).
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(o *Orchestrator) { o.hook = hook }
}

// New creates an Orchestrator from configuration.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one pipeline run and reports the outcome per task.
//
// The returned error covers structural problems only: an unknown requested
// source, or a task graph that cannot be resolved. Task failures are captured
// in the summary; the run as a whole fails when any load task did not
// succeed, so a dead source degrades the run but a persistence failure
// fails it.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunSummary, error) {
	runID := uuid.NewString()
	logger := o.logger.With("run_id", runID)

	sources, err := o.resolveSources(req.Sources)
	if err != nil {
		return nil, err
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = o.cfg.Query.Symbols
	}
	start, end := req.Start, req.End
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.Add(-o.cfg.Query.Lookback)
	}

	logger.Info("starting pipeline run",
		"sources", sources,
		"symbols", symbols,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
	)

	sched := scheduler.New(scheduler.WithLogger(logger))
	if err := o.buildGraph(sched, logger, sources, symbols, start, end, req.StrictValidation); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	results, err := sched.RunAll(ctx)
	if err != nil {
		return nil, err
	}
	finishedAt := time.Now()

	order, err := sched.ResolveOrder()
	if err != nil {
		return nil, err
	}

	summary := buildSummary(runID, sources, startedAt, finishedAt, order, results)
	o.record(summary, results)

	if summary.Success {
		logger.Info("pipeline run complete",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"duration", finishedAt.Sub(startedAt),
		)
	} else {
		logger.Error("pipeline run failed",
			"succeeded", summary.Succeeded,
			"failed", summary.Failed,
			"skipped", summary.Skipped,
			"failures", summary.FailureReasons(),
		)
	}
	return summary, nil
}

// resolveSources checks a requested subset against the enabled sources, or
// returns all enabled sources when the request names none.
func (o *Orchestrator) resolveSources(requested []string) ([]string, error) {
	enabled := o.cfg.Sources.Enabled
	if len(requested) == 0 {
		return enabled, nil
	}
	for _, s := range requested {
		if !slices.Contains(enabled, s) {
			return nil, fmt.Errorf("source %q is not enabled (enabled: %v)", s, enabled)
		}
	}
	return requested, nil
}

// buildGraph registers the run's tasks: extract and transform per selected
// source, then the shared tail. Loads always depend on validation.
func (o *Orchestrator) buildGraph(sched *scheduler.Scheduler, logger *slog.Logger, sources, symbols []string, start, end time.Time, strict bool) error {
	transformer := transform.NewTransformer(o.cfg, o.taskLogger(logger, TaskCalculateMetrics))
	var transforms []string

	for _, source := range sources {
		switch source {
		case config.SourceCSV:
			ex := extract.NewCSVExtractor(o.cfg, o.taskLogger(logger, TaskExtractCSV))
			tr := transform.NewTransformer(o.cfg, o.taskLogger(logger, TaskTransformCSV))
			if err := sched.AddTask(scheduler.NewTask(TaskExtractCSV,
				func(ctx context.Context, _ scheduler.Inputs) (any, error) {
					return ex.Extract(ctx)
				})); err != nil {
				return err
			}
			if err := sched.AddTask(scheduler.NewTask(TaskTransformCSV,
				func(_ context.Context, in scheduler.Inputs) (any, error) {
					return tr.TransformCSV(tableInput(in, TaskExtractCSV))
				}, TaskExtractCSV)); err != nil {
				return err
			}
			transforms = append(transforms, TaskTransformCSV)

		case config.SourceJSON:
			ex := extract.NewJSONExtractor(o.cfg, o.taskLogger(logger, TaskExtractJSON))
			tr := transform.NewTransformer(o.cfg, o.taskLogger(logger, TaskTransformJSON))
			if err := sched.AddTask(scheduler.NewTask(TaskExtractJSON,
				func(ctx context.Context, _ scheduler.Inputs) (any, error) {
					return ex.Extract(ctx)
				})); err != nil {
				return err
			}
			if err := sched.AddTask(scheduler.NewTask(TaskTransformJSON,
				func(_ context.Context, in scheduler.Inputs) (any, error) {
					return tr.TransformJSON(tableInput(in, TaskExtractJSON))
				}, TaskExtractJSON)); err != nil {
				return err
			}
			transforms = append(transforms, TaskTransformJSON)

		case config.SourceAPI:
			ex := extract.NewAPIExtractor(o.cfg, o.taskLogger(logger, TaskExtractAPI))
			tr := transform.NewTransformer(o.cfg, o.taskLogger(logger, TaskTransformAPI))
			if err := sched.AddTask(scheduler.NewTask(TaskExtractAPI,
				func(ctx context.Context, _ scheduler.Inputs) (any, error) {
					return ex.Extract(ctx, symbols, start, end)
				})); err != nil {
				return err
			}
			if err := sched.AddTask(scheduler.NewTask(TaskTransformAPI,
				func(_ context.Context, in scheduler.Inputs) (any, error) {
					return tr.TransformAPI(tableInput(in, TaskExtractAPI))
				}, TaskExtractAPI)); err != nil {
				return err
			}
			transforms = append(transforms, TaskTransformAPI)

		default:
			return fmt.Errorf("unknown source %q", source)
		}
	}

	if err := sched.AddTask(scheduler.NewTask(TaskCalculateMetrics,
		func(_ context.Context, in scheduler.Inputs) (any, error) {
			tables := make([]*dataset.Table, 0, len(transforms))
			for _, name := range transforms {
				tables = append(tables, tableInput(in, name))
			}
			merged, err := transformer.Merge(tables...)
			if err != nil {
				return nil, err
			}
			return transformer.Calculate(merged)
		}, transforms...)); err != nil {
		return err
	}

	var validatorOpts []validate.Option
	if strict {
		validatorOpts = append(validatorOpts, validate.WithStrict())
	}
	validator := validate.NewValidator(o.cfg, o.taskLogger(logger, TaskValidateData), validatorOpts...)
	if err := sched.AddTask(scheduler.NewTask(TaskValidateData,
		func(_ context.Context, in scheduler.Inputs) (any, error) {
			return validator.Validate(tableInput(in, TaskCalculateMetrics))
		}, TaskCalculateMetrics)); err != nil {
		return err
	}

	dbLoader := load.NewDBLoader(o.cfg, o.taskLogger(logger, TaskLoadToDB))
	if err := sched.AddTask(scheduler.NewTask(TaskLoadToDB,
		func(ctx context.Context, in scheduler.Inputs) (any, error) {
			return dbLoader.Load(ctx, validatedInput(in))
		}, TaskValidateData)); err != nil {
		return err
	}

	csvLoader := load.NewCSVLoader(o.cfg, o.taskLogger(logger, TaskExportToCSV))
	if err := sched.AddTask(scheduler.NewTask(TaskExportToCSV,
		func(ctx context.Context, in scheduler.Inputs) (any, error) {
			return csvLoader.Export(ctx, validatedInput(in))
		}, TaskValidateData)); err != nil {
		return err
	}

	return nil
}

// taskLogger derives a task-scoped logger, routed through the capture hook
// when one is installed.
func (o *Orchestrator) taskLogger(base *slog.Logger, task string) *slog.Logger {
	if o.hook != nil {
		return o.hook.LoggerForTask(base, task)
	}
	return base.With("task", task)
}

// record pushes run and task metrics. A nil metric set is a no-op.
func (o *Orchestrator) record(summary *RunSummary, results map[string]scheduler.Result) {
	if o.metrics == nil {
		return
	}

	outcome := "failure"
	if summary.Success {
		outcome = "success"
	}
	o.metrics.RunsTotal.With(prometheus.Labels{"outcome": outcome}).Inc()
	o.metrics.RunDuration.Set(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	o.metrics.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
	o.metrics.ValidationWarnings.Add(float64(len(summary.Warnings)))

	for _, task := range summary.Tasks {
		o.metrics.TaskDuration.With(prometheus.Labels{"task": task.Name}).Set(task.Duration.Seconds())
		status := "success"
		switch {
		case task.Skipped:
			status = "skipped"
		case task.Status != scheduler.StatusSucceeded:
			status = "failed"
		}
		o.metrics.TasksTotal.With(prometheus.Labels{"task": task.Name, "status": status}).Inc()
	}

	for task, source := range map[string]string{
		TaskExtractCSV:  config.SourceCSV,
		TaskExtractJSON: config.SourceJSON,
		TaskExtractAPI:  config.SourceAPI,
	} {
		if table, ok := results[task].Value.(*dataset.Table); ok {
			o.metrics.RowsExtracted.With(prometheus.Labels{"source": source}).Add(float64(table.Len()))
		}
	}
	if db, ok := results[TaskLoadToDB].Value.(*load.DBResult); ok {
		o.metrics.RowsLoaded.With(prometheus.Labels{"target": "database"}).Add(float64(db.Rows))
	}
	if export, ok := results[TaskExportToCSV].Value.(*load.ExportResult); ok {
		o.metrics.RowsLoaded.With(prometheus.Labels{"target": "csv"}).Add(float64(export.Rows))
	}
}

// tableInput pulls a dependency's table out of the input bag. Extra inputs
// are ignored; a missing or mistyped input yields nil, which every stage
// tolerates as an empty source.
func tableInput(in scheduler.Inputs, name string) *dataset.Table {
	table, _ := in[name].(*dataset.Table)
	return table
}

// validatedInput unwraps the validation result's table for the load tasks.
func validatedInput(in scheduler.Inputs) *dataset.Table {
	result, _ := in[TaskValidateData].(*validate.Result)
	if result == nil {
		return nil
	}
	return result.Table
}
