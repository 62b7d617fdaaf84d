package pipeline

import (
	"slices"
	"time"

	"github.com/marketpipe/marketpipe/load"
	"github.com/marketpipe/marketpipe/scheduler"
	"github.com/marketpipe/marketpipe/validate"
)

// TaskReport is the per-task outcome recorded in a run summary.
type TaskReport struct {
	Name     string           `json:"name"`
	Status   scheduler.Status `json:"status"`
	Duration time.Duration    `json:"duration"`
	Error    string           `json:"error,omitempty"`
	Skipped  bool             `json:"skipped,omitempty"`
}

// RunSummary reports the outcome of one pipeline run.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Sources    []string  `json:"sources"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Tasks holds every task in execution order.
	Tasks     []TaskReport `json:"tasks"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`

	// Warnings are the data validation warnings, when validation ran.
	Warnings []string `json:"warnings,omitempty"`

	// Database and Export describe where the run's data was persisted.
	Database *load.DBResult     `json:"database,omitempty"`
	Export   *load.ExportResult `json:"export,omitempty"`

	// Success is true when every load task succeeded. Source failures
	// degrade a run; persistence failures fail it.
	Success bool `json:"success"`
}

// Failures returns the reports of tasks that failed outright, skips excluded.
func (s *RunSummary) Failures() []TaskReport {
	var out []TaskReport
	for _, t := range s.Tasks {
		if t.Status == scheduler.StatusFailed && !t.Skipped {
			out = append(out, t)
		}
	}
	return out
}

// FailureReasons returns "name: reason" strings for failed and skipped tasks.
func (s *RunSummary) FailureReasons() []string {
	var out []string
	for _, t := range s.Tasks {
		if t.Status == scheduler.StatusFailed {
			out = append(out, t.Name+": "+t.Error)
		}
	}
	return out
}

// buildSummary folds the scheduler's results into a RunSummary, in execution
// order.
func buildSummary(runID string, sources []string, startedAt, finishedAt time.Time, order []string, results map[string]scheduler.Result) *RunSummary {
	summary := &RunSummary{
		RunID:      runID,
		Sources:    sources,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Tasks:      make([]TaskReport, 0, len(order)),
		Success:    true,
	}

	for _, name := range order {
		result := results[name]
		report := TaskReport{
			Name:     name,
			Status:   result.Status,
			Duration: result.Duration,
			Skipped:  result.Skipped(),
		}
		if result.Err != nil {
			report.Error = result.Err.Error()
		}

		switch {
		case result.Status == scheduler.StatusSucceeded:
			summary.Succeeded++
		case report.Skipped:
			summary.Skipped++
		default:
			summary.Failed++
		}
		summary.Tasks = append(summary.Tasks, report)

		if slices.Contains(loadTasks, name) && result.Status != scheduler.StatusSucceeded {
			summary.Success = false
		}
	}

	if validated, ok := results[TaskValidateData].Value.(*validate.Result); ok && validated != nil {
		summary.Warnings = validated.Warnings
	}
	if db, ok := results[TaskLoadToDB].Value.(*load.DBResult); ok {
		summary.Database = db
	}
	if export, ok := results[TaskExportToCSV].Value.(*load.ExportResult); ok {
		summary.Export = export
	}

	return summary
}
