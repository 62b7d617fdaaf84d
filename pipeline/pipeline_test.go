package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/load"
	"github.com/marketpipe/marketpipe/metrics"
	"github.com/marketpipe/marketpipe/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipelineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Sources.CSV.Path = filepath.Join(dir, "stock_prices.csv")
	cfg.Sources.JSON.Path = filepath.Join(dir, "economic_indicators.json")
	cfg.Database.Path = filepath.Join(dir, "marketpipe.db")
	cfg.Export.Dir = filepath.Join(dir, "processed")
	cfg.Query.Symbols = []string{"AAPL", "MSFT"}
	cfg.Query.Lookback = 60 * 24 * time.Hour
	return cfg
}

func taskByName(t *testing.T, summary *RunSummary, name string) TaskReport {
	t.Helper()
	for _, task := range summary.Tasks {
		if task.Name == name {
			return task
		}
	}
	t.Fatalf("task %s not in summary", name)
	return TaskReport{}
}

func TestRunCSVSource(t *testing.T) {
	cfg := testPipelineConfig(t)
	o := New(cfg, testLogger())

	summary, err := o.Run(context.Background(), Request{Sources: []string{"csv"}})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"csv"}, summary.Sources)
	assert.Equal(t, 6, summary.Succeeded) // extract, transform, metrics, validate, 2 loads
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Skipped)

	require.NotNil(t, summary.Database)
	assert.Equal(t, load.TableStockPrices, summary.Database.Table)
	assert.Positive(t, summary.Database.Rows)
	assert.FileExists(t, cfg.Database.Path)

	require.NotNil(t, summary.Export)
	assert.NotEmpty(t, summary.Export.Files)
}

func TestRunAllSources(t *testing.T) {
	cfg := testPipelineConfig(t)
	o := New(cfg, testLogger())

	summary, err := o.Run(context.Background(), Request{})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	assert.Equal(t, []string{"csv", "json", "api"}, summary.Sources)
	assert.Equal(t, 10, summary.Succeeded)
	assert.Zero(t, summary.Failed)

	// Order respects dependencies: extraction before its transform, merge
	// before validation, validation before either load.
	index := make(map[string]int, len(summary.Tasks))
	for i, task := range summary.Tasks {
		index[task.Name] = i
	}
	assert.Less(t, index[TaskExtractCSV], index[TaskTransformCSV])
	assert.Less(t, index[TaskTransformAPI], index[TaskCalculateMetrics])
	assert.Less(t, index[TaskCalculateMetrics], index[TaskValidateData])
	assert.Less(t, index[TaskValidateData], index[TaskLoadToDB])
	assert.Less(t, index[TaskValidateData], index[TaskExportToCSV])

	// Both data families survive the merge into the loaded table: the
	// economic indicator rows carry no symbol and must not be dropped by
	// the metrics step.
	db, err := sqlx.Open("sqlite3", cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var priceRows, indicatorRows int
	require.NoError(t, db.Get(&priceRows,
		`SELECT COUNT(*) FROM `+summary.Database.Table+` WHERE "Symbol" IS NOT NULL`))
	require.NoError(t, db.Get(&indicatorRows,
		`SELECT COUNT(*) FROM `+summary.Database.Table+` WHERE "Symbol" IS NULL`))
	assert.Positive(t, priceRows)
	assert.Positive(t, indicatorRows)
	assert.Equal(t, summary.Database.Rows, priceRows+indicatorRows)
}

func TestRunFailedSourceSkipsDownstream(t *testing.T) {
	cfg := testPipelineConfig(t)
	// A missing file without sample generation fails the csv extraction.
	cfg.Sources.CSV.DisableSample = true
	o := New(cfg, testLogger())

	summary, err := o.Run(context.Background(), Request{Sources: []string{"csv"}})
	require.NoError(t, err)

	assert.False(t, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 5, summary.Skipped)
	assert.Zero(t, summary.Succeeded)

	extract := taskByName(t, summary, TaskExtractCSV)
	assert.Equal(t, scheduler.StatusFailed, extract.Status)
	assert.False(t, extract.Skipped)

	transform := taskByName(t, summary, TaskTransformCSV)
	assert.True(t, transform.Skipped)
	assert.Contains(t, transform.Error, "extract_csv")

	require.Len(t, summary.Failures(), 1)
	assert.Equal(t, TaskExtractCSV, summary.Failures()[0].Name)
}

func TestRunUnknownSource(t *testing.T) {
	cfg := testPipelineConfig(t)
	o := New(cfg, testLogger())

	_, err := o.Run(context.Background(), Request{Sources: []string{"ftp"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp")
}

func TestRunDisabledSourceRejected(t *testing.T) {
	cfg := testPipelineConfig(t)
	cfg.Sources.Enabled = []string{"csv"}
	o := New(cfg, testLogger())

	_, err := o.Run(context.Background(), Request{Sources: []string{"api"}})
	require.Error(t, err)
}

func TestRunJSONSourceLoadsIndicators(t *testing.T) {
	cfg := testPipelineConfig(t)
	o := New(cfg, testLogger())

	summary, err := o.Run(context.Background(), Request{Sources: []string{"json"}})
	require.NoError(t, err)

	assert.True(t, summary.Success)
	require.NotNil(t, summary.Database)
	assert.Equal(t, load.TableEconomicIndicators, summary.Database.Table)
}

func TestRunRecordsMetrics(t *testing.T) {
	cfg := testPipelineConfig(t)
	registry, err := metrics.NewScrapeRegistry()
	require.NoError(t, err)
	set, err := metrics.NewPipeline(registry)
	require.NoError(t, err)

	o := New(cfg, testLogger(), WithMetrics(set))
	_, err = o.Run(context.Background(), Request{Sources: []string{"csv"}})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, `runs_total{outcome="success"} 1`)
	assert.Contains(t, body, `rows_extracted_total{source="csv"}`)
	assert.Contains(t, body, `tasks_total{status="success",task="load_to_db"} 1`)
}

func TestRunDeterministicOrder(t *testing.T) {
	cfg := testPipelineConfig(t)
	o := New(cfg, testLogger())

	first, err := o.Run(context.Background(), Request{Sources: []string{"csv", "json"}})
	require.NoError(t, err)
	second, err := o.Run(context.Background(), Request{Sources: []string{"csv", "json"}})
	require.NoError(t, err)

	require.Len(t, second.Tasks, len(first.Tasks))
	for i := range first.Tasks {
		assert.Equal(t, first.Tasks[i].Name, second.Tasks[i].Name)
		assert.Equal(t, first.Tasks[i].Status, second.Tasks[i].Status)
	}
	assert.NotEqual(t, first.RunID, second.RunID)
}
