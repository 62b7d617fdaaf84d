package load

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

// exportTimestampLayout names export files uniquely per run.
const exportTimestampLayout = "20060102_150405"

// ExportResult describes the files a CSV export produced.
type ExportResult struct {
	Dir   string   `json:"dir"`
	Files []string `json:"files"`
	Rows  int      `json:"rows"`
}

// CSVLoader exports tables to timestamped CSV files. Price data is written
// per symbol plus a consolidated file; other shapes get a single file.
type CSVLoader struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// CSVLoaderOption configures a CSVLoader.
type CSVLoaderOption func(*CSVLoader)

// WithExportClock sets the clock used for file name timestamps.
func WithExportClock(now func() time.Time) CSVLoaderOption {
	return func(l *CSVLoader) { l.now = now }
}

// NewCSVLoader creates a CSV exporter from configuration.
func NewCSVLoader(cfg config.Config, logger *slog.Logger, opts ...CSVLoaderOption) *CSVLoader {
	l := &CSVLoader{
		dir:    cfg.Export.Dir,
		now:    time.Now,
		logger: logger.With("component", "load", "target", "csv"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Export writes the table to the export directory. An empty input is a
// warning, not a failure.
func (l *CSVLoader) Export(ctx context.Context, data *dataset.Table) (*ExportResult, error) {
	if data.IsEmpty() {
		l.logger.Warn("no data to export")
		return &ExportResult{Dir: l.dir}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, &LoadError{Target: "csv", Err: err}
	}

	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, &LoadError{Target: "csv", Err: fmt.Errorf("failed to create export directory: %w", err)}
	}

	ts := l.now().Format(exportTimestampLayout)
	result := &ExportResult{Dir: l.dir, Rows: data.Len()}

	switch TableFor(data) {
	case TableStockPrices:
		for _, symbol := range data.DistinctStrings("Symbol") {
			sub := data.Filter(func(r dataset.Record) bool { return r["Symbol"] == symbol })
			name := fmt.Sprintf("%s_prices_%s.csv", symbol, ts)
			if err := l.writeFile(name, sub); err != nil {
				return nil, err
			}
			result.Files = append(result.Files, name)
		}
		name := fmt.Sprintf("all_stock_prices_%s.csv", ts)
		if err := l.writeFile(name, data); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, name)
	case TableEconomicIndicators:
		name := fmt.Sprintf("economic_indicators_%s.csv", ts)
		if err := l.writeFile(name, data); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, name)
	default:
		name := fmt.Sprintf("financial_data_%s.csv", ts)
		if err := l.writeFile(name, data); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, name)
	}

	l.logger.Info("export complete", "files", len(result.Files), "rows", result.Rows, "dir", l.dir)
	return result, nil
}

func (l *CSVLoader) writeFile(name string, data *dataset.Table) error {
	path := filepath.Join(l.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return &LoadError{Target: "csv", Err: fmt.Errorf("failed to create %s: %w", name, err)}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	columns := data.Columns()
	if err := w.Write(columns); err != nil {
		return &LoadError{Target: "csv", Err: fmt.Errorf("failed to write header: %w", err)}
	}
	record := make([]string, len(columns))
	for _, row := range data.Rows() {
		for i, col := range columns {
			record[i] = formatCSVValue(row[col])
		}
		if err := w.Write(record); err != nil {
			return &LoadError{Target: "csv", Err: fmt.Errorf("failed to write row: %w", err)}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &LoadError{Target: "csv", Err: fmt.Errorf("failed to flush %s: %w", name, err)}
	}
	l.logger.Debug("wrote export file", "path", path, "rows", data.Len())
	return nil
}

// formatCSVValue renders a cell; missing values become empty fields.
func formatCSVValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
