package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

// JSONExtractor reads economic indicator data from a JSON file.
type JSONExtractor struct {
	path           string
	generateSample bool
	lookback       time.Duration
	rng            *rand.Rand
	logger         *slog.Logger
}

// JSONOption configures a JSONExtractor.
type JSONOption func(*JSONExtractor)

// WithJSONRand sets the random source used for sample-data generation.
func WithJSONRand(rng *rand.Rand) JSONOption {
	return func(e *JSONExtractor) { e.rng = rng }
}

// NewJSONExtractor creates a JSON extractor from configuration.
func NewJSONExtractor(cfg config.Config, logger *slog.Logger, opts ...JSONOption) *JSONExtractor {
	e := &JSONExtractor{
		path:           cfg.Sources.JSON.Path,
		generateSample: !cfg.Sources.JSON.DisableSample,
		lookback:       cfg.Query.Lookback,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:         logger.With("component", "extract", "source", "json"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract reads the JSON file and returns the indicator observations as a
// table with columns date, indicator, value, unit and frequency.
func (e *JSONExtractor) Extract(ctx context.Context) (*dataset.Table, error) {
	e.logger.Info("extracting data from JSON file", "path", e.path)

	if _, err := os.Stat(e.path); os.IsNotExist(err) {
		if !e.generateSample {
			return nil, &ExtractionError{Source: config.SourceJSON, Err: fmt.Errorf("input file not found: %s", e.path)}
		}
		e.logger.Warn("JSON file not found, creating sample data", "path", e.path)
		end := time.Now()
		if err := writeSampleIndicators(e.path, e.rng, end.Add(-e.lookback), end); err != nil {
			return nil, &ExtractionError{Source: config.SourceJSON, Err: err}
		}
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, &ExtractionError{Source: config.SourceJSON, Err: err}
	}

	var doc indicatorDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ExtractionError{Source: config.SourceJSON, Err: fmt.Errorf("failed to parse JSON: %w", err)}
	}

	table := dataset.New("date", "indicator", "value", "unit", "frequency")
	for _, obs := range doc.Indicators {
		row := dataset.Record{
			"indicator": obs.Indicator,
			"value":     obs.Value,
			"unit":      obs.Unit,
			"frequency": obs.Frequency,
		}
		if t, err := time.Parse(dateLayout, obs.Date); err == nil {
			row["date"] = t
		} else {
			row["date"] = obs.Date
		}
		table.Append(row)
	}

	e.logger.Info("extracted rows from JSON file",
		"rows", table.Len(),
		"columns", strings.Join(table.Columns(), ", "))
	return table, nil
}
