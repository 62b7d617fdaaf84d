package extract

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Sources.CSV.Path = filepath.Join(dir, "stock_prices.csv")
	cfg.Sources.JSON.Path = filepath.Join(dir, "economic_indicators.json")
	cfg.Database.Path = filepath.Join(dir, "marketpipe.db")
	cfg.Export.Dir = filepath.Join(dir, "processed")
	return cfg
}

func TestCSVExtractor_Extract(t *testing.T) {
	cfg := testConfig(t)
	content := "Date,Symbol,Open,High,Low,Close,Volume\n" +
		"2024-01-02,AAPL,185.50,187.20,184.90,186.10,52000000\n" +
		"2024-01-03,AAPL,186.00,188.00,185.50,187.45,48000000\n" +
		"2024-01-02,MSFT,370.00,372.50,369.10,371.80,24000000\n"
	require.NoError(t, os.WriteFile(cfg.Sources.CSV.Path, []byte(content), 0o644))

	extractor := NewCSVExtractor(cfg, testLogger())
	table, err := extractor.Extract(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"Date", "Symbol", "Open", "High", "Low", "Close", "Volume"}, table.Columns())

	row := table.Row(0)
	date, ok := row.Time("Date")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, "AAPL", row.String("Symbol"))

	closePrice, ok := row.Float("Close")
	require.True(t, ok)
	assert.InDelta(t, 186.10, closePrice, 0.001)
}

func TestCSVExtractor_MissingFileGeneratesSample(t *testing.T) {
	// Sample generation is on by default.
	cfg := testConfig(t)
	cfg.Query.Symbols = []string{"AAPL", "MSFT"}
	cfg.Query.Lookback = 30 * 24 * time.Hour

	extractor := NewCSVExtractor(cfg, testLogger(),
		WithCSVRand(rand.New(rand.NewSource(1))))

	table, err := extractor.Extract(context.Background())
	require.NoError(t, err)

	// The sample file is persisted for subsequent runs.
	_, statErr := os.Stat(cfg.Sources.CSV.Path)
	require.NoError(t, statErr)

	assert.Greater(t, table.Len(), 0)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, table.DistinctStrings("Symbol"))

	for _, row := range table.Rows() {
		high, _ := row.Float("High")
		low, _ := row.Float("Low")
		assert.GreaterOrEqual(t, high, low)
		volume, _ := row.Float("Volume")
		assert.GreaterOrEqual(t, volume, 100000.0)
	}
}

func TestCSVExtractor_MissingFileWithoutSampleFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.CSV.DisableSample = true

	extractor := NewCSVExtractor(cfg, testLogger())
	_, err := extractor.Extract(context.Background())
	require.Error(t, err)

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "csv", extractErr.Source)
}

func TestCSVExtractor_MalformedRow(t *testing.T) {
	cfg := testConfig(t)
	content := "Date,Symbol,Close\n2024-01-02,AAPL,186.10\nbroken,\"unterminated\n"
	require.NoError(t, os.WriteFile(cfg.Sources.CSV.Path, []byte(content), 0o644))

	extractor := NewCSVExtractor(cfg, testLogger())
	_, err := extractor.Extract(context.Background())
	require.Error(t, err)

	var extractErr *ExtractionError
	assert.ErrorAs(t, err, &extractErr)
}

func TestParseCSVValue(t *testing.T) {
	assert.Nil(t, parseCSVValue(""))
	assert.Equal(t, 12.5, parseCSVValue("12.5"))
	assert.Equal(t, "AAPL", parseCSVValue("AAPL"))

	v := parseCSVValue("2024-06-01")
	date, ok := v.(time.Time)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), date)
}

func TestBusinessDays(t *testing.T) {
	// Mon 2024-01-01 through Sun 2024-01-07: five business days.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC)

	days := businessDays(start, end)
	require.Len(t, days, 5)
	for _, d := range days {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
}

func TestMonthAndQuarterStarts(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	months := monthStarts(start, end)
	require.Len(t, months, 11) // Feb through Dec; January 1st is before start.
	assert.Equal(t, time.February, months[0].Month())

	quarters := quarterStarts(start, end)
	require.Len(t, quarters, 3)
	assert.Equal(t, time.April, quarters[0].Month())
	assert.Equal(t, time.July, quarters[1].Month())
	assert.Equal(t, time.October, quarters[2].Month())
}
