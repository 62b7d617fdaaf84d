package load

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLoadConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Database.Path = filepath.Join(dir, "marketpipe.db")
	cfg.Export.Dir = filepath.Join(dir, "processed")
	return cfg
}

func priceTable(rows int) *dataset.Table {
	table := dataset.New("Date", "Symbol", "Open", "High", "Low", "Close", "Volume")
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		table.Append(dataset.Record{
			"Date":   day.AddDate(0, 0, i),
			"Symbol": "AAPL",
			"Open":   100.0 + float64(i),
			"High":   101.0 + float64(i),
			"Low":    99.0 + float64(i),
			"Close":  100.5 + float64(i),
			"Volume": 1000000.0,
		})
	}
	return table
}

func TestDBLoaderLoad(t *testing.T) {
	cfg := testLoadConfig(t)
	loader := NewDBLoader(cfg, testLogger())

	result, err := loader.Load(context.Background(), priceTable(3))
	require.NoError(t, err)
	assert.Equal(t, TableStockPrices, result.Table)
	assert.Equal(t, 3, result.Rows)
	assert.Equal(t, cfg.Database.Path, result.Path)

	db, err := sqlx.Open("sqlite3", cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM stock_prices"))
	assert.Equal(t, 3, count)

	var symbol string
	var closePrice float64
	row := db.QueryRow(`SELECT "Symbol", "Close" FROM stock_prices ORDER BY "Close" LIMIT 1`)
	require.NoError(t, row.Scan(&symbol, &closePrice))
	assert.Equal(t, "AAPL", symbol)
	assert.InDelta(t, 100.5, closePrice, 1e-9)
}

func TestDBLoaderAppends(t *testing.T) {
	cfg := testLoadConfig(t)
	loader := NewDBLoader(cfg, testLogger())

	_, err := loader.Load(context.Background(), priceTable(2))
	require.NoError(t, err)
	_, err = loader.Load(context.Background(), priceTable(2))
	require.NoError(t, err)

	db, err := sqlx.Open("sqlite3", cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM stock_prices"))
	assert.Equal(t, 4, count)
}

func TestDBLoaderAddsLoadTimestamp(t *testing.T) {
	cfg := testLoadConfig(t)
	loadedAt := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	loader := NewDBLoader(cfg, testLogger(), WithDBClock(func() time.Time { return loadedAt }))

	_, err := loader.Load(context.Background(), priceTable(1))
	require.NoError(t, err)

	db, err := sqlx.Open("sqlite3", cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM stock_prices WHERE "load_timestamp" IS NOT NULL`))
	assert.Equal(t, 1, count)
}

func TestDBLoaderEmptyTable(t *testing.T) {
	cfg := testLoadConfig(t)
	loader := NewDBLoader(cfg, testLogger())

	result, err := loader.Load(context.Background(), dataset.New())
	require.NoError(t, err)
	assert.Zero(t, result.Rows)
	assert.NoFileExists(t, cfg.Database.Path)
}

func TestDBLoaderNilValues(t *testing.T) {
	cfg := testLoadConfig(t)
	loader := NewDBLoader(cfg, testLogger())

	table := priceTable(2)
	table.Row(1)["Close"] = nil

	_, err := loader.Load(context.Background(), table)
	require.NoError(t, err)

	db, err := sqlx.Open("sqlite3", cfg.Database.Path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM stock_prices WHERE "Close" IS NULL`))
	assert.Equal(t, 1, count)
}

func TestDBLoaderBadPath(t *testing.T) {
	cfg := testLoadConfig(t)
	// Point the database path at a directory so opening it fails.
	cfg.Database.Path = t.TempDir()
	loader := NewDBLoader(cfg, testLogger())

	_, err := loader.Load(context.Background(), priceTable(1))
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "database", loadErr.Target)
}

func TestTableFor(t *testing.T) {
	assert.Equal(t, TableStockPrices, TableFor(priceTable(1)))

	indicators := dataset.New("Date", "GDP_Growth")
	indicators.Append(dataset.Record{"Date": time.Now(), "GDP_Growth": 2.5})
	assert.Equal(t, TableEconomicIndicators, TableFor(indicators))

	generic := dataset.New("Date", "value")
	generic.Append(dataset.Record{"Date": time.Now(), "value": 1.0})
	assert.Equal(t, TableFinancialData, TableFor(generic))
}
