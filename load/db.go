// Package load persists validated data: DBLoader appends rows to a SQLite
// database with the table chosen by data shape, CSVLoader exports per-symbol
// and consolidated CSV files. Both report where the data ended up.
package load

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

// Target tables, chosen by data shape.
const (
	TableStockPrices        = "stock_prices"
	TableEconomicIndicators = "economic_indicators"
	TableFinancialData      = "financial_data"
)

// loadTimestampColumn records when a row was appended.
const loadTimestampColumn = "load_timestamp"

// DBResult describes where a database load ended up.
type DBResult struct {
	Path  string `json:"path"`
	Table string `json:"table"`
	Rows  int    `json:"rows"`
}

// DBLoader appends tables to a SQLite database.
type DBLoader struct {
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// DBOption configures a DBLoader.
type DBOption func(*DBLoader)

// WithDBClock sets the clock used for load timestamps.
func WithDBClock(now func() time.Time) DBOption {
	return func(l *DBLoader) { l.now = now }
}

// NewDBLoader creates a database loader from configuration.
func NewDBLoader(cfg config.Config, logger *slog.Logger, opts ...DBOption) *DBLoader {
	l := &DBLoader{
		path:   cfg.Database.Path,
		now:    time.Now,
		logger: logger.With("component", "load", "target", "database"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load appends the table's rows to the database, adding a load_timestamp
// column. The destination table is created on first use from the data's
// columns. An empty input is a warning, not a failure.
func (l *DBLoader) Load(ctx context.Context, data *dataset.Table) (*DBResult, error) {
	if data.IsEmpty() {
		l.logger.Warn("no data to load into database")
		return &DBResult{Path: l.path}, nil
	}

	table := TableFor(data)
	l.logger.Info("loading rows into database", "rows", data.Len(), "table", table)

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &LoadError{Target: "database", Err: fmt.Errorf("failed to create database directory: %w", err)}
		}
	}

	db, err := sqlx.Open("sqlite3", l.path)
	if err != nil {
		return nil, &LoadError{Target: "database", Err: fmt.Errorf("failed to open database: %w", err)}
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, &LoadError{Target: "database", Err: fmt.Errorf("database connection failed: %w", err)}
	}

	columns := append(data.Columns(), loadTimestampColumn)
	if err := l.ensureTable(ctx, db, table, columns, data); err != nil {
		return nil, &LoadError{Target: "database", Err: err}
	}

	if err := l.insertRows(ctx, db, table, columns, data); err != nil {
		return nil, &LoadError{Target: "database", Err: err}
	}

	l.logger.Info("successfully loaded data", "table", table, "rows", data.Len())
	return &DBResult{Path: l.path, Table: table, Rows: data.Len()}, nil
}

// TableFor picks the destination table from the data's shape.
func TableFor(data *dataset.Table) string {
	switch {
	case data.HasColumn("Symbol") && data.HasColumn("Close"):
		return TableStockPrices
	case data.HasColumn("GDP_Growth") || data.HasColumn("Unemployment_Rate") || data.HasColumn("Inflation_Rate"):
		return TableEconomicIndicators
	default:
		return TableFinancialData
	}
}

// ensureTable creates the destination table if it does not exist, with
// column types inferred from the data.
func (l *DBLoader) ensureTable(ctx context.Context, db *sqlx.DB, table string, columns []string, data *dataset.Table) error {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, fmt.Sprintf("%q %s", col, sqliteType(col, data)))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", table, strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return nil
}

// sqliteType infers a column affinity from the first non-nil value.
func sqliteType(column string, data *dataset.Table) string {
	if column == loadTimestampColumn {
		return "TIMESTAMP"
	}
	for _, row := range data.Rows() {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case float64, float32:
			return "REAL"
		case int, int64:
			return "INTEGER"
		case bool:
			return "BOOLEAN"
		case time.Time:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

// insertRows appends every row inside one transaction.
func (l *DBLoader) insertRows(ctx context.Context, db *sqlx.DB, table string, columns []string, data *dataset.Table) error {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
		placeholders[i] = "?"
	}
	query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	loadedAt := l.now()
	for _, row := range data.Rows() {
		args := make([]any, len(columns))
		for i, col := range columns {
			if col == loadTimestampColumn {
				args[i] = loadedAt
				continue
			}
			args[i] = row[col]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
