// Package transform normalizes extracted tables into a common shape and
// derives technical indicators from them. Price data keeps one row per
// (Symbol, Date); indicator data is pivoted to one row per Date with one
// column per indicator.
package transform

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

// priceColumns are the OHLCV columns coerced to float64 during
// normalization.
var priceColumns = []string{"Open", "High", "Low", "Close", "Volume"}

// Transformer normalizes per-source tables and computes derived metrics.
type Transformer struct {
	shortWindow      int
	longWindow       int
	volatilityWindow int
	logger           *slog.Logger
}

// NewTransformer creates a transformer from configuration.
func NewTransformer(cfg config.Config, logger *slog.Logger) *Transformer {
	return &Transformer{
		shortWindow:      cfg.Transform.ShortWindow,
		longWindow:       cfg.Transform.LongWindow,
		volatilityWindow: cfg.Transform.VolatilityWindow,
		logger:           logger.With("component", "transform"),
	}
}

// TransformCSV normalizes stock price data read from the CSV source:
// dates parsed, OHLCV coerced to float64, missing values forward-filled,
// Source tagged and rows sorted by Symbol then Date.
func (t *Transformer) TransformCSV(data *dataset.Table) (*dataset.Table, error) {
	if data.IsEmpty() {
		t.logger.Warn("no CSV data to transform")
		return dataset.New(), nil
	}
	t.logger.Info("transforming CSV data")

	df := data.Clone()
	coerceDates(df, "Date")
	coerceNumeric(df, priceColumns...)
	forwardFill(df)
	setColumn(df, "Source", "CSV")
	df.SortBy("Symbol", "Date")

	t.logger.Info("transformed CSV data", "rows", df.Len())
	return df, nil
}

// TransformJSON normalizes economic indicator data: the long
// (date, indicator, value) form is pivoted into one row per date with one
// column per indicator, Source tagged and rows sorted by Date.
func (t *Transformer) TransformJSON(data *dataset.Table) (*dataset.Table, error) {
	if data.IsEmpty() {
		t.logger.Warn("no JSON data to transform")
		return dataset.New(), nil
	}
	t.logger.Info("transforming JSON data")

	df := data.Clone()
	coerceDates(df, "date")

	var out *dataset.Table
	if df.HasColumn("indicator") && df.HasColumn("value") {
		out = pivotIndicators(df)
	} else {
		out = renameColumn(df, "date", "Date")
	}

	setColumn(out, "Source", "JSON")
	out.SortBy("Date")

	t.logger.Info("transformed JSON data", "rows", out.Len())
	return out, nil
}

// TransformAPI normalizes stock price data fetched from the API. Same shape
// as CSV data, plus an Adj_Close column defaulted from Close when the
// provider did not send one.
func (t *Transformer) TransformAPI(data *dataset.Table) (*dataset.Table, error) {
	if data.IsEmpty() {
		t.logger.Warn("no API data to transform")
		return dataset.New(), nil
	}
	t.logger.Info("transforming API data")

	df := data.Clone()
	coerceDates(df, "Date")
	coerceNumeric(df, priceColumns...)

	if df.HasColumn("Close") && !df.HasColumn("Adj_Close") {
		adj := dataset.New("Adj_Close")
		df.AppendTable(adj)
		for _, row := range df.Rows() {
			if v, ok := row.Float("Close"); ok {
				row["Adj_Close"] = v
			}
		}
	}
	if !df.HasColumn("Source") {
		setColumn(df, "Source", "API")
	}
	df.SortBy("Symbol", "Date")

	t.logger.Info("transformed API data", "rows", df.Len())
	return df, nil
}

// Merge concatenates the given tables, dropping later duplicates of the
// same (Date, Symbol) pair. Nil and empty tables are skipped.
func (t *Transformer) Merge(tables ...*dataset.Table) (*dataset.Table, error) {
	var valid []*dataset.Table
	for _, tb := range tables {
		if !tb.IsEmpty() {
			valid = append(valid, tb)
		}
	}
	if len(valid) == 0 {
		t.logger.Warn("no tables to merge")
		return dataset.New(), nil
	}
	t.logger.Info("merging tables", "count", len(valid))

	combined := dataset.New()
	for _, tb := range valid {
		combined.AppendTable(tb)
	}

	seen := make(map[string]struct{}, combined.Len())
	merged := combined.Filter(func(r dataset.Record) bool {
		key := mergeKey(r)
		if _, dup := seen[key]; dup {
			return false
		}
		seen[key] = struct{}{}
		return true
	})

	t.logger.Info("merged tables", "rows", merged.Len())
	return merged, nil
}

// mergeKey identifies a row by its Date and Symbol values.
func mergeKey(r dataset.Record) string {
	date := ""
	if d, ok := r.Time("Date"); ok {
		date = d.Format("2006-01-02")
	} else if v, ok := r["Date"]; ok {
		date = fmt.Sprint(v)
	}
	return date + "|" + r.String("Symbol")
}

// coerceDates parses string values in the named column into time.Time.
func coerceDates(t *dataset.Table, column string) {
	if !t.HasColumn(column) {
		return
	}
	for _, row := range t.Rows() {
		if s, ok := row[column].(string); ok {
			if parsed, err := time.Parse("2006-01-02", s); err == nil {
				row[column] = parsed
			}
		}
	}
}

// coerceNumeric converts values in the named columns to float64.
// Unparseable values become nil (missing).
func coerceNumeric(t *dataset.Table, columns ...string) {
	for _, column := range columns {
		if !t.HasColumn(column) {
			continue
		}
		for _, row := range t.Rows() {
			v, present := row[column]
			if !present || v == nil {
				row[column] = nil
				continue
			}
			if f, ok := row.Float(column); ok {
				row[column] = f
				continue
			}
			if s, ok := v.(string); ok {
				if f, err := strconv.ParseFloat(s, 64); err == nil {
					row[column] = f
					continue
				}
			}
			row[column] = nil
		}
	}
}

// forwardFill replaces missing values with the last seen value of the same
// column, in current row order.
func forwardFill(t *dataset.Table) {
	last := make(map[string]any)
	for _, row := range t.Rows() {
		for _, column := range t.Columns() {
			v, present := row[column]
			if !present || v == nil {
				if prev, ok := last[column]; ok {
					row[column] = prev
				}
				continue
			}
			last[column] = v
		}
	}
}

// setColumn sets a constant value on every row, registering the column.
func setColumn(t *dataset.Table, column string, value any) {
	t.AppendTable(dataset.New(column))
	for _, row := range t.Rows() {
		row[column] = value
	}
}

// renameColumn returns a copy of the table with one column renamed.
func renameColumn(t *dataset.Table, from, to string) *dataset.Table {
	columns := t.Columns()
	for i, c := range columns {
		if c == from {
			columns[i] = to
		}
	}
	out := dataset.New(columns...)
	for _, row := range t.Rows() {
		r := row.Clone()
		if v, ok := r[from]; ok {
			delete(r, from)
			r[to] = v
		}
		out.Append(r)
	}
	return out
}

// pivotIndicators turns long-form (date, indicator, value) rows into one row
// per date with one column per indicator. The first value per cell wins.
// Indicator columns are added in sorted order.
func pivotIndicators(t *dataset.Table) *dataset.Table {
	type cell struct {
		date time.Time
		row  dataset.Record
	}
	byDate := make(map[time.Time]*cell)
	var order []time.Time

	indicatorSet := make(map[string]struct{})
	for _, row := range t.Rows() {
		date, ok := row.Time("date")
		if !ok {
			continue
		}
		name := row.String("indicator")
		if name == "" {
			continue
		}
		indicatorSet[name] = struct{}{}

		c, exists := byDate[date]
		if !exists {
			c = &cell{date: date, row: dataset.Record{"Date": date}}
			byDate[date] = c
			order = append(order, date)
		}
		if _, filled := c.row[name]; !filled {
			if v, ok := row.Float("value"); ok {
				c.row[name] = v
			}
		}
	}

	indicators := make([]string, 0, len(indicatorSet))
	for name := range indicatorSet {
		indicators = append(indicators, name)
	}
	sort.Strings(indicators)

	out := dataset.New(append([]string{"Date"}, indicators...)...)
	for _, date := range order {
		out.Append(byDate[date].row)
	}
	return out
}
