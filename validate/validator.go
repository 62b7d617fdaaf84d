// Package validate checks transformed data for quality problems and repairs
// what it can. Repairs never drop rows: out-of-range values are replaced
// from neighbouring observations, inconsistent OHLC rows are reconciled, and
// anything suspicious is reported as a warning alongside the repaired table.
package validate

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

// Reasonable ranges for economic indicators, in percent.
const (
	minGDPGrowth    = -10.0
	maxGDPGrowth    = 15.0
	minUnemployment = 0.0
	maxUnemployment = 30.0
	minInflation    = -5.0
	maxInflation    = 25.0
)

// extremeReturnLimit flags daily moves beyond +/-50%.
const extremeReturnLimit = 0.5

// Result is the outcome of validating one table: the repaired table and the
// warnings raised while repairing it. Row count always matches the input.
type Result struct {
	Table    *dataset.Table
	Warnings []string
}

// Validator applies quality rules to transformed data.
type Validator struct {
	minPrice   float64
	maxPrice   float64
	maxMissing float64
	strict     bool
	logger     *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithStrict makes validation fail when any warning is raised, instead of
// repairing and continuing.
func WithStrict() Option {
	return func(v *Validator) { v.strict = true }
}

// NewValidator creates a validator from configuration.
func NewValidator(cfg config.Config, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		minPrice:   cfg.Validation.MinPrice,
		maxPrice:   cfg.Validation.MaxPrice,
		maxMissing: cfg.Validation.MaxMissing,
		logger:     logger.With("component", "validate"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate repairs the table in a copy and reports warnings. Stock price
// tables and economic indicator tables get different rule sets; anything
// else passes through untouched.
func (v *Validator) Validate(data *dataset.Table) (*Result, error) {
	if data.IsEmpty() {
		v.logger.Warn("no data to validate")
		return &Result{Table: dataset.New()}, nil
	}
	v.logger.Info("validating financial data", "rows", data.Len())

	df := data.Clone()
	var warnings []string

	switch {
	case df.HasColumn("Symbol") && df.HasColumn("Close"):
		warnings = v.validatePrices(df)
	case df.HasColumn("GDP_Growth") || df.HasColumn("Unemployment_Rate") || df.HasColumn("Inflation_Rate"):
		warnings = v.validateIndicators(df)
	}

	for _, w := range warnings {
		v.logger.Warn(w)
	}
	if v.strict && len(warnings) > 0 {
		return nil, &ValidationError{Warnings: warnings}
	}
	v.logger.Info("data validation completed", "rows", df.Len(), "warnings", len(warnings))
	return &Result{Table: df, Warnings: warnings}, nil
}

func (v *Validator) validatePrices(df *dataset.Table) []string {
	var warnings []string

	for column, fraction := range df.MissingFraction() {
		if fraction > v.maxMissing {
			warnings = append(warnings,
				fmt.Sprintf("column %s has %.1f%% missing values", column, fraction*100))
		}
	}

	fillForward(df, df.Columns()...)
	fillBackward(df, df.Columns()...)

	for _, column := range []string{"Open", "High", "Low", "Close", "Adj_Close"} {
		if !df.HasColumn(column) {
			continue
		}
		invalid := 0
		for _, row := range df.Rows() {
			if p, ok := row.Float(column); ok && (p < v.minPrice || p > v.maxPrice) {
				row[column] = nil
				invalid++
			}
		}
		if invalid > 0 {
			warnings = append(warnings, fmt.Sprintf("found %d invalid %s prices", invalid, column))
			fillForward(df, column)
			fillBackward(df, column)
		}
	}

	if df.HasColumn("High") && df.HasColumn("Low") {
		inconsistent := 0
		for _, row := range df.Rows() {
			if repairPriceRelationship(row) {
				inconsistent++
			}
		}
		if inconsistent > 0 {
			warnings = append(warnings,
				fmt.Sprintf("found %d rows with inconsistent price relationships", inconsistent))
		}
	}

	if df.HasColumn("Volume") {
		negative := 0
		for _, row := range df.Rows() {
			if vol, ok := row.Float("Volume"); ok && vol < 0 {
				row["Volume"] = 0.0
				negative++
			}
		}
		if negative > 0 {
			warnings = append(warnings, fmt.Sprintf("found %d negative volume values", negative))
		}
	}

	if df.HasColumn("Daily_Return") {
		extreme := 0
		for _, row := range df.Rows() {
			if ret, ok := row.Float("Daily_Return"); ok && math.Abs(ret) > extremeReturnLimit {
				extreme++
			}
		}
		if extreme > 0 {
			warnings = append(warnings, fmt.Sprintf("found %d extreme daily returns", extreme))
			flag := dataset.New("Extreme_Return_Flag")
			df.AppendTable(flag)
			for _, row := range df.Rows() {
				ret, ok := row.Float("Daily_Return")
				row["Extreme_Return_Flag"] = ok && math.Abs(ret) > extremeReturnLimit
			}
		}
	}

	return warnings
}

func (v *Validator) validateIndicators(df *dataset.Table) []string {
	var warnings []string

	for column, fraction := range df.MissingFraction() {
		if fraction > v.maxMissing {
			warnings = append(warnings,
				fmt.Sprintf("column %s has %.1f%% missing values", column, fraction*100))
		}
	}

	fillForward(df, df.Columns()...)
	fillBackward(df, df.Columns()...)

	ranges := []struct {
		column   string
		min, max float64
	}{
		{"GDP_Growth", minGDPGrowth, maxGDPGrowth},
		{"Unemployment_Rate", minUnemployment, maxUnemployment},
		{"Inflation_Rate", minInflation, maxInflation},
	}
	for _, r := range ranges {
		if !df.HasColumn(r.column) {
			continue
		}
		invalid := 0
		for _, row := range df.Rows() {
			if val, ok := row.Float(r.column); ok && (val < r.min || val > r.max) {
				row[r.column] = nil
				invalid++
			}
		}
		if invalid > 0 {
			warnings = append(warnings, fmt.Sprintf("found %d invalid %s values", invalid, r.column))
			fillForward(df, r.column)
		}
	}

	return warnings
}

// repairPriceRelationship enforces High >= {Open, Close, Low} and
// Low <= {Open, Close, High} by widening High/Low to the row's extremes.
// Reports whether the row needed repair.
func repairPriceRelationship(row dataset.Record) bool {
	var values []float64
	for _, column := range []string{"Open", "High", "Low", "Close"} {
		if p, ok := row.Float(column); ok {
			values = append(values, p)
		}
	}
	if len(values) == 0 {
		return false
	}

	high, hasHigh := row.Float("High")
	low, hasLow := row.Float("Low")
	if !hasHigh || !hasLow {
		return false
	}

	maxPrice, minPrice := values[0], values[0]
	for _, p := range values[1:] {
		maxPrice = math.Max(maxPrice, p)
		minPrice = math.Min(minPrice, p)
	}

	if high >= maxPrice && low <= minPrice {
		return false
	}
	row["High"] = maxPrice
	row["Low"] = minPrice
	return true
}

// fillForward replaces missing values with the previous row's value, per
// column, in current row order.
func fillForward(df *dataset.Table, columns ...string) {
	rows := df.Rows()
	for _, column := range columns {
		var last any
		for _, row := range rows {
			v, present := row[column]
			if !present || v == nil {
				if last != nil {
					row[column] = last
				}
				continue
			}
			last = v
		}
	}
}

// fillBackward replaces missing values with the next row's value, per
// column, in current row order.
func fillBackward(df *dataset.Table, columns ...string) {
	rows := df.Rows()
	for _, column := range columns {
		var next any
		for i := len(rows) - 1; i >= 0; i-- {
			v, present := rows[i][column]
			if !present || v == nil {
				if next != nil {
					rows[i][column] = next
				}
				continue
			}
			next = v
		}
	}
}
