// Package dataset provides the tabular data structure shared by every
// pipeline stage. Extractors produce Tables, transformers enrich them with
// derived columns, validators repair them, and loaders persist them.
//
// A Table keeps an explicit column order so exports and database loads are
// reproducible across runs. Rows are loosely typed records because the two
// data families (stock prices and economic indicators) share the pipeline
// but not a schema.
package dataset

import (
	"fmt"
	"sort"
	"time"
)

// Record is a single row keyed by column name.
type Record map[string]any

// Float returns the value for key coerced to float64.
// The second return is false if the key is absent, nil, or not numeric.
func (r Record) Float(key string) (float64, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// String returns the value for key as a string, or "" if absent or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Time returns the value for key as a time.Time.
// The second return is false if the key is absent or not a time.
func (r Record) Time(key string) (time.Time, bool) {
	v, ok := r[key].(time.Time)
	return v, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Table is an ordered collection of records with a stable column order.
// Columns are added in first-seen order; appending a record with new keys
// extends the column set.
type Table struct {
	columns []string
	colSet  map[string]struct{}
	rows    []Record
}

// New creates an empty table with the given initial column order.
func New(columns ...string) *Table {
	t := &Table{
		columns: make([]string, 0, len(columns)),
		colSet:  make(map[string]struct{}, len(columns)),
	}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(name string) {
	if _, exists := t.colSet[name]; exists {
		return
	}
	t.colSet[name] = struct{}{}
	t.columns = append(t.columns, name)
}

// Append adds a record, extending the column order with any unseen keys.
// New keys are appended in sorted order to keep the column order deterministic
// regardless of map iteration.
func (t *Table) Append(r Record) {
	var unseen []string
	for k := range r {
		if _, exists := t.colSet[k]; !exists {
			unseen = append(unseen, k)
		}
	}
	sort.Strings(unseen)
	for _, k := range unseen {
		t.addColumn(k)
	}
	t.rows = append(t.rows, r)
}

// AppendTable appends all rows of other, merging its column order.
func (t *Table) AppendTable(other *Table) {
	if other == nil {
		return
	}
	for _, c := range other.columns {
		t.addColumn(c)
	}
	for _, r := range other.rows {
		t.rows = append(t.rows, r)
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// IsEmpty reports whether the table is nil or has no rows.
func (t *Table) IsEmpty() bool { return t.Len() == 0 }

// Columns returns a copy of the column order.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.columns))
	copy(cols, t.columns)
	return cols
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.colSet[name]
	return ok
}

// Row returns the record at index i. The record is shared, not copied;
// mutating it mutates the table.
func (t *Table) Row(i int) Record { return t.rows[i] }

// Rows returns the underlying row slice. Callers must not reorder it.
func (t *Table) Rows() []Record { return t.rows }

// Clone returns a deep copy of the table (records are cloned).
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	cp := New(t.columns...)
	cp.rows = make([]Record, 0, len(t.rows))
	for _, r := range t.rows {
		cp.rows = append(cp.rows, r.Clone())
	}
	return cp
}

// SortBy stably sorts rows by the given columns, in order of precedence.
// Values compare numerically when both are numeric, chronologically when
// both are times, and lexically otherwise. Missing values sort first.
func (t *Table) SortBy(columns ...string) {
	sort.SliceStable(t.rows, func(i, j int) bool {
		for _, col := range columns {
			c := compareValues(t.rows[i][col], t.rows[j][col])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// DistinctStrings returns the distinct string values of a column in
// first-appearance order. Non-string and missing values are skipped.
func (t *Table) DistinctStrings(column string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range t.rows {
		s, ok := r[column].(string)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Filter returns a new table containing the rows for which keep returns true.
// Column order is preserved and records are shared with the original.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := New(t.columns...)
	for _, r := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

// MissingFraction returns, per column, the fraction of rows where the value
// is absent or nil. An empty table yields an empty map.
func (t *Table) MissingFraction() map[string]float64 {
	out := make(map[string]float64, len(t.columns))
	if len(t.rows) == 0 {
		return out
	}
	for _, col := range t.columns {
		missing := 0
		for _, r := range t.rows {
			if v, ok := r[col]; !ok || v == nil {
				missing++
			}
		}
		out[col] = float64(missing) / float64(len(t.rows))
	}
	return out
}

func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			switch {
			case ta.Before(tb):
				return -1
			case ta.After(tb):
				return 1
			default:
				return 0
			}
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
