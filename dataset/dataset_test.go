package dataset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_AppendExtendsColumns(t *testing.T) {
	tbl := New("date", "symbol")

	tbl.Append(Record{"date": time.Now(), "symbol": "AAPL", "close": 101.5})
	tbl.Append(Record{"date": time.Now(), "symbol": "MSFT", "close": 300.0, "volume": 1000.0})

	assert.Equal(t, []string{"date", "symbol", "close", "volume"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Len())
	assert.True(t, tbl.HasColumn("volume"))
	assert.False(t, tbl.HasColumn("open"))
}

func TestTable_AppendNewKeysDeterministicOrder(t *testing.T) {
	// Keys unseen by the table arrive via map iteration, so they must be
	// added in sorted order to keep column order stable across runs.
	tbl := New()
	tbl.Append(Record{"zeta": 1.0, "alpha": 2.0, "mid": 3.0})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, tbl.Columns())
}

func TestTable_SortBy(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tbl := New("date", "symbol")
	tbl.Append(Record{"date": d2, "symbol": "MSFT"})
	tbl.Append(Record{"date": d1, "symbol": "MSFT"})
	tbl.Append(Record{"date": d1, "symbol": "AAPL"})

	tbl.SortBy("symbol", "date")

	assert.Equal(t, "AAPL", tbl.Row(0).String("symbol"))
	assert.Equal(t, "MSFT", tbl.Row(1).String("symbol"))
	first, _ := tbl.Row(1).Time("date")
	assert.Equal(t, d1, first)
}

func TestRecord_Float(t *testing.T) {
	r := Record{"a": 1.5, "b": 7, "c": "nope", "d": nil}

	v, ok := r.Float("a")
	require.True(t, ok)
	assert.Equal(t, 1.5, v)

	v, ok = r.Float("b")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = r.Float("c")
	assert.False(t, ok)

	_, ok = r.Float("d")
	assert.False(t, ok)

	_, ok = r.Float("missing")
	assert.False(t, ok)
}

func TestTable_MissingFraction(t *testing.T) {
	tbl := New("a", "b")
	tbl.Append(Record{"a": 1.0, "b": nil})
	tbl.Append(Record{"a": 2.0})

	mf := tbl.MissingFraction()
	assert.Equal(t, 0.0, mf["a"])
	assert.Equal(t, 1.0, mf["b"])
}

func TestTable_DistinctStrings(t *testing.T) {
	tbl := New("symbol")
	for _, s := range []string{"AAPL", "MSFT", "AAPL", "GOOGL"} {
		tbl.Append(Record{"symbol": s})
	}
	assert.Equal(t, []string{"AAPL", "MSFT", "GOOGL"}, tbl.DistinctStrings("symbol"))
}

func TestTable_AppendTableMergesColumns(t *testing.T) {
	a := New("date", "close")
	a.Append(Record{"date": time.Now(), "close": 1.0})

	b := New("date", "gdp_growth")
	b.Append(Record{"date": time.Now(), "gdp_growth": 2.5})

	a.AppendTable(b)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, []string{"date", "close", "gdp_growth"}, a.Columns())
}

func TestTable_NilSafety(t *testing.T) {
	var tbl *Table
	assert.Equal(t, 0, tbl.Len())
	assert.True(t, tbl.IsEmpty())
	assert.False(t, tbl.HasColumn("x"))
	assert.Nil(t, tbl.Clone())
}
