package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpipe/marketpipe/dataset"
)

func priceTable(symbol string, closes ...float64) *dataset.Table {
	table := dataset.New("Date", "Symbol", "Close")
	for i, c := range closes {
		table.Append(dataset.Record{
			"Date":   day(i + 1),
			"Symbol": symbol,
			"Close":  c,
		})
	}
	return table
}

func TestCalculate_PriceMetrics(t *testing.T) {
	tr := testTransformer() // MA windows 2/3, volatility window 2

	out, err := tr.Calculate(priceTable("AAPL", 10, 11, 12, 11, 13))
	require.NoError(t, err)
	require.Equal(t, 5, out.Len())

	// Daily returns.
	_, ok := out.Row(0).Float("Daily_Return")
	assert.False(t, ok, "first return is undefined")
	ret, ok := out.Row(1).Float("Daily_Return")
	require.True(t, ok)
	assert.InDelta(t, 0.1, ret, 1e-9)

	// Moving averages.
	_, ok = out.Row(0).Float("MA_2")
	assert.False(t, ok)
	ma2, ok := out.Row(1).Float("MA_2")
	require.True(t, ok)
	assert.InDelta(t, 10.5, ma2, 1e-9)

	_, ok = out.Row(1).Float("MA_3")
	assert.False(t, ok)
	ma3, ok := out.Row(2).Float("MA_3")
	require.True(t, ok)
	assert.InDelta(t, 11.0, ma3, 1e-9)

	// Crossover signal: 0 until both MAs exist, then short above long.
	sig, _ := out.Row(1).Float("MA_Signal")
	assert.Equal(t, 0.0, sig)
	sig, _ = out.Row(2).Float("MA_Signal")
	assert.Equal(t, 1.0, sig)

	// Annualized volatility: sample std of two returns times sqrt(252).
	vol, ok := out.Row(2).Float("Volatility")
	require.True(t, ok)
	wantStd := math.Abs(0.1-1.0/11) / math.Sqrt2 * math.Sqrt(252)
	assert.InDelta(t, wantStd, vol, 1e-9)

	// RSI and Bollinger need longer windows than five rows.
	_, ok = out.Row(4).Float("RSI")
	assert.False(t, ok)
	_, ok = out.Row(4).Float("BB_Middle")
	assert.False(t, ok)

	// EMA starts at the first close.
	ema, ok := out.Row(0).Float("EMA_12")
	require.True(t, ok)
	assert.InDelta(t, 10.0, ema, 1e-9)
	ema, ok = out.Row(1).Float("EMA_12")
	require.True(t, ok)
	alpha := 2.0 / 13
	assert.InDelta(t, alpha*11+(1-alpha)*10, ema, 1e-9)

	// MACD of a single starting point is zero, as is its histogram.
	macd, ok := out.Row(0).Float("MACD")
	require.True(t, ok)
	assert.InDelta(t, 0.0, macd, 1e-9)
	hist, ok := out.Row(0).Float("MACD_Histogram")
	require.True(t, ok)
	assert.InDelta(t, 0.0, hist, 1e-9)
}

func TestCalculate_PerSymbolIsolation(t *testing.T) {
	tr := testTransformer()

	table := dataset.New("Date", "Symbol", "Close")
	table.AppendTable(priceTable("AAPL", 10, 11, 12))
	table.AppendTable(priceTable("MSFT", 100, 90, 95))

	out, err := tr.Calculate(table)
	require.NoError(t, err)
	require.Equal(t, 6, out.Len())

	// Each symbol's first return is undefined; returns never cross symbols.
	bySymbol := map[string][]dataset.Record{}
	for _, row := range out.Rows() {
		s := row.String("Symbol")
		bySymbol[s] = append(bySymbol[s], row)
	}

	_, ok := bySymbol["MSFT"][0].Float("Daily_Return")
	assert.False(t, ok, "MSFT first return must not chain off AAPL's last close")

	ret, ok := bySymbol["MSFT"][1].Float("Daily_Return")
	require.True(t, ok)
	assert.InDelta(t, -0.1, ret, 1e-9)
}

func TestCalculate_RSIBounds(t *testing.T) {
	tr := testTransformer()

	// 20 strictly rising closes: RSI must saturate at 100 once defined.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	out, err := tr.Calculate(priceTable("AAPL", closes...))
	require.NoError(t, err)

	rsi, ok := out.Row(19).Float("RSI")
	require.True(t, ok)
	assert.InDelta(t, 100.0, rsi, 1e-9)

	// Bollinger bands defined from row 19 (window 20).
	middle, ok := out.Row(19).Float("BB_Middle")
	require.True(t, ok)
	upper, _ := out.Row(19).Float("BB_Upper")
	lower, _ := out.Row(19).Float("BB_Lower")
	assert.Greater(t, upper, middle)
	assert.Less(t, lower, middle)
	assert.InDelta(t, middle, (upper+lower)/2, 1e-9)
}

func TestCalculate_EconomicMetrics(t *testing.T) {
	tr := testTransformer()

	table := dataset.New("Date", "Inflation_Rate", "Source")
	for i := 0; i < 13; i++ {
		table.Append(dataset.Record{
			"Date":           time.Date(2023, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC),
			"Inflation_Rate": float64(i + 1),
			"Source":         "JSON",
		})
	}

	out, err := tr.Calculate(table)
	require.NoError(t, err)
	require.Equal(t, 13, out.Len())
	assert.True(t, out.HasColumn("Inflation_Rate_YoY_Change"))

	_, ok := out.Row(11).Float("Inflation_Rate_YoY_Change")
	assert.False(t, ok, "needs twelve prior observations")

	yoy, ok := out.Row(12).Float("Inflation_Rate_YoY_Change")
	require.True(t, ok)
	assert.InDelta(t, 12.0, yoy, 1e-9) // (13-1)/1
}

func TestCalculate_MixedFamilies(t *testing.T) {
	tr := testTransformer()

	// A merged all-sources table: price rows carry a Symbol, pivoted
	// indicator rows do not.
	merged := priceTable("AAPL", 10, 11, 12)
	for i := 0; i < 2; i++ {
		merged.Append(dataset.Record{
			"Date":       time.Date(2024, time.Month(1+i), 1, 0, 0, 0, 0, time.UTC),
			"GDP_Growth": 2.0 + float64(i),
			"Source":     "JSON",
		})
	}

	out, err := tr.Calculate(merged)
	require.NoError(t, err)
	require.Equal(t, 5, out.Len(), "every merged row survives")

	// Price rows keep their technical indicators.
	assert.True(t, out.HasColumn("RSI"))
	ret, ok := out.Row(1).Float("Daily_Return")
	require.True(t, ok)
	assert.InDelta(t, 0.1, ret, 1e-9)

	// Indicator rows come through with their YoY column.
	assert.True(t, out.HasColumn("GDP_Growth_YoY_Change"))
	gdp, ok := out.Row(3).Float("GDP_Growth")
	require.True(t, ok)
	assert.InDelta(t, 2.0, gdp, 1e-9)
	assert.Equal(t, "", out.Row(3).String("Symbol"))
}

func TestCalculate_UnknownShapePassesThrough(t *testing.T) {
	tr := testTransformer()

	table := dataset.New("foo", "bar")
	table.Append(dataset.Record{"foo": 1, "bar": "x"})

	out, err := tr.Calculate(table)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, []string{"foo", "bar"}, out.Columns())
}

func TestCalculate_Empty(t *testing.T) {
	tr := testTransformer()

	out, err := tr.Calculate(dataset.New())
	require.NoError(t, err)
	assert.True(t, out.IsEmpty())
}

func TestSeriesRollingMean_MissingValues(t *testing.T) {
	s := newSeries(4)
	s.set(0, 1)
	// index 1 missing
	s.set(2, 3)
	s.set(3, 5)

	m := s.rollingMean(2)
	assert.False(t, m.ok[0])
	assert.False(t, m.ok[1], "window containing a missing value yields missing")
	assert.False(t, m.ok[2])
	require.True(t, m.ok[3])
	assert.InDelta(t, 4.0, m.vals[3], 1e-9)
}
