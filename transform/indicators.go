package transform

import (
	"fmt"
	"math"

	"github.com/marketpipe/marketpipe/dataset"
)

// Fixed indicator parameters, independent of the configured MA windows.
const (
	rsiWindow       = 14
	bollingerWindow = 20
	bollingerWidth  = 2.0
	macdFastSpan    = 12
	macdSlowSpan    = 26
	macdSignalSpan  = 9

	tradingDaysPerYear = 252
	yoyPeriods         = 12 // monthly observations
)

// economicColumns are the indicator columns YoY changes are derived for.
var economicColumns = []string{
	"GDP_Growth", "Unemployment_Rate", "Inflation_Rate",
	"Interest_Rate", "Consumer_Confidence",
}

// Calculate derives metrics from merged, normalized data. Price rows
// (Symbol + Close present) gain per-symbol technical indicators; economic
// indicator rows gain year-over-year change columns; anything else passes
// through unchanged. A merged table may hold both families at once: price
// rows carry a Symbol while pivoted indicator rows do not, and every row
// survives into the result.
func (t *Transformer) Calculate(data *dataset.Table) (*dataset.Table, error) {
	if data.IsEmpty() {
		t.logger.Warn("no data to calculate metrics")
		return dataset.New(), nil
	}
	t.logger.Info("calculating financial metrics")

	prices := data.Filter(func(r dataset.Record) bool {
		return r.String("Symbol") != ""
	})
	rest := data.Filter(func(r dataset.Record) bool {
		return r.String("Symbol") == ""
	})

	result := dataset.New()
	if !prices.IsEmpty() {
		if prices.HasColumn("Close") {
			result.AppendTable(t.priceMetrics(prices))
		} else {
			result.AppendTable(prices.Clone())
		}
	}
	if !rest.IsEmpty() {
		if hasAnyColumn(rest, economicColumns...) {
			result.AppendTable(t.economicMetrics(rest))
		} else {
			t.logger.Warn("unknown data format, metrics calculation skipped")
			result.AppendTable(rest.Clone())
		}
	}

	t.logger.Info("calculated metrics", "rows", result.Len())
	return result, nil
}

// priceMetrics computes per-symbol technical indicators: daily returns,
// moving averages with crossover signal, annualized volatility, RSI,
// Bollinger bands and MACD.
func (t *Transformer) priceMetrics(data *dataset.Table) *dataset.Table {
	maShortCol := fmt.Sprintf("MA_%d", t.shortWindow)
	maLongCol := fmt.Sprintf("MA_%d", t.longWindow)

	derived := []string{
		"Daily_Return", maShortCol, maLongCol, "MA_Signal", "Volatility",
		"RSI", "BB_Middle", "BB_Std", "BB_Upper", "BB_Lower",
		"EMA_12", "EMA_26", "MACD", "MACD_Signal", "MACD_Histogram",
	}
	result := dataset.New(append(data.Columns(), derived...)...)

	for _, symbol := range data.DistinctStrings("Symbol") {
		sub := data.Filter(func(r dataset.Record) bool {
			return r.String("Symbol") == symbol
		}).Clone()
		sub.SortBy("Date")

		rows := sub.Rows()
		closes := columnSeries(rows, "Close")

		returns := closes.pctChange(1)
		maShort := closes.rollingMean(t.shortWindow)
		maLong := closes.rollingMean(t.longWindow)
		volatility := returns.rollingStd(t.volatilityWindow).scale(math.Sqrt(tradingDaysPerYear))
		rsi := relativeStrength(closes)

		bbMiddle := closes.rollingMean(bollingerWindow)
		bbStd := closes.rollingStd(bollingerWindow)
		bbUpper := bbMiddle.add(bbStd.scale(bollingerWidth))
		bbLower := bbMiddle.sub(bbStd.scale(bollingerWidth))

		emaFast := closes.ema(macdFastSpan)
		emaSlow := closes.ema(macdSlowSpan)
		macd := emaFast.sub(emaSlow)
		macdSignal := macd.ema(macdSignalSpan)
		macdHist := macd.sub(macdSignal)

		for i, row := range rows {
			setValue(row, "Daily_Return", returns, i)
			setValue(row, maShortCol, maShort, i)
			setValue(row, maLongCol, maLong, i)
			row["MA_Signal"] = crossoverSignal(maShort, maLong, i)
			setValue(row, "Volatility", volatility, i)
			setValue(row, "RSI", rsi, i)
			setValue(row, "BB_Middle", bbMiddle, i)
			setValue(row, "BB_Std", bbStd, i)
			setValue(row, "BB_Upper", bbUpper, i)
			setValue(row, "BB_Lower", bbLower, i)
			setValue(row, "EMA_12", emaFast, i)
			setValue(row, "EMA_26", emaSlow, i)
			setValue(row, "MACD", macd, i)
			setValue(row, "MACD_Signal", macdSignal, i)
			setValue(row, "MACD_Histogram", macdHist, i)
			result.Append(row)
		}
	}
	return result
}

// economicMetrics adds year-over-year change columns to pivoted indicator
// data, assuming monthly observations.
func (t *Transformer) economicMetrics(data *dataset.Table) *dataset.Table {
	df := data.Clone()
	df.SortBy("Date")

	var present []string
	for _, col := range economicColumns {
		if df.HasColumn(col) {
			present = append(present, col)
		}
	}

	var yoyCols []string
	for _, col := range present {
		yoyCols = append(yoyCols, col+"_YoY_Change")
	}
	result := dataset.New(append(df.Columns(), yoyCols...)...)

	rows := df.Rows()
	for _, col := range present {
		yoy := columnSeries(rows, col).pctChange(yoyPeriods)
		for i, row := range rows {
			setValue(row, col+"_YoY_Change", yoy, i)
		}
	}
	for _, row := range rows {
		result.Append(row)
	}
	return result
}

// relativeStrength computes RSI over the fixed 14-day window.
func relativeStrength(closes series) series {
	delta := closes.diff()

	gain := delta.clone()
	loss := delta.clone()
	for i := range delta.vals {
		if !delta.ok[i] {
			continue
		}
		if delta.vals[i] > 0 {
			loss.vals[i] = 0
		} else {
			gain.vals[i] = 0
			loss.vals[i] = -delta.vals[i]
		}
	}

	avgGain := gain.rollingMean(rsiWindow)
	avgLoss := loss.rollingMean(rsiWindow)

	out := newSeries(len(closes.vals))
	for i := range out.vals {
		if !avgGain.ok[i] || !avgLoss.ok[i] {
			continue
		}
		switch {
		case avgLoss.vals[i] == 0 && avgGain.vals[i] == 0:
			// Flat prices over the window: undefined.
		case avgLoss.vals[i] == 0:
			out.set(i, 100)
		default:
			rs := avgGain.vals[i] / avgLoss.vals[i]
			out.set(i, 100-100/(1+rs))
		}
	}
	return out
}

// crossoverSignal returns 1 when the short MA is above the long MA, -1 when
// below, 0 when equal or either is missing.
func crossoverSignal(short, long series, i int) int {
	if !short.ok[i] || !long.ok[i] {
		return 0
	}
	switch {
	case short.vals[i] > long.vals[i]:
		return 1
	case short.vals[i] < long.vals[i]:
		return -1
	default:
		return 0
	}
}

func hasAnyColumn(t *dataset.Table, columns ...string) bool {
	for _, c := range columns {
		if t.HasColumn(c) {
			return true
		}
	}
	return false
}

func setValue(row dataset.Record, column string, s series, i int) {
	if s.ok[i] {
		row[column] = s.vals[i]
	} else {
		row[column] = nil
	}
}

// series is a float column with per-position presence flags, the building
// block for rolling-window math over rows with missing values.
type series struct {
	vals []float64
	ok   []bool
}

func newSeries(n int) series {
	return series{vals: make([]float64, n), ok: make([]bool, n)}
}

func (s series) set(i int, v float64) {
	s.vals[i] = v
	s.ok[i] = true
}

func (s series) clone() series {
	out := newSeries(len(s.vals))
	copy(out.vals, s.vals)
	copy(out.ok, s.ok)
	return out
}

// columnSeries extracts a numeric column from rows; non-numeric values are
// marked missing.
func columnSeries(rows []dataset.Record, column string) series {
	s := newSeries(len(rows))
	for i, row := range rows {
		if v, ok := row.Float(column); ok {
			s.set(i, v)
		}
	}
	return s
}

// pctChange returns the relative change against the value periods back.
func (s series) pctChange(periods int) series {
	out := newSeries(len(s.vals))
	for i := periods; i < len(s.vals); i++ {
		if s.ok[i] && s.ok[i-periods] && s.vals[i-periods] != 0 {
			out.set(i, (s.vals[i]-s.vals[i-periods])/s.vals[i-periods])
		}
	}
	return out
}

// diff returns the difference against the previous value.
func (s series) diff() series {
	out := newSeries(len(s.vals))
	for i := 1; i < len(s.vals); i++ {
		if s.ok[i] && s.ok[i-1] {
			out.set(i, s.vals[i]-s.vals[i-1])
		}
	}
	return out
}

// rollingMean returns the mean over a trailing window. A position is missing
// until the window is full of present values.
func (s series) rollingMean(window int) series {
	out := newSeries(len(s.vals))
	if window <= 0 {
		return out
	}
	for i := window - 1; i < len(s.vals); i++ {
		sum, complete := 0.0, true
		for j := i - window + 1; j <= i; j++ {
			if !s.ok[j] {
				complete = false
				break
			}
			sum += s.vals[j]
		}
		if complete {
			out.set(i, sum/float64(window))
		}
	}
	return out
}

// rollingStd returns the sample standard deviation over a trailing window.
func (s series) rollingStd(window int) series {
	out := newSeries(len(s.vals))
	if window <= 1 {
		return out
	}
	means := s.rollingMean(window)
	for i := window - 1; i < len(s.vals); i++ {
		if !means.ok[i] {
			continue
		}
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := s.vals[j] - means.vals[i]
			sum += d * d
		}
		out.set(i, math.Sqrt(sum/float64(window-1)))
	}
	return out
}

// ema returns the exponential moving average with alpha = 2/(span+1),
// recursively weighted from the first present value. Missing inputs produce
// missing outputs without resetting the average.
func (s series) ema(span int) series {
	out := newSeries(len(s.vals))
	alpha := 2.0 / (float64(span) + 1)
	started := false
	prev := 0.0
	for i := range s.vals {
		if !s.ok[i] {
			continue
		}
		if !started {
			prev = s.vals[i]
			started = true
		} else {
			prev = alpha*s.vals[i] + (1-alpha)*prev
		}
		out.set(i, prev)
	}
	return out
}

func (s series) scale(f float64) series {
	out := s.clone()
	for i := range out.vals {
		if out.ok[i] {
			out.vals[i] *= f
		}
	}
	return out
}

func (s series) add(other series) series {
	out := newSeries(len(s.vals))
	for i := range s.vals {
		if s.ok[i] && other.ok[i] {
			out.set(i, s.vals[i]+other.vals[i])
		}
	}
	return out
}

func (s series) sub(other series) series {
	out := newSeries(len(s.vals))
	for i := range s.vals {
		if s.ok[i] && other.ok[i] {
			out.set(i, s.vals[i]-other.vals[i])
		}
	}
	return out
}
