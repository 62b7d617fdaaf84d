package extract

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/marketpipe/marketpipe/dataset"
)

// Sample-data generation for missing inputs. Mirrors the shape of the real
// inputs: daily OHLCV rows per symbol for prices, monthly (quarterly for GDP)
// observations for economic indicators.

const dateLayout = "2006-01-02"

// sampleIndicators describes the generated economic indicator series.
var sampleIndicators = []struct {
	name       string
	unit       string
	frequency  string
	base       float64
	volatility float64
}{
	{"GDP_Growth", "percent", "quarterly", 2.5, 0.3},
	{"Unemployment_Rate", "percent", "monthly", 4.0, 0.2},
	{"Inflation_Rate", "percent", "monthly", 2.0, 0.1},
	{"Interest_Rate", "percent", "monthly", 1.5, 0.05},
	{"Consumer_Confidence", "index", "monthly", 100, 3},
}

// mockPrices generates a random-walk OHLCV table for the given symbols over
// business days in [start, end].
func mockPrices(rng *rand.Rand, symbols []string, start, end time.Time) *dataset.Table {
	table := dataset.New("Date", "Symbol", "Open", "High", "Low", "Close", "Volume")
	for _, symbol := range symbols {
		price := 50 + rng.Float64()*450
		for _, day := range businessDays(start, end) {
			// Daily move centered slightly positive, ~1.5% stddev.
			price *= 1 + (0.0005 + rng.NormFloat64()*0.015)

			volume := 1000000 + rng.NormFloat64()*500000
			if volume < 100000 {
				volume = 100000
			}

			table.Append(dataset.Record{
				"Date":   day,
				"Symbol": symbol,
				"Open":   round2(price * (1 - rng.Float64()*0.005)),
				"High":   round2(price * (1 + rng.Float64()*0.01)),
				"Low":    round2(price * (1 - rng.Float64()*0.01)),
				"Close":  round2(price),
				"Volume": float64(int(volume)),
			})
		}
	}
	return table
}

// writeSamplePrices generates price data and writes it as a CSV file.
func writeSamplePrices(path string, rng *rand.Rand, symbols []string, start, end time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create sample file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Date", "Symbol", "Open", "High", "Low", "Close", "Volume"}); err != nil {
		return err
	}

	table := mockPrices(rng, symbols, start, end)
	for _, row := range table.Rows() {
		date, _ := row.Time("Date")
		record := []string{
			date.Format(dateLayout),
			row.String("Symbol"),
			formatFloat(row, "Open"),
			formatFloat(row, "High"),
			formatFloat(row, "Low"),
			formatFloat(row, "Close"),
			strconv.Itoa(int(mustFloat(row, "Volume"))),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// indicatorDocument is the on-disk JSON shape of the economic indicators
// input file.
type indicatorDocument struct {
	Metadata struct {
		Source      string `json:"source"`
		Description string `json:"description"`
		LastUpdated string `json:"last_updated"`
	} `json:"metadata"`
	Indicators []indicatorObservation `json:"indicators"`
}

type indicatorObservation struct {
	Date      string  `json:"date"`
	Indicator string  `json:"indicator"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Frequency string  `json:"frequency"`
}

// writeSampleIndicators generates economic indicator data and writes it as a
// JSON file.
func writeSampleIndicators(path string, rng *rand.Rand, start, end time.Time) error {
	var doc indicatorDocument
	doc.Metadata.Source = "Sample Economic Indicators"
	doc.Metadata.Description = "Sample economic indicators for financial market analysis"
	doc.Metadata.LastUpdated = time.Now().Format(dateLayout)

	for _, ind := range sampleIndicators {
		dates := monthStarts(start, end)
		if ind.frequency == "quarterly" {
			dates = quarterStarts(start, end)
		}

		value := ind.base
		for _, date := range dates {
			value += rng.NormFloat64() * ind.volatility
			// Rates cannot go negative.
			if value < 0 && ind.unit == "percent" && ind.name != "GDP_Growth" {
				value = 0.1
			}
			doc.Indicators = append(doc.Indicators, indicatorObservation{
				Date:      date.Format(dateLayout),
				Indicator: ind.name,
				Value:     round2(value),
				Unit:      ind.unit,
				Frequency: ind.frequency,
			})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// businessDays returns every Monday-Friday date in [start, end].
func businessDays(start, end time.Time) []time.Time {
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

// monthStarts returns the first day of every month in [start, end].
func monthStarts(start, end time.Time) []time.Time {
	var dates []time.Time
	d := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	if d.Before(start) {
		d = d.AddDate(0, 1, 0)
	}
	for !d.After(end) {
		dates = append(dates, d)
		d = d.AddDate(0, 1, 0)
	}
	return dates
}

// quarterStarts returns the first day of every quarter in [start, end].
func quarterStarts(start, end time.Time) []time.Time {
	var dates []time.Time
	for _, d := range monthStarts(start, end) {
		switch d.Month() {
		case time.January, time.April, time.July, time.October:
			dates = append(dates, d)
		}
	}
	return dates
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatFloat(row dataset.Record, column string) string {
	return strconv.FormatFloat(mustFloat(row, column), 'f', 2, 64)
}

func mustFloat(row dataset.Record, column string) float64 {
	v, _ := row.Float(column)
	return v
}
