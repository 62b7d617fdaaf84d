package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/dataset"
)

// demoKey switches the API extractor to generated mock data.
const demoKey = "demo"

// APIExtractor fetches daily stock time series from an Alpha Vantage style
// HTTP API. With the demo key it generates mock data instead of issuing
// requests, and a run where every symbol fails also falls back to mock data
// so the rest of the pipeline stays exercisable.
type APIExtractor struct {
	baseURL   string
	key       string
	rateDelay time.Duration
	client    *http.Client
	rng       *rand.Rand
	logger    *slog.Logger
}

// APIOption configures an APIExtractor.
type APIOption func(*APIExtractor)

// WithAPIClient sets the HTTP client used for requests.
func WithAPIClient(client *http.Client) APIOption {
	return func(e *APIExtractor) { e.client = client }
}

// WithAPIRand sets the random source used for mock-data generation.
func WithAPIRand(rng *rand.Rand) APIOption {
	return func(e *APIExtractor) { e.rng = rng }
}

// NewAPIExtractor creates an API extractor from configuration.
func NewAPIExtractor(cfg config.Config, logger *slog.Logger, opts ...APIOption) *APIExtractor {
	e := &APIExtractor{
		baseURL:   cfg.Sources.API.BaseURL,
		key:       cfg.Sources.API.Key,
		rateDelay: cfg.Sources.API.RateDelay,
		client:    &http.Client{Timeout: cfg.Sources.API.Timeout},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:    logger.With("component", "extract", "source", "api"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// timeSeriesResponse is the subset of the provider response the extractor
// reads. Keys inside the per-day objects are prefixed ("1. open" etc).
type timeSeriesResponse struct {
	TimeSeries map[string]map[string]string `json:"Time Series (Daily)"`
}

// Extract fetches daily OHLCV rows for the given symbols within
// [start, end]. Per-symbol failures are logged and skipped; the extractor
// only fails when it cannot produce any data at all.
func (e *APIExtractor) Extract(ctx context.Context, symbols []string, start, end time.Time) (*dataset.Table, error) {
	e.logger.Info("extracting data from API",
		"symbols", symbols,
		"start", start.Format(dateLayout),
		"end", end.Format(dateLayout))

	if e.key == demoKey {
		e.logger.Warn("using demo API key, creating mock data instead of real API calls")
		return e.mockTable(symbols, start, end), nil
	}

	table := dataset.New("Date", "Symbol", "Open", "High", "Low", "Close", "Volume")
	for i, symbol := range symbols {
		if i > 0 {
			// Stay under the provider's per-minute rate limit.
			if err := sleepCtx(ctx, e.rateDelay); err != nil {
				return nil, &ExtractionError{Source: config.SourceAPI, Err: err}
			}
		}

		rows, err := e.fetchSymbol(ctx, symbol, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &ExtractionError{Source: config.SourceAPI, Err: ctx.Err()}
			}
			e.logger.Error("failed to fetch symbol", "symbol", symbol, "error", err)
			continue
		}
		table.AppendTable(rows)
		e.logger.Info("retrieved records for symbol", "symbol", symbol, "rows", rows.Len())
	}

	if table.IsEmpty() {
		e.logger.Warn("no data retrieved from API, using mock data")
		return e.mockTable(symbols, start, end), nil
	}

	e.logger.Info("extracted rows from API", "rows", table.Len())
	return table, nil
}

// fetchSymbol requests the full daily series for one symbol and filters it
// to the requested date range.
func (e *APIExtractor) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) (*dataset.Table, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("apikey", e.key)
	params.Set("outputsize", "full")
	params.Set("datatype", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API request failed: %d - %s", resp.StatusCode, string(body))
	}

	var parsed timeSeriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode API response: %w", err)
	}
	if len(parsed.TimeSeries) == 0 {
		return nil, fmt.Errorf("no time series data found for %s", symbol)
	}

	// Sort the per-day keys so row order does not depend on map iteration.
	days := make([]string, 0, len(parsed.TimeSeries))
	for day := range parsed.TimeSeries {
		days = append(days, day)
	}
	sort.Strings(days)

	table := dataset.New("Date", "Symbol", "Open", "High", "Low", "Close", "Volume")
	for _, day := range days {
		date, err := time.Parse(dateLayout, day)
		if err != nil {
			continue
		}
		if date.Before(start) || date.After(end) {
			continue
		}

		values := parsed.TimeSeries[day]
		row := dataset.Record{
			"Date":   date,
			"Symbol": symbol,
		}
		for key, column := range map[string]string{
			"1. open":   "Open",
			"2. high":   "High",
			"3. low":    "Low",
			"4. close":  "Close",
			"5. volume": "Volume",
		} {
			if raw, ok := values[key]; ok {
				row[column] = parseCSVValue(raw)
			}
		}
		table.Append(row)
	}
	return table, nil
}

// mockTable generates demo data tagged with a Source column.
func (e *APIExtractor) mockTable(symbols []string, start, end time.Time) *dataset.Table {
	table := dataset.New("Date", "Symbol", "Open", "High", "Low", "Close", "Volume", "Source")
	for _, row := range mockPrices(e.rng, symbols, start, end).Rows() {
		row["Source"] = "API"
		table.Append(row)
	}
	e.logger.Info("created mock API data", "rows", table.Len())
	return table
}

// sleepCtx waits for d or until ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
