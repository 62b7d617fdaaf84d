// Package config loads and validates the marketpipe configuration.
package config

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Source names accepted in configuration and on the command line.
const (
	SourceCSV  = "csv"
	SourceJSON = "json"
	SourceAPI  = "api"
)

// KnownSources lists every extractable source, in pipeline registration order.
var KnownSources = []string{SourceCSV, SourceJSON, SourceAPI}

const (
	// Default input/output locations
	defaultCSVPath   = "data/stock_prices.csv"
	defaultJSONPath  = "data/economic_indicators.json"
	defaultDBPath    = "data/marketpipe.db"
	defaultExportDir = "data/processed"

	// Default API settings
	defaultAPIBaseURL   = "https://www.alphavantage.co/query"
	defaultAPIKey       = "demo"
	defaultAPIRateDelay = 1 * time.Second
	defaultAPITimeout   = 30 * time.Second

	// Default query parameters
	defaultLookback = 365 * 24 * time.Hour

	// Default indicator windows
	defaultShortWindow      = 20
	defaultLongWindow       = 50
	defaultVolatilityWindow = 20

	// Default validation thresholds
	defaultMinPrice   = 0.01
	defaultMaxPrice   = 100000
	defaultMaxMissing = 0.1

	// Default monitoring settings
	defaultMetricsPrefix = "marketpipe"
	defaultJobName       = "marketpipe"

	// Default server settings
	defaultListenAddr  = ":8080"
	defaultHistoryDir  = "data/runs"
	defaultHistorySize = 100

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"
)

// Config represents the complete application configuration.
type Config struct {
	Sources    SourcesConfig    `yaml:"sources"`
	Query      QueryConfig      `yaml:"query"`
	Transform  TransformConfig  `yaml:"transform"`
	Validation ValidationConfig `yaml:"validation"`
	Database   DatabaseConfig   `yaml:"database"`
	Export     ExportConfig     `yaml:"export"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourcesConfig holds per-source extraction settings.
type SourcesConfig struct {
	// Enabled selects which sources a run extracts by default.
	// Valid entries: csv, json, api. Empty means all.
	Enabled []string `yaml:"enabled"`

	CSV  CSVSourceConfig  `yaml:"csv"`
	JSON JSONSourceConfig `yaml:"json"`
	API  APISourceConfig  `yaml:"api"`
}

// CSVSourceConfig locates the stock price CSV input.
type CSVSourceConfig struct {
	Path string `yaml:"path"`

	// DisableSample turns off the deterministic sample file generated
	// when the input is missing, so a fresh checkout runs out of the box
	// but production deployments can insist on real data.
	DisableSample bool `yaml:"disable_sample"`
}

// JSONSourceConfig locates the economic indicators JSON input.
type JSONSourceConfig struct {
	Path          string `yaml:"path"`
	DisableSample bool   `yaml:"disable_sample"`
}

// APISourceConfig holds remote quote API settings.
type APISourceConfig struct {
	BaseURL string `yaml:"base_url"`

	// Key is the API key. The literal value "demo" switches the extractor
	// to generated mock data instead of live requests.
	Key string `yaml:"key"`

	// RateDelay is the pause between per-symbol requests to stay under the
	// provider's rate limit.
	RateDelay time.Duration `yaml:"rate_delay"`

	Timeout time.Duration `yaml:"timeout"`
}

// QueryConfig holds default symbol and date-range selection for a run.
type QueryConfig struct {
	Symbols []string `yaml:"symbols"`

	// Lookback determines the default start date (now - lookback) when no
	// explicit start date is requested.
	Lookback time.Duration `yaml:"lookback"`
}

// TransformConfig holds indicator computation windows.
type TransformConfig struct {
	ShortWindow      int `yaml:"short_window"`
	LongWindow       int `yaml:"long_window"`
	VolatilityWindow int `yaml:"volatility_window"`
}

// ValidationConfig holds data quality thresholds.
type ValidationConfig struct {
	MinPrice float64 `yaml:"min_price"`
	MaxPrice float64 `yaml:"max_price"`

	// MaxMissing is the tolerated fraction of missing values per column
	// before a warning is raised.
	MaxMissing float64 `yaml:"max_missing"`
}

// DatabaseConfig holds SQLite settings for the database loader.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig holds CSV export settings.
type ExportConfig struct {
	Dir string `yaml:"dir"`
}

// MonitoringConfig holds metrics settings.
type MonitoringConfig struct {
	// RemoteWriteURL is the Prometheus remote-write endpoint metrics are
	// pushed to in CLI mode. Empty disables pushing.
	RemoteWriteURL string `yaml:"remote_write_url"`
	MetricsPrefix  string `yaml:"metrics_prefix"`
	JobName        string `yaml:"jobname"`
}

// ServerConfig holds settings for the long-running server mode.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// Cron is an optional schedule for automatic pipeline runs
	// (standard 5-field cron format). Empty disables scheduling.
	Cron string `yaml:"cron"`

	// HistoryDir is where completed run summaries are persisted.
	// Empty keeps history in memory only.
	HistoryDir  string `yaml:"history_dir"`
	HistorySize int    `yaml:"history_size"`

	// TLSCert and TLSKey enable HTTPS when both are set. The
	// certificate is reloaded from disk when the files change.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// LoggingConfig defines logging behavior settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// Validate performs basic validation on the configuration.
func (c *Config) Validate() error {
	for _, s := range c.Sources.Enabled {
		if !slices.Contains(KnownSources, s) {
			return fmt.Errorf("unknown source %q (valid: csv, json, api)", s)
		}
	}
	if c.Sources.CSV.Path == "" {
		return fmt.Errorf("csv source path is required")
	}
	if c.Sources.JSON.Path == "" {
		return fmt.Errorf("json source path is required")
	}
	if c.Sources.API.BaseURL == "" {
		return fmt.Errorf("api base URL is required")
	}
	if c.Transform.ShortWindow <= 0 || c.Transform.LongWindow <= 0 {
		return fmt.Errorf("indicator windows must be positive")
	}
	if c.Transform.ShortWindow >= c.Transform.LongWindow {
		return fmt.Errorf("short window (%d) must be smaller than long window (%d)",
			c.Transform.ShortWindow, c.Transform.LongWindow)
	}
	if c.Validation.MinPrice <= 0 {
		return fmt.Errorf("minimum price must be positive")
	}
	if c.Validation.MaxPrice <= c.Validation.MinPrice {
		return fmt.Errorf("maximum price must exceed minimum price")
	}
	if c.Validation.MaxMissing < 0 || c.Validation.MaxMissing > 1 {
		return fmt.Errorf("max missing fraction must be in [0, 1]")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Export.Dir == "" {
		return fmt.Errorf("export directory is required")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields.
func (c *Config) SetDefaults() {
	if len(c.Sources.Enabled) == 0 {
		c.Sources.Enabled = slices.Clone(KnownSources)
	}
	if c.Sources.CSV.Path == "" {
		c.Sources.CSV.Path = defaultCSVPath
	}
	if c.Sources.JSON.Path == "" {
		c.Sources.JSON.Path = defaultJSONPath
	}
	if c.Sources.API.BaseURL == "" {
		c.Sources.API.BaseURL = defaultAPIBaseURL
	}
	if c.Sources.API.Key == "" {
		c.Sources.API.Key = defaultAPIKey
	}
	if c.Sources.API.RateDelay == 0 {
		c.Sources.API.RateDelay = defaultAPIRateDelay
	}
	if c.Sources.API.Timeout == 0 {
		c.Sources.API.Timeout = defaultAPITimeout
	}
	if len(c.Query.Symbols) == 0 {
		c.Query.Symbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "META"}
	}
	if c.Query.Lookback == 0 {
		c.Query.Lookback = defaultLookback
	}
	if c.Transform.ShortWindow == 0 {
		c.Transform.ShortWindow = defaultShortWindow
	}
	if c.Transform.LongWindow == 0 {
		c.Transform.LongWindow = defaultLongWindow
	}
	if c.Transform.VolatilityWindow == 0 {
		c.Transform.VolatilityWindow = defaultVolatilityWindow
	}
	if c.Validation.MinPrice == 0 {
		c.Validation.MinPrice = defaultMinPrice
	}
	if c.Validation.MaxPrice == 0 {
		c.Validation.MaxPrice = defaultMaxPrice
	}
	if c.Validation.MaxMissing == 0 {
		c.Validation.MaxMissing = defaultMaxMissing
	}
	if c.Database.Path == "" {
		c.Database.Path = defaultDBPath
	}
	if c.Export.Dir == "" {
		c.Export.Dir = defaultExportDir
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListenAddr
	}
	if c.Server.HistoryDir == "" {
		c.Server.HistoryDir = defaultHistoryDir
	}
	if c.Server.HistorySize == 0 {
		c.Server.HistorySize = defaultHistorySize
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// LoadConfig reads the YAML config file at the given path and returns a
// Config struct with defaults applied and validation performed.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// tests and for running without a config file.
func Default() Config {
	var cfg Config
	cfg.SetDefaults()
	return cfg
}

// Redacted returns a copy of the configuration safe to expose over the API:
// the API key is masked. The public demo key is left visible.
func (c Config) Redacted() Config {
	out := c
	out.Query.Symbols = slices.Clone(c.Query.Symbols)
	out.Sources.Enabled = slices.Clone(c.Sources.Enabled)
	if out.Sources.API.Key != "" && out.Sources.API.Key != "demo" {
		out.Sources.API.Key = "REDACTED"
	}
	return out
}
