// Command marketpipe runs the financial data pipeline once and exits.
//
// It extracts data from the configured sources, transforms and validates
// it, and loads the result into SQLite and CSV exports. The exit code is
// zero only when every load step succeeded.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/marketpipe/marketpipe/buildinfo"
	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/logging"
	"github.com/marketpipe/marketpipe/metrics"
	"github.com/marketpipe/marketpipe/pipeline"
)

const dateLayout = "2006-01-02"

type Args struct {
	ConfigPath string
	Source     string
	Symbols    string
	StartDate  string
	EndDate    string
	Strict     bool
	Version    bool
}

func main() {
	if err := doMain(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func doMain() error {
	args := parseArgs()

	if args.Version {
		props := buildinfo.Get()
		fmt.Printf("marketpipe %s (built %s)\n", props.GitCommit, props.BuildTime)
		return nil
	}

	cfg := config.Default()
	if args.ConfigPath != "" {
		var err error
		cfg, err = config.LoadConfig(args.ConfigPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	req, err := buildRequest(args)
	if err != nil {
		return err
	}

	pipelineMetrics, err := metrics.NewPipeline(metrics.NewRegistry(cfg.Monitoring))
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	logger.Info("marketpipe started",
		"config_path", args.ConfigPath,
		"sources", req.Sources,
	)

	orch := pipeline.New(cfg, logger.Logger, pipeline.WithMetrics(pipelineMetrics))
	summary, err := orch.Run(context.Background(), req)
	if err != nil {
		return err
	}

	printSummary(summary)

	if !summary.Success {
		return fmt.Errorf("pipeline run failed: %s",
			strings.Join(summary.FailureReasons(), "; "))
	}
	return nil
}

// buildRequest converts command line arguments into a pipeline request.
func buildRequest(args Args) (pipeline.Request, error) {
	var req pipeline.Request

	if args.Source != "" && args.Source != "all" {
		for _, s := range strings.Split(args.Source, ",") {
			req.Sources = append(req.Sources, strings.TrimSpace(s))
		}
	}
	if args.Symbols != "" {
		for _, s := range strings.Split(args.Symbols, ",") {
			req.Symbols = append(req.Symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
	}
	if args.StartDate != "" {
		start, err := time.Parse(dateLayout, args.StartDate)
		if err != nil {
			return req, fmt.Errorf("invalid start date %q: expected YYYY-MM-DD", args.StartDate)
		}
		req.Start = start
	}
	if args.EndDate != "" {
		end, err := time.Parse(dateLayout, args.EndDate)
		if err != nil {
			return req, fmt.Errorf("invalid end date %q: expected YYYY-MM-DD", args.EndDate)
		}
		req.End = end
	}
	if !req.Start.IsZero() && !req.End.IsZero() && req.End.Before(req.Start) {
		return req, fmt.Errorf("end date is before start date")
	}
	req.StrictValidation = args.Strict

	return req, nil
}

func printSummary(summary *pipeline.RunSummary) {
	fmt.Printf("run %s finished in %s: %d succeeded, %d failed, %d skipped\n",
		summary.RunID,
		summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
		summary.Succeeded, summary.Failed, summary.Skipped,
	)
	if summary.Database != nil && summary.Database.Rows > 0 {
		fmt.Printf("loaded %d rows into %s (%s)\n",
			summary.Database.Rows, summary.Database.Table, summary.Database.Path)
	}
	if summary.Export != nil && len(summary.Export.Files) > 0 {
		fmt.Printf("exported %d rows to %d file(s) in %s\n",
			summary.Export.Rows, len(summary.Export.Files), summary.Export.Dir)
	}
	for _, warning := range summary.Warnings {
		fmt.Printf("validation warning: %s\n", warning)
	}
	for _, reason := range summary.FailureReasons() {
		fmt.Printf("task failed: %s\n", reason)
	}
}

func parseArgs() Args {
	var args Args

	flag.StringVar(&args.ConfigPath, "config", "", "Path to config file")
	flag.StringVar(&args.ConfigPath, "c", "", "Path to config file (shorthand)")
	flag.StringVar(&args.Source, "source", "all", "Sources to run: csv, json, api, all, or a comma separated list")
	flag.StringVar(&args.Symbols, "symbols", "", "Comma separated stock symbols (default: configured symbols)")
	flag.StringVar(&args.StartDate, "start-date", "", "Query start date (YYYY-MM-DD)")
	flag.StringVar(&args.EndDate, "end-date", "", "Query end date (YYYY-MM-DD)")
	flag.BoolVar(&args.Strict, "validate", false, "Treat validation warnings as errors")
	flag.BoolVar(&args.Version, "version", false, "Print version and exit")
	flag.Parse()

	return args
}
