// Package server provides the HTTP server for the marketpipe ETL service.
//
// The server exposes a REST API to trigger pipeline runs, monitor their
// progress, and inspect the history of completed runs.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Consolidated status endpoint (run status, next scheduled run)
//   - POST /api/run - Triggers a pipeline run
//   - GET /api/run/status - Returns the current or last run status
//   - GET /api/history - Returns the history of completed runs
//   - GET /api/history/logs?id=<run-id> - Returns the captured task logs for a run
//   - GET /api/version - Returns build and instance metadata
//   - GET /config - Returns the current configuration as YAML (secrets redacted)
//   - GET /metrics - Prometheus metrics in exposition format
//
// Pipeline runs are asynchronous: POST /api/run returns 202 Accepted and the
// run proceeds in the background. Only one run may be in flight at a time; a
// second trigger returns 409 Conflict. A cron schedule, when configured,
// triggers runs through the same runner and is subject to the same rule.
//
// # Example
//
//	srv, err := server.New(cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.ListenAndServe(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/marketpipe/marketpipe/buildinfo"
	"github.com/marketpipe/marketpipe/config"
	"github.com/marketpipe/marketpipe/metrics"
	"github.com/marketpipe/marketpipe/pipeline"
	"github.com/marketpipe/marketpipe/server/cron"
	"github.com/marketpipe/marketpipe/server/handlers"
	"github.com/marketpipe/marketpipe/server/runner"
	"github.com/marketpipe/marketpipe/server/types"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the HTTP server for the marketpipe service.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	properties types.ServerProperties

	httpServer  *http.Server
	runner      *runner.Runner
	cronManager *cron.CronTriggerManager
	scrape      *metrics.ScrapeRegistry
	certLoader  *CertLoader
}

// New creates a new Server from the given configuration. The config must
// already be validated.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	hostname, _ := os.Hostname()

	s := &Server{
		cfg:    cfg,
		logger: logger,
		properties: types.ServerProperties{
			Build:     buildinfo.Get(),
			StartedAt: time.Now(),
			Hostname:  hostname,
		},
	}

	scrape, err := metrics.NewScrapeRegistry()
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}
	s.scrape = scrape

	pipelineMetrics, err := metrics.NewPipeline(scrape)
	if err != nil {
		return nil, fmt.Errorf("registering pipeline metrics: %w", err)
	}

	runnerOpts := []runner.Option{runner.WithMetrics(pipelineMetrics)}
	if cfg.Server.HistoryDir != "" {
		store, err := runner.NewDiskStore(cfg.Server.HistoryDir, cfg.Server.HistorySize, logger)
		if err != nil {
			return nil, fmt.Errorf("creating run history store: %w", err)
		}
		runnerOpts = append(runnerOpts, runner.WithStateStore(store))
	}
	s.runner = runner.New(cfg, logger, runnerOpts...)

	if cfg.Server.Cron != "" {
		enabled := make(map[string]bool, len(cfg.Sources.Enabled))
		for _, src := range cfg.Sources.Enabled {
			enabled[src] = true
		}
		manager, err := cron.NewCronTriggerManager(cfg.Server.Cron, s, logger, enabled)
		if err != nil {
			return nil, fmt.Errorf("creating cron trigger: %w", err)
		}
		s.cronManager = manager
	}

	if cfg.Server.TLSCert != "" {
		loader, err := NewCertLoader(cfg.Server.TLSCert, cfg.Server.TLSKey, logger)
		if err != nil {
			return nil, fmt.Errorf("loading tls certificate: %w", err)
		}
		s.certLoader = loader
	}

	return s, nil
}

// Config returns the current configuration.
func (s *Server) Config() config.Config {
	return s.cfg
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.RunStatus {
	return s.runner.Status()
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.cronManager == nil {
		return nil
	}
	next := s.cronManager.NextRun()
	return &next
}

// Run triggers a pipeline run for the given sources. It implements
// cron.Runnable so scheduled triggers flow through the same runner as
// API-triggered runs.
func (s *Server) Run(sources []string) error {
	return s.runner.Run(pipeline.Request{Sources: sources})
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled, then performs a graceful shutdown. If a cron trigger is
// configured, it is started automatically.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Listen,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certLoader != nil {
		s.httpServer.TLSConfig = &tls.Config{
			GetCertificate: s.certLoader.GetCertificate,
		}
	}

	if s.cronManager != nil {
		s.logger.Info("starting cron triggers",
			"next_run", s.cronManager.NextRun(),
		)
		s.cronManager.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", s.cfg.Server.Listen,
			"tls", s.certLoader != nil,
		)
		var err error
		if s.certLoader != nil {
			// Cert and key paths come from GetCertificate.
			err = s.httpServer.ListenAndServeTLS("", "")
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("POST /api/run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /api/run/status", handlers.NewRunStatusHandler(s.runner))
	mux.Handle("GET /api/history", handlers.NewHistoryHandler(s.runner))
	mux.Handle("GET /api/history/logs", handlers.NewHistoryLogsHandler(s.runner))
	mux.Handle("GET /api/version", handlers.NewVersionHandler(s.properties))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("GET /metrics", s.scrape.Handler())
}
