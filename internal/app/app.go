// Package app wires configuration, storage, a dataset analyzer and the query
// server into one lifecycle.
package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	httpapi "github.com/arkilian/csvreduce/internal/api/http"
	"github.com/arkilian/csvreduce/internal/config"
	"github.com/arkilian/csvreduce/internal/dataset/airquality"
	"github.com/arkilian/csvreduce/internal/dataset/population"
	"github.com/arkilian/csvreduce/internal/export"
	"github.com/arkilian/csvreduce/internal/ingest"
	"github.com/arkilian/csvreduce/internal/observability"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/arkilian/csvreduce/internal/record"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/arkilian/csvreduce/internal/server"
	"github.com/arkilian/csvreduce/internal/storage"
	"github.com/rs/zerolog"
)

// Dataset is an analyzer the app can load and query.
type Dataset interface {
	query.Runner
	LoadFromFiles(ctx context.Context, paths []string) (int, []ingest.Warning, error)
}

// LoadReport summarizes a load.
type LoadReport struct {
	Rows     int
	Warnings []ingest.Warning
	Duration time.Duration
}

// App manages the csvreduce lifecycle.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	source   storage.Source
	dataset  Dataset
	opts     query.Options
	snapshot func(ctx context.Context, path string) (*export.SnapshotInfo, error)

	stats    *observability.QueryStats
	shutdown *server.ShutdownManager
	http     *httpapi.Server

	mu      sync.Mutex
	loaded  bool
	serving bool
}

// New validates cfg and builds the storage source and the dataset analyzer.
// Nothing is loaded until Load.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d, err := reduce.ParseDispatcher(cfg.Reduce.Dispatch, cfg.Reduce.PoolSize)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		opts: query.Options{
			Workers:    cfg.Reduce.Workers,
			MinWorkers: cfg.Reduce.MinWorkers,
			Dispatcher: d,
		},
		stats: observability.NewQueryStats(time.Hour),
		shutdown: server.NewShutdownManager(server.ShutdownConfig{
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		}),
	}

	if err := a.initSource(ctx); err != nil {
		return nil, err
	}
	a.initDataset()
	return a, nil
}

func (a *App) initSource(ctx context.Context) error {
	var err error
	switch a.cfg.Storage.Type {
	case "local":
		a.source, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		s3Cfg.MaxRetries = a.cfg.Storage.S3.MaxRetries
		a.source, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	a.logger.Info().Str("type", a.cfg.Storage.Type).Str("source", a.source.Name()).Msg("storage initialized")
	return nil
}

func (a *App) initDataset() {
	ingestOpts := ingest.Options{
		Concurrency: a.cfg.Ingest.Concurrency,
		Extensions:  a.cfg.Ingest.Extensions,
		Parser:      record.NewParser(),
	}

	switch a.cfg.Dataset.Kind {
	case config.DatasetPopulation:
		an := population.NewAnalyzer(a.source, ingestOpts, a.opts)
		a.dataset = an
		a.snapshot = func(ctx context.Context, path string) (*export.SnapshotInfo, error) {
			return export.WriteTable(ctx, path, population.Schema(), an.Table())
		}
	default:
		an := airquality.NewAnalyzer(a.source, ingestOpts, a.opts)
		a.dataset = an
		a.snapshot = func(ctx context.Context, path string) (*export.SnapshotInfo, error) {
			return export.WriteTable(ctx, path, airquality.Schema(), an.Table())
		}
	}
}

// Dataset returns the analyzer.
func (a *App) Dataset() Dataset { return a.dataset }

// QueryOptions returns the configured default execution options.
func (a *App) QueryOptions() query.Options { return a.opts }

// Stats returns the per-kind query statistics shared with the server.
func (a *App) Stats() *observability.QueryStats { return a.stats }

// Load reads every configured path into the dataset table and freezes it.
// Unreadable files are reported as warnings.
func (a *App) Load(ctx context.Context) (LoadReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.loaded {
		return LoadReport{}, fmt.Errorf("dataset already loaded")
	}

	ctx = a.logger.WithContext(ctx)
	start := time.Now()
	rows, warnings, err := a.dataset.LoadFromFiles(ctx, a.cfg.Dataset.Paths)
	report := LoadReport{Rows: rows, Warnings: warnings, Duration: time.Since(start)}
	if err != nil {
		return report, fmt.Errorf("failed to load %s: %w", a.dataset.Name(), err)
	}
	a.loaded = true

	for _, w := range warnings {
		a.logger.Warn().Str("path", w.Path).Msg(w.Message)
	}
	a.logger.Info().
		Str("dataset", a.dataset.Name()).
		Int("rows", rows).
		Int("warnings", len(warnings)).
		Dur("elapsed", report.Duration).
		Msg("dataset loaded")
	return report, nil
}

// Snapshot writes the loaded table to a SQLite file. An empty path uses
// snapshot.path from the configuration.
func (a *App) Snapshot(ctx context.Context, path string) (*export.SnapshotInfo, error) {
	if path == "" {
		path = a.cfg.Snapshot.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no snapshot path configured")
	}
	return a.snapshot(a.logger.WithContext(ctx), path)
}

// Serve starts the query server on addr ("" = http.addr from the
// configuration) and returns the bound address.
func (a *App) Serve(addr string) (net.Addr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serving {
		return nil, fmt.Errorf("query server is already running")
	}
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}

	a.http = httpapi.NewServer(a.dataset, httpapi.Options{
		Defaults:     a.opts,
		PoolSize:     a.cfg.Reduce.PoolSize,
		Stats:        a.stats,
		Shutdown:     a.shutdown,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
		Logger:       a.logger,
	})
	bound, err := a.http.Start(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start query server: %w", err)
	}

	srv := a.http
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}))
	a.serving = true
	return bound, nil
}

// WaitForShutdown blocks until a signal or ctx cancellation, then shuts down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(a.logger.WithContext(ctx))
}

// Stop shuts the app down without waiting for a signal.
func (a *App) Stop(ctx context.Context) error {
	return a.shutdown.Shutdown(a.logger.WithContext(ctx), "stop requested")
}
