// Package main implements the csvreduce binary. It loads one dataset, prints
// a set of sample queries and optionally serves queries over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/arkilian/csvreduce/internal/app"
	"github.com/arkilian/csvreduce/internal/config"
	"github.com/arkilian/csvreduce/internal/dataset/airquality"
	"github.com/arkilian/csvreduce/internal/dataset/population"
	"github.com/arkilian/csvreduce/internal/logger"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/rs/zerolog"
)

var (
	version = "dev"
	commit  = "unknown"
)

// sample is one demo query printed after load.
type sample struct {
	title  string
	kind   query.Kind
	params query.Params
}

func main() {
	var (
		configFile  string
		dataset     string
		dataPaths   string
		workers     int
		dispatch    string
		httpAddr    string
		snapshot    string
		compare     bool
		serve       bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataset, "dataset", "", "Dataset: airquality, population")
	flag.StringVar(&dataPaths, "data", "", "Comma separated files, directories or prefixes to load")
	flag.IntVar(&workers, "workers", -1, "Worker count per query (0 = number of CPUs)")
	flag.StringVar(&dispatch, "dispatch", "", "Dispatcher: goroutine, pool, serial")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP address for the query server")
	flag.StringVar(&snapshot, "snapshot", "", "Write the loaded table to this SQLite file")
	flag.BoolVar(&compare, "compare", false, "Time every sample query serially and in parallel")
	flag.BoolVar(&serve, "serve", false, "Serve queries over HTTP after load")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "csvreduce - parallel reductions over CSV tables\n\n")
		fmt.Fprintf(os.Stderr, "Usage: csvreduce [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  csvreduce -dataset airquality -data data/fire\n")
		fmt.Fprintf(os.Stderr, "  csvreduce -dataset population -data pop.csv -compare\n")
		fmt.Fprintf(os.Stderr, "  csvreduce -config csvreduce.yaml -serve\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  CSVREDUCE_DATASET        Dataset (airquality, population)\n")
		fmt.Fprintf(os.Stderr, "  CSVREDUCE_DATA_PATHS     Comma separated input paths\n")
		fmt.Fprintf(os.Stderr, "  CSVREDUCE_WORKERS        Worker count per query\n")
		fmt.Fprintf(os.Stderr, "  CSVREDUCE_DISPATCH       Dispatcher (goroutine, pool, serial)\n")
		fmt.Fprintf(os.Stderr, "  CSVREDUCE_STORAGE_TYPE   Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  CSVREDUCE_LOG_LEVEL      Log level\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("csvreduce version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	l := logger.New()

	cfg, err := loadConfig(configFile)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to load configuration")
	}
	if dataset != "" {
		cfg.Dataset.Kind = dataset
	}
	if dataPaths != "" {
		cfg.Dataset.Paths = config.SplitList(dataPaths)
	}
	if workers >= 0 {
		cfg.Reduce.Workers = workers
	}
	if dispatch != "" {
		cfg.Reduce.Dispatch = dispatch
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if snapshot != "" {
		cfg.Snapshot.Path = snapshot
	}
	if serve {
		cfg.HTTP.Enabled = true
	}
	logger.SetLevel(cfg.Log.Level)

	ctx, cancel := context.WithCancel(l.WithContext(context.Background()))
	defer cancel()

	application, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create application")
	}

	report, err := application.Load(ctx)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to load dataset")
	}
	fmt.Printf("Loaded %d %s rows in %v (%d warnings)\n\n", report.Rows, cfg.Dataset.Kind, report.Duration, len(report.Warnings))

	samples := samplesFor(cfg.Dataset.Kind)
	runner := application.Dataset()
	for _, s := range samples {
		printSample(ctx, runner, s)
	}

	if compare {
		compareSamples(ctx, runner, application.QueryOptions(), samples)
	}

	if cfg.Snapshot.Path != "" {
		info, err := application.Snapshot(ctx, "")
		if err != nil {
			l.Fatal().Err(err).Msg("failed to write snapshot")
		}
		fmt.Printf("Snapshot: %s (%d rows, %d bytes)\n", info.Path, info.RowCount, info.SizeBytes)
	}

	if !cfg.HTTP.Enabled {
		return
	}
	addr, err := application.Serve("")
	if err != nil {
		l.Fatal().Err(err).Msg("failed to start query server")
	}
	fmt.Printf("Serving %s queries on http://%s\n", cfg.Dataset.Kind, addr)

	if err := application.WaitForShutdown(ctx); err != nil {
		l.Error().Err(err).Msg("shutdown error")
		os.Exit(1)
	}
}

// loadConfig loads defaults or a file, then applies environment overrides.
func loadConfig(configFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func samplesFor(kind string) []sample {
	if kind == config.DatasetPopulation {
		return []sample{
			{"Top 10 countries by population (2023)", population.KindTopCountries, query.Params{Year: 2023, N: 10}},
			{"Total world population (2023)", population.KindTotalPopulation, query.Params{Year: 2023}},
			{"Global population growth 1960-2023 (%)", population.KindGlobalGrowth, query.Params{StartYear: 1960, EndYear: 2023}},
			{"Fastest growing countries 1960-2023 (%)", population.KindCountryGrowth, query.Params{StartYear: 1960, EndYear: 2023, N: 10}},
			{"Countries above 100M (2023)", population.KindCountriesAbove, query.Params{Threshold: 100000000, Year: 2023}},
		}
	}
	return []sample{
		{"Dataset statistics", airquality.KindStatistics, query.Params{}},
		{"Days with AQI above 100", airquality.KindDaysAboveAQI, query.Params{Threshold: 100}},
		{"Readings on 2020-09-01", airquality.KindRecordsForDate, query.Params{Date: "2020-09-01"}},
		{"Average AQI on 2020-09-01", airquality.KindAverageAQI, query.Params{Date: "2020-09-01"}},
	}
}

func printSample(ctx context.Context, runner query.Runner, s sample) {
	res, err := runner.RunQuery(ctx, s.kind, s.params)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("kind", string(s.kind)).Msg("sample query failed")
		return
	}

	fmt.Printf("%s:\n", s.title)
	switch {
	case len(res.Ranked) > 0:
		for i, r := range res.Ranked {
			fmt.Printf("  %2d. %-10s %.2f\n", i+1, r.Key, r.Value)
		}
	case len(res.Keys) > 0:
		fmt.Printf("  %d keys: %s\n", len(res.Keys), preview(res.Keys, 10))
	case len(res.Details) > 0:
		for _, k := range sortedKeys(res.Details) {
			fmt.Printf("  %-14s %v\n", k, res.Details[k])
		}
	case res.Rows != nil:
		fmt.Printf("  %d rows\n", len(res.Rows))
	default:
		fmt.Printf("  %.2f (count %d)\n", res.Scalar, res.Count)
	}
	fmt.Printf("  [%d partitions, %s, %v]\n\n", res.Stats.Partitions, res.Stats.Dispatcher, res.Stats.Duration)
}

// compareSamples times every sample on one partition and on the configured
// worker count.
func compareSamples(ctx context.Context, runner query.Runner, opts query.Options, samples []sample) {
	fmt.Println("Serial vs parallel:")
	serialOpts := opts
	serialOpts.Serial = true

	var serialTotal, parallelTotal time.Duration
	for _, s := range samples {
		serial, err := timeQuery(ctx, runner, s, serialOpts)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("kind", string(s.kind)).Msg("serial run failed")
			continue
		}
		parallel, err := timeQuery(ctx, runner, s, opts)
		if err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("kind", string(s.kind)).Msg("parallel run failed")
			continue
		}
		serialTotal += serial
		parallelTotal += parallel
		fmt.Printf("  %-20s serial %-12v parallel %-12v speedup %.2fx\n", s.kind, serial, parallel, speedup(serial, parallel))
	}
	fmt.Printf("  %-20s serial %-12v parallel %-12v speedup %.2fx\n\n", "total", serialTotal, parallelTotal, speedup(serialTotal, parallelTotal))
}

func timeQuery(ctx context.Context, runner query.Runner, s sample, opts query.Options) (time.Duration, error) {
	start := time.Now()
	_, err := runner.RunQueryWith(ctx, s.kind, s.params, opts)
	return time.Since(start), err
}

func speedup(serial, parallel time.Duration) float64 {
	if parallel <= 0 {
		return 0
	}
	return float64(serial) / float64(parallel)
}

func preview(keys []string, n int) string {
	if len(keys) <= n {
		return strings.Join(keys, ", ")
	}
	return strings.Join(keys[:n], ", ") + ", ..."
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
