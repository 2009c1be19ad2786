package airquality

import (
	"context"
	"fmt"
	"sort"
	"time"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/ingest"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/arkilian/csvreduce/internal/query/aggregator"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/arkilian/csvreduce/internal/storage"
	"github.com/arkilian/csvreduce/internal/table"
)

// Query kinds accepted by RunQuery.
const (
	KindRecordsForDate query.Kind = "records_for_date"
	KindDaysAboveAQI   query.Kind = "days_aqi_above"
	KindAverageAQI     query.Kind = "average_aqi"
	KindStatistics     query.Kind = "statistics"
)

// Name is the dataset name used in configuration.
const Name = "airquality"

// Analyzer owns the air quality table and runs queries against it.
type Analyzer struct {
	tbl    *table.Table[Record]
	loader *ingest.Loader[Record]
	opts   query.Options
}

// NewAnalyzer creates an analyzer that loads from source. opts are the
// default execution options for RunQuery.
func NewAnalyzer(source storage.Source, ingestOpts ingest.Options, opts query.Options) *Analyzer {
	return &Analyzer{
		tbl:    table.NewWithKey(Record.Date),
		loader: ingest.NewLoader(source, Schema(), ingestOpts),
		opts:   opts,
	}
}

// Name implements query.Runner.
func (a *Analyzer) Name() string { return Name }

// Kinds implements query.Runner.
func (a *Analyzer) Kinds() []query.Kind {
	return []query.Kind{KindRecordsForDate, KindDaysAboveAQI, KindAverageAQI, KindStatistics}
}

// Table returns the underlying table.
func (a *Analyzer) Table() *table.Table[Record] { return a.tbl }

// LoadFromFiles loads every CSV under paths, then freezes the table. It
// returns the number of rows in the table.
func (a *Analyzer) LoadFromFiles(ctx context.Context, paths []string) (int, []ingest.Warning, error) {
	_, warnings, err := a.loader.Load(ctx, a.tbl, paths)
	if err != nil {
		return a.tbl.Size(), warnings, err
	}
	a.tbl.Freeze()
	return a.tbl.Size(), warnings, nil
}

// TableSize implements query.Runner.
func (a *Analyzer) TableSize() int { return a.tbl.Size() }

// RecordsForDate returns every reading taken on date (YYYY-MM-DD). The order
// of the returned records is unspecified.
func (a *Analyzer) RecordsForDate(ctx context.Context, date string, opts query.Options) ([]Record, query.Stats, error) {
	if !a.tbl.MayContainKey(date) {
		return nil, query.Stats{KeyPruned: true}, nil
	}
	return query.FilterExact(ctx, a.tbl.Rows(), opts, func(r Record) bool {
		return r.Date() == date
	})
}

// DaysWithAQIAbove returns the dates whose highest AQI is strictly above
// threshold, sorted ascending. It always runs serially.
func (a *Analyzer) DaysWithAQIAbove(threshold int) ([]string, query.Stats) {
	return query.GroupedMax(a.tbl.Rows(), Record.Date,
		func(r Record) float64 { return float64(r.AQI) },
		float64(threshold))
}

// AverageAQIForDate returns the mean AQI of the readings on date, or 0 when
// there are none.
func (a *Analyzer) AverageAQIForDate(ctx context.Context, date string, opts query.Options) (aggregator.PartialAggregate, query.Stats, error) {
	if !a.tbl.MayContainKey(date) {
		return aggregator.NewPartialAggregate(), query.Stats{KeyPruned: true}, nil
	}
	return query.SumCount(ctx, a.tbl.Rows(), opts, func(r Record) (float64, bool) {
		return float64(r.AQI), r.Date() == date
	})
}

// Statistics summarizes the loaded readings.
type Statistics struct {
	TotalRecords int            `json:"total_records"`
	FirstDate    string         `json:"first_date"`
	LastDate     string         `json:"last_date"`
	MinAQI       int            `json:"min_aqi"`
	MaxAQI       int            `json:"max_aqi"`
	UniqueDates  int            `json:"unique_dates"`
	Parameters   map[string]int `json:"parameters"`
}

type statsPartial struct {
	count  int
	aqi    aggregator.PartialAggregate
	dates  map[string]struct{}
	params map[string]int
}

func newStatsPartial() statsPartial {
	return statsPartial{dates: make(map[string]struct{}), params: make(map[string]int)}
}

// Statistics computes record count, date range, AQI range, unique dates and
// the per-parameter record distribution.
func (a *Analyzer) Statistics(ctx context.Context, opts query.Options) (Statistics, query.Stats, error) {
	start := time.Now()
	rows := a.tbl.Rows()
	ranges, d := opts.Plan(len(rows))

	job := reduce.Job[Record, statsPartial]{
		Identity: newStatsPartial,
		Accumulate: func(p statsPartial, r Record) statsPartial {
			p.count++
			p.aqi = p.aqi.Accumulate(float64(r.AQI))
			p.dates[r.Date()] = struct{}{}
			p.params[r.Parameter]++
			return p
		},
		Combine: func(x, y statsPartial) statsPartial {
			x.count += y.count
			x.aqi = aggregator.Merge(x.aqi, y.aqi)
			for k := range y.dates {
				x.dates[k] = struct{}{}
			}
			for k, v := range y.params {
				x.params[k] += v
			}
			return x
		},
	}

	p, err := reduce.Reduce(ctx, rows, ranges, job, d)
	if err != nil {
		return Statistics{}, query.Stats{}, err
	}

	s := Statistics{
		TotalRecords: p.count,
		MinAQI:       int(p.aqi.Min),
		MaxAQI:       int(p.aqi.Max),
		UniqueDates:  len(p.dates),
		Parameters:   p.params,
	}
	if len(p.dates) > 0 {
		dates := make([]string, 0, len(p.dates))
		for k := range p.dates {
			dates = append(dates, k)
		}
		sort.Strings(dates)
		s.FirstDate, s.LastDate = dates[0], dates[len(dates)-1]
	}

	return s, query.Stats{
		Partitions:  len(ranges),
		RowsScanned: int64(len(rows)),
		Dispatcher:  d.Name(),
		Duration:    time.Since(start),
	}, nil
}

// RunQuery implements query.Runner.
func (a *Analyzer) RunQuery(ctx context.Context, kind query.Kind, params query.Params) (*query.Result, error) {
	return a.RunQueryWith(ctx, kind, params, a.opts)
}

// RunQueryWith implements query.Runner. An unknown date yields an empty
// result, not an error.
func (a *Analyzer) RunQueryWith(ctx context.Context, kind query.Kind, params query.Params, opts query.Options) (*query.Result, error) {
	if !a.tbl.Frozen() {
		return nil, csverrors.NewQueryError(csverrors.CodeTableNotLoaded, "air quality table not loaded")
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = a.opts.Dispatcher
	}

	res := query.NewResult(ctx, kind)
	switch kind {
	case KindRecordsForDate:
		if params.Date == "" {
			return nil, missingParam(kind, "date")
		}
		recs, stats, err := a.RecordsForDate(ctx, params.Date, opts)
		if err != nil {
			return nil, err
		}
		res.Rows = make([]interface{}, len(recs))
		for i, r := range recs {
			res.Rows[i] = r
		}
		res.Count = int64(len(recs))
		res.Stats = stats

	case KindDaysAboveAQI:
		days, stats := a.DaysWithAQIAbove(int(params.Threshold))
		res.Keys = days
		res.Count = int64(len(days))
		res.Stats = stats

	case KindAverageAQI:
		if params.Date == "" {
			return nil, missingParam(kind, "date")
		}
		agg, stats, err := a.AverageAQIForDate(ctx, params.Date, opts)
		if err != nil {
			return nil, err
		}
		res.Scalar = agg.Average()
		res.Count = agg.Count
		res.Aggregate = &agg
		res.Stats = stats

	case KindStatistics:
		s, stats, err := a.Statistics(ctx, opts)
		if err != nil {
			return nil, err
		}
		res.Count = int64(s.TotalRecords)
		res.Details = map[string]interface{}{
			"total_records": s.TotalRecords,
			"first_date":    s.FirstDate,
			"last_date":     s.LastDate,
			"min_aqi":       s.MinAQI,
			"max_aqi":       s.MaxAQI,
			"unique_dates":  s.UniqueDates,
			"parameters":    s.Parameters,
		}
		res.Stats = stats

	default:
		return nil, csverrors.NewQueryError(csverrors.CodeUnknownQuery, fmt.Sprintf("unknown air quality query %q", kind))
	}
	return res, nil
}

func missingParam(kind query.Kind, name string) error {
	return csverrors.NewQueryError(csverrors.CodeInvalidParameters, fmt.Sprintf("%s requires %s", kind, name))
}
