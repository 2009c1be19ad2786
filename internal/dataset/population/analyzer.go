package population

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/ingest"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/arkilian/csvreduce/internal/storage"
	"github.com/arkilian/csvreduce/internal/table"
	"github.com/arkilian/csvreduce/pkg/types"
)

// Query kinds accepted by RunQuery.
const (
	KindTopCountries     query.Kind = "top_countries"
	KindGlobalGrowth     query.Kind = "global_growth"
	KindCountryGrowth    query.Kind = "country_growth"
	KindTotalPopulation  query.Kind = "total_population"
	KindCountriesAbove   query.Kind = "countries_above"
	KindPopulation       query.Kind = "population"
	KindPopulationByName query.Kind = "population_by_name"
	KindCountryName      query.Kind = "country_name"
	KindCountries        query.Kind = "countries"
	KindHistory          query.Kind = "history"
	KindCountryCount     query.Kind = "country_count"
	KindAvailableYears   query.Kind = "available_years"
)

// Name is the dataset name used in configuration.
const Name = "population"

// Analyzer owns the population table and runs queries against it.
type Analyzer struct {
	tbl    *table.Table[Record]
	loader *ingest.Loader[Record]
	opts   query.Options

	// lookup indexes, built once after the table freezes
	indexOnce sync.Once
	byCode    map[string]int
	byName    map[string]string
}

// NewAnalyzer creates an analyzer that loads from source. opts are the
// default execution options for RunQuery.
func NewAnalyzer(source storage.Source, ingestOpts ingest.Options, opts query.Options) *Analyzer {
	schema := Schema()
	return &Analyzer{
		tbl:    table.NewWithKey(schema.Key),
		loader: ingest.NewLoader(source, schema, ingestOpts),
		opts:   opts,
	}
}

// Name implements query.Runner.
func (a *Analyzer) Name() string { return Name }

// Kinds implements query.Runner.
func (a *Analyzer) Kinds() []query.Kind {
	return []query.Kind{
		KindTopCountries, KindGlobalGrowth, KindCountryGrowth, KindTotalPopulation,
		KindCountriesAbove, KindPopulation, KindPopulationByName, KindCountryName,
		KindCountries, KindHistory, KindCountryCount, KindAvailableYears,
	}
}

// Table returns the underlying table.
func (a *Analyzer) Table() *table.Table[Record] { return a.tbl }

// LoadFromFiles loads every CSV under paths, then freezes the table and
// builds the lookup indexes. It returns the number of rows in the table.
func (a *Analyzer) LoadFromFiles(ctx context.Context, paths []string) (int, []ingest.Warning, error) {
	_, warnings, err := a.loader.Load(ctx, a.tbl, paths)
	if err != nil {
		return a.tbl.Size(), warnings, err
	}
	a.tbl.Freeze()
	a.buildIndex()
	return a.tbl.Size(), warnings, nil
}

// TableSize implements query.Runner.
func (a *Analyzer) TableSize() int { return a.tbl.Size() }

// buildIndex maps codes to rows and names to codes. When a code repeats the
// last row loaded wins.
func (a *Analyzer) buildIndex() {
	a.indexOnce.Do(func() {
		a.byCode = make(map[string]int)
		a.byName = make(map[string]string)
		for i, r := range a.tbl.Rows() {
			a.byCode[r.CountryCode] = i
			a.byName[r.CountryName] = r.CountryCode
		}
	})
}

func (a *Analyzer) row(code string) (Record, bool) {
	if !a.tbl.MayContainKey(code) {
		return Record{}, false
	}
	i, ok := a.byCode[code]
	if !ok {
		return Record{}, false
	}
	return a.tbl.RowAt(i)
}

// TopCountriesByPopulation returns the n most populous countries in year,
// largest first. n <= 0 returns all of them.
func (a *Analyzer) TopCountriesByPopulation(ctx context.Context, year, n int, opts query.Options) ([]types.Ranked, query.Stats, error) {
	return query.ThresholdRank(ctx, a.tbl.Rows(), opts, func(r Record) (string, float64, bool) {
		v, ok := r.In(year)
		return r.CountryCode, float64(v), ok
	}, n)
}

type growthPartial struct {
	start, end int64
}

// GlobalPopulationGrowth returns the percentage change between the summed
// populations of start and end. Each sum covers the countries with data for
// that year. It is 0 when nothing is known for start.
func (a *Analyzer) GlobalPopulationGrowth(ctx context.Context, start, end int, opts query.Options) (float64, query.Stats, error) {
	began := time.Now()
	rows := a.tbl.Rows()
	ranges, d := opts.Plan(len(rows))

	job := reduce.Job[Record, growthPartial]{
		Identity: func() growthPartial { return growthPartial{} },
		Accumulate: func(p growthPartial, r Record) growthPartial {
			if v, ok := r.In(start); ok {
				p.start += v
			}
			if v, ok := r.In(end); ok {
				p.end += v
			}
			return p
		},
		Combine: func(x, y growthPartial) growthPartial {
			return growthPartial{start: x.start + y.start, end: x.end + y.end}
		},
	}

	p, err := reduce.Reduce(ctx, rows, ranges, job, d)
	if err != nil {
		return 0, query.Stats{}, err
	}
	stats := query.Stats{
		Partitions:  len(ranges),
		RowsScanned: int64(len(rows)),
		Dispatcher:  d.Name(),
		Duration:    time.Since(began),
	}
	return growth(p.start, p.end), stats, nil
}

// CountryGrowthRates returns the percentage growth of every country with
// data for both years, highest first.
func (a *Analyzer) CountryGrowthRates(ctx context.Context, start, end int, opts query.Options) ([]types.Ranked, query.Stats, error) {
	return query.Derived(ctx, a.tbl.Rows(), opts, func(r Record) (string, float64, bool) {
		s, okStart := r.In(start)
		e, okEnd := r.In(end)
		if !okStart || !okEnd || s <= 0 {
			return "", 0, false
		}
		return r.CountryCode, growth(s, e), true
	})
}

// TotalWorldPopulation sums the population of every row with data for year.
func (a *Analyzer) TotalWorldPopulation(ctx context.Context, year int, opts query.Options) (int64, query.Stats, error) {
	agg, stats, err := query.SumCount(ctx, a.tbl.Rows(), opts, func(r Record) (float64, bool) {
		v, ok := r.In(year)
		return float64(v), ok
	})
	if err != nil {
		return 0, query.Stats{}, err
	}
	return int64(agg.Sum), stats, nil
}

// CountriesWithPopulationAbove returns the countries whose population in
// year is at least threshold, largest first.
func (a *Analyzer) CountriesWithPopulationAbove(ctx context.Context, threshold int64, year int, opts query.Options) ([]types.Ranked, query.Stats, error) {
	return query.ThresholdRank(ctx, a.tbl.Rows(), opts, func(r Record) (string, float64, bool) {
		v, ok := r.In(year)
		return r.CountryCode, float64(v), ok && v >= threshold
	}, 0)
}

// Population returns the population of the country with code in year.
func (a *Analyzer) Population(code string, year int) (int64, bool) {
	r, ok := a.row(code)
	if !ok {
		return 0, false
	}
	return r.In(year)
}

// PopulationByName is Population keyed by country name.
func (a *Analyzer) PopulationByName(name string, year int) (int64, bool) {
	code, ok := a.byName[name]
	if !ok {
		return 0, false
	}
	return a.Population(code, year)
}

// CountryName returns the name for code, or "" if unknown.
func (a *Analyzer) CountryName(code string) string {
	r, ok := a.row(code)
	if !ok {
		return ""
	}
	return r.CountryName
}

// Countries returns every country code, sorted.
func (a *Analyzer) Countries() []string {
	codes := make([]string, 0, len(a.byCode))
	for c := range a.byCode {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// History returns a copy of the series for code. Unknown codes yield an
// empty map.
func (a *Analyzer) History(code string) map[int]int64 {
	out := make(map[int]int64)
	if r, ok := a.row(code); ok {
		for y, v := range r.Population {
			out[y] = v
		}
	}
	return out
}

// CountryCount returns the number of distinct country codes.
func (a *Analyzer) CountryCount() int {
	return len(a.byCode)
}

// AvailableYears returns the years covered by the export.
func (a *Analyzer) AvailableYears() []int {
	return Years()
}

// RunQuery implements query.Runner.
func (a *Analyzer) RunQuery(ctx context.Context, kind query.Kind, params query.Params) (*query.Result, error) {
	return a.RunQueryWith(ctx, kind, params, a.opts)
}

// RunQueryWith implements query.Runner. Unknown years and countries yield
// empty or zero results, not errors.
func (a *Analyzer) RunQueryWith(ctx context.Context, kind query.Kind, params query.Params, opts query.Options) (*query.Result, error) {
	if !a.tbl.Frozen() {
		return nil, csverrors.NewQueryError(csverrors.CodeTableNotLoaded, "population table not loaded")
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = a.opts.Dispatcher
	}

	var (
		ranked []types.Ranked
		stats  query.Stats
		err    error
	)
	res := query.NewResult(ctx, kind)

	switch kind {
	case KindTopCountries:
		ranked, stats, err = a.TopCountriesByPopulation(ctx, params.Year, params.N, opts)

	case KindCountriesAbove:
		ranked, stats, err = a.CountriesWithPopulationAbove(ctx, int64(math.Ceil(params.Threshold)), params.Year, opts)

	case KindCountryGrowth:
		ranked, stats, err = a.CountryGrowthRates(ctx, params.StartYear, params.EndYear, opts)
		if err == nil && params.N > 0 && len(ranked) > params.N {
			ranked = ranked[:params.N]
		}

	case KindGlobalGrowth:
		res.Scalar, stats, err = a.GlobalPopulationGrowth(ctx, params.StartYear, params.EndYear, opts)

	case KindTotalPopulation:
		var total int64
		total, stats, err = a.TotalWorldPopulation(ctx, params.Year, opts)
		res.Scalar = float64(total)
		res.Count = total

	case KindPopulation, KindPopulationByName:
		var (
			v     int64
			found bool
		)
		if kind == KindPopulation {
			if params.Code == "" {
				return nil, missingParam(kind, "code")
			}
			v, found = a.Population(params.Code, params.Year)
		} else {
			if params.Name == "" {
				return nil, missingParam(kind, "name")
			}
			v, found = a.PopulationByName(params.Name, params.Year)
		}
		if found {
			res.Count = v
			res.Scalar = float64(v)
		}
		res.Details = map[string]interface{}{"found": found}

	case KindCountryName:
		if params.Code == "" {
			return nil, missingParam(kind, "code")
		}
		if name := a.CountryName(params.Code); name != "" {
			res.Keys = []string{name}
		}

	case KindCountries:
		res.Keys = a.Countries()
		res.Count = int64(len(res.Keys))

	case KindHistory:
		if params.Code == "" {
			return nil, missingParam(kind, "code")
		}
		hist := a.History(params.Code)
		years := make([]int, 0, len(hist))
		for y := range hist {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			ranked = append(ranked, types.Ranked{Key: fmt.Sprintf("%d", y), Value: float64(hist[y])})
		}

	case KindCountryCount:
		res.Count = int64(a.CountryCount())

	case KindAvailableYears:
		for _, y := range a.AvailableYears() {
			res.Keys = append(res.Keys, fmt.Sprintf("%d", y))
		}
		res.Count = int64(len(res.Keys))

	default:
		return nil, csverrors.NewQueryError(csverrors.CodeUnknownQuery, fmt.Sprintf("unknown population query %q", kind))
	}
	if err != nil {
		return nil, err
	}

	if ranked != nil {
		res.Ranked = ranked
		res.Count = int64(len(ranked))
	}
	res.Stats = stats
	return res, nil
}

func missingParam(kind query.Kind, name string) error {
	return csverrors.NewQueryError(csverrors.CodeInvalidParameters, fmt.Sprintf("%s requires %s", kind, name))
}

// growth is the percentage change from start to end, 0 when start is 0.
func growth(start, end int64) float64 {
	if start == 0 {
		return 0
	}
	return float64(end-start) / float64(start) * 100.0
}
