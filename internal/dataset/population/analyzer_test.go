package population

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/ingest"
	"github.com/arkilian/csvreduce/internal/query"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/arkilian/csvreduce/internal/storage"
	"github.com/arkilian/csvreduce/pkg/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type country struct {
	name, code, indicator string
	pops                  map[int]int64
}

func countryLine(c country) string {
	fields := []string{c.name, c.code, c.indicator, "SP.POP.TOTL"}
	for _, y := range Years() {
		if v, ok := c.pops[y]; ok {
			fields = append(fields, fmt.Sprintf("%d", v))
		} else {
			fields = append(fields, "")
		}
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + f + `"`
	}
	return strings.Join(quoted, ",") + ","
}

func fixture() []country {
	return []country{
		{"United States", "USA", Indicator, map[int]int64{1960: 100, 2020: 150}},
		{"China", "CHN", Indicator, map[int]int64{1960: 200, 2020: 180}},
		{"Tuvalu", "TUV", Indicator, map[int]int64{2020: 50}},
		{"Korea, Rep.", "KOR", Indicator, map[int]int64{1960: 25, 2000: 40, 2020: 50}},
	}
}

func header() []string {
	cols := []string{`"Country Name"`, `"Country Code"`, `"Indicator Name"`, `"Indicator Code"`}
	for _, y := range Years() {
		cols = append(cols, fmt.Sprintf(`"%d"`, y))
	}
	return []string{
		`"Data Source","World Development Indicators",`,
		"",
		`"Last Updated Date","2024-06-28",`,
		"",
		strings.Join(cols, ",") + ",",
	}
}

func loadAnalyzer(t *testing.T, countries []country, extra ...string) *Analyzer {
	t.Helper()
	lines := header()
	for _, c := range countries {
		lines = append(lines, countryLine(c))
	}
	lines = append(lines, extra...)

	dir := t.TempDir()
	path := filepath.Join(dir, "API_SP.POP.TOTL.csv")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	src, err := storage.NewLocalStorage("")
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}
	a := NewAnalyzer(src, ingest.DefaultOptions(), query.Options{Workers: 2})
	if _, warnings, err := a.LoadFromFiles(context.Background(), []string{path}); err != nil || len(warnings) != 0 {
		t.Fatalf("LoadFromFiles = %v, warnings %v", err, warnings)
	}
	return a
}

func TestSchema_FieldCount(t *testing.T) {
	if MinFields != 68 {
		t.Errorf("MinFields = %d, want 68", MinFields)
	}
	if len(Schema().Layout.Columns) != MinFields {
		t.Errorf("layout has %d columns, want %d", len(Schema().Layout.Columns), MinFields)
	}
}

func TestLoad_FiltersIndicatorsAndShortRows(t *testing.T) {
	other := country{"United States", "USA", "Population growth (annual %)", map[int]int64{2020: 1}}
	a := loadAnalyzer(t, fixture(),
		countryLine(other),
		`"Short","SHT","Population, total","SP.POP.TOTL","1"`,
	)
	if a.TableSize() != 4 {
		t.Errorf("TableSize = %d, want 4", a.TableSize())
	}
	if a.CountryCount() != 4 {
		t.Errorf("CountryCount = %d, want 4", a.CountryCount())
	}
}

func TestLoad_DropsNonPositiveValues(t *testing.T) {
	a := loadAnalyzer(t, []country{
		{"Nowhere", "NWH", Indicator, map[int]int64{1960: 0, 1961: -5, 1962: 7}},
	})
	hist := a.History("NWH")
	if !reflect.DeepEqual(hist, map[int]int64{1962: 7}) {
		t.Errorf("History = %v", hist)
	}
}

func TestTopCountriesByPopulation(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	got, _, err := a.TopCountriesByPopulation(context.Background(), 2020, 3, query.Options{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	// TUV and KOR tie at 50; key order breaks the tie
	want := []types.Ranked{{Key: "CHN", Value: 180}, {Key: "USA", Value: 150}, {Key: "KOR", Value: 50}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("top 3 = %v, want %v", got, want)
	}

	none, _, err := a.TopCountriesByPopulation(context.Background(), 1850, 5, query.Options{})
	if err != nil || len(none) != 0 {
		t.Errorf("unknown year: %v, %v", none, err)
	}
}

func TestCountryGrowthRates(t *testing.T) {
	a := loadAnalyzer(t, []country{
		{"United States", "USA", Indicator, map[int]int64{1960: 100, 2020: 150}},
		{"China", "CHN", Indicator, map[int]int64{1960: 200, 2020: 180}},
		{"Tuvalu", "TUV", Indicator, map[int]int64{2020: 50}},
	})
	got, _, err := a.CountryGrowthRates(context.Background(), 1960, 2020, query.Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Ranked{{Key: "USA", Value: 50}, {Key: "CHN", Value: -10}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("growth rates = %v, want %v", got, want)
	}
}

func TestGlobalPopulationGrowth(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	// start: 100+200+25 = 325, end: 150+180+50+50 = 430
	got, _, err := a.GlobalPopulationGrowth(context.Background(), 1960, 2020, query.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	want := float64(430-325) / 325 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("global growth = %v, want %v", got, want)
	}

	zero, _, err := a.GlobalPopulationGrowth(context.Background(), 1850, 2020, query.Options{})
	if err != nil || zero != 0 {
		t.Errorf("growth from unknown year = %v, %v; want 0", zero, err)
	}
}

func TestTotalWorldPopulation(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	total, _, err := a.TotalWorldPopulation(context.Background(), 2020, query.Options{Workers: 8})
	if err != nil || total != 430 {
		t.Errorf("total 2020 = %d, %v; want 430", total, err)
	}
	total, _, err = a.TotalWorldPopulation(context.Background(), 1999, query.Options{})
	if err != nil || total != 0 {
		t.Errorf("total 1999 = %d, %v; want 0", total, err)
	}
}

func TestCountriesWithPopulationAbove(t *testing.T) {
	a := loadAnalyzer(t, []country{
		{"A", "A", Indicator, map[int]int64{2020: 50}},
		{"B", "B", Indicator, map[int]int64{2020: 150}},
		{"C", "C", Indicator, map[int]int64{2020: 200}},
		{"D", "D", Indicator, map[int]int64{2020: 100}},
	})
	got, _, err := a.CountriesWithPopulationAbove(context.Background(), 100, 2020, query.Options{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Ranked{{Key: "C", Value: 200}, {Key: "B", Value: 150}, {Key: "D", Value: 100}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("countries >= 100 = %v, want %v", got, want)
	}
}

func TestRunQuery_FractionalThreshold(t *testing.T) {
	a := loadAnalyzer(t, []country{
		{"A", "A", Indicator, map[int]int64{2020: 100}},
		{"B", "B", Indicator, map[int]int64{2020: 101}},
	})
	res, err := a.RunQuery(context.Background(), KindCountriesAbove, query.Params{Threshold: 100.5, Year: 2020})
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Ranked{{Key: "B", Value: 101}}
	if !reflect.DeepEqual(res.Ranked, want) {
		t.Errorf("countries >= 100.5 = %v, want %v", res.Ranked, want)
	}
}

func TestLookups(t *testing.T) {
	a := loadAnalyzer(t, fixture())

	if v, ok := a.Population("USA", 2020); !ok || v != 150 {
		t.Errorf("Population(USA, 2020) = %d, %v", v, ok)
	}
	if _, ok := a.Population("USA", 1999); ok {
		t.Error("missing year should not be found")
	}
	if _, ok := a.Population("XXX", 2020); ok {
		t.Error("unknown country should not be found")
	}
	if v, ok := a.PopulationByName("Korea, Rep.", 2000); !ok || v != 40 {
		t.Errorf("PopulationByName = %d, %v", v, ok)
	}
	if a.CountryName("CHN") != "China" || a.CountryName("XXX") != "" {
		t.Error("CountryName mismatch")
	}
	if !reflect.DeepEqual(a.Countries(), []string{"CHN", "KOR", "TUV", "USA"}) {
		t.Errorf("Countries = %v", a.Countries())
	}
	if len(a.History("XXX")) != 0 {
		t.Error("unknown history should be empty")
	}
	years := a.AvailableYears()
	if len(years) != 64 || years[0] != 1960 || years[63] != 2023 {
		t.Errorf("AvailableYears = %v", years)
	}
}

func TestRunQuery(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	ctx := context.Background()

	res, err := a.RunQuery(ctx, KindTopCountries, query.Params{Year: 2020, N: 2})
	if err != nil || len(res.Ranked) != 2 || res.Ranked[0].Key != "CHN" {
		t.Errorf("top_countries: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindCountryGrowth, query.Params{StartYear: 1960, EndYear: 2020, N: 1})
	if err != nil || len(res.Ranked) != 1 || res.Ranked[0].Key != "KOR" {
		t.Errorf("country_growth: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindTotalPopulation, query.Params{Year: 2020})
	if err != nil || res.Count != 430 {
		t.Errorf("total_population: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindPopulation, query.Params{Code: "XXX", Year: 2020})
	if err != nil || res.Details["found"] != false {
		t.Errorf("population of unknown code: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindHistory, query.Params{Code: "KOR"})
	if err != nil || len(res.Ranked) != 3 || res.Ranked[0].Key != "1960" {
		t.Errorf("history: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindCountryName, query.Params{Code: "TUV"})
	if err != nil || !reflect.DeepEqual(res.Keys, []string{"Tuvalu"}) {
		t.Errorf("country_name: %+v, %v", res, err)
	}

	if _, err := a.RunQuery(ctx, "median_age", query.Params{}); csverrors.GetCode(err) != csverrors.CodeUnknownQuery {
		t.Errorf("unknown kind: got %v", err)
	}
	if _, err := a.RunQuery(ctx, KindHistory, query.Params{}); csverrors.GetCode(err) != csverrors.CodeInvalidParameters {
		t.Errorf("missing code: got %v", err)
	}
}

func TestSerialMatchesParallel(t *testing.T) {
	var countries []country
	for i := 0; i < 120; i++ {
		countries = append(countries, country{
			name:      fmt.Sprintf("Country %03d", i),
			code:      fmt.Sprintf("C%03d", i),
			indicator: Indicator,
			pops:      map[int]int64{1960: int64(1000 + i*7%13), 2020: int64(5000 + i*31%97)},
		})
	}
	a := loadAnalyzer(t, countries)
	ctx := context.Background()
	serial := query.Options{Serial: true}

	wantTop, _, _ := a.TopCountriesByPopulation(ctx, 2020, 10, serial)
	wantGrowth, _, _ := a.CountryGrowthRates(ctx, 1960, 2020, serial)
	wantGlobal, _, _ := a.GlobalPopulationGrowth(ctx, 1960, 2020, serial)

	for _, opts := range []query.Options{
		{Workers: 2},
		{Workers: 7},
		{Workers: 500},
		{Workers: 4, Dispatcher: reduce.PoolDispatcher{Size: 2}},
	} {
		top, _, _ := a.TopCountriesByPopulation(ctx, 2020, 10, opts)
		growth, _, _ := a.CountryGrowthRates(ctx, 1960, 2020, opts)
		global, _, _ := a.GlobalPopulationGrowth(ctx, 1960, 2020, opts)
		if !reflect.DeepEqual(top, wantTop) || !reflect.DeepEqual(growth, wantGrowth) || global != wantGlobal {
			t.Errorf("workers=%d: parallel results differ from serial", opts.Workers)
		}
	}
}

// TestProperty_RankingIsPermutationInvariant checks that ranking queries
// give the same answer for any load order and worker count.
func TestProperty_RankingIsPermutationInvariant(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	base := fixture()
	ctx := context.Background()
	ref := loadAnalyzer(t, base)
	wantTop, _, _ := ref.TopCountriesByPopulation(ctx, 2020, 0, query.Options{Serial: true})
	wantAbove, _, _ := ref.CountriesWithPopulationAbove(ctx, 50, 2020, query.Options{Serial: true})

	properties.Property("ranking does not depend on row order", prop.ForAll(
		func(keys []int, workers int) bool {
			idx := []int{0, 1, 2, 3}
			sort.SliceStable(idx, func(i, j int) bool { return keys[idx[i]] < keys[idx[j]] })
			shuffled := make([]country, len(base))
			for i, j := range idx {
				shuffled[i] = base[j]
			}

			a := loadAnalyzer(t, shuffled)
			top, _, err := a.TopCountriesByPopulation(ctx, 2020, 0, query.Options{Workers: workers})
			if err != nil {
				return false
			}
			above, _, err := a.CountriesWithPopulationAbove(ctx, 50, 2020, query.Options{Workers: workers})
			if err != nil {
				return false
			}
			return reflect.DeepEqual(top, wantTop) && reflect.DeepEqual(above, wantAbove)
		},
		gen.SliceOfN(4, gen.IntRange(0, 100)),
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}
