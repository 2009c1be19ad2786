package airquality

import (
	"context"
	"fmt"
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
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type reading struct {
	datetime  string
	parameter string
	aqi       int
	site      string
}

func line(r reading) string {
	return fmt.Sprintf(`34.0522,-118.2437,"%s","%s",12.5,"UG/M3",12.5,%d,2,"%s","South Coast AQMD","060371103","840060371103"`,
		r.datetime, r.parameter, r.aqi, r.site)
}

func fixture() []reading {
	return []reading{
		{"2020-08-15T10:00", "PM2.5", 40, "Reseda"},
		{"2020-08-15T11:00", "PM2.5", 150, "Reseda"},
		{"2020-08-15T11:00", "OZONE", 60, "Glendora"},
		{"2020-08-16T09:00", "PM2.5", 120, "Glendora"},
		{"2020-08-16T10:00", "OZONE", 80, "Reseda"},
		{"2020-08-17T10:00", "PM2.5", 100, "Reseda"},
		{"2020-08-20T10:00", "PM10", 55, "Azusa"},
		{"2020-08-20T11:00", "PM2.5", 65, "Azusa"},
	}
}

func writeCSV(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func loadAnalyzer(t *testing.T, readings []reading, extra ...string) *Analyzer {
	t.Helper()
	dir := t.TempDir()
	lines := make([]string, 0, len(readings)+len(extra))
	for _, r := range readings {
		lines = append(lines, line(r))
	}
	lines = append(lines, extra...)
	writeCSV(t, dir, "readings.csv", lines)

	src, err := storage.NewLocalStorage("")
	if err != nil {
		t.Fatalf("failed to create source: %v", err)
	}
	a := NewAnalyzer(src, ingest.DefaultOptions(), query.Options{Workers: 3})
	n, warnings, err := a.LoadFromFiles(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromFiles failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if n != len(readings) {
		t.Fatalf("loaded %d rows, want %d", n, len(readings))
	}
	return a
}

func TestRecord_DateAndHour(t *testing.T) {
	r := Record{DateTime: "2020-08-15T07:00"}
	if r.Date() != "2020-08-15" || r.Hour() != 7 {
		t.Errorf("Date/Hour = %q/%d", r.Date(), r.Hour())
	}
	if (Record{DateTime: "bad"}).Hour() != -1 {
		t.Error("short datetime should have no hour")
	}
}

func TestLoad_SkipsMalformedLines(t *testing.T) {
	a := loadAnalyzer(t, fixture(),
		`34.0,-118.0,"2020-08-15T10:00","PM2.5",1,"UG/M3",1,notanint,1,"X","Y","1","2"`,
		`34.0,-118.0,"2020-08-15T10:00","PM2.5"`,
		`34.0,-118.0,"","PM2.5",1,"UG/M3",1,20,1,"X","Y","1","2"`,
	)
	if a.TableSize() != len(fixture()) {
		t.Errorf("TableSize = %d, want %d", a.TableSize(), len(fixture()))
	}
}

func TestRecordsForDate(t *testing.T) {
	a := loadAnalyzer(t, fixture())

	recs, _, err := a.RecordsForDate(context.Background(), "2020-08-15", query.Options{Workers: 4})
	if err != nil {
		t.Fatal(err)
	}
	var aqis []int
	for _, r := range recs {
		aqis = append(aqis, r.AQI)
	}
	sort.Ints(aqis)
	if !reflect.DeepEqual(aqis, []int{40, 60, 150}) {
		t.Errorf("AQIs for 2020-08-15 = %v", aqis)
	}

	none, _, err := a.RecordsForDate(context.Background(), "1999-01-01", query.Options{})
	if err != nil || len(none) != 0 {
		t.Errorf("unknown date: %v, %v", none, err)
	}
}

func TestDaysWithAQIAbove(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	days, _ := a.DaysWithAQIAbove(100)
	want := []string{"2020-08-15", "2020-08-16"}
	if !reflect.DeepEqual(days, want) {
		t.Errorf("DaysWithAQIAbove(100) = %v, want %v", days, want)
	}
}

func TestAverageAQIForDate(t *testing.T) {
	a := loadAnalyzer(t, fixture())

	agg, _, err := a.AverageAQIForDate(context.Background(), "2020-08-20", query.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if agg.Average() != 60 || agg.Count != 2 {
		t.Errorf("average = %v over %d rows, want 60 over 2", agg.Average(), agg.Count)
	}

	empty, _, err := a.AverageAQIForDate(context.Background(), "2021-01-01", query.Options{})
	if err != nil || empty.Average() != 0 {
		t.Errorf("average for missing date = %v, %v; want 0", empty.Average(), err)
	}
}

func TestStatistics(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	s, _, err := a.Statistics(context.Background(), query.Options{Workers: 3})
	if err != nil {
		t.Fatal(err)
	}
	want := Statistics{
		TotalRecords: 8,
		FirstDate:    "2020-08-15",
		LastDate:     "2020-08-20",
		MinAQI:       40,
		MaxAQI:       150,
		UniqueDates:  4,
		Parameters:   map[string]int{"PM2.5": 5, "OZONE": 2, "PM10": 1},
	}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("Statistics = %+v, want %+v", s, want)
	}
}

func TestRunQuery(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	ctx := context.Background()

	res, err := a.RunQuery(ctx, KindRecordsForDate, query.Params{Date: "2020-08-16"})
	if err != nil || res.Count != 2 || len(res.Rows) != 2 {
		t.Errorf("records_for_date: %+v, %v", res, err)
	}
	if res.QueryID == "" || res.Kind != KindRecordsForDate {
		t.Errorf("result identity not set: %+v", res)
	}

	res, err = a.RunQuery(ctx, KindDaysAboveAQI, query.Params{Threshold: 100})
	if err != nil || !reflect.DeepEqual(res.Keys, []string{"2020-08-15", "2020-08-16"}) {
		t.Errorf("days_aqi_above: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindAverageAQI, query.Params{Date: "2020-08-15"})
	if err != nil || res.Scalar != 250.0/3 {
		t.Errorf("average_aqi: %+v, %v", res, err)
	}

	res, err = a.RunQuery(ctx, KindStatistics, query.Params{})
	if err != nil || res.Details["unique_dates"] != 4 {
		t.Errorf("statistics: %+v, %v", res, err)
	}

	if _, err := a.RunQuery(ctx, "nope", query.Params{}); csverrors.GetCode(err) != csverrors.CodeUnknownQuery {
		t.Errorf("unknown kind: got %v", err)
	}
	if _, err := a.RunQuery(ctx, KindRecordsForDate, query.Params{}); csverrors.GetCode(err) != csverrors.CodeInvalidParameters {
		t.Errorf("missing date: got %v", err)
	}
}

func TestRunQuery_NotLoaded(t *testing.T) {
	src, _ := storage.NewLocalStorage("")
	a := NewAnalyzer(src, ingest.DefaultOptions(), query.Options{})
	if _, err := a.RunQuery(context.Background(), KindStatistics, query.Params{}); csverrors.GetCode(err) != csverrors.CodeTableNotLoaded {
		t.Errorf("got %v, want TABLE_NOT_LOADED", err)
	}
}

func TestSerialMatchesParallel(t *testing.T) {
	a := loadAnalyzer(t, fixture())
	ctx := context.Background()
	parallel := []query.Options{
		{Workers: 1},
		{Workers: 5},
		{Workers: 64, Dispatcher: reduce.PoolDispatcher{Size: 2}},
	}

	serialAvg, _, _ := a.AverageAQIForDate(ctx, "2020-08-15", query.Options{Serial: true})
	serialStats, _, _ := a.Statistics(ctx, query.Options{Serial: true})
	for _, opts := range parallel {
		avg, _, err := a.AverageAQIForDate(ctx, "2020-08-15", opts)
		if err != nil || avg.Average() != serialAvg.Average() {
			t.Errorf("workers=%d: average %v != serial %v", opts.Workers, avg.Average(), serialAvg.Average())
		}
		s, _, err := a.Statistics(ctx, opts)
		if err != nil || !reflect.DeepEqual(s, serialStats) {
			t.Errorf("workers=%d: statistics differ from serial", opts.Workers)
		}
	}
}

// TestProperty_LoadOrderInvariance checks that shuffling the input lines
// does not change any query result.
func TestProperty_LoadOrderInvariance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	base := loadAnalyzer(t, fixture())
	ctx := context.Background()
	wantDays, _ := base.DaysWithAQIAbove(70)
	wantStats, _, _ := base.Statistics(ctx, query.Options{Serial: true})
	wantAvg, _, _ := base.AverageAQIForDate(ctx, "2020-08-16", query.Options{Serial: true})

	properties.Property("results do not depend on row order", prop.ForAll(
		func(perm []int, workers int) bool {
			readings := fixture()
			shuffled := make([]reading, len(readings))
			for i, j := range permutation(perm, len(readings)) {
				shuffled[i] = readings[j]
			}
			a := loadAnalyzer(t, shuffled)

			days, _ := a.DaysWithAQIAbove(70)
			stats, _, err := a.Statistics(ctx, query.Options{Workers: workers})
			if err != nil {
				return false
			}
			avg, _, err := a.AverageAQIForDate(ctx, "2020-08-16", query.Options{Workers: workers})
			if err != nil {
				return false
			}
			return reflect.DeepEqual(days, wantDays) &&
				reflect.DeepEqual(stats, wantStats) &&
				avg.Average() == wantAvg.Average()
		},
		gen.SliceOfN(8, gen.IntRange(0, 1000)),
		gen.IntRange(1, 8),
	))

	properties.TestingRun(t)
}

// permutation turns arbitrary sort keys into a permutation of [0, n).
func permutation(keys []int, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]%len(keys)] < keys[idx[b]%len(keys)]
	})
	return idx
}
