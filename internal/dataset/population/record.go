// Package population loads World Bank "Population, total" series and answers
// ranking, growth and lookup queries over them.
package population

import (
	"fmt"

	"github.com/arkilian/csvreduce/internal/record"
	"github.com/arkilian/csvreduce/internal/table"
	"github.com/arkilian/csvreduce/pkg/types"
)

// Year columns covered by the export.
const (
	FirstYear = 1960
	LastYear  = 2023

	metaFields = 4

	// MinFields is the metadata columns plus one column per year.
	MinFields = metaFields + LastYear - FirstYear + 1
)

// Indicator is the only indicator name kept when loading.
const Indicator = "Population, total"

// HeaderMarkers identify the metadata and column header lines of the export.
var HeaderMarkers = []string{"Country Name", "Data Source", "Last Updated Date"}

// Record is one country's population series.
type Record struct {
	CountryName   string `json:"country_name"`
	CountryCode   string `json:"country_code"`
	IndicatorName string `json:"indicator_name"`
	IndicatorCode string `json:"indicator_code"`

	// Population maps year to population. Only positive values are kept.
	Population map[int]int64 `json:"population"`
}

// In returns the population for year.
func (r Record) In(year int) (int64, bool) {
	v, ok := r.Population[year]
	return v, ok
}

// Years returns the available years of the series.
func Years() []int {
	years := make([]int, 0, LastYear-FirstYear+1)
	for y := FirstYear; y <= LastYear; y++ {
		years = append(years, y)
	}
	return years
}

// Schema returns the table schema for population lines.
func Schema() table.Schema[Record] {
	columns := []types.ColumnDef{
		{Name: "country_name", Type: "TEXT"},
		{Name: "country_code", Type: "TEXT"},
		{Name: "indicator_name", Type: "TEXT"},
		{Name: "indicator_code", Type: "TEXT"},
	}
	for _, y := range Years() {
		columns = append(columns, types.ColumnDef{Name: fmt.Sprintf("y%d", y), Type: "INTEGER", Nullable: true})
	}

	return table.Schema[Record]{
		Name:          "population",
		MinFields:     MinFields,
		HeaderMarkers: HeaderMarkers,
		Build:         build,
		Key:           func(r Record) string { return r.CountryCode },
		Layout:        types.Schema{Name: "population", Version: 1, Columns: columns},
		Values: func(r Record) []interface{} {
			vals := make([]interface{}, 0, MinFields)
			vals = append(vals, r.CountryName, r.CountryCode, r.IndicatorName, r.IndicatorCode)
			for _, y := range Years() {
				if v, ok := r.Population[y]; ok {
					vals = append(vals, v)
				} else {
					vals = append(vals, nil)
				}
			}
			return vals
		},
	}
}

// build keeps only the total population indicator. Year cells that are
// empty, unparsable or not positive are left out of the series.
func build(f []string) (Record, error) {
	if f[2] != Indicator {
		return Record{}, table.ErrSkipLine
	}

	r := Record{
		CountryName:   f[0],
		CountryCode:   f[1],
		IndicatorName: f[2],
		IndicatorCode: f[3],
		Population:    make(map[int]int64),
	}
	for i := metaFields; i < MinFields; i++ {
		v, err := record.Int64(f[i])
		if err != nil || v <= 0 {
			continue
		}
		r.Population[FirstYear+i-metaFields] = v
	}
	return r, nil
}
