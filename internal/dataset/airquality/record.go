// Package airquality loads hourly air quality readings and answers date and
// AQI queries over them.
package airquality

import (
	"errors"
	"strconv"

	"github.com/arkilian/csvreduce/internal/record"
	"github.com/arkilian/csvreduce/internal/table"
	"github.com/arkilian/csvreduce/pkg/types"
)

// MinFields is the number of columns of a reading line.
const MinFields = 13

var errMissingDateTime = errors.New("missing datetime")

// Record is one air quality reading.
type Record struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	DateTime         string  `json:"datetime"`
	Parameter        string  `json:"parameter"`
	Value            float64 `json:"value"`
	Unit             string  `json:"unit"`
	RawConcentration float64 `json:"raw_concentration"`
	AQI              int     `json:"aqi"`
	AQICategory      int     `json:"aqi_category"`
	SiteName         string  `json:"site_name"`
	AgencyName       string  `json:"agency_name"`
	SiteID           string  `json:"site_id"`
	FullSiteID       string  `json:"full_site_id"`
}

// Date returns the YYYY-MM-DD prefix of DateTime.
func (r Record) Date() string {
	if len(r.DateTime) < 10 {
		return r.DateTime
	}
	return r.DateTime[:10]
}

// Hour returns the hour of DateTime, or -1 if it has none.
func (r Record) Hour() int {
	if len(r.DateTime) < 13 {
		return -1
	}
	h, err := strconv.Atoi(r.DateTime[11:13])
	if err != nil {
		return -1
	}
	return h
}

// Schema returns the table schema for air quality lines.
func Schema() table.Schema[Record] {
	return table.Schema[Record]{
		Name:      "airquality",
		MinFields: MinFields,
		Build:     build,
		Key:       Record.Date,
		Layout: types.Schema{
			Name:    "airquality",
			Version: 1,
			Columns: []types.ColumnDef{
				{Name: "latitude", Type: "REAL"},
				{Name: "longitude", Type: "REAL"},
				{Name: "datetime", Type: "TEXT"},
				{Name: "parameter", Type: "TEXT"},
				{Name: "value", Type: "REAL"},
				{Name: "unit", Type: "TEXT"},
				{Name: "raw_concentration", Type: "REAL"},
				{Name: "aqi", Type: "INTEGER"},
				{Name: "aqi_category", Type: "INTEGER"},
				{Name: "site_name", Type: "TEXT"},
				{Name: "agency_name", Type: "TEXT"},
				{Name: "site_id", Type: "TEXT"},
				{Name: "full_site_id", Type: "TEXT"},
			},
		},
		Values: func(r Record) []interface{} {
			return []interface{}{
				r.Latitude, r.Longitude, r.DateTime, r.Parameter, r.Value, r.Unit,
				r.RawConcentration, r.AQI, r.AQICategory, r.SiteName, r.AgencyName,
				r.SiteID, r.FullSiteID,
			}
		},
	}
}

func build(f []string) (Record, error) {
	var (
		r   Record
		err error
	)
	if r.Latitude, err = record.Float(f[0]); err != nil {
		return r, err
	}
	if r.Longitude, err = record.Float(f[1]); err != nil {
		return r, err
	}
	if r.Value, err = record.Float(f[4]); err != nil {
		return r, err
	}
	if r.RawConcentration, err = record.Float(f[6]); err != nil {
		return r, err
	}
	if r.AQI, err = record.Int(f[7]); err != nil {
		return r, err
	}
	if r.AQICategory, err = record.Int(f[8]); err != nil {
		return r, err
	}
	if f[2] == "" {
		return r, errMissingDateTime
	}
	r.DateTime = f[2]
	r.Parameter = f[3]
	r.Unit = f[5]
	r.SiteName = f[9]
	r.AgencyName = f[10]
	r.SiteID = f[11]
	r.FullSiteID = f[12]
	return r, nil
}
