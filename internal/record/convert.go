package record

import (
	"strconv"
	"strings"
)

// Float parses a numeric field, tolerating surrounding whitespace.
func Float(field string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(field), 64)
}

// Int parses an integer field, tolerating surrounding whitespace.
func Int(field string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(field))
}

// Int64 parses a 64-bit integer field. Values written with a fractional
// zero part ("1234.0") are accepted since some exports emit counts that way.
func Int64(field string) (int64, error) {
	s := strings.TrimSpace(field)
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return v, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != float64(int64(f)) {
		return 0, err
	}
	return int64(f), nil
}
