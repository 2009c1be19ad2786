package table

import (
	"errors"
	"strings"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/record"
	"github.com/arkilian/csvreduce/pkg/types"
)

// ErrSkipLine marks blank and header/metadata lines. They are not rows and
// are not counted as malformed.
var ErrSkipLine = errors.New("table: skipped non-data line")

// ErrParseSkip marks a line that failed the field-count or conversion checks.
var ErrParseSkip = csverrors.NewParseSkip("row discarded", nil)

// Schema describes how a dataset's lines become rows of type R.
type Schema[R any] struct {
	// Name identifies the dataset in logs and snapshots
	Name string

	// MinFields is the minimum field count for a line to be a row
	MinFields int

	// HeaderMarkers are substrings that mark metadata/header lines to skip
	HeaderMarkers []string

	// Build converts a field slice of at least MinFields entries into a row.
	// Any error discards the row.
	Build func(fields []string) (R, error)

	// Key, when set, is the exact-match key indexed when the table freezes
	Key func(R) string

	// Layout and Values describe the flat column form used by snapshots
	Layout types.Schema
	Values func(R) []interface{}
}

// Decode turns one raw line into a row. It returns ErrSkipLine for blank and
// header lines and an error matching ErrParseSkip for malformed lines.
func (s Schema[R]) Decode(p record.Parser, line string) (R, error) {
	var zero R

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return zero, ErrSkipLine
	}
	for _, marker := range s.HeaderMarkers {
		if strings.Contains(line, marker) {
			return zero, ErrSkipLine
		}
	}

	fields := p.Parse(line)
	if len(fields) < s.MinFields {
		return zero, csverrors.NewParseSkip("too few fields", nil).WithDetails(map[string]interface{}{
			"fields":   len(fields),
			"required": s.MinFields,
		})
	}

	row, err := s.build(fields)
	if err != nil {
		if errors.Is(err, ErrSkipLine) {
			return zero, err
		}
		return zero, csverrors.NewParseSkip("row conversion failed", err)
	}
	return row, nil
}

// build runs the schema's Build and converts a panic into a parse skip so a
// bad field can never take down a loader goroutine.
func (s Schema[R]) build(fields []string) (row R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = csverrors.NewParseSkip("row builder panicked", nil).WithDetails(map[string]interface{}{
				"panic": r,
			})
		}
	}()
	return s.Build(fields)
}
