// Package ingest loads CSV objects from a storage source into a table.
package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/record"
	"github.com/arkilian/csvreduce/internal/storage"
	"github.com/arkilian/csvreduce/internal/table"
	"github.com/golang/snappy"
	"github.com/rs/zerolog"
)

// SnappyExtension marks inputs compressed with the snappy framing format.
const SnappyExtension = ".sz"

// maxLineBytes bounds a single input line. Population rows carry 68+ fields.
const maxLineBytes = 1 << 20

// Options configures a Loader.
type Options struct {
	// Concurrency is the number of files parsed at once (default: 4)
	Concurrency int

	// Extensions filters listed objects by suffix (default: .csv and .csv.sz).
	// Paths passed explicitly as single files are always loaded.
	Extensions []string

	// Parser splits lines into fields (zero value = comma/double quote)
	Parser record.Parser
}

// DefaultOptions returns the default loader options.
func DefaultOptions() Options {
	return Options{
		Concurrency: 4,
		Extensions:  []string{".csv", ".csv" + SnappyExtension},
		Parser:      record.NewParser(),
	}
}

// Warning reports a file that could not be loaded. Loading continues past it.
type Warning struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Path, w.Message)
}

// Stats summarizes one Load call.
type Stats struct {
	Files     int           `json:"files"`
	Rows      int           `json:"rows"`
	Skipped   int           `json:"skipped"`
	Malformed int           `json:"malformed"`
	Duration  time.Duration `json:"duration_ns"`
}

// Loader parses objects from a source with a schema and appends the rows to
// a table. Each file is parsed independently and appended in one call, so
// rows of one file stay contiguous and in file order.
type Loader[R any] struct {
	source storage.Source
	schema table.Schema[R]
	opts   Options
}

// NewLoader creates a loader.
func NewLoader[R any](source storage.Source, schema table.Schema[R], opts Options) *Loader[R] {
	defaults := DefaultOptions()
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaults.Concurrency
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = defaults.Extensions
	}
	return &Loader[R]{source: source, schema: schema, opts: opts}
}

// Load expands paths into objects, parses them and appends the rows to tbl.
// Unreadable paths become warnings. Only fatal errors, a canceled context or
// a frozen table, fail the whole load.
func (l *Loader[R]) Load(ctx context.Context, tbl *table.Table[R], paths []string) (Stats, []Warning, error) {
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	objects, warnings := l.Expand(ctx, paths)
	if err := ctx.Err(); err != nil {
		return Stats{}, warnings, csverrors.NewCanceledError(err)
	}

	var (
		mu    sync.Mutex
		stats Stats
		fatal error
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, l.opts.Concurrency)

	for _, obj := range objects {
		wg.Add(1)
		go func(obj string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			fs, err := l.loadFile(ctx, tbl, obj)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				err = csverrors.NewCanceledError(err)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if csverrors.IsFatal(err) {
					if fatal == nil {
						fatal = err
					}
					return
				}
				logger.Warn().Err(err).Str("path", obj).Msg("skipping unreadable file")
				warnings = append(warnings, newWarning(obj, err))
				return
			}
			stats.Files++
			stats.Rows += fs.Rows
			stats.Skipped += fs.Skipped
			stats.Malformed += fs.Malformed
		}(obj)
	}
	wg.Wait()

	if fatal == nil && ctx.Err() != nil {
		fatal = csverrors.NewCanceledError(ctx.Err())
	}
	stats.Duration = time.Since(start)
	if fatal != nil {
		return stats, warnings, fatal
	}

	logger.Info().
		Str("schema", l.schema.Name).
		Str("source", l.source.Name()).
		Int("files", stats.Files).
		Int("rows", stats.Rows).
		Int("malformed", stats.Malformed).
		Int("warnings", len(warnings)).
		Dur("duration", stats.Duration).
		Msg("load complete")
	return stats, warnings, nil
}

// Expand lists every path and keeps the objects with a configured extension.
// A path that does not exist produces a warning; an existing but empty
// directory does not.
func (l *Loader[R]) Expand(ctx context.Context, paths []string) ([]string, []Warning) {
	var objects []string
	var warnings []Warning
	seen := make(map[string]struct{})

	for _, p := range paths {
		listed, err := l.source.ListObjects(ctx, p)
		if err != nil {
			warnings = append(warnings, Warning{
				Path:    p,
				Message: err.Error(),
				Err:     csverrors.NewIOError(csverrors.CodeListFailed, "cannot list path", err),
			})
			continue
		}
		if len(listed) == 0 {
			exists, err := l.source.Exists(ctx, p)
			switch {
			case err != nil:
				warnings = append(warnings, newWarning(p, err))
			case !exists:
				warnings = append(warnings, newWarning(p, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, p)))
			default:
				zerolog.Ctx(ctx).Debug().Str("path", p).Msg("path holds no objects")
			}
			continue
		}

		single := len(listed) == 1 && listed[0] == p
		for _, obj := range listed {
			if !single && !l.hasExtension(obj) {
				continue
			}
			if _, dup := seen[obj]; dup {
				continue
			}
			seen[obj] = struct{}{}
			objects = append(objects, obj)
		}
	}
	return objects, warnings
}

func (l *Loader[R]) hasExtension(obj string) bool {
	lower := strings.ToLower(obj)
	for _, ext := range l.opts.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

// loadFile parses one object and appends its rows in a single call.
func (l *Loader[R]) loadFile(ctx context.Context, tbl *table.Table[R], obj string) (Stats, error) {
	var fs Stats

	rc, err := l.source.Open(ctx, obj)
	if err != nil {
		return fs, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if strings.HasSuffix(strings.ToLower(obj), SnappyExtension) {
		r = snappy.NewReader(rc)
	}

	rows, fs, err := l.parse(r)
	if err != nil {
		return fs, err
	}
	if err := tbl.Append(rows...); err != nil {
		return fs, err
	}

	if fs.Malformed > 0 {
		zerolog.Ctx(ctx).Debug().Str("path", obj).Int("malformed", fs.Malformed).Msg("discarded malformed rows")
	}
	return fs, nil
}

// parse decodes every line of r. Malformed lines are counted, never returned.
// A line longer than maxLineBytes is drained and counted as malformed.
func (l *Loader[R]) parse(r io.Reader) ([]R, Stats, error) {
	var fs Stats
	var rows []R

	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	oversized := false
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > maxLineBytes {
				oversized = true
				line = line[:0]
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil && err != io.EOF {
			return nil, fs, err
		}

		switch {
		case oversized:
			fs.Malformed++
		case err == nil || len(line) > 0:
			row, derr := l.schema.Decode(l.opts.Parser, string(line))
			switch {
			case derr == nil:
				rows = append(rows, row)
			case errors.Is(derr, table.ErrSkipLine):
				fs.Skipped++
			default:
				fs.Malformed++
			}
		}
		line = line[:0]
		oversized = false

		if err == io.EOF {
			break
		}
	}

	fs.Rows = len(rows)
	return rows, fs, nil
}

func newWarning(path string, err error) Warning {
	return Warning{
		Path:    path,
		Message: err.Error(),
		Err:     csverrors.NewIOError(csverrors.CodeFileUnreadable, "cannot read file", err),
	}
}
