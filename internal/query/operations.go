package query

import (
	"context"
	"time"

	"github.com/arkilian/csvreduce/internal/query/aggregator"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/arkilian/csvreduce/pkg/types"
)

// FilterExact returns the rows for which match is true. Each partition
// buffers its matches locally and the buffers are concatenated on merge, so
// the output order across partitions is unspecified.
func FilterExact[R any](ctx context.Context, rows []R, opts Options, match func(R) bool) ([]R, Stats, error) {
	start := time.Now()
	ranges, d := opts.Plan(len(rows))

	job := reduce.Job[R, []R]{
		Identity: func() []R { return nil },
		Accumulate: func(acc []R, row R) []R {
			if match(row) {
				acc = append(acc, row)
			}
			return acc
		},
		Combine: func(a, b []R) []R { return append(a, b...) },
	}

	out, err := reduce.Reduce(ctx, rows, ranges, job, d)
	if err != nil {
		return nil, Stats{}, err
	}
	return out, newStats(len(ranges), len(rows), d, start), nil
}

// GroupedMax computes the maximum of val per key in a single serial scan and
// returns the keys whose maximum is strictly greater than threshold, sorted
// ascending.
func GroupedMax[R any](rows []R, key func(R) string, val func(R) float64, threshold float64) ([]string, Stats) {
	start := time.Now()
	groups := aggregator.NewGroupMax()
	for _, row := range rows {
		groups.Observe(key(row), val(row))
	}
	return groups.KeysAbove(threshold), newStats(1, len(rows), reduce.SerialDispatcher{}, start)
}

// ThresholdRank extracts (key, value) pairs from the rows that pass extract's
// predicate, sorts them by value descending (ties by key ascending) and keeps
// the first k. k <= 0 keeps all entries.
func ThresholdRank[R any](ctx context.Context, rows []R, opts Options, extract func(R) (string, float64, bool), k int) ([]types.Ranked, Stats, error) {
	start := time.Now()
	ranges, d := opts.Plan(len(rows))

	out, err := reduce.Reduce(ctx, rows, ranges, rankJob(extract), d)
	if err != nil {
		return nil, Stats{}, err
	}
	return aggregator.TopK(out, k), newStats(len(ranges), len(rows), d, start), nil
}

// SumCount accumulates the values extract accepts into one partial
// aggregate. The average of an empty selection is 0.
func SumCount[R any](ctx context.Context, rows []R, opts Options, extract func(R) (float64, bool)) (aggregator.PartialAggregate, Stats, error) {
	start := time.Now()
	ranges, d := opts.Plan(len(rows))

	job := reduce.Job[R, aggregator.PartialAggregate]{
		Identity: aggregator.NewPartialAggregate,
		Accumulate: func(acc aggregator.PartialAggregate, row R) aggregator.PartialAggregate {
			if v, ok := extract(row); ok {
				acc = acc.Accumulate(v)
			}
			return acc
		},
		Combine: aggregator.Merge,
	}

	out, err := reduce.Reduce(ctx, rows, ranges, job, d)
	if err != nil {
		return aggregator.PartialAggregate{}, Stats{}, err
	}
	return out, newStats(len(ranges), len(rows), d, start), nil
}

// Derived computes a per-row metric for the rows derive accepts and returns
// all of them sorted by metric descending (ties by key ascending).
func Derived[R any](ctx context.Context, rows []R, opts Options, derive func(R) (string, float64, bool)) ([]types.Ranked, Stats, error) {
	return ThresholdRank(ctx, rows, opts, derive, 0)
}

func rankJob[R any](extract func(R) (string, float64, bool)) reduce.Job[R, []types.Ranked] {
	return reduce.Job[R, []types.Ranked]{
		Identity: func() []types.Ranked { return nil },
		Accumulate: func(acc []types.Ranked, row R) []types.Ranked {
			if key, v, ok := extract(row); ok {
				acc = append(acc, types.Ranked{Key: key, Value: v})
			}
			return acc
		},
		Combine: func(a, b []types.Ranked) []types.Ranked { return append(a, b...) },
	}
}

func newStats(partitions, rows int, d reduce.Dispatcher, start time.Time) Stats {
	return Stats{
		Partitions:  partitions,
		RowsScanned: int64(rows),
		Dispatcher:  d.Name(),
		Duration:    time.Since(start),
	}
}
