package reduce

import (
	"context"
	"fmt"
	"sync"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
	"github.com/arkilian/csvreduce/internal/partition"
)

// Job describes an associative reduction from rows of type R to a partial
// result of type P. Combine must be associative and Identity must be its
// neutral element, so the merge order of partitions does not matter.
type Job[R, P any] struct {
	Identity   func() P
	Accumulate func(acc P, row R) P
	Combine    func(a, b P) P
}

// Reduce folds each range of rows into a local partial on its own task and
// merges the partials into one result. The merge lock is only taken once per
// range, after its scan. Any task failure aborts the reduction and no partial
// result is returned.
func Reduce[R, P any](ctx context.Context, rows []R, ranges []partition.Range, job Job[R, P], d Dispatcher) (P, error) {
	var zero P
	if job.Identity == nil || job.Accumulate == nil || job.Combine == nil {
		return zero, csverrors.NewInternalError("reduce: incomplete job", nil)
	}
	if d == nil {
		d = GoroutineDispatcher{}
	}

	for _, r := range ranges {
		if r.Start < 0 || r.End > len(rows) || r.Start > r.End {
			return zero, csverrors.NewInternalError(fmt.Sprintf("reduce: range %v outside %d rows", r, len(rows)), nil)
		}
	}

	var mu sync.Mutex
	result := job.Identity()

	tasks := make([]Task, len(ranges))
	for i, r := range ranges {
		r := r
		tasks[i] = func() error {
			local := job.Identity()
			for _, row := range rows[r.Start:r.End] {
				local = job.Accumulate(local, row)
			}

			mu.Lock()
			defer mu.Unlock()
			result = job.Combine(result, local)
			return nil
		}
	}

	if err := d.Run(ctx, tasks); err != nil {
		if csverrors.GetCategory(err) == csverrors.ErrCategoryReduce {
			return zero, err
		}
		return zero, csverrors.NewReduceError("reduction failed", err)
	}
	return result, nil
}
