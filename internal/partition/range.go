// Package partition splits a row count into contiguous per-worker ranges.
package partition

import (
	"fmt"
	"runtime"
)

// Range is a half-open row interval [Start, End).
type Range struct {
	Start int
	End   int
}

// Len returns the number of rows in the range.
func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// Split divides n rows among w workers. Worker i owns [i*chunk, (i+1)*chunk)
// with chunk = n/w, and the last worker also takes the remainder. When n < w
// the worker count is clamped to n so no range is empty. n == 0 yields no ranges.
func Split(n, w int) []Range {
	if n <= 0 {
		return nil
	}
	if w < 1 {
		w = 1
	}
	if n < w {
		w = n
	}

	chunk := n / w
	ranges := make([]Range, w)
	for i := 0; i < w; i++ {
		ranges[i] = Range{Start: i * chunk, End: (i + 1) * chunk}
	}
	ranges[w-1].End = n
	return ranges
}

// WorkerCount resolves the number of workers for one query. A positive
// override is used as given; otherwise the number of CPUs is used, floored at
// min (itself at least 1).
func WorkerCount(override, min int) int {
	if override > 0 {
		return override
	}
	if min < 1 {
		min = 1
	}
	w := runtime.NumCPU()
	if w < min {
		w = min
	}
	return w
}
