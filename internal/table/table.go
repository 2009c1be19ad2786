// Package table provides the append-once, read-many in-memory row store.
package table

import (
	"sync"
	"sync/atomic"

	"github.com/arkilian/csvreduce/internal/bloom"
	csverrors "github.com/arkilian/csvreduce/internal/errors"
)

// ErrTableFrozen is returned by Append after Freeze.
var ErrTableFrozen error = csverrors.New(csverrors.ErrCategoryInternal, csverrors.CodeTableFrozen, "table is frozen")

// keyIndexFPR is the false positive rate of the freeze-time key index.
const keyIndexFPR = 0.01

// Table is an ordered collection of rows. Appends from concurrent loaders
// are serialized; once frozen the rows are never mutated again and readers
// take no lock.
type Table[R any] struct {
	mu     sync.Mutex
	rows   []R
	frozen atomic.Bool

	keyFn    func(R) string
	keyIndex *bloom.BloomFilter
	keyCount int
}

// New creates an empty table.
func New[R any]() *Table[R] {
	return &Table[R]{}
}

// NewWithKey creates an empty table that indexes key(row) when it freezes.
func NewWithKey[R any](key func(R) string) *Table[R] {
	return &Table[R]{keyFn: key}
}

// Append adds rows in order. Rows appended by one call stay contiguous.
func (t *Table[R]) Append(rows ...R) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen.Load() {
		return ErrTableFrozen
	}
	t.rows = append(t.rows, rows...)
	return nil
}

// Freeze ends the load phase and builds the key index. Calling it twice is a no-op.
func (t *Table[R]) Freeze() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frozen.Load() {
		return
	}
	if t.keyFn != nil {
		distinct := make(map[string]struct{})
		for _, r := range t.rows {
			distinct[t.keyFn(r)] = struct{}{}
		}
		t.keyIndex = bloom.NewWithEstimates(len(distinct), keyIndexFPR)
		for k := range distinct {
			t.keyIndex.AddString(k)
		}
		t.keyCount = len(distinct)
	}
	t.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (t *Table[R]) Frozen() bool {
	return t.frozen.Load()
}

// Size returns the number of rows.
func (t *Table[R]) Size() int {
	if t.frozen.Load() {
		return len(t.rows)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// RowAt returns the row at index i.
func (t *Table[R]) RowAt(i int) (R, bool) {
	rows := t.Rows()
	if i < 0 || i >= len(rows) {
		var zero R
		return zero, false
	}
	return rows[i], true
}

// Rows returns the rows. For a frozen table this is the shared backing
// slice and must be treated as read-only; before Freeze it is a copy.
func (t *Table[R]) Rows() []R {
	if t.frozen.Load() {
		return t.rows
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]R, len(t.rows))
	copy(out, t.rows)
	return out
}

// Iterate calls fn for each row in order until fn returns false.
func (t *Table[R]) Iterate(fn func(i int, row R) bool) {
	for i, r := range t.Rows() {
		if !fn(i, r) {
			return
		}
	}
}

// MayContainKey reports whether some row might have the given key.
// It is always true for unfrozen tables and tables without a key index.
func (t *Table[R]) MayContainKey(key string) bool {
	if !t.frozen.Load() || t.keyIndex == nil {
		return true
	}
	return t.keyIndex.ContainsString(key)
}

// DistinctKeys returns the number of distinct keys seen at freeze time.
func (t *Table[R]) DistinctKeys() int {
	if !t.frozen.Load() {
		return 0
	}
	return t.keyCount
}
