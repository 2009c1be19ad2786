// Package observability tracks per-kind query counts and latency.
package observability

import (
	"sort"
	"sync"
	"time"
)

// QueryStats tracks how often each query kind runs and how long it takes.
type QueryStats struct {
	mu     sync.RWMutex
	kinds  map[string]*KindStats
	window time.Duration
}

// KindStats holds statistics for one query kind.
type KindStats struct {
	Kind          string        `json:"kind"`
	Count         int64         `json:"count"`
	Errors        int64         `json:"errors"`
	RowsScanned   int64         `json:"rows_scanned"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	MaxDuration   time.Duration `json:"max_duration_ns"`
	LastSeen      time.Time     `json:"last_seen"`
	Dispatchers   map[string]int `json:"dispatchers"` // dispatcher name → count
}

// MeanDuration returns the average latency, 0 when nothing was recorded.
func (k KindStats) MeanDuration() time.Duration {
	if k.Count == 0 {
		return 0
	}
	return k.TotalDuration / time.Duration(k.Count)
}

// NewQueryStats creates a new query statistics tracker.
// window: time duration for pruning old entries (e.g., 1 hour)
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		kinds:  make(map[string]*KindStats),
		window: window,
	}
}

// Record records one query execution. A non-nil err counts as a failure.
// This method is O(1) and thread-safe.
func (q *QueryStats) Record(kind, dispatcher string, rowsScanned int64, d time.Duration, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.kinds[kind]
	if !exists {
		stats = &KindStats{
			Kind:        kind,
			Dispatchers: make(map[string]int),
		}
		q.kinds[kind] = stats
	}

	stats.Count++
	stats.LastSeen = time.Now()
	if err != nil {
		stats.Errors++
		return
	}
	stats.RowsScanned += rowsScanned
	stats.TotalDuration += d
	if d > stats.MaxDuration {
		stats.MaxDuration = d
	}
	if dispatcher != "" {
		stats.Dispatchers[dispatcher]++
	}
}

// Get returns a copy of the stats for kind.
func (q *QueryStats) Get(kind string) (KindStats, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	s, ok := q.kinds[kind]
	if !ok {
		return KindStats{}, false
	}
	return copyStats(s), true
}

// GetTopKinds returns the top N kinds by frequency.
// Returns copies sorted by frequency (descending), then kind name.
func (q *QueryStats) GetTopKinds(n int) []KindStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.kinds) == 0 {
		return []KindStats{}
	}

	stats := make([]KindStats, 0, len(q.kinds))
	for _, s := range q.kinds {
		stats = append(stats, copyStats(s))
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Kind < stats[j].Kind
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries where time.Since(LastSeen) > window.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := time.Now().Add(-q.window)
	for kind, stats := range q.kinds {
		if stats.LastSeen.Before(threshold) {
			delete(q.kinds, kind)
		}
	}
}

func copyStats(s *KindStats) KindStats {
	c := *s
	c.Dispatchers = make(map[string]int, len(s.Dispatchers))
	for k, v := range s.Dispatchers {
		c.Dispatchers[k] = v
	}
	return c
}
