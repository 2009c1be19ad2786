package aggregator

import (
	"sort"

	"github.com/arkilian/csvreduce/pkg/types"
)

// SortDesc sorts entries in place by value descending, breaking ties by key
// ascending so the order is the same however the entries were gathered.
func SortDesc(entries []types.Ranked) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Key < entries[j].Key
	})
}

// TopK sorts entries with SortDesc and keeps the first k. k <= 0 keeps all.
func TopK(entries []types.Ranked, k int) []types.Ranked {
	SortDesc(entries)
	if k > 0 && k < len(entries) {
		entries = entries[:k]
	}
	return entries
}
