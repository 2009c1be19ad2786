package aggregator

import "sort"

// GroupMax tracks the maximum value per group key.
type GroupMax map[string]float64

// NewGroupMax creates an empty grouping.
func NewGroupMax() GroupMax {
	return make(GroupMax)
}

// Observe records value for key, keeping the larger of the two.
func (g GroupMax) Observe(key string, value float64) {
	if cur, ok := g[key]; !ok || value > cur {
		g[key] = value
	}
}

// KeysAbove returns the keys whose maximum is strictly greater than
// threshold, sorted ascending.
func (g GroupMax) KeysAbove(threshold float64) []string {
	keys := make([]string, 0, len(g))
	for k, v := range g {
		if v > threshold {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
