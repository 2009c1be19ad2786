// Package aggregator provides the partial aggregates, grouped extrema and
// ranking used to merge per-partition query results.
package aggregator

import "math"

// PartialAggregate holds sum, count and extrema over the values seen by one
// partition. Partials combine associatively, so merge order does not matter.
type PartialAggregate struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	IsSet bool    `json:"-"` // true once at least one value has been accumulated
}

// NewPartialAggregate creates an empty partial aggregate.
func NewPartialAggregate() PartialAggregate {
	return PartialAggregate{}
}

// Accumulate adds one value. NaN values are ignored.
func (p PartialAggregate) Accumulate(value float64) PartialAggregate {
	if math.IsNaN(value) {
		return p
	}
	if !p.IsSet || value < p.Min {
		p.Min = value
	}
	if !p.IsSet || value > p.Max {
		p.Max = value
	}
	p.Sum += value
	p.Count++
	p.IsSet = true
	return p
}

// Average returns Sum/Count, or 0 when no values were accumulated.
func (p PartialAggregate) Average() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.Sum / float64(p.Count)
}
