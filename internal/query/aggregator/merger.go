package aggregator

// Merge combines two partials:
//   - Count: sum of counts
//   - Sum:   sum of sums
//   - Min:   minimum of mins
//   - Max:   maximum of maxes
//
// Unset partials are the identity.
func Merge(a, b PartialAggregate) PartialAggregate {
	if !b.IsSet {
		return a
	}
	if !a.IsSet {
		return b
	}

	merged := PartialAggregate{
		Count: a.Count + b.Count,
		Sum:   a.Sum + b.Sum,
		Min:   a.Min,
		Max:   a.Max,
		IsSet: true,
	}
	if b.Min < merged.Min {
		merged.Min = b.Min
	}
	if b.Max > merged.Max {
		merged.Max = b.Max
	}
	return merged
}

