package types

// Ranked is one keyed numeric entry of a ranked query result,
// e.g. a country code and its population or growth rate.
type Ranked struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}
