// Package query implements the parallel query operations shared by all
// datasets: exact-match filter, grouped maximum, threshold rank, sum/count
// and derived metrics.
package query

import (
	"context"
	"time"

	"github.com/arkilian/csvreduce/internal/logger"
	"github.com/arkilian/csvreduce/internal/partition"
	"github.com/arkilian/csvreduce/internal/query/aggregator"
	"github.com/arkilian/csvreduce/internal/reduce"
	"github.com/arkilian/csvreduce/pkg/types"
	"github.com/google/uuid"
)

// Kind names a query a dataset analyzer can run.
type Kind string

// Params carries the arguments of every query kind. Each kind reads only the
// fields it needs.
type Params struct {
	Date      string  `json:"date,omitempty" validate:"omitempty,len=10"`
	Threshold float64 `json:"threshold,omitempty"`
	Year      int     `json:"year,omitempty" validate:"omitempty,min=1900,max=2100"`
	StartYear int     `json:"start_year,omitempty" validate:"omitempty,min=1900,max=2100"`
	EndYear   int     `json:"end_year,omitempty" validate:"omitempty,min=1900,max=2100"`
	N         int     `json:"n,omitempty" validate:"omitempty,min=0"`
	Code      string  `json:"code,omitempty"`
	Name      string  `json:"name,omitempty"`
}

// Options controls how one query call is executed.
type Options struct {
	// Workers overrides the worker count (0 = number of CPUs)
	Workers int

	// MinWorkers is the floor applied to the resolved worker count
	MinWorkers int

	// Dispatcher runs the per-partition tasks (nil = one goroutine per task)
	Dispatcher reduce.Dispatcher

	// Serial forces a single partition on the calling goroutine
	Serial bool
}

// Plan returns the partition ranges and dispatcher for n rows.
func (o Options) Plan(n int) ([]partition.Range, reduce.Dispatcher) {
	if o.Serial {
		return partition.Split(n, 1), reduce.SerialDispatcher{}
	}
	d := o.Dispatcher
	if d == nil {
		d = reduce.GoroutineDispatcher{}
	}
	return partition.Split(n, partition.WorkerCount(o.Workers, o.MinWorkers)), d
}

// Stats contains query execution metrics.
type Stats struct {
	Partitions  int           `json:"partitions"`
	RowsScanned int64         `json:"rows_scanned"`
	Dispatcher  string        `json:"dispatcher"`
	KeyPruned   bool          `json:"key_pruned,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Result holds the output of one query. Only the fields relevant to the
// query kind are set. Rows are copies and the result is never mutated after
// it is returned.
type Result struct {
	QueryID   string                      `json:"query_id"`
	Kind      Kind                        `json:"kind"`
	Rows      []interface{}               `json:"rows,omitempty"`
	Keys      []string                    `json:"keys,omitempty"`
	Ranked    []types.Ranked              `json:"ranked,omitempty"`
	Scalar    float64                     `json:"scalar"`
	Count     int64                       `json:"count"`
	Aggregate *aggregator.PartialAggregate `json:"aggregate,omitempty"`
	Details   map[string]interface{}      `json:"details,omitempty"`
	Stats     Stats                       `json:"stats"`
}

// NewResult creates an empty result. The query ID is taken from ctx when the
// caller assigned one, otherwise a fresh one is generated.
func NewResult(ctx context.Context, kind Kind) *Result {
	id, _ := ctx.Value(logger.QueryIDKey).(string)
	if id == "" {
		id = uuid.New().String()
	}
	return &Result{
		QueryID: id,
		Kind:    kind,
	}
}

// Runner is implemented by every dataset analyzer.
type Runner interface {
	// Name identifies the dataset
	Name() string

	// Kinds lists the query kinds the analyzer accepts
	Kinds() []Kind

	// RunQuery runs a query with the analyzer's default options
	RunQuery(ctx context.Context, kind Kind, params Params) (*Result, error)

	// RunQueryWith runs a query with explicit execution options
	RunQueryWith(ctx context.Context, kind Kind, params Params, opts Options) (*Result, error)

	// TableSize returns the number of loaded rows
	TableSize() int
}
