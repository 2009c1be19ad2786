// Package reduce runs per-partition reductions on a pluggable dispatcher and
// merges the partial results.
package reduce

import (
	"context"
	"fmt"
	"strings"
	"sync"

	csverrors "github.com/arkilian/csvreduce/internal/errors"
)

// Task is one unit of dispatched work.
type Task func() error

// Dispatcher runs a batch of tasks and returns once all of them finished.
// The first task error (in task order) is returned.
type Dispatcher interface {
	Run(ctx context.Context, tasks []Task) error
	Name() string
}

// Dispatcher names accepted by ParseDispatcher.
const (
	DispatchGoroutine = "goroutine"
	DispatchPool      = "pool"
	DispatchSerial    = "serial"
)

// GoroutineDispatcher starts one goroutine per task and joins them.
type GoroutineDispatcher struct{}

func (GoroutineDispatcher) Name() string { return DispatchGoroutine }

// Run implements Dispatcher.
func (GoroutineDispatcher) Run(ctx context.Context, tasks []Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, task Task) {
			defer wg.Done()
			errs[idx] = runTask(idx, task)
		}(i, task)
	}
	wg.Wait()

	return firstError(errs)
}

// PoolDispatcher runs tasks with at most Size of them in flight.
type PoolDispatcher struct {
	Size int
}

func (d PoolDispatcher) Name() string { return DispatchPool }

// Run implements Dispatcher. The context is only consulted before dispatch;
// tasks already waiting for a slot still run.
func (d PoolDispatcher) Run(ctx context.Context, tasks []Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	size := d.Size
	if size <= 0 {
		size = 4
	}

	errs := make([]error, len(tasks))
	sem := make(chan struct{}, size)
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, task Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			errs[idx] = runTask(idx, task)
		}(i, task)
	}
	wg.Wait()

	return firstError(errs)
}

// SerialDispatcher runs tasks in order on the calling goroutine.
type SerialDispatcher struct{}

func (SerialDispatcher) Name() string { return DispatchSerial }

// Run implements Dispatcher. It stops at the first failing task.
func (SerialDispatcher) Run(ctx context.Context, tasks []Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for i, task := range tasks {
		if err := runTask(i, task); err != nil {
			return err
		}
	}
	return nil
}

// ParseDispatcher returns the dispatcher for a configured name. An empty name
// selects the goroutine dispatcher.
func ParseDispatcher(name string, poolSize int) (Dispatcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DispatchGoroutine:
		return GoroutineDispatcher{}, nil
	case DispatchPool:
		return PoolDispatcher{Size: poolSize}, nil
	case DispatchSerial:
		return SerialDispatcher{}, nil
	default:
		return nil, csverrors.NewConfigError(fmt.Sprintf("unknown dispatcher %q", name), nil)
	}
}

// runTask executes one task, turning a panic into a reduce error.
func runTask(idx int, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = csverrors.NewReduceError(fmt.Sprintf("task %d panicked", idx), fmt.Errorf("%v", r))
		}
	}()
	return task()
}

func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
