package device

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// TaskFunc is executed once per device serial.
type TaskFunc[T any] func(ctx context.Context, serial string) (T, error)

// Result is the outcome of a task for one device.
type Result[T any] struct {
	Serial string
	Value  T
	Err    error
}

// Manager runs device-scoped tasks with bounded concurrency.
type Manager[T any] struct {
	workerLimit int
}

// Option configures a Manager.
type Option[T any] func(*Manager[T])

// WithWorkerLimit sets the maximum number of concurrent workers.
func WithWorkerLimit[T any](limit int) Option[T] {
	return func(m *Manager[T]) {
		m.workerLimit = limit
	}
}

// NewManager creates a Manager.
func NewManager[T any](opts ...Option[T]) *Manager[T] {
	m := &Manager[T]{workerLimit: runtime.NumCPU()}
	for _, opt := range opts {
		opt(m)
	}
	if m.workerLimit <= 0 {
		m.workerLimit = runtime.NumCPU()
	}
	return m
}

// Run executes task for every serial. Results keep the order of serials.
// A failing task does not stop the others; serials not started before ctx
// is done get ctx's error.
func (m *Manager[T]) Run(ctx context.Context, serials []string, task TaskFunc[T]) []Result[T] {
	results := make([]Result[T], len(serials))

	var g errgroup.Group
	g.SetLimit(m.workerLimit)
	for i, serial := range serials {
		results[i].Serial = serial
		if err := ctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			results[i].Value, results[i].Err = task(ctx, serial)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
