package installer

import (
	"context"
	"errors"
	"sync"
)

// ErrMainThreadClosed is returned when work is submitted after Close.
var ErrMainThreadClosed = errors.New("main thread closed")

// MainThread runs submitted functions one at a time on a single goroutine.
// Callback registration and confirmation launches go through it.
type MainThread struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewMainThread starts the executor goroutine.
func NewMainThread() *MainThread {
	m := &MainThread{
		tasks: make(chan func(), 16),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *MainThread) loop() {
	defer close(m.done)
	for {
		select {
		case fn := <-m.tasks:
			fn()
		case <-m.quit:
			return
		}
	}
}

// Post queues fn without waiting for it.
func (m *MainThread) Post(fn func()) error {
	select {
	case <-m.quit:
		return ErrMainThreadClosed
	default:
	}
	select {
	case m.tasks <- fn:
		return nil
	case <-m.quit:
		return ErrMainThreadClosed
	}
}

// Run executes fn on the executor and waits for it to return.
func (m *MainThread) Run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case m.tasks <- task:
	case <-m.quit:
		return ErrMainThreadClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-m.quit:
		return ErrMainThreadClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the executor. Queued tasks that have not started are dropped.
func (m *MainThread) Close() {
	m.once.Do(func() { close(m.quit) })
	<-m.done
}
