package signaling

import (
	"context"
	"sync"

	"github.com/pion/logging"
)

// Executor runs submitted tasks one at a time, in submission order, on a
// single goroutine. The queue is unbounded so Submit never blocks, which
// lets transport callbacks re-enter it from native threads.
type Executor struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	log  logging.LeveledLogger
}

// NewExecutor starts the worker goroutine.
func NewExecutor(log logging.LeveledLogger) *Executor {
	e := &Executor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log,
	}
	go e.loop()
	return e
}

// Submit queues task. It returns false once Shutdown has been called.
func (e *Executor) Submit(task func()) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.queue = append(e.queue, task)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync waits until every task submitted before the call has run.
func (e *Executor) Sync(ctx context.Context) error {
	reached := make(chan struct{})
	if !e.Submit(func() { close(reached) }) {
		return ErrClientClosed
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks, lets the queued ones finish and waits for
// the worker to exit. It must not be called from a task.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()
	<-e.done
}

func (e *Executor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 {
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.mu.Unlock()
			<-e.wake
			e.mu.Lock()
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()

		e.run(task)
	}
}

func (e *Executor) run(task func()) {
	defer func() {
		if r := recover(); r != nil && e.log != nil {
			e.log.Errorf("task panicked: %v", r)
		}
	}()
	task()
}
