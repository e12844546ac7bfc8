// Package simulator provides the dedicated worker pool that read-only
// transaction simulations run on. Simulations never share goroutines with
// the chain's write path, so a burst of calls cannot stall block production.
package simulator

import (
	"context"
	"errors"
	"sync"
)

// ErrShutdown is returned for work submitted after the pool shut down.
var ErrShutdown = errors.New("simulator pool is shut down")

// EventHandler defines a function that is called when different events
// occur inside the pool.
type EventHandler func(v string, args ...any)

// =============================================================================

// task is one unit of simulation work with its completion signal.
type task struct {
	ctx  context.Context
	fn   func(ctx context.Context)
	done chan struct{}
}

// Pool is a fixed-size set of workers executing simulation tasks.
type Pool struct {
	name     string
	ev       EventHandler
	tasks    chan task
	shutdown chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// New constructs a pool with the specified number of workers. The name is
// only used for event reporting.
func New(name string, workers int, ev EventHandler) (*Pool, error) {
	if workers <= 0 {
		return nil, errors.New("worker count must be positive")
	}
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	p := Pool{
		name:     name,
		ev:       ev,
		tasks:    make(chan task),
		shutdown: make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer p.wg.Done()
			p.ev("simulator: %s: worker %d: started", p.name, i)

			for {
				select {
				case <-p.shutdown:
					p.ev("simulator: %s: worker %d: stopped", p.name, i)
					return
				case t := <-p.tasks:
					p.execute(t)
				}
			}
		}()
	}

	return &p, nil
}

// Shutdown stops the workers and waits for in-flight tasks to drain.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}

// Run submits fn to the pool and blocks until it completes or the context is
// cancelled. A nil return guarantees fn has run. On cancellation the task is
// abandoned: a worker still runs it and fn observes the cancelled context.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context)) error {
	t := task{
		ctx:  ctx,
		fn:   fn,
		done: make(chan struct{}),
	}

	select {
	case p.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.shutdown:
		return ErrShutdown
	}

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs one task. The function always runs, even when the task's
// context has expired: skipping here would let Run report success for work
// that never happened. The context is passed through so the work itself can
// notice a caller that has gone away.
func (p *Pool) execute(t task) {
	defer close(t.done)

	t.fn(t.ctx)
}
