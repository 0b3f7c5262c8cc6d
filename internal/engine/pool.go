package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"matchsim/internal/domain"
)

// Task is one unit of work run by the Pool.
type Task func(ctx context.Context)

// Pool runs tasks with at most `workers` of them in flight. Submit never
// blocks; tasks beyond the limit wait for a free slot, in no guaranteed order.
type Pool struct {
	semaphore chan struct{}
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	queued  atomic.Int64
	running atomic.Int64
}

// NewPool creates a pool bounded to workers concurrent tasks. Tasks receive a
// context derived from parent that is cancelled only if Shutdown gives up waiting.
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parent)
	return &Pool{
		semaphore: make(chan struct{}, workers),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Submit schedules task. It fails with ErrPoolClosed once Shutdown has begun.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return domain.ErrPoolClosed
	}

	p.wg.Add(1)
	p.queued.Add(1)
	go func() {
		defer p.wg.Done()

		// Tasks queued when the pool is cancelled still run, with a done ctx,
		// so matchers get the chance to settle their orders.
		p.semaphore <- struct{}{}        // Acquire
		defer func() { <-p.semaphore }() // Release

		p.queued.Add(-1)
		p.running.Add(1)
		defer p.running.Add(-1)

		task(p.ctx)
	}()
	return nil
}

// Shutdown stops accepting work and waits for queued and running tasks to
// finish. If ctx ends first, in-flight tasks are cancelled and Shutdown still
// waits for them to return before reporting ctx's error.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int64 { return p.queued.Load() }

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int64 { return p.running.Load() }
