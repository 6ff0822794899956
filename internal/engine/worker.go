package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// PoolMetrics tracks worker pool operational metrics.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
	Rejected  int64 `json:"rejected"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// Job is a unit of render work. A non-nil error counts as a failure in the
// pool metrics only; reporting it is the job's concern.
type Job func(ctx context.Context) error

// PoolOption configures a WorkerPool.
type PoolOption func(*WorkerPool)

// WithPoolLogger sets the logger used for recovered panics and rejected
// dispatches.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *WorkerPool) { p.logger = logger }
}

// WithPanicHandler registers a callback for panics recovered from jobs.
func WithPanicHandler(fn func(recovered any)) PoolOption {
	return func(p *WorkerPool) { p.onPanic = fn }
}

// WorkerPool is a bounded goroutine pool for render jobs.
type WorkerPool struct {
	sem     chan struct{}
	wg      sync.WaitGroup
	metrics PoolMetrics
	mu      sync.Mutex
	done    chan struct{}
	closed  bool
	logger  *slog.Logger
	onPanic func(any)
}

// NewWorkerPool creates a pool with the given max concurrency.
func NewWorkerPool(size int, opts ...PoolOption) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	p := &WorkerPool{
		sem:    make(chan struct{}, size),
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Size returns the pool's max concurrency.
func (p *WorkerPool) Size() int {
	return cap(p.sem)
}

// Submit runs job on the pool. It blocks while the pool is at capacity and
// respects context cancellation while waiting. Returns ErrPoolShutdown if
// the pool has been shut down.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return ErrPoolShutdown
	}
	p.mu.Unlock()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return ctx.Err()
	case <-p.done:
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return ErrPoolShutdown
	}

	// Shutdown may have raced the slot acquisition. wg.Add stays under the
	// lock so Shutdown's Wait cannot miss it.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.sem
		atomic.AddInt64(&p.metrics.Rejected, 1)
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	atomic.AddInt64(&p.metrics.Active, 1)
	p.mu.Unlock()

	go p.run(ctx, job)
	return nil
}

// Dispatch hands job to the pool without blocking the caller. If the pool
// rejects it, onReject is called with the reason: directly when the pool
// is already shut down, otherwise from a pool-owned goroutine.
func (p *WorkerPool) Dispatch(ctx context.Context, job Job, onReject func(error)) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		atomic.AddInt64(&p.metrics.Rejected, 1)
		if onReject != nil {
			onReject(ErrPoolShutdown)
		}
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.Submit(ctx, job); err != nil {
			p.logger.Debug("render job rejected", slog.String("error", err.Error()))
			if onReject != nil {
				onReject(err)
			}
		}
	}()
}

func (p *WorkerPool) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.metrics.Panics, 1)
			atomic.AddInt64(&p.metrics.Failed, 1)
			p.logger.Error("render job panicked",
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
		atomic.AddInt64(&p.metrics.Active, -1)
		<-p.sem
		p.wg.Done()
	}()

	if err := job(ctx); err != nil {
		atomic.AddInt64(&p.metrics.Failed, 1)
		return
	}
	atomic.AddInt64(&p.metrics.Completed, 1)
}

// Wait blocks until all submitted and dispatched work completes.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// Shutdown stops accepting work and waits for active jobs to finish.
// Dispatched jobs still waiting for a slot are rejected.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the current pool metrics.
func (p *WorkerPool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    atomic.LoadInt64(&p.metrics.Active),
		Completed: atomic.LoadInt64(&p.metrics.Completed),
		Failed:    atomic.LoadInt64(&p.metrics.Failed),
		Panics:    atomic.LoadInt64(&p.metrics.Panics),
		Rejected:  atomic.LoadInt64(&p.metrics.Rejected),
	}
}
