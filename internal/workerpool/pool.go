// Package workerpool implements the fixed-size worker pool described in
// spec.md §4.2: N goroutines consuming a FIFO of jobs, non-blocking
// submission, graceful drain on shutdown. This is the idiomatic Go
// rendering of original_source/src/thrd_pool.c's mutex+condvar+dlist
// queue; a buffered channel plays the role of the condvar-guarded job
// list and sync.WaitGroup plays the role of the shutdown join.
package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rlapz/kvrt-bot-sub000/internal/bot"
	"github.com/rlapz/kvrt-bot-sub000/internal/metrics"
)

// Job is a unit of work submitted to the pool. It receives a context
// (cancelled at process shutdown) and the caller-owned udata value, and
// returns nothing: per-job errors are the handler's own responsibility to
// log, matching the original's "fn takes (ctx, udata), returns nothing"
// contract.
type Job func(ctx context.Context, udata any)

// Pool is a fixed-size worker pool. The zero value is not usable; call
// New.
type Pool struct {
	jobs     chan queuedJob
	wg       sync.WaitGroup
	closing  atomic.Bool
	cancel   context.CancelFunc
	rootCtx  context.Context
	size     int
	metrics  *metrics.Registry
}

type queuedJob struct {
	fn    Job
	udata any
}

// New starts size workers draining a queue capacity deep job queue. size
// and capacity both come from config (WorkerThreadsNum, WorkerJobsMax).
func New(size, capacity int, m *metrics.Registry) *Pool {
	if size <= 0 {
		size = 4
	}
	if capacity <= 0 {
		capacity = 32
	}
	if m == nil {
		m = metrics.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:    make(chan queuedJob, capacity),
		cancel:  cancel,
		rootCtx: ctx,
		size:    size,
		metrics: m,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for qj := range p.jobs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("workerpool: job panicked", "worker", id, "panic", r)
				}
			}()
			qj.fn(p.rootCtx, qj.udata)
		}()
	}
}

// Submit enqueues a job without blocking. It fails with ErrPoolClosed once
// Shutdown has been called, or ErrPoolFull when the queue is at capacity
// (the Go equivalent of the original's out-of-memory submission failure);
// in both cases the caller must dispose any owned arguments in udata.
func (p *Pool) Submit(fn Job, udata any) error {
	if p.closing.Load() {
		p.metrics.JobsRejected.Inc()
		return bot.ErrPoolClosed
	}
	select {
	case p.jobs <- queuedJob{fn: fn, udata: udata}:
		p.metrics.JobsSubmitted.Inc()
		return nil
	default:
		p.metrics.JobsRejected.Inc()
		return bot.ErrPoolFull
	}
}

// Shutdown stops accepting new jobs, lets in-flight and already-queued
// jobs drain, then returns once every worker has exited. It cancels the
// context passed to running jobs only after all workers have returned.
func (p *Pool) Shutdown() {
	if !p.closing.CompareAndSwap(false, true) {
		return
	}
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}

// Size reports the configured worker count.
func (p *Pool) Size() int { return p.size }
