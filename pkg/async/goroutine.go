package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/ruckstats/pkg/observability"
)

// ErrPoolClosed is returned when submitting to a pool that was shut down
var ErrPoolClosed = errors.New("worker pool shut down")

// Task is a unit of background work
type Task func(context.Context) error

// SafeGo executes fn in a goroutine with a timeout derived from parentCtx.
// Panics are recovered and errors are logged; neither reaches the caller.
//
//	async.SafeGo(ctx, logger, time.Minute, "precompute", func(ctx context.Context) error {
//		return repo.PrecomputeAnalytics(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn Task) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Warn("background task failed")
		}
	}()
}

// PoolOptions configures a WorkerPool
type PoolOptions struct {
	// Workers is the number of concurrent workers; defaults to 1, which
	// makes the pool run tasks in submission order.
	Workers int
	// QueueSize is the task buffer; defaults to Workers*16.
	QueueSize int
	// Timeout bounds each task; zero means no per-task timeout.
	Timeout time.Duration
	Name    string
	Logger  *observability.Logger
}

// WorkerPool runs submitted tasks on a fixed set of workers. Every queued
// task runs, even during shutdown: once Shutdown times out the tasks see a
// cancelled context and are expected to return promptly.
type WorkerPool struct {
	name    string
	timeout time.Duration
	logger  *observability.Logger

	queue  chan Task
	doneCh chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	closed       bool
	shutdownOnce sync.Once
}

// NewWorkerPool starts a worker pool bound to ctx
func NewWorkerPool(ctx context.Context, opts PoolOptions) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Workers * 16
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}
	if opts.Name == "" {
		opts.Name = "worker pool"
	}

	ctx, cancel := context.WithCancel(ctx)
	pool := &WorkerPool{
		name:    opts.Name,
		timeout: opts.Timeout,
		logger:  opts.Logger.WithField("pool", opts.Name),
		queue:   make(chan Task, opts.QueueSize),
		doneCh:  make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues task, blocking while the queue is full. It fails with
// ErrPoolClosed after Shutdown or with ctx's error if ctx ends first.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits up to timeout for the queue to
// drain. On timeout the remaining tasks run with a cancelled context. A
// timeout <= 0 waits for the drain without limit.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		if timeout <= 0 {
			<-p.doneCh
			p.cancel()
			return
		}

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-timer.C:
			p.cancel()
			<-p.doneCh
			shutdownErr = fmt.Errorf("%s shutdown timed out after %v", p.name, timeout)
		}
	})

	return shutdownErr
}

func (p *WorkerPool) worker() {
	for task := range p.queue {
		p.run(task)
	}
}

func (p *WorkerPool) run(task Task) {
	ctx := p.ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = observability.PanicError(r)
				p.logger.WithField("stack", string(debug.Stack())).WithError(err).Error("PANIC recovered in task")
			}
		}()
		err = task(ctx)
	}()

	if err != nil {
		p.logger.WithError(err).Warn("task failed")
	}
}
