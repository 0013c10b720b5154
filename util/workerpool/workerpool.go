package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrPoolStopped is returned for tasks submitted to, or still queued in, a stopped pool.
var ErrPoolStopped = errors.New("worker pool stopped")

// Task represents a unit of work to be executed by the worker pool.
// It receives the submitter's context, not the pool's.
type Task func(ctx context.Context) error

// WorkerPool is a fixed-size pool of goroutines that execute tasks.
// At most Size() tasks run at any moment; the rest wait in a FIFO queue.
type WorkerPool struct {
	numWorkers int
	tasks      chan taskWrapper
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	startOnce  sync.Once
	busy       atomic.Int32
}

// taskWrapper wraps a task with its submitter's context and result channel
type taskWrapper struct {
	ctx    context.Context
	task   Task
	result chan error
}

// New creates a new worker pool with the specified number of workers.
// Cancelling ctx stops the pool.
func New(ctx context.Context, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		numWorkers: numWorkers,
		// Queue depth of numWorkers*2 absorbs short bursts without blocking submitters
		tasks:  make(chan taskWrapper, numWorkers*2),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the worker goroutines. Calling it more than once is a no-op.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		for i := 0; i < wp.numWorkers; i++ {
			wp.wg.Add(1)
			go wp.worker()
		}
	})
}

// worker is the main loop for each worker goroutine
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case <-wp.ctx.Done():
			return
		case tw := <-wp.tasks:
			// The submitter may have given up while the task sat in the queue
			if err := tw.ctx.Err(); err != nil {
				tw.result <- err
				continue
			}
			wp.busy.Add(1)
			err := tw.task(tw.ctx)
			wp.busy.Add(-1)
			tw.result <- err
		}
	}
}

// Submit queues task and returns a channel that receives its result exactly once,
// unless the pool stops before the task is picked up.
// Submit blocks while the queue is full, until ctx or the pool ends.
func (wp *WorkerPool) Submit(ctx context.Context, task Task) <-chan error {
	result := make(chan error, 1)

	if wp.ctx.Err() != nil {
		result <- ErrPoolStopped
		return result
	}

	tw := taskWrapper{ctx: ctx, task: task, result: result}
	select {
	case wp.tasks <- tw:
	case <-ctx.Done():
		result <- ctx.Err()
	case <-wp.ctx.Done():
		result <- ErrPoolStopped
	}
	return result
}

// Do runs task on the pool and waits for it.
// It returns early with ctx.Err() if ctx ends, or ErrPoolStopped if the pool stops.
func (wp *WorkerPool) Do(ctx context.Context, task Task) error {
	result := wp.Submit(ctx, task)
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		// a worker may have finished the task right before the pool stopped
		select {
		case err := <-result:
			return err
		default:
			return ErrPoolStopped
		}
	}
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Busy returns the number of tasks currently executing.
func (wp *WorkerPool) Busy() int {
	return int(wp.busy.Load())
}

// Stop shuts the pool down and waits for running tasks to return.
// Tasks still queued are abandoned and their waiters get ErrPoolStopped.
func (wp *WorkerPool) Stop() {
	wp.cancel()
	wp.wg.Wait()
}
