// Package worker runs background jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/fiapx/fiapx-sensitivity-service/internal/infra/metrics"
	"go.uber.org/zap"
)

var (
	ErrPoolFull    = errors.New("worker pool queue is full")
	ErrPoolClosed  = errors.New("worker pool is closed")
	ErrNotStarted  = errors.New("worker pool has not been started")
	errTaskDropped = errors.New("task dropped before it started")
)

// Func is the unit of work. It should return promptly once ctx is cancelled.
type Func func(ctx context.Context) error

// Task is the handle returned by Submit. Submitters are free to ignore it;
// it exists so operators can wait on, inspect or cancel a running job.
type Task struct {
	Name string

	ctx    context.Context
	cancel context.CancelFunc
	fn     Func
	done   chan struct{}
	err    error
}

// Done is closed once the task has finished or was dropped at shutdown.
func (t *Task) Done() <-chan struct{} { return t.done }

// Err is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) Cancel() { t.cancel() }

func (t *Task) finish(err error) {
	t.err = err
	t.cancel()
	close(t.done)
}

type Pool struct {
	workers int
	queue   chan *Task
	logger  *zap.Logger

	mu      sync.RWMutex
	baseCtx context.Context
	closed  bool
	wg      sync.WaitGroup
}

func NewPool(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers: workers,
		queue:   make(chan *Task, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. Every task context derives from ctx, so
// cancelling it cancels queued and running tasks alike.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.baseCtx = ctx
	p.mu.Unlock()

	p.logger.Info("starting worker pool", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.queue)))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Submit enqueues fn without waiting for it to run. It fails fast with
// ErrPoolFull instead of blocking the caller when every slot is taken.
func (p *Pool) Submit(name string, fn Func) (*Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.baseCtx == nil {
		return nil, ErrNotStarted
	}

	ctx, cancel := context.WithCancel(p.baseCtx)
	task := &Task{Name: name, ctx: ctx, cancel: cancel, fn: fn, done: make(chan struct{})}

	select {
	case p.queue <- task:
		metrics.QueuedTasks.Inc()
		return task, nil
	default:
		cancel()
		return nil, ErrPoolFull
	}
}

// Close stops accepting tasks, lets workers drain the queue and waits for them.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))

	for task := range p.queue {
		metrics.QueuedTasks.Dec()
		p.run(task, log)
	}
	log.Debug("worker stopped")
}

func (p *Pool) run(task *Task, log *zap.Logger) {
	if err := task.ctx.Err(); err != nil {
		task.finish(errors.Join(errTaskDropped, err))
		return
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("task panicked", zap.String("task", task.Name), zap.Any("panic", r))
				err = errors.New("task panicked")
			}
		}()
		err = task.fn(task.ctx)
	}()

	if err != nil {
		log.Warn("task failed", zap.String("task", task.Name), zap.Error(err))
	}
	task.finish(err)
}
