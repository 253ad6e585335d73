package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Enqueued time.Time
}

// Handler processes a job. Errors are logged; jobs are never retried.
type Handler func(context.Context, Job) error

type QueueConfig struct {
	BufferSize int
	Logger     *zap.Logger
}

// Queue runs jobs one at a time, in submission order, on a single goroutine.
// Writers behind it therefore never overlap.
type Queue struct {
	name    string
	handler Handler
	logger  *zap.Logger

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	started bool
}

// NewQueue builds a queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:    name,
		handler: handler,
		logger:  cfg.Logger,
		jobs:    make(chan Job, cfg.BufferSize),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. Safe to call more than once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	go q.worker()
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name))
}

// Stop cancels the worker and waits for the job in flight to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	<-q.done
	q.logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue hands a job to the worker. It fails fast when the buffer is full
// instead of blocking the caller.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	default:
		return fmt.Errorf("queue %s is full", q.name)
	}
}

// Pending reports how many jobs wait behind the one in flight.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) worker() {
	defer close(q.done)
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.run(job)
		}
	}
}

func (q *Queue) run(job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", zap.String("queue", q.name), zap.String("job_id", job.ID), zap.Any("panic", r))
		}
	}()

	if err := q.handler(q.ctx, job); err != nil {
		q.logger.Error("job failed", zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Error(err))
		return
	}
	q.logger.Info("job finished", zap.String("queue", q.name), zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Duration("took", time.Since(start)))
}
