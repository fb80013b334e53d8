package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Pool runs Jobs on a fixed set of background workers.
type Pool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*Pool)(nil)

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 2,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 16),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for job := range p.ch {
					p.run(workerID, job)
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (p *Pool) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("job panicked", "worker_id", workerID, "job_id", job.ID, "panic", fmt.Sprint(r))
		}
	}()

	start := time.Now()
	job.Run(ctx)
	p.logger.Debug("job finished", "worker_id", workerID, "job_id", job.ID,
		"queued_for", start.Sub(job.SubmittedAt), "took", time.Since(start))
}

// Enqueue hands job to a worker. When the buffer is full it blocks until
// space frees up or ctx is done.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no Run func", job.ID)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return ErrQueueClosed
	}
	select {
	case p.ch <- job:
		p.logger.Debug("queued job", "job_id", job.ID, "trace_id", job.TraceID)
		return nil
	default:
	}

	p.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
	select {
	case p.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue hands job to a worker only if the buffer has room.
func (p *Pool) TryEnqueue(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %s has no Run func", job.ID)
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return ErrQueueClosed
	}
	select {
	case p.ch <- job:
		p.logger.Debug("queued job", "job_id", job.ID, "trace_id", job.TraceID)
		return nil
	default:
		p.logger.Warn("queue full, rejecting job", "job_id", job.ID)
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("queue drained, shutdown complete")
	}
}
