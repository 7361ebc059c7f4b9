// Package worker runs fusion jobs pulled off the job queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2
	defaultMaxAttempts      = 3
	defaultBaseBackoff      = 200 * time.Millisecond
	defaultMaxBackoff       = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Job is what workers read off the queue.
type Job = model.FusionJob

// Processor runs one fusion job end to end.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, job Job) error

// Process implements Processor.
func (f ProcessorFunc) Process(ctx context.Context, job Job) error { return f(ctx, job) } //nolint:gocritic // hugeParam

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Worker processes jobs from a queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	processor Processor
	name      string

	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	// busy is shared with the owning pool; nil for standalone workers.
	busy *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

var _ Worker = (*InMemoryWorker)(nil)

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(queue Queue, processor Processor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       queue,
		processor:   processor,
		name:        "worker",
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("worker")
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.handle(ctx, job); err != nil {
				w.logger.Error(ctx, "fusion job failed",
					logger.String("job_id", job.JobID),
					logger.String("image_id", job.ImageID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) handle(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	if w.busy != nil {
		w.busy.Add(1)
		defer w.busy.Add(-1)
	}
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	var err error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		err = w.processor.Process(ctx, job)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || attempt == w.maxAttempts {
			break
		}

		metrics.RecordWorkerRetry()
		delay := w.backoff(attempt)
		w.logger.Warn(ctx, "retrying fusion job",
			logger.String("job_id", job.JobID),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.RecordWorkerError()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}

	metrics.RecordWorkerError()
	if IsPermanent(err) {
		metrics.RecordErrorByComponent("worker", "permanent")
	} else {
		metrics.RecordErrorByComponent("worker", "retries_exhausted")
	}
	return err
}

// backoff doubles from baseBackoff per attempt, capped at maxBackoff.
func (w *InMemoryWorker) backoff(attempt int) time.Duration {
	d := w.baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.maxBackoff {
			return w.maxBackoff
		}
	}
	return d
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	busy    atomic.Int64

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one uses a
// multiple of the CPU count. opts apply to every worker.
func NewPool(workerCount int, queue Queue, processor Processor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
	}
	probe := &InMemoryWorker{}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger
	if p.logger == nil {
		p.logger = logger.Get()
	}
	p.logger = p.logger.Named("worker-pool")

	for i := 0; i < workerCount; i++ {
		workerOpts := append(append([]Option{}, opts...),
			WithName("worker-"+strconv.Itoa(i)),
			withBusyCounter(&p.busy),
		)
		p.workers[i] = NewInMemoryWorker(queue, processor, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Busy returns the number of workers currently running a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Start starts all workers and the gauge updater.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.observe(ctx)
}

func (p *Pool) observe(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.allDone():
			return
		case <-ticker.C:
			busy := p.Busy()
			metrics.UpdateWorkerActiveCount(busy)
			metrics.UpdateWorkerIdleCount(len(p.workers) - busy)
		}
	}
}

func (p *Pool) allDone() <-chan struct{} {
	// workers exit together once the queue closes, so the last one is enough
	return p.workers[len(p.workers)-1].done
}

// Shutdown closes the queue and waits for workers to drain it. Workers still
// running when ctx (or the pool timeout) expires are told to stop.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			if err := w.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	metrics.UpdateWorkerIdleCount(0)
	return errors.Join(errs...)
}
