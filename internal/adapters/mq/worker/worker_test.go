package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	queue "github.com/okian/finishline/internal/adapters/mq/queue"
	worker "github.com/okian/finishline/internal/adapters/mq/worker"
	model "github.com/okian/finishline/internal/domain/model"
	logging "github.com/okian/finishline/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs chan model.FusionJob
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan model.FusionJob, 10)}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan model.FusionJob { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(id string) {
	mq.jobs <- model.FusionJob{JobID: id, ImageID: "img-" + id, EventID: "berlin-2026", ImageRef: id + ".jpg"}
}

// mockProcessor fails each job id a configured number of times before succeeding.
type mockProcessor struct {
	mu        sync.Mutex
	failures  map[string]int
	permanent map[string]bool
	calls     map[string]int
	done      map[string]bool
	block     chan struct{}
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{
		failures:  make(map[string]int),
		permanent: make(map[string]bool),
		calls:     make(map[string]int),
		done:      make(map[string]bool),
	}
}

func (mp *mockProcessor) Process(ctx context.Context, job model.FusionJob) error {
	if mp.block != nil {
		select {
		case <-mp.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.calls[job.JobID]++
	if mp.permanent[job.JobID] {
		return worker.Permanent(errors.New("image rejected by detector"))
	}
	if mp.failures[job.JobID] > 0 {
		mp.failures[job.JobID]--
		return errors.New("detection service unavailable")
	}
	mp.done[job.JobID] = true
	return nil
}

func (mp *mockProcessor) callCount(id string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.calls[id]
}

func (mp *mockProcessor) completed(id string) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.done[id]
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func fastRetry() worker.Option {
	return worker.WithRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading from a queue", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		proc := newMockProcessor()
		w := worker.NewInMemoryWorker(q, proc, worker.WithName("test-worker"), fastRetry())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job succeeds first time", func() {
			q.add("j1")

			convey.Convey("Then it is processed once", func() {
				convey.So(waitFor(func() bool { return proc.completed("j1") }), convey.ShouldBeTrue)
				convey.So(proc.callCount("j1"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When a job fails transiently", func() {
			proc.mu.Lock()
			proc.failures["j2"] = 2
			proc.mu.Unlock()
			q.add("j2")

			convey.Convey("Then it is retried until it succeeds", func() {
				convey.So(waitFor(func() bool { return proc.completed("j2") }), convey.ShouldBeTrue)
				convey.So(proc.callCount("j2"), convey.ShouldEqual, 3)
			})
		})

		convey.Convey("When a job keeps failing", func() {
			proc.mu.Lock()
			proc.failures["j3"] = 10
			proc.mu.Unlock()
			q.add("j3")
			q.add("j4")

			convey.Convey("Then the attempt budget is respected and the worker moves on", func() {
				convey.So(waitFor(func() bool { return proc.completed("j4") }), convey.ShouldBeTrue)
				convey.So(proc.callCount("j3"), convey.ShouldEqual, 3)
				convey.So(proc.completed("j3"), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a job fails permanently", func() {
			proc.mu.Lock()
			proc.permanent["j5"] = true
			proc.mu.Unlock()
			q.add("j5")
			q.add("j6")

			convey.Convey("Then it is not retried", func() {
				convey.So(waitFor(func() bool { return proc.completed("j6") }), convey.ShouldBeTrue)
				convey.So(proc.callCount("j5"), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			err := w.Shutdown(context.Background())

			convey.Convey("Then Run returns", func() {
				convey.So(err, convey.ShouldBeNil)
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPermanent(t *testing.T) {
	convey.Convey("Given errors marked permanent", t, func() {
		base := errors.New("bad image")
		err := fmt.Errorf("job j1: %w", worker.Permanent(base))

		convey.So(worker.IsPermanent(err), convey.ShouldBeTrue)
		convey.So(errors.Is(err, base), convey.ShouldBeTrue)
		convey.So(worker.IsPermanent(base), convey.ShouldBeFalse)
		convey.So(worker.Permanent(nil), convey.ShouldBeNil)
	})
}

func TestWorkerRetryCancelled(t *testing.T) {
	convey.Convey("Given a worker with a long backoff", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		proc := newMockProcessor()
		proc.failures["slow"] = 10
		w := worker.NewInMemoryWorker(q, proc, worker.WithRetry(5, time.Hour, time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		q.add("slow")

		convey.Convey("When the context is cancelled during backoff", func() {
			convey.So(waitFor(func() bool { return proc.callCount("slow") == 1 }), convey.ShouldBeTrue)
			cancel()

			convey.Convey("Then the worker stops without retrying", func() {
				select {
				case <-w.Done():
				case <-time.After(time.Second):
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
				convey.So(proc.callCount("slow"), convey.ShouldEqual, 1)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a pool over the in-memory queue", t, func() {
		_ = logging.Init()
		q := queue.NewInMemoryQueue(queue.WithCapacity(100))
		var processed atomic.Int64
		proc := worker.ProcessorFunc(func(ctx context.Context, job model.FusionJob) error {
			processed.Add(1)
			return nil
		})
		pool := worker.NewPool(4, q, proc, worker.WithLogger(logging.Nop()), fastRetry())
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.So(pool.Size(), convey.ShouldEqual, 4)
		pool.Start(ctx)

		convey.Convey("When jobs are submitted and the pool shuts down", func() {
			for i := 0; i < 50; i++ {
				convey.So(q.Enqueue(ctx, model.FusionJob{JobID: fmt.Sprintf("j%d", i)}), convey.ShouldBeNil)
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued job is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(processed.Load(), convey.ShouldEqual, 50)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(pool.Busy(), convey.ShouldEqual, 0)
			})
		})
	})

	convey.Convey("Given a pool with a non-positive size", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, newMockQueue(), newMockProcessor())
		convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
	})
}

func TestWorkerPoolBusy(t *testing.T) {
	convey.Convey("Given a pool whose processor blocks", t, func() {
		_ = logging.Init()
		q := newMockQueue()
		proc := newMockProcessor()
		proc.block = make(chan struct{})
		pool := worker.NewPool(2, q, proc, worker.WithLogger(logging.Nop()))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		q.add("a")
		q.add("b")

		convey.Convey("Then both workers report busy until released", func() {
			convey.So(waitFor(func() bool { return pool.Busy() == 2 }), convey.ShouldBeTrue)
			close(proc.block)
			convey.So(waitFor(func() bool { return pool.Busy() == 0 }), convey.ShouldBeTrue)
			convey.So(proc.completed("a") && proc.completed("b"), convey.ShouldBeTrue)
		})
	})
}
