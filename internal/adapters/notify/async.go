package notify

import (
	"context"
	"sync"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
)

const defaultAsyncBuffer = 256

// Async hands events to a background goroutine so publishers never wait on
// slow channels. Delivery errors are logged.
type Async struct {
	inner  Broadcaster
	events chan model.QueueEvent
	log    logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. buffer <= 0 uses a default.
func NewAsync(inner Broadcaster, buffer int, log logger.Logger) *Async {
	if buffer <= 0 {
		buffer = defaultAsyncBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	a := &Async{
		inner:  inner,
		events: make(chan model.QueueEvent, buffer),
		log:    log,
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	ctx := context.Background()
	for ev := range a.events {
		if err := a.inner.Publish(ctx, ev); err != nil {
			a.log.Warn(ctx, "queue event delivery failed",
				logger.String("queue_item_id", ev.QueueItemID),
				logger.String("status", string(ev.NewStatus)),
				logger.Error(err),
			)
		}
	}
}

// Publish enqueues ev without blocking.
func (a *Async) Publish(_ context.Context, ev model.QueueEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.events <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events and waits for queued ones to be delivered or ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
