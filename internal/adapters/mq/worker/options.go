package worker

import (
	"sync/atomic"
	"time"

	"github.com/okian/finishline/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetry sets the attempt budget per job and the backoff bounds.
// Non-positive values keep the defaults.
func WithRetry(maxAttempts int, base, ceiling time.Duration) Option {
	return func(w *InMemoryWorker) {
		if maxAttempts > 0 {
			w.maxAttempts = maxAttempts
		}
		if base > 0 {
			w.baseBackoff = base
		}
		if ceiling > 0 {
			w.maxBackoff = ceiling
		}
	}
}

func withBusyCounter(c *atomic.Int64) Option {
	return func(w *InMemoryWorker) { w.busy = c }
}
