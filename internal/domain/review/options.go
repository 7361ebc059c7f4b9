package review

import (
	"time"

	"github.com/okian/finishline/pkg/logger"
)

// DefaultLease is how long a claim holds an item for one reviewer.
const DefaultLease = 5 * time.Minute

// Option applies a configuration option to the claim manager and decision handler.
type Option func(*options)

type options struct {
	now       func() time.Time
	lease     time.Duration
	log       logger.Logger
	publisher Publisher
}

func defaultOptions() options {
	return options{
		now:       time.Now,
		lease:     DefaultLease,
		log:       logger.Nop(),
		publisher: nopPublisher{},
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLease sets the claim lease duration.
func WithLease(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lease = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithPublisher sets where status change events are sent.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}
