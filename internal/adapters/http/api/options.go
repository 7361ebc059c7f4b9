package api

import (
	"net/http"

	"github.com/okian/finishline/pkg/logger"
)

// Paging defaults for GET /queue.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Option applies a configuration option to the Server.
type Option func(*options)

type options struct {
	defaultLimit int
	maxLimit     int
	stream       http.Handler
	log          logger.Logger
}

func defaultOptions() options {
	return options{
		defaultLimit: DefaultPageLimit,
		maxLimit:     MaxPageLimit,
		log:          logger.Nop(),
	}
}

// WithPageLimits sets the default and maximum page size. Invalid pairs are ignored.
func WithPageLimits(def, limit int) Option {
	return func(o *options) {
		if def > 0 && limit >= def {
			o.defaultLimit = def
			o.maxLimit = limit
		}
	}
}

// WithQueueStream serves h on GET /ws/queue for viewers.
func WithQueueStream(h http.Handler) Option {
	return func(o *options) {
		o.stream = h
	}
}

// WithLogger sets the logger for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}
