package service

import (
	"time"

	"github.com/okian/finishline/internal/adapters/schedule"
	"github.com/okian/finishline/internal/domain/fusion"
	"github.com/okian/finishline/internal/domain/review"
	"github.com/okian/finishline/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of fusion workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued fusion jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many job ids are remembered for redelivery checks.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithThresholds sets the fusion thresholds used for every pass.
func WithThresholds(th fusion.Thresholds) Option {
	return func(s *Service) {
		s.thresholds = th
	}
}

// WithCollection sets the default face gallery.
func WithCollection(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithClaimLease sets how long a claim holds an item.
func WithClaimLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lease = d
		}
	}
}

// WithRetry sets the per-job attempt budget and backoff bounds.
func WithRetry(attempts int, base, ceiling time.Duration) Option {
	return func(s *Service) {
		s.retryAttempts = attempts
		s.retryBase = base
		s.retryMax = ceiling
	}
}

// WithMaintenance enables the claim sweep and retention purge.
func WithMaintenance(cfg schedule.Config) Option {
	return func(s *Service) {
		s.maintenance = &cfg
	}
}

// WithPublisher sets where queue status changes are broadcast.
func WithPublisher(p review.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
