// Package schedule runs periodic maintenance over the validation queue.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// ErrInvalidSchedule is returned for an unparsable cron expression.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Maintenance is the store surface the sweeper needs.
type Maintenance interface {
	ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error)
	PurgeResolved(ctx context.Context, cutoff time.Time) (int, error)
	CountByStatus(ctx context.Context) (map[model.QueueStatus]int, error)
}

var _ Maintenance = (repository.QueueStore)(nil)

// Config holds sweeper schedules. Empty schedules disable the job.
type Config struct {
	ClaimSweep string        // e.g. "@every 30s"
	Retention  string        // e.g. "0 3 * * *"
	RetainFor  time.Duration // resolved items older than this are purged; 0 disables purge
}

// Sweeper releases expired claims and purges old resolved items on cron schedules.
type Sweeper struct {
	store Maintenance
	cfg   Config
	cron  *cron.Cron
	now   func() time.Time
	log   logger.Logger

	mu      sync.Mutex
	started bool
}

// Option applies a configuration option to the Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec parses. Empty is valid (disabled).
func ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	return nil
}

// NewSweeper registers the configured jobs. It does not start them.
func NewSweeper(store Maintenance, cfg Config, opts ...Option) (*Sweeper, error) {
	s := &Sweeper{
		store: store,
		cfg:   cfg,
		cron:  cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if spec := strings.TrimSpace(cfg.ClaimSweep); spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { _, _ = s.ReleaseExpired(context.Background()) }); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
		}
	}
	if spec := strings.TrimSpace(cfg.Retention); spec != "" && cfg.RetainFor > 0 {
		if _, err := s.cron.AddFunc(spec, func() { _, _ = s.Purge(context.Background()) }); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
		}
	}
	return s, nil
}

// Jobs returns the number of scheduled jobs.
func (s *Sweeper) Jobs() int { return len(s.cron.Entries()) }

// Start runs the scheduler in the background.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReleaseExpired returns lapsed claims to PENDING and refreshes queue gauges.
func (s *Sweeper) ReleaseExpired(ctx context.Context) (int, error) {
	n, err := s.store.ReleaseExpiredClaims(ctx, s.now().UTC())
	if err != nil {
		metrics.RecordErrorByComponent("schedule", "release_claims")
		s.log.Error(ctx, "releasing expired claims failed", logger.Error(err))
		return 0, err
	}
	metrics.RecordClaimsReleased(n)
	if n > 0 {
		s.log.Info(ctx, "released expired claims", logger.Int("count", n))
	}
	s.refreshGauges(ctx)
	return n, nil
}

// Purge deletes resolved items older than the retention window.
func (s *Sweeper) Purge(ctx context.Context) (int, error) {
	if s.cfg.RetainFor <= 0 {
		return 0, nil
	}
	cutoff := s.now().UTC().Add(-s.cfg.RetainFor)
	n, err := s.store.PurgeResolved(ctx, cutoff)
	if err != nil {
		metrics.RecordErrorByComponent("schedule", "purge")
		s.log.Error(ctx, "purging resolved items failed", logger.Error(err))
		return 0, err
	}
	metrics.RecordItemsPurged(n)
	s.log.Info(ctx, "purged resolved queue items",
		logger.Int("count", n),
		logger.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	s.refreshGauges(ctx)
	return n, nil
}

func (s *Sweeper) refreshGauges(ctx context.Context) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		return
	}
	for _, st := range []model.QueueStatus{model.QueuePending, model.QueueClaimed, model.QueueApproved, model.QueueRejected} {
		metrics.UpdateReviewQueueItems(string(st), counts[st])
	}
}
