// Package service wires the fusion pipeline and the validation queue into the
// operations served by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/finishline/internal/adapters/detection"
	jobqueue "github.com/okian/finishline/internal/adapters/mq/queue"
	workerpool "github.com/okian/finishline/internal/adapters/mq/worker"
	"github.com/okian/finishline/internal/adapters/notify"
	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/adapters/schedule"
	"github.com/okian/finishline/internal/domain/bib"
	"github.com/okian/finishline/internal/domain/dedupe"
	"github.com/okian/finishline/internal/domain/fusion"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/internal/domain/review"
	"github.com/okian/finishline/internal/domain/types"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// DefaultCollection is the face gallery searched when a job names none.
const DefaultCollection = "athletes"

// Service implements the API dependencies for recognition and review.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	detector  detection.Detector
	publisher review.Publisher
	engine    *fusion.Engine
	matcher   *bib.Matcher
	reader    *review.Reader
	claims    *review.ClaimManager
	decisions *review.DecisionHandler

	// Configuration
	thresholds    fusion.Thresholds
	collection    string
	workerCount   int
	queueSize     int
	dedupeSize    int
	lease         time.Duration
	retryAttempts int
	retryBase     time.Duration
	retryMax      time.Duration
	maintenance   *schedule.Config
	now           func() time.Time

	// Runtime, set by Start
	deduper   dedupe.Deduper
	jobs      *jobqueue.InMemoryQueue
	pool      *workerpool.Pool
	sweeper   *schedule.Sweeper
	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service over store and detector.
func New(store repository.Store, detector detection.Detector, opts ...Option) (*Service, error) {
	if store == nil || detector == nil {
		return nil, fmt.Errorf("service: store and detector are required")
	}
	s := &Service{
		store:       store,
		detector:    detector,
		publisher:   notify.Noop{},
		thresholds:  fusion.DefaultThresholds(),
		collection:  DefaultCollection,
		workerCount: runtime.NumCPU() * 2,
		queueSize:   1024,
		dedupeSize:  50000,
		lease:       review.DefaultLease,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.thresholds.Validate(); err != nil {
		return nil, err
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	s.logger = s.logger.Named("service")

	reviewOpts := []review.Option{
		review.WithClock(s.now),
		review.WithLease(s.lease),
		review.WithPublisher(s.publisher),
		review.WithLogger(s.logger.Named("review")),
	}
	s.engine = fusion.NewEngine(fusion.WithClock(s.now))
	s.matcher = bib.NewMatcher(store)
	s.reader = review.NewReader(store)
	s.claims = review.NewClaimManager(store, reviewOpts...)
	s.decisions = review.NewDecisionHandler(store, reviewOpts...)
	return s, nil
}

// Start starts the fusion worker pool and, when configured, the maintenance sweeper.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.maintenance != nil {
		sw, err := schedule.NewSweeper(s.store, *s.maintenance,
			schedule.WithClock(s.now),
			schedule.WithLogger(s.logger.Named("sweeper")),
		)
		if err != nil {
			return err
		}
		s.sweeper = sw
		s.sweeper.Start()
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobs = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.jobs, workerpool.ProcessorFunc(s.Process),
		workerpool.WithLogger(s.logger),
		workerpool.WithRetry(s.retryAttempts, s.retryBase, s.retryMax),
	)
	s.pool.Start(ctx)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "recognition service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Float64("autoApprove", s.thresholds.AutoApprove),
		logger.Float64("review", s.thresholds.Review),
		logger.Float64("faceMatch", s.thresholds.FaceMatch),
	)
	return nil
}

// Stop drains queued jobs and stops the sweeper. The store stays open.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping recognition service...")

	var err error
	if s.pool != nil {
		err = s.pool.Shutdown(ctx)
	}
	if s.sweeper != nil {
		if serr := s.sweeper.Stop(ctx); serr != nil && err == nil {
			err = serr
		}
	}

	s.started = false
	s.logger.Info(ctx, "recognition service stopped")
	return err
}

// SubmitJob validates and enqueues a fusion job. A job id seen recently is
// ErrDuplicateJob; a full queue is ErrQueueFull and the id is forgotten so
// the caller may retry.
func (s *Service) SubmitJob(ctx context.Context, actor model.Actor, job model.FusionJob) (model.FusionJob, error) { //nolint:gocritic // hugeParam
	if !actor.Authenticated() {
		return job, review.ErrUnauthorized
	}
	if !actor.Can(model.RoleEditor) {
		return job, fmt.Errorf("%w: requires %s role", review.ErrForbidden, model.RoleEditor)
	}

	job.JobID = strings.TrimSpace(job.JobID)
	job.ImageID = strings.TrimSpace(job.ImageID)
	job.EventID = strings.TrimSpace(job.EventID)
	job.ImageRef = strings.TrimSpace(job.ImageRef)
	switch {
	case job.JobID == "":
		return job, fmt.Errorf("%w: missing job id", ErrInvalidJob)
	case job.ImageID == "":
		return job, fmt.Errorf("%w: missing image id", ErrInvalidJob)
	case job.ImageRef == "":
		return job, fmt.Errorf("%w: missing image ref", ErrInvalidJob)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return job, ErrNotStarted
	}

	if s.deduper.SeenAndRecord(ctx, job.JobID) {
		s.logger.Debug(ctx, "duplicate fusion job", logger.String("job_id", job.JobID))
		return job, ErrDuplicateJob
	}
	job.Submitted = s.now().UTC()
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, job.JobID)
		return job, fmt.Errorf("%w: %w", ErrQueueFull, err)
	}
	s.logger.Debug(ctx, "fusion job queued",
		logger.String("job_id", job.JobID),
		logger.String("image_id", job.ImageID),
	)
	return job, nil
}

// SeedStartList upserts start-list entries.
func (s *Service) SeedStartList(ctx context.Context, entries []model.StartListEntry) (int, error) {
	return s.store.UpsertStartList(ctx, entries)
}

// ListQueue pages through queue items in status.
func (s *Service) ListQueue(ctx context.Context, actor model.Actor, status string, page, limit int) (types.Page[model.QueueItem], error) {
	return s.reader.List(ctx, actor, status, page, limit)
}

// GetQueueItem returns one queue item.
func (s *Service) GetQueueItem(ctx context.Context, actor model.Actor, id string) (model.QueueItem, error) {
	return s.reader.Get(ctx, actor, id)
}

// GetImage returns an image recognition summary.
func (s *Service) GetImage(ctx context.Context, actor model.Actor, imageID string) (model.ImageRecord, error) {
	return s.reader.Image(ctx, actor, imageID)
}

// Claim leases an item to actor.
func (s *Service) Claim(ctx context.Context, actor model.Actor, id string) (model.QueueItem, error) {
	return s.claims.Claim(ctx, actor, id)
}

// Approve confirms an item.
func (s *Service) Approve(ctx context.Context, actor model.Actor, id, notes string) (model.QueueItem, error) {
	return s.decisions.Approve(ctx, actor, id, notes)
}

// Reject refuses an item with a reason.
func (s *Service) Reject(ctx context.Context, actor model.Actor, id, reason, notes string) (model.QueueItem, error) {
	return s.decisions.Reject(ctx, actor, id, reason, notes)
}

// Reassign hands an item to another reviewer.
func (s *Service) Reassign(ctx context.Context, actor model.Actor, id, target string) (model.QueueItem, error) {
	return s.decisions.Reassign(ctx, actor, id, target)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"thresholds": map[string]float64{
			"autoApprove": s.thresholds.AutoApprove,
			"review":      s.thresholds.Review,
			"faceMatch":   s.thresholds.FaceMatch,
		},
	}

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn(ctx, "queue counts unavailable", logger.Error(err))
	} else {
		byStatus := make(map[string]int, len(counts))
		for st, n := range counts {
			byStatus[string(st)] = n
			metrics.UpdateReviewQueueItems(string(st), n)
		}
		stats["queueItems"] = byStatus
	}

	if s.started {
		queueLen := s.jobs.Len()
		stats["jobQueueLength"] = queueLen
		stats["busyWorkers"] = s.pool.Busy()
		stats["seenJobs"] = s.deduper.Size()
		stats["uptimeSeconds"] = int(s.now().Sub(s.startedAt).Seconds())
		if s.sweeper != nil {
			stats["maintenanceJobs"] = s.sweeper.Jobs()
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.pool.Size())
	}
	return stats
}
