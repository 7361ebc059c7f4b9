package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/finishline/internal/adapters/detection"
	workerpool "github.com/okian/finishline/internal/adapters/mq/worker"
	"github.com/okian/finishline/internal/domain/bib"
	"github.com/okian/finishline/internal/domain/fusion"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// pipelineActor is the actor recorded on events raised by fusion passes.
const pipelineActor = "fusion"

// Process runs one fusion pass: detect faces, search each face in the
// gallery, read bibs, resolve them against the start list, fuse, and write
// the image summary with its queue items.
//
// Per-face search failures and text detection failures degrade the pass.
// Face detection failures, start-list failures and store failures fail it;
// the ones that a retry cannot fix are marked permanent.
func (s *Service) Process(ctx context.Context, job model.FusionJob) error { //nolint:gocritic // hugeParam
	start := time.Now()
	log := s.logger.With(logger.String("job_id", job.JobID), logger.String("image_id", job.ImageID))

	faces, err := s.detector.DetectFaces(ctx, job.ImageRef)
	if err != nil {
		metrics.RecordFusionError()
		metrics.RecordErrorByComponent("pipeline", "detect_faces")
		log.Error(ctx, "face detection failed", logger.Error(err))
		if errors.Is(err, detection.ErrImageNotFound) || errors.Is(err, detection.ErrInvalidParameter) {
			return workerpool.Permanent(fmt.Errorf("detect faces: %w", err))
		}
		return fmt.Errorf("detect faces: %w", err)
	}
	s.matchFaces(ctx, log, job, faces)

	bibs, err := s.readBibs(ctx, log, job)
	if err != nil {
		metrics.RecordFusionError()
		metrics.RecordErrorByComponent("pipeline", "start_list")
		return err
	}

	res, err := s.engine.Run(fusion.Input{
		ImageID: job.ImageID,
		EventID: job.EventID,
		Faces:   faces,
		Bibs:    bibs,
	}, s.thresholds)
	if err != nil {
		metrics.RecordFusionError()
		return workerpool.Permanent(fmt.Errorf("fuse: %w", err))
	}

	created, err := s.store.ApplyFusion(ctx, res.Image, res.QueueItems)
	if err != nil {
		metrics.RecordFusionError()
		metrics.RecordErrorByComponent("pipeline", "store")
		log.Error(ctx, "storing fusion result failed", logger.Error(err))
		return fmt.Errorf("apply fusion: %w", err)
	}

	for _, class := range []fusion.Classification{fusion.AutoApprove, fusion.Review, fusion.Discard} {
		metrics.RecordRecognitions(string(class), res.Count(class))
	}
	metrics.RecordImageStatus(string(res.Image.RecognitionStatus))
	metrics.RecordQueueItemsCreated(created)
	metrics.RecordFusionPass(float64(time.Since(start).Microseconds()) / 1000)

	if created > 0 {
		s.announceQueued(ctx, log, res.QueueItems)
	}
	log.Info(ctx, "fusion pass complete",
		logger.Int("faces", len(faces)),
		logger.Int("bibs", len(bibs)),
		logger.Int("autoApproved", res.Count(fusion.AutoApprove)),
		logger.Int("queued", created),
		logger.String("status", string(res.Image.RecognitionStatus)),
	)
	return nil
}

// matchFaces attaches the best gallery hit to each face in place. A failed
// search leaves the face unmatched.
func (s *Service) matchFaces(ctx context.Context, log logger.Logger, job model.FusionJob, faces []model.FaceCandidate) { //nolint:gocritic // hugeParam
	collection := job.Collection
	if collection == "" {
		collection = s.collection
	}
	for i := range faces {
		matches, err := s.detector.SearchFace(ctx, detection.SearchRequest{
			ImageRef:    job.ImageRef,
			BoundingBox: faces[i].BoundingBox,
			Collection:  collection,
			Threshold:   s.thresholds.FaceMatch,
			MaxResults:  detection.DefaultMaxResults,
		})
		if err != nil {
			log.Warn(ctx, "face search failed", logger.Int("face_index", i), logger.Error(err))
			faces[i].Match = nil
			continue
		}
		if len(matches) == 0 {
			continue
		}
		best := matches[0]
		faces[i].Match = &best
	}
}

// readBibs returns start-list matches for the bibs read off the image. A text
// detection failure yields no bibs.
func (s *Service) readBibs(ctx context.Context, log logger.Logger, job model.FusionJob) ([]model.BibMatch, error) { //nolint:gocritic // hugeParam
	lines, err := s.detector.DetectText(ctx, job.ImageRef)
	if err != nil {
		metrics.RecordErrorByComponent("pipeline", "detect_text")
		log.Warn(ctx, "text detection failed, fusing faces only", logger.Error(err))
		return nil, nil
	}

	detections := bib.Extract(lines)
	metrics.RecordBibDetections(len(detections))
	if job.EventID == "" {
		return nil, nil
	}

	matches, err := s.matcher.Match(ctx, job.EventID, detections)
	if err != nil {
		log.Error(ctx, "start list lookup failed", logger.Error(err))
		return nil, fmt.Errorf("match bibs: %w", err)
	}
	for i := len(matches); i < len(detections); i++ {
		metrics.RecordBibStartListMiss()
	}
	return matches, nil
}

func (s *Service) announceQueued(ctx context.Context, log logger.Logger, items []model.QueueItem) {
	for _, item := range items {
		ev := model.QueueEvent{
			QueueItemID: item.ID,
			ImageID:     item.ImageID,
			NewStatus:   item.Status,
			Actor:       pipelineActor,
			At:          item.CreatedAt,
		}
		if err := s.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
			metrics.RecordNotificationError("publisher")
			log.Warn(ctx, "queued item broadcast failed", logger.String("queue_item_id", item.ID), logger.Error(err))
		}
	}
}
