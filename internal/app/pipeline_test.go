package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/finishline/internal/adapters/detection"
	workerpool "github.com/okian/finishline/internal/adapters/mq/worker"
	"github.com/okian/finishline/internal/adapters/repository"
	service "github.com/okian/finishline/internal/app"
	"github.com/okian/finishline/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// flakyDetector fails the selected calls and answers the rest from fixtures.
type flakyDetector struct {
	*detection.StaticDetector
	searchErr error
	textErr   error
}

func (d *flakyDetector) SearchFace(ctx context.Context, req detection.SearchRequest) ([]model.FaceMatch, error) {
	if d.searchErr != nil {
		return nil, d.searchErr
	}
	return d.StaticDetector.SearchFace(ctx, req)
}

func (d *flakyDetector) DetectText(ctx context.Context, ref string) ([]model.TextLine, error) {
	if d.textErr != nil {
		return nil, d.textErr
	}
	return d.StaticDetector.DetectText(ctx, ref)
}

// brokenStore fails every fusion write.
type brokenStore struct {
	*repository.MemoryStore
}

func (brokenStore) ApplyFusion(context.Context, model.ImageRecord, []model.QueueItem) (int, error) {
	return 0, errors.New("disk full")
}

func TestProcess(t *testing.T) {
	Convey("Given the fusion pipeline over a start list", t, func() {
		ctx := context.Background()
		store := newStore()
		det := &flakyDetector{StaticDetector: detection.NewStaticDetector(map[string]detection.Fixture{
			"finish-001.jpg": finishFixture(),
			"empty.jpg":      {},
			"crowd.jpg": {
				Text: []detection.StaticTextResult{
					{Text: "202", Confidence: 90},
					{Text: "999", Confidence: 90},
				},
			},
		})}
		svc, err := service.New(store, det)
		So(err, ShouldBeNil)
		job := model.FusionJob{JobID: "job-1", ImageID: "img-1", EventID: "berlin-2026", ImageRef: "finish-001.jpg"}

		Convey("When both signals are available", func() {
			So(svc.Process(ctx, job), ShouldBeNil)

			Convey("Then faces and bibs are fused and written", func() {
				img, err := store.GetImage(ctx, "img-1")
				So(err, ShouldBeNil)
				So(img.FaceCount, ShouldEqual, 2)
				So(*img.RecognizedAthletes[0].BibNumber, ShouldEqual, "101")
				So(*img.RecognizedAthletes[0].AthleteName, ShouldEqual, "Ada")

				counts, err := store.CountByStatus(ctx)
				So(err, ShouldBeNil)
				So(counts[model.QueuePending], ShouldEqual, 1)
			})

			Convey("And a redelivered job creates nothing new", func() {
				So(svc.Process(ctx, job), ShouldBeNil)
				counts, err := store.CountByStatus(ctx)
				So(err, ShouldBeNil)
				So(counts[model.QueuePending], ShouldEqual, 1)
			})
		})

		Convey("When text detection fails", func() {
			det.textErr = detection.ErrUnavailable
			So(svc.Process(ctx, job), ShouldBeNil)

			Convey("Then fusion proceeds on faces only", func() {
				img, err := store.GetImage(ctx, "img-1")
				So(err, ShouldBeNil)
				So(img.RecognitionStatus, ShouldEqual, model.ImageComplete)
				So(img.RecognizedAthletes[0].BibNumber, ShouldBeNil)
				So(img.RecognizedAthletes[0].CombinedScore, ShouldEqual, 80)
			})
		})

		Convey("When every face search fails", func() {
			det.searchErr = detection.ErrInvalidParameter
			det.textErr = detection.ErrUnavailable
			So(svc.Process(ctx, job), ShouldBeNil)

			Convey("Then faces are kept without athletes and nothing is surfaced", func() {
				img, err := store.GetImage(ctx, "img-1")
				So(err, ShouldBeNil)
				So(img.RecognitionStatus, ShouldEqual, model.ImageNoMatch)
				So(img.FaceCount, ShouldEqual, 2)
				So(img.RecognizedAthletes, ShouldBeEmpty)
			})
		})

		Convey("When the image has no faces and no text", func() {
			job.ImageRef = "empty.jpg"
			So(svc.Process(ctx, job), ShouldBeNil)
			img, err := store.GetImage(ctx, "img-1")
			So(err, ShouldBeNil)
			So(img.RecognitionStatus, ShouldEqual, model.ImageNoFaces)
		})

		Convey("When only bibs are read", func() {
			job.ImageRef = "crowd.jpg"
			So(svc.Process(ctx, job), ShouldBeNil)

			Convey("Then the known bib is queued and the unknown one dropped", func() {
				page, err := svc.ListQueue(ctx, viewer, "PENDING", 1, 20)
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 1)
				So(*page.Items[0].AthleteID, ShouldEqual, "ath-3")
				So(page.Items[0].CombinedScore, ShouldEqual, 72)
			})
		})

		Convey("When the image is unknown to the detector", func() {
			job.ImageRef = "missing.jpg"
			err := svc.Process(ctx, job)

			Convey("Then the job fails permanently", func() {
				So(errors.Is(err, detection.ErrImageNotFound), ShouldBeTrue)
				So(workerpool.IsPermanent(err), ShouldBeTrue)
			})
		})

		Convey("When the store rejects the write", func() {
			broken, err := service.New(brokenStore{store}, det)
			So(err, ShouldBeNil)
			err = broken.Process(ctx, job)

			Convey("Then the error is retryable", func() {
				So(err, ShouldNotBeNil)
				So(workerpool.IsPermanent(err), ShouldBeFalse)
			})
		})
	})
}
