package review_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/domain/fusion"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/internal/domain/review"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.QueueEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.QueueEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []model.QueueEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.QueueEvent(nil), p.events...)
}

var (
	alice  = model.Actor{ID: "alice", Role: model.RoleEditor}
	bob    = model.Actor{ID: "bob", Role: model.RoleEditor}
	viewer = model.Actor{ID: "val", Role: model.RoleViewer}
	nobody = model.Actor{}
)

type fixture struct {
	store     *repository.MemoryStore
	claims    *review.ClaimManager
	decisions *review.DecisionHandler
	publisher *recordingPublisher
	clock     *clock
	itemID    string
}

// newFixture seeds one image with two athletes recognized by bib only, so both
// land in the review queue.
func newFixture() *fixture {
	c := &clock{now: time.Date(2026, 6, 14, 9, 0, 0, 0, time.UTC)}
	store := repository.NewMemoryStore(repository.WithClock(c.Now))
	pub := &recordingPublisher{}

	engine := fusion.NewEngine(fusion.WithClock(c.Now))
	res, err := engine.Run(fusion.Input{
		ImageID: "img-1",
		EventID: "ev-1",
		Bibs: []model.BibMatch{
			{BibDetection: model.BibDetection{Number: "101", Confidence: 95}, Athlete: model.Athlete{ID: "ath-1", Name: "Ada"}},
			{BibDetection: model.BibDetection{Number: "202", Confidence: 90}, Athlete: model.Athlete{ID: "ath-2", Name: "Bo"}},
		},
	}, fusion.DefaultThresholds())
	So(err, ShouldBeNil)
	So(len(res.QueueItems), ShouldEqual, 2)
	_, err = store.ApplyFusion(context.Background(), res.Image, res.QueueItems)
	So(err, ShouldBeNil)

	opts := []review.Option{review.WithClock(c.Now), review.WithPublisher(pub), review.WithLease(5 * time.Minute)}
	return &fixture{
		store:     store,
		claims:    review.NewClaimManager(store, opts...),
		decisions: review.NewDecisionHandler(store, opts...),
		publisher: pub,
		clock:     c,
		itemID:    res.QueueItems[0].ID,
	}
}

func TestClaim(t *testing.T) {
	Convey("Given a pending queue item", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When a reviewer claims it", func() {
			item, err := f.claims.Claim(ctx, alice, f.itemID)

			Convey("Then it is leased to that reviewer", func() {
				So(err, ShouldBeNil)
				So(item.Status, ShouldEqual, model.QueueClaimed)
				So(*item.ClaimedBy, ShouldEqual, "alice")
				So(*item.ClaimedUntil, ShouldEqual, f.clock.Now().Add(5*time.Minute))
				So(f.claims.Lease(), ShouldEqual, 5*time.Minute)
				So(f.publisher.Events()[0].NewStatus, ShouldEqual, model.QueueClaimed)
			})

			Convey("And another reviewer claims it during the lease", func() {
				_, err := f.claims.Claim(ctx, bob, f.itemID)
				So(errors.Is(err, review.ErrConflict), ShouldBeTrue)
				So(review.Kind(err), ShouldEqual, "conflict")
			})

			Convey("And another reviewer claims it after the lease expired", func() {
				f.clock.Advance(6 * time.Minute)
				item, err := f.claims.Claim(ctx, bob, f.itemID)
				So(err, ShouldBeNil)
				So(*item.ClaimedBy, ShouldEqual, "bob")
			})

			Convey("And the same reviewer claims it again", func() {
				f.clock.Advance(4 * time.Minute)
				item, err := f.claims.Claim(ctx, alice, f.itemID)
				So(err, ShouldBeNil)
				So(*item.ClaimedUntil, ShouldEqual, f.clock.Now().Add(5*time.Minute))
			})
		})

		Convey("When the caller has no identity", func() {
			_, err := f.claims.Claim(ctx, nobody, f.itemID)
			So(errors.Is(err, review.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When a viewer claims it", func() {
			_, err := f.claims.Claim(ctx, viewer, f.itemID)
			So(err, ShouldBeNil)
		})

		Convey("When the item does not exist", func() {
			_, err := f.claims.Claim(ctx, alice, "missing")
			So(errors.Is(err, review.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the item was already approved", func() {
			_, err := f.decisions.Approve(ctx, alice, f.itemID, "")
			So(err, ShouldBeNil)
			_, err = f.claims.Claim(ctx, bob, f.itemID)
			So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
		})
	})
}

func TestApprove(t *testing.T) {
	Convey("Given a pending queue item", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When an editor approves it", func() {
			item, err := f.decisions.Approve(ctx, alice, f.itemID, "clear bib")

			Convey("Then the item is approved and the image reflects it", func() {
				So(err, ShouldBeNil)
				So(item.Status, ShouldEqual, model.QueueApproved)
				So(*item.ApprovedBy, ShouldEqual, "alice")
				So(item.Notes, ShouldEqual, "clear bib")

				img, err := f.store.GetImage(ctx, "img-1")
				So(err, ShouldBeNil)
				So(img.RecognitionStatus, ShouldEqual, model.ImageApproved)
				for _, rec := range img.RecognizedAthletes {
					if *rec.AthleteID == *item.AthleteID {
						So(rec.Status, ShouldEqual, model.RecognitionApproved)
					}
				}
			})

			Convey("And approving it a second time is a bad request", func() {
				_, err := f.decisions.Approve(ctx, bob, f.itemID, "")
				So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
			})

			Convey("And a status change event is broadcast", func() {
				events := f.publisher.Events()
				So(len(events), ShouldEqual, 1)
				So(events[0].QueueItemID, ShouldEqual, f.itemID)
				So(events[0].NewStatus, ShouldEqual, model.QueueApproved)
			})
		})

		Convey("When one reviewer claims and another approves", func() {
			_, err := f.claims.Claim(ctx, alice, f.itemID)
			So(err, ShouldBeNil)
			item, err := f.decisions.Approve(ctx, bob, f.itemID, "")

			Convey("Then the claim is advisory and the approval stands", func() {
				So(err, ShouldBeNil)
				So(item.Status, ShouldEqual, model.QueueApproved)
				So(*item.ApprovedBy, ShouldEqual, "bob")
			})
		})

		Convey("When a viewer tries to approve", func() {
			_, err := f.decisions.Approve(ctx, viewer, f.itemID, "")
			So(errors.Is(err, review.ErrForbidden), ShouldBeTrue)
		})

		Convey("When the broadcast fails", func() {
			f.publisher.err = errors.New("socket closed")
			item, err := f.decisions.Approve(ctx, alice, f.itemID, "")

			Convey("Then the decision still succeeds", func() {
				So(err, ShouldBeNil)
				So(item.Status, ShouldEqual, model.QueueApproved)
			})
		})

		Convey("When two editors approve concurrently", func() {
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				errs   []error
				winner int
			)
			for _, a := range []model.Actor{alice, bob} {
				wg.Add(1)
				go func(a model.Actor) {
					defer wg.Done()
					_, err := f.decisions.Approve(ctx, a, f.itemID, "")
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						winner++
						return
					}
					errs = append(errs, err)
				}(a)
			}
			wg.Wait()

			Convey("Then exactly one wins and the other is refused", func() {
				So(winner, ShouldEqual, 1)
				So(len(errs), ShouldEqual, 1)
				So(errors.Is(errs[0], review.ErrBadRequest) || errors.Is(errs[0], review.ErrConflict), ShouldBeTrue)
			})
		})
	})
}

func TestReject(t *testing.T) {
	Convey("Given a pending queue item", t, func() {
		f := newFixture()
		ctx := context.Background()

		Convey("When rejected without a reason", func() {
			_, err := f.decisions.Reject(ctx, alice, f.itemID, "  ", "")

			Convey("Then it is a bad request and the item stays pending", func() {
				So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
				item, err := f.store.GetItem(ctx, f.itemID)
				So(err, ShouldBeNil)
				So(item.Status, ShouldEqual, model.QueuePending)
			})
		})

		Convey("When rejected with a reason", func() {
			item, err := f.decisions.Reject(ctx, alice, f.itemID, "wrong athlete", "bib obscured")

			Convey("Then the athlete is retracted from the image", func() {
				So(err, ShouldBeNil)
				So(item.Status, ShouldEqual, model.QueueRejected)
				So(*item.RejectionReason, ShouldEqual, "wrong athlete")
				So(item.Notes, ShouldEqual, "bib obscured")

				img, err := f.store.GetImage(ctx, "img-1")
				So(err, ShouldBeNil)
				So(img.RecognitionStatus, ShouldEqual, model.ImageRejected)
				So(len(img.RecognizedAthletes), ShouldEqual, 1)
				So(*img.RecognizedAthletes[0].AthleteID, ShouldNotEqual, *item.AthleteID)
			})

			Convey("And approving afterwards is a bad request", func() {
				_, err := f.decisions.Approve(ctx, alice, f.itemID, "")
				So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
			})
		})

		Convey("When an anonymous caller rejects without a reason", func() {
			_, err := f.decisions.Reject(ctx, nobody, f.itemID, "", "")
			So(errors.Is(err, review.ErrUnauthorized), ShouldBeTrue)
		})
	})
}

func TestReassign(t *testing.T) {
	Convey("Given a claimed queue item", t, func() {
		f := newFixture()
		ctx := context.Background()
		claimed, err := f.claims.Claim(ctx, alice, f.itemID)
		So(err, ShouldBeNil)

		Convey("When it is reassigned to another reviewer", func() {
			item, err := f.decisions.Reassign(ctx, alice, f.itemID, "bob")

			Convey("Then only the assignment changes", func() {
				So(err, ShouldBeNil)
				So(*item.AssignedTo, ShouldEqual, "bob")
				So(item.AssignedAt, ShouldNotBeNil)
				So(item.Status, ShouldEqual, model.QueueClaimed)
				So(*item.AthleteID, ShouldEqual, *claimed.AthleteID)
			})
		})

		Convey("When the target is blank", func() {
			_, err := f.decisions.Reassign(ctx, alice, f.itemID, " ")
			So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
		})

		Convey("When the item is already resolved", func() {
			_, err := f.decisions.Approve(ctx, alice, f.itemID, "")
			So(err, ShouldBeNil)
			_, err = f.decisions.Reassign(ctx, alice, f.itemID, "bob")
			So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
		})

		Convey("When the item does not exist", func() {
			_, err := f.decisions.Reassign(ctx, alice, "missing", "bob")
			So(errors.Is(err, review.ErrNotFound), ShouldBeTrue)
			So(review.Kind(err), ShouldEqual, "not_found")
		})
	})
}

func TestReader(t *testing.T) {
	Convey("Given a queue with two pending items", t, func() {
		f := newFixture()
		r := review.NewReader(f.store)
		ctx := context.Background()

		Convey("When a viewer lists the default status", func() {
			page, err := r.List(ctx, viewer, "", 1, 1)

			Convey("Then pending items are paged", func() {
				So(err, ShouldBeNil)
				So(page.Total, ShouldEqual, 2)
				So(len(page.Items), ShouldEqual, 1)
				So(page.HasNext(), ShouldBeTrue)
			})
		})

		Convey("When a claimed status is listed in lower case", func() {
			_, err := f.claims.Claim(ctx, alice, f.itemID)
			So(err, ShouldBeNil)
			page, err := r.List(ctx, viewer, "claimed", 1, 20)
			So(err, ShouldBeNil)
			So(page.Total, ShouldEqual, 1)
			So(page.Items[0].ID, ShouldEqual, f.itemID)
		})

		Convey("When the request is malformed", func() {
			_, err := r.List(ctx, viewer, "DONE", 1, 20)
			So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
			_, err = r.List(ctx, viewer, "PENDING", 0, 20)
			So(errors.Is(err, review.ErrBadRequest), ShouldBeTrue)
		})

		Convey("When the caller is anonymous", func() {
			_, err := r.List(ctx, nobody, "", 1, 20)
			So(errors.Is(err, review.ErrUnauthorized), ShouldBeTrue)
		})

		Convey("When reading single records", func() {
			item, err := r.Get(ctx, viewer, f.itemID)
			So(err, ShouldBeNil)
			So(item.ImageID, ShouldEqual, "img-1")

			img, err := r.Image(ctx, viewer, "img-1")
			So(err, ShouldBeNil)
			So(img.RecognitionStatus, ShouldEqual, model.ImageComplete)

			_, err = r.Image(ctx, viewer, "img-404")
			So(review.Kind(err), ShouldEqual, "not_found")
			_, err = r.Get(ctx, viewer, "missing")
			So(review.Kind(err), ShouldEqual, "not_found")
		})
	})
}
