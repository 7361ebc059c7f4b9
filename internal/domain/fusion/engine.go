package fusion

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/finishline/internal/domain/model"
)

// Classification is the routing decision for one recognition.
type Classification string

// Routing decisions.
const (
	AutoApprove Classification = "AUTO_APPROVE"
	Review      Classification = "REVIEW"
	Discard     Classification = "DISCARD"
)

// queueItemNamespace seeds deterministic queue item ids.
var queueItemNamespace = uuid.MustParse("6f1c1a52-4c55-4f0e-9a43-0d9a4cfb7b1e")

// Classify routes a recognition using th.
func Classify(r model.Recognition, th Thresholds) Classification {
	switch {
	case r.CombinedScore >= th.AutoApprove && r.HasAthlete():
		return AutoApprove
	case r.CombinedScore >= th.Review || r.HasAthlete():
		return Review
	default:
		return Discard
	}
}

// Input is everything fusion needs about one image.
type Input struct {
	ImageID string
	EventID string
	Faces   []model.FaceCandidate
	Bibs    []model.BibMatch
}

// Candidate pairs a recognition with its routing decision.
type Candidate struct {
	Recognition    model.Recognition
	Classification Classification
}

// Result is the outcome of one fusion pass. Image and QueueItems must be
// persisted together.
type Result struct {
	Candidates []Candidate
	Image      model.ImageRecord
	QueueItems []model.QueueItem
}

// Count returns how many candidates received classification c.
func (r Result) Count(c Classification) int {
	n := 0
	for _, cand := range r.Candidates {
		if cand.Classification == c {
			n++
		}
	}
	return n
}

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine runs fusion passes. It holds no per-image state and is safe for
// concurrent use.
type Engine struct {
	now func() time.Time
}

// NewEngine creates a fusion engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run fuses in with the thresholds supplied for this pass.
func (e *Engine) Run(in Input, th Thresholds) (Result, error) {
	if strings.TrimSpace(in.ImageID) == "" {
		return Result{}, fmt.Errorf("%w: missing image id", ErrInvalidInput)
	}
	if err := th.Validate(); err != nil {
		return Result{}, err
	}

	now := e.now().UTC()
	recs := Merge(in.Faces, in.Bibs, th.FaceMatch)

	res := Result{
		Candidates: make([]Candidate, 0, len(recs)),
		Image: model.ImageRecord{
			ImageID:            in.ImageID,
			EventID:            in.EventID,
			RecognizedAthletes: []model.Recognition{},
			FaceAttributes:     in.Faces,
			FaceCount:          len(in.Faces),
			UpdatedAt:          now,
		},
	}
	if res.Image.FaceAttributes == nil {
		res.Image.FaceAttributes = []model.FaceCandidate{}
	}

	surfaced, auto := 0, 0
	for _, rec := range recs {
		class := Classify(rec, th)
		switch class {
		case AutoApprove:
			rec.Status = model.RecognitionAutoApproved
			res.Image.RecognizedAthletes = append(res.Image.RecognizedAthletes, rec)
			surfaced++
			auto++
		case Review:
			rec.Status = model.RecognitionPendingReview
			if rec.HasAthlete() {
				res.Image.RecognizedAthletes = append(res.Image.RecognizedAthletes, rec)
			}
			res.QueueItems = append(res.QueueItems, newQueueItem(in, rec, now))
			surfaced++
		}
		res.Candidates = append(res.Candidates, Candidate{Recognition: rec, Classification: class})
	}

	switch {
	case surfaced > 0 && auto == surfaced:
		res.Image.RecognitionStatus = model.ImageAutoApproved
	case surfaced > 0:
		res.Image.RecognitionStatus = model.ImageComplete
	case len(in.Faces) == 0:
		res.Image.RecognitionStatus = model.ImageNoFaces
	default:
		res.Image.RecognitionStatus = model.ImageNoMatch
	}
	return res, nil
}

func newQueueItem(in Input, rec model.Recognition, now time.Time) model.QueueItem {
	return model.QueueItem{
		ID:            QueueItemID(in.ImageID, rec),
		ImageID:       in.ImageID,
		EventID:       in.EventID,
		AthleteID:     rec.AthleteID,
		AthleteName:   rec.AthleteName,
		FaceIndex:     rec.FaceIndex,
		Confidence:    rec.MatchConfidence,
		CombinedScore: rec.CombinedScore,
		BoundingBox:   rec.BoundingBox,
		BibNumber:     rec.BibNumber,
		Status:        model.QueuePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// QueueItemID derives a stable id from the image and the recognition's origin
// so that a redelivered fusion pass produces the same ids.
func QueueItemID(imageID string, rec model.Recognition) string {
	var b strings.Builder
	b.WriteString(imageID)
	b.WriteString("|face:")
	if rec.FaceIndex != nil {
		b.WriteString(strconv.Itoa(*rec.FaceIndex))
	}
	b.WriteString("|athlete:")
	if rec.AthleteID != nil {
		b.WriteString(*rec.AthleteID)
	}
	b.WriteString("|bib:")
	if rec.BibNumber != nil {
		b.WriteString(*rec.BibNumber)
	}
	return uuid.NewSHA1(queueItemNamespace, []byte(b.String())).String()
}
