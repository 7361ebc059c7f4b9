package fusion

import (
	"math"
	"sort"

	"github.com/okian/finishline/internal/domain/model"
)

// Scoring constants for combining signals.
const (
	corroborationBoost = 15
	maxCombinedScore   = 99
	bibOnlyCeiling     = 80
	bibOnlyWeight      = 0.8
)

// Merge combines the faces and bib matches of one image into recognitions,
// ranked by combined score. At most one recognition is produced per athlete;
// faces without an athlete are kept individually.
func Merge(faces []model.FaceCandidate, bibs []model.BibMatch, faceMatch float64) []model.Recognition {
	bibByAthlete := make(map[string]model.BibMatch, len(bibs))
	for _, b := range bibs {
		if b.Athlete.ID == "" {
			continue
		}
		if cur, ok := bibByAthlete[b.Athlete.ID]; ok && cur.Confidence >= b.Confidence {
			continue
		}
		bibByAthlete[b.Athlete.ID] = b
	}

	var (
		out       []model.Recognition
		byAthlete = make(map[string]int)
	)
	for i, face := range faces {
		rec := faceRecognition(i, face, faceMatch, bibByAthlete)
		if !rec.HasAthlete() {
			out = append(out, rec)
			continue
		}
		id := *rec.AthleteID
		if at, ok := byAthlete[id]; ok {
			if rec.CombinedScore > out[at].CombinedScore {
				out[at] = rec
			}
			continue
		}
		byAthlete[id] = len(out)
		out = append(out, rec)
	}

	for _, b := range bibs {
		id := b.Athlete.ID
		if id == "" {
			continue
		}
		if _, covered := byAthlete[id]; covered {
			continue
		}
		best := bibByAthlete[id]
		byAthlete[id] = len(out)
		out = append(out, bibRecognition(best))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return faceOrder(out[i]) < faceOrder(out[j])
	})
	return out
}

func faceRecognition(idx int, face model.FaceCandidate, faceMatch float64, bibs map[string]model.BibMatch) model.Recognition {
	conf := face.MatchConfidence()
	rec := model.Recognition{
		FaceIndex:       intPtr(idx),
		MatchConfidence: conf,
		CombinedScore:   round2(math.Min(maxCombinedScore, conf)),
		BoundingBox:     face.BoundingBox,
		Status:          model.RecognitionPendingReview,
	}
	if face.Match == nil || face.Match.AthleteID == "" || conf < faceMatch {
		return rec
	}
	rec.AthleteID = strPtr(face.Match.AthleteID)
	if b, ok := bibs[face.Match.AthleteID]; ok {
		rec.BibNumber = strPtr(b.Number)
		rec.BibConfidence = b.Confidence
		rec.CombinedScore = round2(math.Min(maxCombinedScore, conf+corroborationBoost))
		if b.Athlete.Name != "" {
			rec.AthleteName = strPtr(b.Athlete.Name)
		}
	}
	return rec
}

func bibRecognition(b model.BibMatch) model.Recognition {
	rec := model.Recognition{
		AthleteID:     strPtr(b.Athlete.ID),
		BibNumber:     strPtr(b.Number),
		BibConfidence: b.Confidence,
		CombinedScore: round2(math.Min(bibOnlyCeiling, b.Confidence*bibOnlyWeight)),
		BoundingBox:   b.BoundingBox,
		Status:        model.RecognitionPendingReview,
	}
	if b.Athlete.Name != "" {
		rec.AthleteName = strPtr(b.Athlete.Name)
	}
	return rec
}

// faceOrder sorts face recognitions by index ahead of bib-only ones.
func faceOrder(r model.Recognition) int {
	if r.FaceIndex == nil {
		return math.MaxInt
	}
	return *r.FaceIndex
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
