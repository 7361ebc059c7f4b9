package model

// RecognitionStatus is the lifecycle state of a surfaced recognition.
type RecognitionStatus string

// Recognition statuses.
const (
	RecognitionPendingReview RecognitionStatus = "PENDING_REVIEW"
	RecognitionAutoApproved  RecognitionStatus = "AUTO_APPROVED"
	RecognitionApproved      RecognitionStatus = "APPROVED"
)

// Origin names which signals produced a recognition.
type Origin string

// Recognition origins.
const (
	OriginFace       Origin = "FACE"
	OriginBib        Origin = "BIB"
	OriginFaceAndBib Origin = "FACE_AND_BIB"
)

// Recognition is one fused identification candidate for an image.
// FaceIndex is nil for bib-only candidates; BibNumber is nil when no bib
// corroborated the face.
type Recognition struct {
	FaceIndex       *int              `json:"face_index"`
	AthleteID       *string           `json:"athlete_id"`
	AthleteName     *string           `json:"athlete_name,omitempty"`
	MatchConfidence float64           `json:"match_confidence"`
	BibNumber       *string           `json:"bib_number"`
	BibConfidence   float64           `json:"bib_confidence"`
	CombinedScore   float64           `json:"combined_score"`
	BoundingBox     BoundingBox       `json:"bounding_box"`
	Status          RecognitionStatus `json:"status"`
}

// Origin reports which signals contributed to the recognition.
func (r Recognition) Origin() Origin {
	switch {
	case r.FaceIndex != nil && r.BibNumber != nil:
		return OriginFaceAndBib
	case r.FaceIndex != nil:
		return OriginFace
	default:
		return OriginBib
	}
}

// HasAthlete reports whether the recognition names an athlete.
func (r Recognition) HasAthlete() bool {
	return r.AthleteID != nil && *r.AthleteID != ""
}
