package model

import "time"

// ImageStatus is the denormalized recognition summary status of an image.
type ImageStatus string

// Image recognition statuses.
const (
	ImagePending      ImageStatus = "PENDING"
	ImageNoFaces      ImageStatus = "NO_FACES"
	ImageNoMatch      ImageStatus = "NO_MATCH"
	ImageComplete     ImageStatus = "COMPLETE"
	ImageAutoApproved ImageStatus = "AUTO_APPROVED"
	ImageApproved     ImageStatus = "APPROVED"
	ImageRejected     ImageStatus = "REJECTED"
)

// ImageRecord is the recognition summary written onto an image.
type ImageRecord struct {
	ImageID            string          `json:"image_id"`
	EventID            string          `json:"event_id,omitempty"`
	RecognitionStatus  ImageStatus     `json:"recognition_status"`
	RecognizedAthletes []Recognition   `json:"recognized_athletes"`
	FaceAttributes     []FaceCandidate `json:"face_attributes"`
	FaceCount          int             `json:"face_count"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// RetractAthlete drops the recognition for athleteID from the surfaced list.
func (r *ImageRecord) RetractAthlete(athleteID string) bool {
	kept := r.RecognizedAthletes[:0]
	removed := false
	for _, rec := range r.RecognizedAthletes {
		if rec.AthleteID != nil && *rec.AthleteID == athleteID {
			removed = true
			continue
		}
		kept = append(kept, rec)
	}
	r.RecognizedAthletes = kept
	return removed
}

// ConfirmAthlete marks the recognition for athleteID as approved.
func (r *ImageRecord) ConfirmAthlete(athleteID string) bool {
	for i := range r.RecognizedAthletes {
		rec := &r.RecognizedAthletes[i]
		if rec.AthleteID != nil && *rec.AthleteID == athleteID {
			rec.Status = RecognitionApproved
			return true
		}
	}
	return false
}
