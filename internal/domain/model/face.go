package model

// FaceMatch is the best gallery hit for a detected face.
type FaceMatch struct {
	AthleteID  string  `json:"athlete_id"`
	Similarity float64 `json:"similarity"` // 0-100
}

// AgeRange is the estimated age bracket of a face.
type AgeRange struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

// Emotion is one emotion estimate with its confidence.
type Emotion struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Pose is the head orientation in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// Quality captures image quality estimates for the face crop.
type Quality struct {
	Brightness float64 `json:"brightness"`
	Sharpness  float64 `json:"sharpness"`
}

// FaceAttributes are descriptive attributes kept for audit. They never feed scoring.
type FaceAttributes struct {
	AgeRange   *AgeRange `json:"age_range,omitempty"`
	Emotions   []Emotion `json:"emotions,omitempty"`
	Pose       *Pose     `json:"pose,omitempty"`
	Quality    *Quality  `json:"quality,omitempty"`
	Confidence float64   `json:"confidence"` // detection confidence
}

// FaceCandidate is one detected face and, optionally, its gallery match.
type FaceCandidate struct {
	BoundingBox BoundingBox    `json:"bounding_box"`
	Match       *FaceMatch     `json:"match,omitempty"`
	Attributes  FaceAttributes `json:"attributes"`
}

// MatchConfidence returns the gallery similarity or 0 when the face is unmatched.
func (f FaceCandidate) MatchConfidence() float64 {
	if f.Match == nil {
		return 0
	}
	return f.Match.Similarity
}
