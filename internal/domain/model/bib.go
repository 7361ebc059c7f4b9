package model

// TextKind distinguishes whole OCR lines from single words.
type TextKind string

// Text detection kinds.
const (
	TextLineKind TextKind = "LINE"
	TextWordKind TextKind = "WORD"
)

// TextLine is a raw OCR detection.
type TextLine struct {
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"` // 0-100
	BoundingBox BoundingBox `json:"bounding_box"`
	Kind        TextKind    `json:"kind,omitempty"`
}

// BibDetection is a normalized bib number read from an image.
type BibDetection struct {
	Number      string      `json:"number"`
	Confidence  float64     `json:"confidence"` // 0-100
	BoundingBox BoundingBox `json:"bounding_box"`
}

// Athlete identifies a start-list entrant.
type Athlete struct {
	ID   string `json:"athlete_id"`
	Name string `json:"athlete_name"`
}

// StartListEntry maps a bib number to an athlete for one event.
type StartListEntry struct {
	EventID   string `json:"event_id" yaml:"event_id"`
	BibNumber string `json:"bib_number" yaml:"bib"`
	AthleteID string `json:"athlete_id" yaml:"athlete_id"`
	Name      string `json:"athlete_name" yaml:"name"`
}

// BibMatch is a bib detection resolved against the start list.
type BibMatch struct {
	BibDetection
	Athlete Athlete `json:"athlete"`
}
