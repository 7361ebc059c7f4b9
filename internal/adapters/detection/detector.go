// Package detection talks to the face and text detection service.
package detection

import (
	"context"

	"github.com/okian/finishline/internal/domain/model"
)

// Default search parameters for gallery lookups.
const (
	DefaultSearchThreshold = 70
	DefaultMaxResults      = 1
)

// SearchRequest describes one gallery search for a detected face.
type SearchRequest struct {
	ImageRef    string            `json:"image_ref"`
	BoundingBox model.BoundingBox `json:"bounding_box"`
	Collection  string            `json:"collection"`
	Threshold   float64           `json:"threshold"`
	MaxResults  int               `json:"max_results"`
}

// Detector is the detection service surface used by the fusion pipeline.
type Detector interface {
	// DetectFaces returns every face in the image with its attributes. Match is nil.
	DetectFaces(ctx context.Context, imageRef string) ([]model.FaceCandidate, error)
	// SearchFace looks a face up in a gallery. No match is an empty slice.
	SearchFace(ctx context.Context, req SearchRequest) ([]model.FaceMatch, error)
	// DetectText returns raw OCR lines and words.
	DetectText(ctx context.Context, imageRef string) ([]model.TextLine, error)
}
