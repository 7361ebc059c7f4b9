// Package fusion merges face matches and bib matches into ranked recognitions
// and routes each one to auto-approval, human review, or discard.
package fusion

import "fmt"

// Default routing thresholds on the 0-99 combined score scale.
const (
	DefaultAutoApprove = 85
	DefaultReview      = 50
	DefaultFaceMatch   = 70
)

// Thresholds configure routing for one fusion pass.
type Thresholds struct {
	// AutoApprove is the minimum combined score accepted without review.
	AutoApprove float64
	// Review is the minimum combined score queued for review when no athlete is named.
	Review float64
	// FaceMatch is the gallery similarity below which a face match names no athlete.
	FaceMatch float64
}

// DefaultThresholds returns the stock routing thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AutoApprove: DefaultAutoApprove,
		Review:      DefaultReview,
		FaceMatch:   DefaultFaceMatch,
	}
}

// Validate enforces 0 <= review <= autoApprove <= 100 and a 0-100 face threshold.
func (t Thresholds) Validate() error {
	switch {
	case t.Review < 0 || t.AutoApprove > 100:
		return fmt.Errorf("%w: thresholds must lie within 0-100", ErrInvalidThresholds)
	case t.AutoApprove < t.Review:
		return fmt.Errorf("%w: auto-approve %.2f below review %.2f", ErrInvalidThresholds, t.AutoApprove, t.Review)
	case t.FaceMatch < 0 || t.FaceMatch > 100:
		return fmt.Errorf("%w: face match threshold %.2f out of range", ErrInvalidThresholds, t.FaceMatch)
	}
	return nil
}
