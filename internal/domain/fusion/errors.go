package fusion

import "errors"

// Sentinel kinds for fusion errors.
var (
	ErrInvalidThresholds = errors.New("invalid fusion thresholds")
	ErrInvalidInput      = errors.New("invalid fusion input")
)
