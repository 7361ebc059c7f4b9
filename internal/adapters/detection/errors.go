package detection

import "errors"

// Sentinel kinds for detection errors.
var (
	// ErrInvalidParameter is returned when the service refuses the request,
	// for example a face crop too small to search.
	ErrInvalidParameter = errors.New("invalid detection parameter")
	ErrUnavailable      = errors.New("detection service unavailable")
	ErrImageNotFound    = errors.New("image not found")
)
