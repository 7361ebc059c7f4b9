package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state for transition")
	ErrConflict     = errors.New("concurrent modification")
	ErrInvalidPage  = errors.New("invalid page request")
)
