package service

import "errors"

// Sentinel kinds for job submission.
var (
	ErrInvalidJob   = errors.New("invalid fusion job")
	ErrDuplicateJob = errors.New("duplicate fusion job")
	ErrQueueFull    = errors.New("fusion job queue full")
	ErrNotStarted   = errors.New("service not started")
)
