package model

import "time"

// FusionJob asks the pipeline to run recognition for one image.
type FusionJob struct {
	JobID      string    // unique id for idempotency
	ImageID    string    // image record to write
	EventID    string    // start list to resolve bibs against
	ImageRef   string    // reference handed to the detection service
	Collection string    // face gallery; empty uses the configured default
	Submitted  time.Time // submission timestamp
}
