package model

import "time"

// QueueEvent announces a queue item status change to reviewers.
type QueueEvent struct {
	QueueItemID string      `json:"queue_item_id"`
	ImageID     string      `json:"image_id,omitempty"`
	NewStatus   QueueStatus `json:"new_status"`
	Actor       string      `json:"actor,omitempty"`
	At          time.Time   `json:"at"`
}
