package model

import "time"

// QueueStatus is the state of a validation queue item.
type QueueStatus string

// Queue item statuses. APPROVED and REJECTED are terminal.
const (
	QueuePending  QueueStatus = "PENDING"
	QueueClaimed  QueueStatus = "CLAIMED"
	QueueApproved QueueStatus = "APPROVED"
	QueueRejected QueueStatus = "REJECTED"
)

// ParseQueueStatus validates a status string.
func ParseQueueStatus(s string) (QueueStatus, bool) {
	switch st := QueueStatus(s); st {
	case QueuePending, QueueClaimed, QueueApproved, QueueRejected:
		return st, true
	}
	return "", false
}

// Terminal reports whether no transition may leave the status.
func (s QueueStatus) Terminal() bool {
	return s == QueueApproved || s == QueueRejected
}

// OpenStatuses are the statuses a reviewer decision may start from.
func OpenStatuses() []QueueStatus {
	return []QueueStatus{QueuePending, QueueClaimed}
}

// QueueItem is a recognition waiting for (or resolved by) human review.
type QueueItem struct {
	ID              string      `json:"queue_item_id"`
	ImageID         string      `json:"image_id"`
	EventID         string      `json:"event_id,omitempty"`
	AthleteID       *string     `json:"athlete_id"`
	AthleteName     *string     `json:"athlete_name,omitempty"`
	FaceIndex       *int        `json:"face_index"`
	Confidence      float64     `json:"confidence"`
	CombinedScore   float64     `json:"combined_score"`
	BoundingBox     BoundingBox `json:"bounding_box"`
	BibNumber       *string     `json:"bib_number"`
	Status          QueueStatus `json:"status"`
	ClaimedBy       *string     `json:"claimed_by"`
	ClaimedAt       *time.Time  `json:"claimed_at"`
	ClaimedUntil    *time.Time  `json:"claimed_until"`
	ApprovedBy      *string     `json:"approved_by"`
	ApprovedAt      *time.Time  `json:"approved_at"`
	RejectedBy      *string     `json:"rejected_by"`
	RejectedAt      *time.Time  `json:"rejected_at"`
	RejectionReason *string     `json:"rejection_reason"`
	AssignedTo      *string     `json:"assigned_to"`
	AssignedAt      *time.Time  `json:"assigned_at"`
	Notes           string      `json:"notes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// ClaimExpired reports whether the item's claim lease has lapsed at now.
// Items without a lease are treated as expired.
func (q *QueueItem) ClaimExpired(now time.Time) bool {
	return q.ClaimedUntil == nil || !now.Before(*q.ClaimedUntil)
}

// ReleaseClaim clears claim fields and returns the item to PENDING.
func (q *QueueItem) ReleaseClaim() {
	q.Status = QueuePending
	q.ClaimedBy = nil
	q.ClaimedAt = nil
	q.ClaimedUntil = nil
}
