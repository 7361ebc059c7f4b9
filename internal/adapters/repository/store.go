// Package repository persists validation queue items, image recognition
// summaries and event start lists.
package repository

import (
	"context"
	"math"
	"time"

	"github.com/okian/finishline/internal/domain/model"
)

// ItemMutation edits a queue item inside a conditional transition. Returning
// an error aborts the transition without writing anything.
type ItemMutation func(item *model.QueueItem) error

// ImageMutation edits the image summary owned by the transitioned item.
// It runs after ItemMutation and sees the mutated item.
type ImageMutation func(item model.QueueItem, image *model.ImageRecord) error

// QueueStore owns validation queue items.
type QueueStore interface {
	// ApplyFusion writes an image summary and its queue items as one unit.
	// Items whose id already exists are left untouched, so a redelivered
	// fusion pass is harmless. Returns the number of newly inserted items.
	ApplyFusion(ctx context.Context, image model.ImageRecord, items []model.QueueItem) (int, error)

	// GetItem returns ErrNotFound for unknown ids.
	GetItem(ctx context.Context, id string) (model.QueueItem, error)

	// ListByStatus pages through items with status ordered by creation time
	// ascending. page starts at 1. Returns the page and the total count.
	ListByStatus(ctx context.Context, status model.QueueStatus, page, limit int) ([]model.QueueItem, int, error)

	// Transition applies mutate to the item only if its stored status is one of
	// allowed and has not changed since it was read. propagate may be nil.
	// Errors: ErrNotFound, ErrInvalidState, ErrConflict, or the mutation error.
	Transition(ctx context.Context, id string, allowed []model.QueueStatus, mutate ItemMutation, propagate ImageMutation) (model.QueueItem, error)

	// ReleaseExpiredClaims returns CLAIMED items whose lease ended before now to PENDING.
	ReleaseExpiredClaims(ctx context.Context, now time.Time) (int, error)

	// PurgeResolved deletes APPROVED and REJECTED items last updated before cutoff.
	PurgeResolved(ctx context.Context, cutoff time.Time) (int, error)

	// CountByStatus returns the number of items per status.
	CountByStatus(ctx context.Context) (map[model.QueueStatus]int, error)
}

// ImageStore reads image recognition summaries.
type ImageStore interface {
	// GetImage returns ErrNotFound for unknown image ids.
	GetImage(ctx context.Context, imageID string) (model.ImageRecord, error)
}

// StartListStore resolves and seeds event start lists.
type StartListStore interface {
	LookupBib(ctx context.Context, eventID, bib string) (model.Athlete, bool, error)
	UpsertStartList(ctx context.Context, entries []model.StartListEntry) (int, error)
}

// Store bundles every persistence concern of the service.
type Store interface {
	QueueStore
	ImageStore
	StartListStore
	Close() error
}

// allowedStatus reports whether st is in allowed.
func allowedStatus(st model.QueueStatus, allowed []model.QueueStatus) bool {
	for _, a := range allowed {
		if a == st {
			return true
		}
	}
	return false
}

// validPage rejects non-positive values and pages whose offset overflows int.
func validPage(page, limit int) bool {
	return page >= 1 && limit >= 1 && page-1 <= math.MaxInt/limit
}

func pageBounds(page, limit, total int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return 0, 0
	}
	start := (page - 1) * limit
	if start >= total {
		return total, total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return start, end
}
