package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/internal/domain/types"
)

// ReadStore is what Reader needs from persistence.
type ReadStore interface {
	repository.QueueStore
	repository.ImageStore
}

// Reader serves the read side of the validation queue to viewers.
type Reader struct {
	store ReadStore
}

// NewReader creates a Reader over store.
func NewReader(store ReadStore) *Reader {
	return &Reader{store: store}
}

// List pages through items in status, oldest first. An empty status lists
// PENDING items.
func (r *Reader) List(ctx context.Context, actor model.Actor, status string, page, limit int) (types.Page[model.QueueItem], error) {
	if err := authorize(actor, model.RoleViewer); err != nil {
		return types.Page[model.QueueItem]{}, err
	}
	st := model.QueuePending
	if s := strings.ToUpper(strings.TrimSpace(status)); s != "" {
		parsed, ok := model.ParseQueueStatus(s)
		if !ok {
			return types.Page[model.QueueItem]{}, fmt.Errorf("%w: unknown status %q", ErrBadRequest, status)
		}
		st = parsed
	}
	if page < 1 || limit < 1 {
		return types.Page[model.QueueItem]{}, fmt.Errorf("%w: page and limit must be positive", ErrBadRequest)
	}

	items, total, err := r.store.ListByStatus(ctx, st, page, limit)
	if err != nil {
		return types.Page[model.QueueItem]{}, classify(err)
	}
	return types.NewPage(items, page, limit, total), nil
}

// Get returns one queue item.
func (r *Reader) Get(ctx context.Context, actor model.Actor, id string) (model.QueueItem, error) {
	if err := authorize(actor, model.RoleViewer); err != nil {
		return model.QueueItem{}, err
	}
	item, err := r.store.GetItem(ctx, id)
	return item, classify(err)
}

// Image returns the recognition summary of an image.
func (r *Reader) Image(ctx context.Context, actor model.Actor, imageID string) (model.ImageRecord, error) {
	if err := authorize(actor, model.RoleViewer); err != nil {
		return model.ImageRecord{}, err
	}
	img, err := r.store.GetImage(ctx, imageID)
	return img, classify(err)
}
