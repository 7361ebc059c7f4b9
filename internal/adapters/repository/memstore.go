package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/metrics"
)

// MemoryStore is an in-process Store. Every operation runs under one mutex,
// so transitions are trivially conditional.
type MemoryStore struct {
	mu        sync.RWMutex
	items     map[string]*memItem
	images    map[string]model.ImageRecord
	startList map[string]model.Athlete // event/bib -> athlete
	seq       uint64
	opts      options
}

type memItem struct {
	item model.QueueItem
	seq  uint64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryStore{
		items:     make(map[string]*memItem),
		images:    make(map[string]model.ImageRecord),
		startList: make(map[string]model.Athlete),
		opts:      o,
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// ApplyFusion implements QueueStore.
func (s *MemoryStore) ApplyFusion(_ context.Context, image model.ImageRecord, items []model.QueueItem) (int, error) {
	defer observeUpdate(time.Now())
	if image.ImageID == "" {
		return 0, fmt.Errorf("apply fusion: %w: empty image id", ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, it := range items {
		if _, ok := s.items[it.ID]; ok {
			continue
		}
		s.seq++
		s.items[it.ID] = &memItem{item: it, seq: s.seq}
		inserted++
	}
	// A redelivered pass keeps the stored summary so review decisions survive.
	if _, ok := s.images[image.ImageID]; ok && inserted == 0 && len(items) > 0 {
		return 0, nil
	}
	s.images[image.ImageID] = cloneImage(image)
	return inserted, nil
}

// GetItem implements QueueStore.
func (s *MemoryStore) GetItem(_ context.Context, id string) (model.QueueItem, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	mi, ok := s.items[id]
	if !ok {
		return model.QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	return mi.item, nil
}

// ListByStatus implements QueueStore.
func (s *MemoryStore) ListByStatus(_ context.Context, status model.QueueStatus, page, limit int) ([]model.QueueItem, int, error) {
	defer observeQuery(time.Now())
	if !validPage(page, limit) {
		return nil, 0, ErrInvalidPage
	}

	s.mu.RLock()
	matched := make([]*memItem, 0)
	for _, mi := range s.items {
		if mi.item.Status == status {
			matched = append(matched, mi)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
			return a.item.CreatedAt.Before(b.item.CreatedAt)
		}
		return a.seq < b.seq
	})

	start, end := pageBounds(page, limit, len(matched))
	out := make([]model.QueueItem, 0, end-start)
	for _, mi := range matched[start:end] {
		out = append(out, mi.item)
	}
	return out, len(matched), nil
}

// Transition implements QueueStore.
func (s *MemoryStore) Transition(_ context.Context, id string, allowed []model.QueueStatus, mutate ItemMutation, propagate ImageMutation) (model.QueueItem, error) {
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	mi, ok := s.items[id]
	if !ok {
		return model.QueueItem{}, fmt.Errorf("queue item %s: %w", id, ErrNotFound)
	}
	if !allowedStatus(mi.item.Status, allowed) {
		return mi.item, fmt.Errorf("queue item %s is %s: %w", id, mi.item.Status, ErrInvalidState)
	}

	next := mi.item
	if err := mutate(&next); err != nil {
		return mi.item, err
	}
	next.UpdatedAt = s.opts.now().UTC()

	var img model.ImageRecord
	if propagate != nil {
		cur, ok := s.images[next.ImageID]
		if !ok {
			return mi.item, fmt.Errorf("image %s: %w", next.ImageID, ErrNotFound)
		}
		img = cloneImage(cur)
		if err := propagate(next, &img); err != nil {
			return mi.item, err
		}
		img.UpdatedAt = next.UpdatedAt
	}

	mi.item = next
	if propagate != nil {
		s.images[img.ImageID] = img
	}
	return next, nil
}

// ReleaseExpiredClaims implements QueueStore.
func (s *MemoryStore) ReleaseExpiredClaims(_ context.Context, now time.Time) (int, error) {
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, mi := range s.items {
		if mi.item.Status != model.QueueClaimed || !mi.item.ClaimExpired(now) {
			continue
		}
		mi.item.ReleaseClaim()
		mi.item.UpdatedAt = s.opts.now().UTC()
		released++
	}
	return released, nil
}

// PurgeResolved implements QueueStore.
func (s *MemoryStore) PurgeResolved(_ context.Context, cutoff time.Time) (int, error) {
	defer observeUpdate(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, mi := range s.items {
		if mi.item.Status.Terminal() && mi.item.UpdatedAt.Before(cutoff) {
			delete(s.items, id)
			purged++
		}
	}
	return purged, nil
}

// CountByStatus implements QueueStore.
func (s *MemoryStore) CountByStatus(_ context.Context) (map[model.QueueStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.QueueStatus]int, 4)
	for _, mi := range s.items {
		counts[mi.item.Status]++
	}
	return counts, nil
}

// GetImage implements ImageStore.
func (s *MemoryStore) GetImage(_ context.Context, imageID string) (model.ImageRecord, error) {
	defer observeQuery(time.Now())
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[imageID]
	if !ok {
		return model.ImageRecord{}, fmt.Errorf("image %s: %w", imageID, ErrNotFound)
	}
	return cloneImage(img), nil
}

// LookupBib implements StartListStore.
func (s *MemoryStore) LookupBib(_ context.Context, eventID, bib string) (model.Athlete, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.startList[startListKey(eventID, bib)]
	return a, ok, nil
}

// UpsertStartList implements StartListStore.
func (s *MemoryStore) UpsertStartList(_ context.Context, entries []model.StartListEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.startList[startListKey(e.EventID, e.BibNumber)] = model.Athlete{ID: e.AthleteID, Name: e.Name}
	}
	return len(entries), nil
}

func startListKey(eventID, bib string) string { return eventID + "\x00" + bib }

// cloneImage copies the slices of an image record so callers cannot mutate
// stored state.
func cloneImage(img model.ImageRecord) model.ImageRecord {
	out := img
	out.RecognizedAthletes = append([]model.Recognition(nil), img.RecognizedAthletes...)
	out.FaceAttributes = append([]model.FaceCandidate(nil), img.FaceAttributes...)
	if out.RecognizedAthletes == nil {
		out.RecognizedAthletes = []model.Recognition{}
	}
	if out.FaceAttributes == nil {
		out.FaceAttributes = []model.FaceCandidate{}
	}
	return out
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000)
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
}
