// Package dedupe tracks recently submitted fusion job ids so a redelivered
// job is accepted once.
package dedupe

import (
	"container/list"
	"context"
	"sync"

	"github.com/okian/finishline/pkg/metrics"
)

const defaultMaxSize = 50000

// Deduper records seen job ids.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was seen and records it if not.
	// Returns true for a duplicate.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a job refused downstream (queue full) can be
	// submitted again.
	Unrecord(ctx context.Context, id string)

	Size() int
}

// InMemoryDeduper remembers the most recent ids. Bounded mode evicts the
// oldest id first; a non-positive max size never evicts.
type InMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // front is newest
	maxSize int
}

var _ Deduper = (*InMemoryDeduper)(nil)

// NewInMemoryDeduper creates a deduper.
func NewInMemoryDeduper(opts ...Option) *InMemoryDeduper {
	d := &InMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

// SeenAndRecord implements Deduper.
func (d *InMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		metrics.RecordJobDuplicate()
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[id] = d.order.PushFront(id)
	return false
}

// Unrecord implements Deduper.
func (d *InMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.seen[id]; ok {
		d.order.Remove(el)
		delete(d.seen, id)
	}
}

// Size implements Deduper.
func (d *InMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
