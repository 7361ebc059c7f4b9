// Package review implements reviewer claims and decisions on validation queue items.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// ClaimManager leases queue items to reviewers.
type ClaimManager struct {
	store repository.QueueStore
	opts  options
}

// NewClaimManager creates a claim manager over store.
func NewClaimManager(store repository.QueueStore, opts ...Option) *ClaimManager {
	return &ClaimManager{store: store, opts: applyOptions(opts)}
}

// Lease returns the configured claim duration.
func (m *ClaimManager) Lease() time.Duration { return m.opts.lease }

// Claim marks the item CLAIMED by actor until now plus the lease. A live claim
// held by someone else is a conflict; an expired one is taken over. Claiming
// an item one already holds refreshes the lease.
func (m *ClaimManager) Claim(ctx context.Context, actor model.Actor, id string) (model.QueueItem, error) {
	if err := authorize(actor, model.RoleViewer); err != nil {
		metrics.RecordClaim(Kind(err))
		return model.QueueItem{}, err
	}

	var takeover bool
	item, err := m.store.Transition(ctx, id, model.OpenStatuses(), func(it *model.QueueItem) error {
		now := m.opts.now().UTC()
		if it.Status == model.QueueClaimed && it.ClaimedBy != nil && *it.ClaimedBy != actor.ID {
			if !it.ClaimExpired(now) {
				return fmt.Errorf("%w: claimed by %s until %s", ErrConflict, *it.ClaimedBy, it.ClaimedUntil.Format(time.RFC3339))
			}
			takeover = true
		}
		until := now.Add(m.opts.lease)
		reviewer := actor.ID
		it.Status = model.QueueClaimed
		it.ClaimedBy = &reviewer
		it.ClaimedAt = &now
		it.ClaimedUntil = &until
		return nil
	}, nil)
	err = classify(err)
	if err != nil {
		metrics.RecordClaim(Kind(err))
		m.opts.log.Debug(ctx, "claim refused",
			logger.String("queue_item_id", id),
			logger.String("reviewer", actor.ID),
			logger.Error(err),
		)
		return model.QueueItem{}, err
	}

	outcome := "acquired"
	if takeover {
		outcome = "takeover"
	}
	metrics.RecordClaim(outcome)
	m.opts.log.Info(ctx, "queue item claimed",
		logger.String("queue_item_id", id),
		logger.String("reviewer", actor.ID),
		logger.String("outcome", outcome),
	)
	announce(ctx, m.opts, model.QueueEvent{
		QueueItemID: item.ID,
		ImageID:     item.ImageID,
		NewStatus:   item.Status,
		Actor:       actor.ID,
		At:          item.UpdatedAt,
	})
	return item, nil
}
