package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// Decision names a reviewer action.
type Decision string

// Reviewer actions.
const (
	DecisionApprove  Decision = "approve"
	DecisionReject   Decision = "reject"
	DecisionReassign Decision = "reassign"
)

// DecisionHandler applies reviewer decisions to queue items and feeds them
// back into the image summary.
type DecisionHandler struct {
	store repository.QueueStore
	opts  options
}

// NewDecisionHandler creates a decision handler over store.
func NewDecisionHandler(store repository.QueueStore, opts ...Option) *DecisionHandler {
	return &DecisionHandler{store: store, opts: applyOptions(opts)}
}

// Approve confirms the recognition. Claims are advisory, so any editor may
// approve an open item.
func (h *DecisionHandler) Approve(ctx context.Context, actor model.Actor, id, notes string) (model.QueueItem, error) {
	return h.decide(ctx, DecisionApprove, actor, id,
		func(it *model.QueueItem, now timeStamp) error {
			it.Status = model.QueueApproved
			it.ApprovedBy = &now.actor
			it.ApprovedAt = &now.at
			if notes != "" {
				it.Notes = notes
			}
			return nil
		},
		func(it model.QueueItem, img *model.ImageRecord) error {
			if it.AthleteID != nil {
				img.ConfirmAthlete(*it.AthleteID)
			}
			img.RecognitionStatus = model.ImageApproved
			return nil
		},
	)
}

// Reject discards the recognition and retracts the athlete from the image.
// A blank reason is refused before the item is touched.
func (h *DecisionHandler) Reject(ctx context.Context, actor model.Actor, id, reason, notes string) (model.QueueItem, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		if err := authorize(actor, model.RoleEditor); err != nil {
			metrics.RecordDecision(string(DecisionReject), Kind(err))
			return model.QueueItem{}, err
		}
		metrics.RecordDecision(string(DecisionReject), Kind(ErrBadRequest))
		return model.QueueItem{}, fmt.Errorf("%w: rejection reason is required", ErrBadRequest)
	}
	return h.decide(ctx, DecisionReject, actor, id,
		func(it *model.QueueItem, now timeStamp) error {
			it.Status = model.QueueRejected
			it.RejectedBy = &now.actor
			it.RejectedAt = &now.at
			it.RejectionReason = &reason
			if notes != "" {
				it.Notes = notes
			}
			return nil
		},
		func(it model.QueueItem, img *model.ImageRecord) error {
			if it.AthleteID != nil {
				img.RetractAthlete(*it.AthleteID)
			}
			img.RecognitionStatus = model.ImageRejected
			return nil
		},
	)
}

// Reassign hands the item to another reviewer. Status and athlete stay as they are.
func (h *DecisionHandler) Reassign(ctx context.Context, actor model.Actor, id, target string) (model.QueueItem, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		if err := authorize(actor, model.RoleEditor); err != nil {
			metrics.RecordDecision(string(DecisionReassign), Kind(err))
			return model.QueueItem{}, err
		}
		metrics.RecordDecision(string(DecisionReassign), Kind(ErrBadRequest))
		return model.QueueItem{}, fmt.Errorf("%w: reassignment target is required", ErrBadRequest)
	}
	return h.decide(ctx, DecisionReassign, actor, id,
		func(it *model.QueueItem, now timeStamp) error {
			it.AssignedTo = &target
			it.AssignedAt = &now.at
			return nil
		},
		nil,
	)
}

type timeStamp struct {
	actor string
	at    time.Time
}

func (h *DecisionHandler) decide(
	ctx context.Context,
	decision Decision,
	actor model.Actor,
	id string,
	mutate func(*model.QueueItem, timeStamp) error,
	propagate repository.ImageMutation,
) (model.QueueItem, error) {
	if err := authorize(actor, model.RoleEditor); err != nil {
		metrics.RecordDecision(string(decision), Kind(err))
		return model.QueueItem{}, err
	}

	item, err := h.store.Transition(ctx, id, model.OpenStatuses(), func(it *model.QueueItem) error {
		return mutate(it, timeStamp{actor: actor.ID, at: h.opts.now().UTC()})
	}, propagate)
	err = classify(err)
	metrics.RecordDecision(string(decision), Kind(err))
	if err != nil {
		h.opts.log.Debug(ctx, "decision refused",
			logger.String("decision", string(decision)),
			logger.String("queue_item_id", id),
			logger.String("reviewer", actor.ID),
			logger.Error(err),
		)
		return model.QueueItem{}, err
	}

	h.opts.log.Info(ctx, "decision applied",
		logger.String("decision", string(decision)),
		logger.String("queue_item_id", id),
		logger.String("reviewer", actor.ID),
		logger.String("status", string(item.Status)),
	)
	announce(ctx, h.opts, model.QueueEvent{
		QueueItemID: item.ID,
		ImageID:     item.ImageID,
		NewStatus:   item.Status,
		Actor:       actor.ID,
		At:          item.UpdatedAt,
	})
	return item, nil
}
