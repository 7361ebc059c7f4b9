package review

import (
	"context"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/logger"
	"github.com/okian/finishline/pkg/metrics"
)

// Publisher broadcasts queue status changes.
type Publisher interface {
	Publish(ctx context.Context, ev model.QueueEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.QueueEvent) error { return nil }

// announce sends ev without letting a delivery failure affect the caller.
func announce(ctx context.Context, o options, ev model.QueueEvent) {
	if err := o.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		metrics.RecordNotificationError("publisher")
		o.log.Warn(ctx, "status change broadcast failed",
			logger.String("queue_item_id", ev.QueueItemID),
			logger.String("status", string(ev.NewStatus)),
			logger.Error(err),
		)
	}
}
