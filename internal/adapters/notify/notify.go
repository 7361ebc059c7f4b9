// Package notify broadcasts queue status changes to reviewers.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/finishline/internal/domain/model"
	"github.com/okian/finishline/pkg/metrics"
)

// Broadcaster delivers one queue event to one channel.
type Broadcaster interface {
	Publish(ctx context.Context, ev model.QueueEvent) error
}

// Sink is a named broadcaster; the name labels metrics.
type Sink struct {
	Name        string
	Broadcaster Broadcaster
}

// Fanout publishes every event to all sinks. A failing sink does not stop the others.
type Fanout struct {
	sinks []Sink
}

// NewFanout creates a fanout over sinks, skipping nil broadcasters.
func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s.Broadcaster != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish implements Broadcaster.
func (f *Fanout) Publish(ctx context.Context, ev model.QueueEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Broadcaster.Publish(ctx, ev); err != nil {
			metrics.RecordNotificationError(s.Name)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		metrics.RecordNotification(s.Name)
	}
	return errors.Join(errs...)
}

// Noop discards events.
type Noop struct{}

// Publish implements Broadcaster.
func (Noop) Publish(context.Context, model.QueueEvent) error { return nil }
