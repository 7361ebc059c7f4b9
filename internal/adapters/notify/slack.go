package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/okian/finishline/internal/domain/model"
)

// SlackPoster is the subset of *slack.Client used here.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts queue decisions to a channel.
type Slack struct {
	api     SlackPoster
	channel string
	// statuses limits which transitions are posted; empty posts all.
	statuses map[model.QueueStatus]bool
}

// NewSlack creates a Slack broadcaster. With no statuses every event is posted.
func NewSlack(api SlackPoster, channel string, statuses ...model.QueueStatus) *Slack {
	s := &Slack{api: api, channel: channel}
	if len(statuses) > 0 {
		s.statuses = make(map[model.QueueStatus]bool, len(statuses))
		for _, st := range statuses {
			s.statuses[st] = true
		}
	}
	return s
}

// NewSlackClient builds a Slack broadcaster from a bot token.
func NewSlackClient(token, channel string, opts ...slack.Option) *Slack {
	return NewSlack(slack.New(token, opts...), channel, model.QueueApproved, model.QueueRejected)
}

// Publish implements Broadcaster.
func (s *Slack) Publish(ctx context.Context, ev model.QueueEvent) error {
	if s.statuses != nil && !s.statuses[ev.NewStatus] {
		return nil
	}
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(slackText(ev), false))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	return nil
}

func slackText(ev model.QueueEvent) string {
	actor := ev.Actor
	if actor == "" {
		actor = "system"
	}
	text := fmt.Sprintf("Queue item `%s` is now *%s* (by %s)", ev.QueueItemID, ev.NewStatus, actor)
	if ev.ImageID != "" {
		text += fmt.Sprintf(", image `%s`", ev.ImageID)
	}
	return text
}
