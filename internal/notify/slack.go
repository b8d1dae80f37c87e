package notify

import (
	"context"
	"fmt"

	slacklib "github.com/slack-go/slack"
)

// SlackSink posts breach alerts to an ops channel.
type SlackSink struct {
	api     *slacklib.Client
	channel string
}

func NewSlackSink(botToken, channel string) *SlackSink {
	return &SlackSink{
		api:     slacklib.New(botToken),
		channel: channel,
	}
}

func (s *SlackSink) Publish(ctx context.Context, ev Event) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slacklib.MsgOptionText(ev.Message, false))
	if err != nil {
		return fmt.Errorf("notify.SlackSink.Publish: %w", err)
	}
	return nil
}
