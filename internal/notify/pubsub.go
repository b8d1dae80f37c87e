package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher abstracts the pub/sub publish operation.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// PubSubSink publishes events as JSON onto a pub/sub channel so dashboards
// and downstream consumers can subscribe to breach notifications.
type PubSubSink struct {
	pub     Publisher
	channel string
}

func NewPubSubSink(pub Publisher, channel string) *PubSubSink {
	return &PubSubSink{pub: pub, channel: channel}
}

func (s *PubSubSink) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify.PubSubSink.Publish: marshal: %w", err)
	}
	if err := s.pub.Publish(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("notify.PubSubSink.Publish: %w", err)
	}
	return nil
}
