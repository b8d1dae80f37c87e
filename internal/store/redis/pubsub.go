package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dial connects and pings a Redis server.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.Dial: ping: %w", err)
	}

	return client, nil
}

type PubSub struct {
	client *redis.Client
}

func NewPubSub(client *redis.Client) *PubSub {
	return &PubSub{client: client}
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

// EscalationChannel is the pub/sub channel carrying breach notifications.
// Dashboards and downstream consumers subscribe to it directly.
const EscalationChannel = "escalations:breached"
