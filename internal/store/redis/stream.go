package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/casebridge/internal/domain"
	"github.com/gosuda/casebridge/internal/dispatch"
)

// recordField is the stream entry field holding the JSON-encoded change
// record.
const recordField = "record"

// Consumer reads ordered change-record batches from a Redis stream consumer
// group. The upstream log may redeliver; everything downstream is idempotent,
// so entries are acked as soon as their batch is handled, failed records
// included (those live on in the dead-letter table, not in the stream).
type Consumer struct {
	client    *redis.Client
	stream    string
	group     string
	name      string
	batchSize int64
	block     time.Duration
}

func NewConsumer(client *redis.Client, stream, group, name string, batchSize int, block time.Duration) *Consumer {
	return &Consumer{
		client:    client,
		stream:    stream,
		group:     group,
		name:      name,
		batchSize: int64(batchSize),
		block:     block,
	}
}

// EnsureGroup creates the consumer group at the stream head, tolerating an
// already-existing group.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis.Consumer.EnsureGroup: %w", err)
	}
	return nil
}

// Run reads and dispatches batches until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, dispatcher *dispatch.Dispatcher) {
	log.Info().Str("stream", c.stream).Str("group", c.group).Msg("change stream consumer started")

	for {
		if ctx.Err() != nil {
			log.Info().Msg("change stream consumer stopped")
			return
		}

		batch, ids, err := c.read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			log.Error().Err(err).Msg("change stream read failed")
			continue
		}
		if len(batch.Records) == 0 {
			continue
		}

		dispatcher.ProcessBatch(ctx, batch)

		if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
			log.Error().Err(err).Msg("change stream ack failed")
		}
	}
}

// read blocks for up to the configured window and decodes one batch.
// Entries whose record field is missing or unparseable are passed through as
// malformed records so the dispatcher counts them instead of silently
// dropping them.
func (c *Consumer) read(ctx context.Context) (domain.ChangeBatch, []string, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return domain.ChangeBatch{}, nil, nil
	}
	if err != nil {
		return domain.ChangeBatch{}, nil, fmt.Errorf("redis.Consumer.read: %w", err)
	}

	batch := domain.ChangeBatch{
		BatchID: uuid.NewString(),
		Source:  c.stream,
	}

	var ids []string
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ids = append(ids, msg.ID)

			rec := domain.ChangeRecord{RecordID: msg.ID}
			if raw, ok := msg.Values[recordField].(string); ok {
				if err := json.Unmarshal([]byte(raw), &rec); err != nil {
					log.Warn().Err(err).Str("message_id", msg.ID).Msg("malformed stream entry")
				}
				if rec.RecordID == "" {
					rec.RecordID = msg.ID
				}
			}
			batch.Records = append(batch.Records, rec)
		}
	}

	return batch, ids, nil
}
