// Package queue consumes trading signals from a Redis stream. Messages are
// acknowledged only after the decision reaches a terminal outcome, so a crash
// mid-decision leaves the entry pending for redelivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bybit-signal-trader/config"
	"bybit-signal-trader/internal/trader"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	payloadField = "payload"
	readBlock    = 5 * time.Second
	readCount    = 10
)

// Processor runs one signal through a decision and reports whether it reached
// a terminal outcome. A non-nil error means the message must not be
// acknowledged.
type Processor interface {
	Process(ctx context.Context, sig *trader.Signal) (*trader.Result, error)
}

// Consumer reads signals from a Redis stream consumer group
type Consumer struct {
	client    *redis.Client
	stream    string
	group     string
	name      string
	processor Processor
	logger    zerolog.Logger
}

// NewConsumer creates a stream consumer. The consumer name is unique per
// process so pending entries can be traced to the instance that claimed them.
func NewConsumer(cfg config.RedisConfig, processor Processor, logger zerolog.Logger) *Consumer {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	host, err := os.Hostname()
	if err != nil {
		host = "trader"
	}

	return &Consumer{
		client:    client,
		stream:    cfg.Stream,
		group:     cfg.Group,
		name:      host + "-" + uuid.NewString()[:8],
		processor: processor,
		logger:    logger.With().Str("component", "queue").Str("stream", cfg.Stream).Logger(),
	}
}

// Ping verifies the Redis connection
func (c *Consumer) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (c *Consumer) Close() error {
	return c.client.Close()
}

// Run consumes signals until ctx is cancelled. Entries left pending by a
// previous instance of this group are claimed first.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	c.logger.Info().Str("group", c.group).Str("consumer", c.name).Msg("consuming signals")

	if err := c.claimPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn().Err(err).Msg("claiming pending entries failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{c.stream, ">"},
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("stream read failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handle(ctx, msg)
			}
		}
	}
}

// ensureGroup creates the consumer group, tolerating a group that already
// exists. MKSTREAM lets the trader start before the first producer.
func (c *Consumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s: %w", c.group, err)
	}
	return nil
}

// claimPending takes over entries a crashed consumer never acknowledged.
// Staleness gates in the decision pipeline make old redeliveries harmless.
func (c *Consumer) claimPending(ctx context.Context) error {
	start := "0-0"
	for {
		msgs, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  time.Minute,
			Start:    start,
			Count:    readCount,
		}).Result()
		if err != nil {
			return err
		}
		for _, msg := range msgs {
			c.logger.Info().Str("message_id", msg.ID).Msg("reprocessing pending signal")
			c.handle(ctx, msg)
		}
		if next == "0-0" || len(msgs) == 0 {
			return nil
		}
		start = next
	}
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) {
	logger := c.logger.With().Str("message_id", msg.ID).Logger()

	sig, err := decodeSignal(msg)
	if err != nil {
		// A malformed message will never parse on redelivery; acknowledge it
		// so it cannot poison the group.
		logger.Warn().Err(err).Msg("discarding malformed signal")
		c.ack(ctx, logger, msg.ID)
		return
	}

	result, err := c.processor.Process(ctx, sig)
	if err != nil {
		// Storage fault: leave the entry pending so it is redelivered once
		// the fault clears.
		logger.Error().Err(err).Str("signal", sig.String()).Msg("decision failed, leaving signal pending")
		return
	}

	logger.Debug().
		Str("signal", sig.String()).
		Str("outcome", string(result.Outcome)).
		Msg("signal processed")
	c.ack(ctx, logger, msg.ID)
}

func (c *Consumer) ack(ctx context.Context, logger zerolog.Logger, id string) {
	if err := c.client.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		logger.Error().Err(err).Msg("ack failed")
	}
}

func decodeSignal(msg redis.XMessage) (*trader.Signal, error) {
	raw, ok := msg.Values[payloadField].(string)
	if !ok {
		return nil, fmt.Errorf("message %s has no %s field", msg.ID, payloadField)
	}

	var sig trader.Signal
	if err := json.Unmarshal([]byte(raw), &sig); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return &sig, nil
}
