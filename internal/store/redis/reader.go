package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"trading-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string // consumer group name, e.g. "signalengine"
	ConsumerName  string // unique consumer name, e.g. hostname
}

// Reader is the Redis-backed model.SignalReader, plus live streaming
// helpers for external dashboard consumers (consumer-group XREADGROUP
// with PEL reclaim, aimed at the per-session signal streams).
type Reader struct {
	client        *goredis.Client
	consumerGroup string
	consumerName  string
	log           *slog.Logger
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	group := cfg.ConsumerGroup
	if group == "" {
		group = "signalengine"
	}
	consumer := cfg.ConsumerName
	if consumer == "" {
		consumer = "worker-1"
	}

	logger.Info("redis reader connected", "addr", cfg.Addr, "group", group, "consumer", consumer)
	return &Reader{client: client, consumerGroup: group, consumerName: consumer, log: logger}, nil
}

// ReadRecentSignals implements model.SignalReader: the last `limit` signals
// emitted for sessionID, most recent first. Reads straight off the
// session's XADD stream via XRevRange rather than a separate cache, since
// the stream already retains the window WriteSignal trims it to.
func (r *Reader) ReadRecentSignals(ctx context.Context, sessionID string, limit int) ([]model.SignalResult, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := r.client.XRevRangeN(ctx, signalStreamKey(sessionID), "+", "-", int64(limit)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: xrevrange %s: %w", sessionID, err)
	}

	out := make([]model.SignalResult, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var result model.SignalResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			r.log.Warn("redis: unmarshal signal failed", "id", msg.ID, "error", err)
			continue
		}
		out = append(out, result)
	}
	return out, nil
}

// EnsureConsumerGroup creates the reader's consumer group on each stream if
// it doesn't already exist, starting from "$" (new messages only).
func (r *Reader) EnsureConsumerGroup(ctx context.Context, streams []string) error {
	for _, stream := range streams {
		err := r.client.XGroupCreateMkStream(ctx, stream, r.consumerGroup, "$").Err()
		if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// ConsumeSignals reads newly emitted signals from the given session streams
// via the consumer group and sends them to out, ACKing each after delivery.
// Blocks until ctx is cancelled.
func (r *Reader) ConsumeSignals(ctx context.Context, streams []string, out chan<- model.SignalResult) error {
	args := make([]string, len(streams)*2)
	for i, s := range streams {
		args[i] = s
		args[len(streams)+i] = ">"
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		results, err := r.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    r.consumerGroup,
			Consumer: r.consumerName,
			Streams:  args,
			Count:    50,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == goredis.Nil || ctx.Err() != nil {
				continue
			}
			r.log.Warn("redis: xreadgroup error", "error", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range results {
			for _, msg := range stream.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
					continue
				}
				var result model.SignalResult
				if err := json.Unmarshal([]byte(data), &result); err != nil {
					r.log.Warn("redis: unmarshal signal failed", "error", err)
					r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
					continue
				}
				select {
				case out <- result:
				case <-ctx.Done():
					return ctx.Err()
				}
				r.client.XAck(ctx, stream.Stream, r.consumerGroup, msg.ID)
			}
		}
	}
}

// ReclaimStaleMessages finds PEL entries idle longer than minIdle across all
// consumers in the group and XCLAIMs them for this consumer, so a crashed
// consumer's unacked signals aren't lost.
func (r *Reader) ReclaimStaleMessages(ctx context.Context, stream string, minIdle time.Duration, batchSize int64) ([]goredis.XMessage, error) {
	pending, err := r.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  batchSize,
		Idle:   minIdle,
	}).Result()
	if err != nil || len(pending) == 0 {
		return nil, err
	}

	var staleIDs []string
	for _, p := range pending {
		if p.Consumer != r.consumerName {
			staleIDs = append(staleIDs, p.ID)
		}
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    r.consumerGroup,
		Consumer: r.consumerName,
		MinIdle:  minIdle,
		Messages: staleIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("xclaim %s: %w", stream, err)
	}
	return claimed, nil
}

// SubscribeSignalChannel live-streams every published signal for (symbol,
// timeframe) without the consumer-group durability guarantees — for a
// dashboard that only cares about "now", not replay.
func (r *Reader) SubscribeSignalChannel(ctx context.Context, symbol string, timeframe int, out chan<- model.SignalResult) error {
	pubsub := r.client.Subscribe(ctx, signalPubSubChannel(symbol, timeframe))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var result model.SignalResult
			if err := json.Unmarshal([]byte(msg.Payload), &result); err != nil {
				continue
			}
			select {
			case out <- result:
			default:
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
