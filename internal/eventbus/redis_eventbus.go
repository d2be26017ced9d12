package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// consumerGroup is the shared Redis Streams consumer group name every
// instance of a binary joins, so that two replicas processing the same
// stream split the work rather than each reprocessing every message.
const consumerGroup = "recurring-engine-workers"

// RedisEventBus is a Redis Streams-backed EventBus using consumer groups,
// adapted from the teacher's worker/internal/eventbus/redis_eventbus.go. A
// message is acknowledged only after its handler succeeds; a failed message
// stays in the group's pending-entries list. Consumers read only new
// entries (">") and do not re-read or claim pending ones.
type RedisEventBus struct {
	client      *redis.Client
	logger      *zap.Logger
	subscribers map[string][]*redisSubscription
	mutex       sync.RWMutex
}

type redisSubscription struct {
	id      string
	topic   string
	handler EventHandler
	bus     *RedisEventBus
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRedisEventBus dials Redis at addr and verifies connectivity with PING.
func NewRedisEventBus(addr, password string, db int, logger *zap.Logger) (*RedisEventBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisEventBus{
		client:      client,
		logger:      logger,
		subscribers: make(map[string][]*redisSubscription),
	}, nil
}

// Publish appends event to the stream named topic via XADD.
func (r *RedisEventBus) Publish(ctx context.Context, topic string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{"payload": data},
	}).Err()
}

// Subscribe registers handler against topic's consumer group and starts a
// goroutine reading new entries with XReadGroup, acking only on success.
func (r *RedisEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		id:      uuid.New().String(),
		topic:   topic,
		handler: handler,
		bus:     r,
		ctx:     subCtx,
		cancel:  cancel,
	}

	r.mutex.Lock()
	r.subscribers[topic] = append(r.subscribers[topic], sub)
	r.mutex.Unlock()

	go r.consume(sub)
	return sub, nil
}

func (r *RedisEventBus) consume(sub *redisSubscription) {
	consumerName := "consumer-" + sub.id

	_ = r.client.XGroupCreateMkStream(sub.ctx, sub.topic, consumerGroup, "0").Err()

	r.logger.Info("started stream consumer", zap.String("topic", sub.topic), zap.String("group", consumerGroup))

	for {
		select {
		case <-sub.ctx.Done():
			return
		default:
		}

		streams, err := r.client.XReadGroup(sub.ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{sub.topic, ">"},
			Count:    10,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err != redis.Nil && sub.ctx.Err() == nil {
				r.logger.Error("stream read failed", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := r.handle(sub, msg); err != nil {
					r.logger.Error("event handler failed, leaving unacked",
						zap.String("msg_id", msg.ID), zap.Error(err))
					continue
				}
				r.client.XAck(sub.ctx, sub.topic, consumerGroup, msg.ID)
			}
		}
	}
}

func (r *RedisEventBus) handle(sub *redisSubscription, msg redis.XMessage) error {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return fmt.Errorf("message %s has no payload field", msg.ID)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	payload["_msg_id"] = msg.ID

	return sub.handler(sub.ctx, payload)
}

// Close shuts down the underlying Redis client; it does not cancel active
// subscriptions (callers should Unsubscribe or cancel their own context).
func (r *RedisEventBus) Close() error {
	return r.client.Close()
}

func (s *redisSubscription) ID() string    { return s.id }
func (s *redisSubscription) Topic() string { return s.topic }
func (s *redisSubscription) Unsubscribe() error {
	s.cancel()
	return nil
}
