package eventbus

import "context"

// EventHandler processes one decoded event. Returning an error leaves the
// underlying message unacknowledged in the consumer group's pending-entries
// list; RedisEventBus.consume reads only new entries, so it does not
// redeliver that message itself.
type EventHandler func(ctx context.Context, payload map[string]interface{}) error

// Subscription represents an active consumer registered against a topic.
type Subscription interface {
	ID() string
	Topic() string
	Unsubscribe() error
}

// EventBus is the small adapter interface the matcher worker and the
// discovery-request consumer depend on, so the Redis-backed implementation
// can be swapped in tests for an in-memory fake.
type EventBus interface {
	Publish(ctx context.Context, topic string, event interface{}) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error)
	Close() error
}
