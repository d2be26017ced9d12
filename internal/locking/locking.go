package locking

import "context"

// Locker is the small interface the discovery service and the runtime
// matcher depend on (spec.md §5), so a Redis-backed implementation can be
// swapped in tests for an in-process fake — the same small-interface-plus-DI
// idiom internal/eventbus.EventBus already follows.
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease represents a held lock; Release must be called exactly once.
type Lease interface {
	Release(ctx context.Context) error
	Refresh(ctx context.Context) error
}
