package locking

import (
	"context"
	"sync"
)

// MemoryLocker is an in-process Locker, used by tests and by a single-binary
// deployment that does not need cross-process serialisation. Production
// boot wiring uses RedisLocker; MemoryLocker exists so callers of Locker
// never need a live Redis instance just to exercise the discovery or
// matcher critical sections.
type MemoryLocker struct {
	mu     sync.Mutex
	locked map[string]bool
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locked: make(map[string]bool)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[key] {
		return nil, ErrLocked
	}
	l.locked[key] = true
	return &memoryLease{locker: l, key: key}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
}

func (l *memoryLease) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.locked, l.key)
	return nil
}

func (l *memoryLease) Refresh(ctx context.Context) error { return nil }
