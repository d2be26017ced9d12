package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisLocker serialises a unit of work identified by key across every
// process sharing the same Redis instance. spec.md §5 requires this for
// two distinct scopes: one advisory lock per user for the discovery path,
// and one lock per (user, payee, direction, currency) for the runtime
// matcher path, so that two workers never race on upsert_pattern or on
// rolling the next obligation for the same pattern family. It implements
// the Locker interface.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker builds a RedisLocker against client with the given lock TTL.
// The TTL must exceed the longest expected critical section (a single
// discovery run or a single transaction's matcher pass) so the lock cannot
// expire out from under in-flight work; a caller holding a long-running
// section should periodically Refresh.
func NewLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

// redisLease implements Lease against a RedisLocker.
type redisLease struct {
	key   string
	token string
	lk    *RedisLocker
}

// Acquire attempts to take the lock for key using SET NX PX, returning
// ErrLocked immediately if another holder has it (discovery and the matcher
// both want to fail fast and retry later rather than block indefinitely).
func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, lockKey(key), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLease{key: key, token: token, lk: l}, nil
}

// Refresh extends the lease's TTL if this process still holds it.
func (lease *redisLease) Refresh(ctx context.Context) error {
	res, err := refreshScript.Run(ctx, lease.lk.client, []string{lockKey(lease.key)}, lease.token, lease.lk.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("refresh lock %s: %w", lease.key, err)
	}
	if res == int64(0) {
		return ErrLockLost
	}
	return nil
}

// Release drops the lock if this process still holds it (compare-and-delete
// on the token, so a lease that already expired and was re-acquired by
// another holder is never released out from under them).
func (lease *redisLease) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, lease.lk.client, []string{lockKey(lease.key)}, lease.token).Result()
	if err != nil {
		return fmt.Errorf("release lock %s: %w", lease.key, err)
	}
	return nil
}

func lockKey(key string) string {
	return "lock:" + key
}

var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`)

	refreshScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// ErrLocked and ErrLockLost are defined in errors.go.
