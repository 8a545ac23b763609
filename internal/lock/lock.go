// Package lock provides small Redis-backed mutual exclusion primitives.
package lock

import (
	"context"
	"errors"
	"time"

	"lounge/internal/cache"
	"lounge/internal/observability"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when no Redis client is configured.
var ErrUnavailable = errors.New("lock store unavailable")

// ErrNotAcquired is returned when the lock is already held.
var ErrNotAcquired = errors.New("lock already held")

// Manager acquires single-writer locks with SET NX EX. Every lock carries
// a TTL so that a crashed holder can never wedge the resource; release is
// best-effort on top of that.
type Manager struct {
	rdb *redis.Client
}

// NewManager returns a lock manager over the given Redis client.
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb}
}

// Handle represents one held lock.
type Handle struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire takes the named lock for at most ttl. It does not block: a held
// lock returns ErrNotAcquired immediately.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	if m.rdb == nil {
		return nil, ErrUnavailable
	}
	token := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		observability.TransferLockContention.WithLabelValues("error").Inc()
		return nil, err
	}
	if !ok {
		observability.TransferLockContention.WithLabelValues("contended").Inc()
		return nil, ErrNotAcquired
	}
	observability.TransferLockContention.WithLabelValues("acquired").Inc()
	return &Handle{rdb: m.rdb, key: key, token: token}, nil
}

// AcquireTransfer takes the per-sender transfer lock.
func (m *Manager) AcquireTransfer(ctx context.Context, senderID uint, ttl time.Duration) (*Handle, error) {
	return m.Acquire(ctx, cache.TransferLockKey(senderID), ttl)
}

// releaseScript deletes the lock only if it still holds our token, so an
// expired-and-reacquired lock is never released out from under the new
// holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release frees the lock if it is still held by this handle. Releasing an
// expired lock is not an error.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || h.rdb == nil {
		return nil
	}
	return releaseScript.Run(ctx, h.rdb, []string{h.key}, h.token).Err()
}
