package moderation

import (
	"context"
	"errors"

	"lounge/internal/cache"

	"github.com/redis/go-redis/v9"
)

// Bans manages the global ban marker and the cross-room kick counters
// that escalate into it. Reads default to the safe negative on store
// failure.
type Bans struct {
	rdb       *redis.Client
	threshold int
}

// NewBans returns a ban manager escalating at the given kick threshold.
func NewBans(rdb *redis.Client, threshold int) *Bans {
	return &Bans{rdb: rdb, threshold: threshold}
}

// IsGloballyBanned reports whether the username carries the global ban
// marker.
func (b *Bans) IsGloballyBanned(ctx context.Context, username string) bool {
	if b.rdb == nil {
		return false
	}
	val, err := b.rdb.Get(ctx, cache.GlobalBanKey(username)).Result()
	if err != nil {
		return false
	}
	return val == "true"
}

// SetGlobalBan marks the username globally banned. The marker carries no
// TTL; only ClearGlobalBan lifts it.
func (b *Bans) SetGlobalBan(ctx context.Context, username string) error {
	if b.rdb == nil {
		return errors.New("ban store unavailable")
	}
	return b.rdb.Set(ctx, cache.GlobalBanKey(username), "true", 0).Err()
}

// ClearGlobalBan lifts the username's global ban and resets the kick
// counter that produced it.
func (b *Bans) ClearGlobalBan(ctx context.Context, username string, userID uint) error {
	if b.rdb == nil {
		return errors.New("ban store unavailable")
	}
	pipe := b.rdb.TxPipeline()
	pipe.Del(ctx, cache.GlobalBanKey(username))
	pipe.Del(ctx, cache.KickedCountKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

// RecordKickAgainst increments the target's cross-room kick counter and
// sets the global ban marker when the threshold is reached. It returns
// the new count and whether this kick tripped the ban. Only the kick
// that lands exactly on the threshold trips it; later kicks do not
// re-announce.
func (b *Bans) RecordKickAgainst(ctx context.Context, username string, userID uint) (int64, bool, error) {
	if b.rdb == nil {
		return 0, false, errors.New("ban store unavailable")
	}
	count, err := b.rdb.Incr(ctx, cache.KickedCountKey(userID)).Result()
	if err != nil {
		return 0, false, err
	}
	if count == int64(b.threshold) {
		if err := b.SetGlobalBan(ctx, username); err != nil {
			return count, false, err
		}
		return count, true, nil
	}
	return count, false, nil
}

// KickCount returns the target's current cross-room kick count.
func (b *Bans) KickCount(ctx context.Context, userID uint) int64 {
	if b.rdb == nil {
		return 0
	}
	count, err := b.rdb.Get(ctx, cache.KickedCountKey(userID)).Int64()
	if err != nil {
		return 0
	}
	return count
}

// RecordKickBy increments the acting admin's kick statistic. Purely
// informational; failures are ignored by callers.
func (b *Bans) RecordKickBy(ctx context.Context, adminID uint) error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Incr(ctx, cache.AdminKickStatKey(adminID)).Err()
}

// KicksIssued returns how many kicks the admin has issued.
func (b *Bans) KicksIssued(ctx context.Context, adminID uint) int64 {
	if b.rdb == nil {
		return 0
	}
	count, err := b.rdb.Get(ctx, cache.AdminKickStatKey(adminID)).Int64()
	if err != nil {
		return 0
	}
	return count
}
