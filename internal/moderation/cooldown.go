// Package moderation owns every timed restriction around room entry:
// kick and vote-kick cooldowns, the escalating global ban, and the
// admission gate that evaluates them in order.
package moderation

import (
	"context"
	"errors"
	"time"

	"lounge/internal/cache"
	"lounge/internal/config"

	"github.com/redis/go-redis/v9"
)

// Cooldowns manages the TTL'd markers that temporarily block actions.
// Reads default to the safe negative on store failure: an unreachable
// store degrades to reduced moderation, never to denied access.
type Cooldowns struct {
	rdb *redis.Client
	cfg config.PresenceConfig
}

// NewCooldowns returns a cooldown manager.
func NewCooldowns(rdb *redis.Client, cfg config.PresenceConfig) *Cooldowns {
	return &Cooldowns{rdb: rdb, cfg: cfg}
}

func (c *Cooldowns) set(ctx context.Context, key string, ttl time.Duration) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Set(ctx, key, "1", ttl).Err()
}

// remaining returns the time left on a marker, or zero if absent or the
// store is unreachable.
func (c *Cooldowns) remaining(ctx context.Context, key string) time.Duration {
	if c.rdb == nil {
		return 0
	}
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return 0
	}
	return ttl
}

// ApplyAdminKick blocks the kicked username from the room.
func (c *Cooldowns) ApplyAdminKick(ctx context.Context, username, roomID string) error {
	return c.set(ctx, cache.AdminKickCooldownKey(username, roomID),
		time.Duration(c.cfg.KickCooldownSeconds)*time.Second)
}

// AdminKickRemaining reports how long the kicked username stays blocked.
func (c *Cooldowns) AdminKickRemaining(ctx context.Context, username, roomID string) time.Duration {
	return c.remaining(ctx, cache.AdminKickCooldownKey(username, roomID))
}

// ApplyVoteKick blocks a vote-kicked username from the room.
func (c *Cooldowns) ApplyVoteKick(ctx context.Context, username, roomID string) error {
	return c.set(ctx, cache.VoteKickCooldownKey(username, roomID),
		time.Duration(c.cfg.VoteKickCooldownSeconds)*time.Second)
}

// VoteKickRemaining reports how long a vote-kicked username stays blocked.
func (c *Cooldowns) VoteKickRemaining(ctx context.Context, username, roomID string) time.Duration {
	return c.remaining(ctx, cache.VoteKickCooldownKey(username, roomID))
}

// ApplyAdminRejoin blocks the kicking admin from re-entering the room
// they just cleared someone from.
func (c *Cooldowns) ApplyAdminRejoin(ctx context.Context, adminID uint, roomID string) error {
	return c.set(ctx, cache.AdminRejoinCooldownKey(adminID, roomID),
		time.Duration(c.cfg.AdminRejoinSeconds)*time.Second)
}

// AdminRejoinRemaining reports the kicking admin's remaining lockout.
func (c *Cooldowns) AdminRejoinRemaining(ctx context.Context, adminID uint, roomID string) time.Duration {
	return c.remaining(ctx, cache.AdminRejoinCooldownKey(adminID, roomID))
}

// ApplyBump blocks immediate re-entry after a temporary remove.
func (c *Cooldowns) ApplyBump(ctx context.Context, roomID string, userID uint) error {
	return c.set(ctx, cache.BumpKey(roomID, userID),
		time.Duration(c.cfg.BumpCooldownSeconds)*time.Second)
}

// BumpRemaining reports the bump lockout left for the user in the room.
func (c *Cooldowns) BumpRemaining(ctx context.Context, roomID string, userID uint) time.Duration {
	return c.remaining(ctx, cache.BumpKey(roomID, userID))
}

// Clear removes a cooldown marker of the given kind for the username and
// room. Used by the administrative clear-cooldown endpoint.
func (c *Cooldowns) Clear(ctx context.Context, kind, username, roomID string) error {
	if c.rdb == nil {
		return nil
	}
	switch kind {
	case "adminKick":
		return c.rdb.Del(ctx, cache.AdminKickCooldownKey(username, roomID)).Err()
	case "voteKick":
		return c.rdb.Del(ctx, cache.VoteKickCooldownKey(username, roomID)).Err()
	default:
		return errors.New("unknown cooldown kind: " + kind)
	}
}

// TryRejoinDedup claims the short per-(user,room) rejoin lock. A false
// return means another rejoin for the same key is already in flight and
// this one should be collapsed into it.
func (c *Cooldowns) TryRejoinDedup(ctx context.Context, userID uint, roomID string) bool {
	if c.rdb == nil {
		return true
	}
	ok, err := c.rdb.SetNX(ctx, cache.RejoinDedupKey(userID, roomID), "1",
		time.Duration(c.cfg.RejoinDedupSeconds)*time.Second).Result()
	if err != nil {
		// Dedup is an optimization; on store failure let the rejoin through.
		return true
	}
	return ok
}
