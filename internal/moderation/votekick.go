package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"lounge/internal/cache"
	"lounge/internal/config"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned when a vote arrives for a target with no open
// vote-kick session. Votes cast after the target was removed land here
// and are treated as no-ops by callers.
var ErrNoSession = errors.New("no open vote-kick session")

// ErrSessionOnCooldown is returned when a session cannot open because the
// target's vote-kick cooldown is still running.
var ErrSessionOnCooldown = errors.New("target is on vote-kick cooldown")

// Ledger debits the vote-kick payment. Implemented by the credit service;
// the accounting rules behind it are not this package's concern.
type Ledger interface {
	Debit(ctx context.Context, userID uint, amount int64, memo string) error
}

// Session is one open vote-kick against a target in a room.
type Session struct {
	RoomID         string    `json:"room_id"`
	TargetUsername string    `json:"target_username"`
	InitiatorID    uint      `json:"initiator_id"`
	VotesNeeded    int       `json:"votes_needed"`
	StartedAt      time.Time `json:"started_at"`
}

// VoteKicks manages vote-kick sessions. A session and its tally live in
// the store under the vote duration TTL, so an abandoned vote simply
// evaporates.
type VoteKicks struct {
	rdb       *redis.Client
	cfg       config.PresenceConfig
	cooldowns *Cooldowns
	ledger    Ledger
}

// NewVoteKicks returns a vote-kick manager.
func NewVoteKicks(rdb *redis.Client, cfg config.PresenceConfig, cooldowns *Cooldowns, ledger Ledger) *VoteKicks {
	return &VoteKicks{rdb: rdb, cfg: cfg, cooldowns: cooldowns, ledger: ledger}
}

// VotesNeeded derives the vote threshold from room occupancy: large rooms
// cap at a fixed count, small rooms need a majority.
func (v *VoteKicks) VotesNeeded(occupancy int64) int {
	if occupancy >= int64(v.cfg.VoteKickLargeRoomOccupants) {
		return v.cfg.VoteKickLargeRoomVotes
	}
	needed := (int(occupancy) + 1) / 2
	if needed < 1 {
		needed = 1
	}
	return needed
}

func (v *VoteKicks) duration() time.Duration {
	return time.Duration(v.cfg.VoteKickDurationSeconds) * time.Second
}

// Open starts a vote-kick session, charging the initiator the fixed
// payment. A target already under an open session short-circuits to the
// existing session with created=false; the caller should add a vote
// instead.
func (v *VoteKicks) Open(ctx context.Context, roomID, targetUsername string, initiatorID uint, occupancy int64) (*Session, bool, error) {
	if v.rdb == nil {
		return nil, false, errors.New("vote store unavailable")
	}
	if v.cooldowns.VoteKickRemaining(ctx, targetUsername, roomID) > 0 {
		return nil, false, ErrSessionOnCooldown
	}

	session := &Session{
		RoomID:         roomID,
		TargetUsername: targetUsername,
		InitiatorID:    initiatorID,
		VotesNeeded:    v.VotesNeeded(occupancy),
		StartedAt:      time.Now(),
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return nil, false, err
	}

	key := cache.VoteSessionKey(roomID, targetUsername)
	created, err := v.rdb.SetNX(ctx, key, payload, v.duration()).Result()
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := v.Session(ctx, roomID, targetUsername)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	if err := v.ledger.Debit(ctx, initiatorID, int64(v.cfg.VoteKickPayment), "vote-kick against "+targetUsername); err != nil {
		// Payment failed; the session must not stand.
		v.rdb.Del(ctx, key)
		return nil, false, err
	}

	return session, true, nil
}

// Session returns the open session for the target, or ErrNoSession.
func (v *VoteKicks) Session(ctx context.Context, roomID, targetUsername string) (*Session, error) {
	if v.rdb == nil {
		return nil, errors.New("vote store unavailable")
	}
	raw, err := v.rdb.Get(ctx, cache.VoteSessionKey(roomID, targetUsername)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CastVote records one voter's vote. Voting twice is idempotent. When the
// tally reaches the threshold the session closes, the target's vote-kick
// cooldown starts, and reached=true is returned exactly once.
func (v *VoteKicks) CastVote(ctx context.Context, roomID, targetUsername, voterUsername string) (tally int64, needed int, reached bool, err error) {
	session, err := v.Session(ctx, roomID, targetUsername)
	if err != nil {
		return 0, 0, false, err
	}

	tallyKey := cache.VoteTallyKey(roomID, targetUsername)
	pipe := v.rdb.TxPipeline()
	pipe.SAdd(ctx, tallyKey, voterUsername)
	pipe.Expire(ctx, tallyKey, v.duration())
	card := pipe.SCard(ctx, tallyKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, false, err
	}

	tally = card.Val()
	needed = session.VotesNeeded
	if tally < int64(needed) {
		return tally, needed, false, nil
	}

	// Threshold met: close the session and start the target's cooldown.
	if err := v.Close(ctx, roomID, targetUsername); err != nil {
		return tally, needed, true, err
	}
	if err := v.cooldowns.ApplyVoteKick(ctx, targetUsername, roomID); err != nil {
		return tally, needed, true, err
	}
	return tally, needed, true, nil
}

// Tally returns the current vote count for the target.
func (v *VoteKicks) Tally(ctx context.Context, roomID, targetUsername string) (int64, error) {
	if v.rdb == nil {
		return 0, errors.New("vote store unavailable")
	}
	return v.rdb.SCard(ctx, cache.VoteTallyKey(roomID, targetUsername)).Result()
}

// Close tears down the session and its tally without applying a cooldown.
func (v *VoteKicks) Close(ctx context.Context, roomID, targetUsername string) error {
	if v.rdb == nil {
		return nil
	}
	pipe := v.rdb.TxPipeline()
	pipe.Del(ctx, cache.VoteSessionKey(roomID, targetUsername))
	pipe.Del(ctx, cache.VoteTallyKey(roomID, targetUsername))
	_, err := pipe.Exec(ctx)
	return err
}
