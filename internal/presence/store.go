package presence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"lounge/internal/cache"
	"lounge/internal/config"
	"lounge/internal/observability"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned when the presence store has no Redis client.
var ErrUnavailable = errors.New("presence store unavailable")

// Store reads and writes presence state in Redis. All methods normalize
// records at the boundary and keep the participant set, the reverse index,
// and the record itself consistent within a pipeline.
type Store struct {
	rdb *redis.Client
	cfg config.PresenceConfig
	now func() time.Time
}

// NewStore returns a presence store over the given Redis client.
func NewStore(rdb *redis.Client, cfg config.PresenceConfig) *Store {
	return &Store{rdb: rdb, cfg: cfg, now: time.Now}
}

// Touch writes the record and refreshes its TTL, adds the user to the
// room's participant set, and maintains the user-to-rooms reverse index.
// It is used both for the initial join write and for heartbeat refreshes.
func (s *Store) Touch(ctx context.Context, rec *Record) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	ctx, span := observability.GetTraceLayer().TracePresenceOperation(ctx, "touch", rec.RoomID)
	defer span.End()
	now := s.now()
	rec.normalize(now)
	rec.LastSeen = now

	payload, err := rec.encode()
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, cache.PresenceKey(rec.RoomID, rec.UserID), payload, s.cfg.PresenceTTL())
	pipe.SAdd(ctx, cache.ParticipantsKey(rec.RoomID), rec.UserID)
	pipe.SAdd(ctx, cache.UserRoomsKey(rec.UserID), rec.RoomID)
	pipe.Expire(ctx, cache.UserRoomsKey(rec.UserID), time.Duration(s.cfg.ReverseIndexTTLSeconds)*time.Second)
	_, err = pipe.Exec(ctx)
	observability.RecordPresenceOp("touch", err)
	return err
}

// Get returns the presence record, or nil when the user is not present.
func (s *Store) Get(ctx context.Context, roomID string, userID uint) (*Record, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}
	raw, err := s.rdb.Get(ctx, cache.PresenceKey(roomID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		observability.RecordPresenceOp("get", err)
		return nil, err
	}
	return decodeRecord(raw, s.now())
}

// Remove deletes the record and detaches the user from the room's
// participant set and the reverse index.
func (s *Store) Remove(ctx context.Context, roomID string, userID uint) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	ctx, span := observability.GetTraceLayer().TracePresenceOperation(ctx, "remove", roomID)
	defer span.End()
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, cache.PresenceKey(roomID, userID))
	pipe.SRem(ctx, cache.ParticipantsKey(roomID), userID)
	pipe.SRem(ctx, cache.UserRoomsKey(userID), roomID)
	_, err := pipe.Exec(ctx)
	observability.RecordPresenceOp("remove", err)
	return err
}

// Participants returns the user IDs currently registered in the room.
// Membership in the set can briefly outlive the record itself; the sweep
// converges the two.
func (s *Store) Participants(ctx context.Context, roomID string) ([]uint, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}
	members, err := s.rdb.SMembers(ctx, cache.ParticipantsKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			continue
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// VisibleRecords returns the decoded records of participants whose
// presence record still exists and is not hidden.
func (s *Store) VisibleRecords(ctx context.Context, roomID string) ([]*Record, error) {
	ids, err := s.Participants(ctx, roomID)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, roomID, id)
		if err != nil || rec == nil {
			continue
		}
		if rec.Visibility == VisibilityHidden {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Occupancy returns the size of the room's participant set.
func (s *Store) Occupancy(ctx context.Context, roomID string) (int64, error) {
	if s.rdb == nil {
		return 0, ErrUnavailable
	}
	return s.rdb.SCard(ctx, cache.ParticipantsKey(roomID)).Result()
}

// Rooms returns the rooms the user is currently tracked in.
func (s *Store) Rooms(ctx context.Context, userID uint) ([]string, error) {
	if s.rdb == nil {
		return nil, ErrUnavailable
	}
	return s.rdb.SMembers(ctx, cache.UserRoomsKey(userID)).Result()
}

// IncrementActive bumps the room's live connection counter.
func (s *Store) IncrementActive(ctx context.Context, roomID string) (int64, error) {
	if s.rdb == nil {
		return 0, ErrUnavailable
	}
	return s.rdb.Incr(ctx, cache.ActiveCountKey(roomID)).Result()
}

// DecrementActive lowers the room's live connection counter, flooring at
// zero so that duplicate disconnects cannot drive it negative.
func (s *Store) DecrementActive(ctx context.Context, roomID string) (int64, error) {
	if s.rdb == nil {
		return 0, ErrUnavailable
	}
	n, err := s.rdb.Decr(ctx, cache.ActiveCountKey(roomID)).Result()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		s.rdb.Set(ctx, cache.ActiveCountKey(roomID), 0, 0)
		return 0, nil
	}
	return n, nil
}

// SetVisibility rewrites the record with the new visibility, preserving
// the remaining TTL semantics by re-touching the record.
func (s *Store) SetVisibility(ctx context.Context, roomID string, userID uint, v Visibility) error {
	rec, err := s.Get(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.Visibility = v
	return s.Touch(ctx, rec)
}

// Announcement returns the room's standing announcement, if any.
func (s *Store) Announcement(ctx context.Context, roomID string) (string, error) {
	if s.rdb == nil {
		return "", ErrUnavailable
	}
	val, err := s.rdb.Get(ctx, cache.AnnouncementKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// SetAnnouncement stores the room's standing announcement. An empty text
// clears it.
func (s *Store) SetAnnouncement(ctx context.Context, roomID, text string) error {
	if s.rdb == nil {
		return ErrUnavailable
	}
	if text == "" {
		return s.rdb.Del(ctx, cache.AnnouncementKey(roomID)).Err()
	}
	return s.rdb.Set(ctx, cache.AnnouncementKey(roomID), text, 0).Err()
}
