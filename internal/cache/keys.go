package cache

import (
	"context"
	"fmt"
	"time"
)

// Key formats for presence, moderation, and coordination state. Cooldown
// and ban keys are addressed by username so they survive account-level ID
// churn; presence keys are addressed by numeric user ID.
const (
	PresenceKeyPrefix      = "room:%s:user:%d"
	ParticipantsKeyPrefix  = "room:%s:participants"
	UserRoomsKeyPrefix     = "user:%d:rooms"
	UserIPKeyPrefix        = "user:%d:ip"
	IPUsersKeyPrefix       = "ip:%s:users"
	AdminKickCooldownPfx   = "cooldown:adminKick:%s:%s"
	VoteKickCooldownPfx    = "cooldown:voteKick:%s:%s"
	AdminRejoinCooldownPfx = "admin:rejoin:cooldown:%d:%s"
	GlobalBanKeyPrefix     = "ban:global:%s"
	KickedCountKeyPrefix   = "user:admin:kick:count:%d"
	AdminKickStatKeyPrefix = "admin:kick:count:%d"
	VoteSessionKeyPrefix   = "kick:%s:%s"
	VoteTallyKeyPrefix     = "kickVotes:%s:%s"
	TransferLockKeyPrefix  = "lock:transfer:%d"
	RejoinDedupKeyPrefix   = "rejoin:lock:%d:%s"
	BumpKeyPrefix          = "room:bump:%s:%d"
	ActiveCountKeyPrefix   = "room:active:%s"
	AnnouncementKeyPrefix  = "announce:%s"
	SystemLogKeyPrefix     = "room:system:%s"
	MessageBacklogPrefix   = "room:messages:%s"
)

// SystemLogMax bounds the per-room system message ring buffer.
const SystemLogMax = 50

// MessageBacklogMax bounds the per-room replayed message backlog.
const MessageBacklogMax = 50

func PresenceKey(roomID string, userID uint) string {
	return fmt.Sprintf(PresenceKeyPrefix, roomID, userID)
}

func ParticipantsKey(roomID string) string {
	return fmt.Sprintf(ParticipantsKeyPrefix, roomID)
}

func UserRoomsKey(userID uint) string {
	return fmt.Sprintf(UserRoomsKeyPrefix, userID)
}

func UserIPKey(userID uint) string {
	return fmt.Sprintf(UserIPKeyPrefix, userID)
}

func IPUsersKey(ip string) string {
	return fmt.Sprintf(IPUsersKeyPrefix, ip)
}

func AdminKickCooldownKey(username, roomID string) string {
	return fmt.Sprintf(AdminKickCooldownPfx, username, roomID)
}

func VoteKickCooldownKey(username, roomID string) string {
	return fmt.Sprintf(VoteKickCooldownPfx, username, roomID)
}

func AdminRejoinCooldownKey(adminID uint, roomID string) string {
	return fmt.Sprintf(AdminRejoinCooldownPfx, adminID, roomID)
}

func GlobalBanKey(username string) string {
	return fmt.Sprintf(GlobalBanKeyPrefix, username)
}

func KickedCountKey(userID uint) string {
	return fmt.Sprintf(KickedCountKeyPrefix, userID)
}

func AdminKickStatKey(adminID uint) string {
	return fmt.Sprintf(AdminKickStatKeyPrefix, adminID)
}

func VoteSessionKey(roomID, targetUsername string) string {
	return fmt.Sprintf(VoteSessionKeyPrefix, roomID, targetUsername)
}

func VoteTallyKey(roomID, targetUsername string) string {
	return fmt.Sprintf(VoteTallyKeyPrefix, roomID, targetUsername)
}

func TransferLockKey(senderID uint) string {
	return fmt.Sprintf(TransferLockKeyPrefix, senderID)
}

func RejoinDedupKey(userID uint, roomID string) string {
	return fmt.Sprintf(RejoinDedupKeyPrefix, userID, roomID)
}

func BumpKey(roomID string, userID uint) string {
	return fmt.Sprintf(BumpKeyPrefix, roomID, userID)
}

func ActiveCountKey(roomID string) string {
	return fmt.Sprintf(ActiveCountKeyPrefix, roomID)
}

func AnnouncementKey(roomID string) string {
	return fmt.Sprintf(AnnouncementKeyPrefix, roomID)
}

func SystemLogKey(roomID string) string {
	return fmt.Sprintf(SystemLogKeyPrefix, roomID)
}

func MessageBacklogKey(roomID string) string {
	return fmt.Sprintf(MessageBacklogPrefix, roomID)
}

// Invalidate deletes a key, tolerating a nil client.
func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

// PushSystemMessage appends an entry to the room's system message ring buffer.
func PushSystemMessage(ctx context.Context, roomID, entry string) {
	if client == nil {
		return
	}
	key := SystemLogKey(roomID)
	pipe := client.TxPipeline()
	pipe.LPush(ctx, key, entry)
	pipe.LTrim(ctx, key, 0, SystemLogMax-1)
	_, _ = pipe.Exec(ctx)
}

// RecentSystemMessages returns up to SystemLogMax recent system entries,
// newest first.
func RecentSystemMessages(ctx context.Context, roomID string) ([]string, error) {
	if client == nil {
		return nil, nil
	}
	return client.LRange(ctx, SystemLogKey(roomID), 0, SystemLogMax-1).Result()
}

// PushRoomMessage appends a chat line to the room's replay backlog.
func PushRoomMessage(ctx context.Context, roomID, entry string) {
	if client == nil {
		return
	}
	key := MessageBacklogKey(roomID)
	pipe := client.TxPipeline()
	pipe.LPush(ctx, key, entry)
	pipe.LTrim(ctx, key, 0, MessageBacklogMax-1)
	_, _ = pipe.Exec(ctx)
}

// RecentRoomMessages returns up to MessageBacklogMax backlog entries in
// chronological order, oldest first, ready to replay.
func RecentRoomMessages(ctx context.Context, roomID string) ([]string, error) {
	if client == nil {
		return nil, nil
	}
	entries, err := client.LRange(ctx, MessageBacklogKey(roomID), 0, MessageBacklogMax-1).Result()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// RecordUserIP maintains the user-to-IP and IP-to-users bookkeeping used
// by moderation tooling. Both sides carry the same sliding TTL.
func RecordUserIP(ctx context.Context, userID uint, ip string, ttl time.Duration) {
	if client == nil || ip == "" {
		return
	}
	pipe := client.TxPipeline()
	pipe.Set(ctx, UserIPKey(userID), ip, ttl)
	pipe.SAdd(ctx, IPUsersKey(ip), userID)
	pipe.Expire(ctx, IPUsersKey(ip), ttl)
	_, _ = pipe.Exec(ctx)
}
