package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// TargetKind says where a cross-instance event should be delivered.
type TargetKind int

const (
	TargetRoom TargetKind = iota
	TargetUser
	TargetBroadcast
)

// Target is the decoded destination of a pub/sub channel.
type Target struct {
	Kind   TargetKind
	RoomID string
	UserID uint
}

// Notifier publishes events into Redis channels so every instance can
// fan them out to its local sessions. A nil Redis client turns every
// publish into a no-op; single-instance deployments still work through
// the hub directly.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// RoomChannel derives the Redis channel name for a room.
func RoomChannel(roomID string) string {
	return "events:room:" + roomID
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return "events:user:" + strconv.FormatUint(uint64(userID), 10)
}

const broadcastChannel = "events:broadcast"

// PublishRoom sends an event to every instance's sessions in the room.
func (n *Notifier) PublishRoom(ctx context.Context, roomID string, ev Event) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, RoomChannel(roomID), string(ev.Encode())).Err()
}

// PublishUser sends an event to every instance's sessions of one user.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, ev Event) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(userID), string(ev.Encode())).Err()
}

// PublishBroadcast sends an event to every connected session everywhere.
func (n *Notifier) PublishBroadcast(ctx context.Context, ev Event) error {
	if n.rdb == nil {
		return nil
	}
	return n.rdb.Publish(ctx, broadcastChannel, string(ev.Encode())).Err()
}

// parseChannel decodes a channel name into a delivery target.
func parseChannel(channel string) (Target, bool) {
	switch {
	case channel == broadcastChannel:
		return Target{Kind: TargetBroadcast}, true
	case strings.HasPrefix(channel, "events:room:"):
		return Target{Kind: TargetRoom, RoomID: strings.TrimPrefix(channel, "events:room:")}, true
	case strings.HasPrefix(channel, "events:user:"):
		var userID uint
		if _, err := fmt.Sscanf(channel, "events:user:%d", &userID); err != nil {
			return Target{}, false
		}
		return Target{Kind: TargetUser, UserID: userID}, true
	}
	return Target{}, false
}

// StartSubscriber subscribes to the room, user and broadcast patterns and
// calls onEvent for each decoded message. Malformed channels and payloads
// are logged and skipped.
func (n *Notifier) StartSubscriber(
	ctx context.Context, onEvent func(target Target, ev Event),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "events:room:*", "events:user:*", broadcastChannel)
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in event subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					target, ok := parseChannel(msg.Channel)
					if !ok {
						log.Printf("invalid event channel: %s", msg.Channel)
						return
					}
					var ev Event
					if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
						log.Printf("malformed event on %s: %v", msg.Channel, err)
						return
					}
					onEvent(target, ev)
				}()
			}
		}
	}()

	return nil
}
