package room

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lounge/internal/cache"
	"lounge/internal/config"
	"lounge/internal/models"
	"lounge/internal/moderation"
	"lounge/internal/notifications"
	"lounge/internal/observability"
	"lounge/internal/presence"
	"lounge/internal/repository"
)

// Broadcaster is the slice of the websocket hub the service needs.
type Broadcaster interface {
	JoinRoom(userID uint, roomID string)
	LeaveRoom(userID uint, roomID string)
	BroadcastToRoom(roomID string, ev notifications.Event)
	BroadcastAll(ev notifications.Event)
	SendToUser(userID uint, ev notifications.Event)
	CloseUserConnections(userID uint, reason string)
	HasConnections(userID uint) bool
}

// sessionState is per user-room bookkeeping that never leaves this
// instance: the open visit row and whether the leave line was already
// written, so a user is never announced out twice.
type sessionState struct {
	visitID        uint
	leaveAnnounced bool
}

// Service owns the join/leave lifecycle and every system notice that
// announces it.
type Service struct {
	cfg       config.PresenceConfig
	store     *presence.Store
	gate      *moderation.Gate
	cooldowns *moderation.Cooldowns
	bans      *moderation.Bans
	votes     *moderation.VoteKicks
	rooms     repository.RoomRepository
	roomBans  repository.BanRepository
	users     repository.UserRepository
	hub       Broadcaster
	notify    *notifications.Notifier
	grace     *graceManager
	logger    *observability.PresenceLogger

	mu     sync.Mutex
	states map[string]*sessionState
}

// NewService wires the lifecycle service over its collaborators.
func NewService(
	cfg config.PresenceConfig,
	store *presence.Store,
	gate *moderation.Gate,
	cooldowns *moderation.Cooldowns,
	bans *moderation.Bans,
	votes *moderation.VoteKicks,
	rooms repository.RoomRepository,
	roomBans repository.BanRepository,
	users repository.UserRepository,
	hub Broadcaster,
) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		gate:      gate,
		cooldowns: cooldowns,
		bans:      bans,
		votes:     votes,
		rooms:     rooms,
		roomBans:  roomBans,
		users:     users,
		hub:       hub,
		grace:     newGraceManager(),
		logger:    observability.NewPresenceLogger(),
		states:    make(map[string]*sessionState),
	}
}

// SetNotifier routes room-wide and global broadcasts through Redis
// pub/sub so every instance's subscriber delivers them, including this
// one. Without a notifier broadcasts go straight to the local hub.
func (s *Service) SetNotifier(n *notifications.Notifier) {
	s.notify = n
}

// broadcastRoom fans a room event out across instances when a notifier
// is wired, falling back to the local hub otherwise.
func (s *Service) broadcastRoom(ctx context.Context, roomID string, ev notifications.Event) {
	if s.notify != nil {
		if err := s.notify.PublishRoom(ctx, roomID, ev); err == nil {
			return
		}
	}
	s.hub.BroadcastToRoom(roomID, ev)
}

func (s *Service) broadcastAll(ctx context.Context, ev notifications.Event) {
	if s.notify != nil {
		if err := s.notify.PublishBroadcast(ctx, ev); err == nil {
			return
		}
	}
	s.hub.BroadcastAll(ev)
}

// broadcastRoomState pushes the visible roster to the room and the
// occupancy count to every session. Called after every membership
// change: join, leave, moderation removal, sweep reap.
func (s *Service) broadcastRoomState(ctx context.Context, roomID string) {
	visible, err := s.store.VisibleRecords(ctx, roomID)
	if err != nil {
		return
	}
	names := make([]string, 0, len(visible))
	for _, r := range visible {
		names = append(names, r.Username)
	}
	s.broadcastRoom(ctx, roomID, notifications.ParticipantsUpdate(roomID, names))

	count, err := s.store.Occupancy(ctx, roomID)
	if err != nil {
		return
	}
	maxUsers := 0
	if room, err := s.rooms.GetByID(ctx, roomID); err == nil {
		maxUsers = room.Capacity
	}
	s.broadcastAll(ctx, notifications.RoomCountUpdate(roomID, count, maxUsers))
}

func (s *Service) state(userID uint, roomID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := graceKey(userID, roomID)
	st, ok := s.states[key]
	if !ok {
		st = &sessionState{}
		s.states[key] = st
	}
	return st
}

// takeState removes and returns the session state, if any.
func (s *Service) takeState(userID uint, roomID string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := graceKey(userID, roomID)
	st := s.states[key]
	delete(s.states, key)
	return st
}

// JoinOptions tweak how a join is surfaced to the room.
type JoinOptions struct {
	// Silent suppresses the entry announcement.
	Silent bool
	// Invisible joins hidden: no announcement and excluded from the
	// visible participant list.
	Invisible bool
}

// JoinResult is what a successful join reports back to the caller.
type JoinResult struct {
	Room         *models.Room
	Standing     moderation.Standing
	Rejoined     bool
	Participants []string
}

// Join runs the admission gate and, on success, records presence and
// emits the welcome sequence. A reconnect inside the grace window or a
// duplicate join inside the dedup window is silent.
func (s *Service) Join(ctx context.Context, user *models.User, roomID string, opts JoinOptions) (*JoinResult, *models.AppError) {
	room, standing, denied := s.gate.CheckJoin(ctx, user, roomID)
	if denied != nil {
		return nil, denied
	}

	// A second join of the same room inside the dedup window collapses
	// into a silent no-announce join.
	if !s.cooldowns.TryRejoinDedup(ctx, user.ID, roomID) {
		opts.Silent = true
	}

	rejoined := s.grace.Cancel(user.ID, roomID)
	if rejoined {
		s.logger.LogGraceCancelled(ctx, user.ID, roomID)
	}

	prev, _ := s.store.Get(ctx, roomID, user.ID)
	alreadyPresent := prev != nil

	visibility := presence.VisibilityVisible
	if opts.Invisible {
		visibility = presence.VisibilityHidden
	} else if prev != nil {
		visibility = prev.Visibility
	}

	rec := &presence.Record{
		UserID:     user.ID,
		Username:   user.Username,
		Level:      user.Level,
		RoomID:     roomID,
		Visibility: visibility,
	}
	if prev != nil {
		rec.JoinedAt = prev.JoinedAt
	}
	if err := s.store.Touch(ctx, rec); err != nil {
		return nil, models.NewInternalError(err)
	}

	s.hub.JoinRoom(user.ID, roomID)

	visible, _ := s.store.VisibleRecords(ctx, roomID)
	names := make([]string, 0, len(visible))
	for _, r := range visible {
		names = append(names, r.Username)
	}

	if !alreadyPresent && !rejoined {
		if _, err := s.store.IncrementActive(ctx, roomID); err != nil {
			observability.GlobalLogger.Warn("active counter increment failed",
				"room_id", roomID, "error", err.Error())
		}
		st := s.state(user.ID, roomID)
		st.leaveAnnounced = false
		if visitID, err := s.rooms.RecordVisit(ctx, roomID, user.ID, time.Now()); err == nil {
			st.visitID = visitID
		}

		s.sendWelcome(ctx, user.ID, room, names)
	}

	if !alreadyPresent && !opts.Silent && visibility == presence.VisibilityVisible {
		line := fmt.Sprintf("%s [%d] has entered the room", user.Username, user.Level)
		s.systemNotice(ctx, roomID, line)
	}

	if !alreadyPresent {
		s.broadcastRoomState(ctx, roomID)
	}

	// A silent rejoin gets the recent message backlog replayed so the
	// reconnected client can restore its transcript.
	if rejoined || alreadyPresent {
		if backlog, err := cache.RecentRoomMessages(ctx, roomID); err == nil && len(backlog) > 0 {
			s.hub.SendToUser(user.ID, notifications.Event{
				Type: "backlog", RoomID: roomID, Payload: backlog,
			})
		}
	}

	return &JoinResult{
		Room:         room,
		Standing:     standing,
		Rejoined:     rejoined || alreadyPresent,
		Participants: names,
	}, nil
}

// sendWelcome pushes the welcome sequence to one user, in order:
// description, owner line, participant list, then the room announcement
// when one is set.
func (s *Service) sendWelcome(ctx context.Context, userID uint, room *models.Room, names []string) {
	if room.Description != "" {
		s.hub.SendToUser(userID, notifications.SystemNotice(room.ID, room.Description))
	}
	if room.Owner != nil {
		s.hub.SendToUser(userID, notifications.SystemNotice(room.ID,
			fmt.Sprintf("This room is managed by %s", room.Owner.Username)))
	}
	list := "Currently users in the room: none"
	if len(names) > 0 {
		list = "Currently users in the room: " + strings.Join(names, ", ")
	}
	s.hub.SendToUser(userID, notifications.SystemNotice(room.ID, list))

	if text, err := s.store.Announcement(ctx, room.ID); err == nil && text != "" {
		s.hub.SendToUser(userID, notifications.Event{
			Type: "announcement", RoomID: room.ID, Message: text,
		})
	}
}

// systemNotice broadcasts a system line to the room and appends it to
// the room's rolling system log.
func (s *Service) systemNotice(ctx context.Context, roomID, line string) {
	s.broadcastRoom(ctx, roomID, notifications.SystemNotice(roomID, line))
	cache.PushSystemMessage(ctx, roomID, line)
}

// Leave removes the user from the room and announces it once. Hidden
// users and users whose leave was already announced go quietly.
func (s *Service) Leave(ctx context.Context, user *models.User, roomID string) error {
	rec, err := s.store.Get(ctx, roomID, user.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	s.finalizeLeave(ctx, rec, "has left the room")
	return nil
}

// finalizeLeave tears down presence and local state for one record and
// writes the leave line when it is still owed.
func (s *Service) finalizeLeave(ctx context.Context, rec *presence.Record, verb string) {
	if err := s.store.Remove(ctx, rec.RoomID, rec.UserID); err != nil {
		observability.GlobalLogger.Warn("presence removal failed",
			"room_id", rec.RoomID, "user_id", rec.UserID, "error", err.Error())
	}
	s.hub.LeaveRoom(rec.UserID, rec.RoomID)
	if _, err := s.store.DecrementActive(ctx, rec.RoomID); err != nil {
		observability.GlobalLogger.Warn("active counter decrement failed",
			"room_id", rec.RoomID, "error", err.Error())
	}

	st := s.takeState(rec.UserID, rec.RoomID)
	announced := st != nil && st.leaveAnnounced
	if st != nil && st.visitID != 0 {
		if err := s.rooms.CloseVisit(ctx, st.visitID, time.Now()); err != nil {
			observability.GlobalLogger.Warn("visit close failed",
				"visit_id", st.visitID, "error", err.Error())
		}
	}

	if !announced && verb != "" && rec.Visibility == presence.VisibilityVisible {
		s.systemNotice(ctx, rec.RoomID, fmt.Sprintf("%s [%d] %s", rec.Username, rec.Level, verb))
	}

	s.broadcastRoomState(ctx, rec.RoomID)
}

// Disconnect arms the grace window for every room the user is in. If no
// connection returns before it expires the leave is finalized and
// announced then.
func (s *Service) Disconnect(ctx context.Context, userID uint) {
	rooms, err := s.store.Rooms(ctx, userID)
	if err != nil {
		observability.GlobalLogger.Warn("reverse index read failed on disconnect",
			"user_id", userID, "error", err.Error())
		return
	}
	for _, roomID := range rooms {
		roomID := roomID
		s.grace.Arm(userID, roomID, s.cfg.GraceWindow(), func() {
			s.graceExpired(userID, roomID)
		})
		s.logger.LogGraceArmed(ctx, userID, roomID)
	}
}

func (s *Service) graceExpired(userID uint, roomID string) {
	ctx := context.Background()
	s.logger.LogGraceExpired(ctx, userID, roomID)

	// Reconnected on another socket: the session lives on.
	if s.hub.HasConnections(userID) {
		return
	}
	rec, err := s.store.Get(ctx, roomID, userID)
	if err != nil || rec == nil {
		// Already gone; drop any leftover local state.
		s.takeState(userID, roomID)
		return
	}
	s.finalizeLeave(ctx, rec, "has left the room")
}

// Heartbeat refreshes the presence TTL for a user already in the room
// and acks back. Heartbeats from non-participants are rejected.
func (s *Service) Heartbeat(ctx context.Context, user *models.User, roomID string) *models.AppError {
	rec, err := s.store.Get(ctx, roomID, user.ID)
	if err != nil {
		return models.NewInternalError(err)
	}
	if rec == nil {
		return models.NewNotFoundError("presence", roomID)
	}
	if err := s.store.Touch(ctx, rec); err != nil {
		return models.NewInternalError(err)
	}
	s.hub.SendToUser(user.ID, notifications.Event{Type: "heartbeat_ack", RoomID: roomID})
	return nil
}

// SendMessage relays a chat line to the room and records it in the
// rolling backlog replayed to silent rejoins. The content itself is an
// opaque string.
func (s *Service) SendMessage(ctx context.Context, user *models.User, roomID, body string) *models.AppError {
	rec, err := s.store.Get(ctx, roomID, user.ID)
	if err != nil {
		return models.NewInternalError(err)
	}
	if rec == nil {
		return models.NewForbiddenError("you must be in the room to send messages")
	}
	s.broadcastRoom(ctx, roomID, notifications.Event{
		Type: "message", RoomID: roomID, UserID: user.ID,
		Username: user.Username, Message: body,
	})
	cache.PushRoomMessage(ctx, roomID, fmt.Sprintf("%s: %s", user.Username, body))
	return nil
}

// Logout leaves every room immediately, announcing each departure.
func (s *Service) Logout(ctx context.Context, user *models.User) {
	rooms, err := s.store.Rooms(ctx, user.ID)
	if err != nil {
		return
	}
	for _, roomID := range rooms {
		s.grace.Cancel(user.ID, roomID)
		if rec, err := s.store.Get(ctx, roomID, user.ID); err == nil && rec != nil {
			s.finalizeLeave(ctx, rec, "has left the room")
		}
	}
}

// SetVisibility toggles whether the user shows up in participant lists
// and announcements.
func (s *Service) SetVisibility(ctx context.Context, user *models.User, roomID string, hidden bool) *models.AppError {
	v := presence.VisibilityVisible
	if hidden {
		v = presence.VisibilityHidden
	}
	if err := s.store.SetVisibility(ctx, roomID, user.ID, v); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// ReapHandler returns the callback the presence sweeper invokes for
// each expired record: announce the timeout, tear down local state and
// force the stale sockets closed shortly after.
func (s *Service) ReapHandler() presence.ReapFunc {
	return func(ctx context.Context, roomID string, userID uint) {
		s.grace.Cancel(userID, roomID)
		s.hub.LeaveRoom(userID, roomID)
		if _, err := s.store.DecrementActive(ctx, roomID); err != nil {
			observability.GlobalLogger.Warn("active counter decrement failed",
				"room_id", roomID, "error", err.Error())
		}

		line := fmt.Sprintf("user %d has left the room", userID)
		if u, err := s.users.GetByID(ctx, userID); err == nil {
			line = fmt.Sprintf("%s [%d] has left the room", u.Username, u.Level)
		}

		st := s.takeState(userID, roomID)
		if st != nil && st.visitID != 0 {
			_ = s.rooms.CloseVisit(ctx, st.visitID, time.Now())
		}
		if st == nil || !st.leaveAnnounced {
			s.systemNotice(ctx, roomID, line)
		}
		s.broadcastRoomState(ctx, roomID)

		s.hub.SendToUser(userID, notifications.Event{
			Type: "force_disconnect", RoomID: roomID, Message: "Session expired",
		})
		time.AfterFunc(s.cfg.ForceDisconnectDelay(), func() {
			if !s.hub.HasConnections(userID) {
				return
			}
			s.hub.CloseUserConnections(userID, "session expired")
		})
	}
}

// Shutdown stops all pending grace timers.
func (s *Service) Shutdown() {
	s.grace.Stop()
}
