package notifications

import (
	"context"
	"errors"
	"log"
	"sync"

	"lounge/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per user
	maxConnsPerUser = 12
	// Max total connections
	maxTotalConns = 10000
)

// RoomHub tracks websocket sessions by room. A user may hold several
// connections at once (multiple tabs or devices); room membership is
// per-user, delivery is per-connection.
type RoomHub struct {
	mu sync.RWMutex

	// Map: roomID -> set of userIDs with at least one session in the room
	rooms map[string]map[uint]struct{}

	// Map: userID -> set of active Clients
	userConns map[uint]map[*Client]struct{}

	// Map: userID -> set of roomIDs the user's sessions are in
	userRooms map[uint]map[string]struct{}

	totalConns int
	metrics    *observability.WebSocketRoomMetrics
}

// Name returns a human-readable identifier for this hub.
func (h *RoomHub) Name() string { return "room hub" }

// NewRoomHub creates an empty hub.
func NewRoomHub() *RoomHub {
	return &RoomHub{
		rooms:     make(map[string]map[uint]struct{}),
		userConns: make(map[uint]map[*Client]struct{}),
		userRooms: make(map[uint]map[string]struct{}),
		metrics:   observability.NewWebSocketRoomMetrics(),
	}
}

// Register adds a websocket connection for the user. Returns an error
// when the per-user or server-wide connection limit is hit.
func (h *RoomHub) Register(userID uint, username string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	clients, ok := h.userConns[userID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.userConns[userID] = clients
	}
	if len(clients) >= maxConnsPerUser {
		return nil, errors.New("user connection limit reached")
	}

	client := NewClient(h, conn, userID, username)
	clients[client] = struct{}{}
	h.totalConns++
	observability.WebSocketConnectionsTotal.Inc()

	return client, nil
}

// UnregisterClient drops one connection. Room membership survives as
// long as the user has any other live connection; the caller decides
// whether to arm a disconnect grace timer when the last one goes.
func (h *RoomHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.userConns[client.UserID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	h.totalConns--
	observability.WebSocketConnectionsTotal.Dec()
	if len(clients) == 0 {
		delete(h.userConns, client.UserID)
	}
}

// HasConnections reports whether the user still has at least one open
// websocket session.
func (h *RoomHub) HasConnections(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients, ok := h.userConns[userID]
	return ok && len(clients) > 0
}

// JoinRoom marks the user as present in the room for delivery purposes.
func (h *RoomHub) JoinRoom(userID uint, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[uint]struct{})
	}
	if _, already := h.rooms[roomID][userID]; already {
		return
	}
	h.rooms[roomID][userID] = struct{}{}

	if h.userRooms[userID] == nil {
		h.userRooms[userID] = make(map[string]struct{})
	}
	h.userRooms[userID][roomID] = struct{}{}

	h.metrics.IncrementRoom(roomID)
}

// LeaveRoom removes the user from a room's delivery set.
func (h *RoomHub) LeaveRoom(userID uint, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(userID, roomID)
}

func (h *RoomHub) leaveRoomLocked(userID uint, roomID string) {
	users, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, member := users[userID]; !member {
		return
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(h.rooms, roomID)
	}
	if rooms, ok := h.userRooms[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.userRooms, userID)
		}
	}
	h.metrics.DecrementRoom(roomID)
}

// LeaveAllRooms removes the user from every room's delivery set and
// returns the rooms they were in.
func (h *RoomHub) LeaveAllRooms(userID uint) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	rooms := make([]string, 0, len(h.userRooms[userID]))
	for roomID := range h.userRooms[userID] {
		rooms = append(rooms, roomID)
	}
	for _, roomID := range rooms {
		h.leaveRoomLocked(userID, roomID)
	}
	return rooms
}

// UsersInRoom returns the userIDs with sessions in the room.
func (h *RoomHub) UsersInRoom(roomID string) []uint {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := h.rooms[roomID]
	out := make([]uint, 0, len(users))
	for id := range users {
		out = append(out, id)
	}
	return out
}

// InRoom reports whether the user has a session in the given room.
func (h *RoomHub) InRoom(userID uint, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms, ok := h.userRooms[userID]
	if !ok {
		return false
	}
	_, in := rooms[roomID]
	return in
}

// BroadcastToRoom delivers an event to every session in the room.
func (h *RoomHub) BroadcastToRoom(roomID string, ev Event) {
	data := ev.Encode()

	h.mu.RLock()
	defer h.mu.RUnlock()

	users, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for userID := range users {
		for client := range h.userConns[userID] {
			client.TrySend(data)
		}
	}
	h.metrics.RecordWebSocketEvent(ev.Type)
}

// SendToUser delivers an event to every session of one user.
func (h *RoomHub) SendToUser(userID uint, ev Event) {
	data := ev.Encode()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.userConns[userID] {
		client.TrySend(data)
	}
}

// BroadcastAll delivers an event to every connected session.
func (h *RoomHub) BroadcastAll(ev Event) {
	data := ev.Encode()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.userConns {
		for client := range clients {
			client.TrySend(data)
		}
	}
}

// CloseUserConnections force-closes every session of one user, sending
// a close frame first. Used for forced disconnects after a kick or a
// sweep reap.
func (h *RoomHub) CloseUserConnections(userID uint, reason string) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.userConns[userID]))
	for client := range h.userConns[userID] {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		if client.Conn != nil {
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)); err != nil {
				log.Printf("failed to write close message for user %d: %v", userID, err)
			}
			_ = client.Conn.Close()
		}
	}
}

// StartWiring subscribes the hub to Redis so events published on other
// instances reach local sessions.
func (h *RoomHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartSubscriber(ctx, func(target Target, ev Event) {
		switch target.Kind {
		case TargetRoom:
			h.BroadcastToRoom(target.RoomID, ev)
		case TargetUser:
			h.SendToUser(target.UserID, ev)
		case TargetBroadcast:
			h.BroadcastAll(ev)
		}
	})
}

// Shutdown gracefully closes all websocket connections
func (h *RoomHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.userConns {
		for client := range clients {
			if client.Conn == nil {
				continue
			}
			if err := client.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")); err != nil {
				log.Printf("failed to write close message for user %d: %v", userID, err)
			}
			if err := client.Conn.Close(); err != nil {
				log.Printf("failed to close websocket for user %d: %v", userID, err)
			}
		}
	}

	h.rooms = make(map[string]map[uint]struct{})
	h.userConns = make(map[uint]map[*Client]struct{})
	h.userRooms = make(map[uint]map[string]struct{})
	h.totalConns = 0

	return nil
}
