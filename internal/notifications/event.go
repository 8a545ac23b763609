// Package notifications delivers realtime events to websocket sessions
// and fans them out across instances through Redis pub/sub.
package notifications

import "encoding/json"

// Event is the wire shape for everything pushed down a websocket:
// system notices, join/leave announcements, moderation messages,
// heartbeat acks and forced disconnects.
type Event struct {
	Type     string      `json:"type"` // "system", "joined", "left", "kicked", "banned", "announcement", "heartbeat_ack", "force_disconnect", "vote_kick", "participants:update", "rooms:updateCount", "message", "backlog", "error"
	RoomID   string      `json:"room_id,omitempty"`
	UserID   uint        `json:"user_id,omitempty"`
	Username string      `json:"username,omitempty"`
	Message  string      `json:"message,omitempty"`
	Payload  interface{} `json:"payload,omitempty"`
}

// Encode marshals the event for the wire. Marshal failures collapse to a
// generic error frame so the client always receives valid JSON.
func (e Event) Encode() []byte {
	data, err := json.Marshal(e)
	if err != nil {
		return []byte(`{"type":"error","message":"encoding failure"}`)
	}
	return data
}

// SystemNotice builds a room-scoped system line.
func SystemNotice(roomID, message string) Event {
	return Event{Type: "system", RoomID: roomID, Message: message}
}

// RoomCount carries a room's occupancy for directory views.
type RoomCount struct {
	Count    int64 `json:"count"`
	MaxUsers int   `json:"max_users"`
}

// ParticipantsUpdate builds the roster event pushed to a room after a
// membership change.
func ParticipantsUpdate(roomID string, names []string) Event {
	return Event{Type: "participants:update", RoomID: roomID, Payload: names}
}

// RoomCountUpdate builds the global occupancy event pushed to every
// session after a membership change.
func RoomCountUpdate(roomID string, count int64, maxUsers int) Event {
	return Event{Type: "rooms:updateCount", RoomID: roomID,
		Payload: RoomCount{Count: count, MaxUsers: maxUsers}}
}
