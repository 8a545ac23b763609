package server

import (
	"context"
	"encoding/json"
	"time"

	"lounge/internal/middleware"
	"lounge/internal/models"
	"lounge/internal/notifications"
	"lounge/internal/observability"
	"lounge/internal/room"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// wsCommand is the envelope for client-to-server WebSocket frames.
type wsCommand struct {
	Type      string `json:"type"`
	RoomID    string `json:"room_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Invisible bool   `json:"invisible,omitempty"`
	Silent    bool   `json:"silent,omitempty"`
	Hidden    bool   `json:"hidden,omitempty"`
	Message   string `json:"message,omitempty"`
}

// WebsocketHandler returns the WebSocket upgrade handler. AuthRequired has
// already validated the ticket and stored userID in locals.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals("userID").(uint)
		if !ok {
			conn.Close()
			return
		}

		ctx := context.Background()
		user, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			conn.Close()
			return
		}

		client, err := s.hub.Register(user.ID, user.Username, conn)
		if err != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			conn.Close()
			return
		}

		client.IncomingHandler = s.handleWSCommand
		s.wsLog.LogLifecycle(ctx, "session_open", map[string]interface{}{
			"user_id":  user.ID,
			"username": user.Username,
		})

		go client.WritePump()
		client.ReadPump()

		s.wsLog.LogLifecycle(ctx, "session_close", map[string]interface{}{
			"user_id": user.ID,
		})

		// ReadPump returned; the socket is gone. Arm the grace window only
		// when this was the user's last connection.
		if !s.hub.HasConnections(user.ID) {
			s.roomSvc.Disconnect(context.Background(), user.ID)
		}
	})
}

// handleWSCommand dispatches one inbound frame from a connected client.
func (s *Server) handleWSCommand(client *notifications.Client, raw []byte) {
	var cmd wsCommand
	if err := json.Unmarshal(raw, &cmd); err != nil {
		client.SendEvent(notifications.Event{
			Type:    "error",
			Message: "Malformed command",
		})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctx, span := observability.GetTraceLayer().TraceWebSocket(ctx, "room hub", cmd.Type)
	defer span.End()

	user, err := s.userRepo.GetByID(ctx, client.UserID)
	if err != nil {
		client.SendEvent(notifications.Event{
			Type:    "error",
			Message: "Account no longer exists",
		})
		return
	}

	switch cmd.Type {
	case "join", "rejoin":
		if !s.allowWSAction(ctx, client, "ws_join", 10, time.Minute) {
			return
		}
		// A rejoin after a dropped socket goes in quietly.
		result, appErr := s.roomSvc.Join(ctx, user, cmd.RoomID, room.JoinOptions{
			Invisible: cmd.Invisible,
			Silent:    cmd.Silent || cmd.Type == "rejoin",
		})
		if appErr != nil {
			s.sendWSError(client, cmd, appErr)
			return
		}
		client.SendEvent(notifications.Event{
			Type:    "joined",
			RoomID:  cmd.RoomID,
			Payload: result,
		})

	case "leave":
		if err := s.roomSvc.Leave(ctx, user, cmd.RoomID); err != nil {
			client.SendEvent(notifications.Event{
				Type:    "error",
				RoomID:  cmd.RoomID,
				Message: "Could not leave the room",
			})
		}

	case "message":
		if !s.allowWSAction(ctx, client, "ws_message", 60, time.Minute) {
			return
		}
		if appErr := s.roomSvc.SendMessage(ctx, user, cmd.RoomID, cmd.Message); appErr != nil {
			s.sendWSError(client, cmd, appErr)
		}

	case "heartbeat":
		if appErr := s.roomSvc.Heartbeat(ctx, user, cmd.RoomID); appErr != nil {
			s.sendWSError(client, cmd, appErr)
		}

	case "visibility":
		if appErr := s.roomSvc.SetVisibility(ctx, user, cmd.RoomID, cmd.Hidden); appErr != nil {
			s.sendWSError(client, cmd, appErr)
		}

	case "vote_kick_start":
		if !s.allowWSAction(ctx, client, "ws_votekick", 3, time.Minute) {
			return
		}
		if _, appErr := s.roomSvc.StartVoteKick(ctx, user, cmd.RoomID, cmd.Username); appErr != nil {
			s.sendWSError(client, cmd, appErr)
		}

	case "vote_kick":
		if appErr := s.roomSvc.CastVoteKick(ctx, user, cmd.RoomID, cmd.Username); appErr != nil {
			s.sendWSError(client, cmd, appErr)
		}

	default:
		client.SendEvent(notifications.Event{
			Type:    "error",
			Message: "Unknown command type",
		})
	}
}

// allowWSAction applies a per-user rate limit to spammy socket commands.
func (s *Server) allowWSAction(ctx context.Context, client *notifications.Client,
	action string, limit int, window time.Duration) bool {
	if s.redis == nil {
		return true
	}
	allowed, err := middleware.CheckRateLimit(ctx, s.redis, action,
		client.Username, limit, window)
	if err != nil {
		// Fail open; the HTTP limiter still covers the endpoint.
		return true
	}
	if !allowed {
		client.SendEvent(notifications.Event{
			Type:    "error",
			Message: "Slow down",
		})
	}
	return allowed
}

func (s *Server) sendWSError(client *notifications.Client, cmd wsCommand, appErr *models.AppError) {
	s.wsLog.LogError(context.Background(), client.UserID, cmd.RoomID, appErr, cmd.Type)
	client.SendEvent(notifications.Event{
		Type:    "error",
		RoomID:  cmd.RoomID,
		Message: appErr.Message,
	})
}
