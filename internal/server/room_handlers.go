package server

import (
	"strings"
	"time"

	"lounge/internal/cache"
	"lounge/internal/models"
	"lounge/internal/room"
	"lounge/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type createRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinLevel    int    `json:"min_level"`
	Capacity    int    `json:"capacity"`
}

type joinRoomRequest struct {
	Invisible bool `json:"invisible"`
	Silent    bool `json:"silent"`
}

// CreateRoom creates a room owned by the caller
func (s *Server) CreateRoom(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}

	var req createRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req.Name = strings.TrimSpace(req.Name)
	if err := validation.ValidateRoomName(req.Name); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}
	if err := validation.ValidateRoomDescription(req.Description); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}
	if req.MinLevel < 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Minimum level cannot be negative"))
	}

	capacity := req.Capacity
	if capacity <= 0 {
		capacity = s.config.Presence.DefaultRoomCapacity
	}

	room := &models.Room{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     &user.ID,
		MinLevel:    req.MinLevel,
		Capacity:    capacity,
	}
	if err := s.roomRepo.Create(c.Context(), room); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(room)
}

// ListRooms returns a paginated room directory with live occupancy
func (s *Server) ListRooms(c *fiber.Ctx) error {
	page := parsePagination(c)

	rooms, err := s.roomRepo.List(c.Context(), page.Limit, page.Offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	type roomSummary struct {
		*models.Room
		Occupancy int64 `json:"occupancy"`
	}

	summaries := make([]roomSummary, 0, len(rooms))
	for _, room := range rooms {
		occ, _ := s.store.Occupancy(c.Context(), room.ID)
		summaries = append(summaries, roomSummary{Room: room, Occupancy: occ})
	}

	return c.JSON(fiber.Map{
		"rooms":  summaries,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// GetRoom returns one room with live occupancy and announcement
func (s *Server) GetRoom(c *fiber.Ctx) error {
	roomID := c.Params("roomID")

	room, err := s.roomRepo.GetByID(c.Context(), roomID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Room", roomID))
	}

	occ, _ := s.store.Occupancy(c.Context(), roomID)
	announcement, _ := s.store.Announcement(c.Context(), roomID)

	return c.JSON(fiber.Map{
		"room":         room,
		"occupancy":    occ,
		"announcement": announcement,
	})
}

// JoinRoom admits the caller into a room
func (s *Server) JoinRoom(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	var req joinRoomRequest
	// Body is optional; a bare POST joins visibly.
	_ = c.BodyParser(&req)

	result, appErr := s.roomSvc.Join(c.Context(), user, roomID,
		room.JoinOptions{Invisible: req.Invisible, Silent: req.Silent})
	if appErr != nil {
		return respondAppError(c, appErr)
	}

	ipTTL := time.Duration(s.config.Presence.IPIndexTTLSeconds) * time.Second
	cache.RecordUserIP(c.Context(), user.ID, c.IP(), ipTTL)

	return c.JSON(fiber.Map{
		"room":         result.Room,
		"standing":     result.Standing,
		"rejoined":     result.Rejoined,
		"participants": result.Participants,
	})
}

// LeaveRoom removes the caller from a room
func (s *Server) LeaveRoom(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	if err := s.roomSvc.Leave(c.Context(), user, roomID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"message": "Left the room",
	})
}

// Heartbeat refreshes the caller's presence in a room
func (s *Server) Heartbeat(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	if appErr := s.roomSvc.Heartbeat(c.Context(), user, roomID); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "ok",
	})
}

// GetParticipants returns the visible participants of a room
func (s *Server) GetParticipants(c *fiber.Ctx) error {
	roomID := c.Params("roomID")

	if _, err := s.roomRepo.GetByID(c.Context(), roomID); err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Room", roomID))
	}

	records, err := s.store.VisibleRecords(c.Context(), roomID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	type participant struct {
		UserID   uint      `json:"user_id"`
		Username string    `json:"username"`
		Level    int       `json:"level"`
		JoinedAt time.Time `json:"joined_at"`
	}

	participants := make([]participant, 0, len(records))
	for _, rec := range records {
		participants = append(participants, participant{
			UserID:   rec.UserID,
			Username: rec.Username,
			Level:    rec.Level,
			JoinedAt: rec.JoinedAt,
		})
	}

	occ, _ := s.store.Occupancy(c.Context(), roomID)

	return c.JSON(fiber.Map{
		"participants": participants,
		"occupancy":    occ,
	})
}

// GetSystemLog returns the recent system traffic lines of a room
func (s *Server) GetSystemLog(c *fiber.Ctx) error {
	roomID := c.Params("roomID")

	if _, err := s.roomRepo.GetByID(c.Context(), roomID); err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Room", roomID))
	}

	messages, err := cache.RecentSystemMessages(c.Context(), roomID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"messages": messages,
	})
}

// SetVisibility toggles the caller's hidden flag in a room
func (s *Server) SetVisibility(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	var req struct {
		Hidden bool `json:"hidden"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if appErr := s.roomSvc.SetVisibility(c.Context(), user, roomID, req.Hidden); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"hidden": req.Hidden,
	})
}

// SetAnnouncement sets or clears the room announcement
func (s *Server) SetAnnouncement(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	var req struct {
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := validation.ValidateAnnouncement(req.Text); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	if appErr := s.roomSvc.Announce(c.Context(), user, roomID, req.Text); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"announcement": req.Text,
	})
}

// SetRoomLock locks or unlocks a room
func (s *Server) SetRoomLock(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	var req struct {
		Locked bool `json:"locked"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if appErr := s.roomSvc.SetLocked(c.Context(), user, roomID, req.Locked); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"locked": req.Locked,
	})
}

// TransferRoom hands room ownership to another user
func (s *Server) TransferRoom(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	var req struct {
		Username string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Recipient username required"))
	}

	if appErr := s.roomSvc.TransferOwnership(c.Context(), user, roomID,
		strings.TrimSpace(req.Username)); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "Ownership transferred",
	})
}

// AddModerator grants moderator standing in a room
func (s *Server) AddModerator(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	targetID, err := parseID(c, "userID")
	if err != nil {
		return nil
	}

	room, rerr := s.roomRepo.GetByID(c.Context(), roomID)
	if rerr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Room", roomID))
	}
	if !canManageModerators(user, room) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Only the room owner can manage moderators"))
	}

	if _, uerr := s.userRepo.GetByID(c.Context(), targetID); uerr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("User", targetID))
	}

	if err := s.roomRepo.AddModerator(c.Context(), roomID, targetID, user.ID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Moderator added",
	})
}

// RemoveModerator revokes moderator standing in a room
func (s *Server) RemoveModerator(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	targetID, err := parseID(c, "userID")
	if err != nil {
		return nil
	}

	room, rerr := s.roomRepo.GetByID(c.Context(), roomID)
	if rerr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Room", roomID))
	}
	if !canManageModerators(user, room) {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Only the room owner can manage moderators"))
	}

	if err := s.roomRepo.RemoveModerator(c.Context(), roomID, targetID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"message": "Moderator removed",
	})
}

func canManageModerators(user *models.User, room *models.Room) bool {
	if user.IsAdministrator() || user.Elevated {
		return true
	}
	return room.OwnerID != nil && *room.OwnerID == user.ID
}
