package server

import (
	"strings"
	"time"

	"lounge/internal/models"

	"github.com/gofiber/fiber/v2"
)

type targetRequest struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
	// DurationMinutes limits a ban; zero means indefinite.
	DurationMinutes int `json:"duration_minutes"`
}

func parseTarget(c *fiber.Ctx) (targetRequest, error) {
	var req targetRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Target username required"))
		return req, errResponseWritten
	}
	req.Username = strings.TrimSpace(req.Username)
	return req, nil
}

// KickUser kicks a participant out of a room
func (s *Server) KickUser(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	req, err := parseTarget(c)
	if err != nil {
		return nil
	}

	if appErr := s.roomSvc.Kick(c.Context(), actor, c.Params("roomID"), req.Username); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "User kicked",
	})
}

// BumpUser removes a participant without kick side effects
func (s *Server) BumpUser(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	req, err := parseTarget(c)
	if err != nil {
		return nil
	}

	if appErr := s.roomSvc.Bump(c.Context(), actor, c.Params("roomID"), req.Username); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "User removed",
	})
}

// BanUser bans a user from a room durably
func (s *Server) BanUser(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	req, err := parseTarget(c)
	if err != nil {
		return nil
	}

	var expiresAt *time.Time
	if req.DurationMinutes > 0 {
		e := time.Now().Add(time.Duration(req.DurationMinutes) * time.Minute)
		expiresAt = &e
	}

	if appErr := s.roomSvc.Ban(c.Context(), actor, c.Params("roomID"),
		req.Username, req.Reason, expiresAt); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "User banned",
	})
}

// UnbanUser lifts a room ban
func (s *Server) UnbanUser(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}

	targetID, err := parseID(c, "userID")
	if err != nil {
		return nil
	}

	target, terr := s.userRepo.GetByID(c.Context(), targetID)
	if terr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("User", targetID))
	}

	if appErr := s.roomSvc.Unban(c.Context(), actor, c.Params("roomID"),
		target.Username); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "Ban lifted",
	})
}

// ListBans lists the active bans of a room
func (s *Server) ListBans(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	roomID := c.Params("roomID")

	room, rerr := s.roomRepo.GetByID(c.Context(), roomID)
	if rerr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("Room", roomID))
	}

	isMod, _ := s.roomRepo.IsModerator(c.Context(), roomID, actor.ID)
	isOwner := room.OwnerID != nil && *room.OwnerID == actor.ID
	if !isOwner && !isMod && !actor.IsAdministrator() && !actor.Elevated {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewForbiddenError("Moderator standing required"))
	}

	bans, berr := s.banRepo.ListForRoom(c.Context(), roomID)
	if berr != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(berr))
	}

	return c.JSON(fiber.Map{
		"bans": bans,
	})
}

// StartVoteKick opens a vote-kick against a participant and casts the
// initiator's vote
func (s *Server) StartVoteKick(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	req, err := parseTarget(c)
	if err != nil {
		return nil
	}

	session, appErr := s.roomSvc.StartVoteKick(c.Context(), actor,
		c.Params("roomID"), req.Username)
	if appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session": session,
	})
}

// CastVoteKick adds the caller's vote to an open vote-kick
func (s *Server) CastVoteKick(c *fiber.Ctx) error {
	actor, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	targetUsername := c.Params("username")

	if appErr := s.roomSvc.CastVoteKick(c.Context(), actor,
		c.Params("roomID"), targetUsername); appErr != nil {
		return respondAppError(c, appErr)
	}

	return c.JSON(fiber.Map{
		"message": "Vote recorded",
	})
}
