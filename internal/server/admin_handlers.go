package server

import (
	"lounge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns the raw feature flag configuration
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"flags": s.featureFlags.Raw(),
	})
}

// GetGlobalBanStatus reports a user's global ban state and kick tally
func (s *Server) GetGlobalBanStatus(c *fiber.Ctx) error {
	username := c.Params("username")

	user, err := s.userRepo.GetByUsername(c.Context(), username)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("User", username))
	}

	return c.JSON(fiber.Map{
		"username":   user.Username,
		"banned":     s.bans.IsGloballyBanned(c.Context(), user.Username),
		"kick_count": s.bans.KickCount(c.Context(), user.ID),
		"threshold":  s.config.Presence.GlobalBanKickThreshold,
	})
}

// ClearGlobalBan lifts a global ban and resets the kick tally
func (s *Server) ClearGlobalBan(c *fiber.Ctx) error {
	username := c.Params("username")

	user, err := s.userRepo.GetByUsername(c.Context(), username)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("User", username))
	}

	if err := s.bans.ClearGlobalBan(c.Context(), user.Username, user.ID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"message": "Global ban cleared",
	})
}

// ClearCooldown removes one cooldown kind for a user, optionally scoped
// to a room via the ?room query parameter
func (s *Server) ClearCooldown(c *fiber.Ctx) error {
	username := c.Params("username")
	kind := c.Params("kind")
	roomID := c.Query("room")

	switch kind {
	case "adminKick", "voteKick":
	default:
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unknown cooldown kind"))
	}

	if _, err := s.userRepo.GetByUsername(c.Context(), username); err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("User", username))
	}

	if err := s.cooldowns.Clear(c.Context(), kind, username, roomID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"message": "Cooldown cleared",
	})
}

// SetElevated grants or revokes elevated standing
func (s *Server) SetElevated(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userID")
	if err != nil {
		return nil
	}

	var req struct {
		Elevated bool `json:"elevated"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if _, uerr := s.userRepo.GetByID(c.Context(), targetID); uerr != nil {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("User", targetID))
	}

	if err := s.userRepo.SetElevated(c.Context(), targetID, req.Elevated); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"user_id":  targetID,
		"elevated": req.Elevated,
	})
}

// GetKickStats reports how many kicks an admin has issued
func (s *Server) GetKickStats(c *fiber.Ctx) error {
	targetID, err := parseID(c, "userID")
	if err != nil {
		return nil
	}

	return c.JSON(fiber.Map{
		"user_id":      targetID,
		"kicks_issued": s.bans.KicksIssued(c.Context(), targetID),
	})
}
