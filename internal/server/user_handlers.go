package server

import (
	"lounge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile returns the authenticated user's account
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}
	return c.JSON(user)
}

// GetMyVisits returns the caller's recent room visit history
func (s *Server) GetMyVisits(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}

	page := parsePagination(c)
	visits, verr := s.roomRepo.RecentVisits(c.Context(), user.ID, page.Limit)
	if verr != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(verr))
	}

	return c.JSON(fiber.Map{
		"visits": visits,
	})
}

type transferRequest struct {
	RecipientID uint  `json:"recipient_id"`
	Amount      int64 `json:"amount"`
}

// TransferCredits moves credits from the caller to another user
func (s *Server) TransferCredits(c *fiber.Ctx) error {
	user, err := s.currentUser(c)
	if err != nil {
		return nil
	}

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if appErr := s.creditSvc.Transfer(c.Context(), user.ID, req.RecipientID, req.Amount); appErr != nil {
		return respondAppError(c, appErr)
	}

	// Reload for the post-transfer balance.
	updated, uerr := s.userRepo.GetByID(c.Context(), user.ID)
	if uerr != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(uerr))
	}

	return c.JSON(fiber.Map{
		"message": "Transfer complete",
		"credits": updated.Credits,
	})
}
