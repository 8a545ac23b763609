package server

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"lounge/internal/models"
	"lounge/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
)

const maxPaginationLimit = 100

// errResponseWritten signals that a handler helper has already written an
// error response to the client; callers should return nil to Fiber.
var errResponseWritten = errors.New("error response already written")

// Pagination holds parsed pagination query parameters.
type Pagination struct {
	Limit  int
	Offset int
}

func parsePagination(c *fiber.Ctx) Pagination {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	return Pagination{Limit: limit, Offset: offset}
}

// parseID extracts and validates a uint path parameter. On failure it writes
// a 400 response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (uint, error) {
	raw := c.Params(param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// currentUser loads the authenticated user from the userID local set by
// AuthRequired. On failure it writes the error response and returns
// errResponseWritten.
func (s *Server) currentUser(c *fiber.Ctx) (*models.User, error) {
	userID, ok := c.Locals("userID").(uint)
	if !ok {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization required"))
		return nil, errResponseWritten
	}

	user, err := s.userRepo.GetByID(c.Context(), userID)
	if err != nil {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Account no longer exists"))
		return nil, errResponseWritten
	}
	return user, nil
}

// respondAppError writes an AppError with the HTTP status matching its code.
func respondAppError(c *fiber.Ctx, appErr *models.AppError) error {
	status := fiber.StatusInternalServerError
	switch appErr.Code {
	case "NOT_FOUND":
		status = fiber.StatusNotFound
	case "VALIDATION_ERROR":
		status = fiber.StatusBadRequest
	case "UNAUTHORIZED":
		status = fiber.StatusUnauthorized
	case "FORBIDDEN", "JOIN_DENIED":
		status = fiber.StatusForbidden
	case "COOLDOWN_ACTIVE":
		status = fiber.StatusTooManyRequests
	case "CONFLICT":
		status = fiber.StatusConflict
	}
	observability.AddTraceAttributesToContext(c.UserContext(),
		attribute.String("app.error_code", appErr.Code))
	if status >= fiber.StatusInternalServerError {
		observability.RecordErrorInContext(c.UserContext(), appErr)
	}
	return models.RespondWithError(c, status, appErr)
}

// humanizeParam converts a camelCase route param name into words for error
// messages, e.g. "roomID" -> "room ID".
func humanizeParam(param string) string {
	words := splitCamel(param)
	return strings.Join(words, " ")
}

func splitCamel(s string) []string {
	var words []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			words = append(words, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	for i, w := range words {
		if w == strings.ToUpper(w) {
			continue
		}
		words[i] = strings.ToLower(w)
	}
	return words
}
