package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aotpy/username-checker-backend/config"
	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/services"
)

// maxBatchSize bounds POST /batch so one request cannot monopolize the
// outbound rate limiters.
const maxBatchSize = 50

type CheckHandler struct {
	CheckerService *services.CheckerService
	Branding       config.Branding
}

func NewCheckHandler(checker *services.CheckerService, branding config.Branding) *CheckHandler {
	return &CheckHandler{
		CheckerService: checker,
		Branding:       branding,
	}
}

// CheckUsername handles GET /check?username=<handle>.
func (h *CheckHandler) CheckUsername(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Missing 'username' query parameter",
			"example": "/check?username=somename",
		})
	}

	result := h.CheckerService.CheckUsername(c.Context(), username)
	if !result.Valid {
		return c.Status(fiber.StatusBadRequest).JSON(result)
	}
	return c.JSON(result)
}

// CheckBatch handles POST /batch with a JSON list of usernames. Invalid
// entries get per-entry invalid results instead of failing the batch.
func (h *CheckHandler) CheckBatch(c *fiber.Ctx) error {
	var request models.BatchCheckRequest
	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body, expected {\"usernames\": [...]}",
		})
	}

	if len(request.Usernames) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "'usernames' must be a non-empty list",
		})
	}
	if len(request.Usernames) > maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Batch size is limited to %d usernames", maxBatchSize),
		})
	}

	results := h.CheckerService.CheckBatch(c.Context(), request.Usernames)
	return c.JSON(models.BatchCheckResponse{
		Results:   results,
		Total:     len(results),
		CheckedAt: time.Now().UTC(),
		APIOwner:  h.Branding.APIOwner,
	})
}

// ValidateUsername handles GET /validate?username=<handle>. Format only, no
// network activity.
func (h *CheckHandler) ValidateUsername(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Missing 'username' query parameter",
			"example": "/validate?username=somename",
		})
	}

	normalized := models.NormalizeUsername(username)
	return c.JSON(fiber.Map{
		"username": normalized,
		"valid":    models.IsValidUsername(normalized),
		"rules":    models.UsernameValidationRules,
	})
}
