package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aotpy/username-checker-backend/config"
	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/services"
)

type PriceHandler struct {
	APIService *services.FragmentAPIService
	Branding   config.Branding
}

func NewPriceHandler(apiService *services.FragmentAPIService, branding config.Branding) *PriceHandler {
	return &PriceHandler{
		APIService: apiService,
		Branding:   branding,
	}
}

// LookupPrice handles GET /price?username=<handle>. Goes straight to the
// marketplace internal API; no identity check, no page scrape.
func (h *PriceHandler) LookupPrice(c *fiber.Ctx) error {
	username := c.Query("username")
	if username == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Missing 'username' query parameter",
			"example": "/price?username=somename",
		})
	}

	normalized := models.NormalizeUsername(username)
	if !models.IsValidUsername(normalized) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid username format",
			"rules": models.UsernameValidationRules,
		})
	}

	record, err := h.APIService.SearchUsername(c.Context(), normalized)
	if err != nil || record == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No price data found on Fragment",
		})
	}

	status := services.ClassifyAuctionRecord(record)
	return c.JSON(models.PriceLookupResult{
		Username:  normalized,
		Price:     record.DisplayPrice,
		PriceTON:  record.PriceTON,
		Status:    string(status),
		Available: status == models.MarketplaceForSale,
		APIOwner:  h.Branding.APIOwner,
		Contact:   h.Branding.Contact,
		Portfolio: h.Branding.Portfolio,
		Channel:   h.Branding.Channel,
	})
}
