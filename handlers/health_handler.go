package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aotpy/username-checker-backend/config"
	"github.com/aotpy/username-checker-backend/services"
)

// MetricsSource exposes a service's request counters for the status endpoint.
type MetricsSource interface {
	MetricsSnapshot() map[string]interface{}
}

type HealthHandler struct {
	Fetcher        *services.Fetcher
	Config         *config.Config
	MetricsSources map[string]MetricsSource
	StartedAt      time.Time
}

func NewHealthHandler(fetcher *services.Fetcher, cfg *config.Config, metricsSources map[string]MetricsSource) *HealthHandler {
	return &HealthHandler{
		Fetcher:        fetcher,
		Config:         cfg,
		MetricsSources: metricsSources,
		StartedAt:      time.Now(),
	}
}

// HealthCheck handles GET /health. Probes both upstream origins; the service
// is healthy when both answer, partial when one does, unhealthy otherwise.
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	serviceStates := fiber.Map{
		"telegram": h.probeOrigin(c, h.Config.TelegramBaseURL),
		"fragment": h.probeOrigin(c, h.Config.FragmentBaseURL),
	}

	reachable := 0
	for _, state := range serviceStates {
		if state == "ok" {
			reachable++
		}
	}

	status := "unhealthy"
	httpStatus := fiber.StatusServiceUnavailable
	switch reachable {
	case 2:
		status = "healthy"
		httpStatus = fiber.StatusOK
	case 1:
		status = "partial"
		httpStatus = fiber.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":         status,
		"services":       serviceStates,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"checked_at":     time.Now().UTC(),
	})
}

// Status handles GET /status: service metadata plus per-service request
// counters. No upstream probes.
func (h *HealthHandler) Status(c *fiber.Ctx) error {
	metrics := fiber.Map{
		"outbound_http": h.Fetcher.HTTPMetrics().Snapshot(),
	}
	for name, source := range h.MetricsSources {
		metrics[name] = source.MetricsSnapshot()
	}

	return c.JSON(fiber.Map{
		"service":        "username-checker-backend",
		"version":        "1.0.0",
		"status":         "running",
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"metrics":        metrics,
		"api_owner":      h.Config.Branding.APIOwner,
		"contact":        h.Config.Branding.Contact,
	})
}

// Root handles GET /: endpoint documentation plus operator branding.
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "Telegram Username Checker API",
		"endpoints": fiber.Map{
			"/check":    "GET  ?username=<handle>  full availability check",
			"/batch":    "POST {\"usernames\": [...]}  up to 50 handles",
			"/validate": "GET  ?username=<handle>  format validation only",
			"/price":    "GET  ?username=<handle>  Fragment price lookup",
			"/health":   "GET  upstream origin health",
			"/status":   "GET  service metadata",
		},
		"api_owner": h.Config.Branding.APIOwner,
		"contact":   h.Config.Branding.Contact,
		"portfolio": h.Config.Branding.Portfolio,
		"channel":   h.Config.Branding.Channel,
	})
}

func (h *HealthHandler) probeOrigin(c *fiber.Ctx, originURL string) string {
	_, failure := h.Fetcher.Fetch(c.Context(), originURL, http.MethodGet, nil, h.Config.HealthProbeTimeout, "")
	if failure != nil && failure.Kind != services.FetchFailureStatus {
		return "unreachable"
	}
	// Any HTTP answer, even an error status, proves the origin is up.
	return "ok"
}
