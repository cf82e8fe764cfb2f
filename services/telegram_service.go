package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/shared"
	"github.com/sirupsen/logrus"
)

// The t.me resolver renders this invitation only for handles with no active
// profile behind them.
const telegramContactInvitation = "If you have <strong>Telegram</strong>, you can contact"

// Markup fragments present when the resolver renders an actual profile or a
// public message widget.
var telegramProfileMarkers = []string{
	"tgme_page",
	"tgme_widget_message",
}

// TelegramService resolves whether a username has an active profile on the
// identity origin.
type TelegramService struct {
	fetcher     *Fetcher
	baseURL     string
	timeout     time.Duration
	rateLimiter *shared.HTTPRequestRateLimiter
	metrics     *shared.ServiceMetrics
}

// NewTelegramService creates an identity checker against the given t.me base URL.
func NewTelegramService(fetcher *Fetcher, baseURL string, timeout time.Duration) *TelegramService {
	return &TelegramService{
		fetcher:     fetcher,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		timeout:     timeout,
		rateLimiter: shared.NewHTTPRequestRateLimiter(500 * time.Millisecond),
		metrics:     shared.NewServiceMetrics("Telegram_Service"),
	}
}

// CheckUsername fetches the public profile page and classifies it. A
// transport failure yields IdentityUnknown together with an upstream error so
// the composer reports "unable to verify" instead of guessing.
func (s *TelegramService) CheckUsername(ctx context.Context, username string) (models.IdentityStatus, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "TelegramService",
		"method":    "CheckUsername",
		"username":  username,
	})

	s.rateLimiter.EnforceRateLimit()
	startTime := time.Now()

	profileURL := fmt.Sprintf("%s/%s", s.baseURL, username)
	result, failure := s.fetcher.Fetch(ctx, profileURL, http.MethodGet, nil, s.timeout, "")
	if failure != nil {
		if failure.Kind == FetchFailureStatus {
			// The resolver answered; whatever it rendered is still
			// classifiable page text.
			s.metrics.RecordRequest(true, time.Since(startTime))
			return ClassifyProfilePage(string(failure.Body)), nil
		}

		s.metrics.RecordRequest(false, time.Since(startTime))
		logger.WithError(failure).Warn("Telegram profile fetch failed")
		return models.IdentityUnknown, shared.WrapError(failure, shared.ErrorCategoryUpstream,
			"TELEGRAM_FETCH_FAILED", "Telegram_Service", "CheckUsername", true)
	}

	s.metrics.RecordRequest(true, time.Since(startTime))
	status := ClassifyProfilePage(result.Text())
	logger.WithField("identity_status", status).Debug("Classified Telegram profile page")
	return status, nil
}

// MetricsSnapshot reports the identity-check counters.
func (s *TelegramService) MetricsSnapshot() map[string]interface{} {
	snapshot := s.metrics.Snapshot()
	snapshot["outbound_requests"] = s.rateLimiter.GetRequestCount()
	return snapshot
}

// LogMetricsSummary writes the identity-check counters to the log.
func (s *TelegramService) LogMetricsSummary() {
	s.metrics.LogSummary()
}

// ClassifyProfilePage decides taken-vs-available from profile page text.
// Rule order, first match wins:
//  1. contact invitation phrase -> Available
//  2. rendered profile / message widget markup -> Taken
//  3. anything else -> Available
//
// The default is deliberately Available: an unrecognized page shape blocking
// a legitimately free handle is judged worse than the occasional false
// negative. Heuristic, not a guarantee.
func ClassifyProfilePage(pageText string) models.IdentityStatus {
	if strings.Contains(pageText, telegramContactInvitation) {
		return models.IdentityAvailable
	}

	for _, marker := range telegramProfileMarkers {
		if strings.Contains(pageText, marker) {
			return models.IdentityTaken
		}
	}

	return models.IdentityAvailable
}
