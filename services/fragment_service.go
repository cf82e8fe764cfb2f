package services

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/shared"
	"github.com/sirupsen/logrus"
)

// listingPhraseTable is the ordered (status, phrase-set) dispatch table for
// marketplace page classification. First phrase match wins; the order
// matters because sold pages still contain bid-related wording.
var listingPhraseTable = []struct {
	status  models.MarketplaceStatus
	phrases []string
}{
	{models.MarketplaceSold, []string{
		"this username was sold",
		"sold for",
		"final price",
		"this lot is sold",
		"auction ended",
	}},
	{models.MarketplaceForSale, []string{
		"buy username",
		"place a bid",
		"current bid",
		"starting price",
		"auction ends",
	}},
	{models.MarketplaceReserved, []string{
		"reserved",
		"premium",
	}},
}

// tonPriceRegex matches a number (optional thousands separators, optional
// decimals) directly preceding the TON ticker. Applied to lowercased text.
var tonPriceRegex = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*ton`)

// FragmentService resolves a username's marketplace listing. It prefers the
// internal API (richer, structured) and falls back to scraping the public
// listing page when the API path yields nothing usable.
type FragmentService struct {
	fetcher         *Fetcher
	apiClient       *FragmentAPIService
	renderedFetcher *RenderedFetcher
	baseURL         string
	timeout         time.Duration
	rateLimiter     *shared.HTTPRequestRateLimiter
	metrics         *shared.ServiceMetrics
}

// NewFragmentService creates a marketplace checker. apiClient is required;
// renderedFetcher may be nil to disable the headless-browser fallback.
func NewFragmentService(fetcher *Fetcher, apiClient *FragmentAPIService, renderedFetcher *RenderedFetcher, baseURL string, timeout time.Duration) *FragmentService {
	return &FragmentService{
		fetcher:         fetcher,
		apiClient:       apiClient,
		renderedFetcher: renderedFetcher,
		baseURL:         strings.TrimSuffix(baseURL, "/"),
		timeout:         timeout,
		rateLimiter:     shared.NewHTTPRequestRateLimiter(1 * time.Second),
		metrics:         shared.NewServiceMetrics("Fragment_Service"),
	}
}

// Lookup classifies the username's marketplace presence. API-shape failures
// degrade to the page scrape; only when both paths fail does the listing come
// back Unknown with the underlying error.
func (s *FragmentService) Lookup(ctx context.Context, username string) (models.MarketplaceListing, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FragmentService",
		"method":    "Lookup",
		"username":  username,
	})

	record, apiErr := s.apiClient.SearchUsername(ctx, username)
	if apiErr == nil && record != nil {
		listing := models.MarketplaceListing{
			Status:       ClassifyAuctionRecord(record),
			PriceTON:     record.PriceTON,
			DisplayPrice: record.DisplayPrice,
			URL:          s.listingURL(username),
		}
		logger.WithField("marketplace_status", listing.Status).Debug("Classified listing via internal API")
		return listing, nil
	}

	if apiErr != nil {
		logger.WithError(apiErr).Info("Internal API lookup failed, falling back to page scrape")
	}

	return s.lookupByPage(ctx, username)
}

// lookupByPage fetches the public listing page and classifies its text.
func (s *FragmentService) lookupByPage(ctx context.Context, username string) (models.MarketplaceListing, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FragmentService",
		"method":    "lookupByPage",
		"username":  username,
	})

	s.rateLimiter.EnforceRateLimit()
	startTime := time.Now()

	pageURL := s.listingURL(username)
	result, failure := s.fetcher.Fetch(ctx, pageURL, http.MethodGet, nil, s.timeout, s.baseURL+"/")
	if failure != nil {
		switch failure.Kind {
		case FetchFailureStatus:
			if failure.StatusCode == http.StatusForbidden && s.renderedFetcher != nil {
				return s.lookupByRenderedPage(ctx, username, pageURL)
			}
			// No page for this handle means no listing.
			s.metrics.RecordRequest(true, time.Since(startTime))
			return models.MarketplaceListing{Status: models.MarketplaceNotListed}, nil
		default:
			s.metrics.RecordRequest(false, time.Since(startTime))
			logger.WithError(failure).Warn("Fragment page fetch failed")
			return models.MarketplaceListing{Status: models.MarketplaceUnknown},
				shared.WrapError(failure, shared.ErrorCategoryUpstream,
					"FRAGMENT_FETCH_FAILED", "Fragment_Service", "lookupByPage", true)
		}
	}

	s.metrics.RecordRequest(true, time.Since(startTime))
	listing := ClassifyListingPage(result.Text())
	if listing.Status.Listed() {
		listing.URL = pageURL
	}
	logger.WithField("marketplace_status", listing.Status).Debug("Classified listing via page scrape")
	return listing, nil
}

// lookupByRenderedPage retries a bot-walled listing page through headless
// Chrome. Only reachable when the rendered fallback is enabled in config.
func (s *FragmentService) lookupByRenderedPage(ctx context.Context, username, pageURL string) (models.MarketplaceListing, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FragmentService",
		"method":    "lookupByRenderedPage",
		"username":  username,
	})
	logger.Info("Plain fetch was blocked, retrying with rendered fetch")

	html, err := s.renderedFetcher.FetchPage(ctx, pageURL)
	if err != nil {
		logger.WithError(err).Warn("Rendered page fetch failed")
		return models.MarketplaceListing{Status: models.MarketplaceUnknown},
			shared.WrapError(err, shared.ErrorCategoryUpstream,
				"FRAGMENT_RENDERED_FETCH_FAILED", "Fragment_Service", "lookupByRenderedPage", true)
	}

	listing := ClassifyListingPage(html)
	if listing.Status.Listed() {
		listing.URL = pageURL
	}
	return listing, nil
}

// MetricsSnapshot reports the page-scrape counters.
func (s *FragmentService) MetricsSnapshot() map[string]interface{} {
	snapshot := s.metrics.Snapshot()
	snapshot["outbound_requests"] = s.rateLimiter.GetRequestCount()
	return snapshot
}

// LogMetricsSummary writes the page-scrape counters to the log.
func (s *FragmentService) LogMetricsSummary() {
	s.metrics.LogSummary()
}

func (s *FragmentService) listingURL(username string) string {
	return fmt.Sprintf("%s/username/%s", s.baseURL, username)
}

// ClassifyListingPage classifies raw marketplace listing HTML through the
// ordered phrase table and extracts a native-token price when one is
// present. A page that loads but matches nothing is NotListed: a bare 200 is
// evidence of nothing beyond "page exists".
func ClassifyListingPage(pageHTML string) models.MarketplaceListing {
	loweredHTML := strings.ToLower(pageHTML)

	for _, entry := range listingPhraseTable {
		for _, phrase := range entry.phrases {
			if !strings.Contains(loweredHTML, phrase) {
				continue
			}

			status := entry.status
			if status == models.MarketplaceForSale && strings.Contains(phrase, "auction") {
				status = models.MarketplaceAuction
			}

			return models.MarketplaceListing{
				Status:   status,
				PriceTON: ExtractTONPrice(loweredHTML),
			}
		}
	}

	return models.MarketplaceListing{Status: models.MarketplaceNotListed}
}

// ExtractTONPrice pulls the first TON-suffixed number out of page text,
// stripping thousands separators. Returns nil when no price is present.
func ExtractTONPrice(pageText string) *float64 {
	match := tonPriceRegex.FindStringSubmatch(strings.ToLower(pageText))
	if len(match) < 2 {
		return nil
	}

	cleaned := strings.ReplaceAll(match[1], ",", "")
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &price
}

// ClassifyAuctionRecord maps an internal-API auction record to a marketplace
// status. "Unavailable" is Fragment's wording for a handle it does not trade.
func ClassifyAuctionRecord(record *AuctionRecord) models.MarketplaceStatus {
	statusText := strings.ToLower(record.StatusText)
	switch {
	case strings.Contains(statusText, "sold"):
		return models.MarketplaceSold
	case strings.Contains(statusText, "unavailable"):
		return models.MarketplaceNotListed
	default:
		return models.MarketplaceForSale
	}
}
