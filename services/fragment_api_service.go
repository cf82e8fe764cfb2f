package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"

	"github.com/aotpy/username-checker-backend/shared"
)

// apiHashRegex extracts the per-session API hash that Fragment embeds in an
// inline script on the homepage. The hash is tied to the cookies of the
// session that loaded the page, so discovery and the API call must share one
// collector.
var apiHashRegex = regexp.MustCompile(`hash=([a-fA-F0-9]+)`)

// searchMethods are tried in order until one returns auction rows. Fragment
// has renamed this method before; keeping the old name as a fallback buys
// time when it happens again.
var searchMethods = []string{"searchAuctions", "searchUsernames"}

// AuctionRecord is one row of Fragment's auction search results.
type AuctionRecord struct {
	Tag          string
	DisplayPrice string
	StatusText   string
	PriceTON     *float64
}

// apiEnvelope is the JSON wrapper the internal API responds with. The
// interesting payload is an HTML fragment inside it.
type apiEnvelope struct {
	HTML string `json:"html"`
}

// FragmentAPIService talks to Fragment's internal search API: load the
// homepage, lift the session hash out of the inline script, then POST the
// query with the same session. Transport failures are retried; shape
// failures are not, they mean the site changed.
type FragmentAPIService struct {
	baseURL     string
	timeout     time.Duration
	maxAttempts int
	retryDelay  time.Duration
	rateLimiter *shared.HTTPRequestRateLimiter
	metrics     *shared.ServiceMetrics
}

// NewFragmentAPIService creates an internal-API client for the given base URL.
func NewFragmentAPIService(baseURL string, timeout time.Duration) *FragmentAPIService {
	return &FragmentAPIService{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		timeout:     timeout,
		maxAttempts: 3,
		retryDelay:  2 * time.Second,
		rateLimiter: shared.NewHTTPRequestRateLimiter(1 * time.Second),
		metrics:     shared.NewServiceMetrics("Fragment_API_Service"),
	}
}

// SearchUsername queries the internal API for an exact-tag auction record.
// Returns (nil, nil) when the API answered but has no row for this tag.
func (s *FragmentAPIService) SearchUsername(ctx context.Context, username string) (*AuctionRecord, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FragmentAPIService",
		"method":    "SearchUsername",
		"username":  username,
	})

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if attempt > 1 {
			logger.WithField("attempt", attempt).Info("Retrying internal API search")
			select {
			case <-time.After(s.retryDelay):
			case <-ctx.Done():
				return nil, shared.WrapError(ctx.Err(), shared.ErrorCategoryUpstream,
					"FRAGMENT_API_CANCELLED", "Fragment_API_Service", "SearchUsername", false)
			}
		}

		record, err := s.searchOnce(ctx, username)
		if err == nil {
			return record, nil
		}
		lastErr = err

		// Shape errors describe a markup change, not a flaky network;
		// retrying the same request cannot help.
		if !shared.IsRetryableError(err) {
			return nil, err
		}
	}

	return nil, lastErr
}

// searchOnce runs one full session: homepage, hash discovery, API POST,
// envelope parse.
func (s *FragmentAPIService) searchOnce(ctx context.Context, username string) (*AuctionRecord, error) {
	s.rateLimiter.EnforceRateLimit()
	startTime := time.Now()

	collector := colly.NewCollector(
		colly.UserAgent(shared.DefaultUserAgent),
		colly.StdlibContext(ctx),
	)
	collector.SetRequestTimeout(s.timeout)

	var (
		apiHash      string
		responseHTML string
		gotResponse  bool
		transportErr error
	)

	collector.OnHTML("script", func(element *colly.HTMLElement) {
		if apiHash != "" || !strings.Contains(element.Text, "apiUrl") {
			return
		}
		if match := apiHashRegex.FindStringSubmatch(element.Text); len(match) == 2 {
			apiHash = match[1]
		}
	})

	collector.OnResponse(func(response *colly.Response) {
		if !strings.Contains(response.Request.URL.Path, "/api") {
			return
		}
		var envelope apiEnvelope
		if err := json.Unmarshal(response.Body, &envelope); err != nil {
			return
		}
		gotResponse = true
		responseHTML = envelope.HTML
	})

	collector.OnError(func(response *colly.Response, err error) {
		transportErr = err
	})

	if err := collector.Visit(s.baseURL + "/"); err != nil {
		transportErr = err
	}
	collector.Wait()

	if transportErr != nil {
		s.metrics.RecordRequest(false, time.Since(startTime))
		return nil, shared.WrapError(transportErr, shared.ErrorCategoryUpstream,
			"FRAGMENT_HOMEPAGE_FAILED", "Fragment_API_Service", "searchOnce", true)
	}

	if apiHash == "" {
		s.metrics.RecordRequest(false, time.Since(startTime))
		s.metrics.RecordShapeDrift()
		return nil, shared.NewServiceError(shared.ErrorCategoryShape,
			"FRAGMENT_HASH_MISSING", "no API hash found in homepage scripts",
			"Fragment_API_Service", "searchOnce", false, nil)
	}

	apiURL := fmt.Sprintf("%s/api?hash=%s", s.baseURL, apiHash)
	for _, method := range searchMethods {
		gotResponse = false
		responseHTML = ""

		payload := map[string]string{
			"type":   "usernames",
			"query":  username,
			"method": method,
		}
		if err := collector.Post(apiURL, payload); err != nil {
			transportErr = err
		}
		collector.Wait()

		if transportErr != nil {
			s.metrics.RecordRequest(false, time.Since(startTime))
			return nil, shared.WrapError(transportErr, shared.ErrorCategoryUpstream,
				"FRAGMENT_API_POST_FAILED", "Fragment_API_Service", "searchOnce", true)
		}

		if gotResponse && strings.TrimSpace(responseHTML) != "" {
			record, err := s.parseAuctionEnvelope(responseHTML, username)
			if err != nil {
				s.metrics.RecordRequest(false, time.Since(startTime))
				return nil, err
			}
			s.metrics.RecordRequest(true, time.Since(startTime))
			return record, nil
		}
	}

	// Every method produced an empty envelope: the API answered, there is
	// just nothing to show for this tag.
	s.metrics.RecordRequest(true, time.Since(startTime))
	return nil, nil
}

// MetricsSnapshot reports the internal-API counters.
func (s *FragmentAPIService) MetricsSnapshot() map[string]interface{} {
	snapshot := s.metrics.Snapshot()
	snapshot["outbound_requests"] = s.rateLimiter.GetRequestCount()
	return snapshot
}

// LogMetricsSummary writes the internal-API counters to the log.
func (s *FragmentAPIService) LogMetricsSummary() {
	s.metrics.LogSummary()
}

// parseAuctionEnvelope extracts the (tag, price, status) triplet for the
// queried username from the result-list HTML. Fewer than three value cells
// per row is shape drift.
func (s *FragmentAPIService) parseAuctionEnvelope(resultHTML, username string) (*AuctionRecord, error) {
	document, err := goquery.NewDocumentFromReader(strings.NewReader(resultHTML))
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryShape,
			"FRAGMENT_ENVELOPE_UNPARSEABLE", "Fragment_API_Service", "parseAuctionEnvelope", false)
	}

	values := document.Find("div.tm-value")
	if values.Length() == 0 {
		// A well-formed envelope with no rows: nothing listed.
		return nil, nil
	}
	if values.Length() < 3 {
		s.metrics.RecordShapeDrift()
		return nil, shared.NewServiceError(shared.ErrorCategoryShape,
			"FRAGMENT_ENVELOPE_TRUNCATED",
			fmt.Sprintf("expected at least 3 result values, got %d", values.Length()),
			"Fragment_API_Service", "parseAuctionEnvelope", false, nil)
	}

	wanted := "@" + strings.ToLower(username)
	var record *AuctionRecord
	for i := 0; i+2 < values.Length(); i += 3 {
		tag := strings.TrimSpace(values.Eq(i).Text())
		if strings.ToLower(tag) != wanted && record != nil {
			continue
		}

		displayPrice := strings.TrimSpace(values.Eq(i + 1).Text())
		priceTON := ExtractTONPrice(displayPrice)
		if priceTON == nil {
			// Some rows carry a bare number without the ticker.
			priceTON = ExtractTONPrice(displayPrice + " ton")
		}
		candidate := &AuctionRecord{
			Tag:          tag,
			DisplayPrice: displayPrice,
			StatusText:   strings.TrimSpace(values.Eq(i + 2).Text()),
			PriceTON:     priceTON,
		}

		// First row is the closest match; an exact tag match overrides it.
		if record == nil {
			record = candidate
		}
		if strings.ToLower(tag) == wanted {
			record = candidate
			break
		}
	}

	return record, nil
}
