package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aotpy/username-checker-backend/shared"
)

// ratesAssetKey is the asset identifier the rates provider uses for Toncoin.
const ratesAssetKey = "the-open-network"

// PriceService fetches TON fiat exchange rates and converts listing prices.
// Rates are a nicety: every caller treats a failed fetch as "no fiat column",
// never as a failed check.
type PriceService struct {
	fetcher  *Fetcher
	ratesURL string
	timeout  time.Duration
	metrics  *shared.ServiceMetrics
}

// NewPriceService creates a converter backed by the given rates endpoint.
func NewPriceService(fetcher *Fetcher, ratesURL string, timeout time.Duration) *PriceService {
	return &PriceService{
		fetcher:  fetcher,
		ratesURL: ratesURL,
		timeout:  timeout,
		metrics:  shared.NewServiceMetrics("Price_Service"),
	}
}

// FetchRates returns the current TON rate per fiat currency, keyed by
// lowercase currency code.
func (s *PriceService) FetchRates(ctx context.Context) (map[string]float64, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "PriceService",
		"method":    "FetchRates",
	})

	startTime := time.Now()
	result, failure := s.fetcher.FetchWithRetry(ctx, s.ratesURL, s.timeout, 1)
	if failure != nil {
		s.metrics.RecordRequest(false, time.Since(startTime))
		logger.WithError(failure).Warn("Rates fetch failed")
		return nil, shared.WrapError(failure, shared.ErrorCategoryUpstream,
			"RATES_FETCH_FAILED", "Price_Service", "FetchRates", true)
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(result.Body, &payload); err != nil {
		s.metrics.RecordRequest(false, time.Since(startTime))
		s.metrics.RecordShapeDrift()
		return nil, shared.WrapError(err, shared.ErrorCategoryShape,
			"RATES_UNPARSEABLE", "Price_Service", "FetchRates", false)
	}

	rates, ok := payload[ratesAssetKey]
	if !ok || len(rates) == 0 {
		s.metrics.RecordRequest(false, time.Since(startTime))
		s.metrics.RecordShapeDrift()
		return nil, shared.NewServiceError(shared.ErrorCategoryShape,
			"RATES_ASSET_MISSING", "rates payload has no entry for "+ratesAssetKey,
			"Price_Service", "FetchRates", false, nil)
	}

	s.metrics.RecordRequest(true, time.Since(startTime))
	logger.WithField("currency_count", len(rates)).Debug("Fetched TON exchange rates")
	return rates, nil
}

// MetricsSnapshot reports the rate-lookup counters.
func (s *PriceService) MetricsSnapshot() map[string]interface{} {
	return s.metrics.Snapshot()
}

// LogMetricsSummary writes the rate-lookup counters to the log.
func (s *PriceService) LogMetricsSummary() {
	s.metrics.LogSummary()
}

// ConvertToFiat converts a TON amount into every currency present in rates,
// rounded to 2 decimals. Empty rates produce an empty map.
func ConvertToFiat(amountTON float64, rates map[string]float64) map[string]float64 {
	converted := make(map[string]float64, len(rates))
	for currency, rate := range rates {
		converted[currency] = math.Round(amountTON*rate*100) / 100
	}
	return converted
}
