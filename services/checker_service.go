package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/aotpy/username-checker-backend/config"
	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/shared"
)

// IdentityChecker answers whether a username is taken on the identity origin.
type IdentityChecker interface {
	CheckUsername(ctx context.Context, username string) (models.IdentityStatus, error)
}

// MarketplaceChecker resolves a username's marketplace listing.
type MarketplaceChecker interface {
	Lookup(ctx context.Context, username string) (models.MarketplaceListing, error)
}

// RateProvider returns TON exchange rates keyed by currency code.
type RateProvider interface {
	FetchRates(ctx context.Context) (map[string]float64, error)
}

// CheckerService composes identity and marketplace answers into one verdict.
// The identity check gates everything: an unknown identity short-circuits the
// marketplace lookup because no combination of marketplace data can produce a
// claimability verdict without it.
type CheckerService struct {
	identity     IdentityChecker
	marketplace  MarketplaceChecker
	rates        RateProvider
	cache        *CheckResultCache
	branding     config.Branding
	batchWorkers int
}

// NewCheckerService wires the composer.
func NewCheckerService(identity IdentityChecker, marketplace MarketplaceChecker, rates RateProvider, cache *CheckResultCache, branding config.Branding, batchWorkers int) *CheckerService {
	if batchWorkers < 1 {
		batchWorkers = 1
	}
	return &CheckerService{
		identity:     identity,
		marketplace:  marketplace,
		rates:        rates,
		cache:        cache,
		branding:     branding,
		batchWorkers: batchWorkers,
	}
}

// CheckUsername normalizes, validates, and checks one username. Invalid
// handles are answered locally without touching the network or the cache.
func (s *CheckerService) CheckUsername(ctx context.Context, rawUsername string) models.UsernameCheckResult {
	username := models.NormalizeUsername(rawUsername)

	if !models.IsValidUsername(username) {
		return s.invalidResult(username)
	}

	result, err := s.cache.GetOrCompute(username, func() (models.UsernameCheckResult, error) {
		return s.runCheck(ctx, username), nil
	})
	if err != nil {
		// runCheck never errors; GetOrCompute only propagates compute errors.
		return s.runCheck(ctx, username)
	}
	return result
}

// CheckBatch checks usernames concurrently with a bounded worker count,
// preserving input order in the results.
func (s *CheckerService) CheckBatch(ctx context.Context, usernames []string) []models.UsernameCheckResult {
	results := make([]models.UsernameCheckResult, len(usernames))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.batchWorkers)

	for i, username := range usernames {
		i, username := i, username
		group.Go(func() error {
			results[i] = s.CheckUsername(groupCtx, username)
			return nil
		})
	}

	// Workers never return errors; Wait is for completion only.
	_ = group.Wait()
	return results
}

// runCheck performs the full composed check for a validated username.
func (s *CheckerService) runCheck(ctx context.Context, username string) models.UsernameCheckResult {
	checkID := uuid.New().String()
	logger := logrus.WithFields(logrus.Fields{
		"component": "CheckerService",
		"method":    "runCheck",
		"check_id":  checkID,
		"username":  username,
	})
	logger.Info("Starting username check")

	result := models.UsernameCheckResult{
		Username:  username,
		Valid:     true,
		CheckedAt: time.Now().UTC(),
		APIOwner:  s.branding.APIOwner,
		Contact:   s.branding.Contact,
	}

	identityStatus, identityErr := s.identity.CheckUsername(ctx, username)
	if identityErr != nil {
		logServiceFailure(logger, identityErr, "Identity check failed")
	}

	if identityStatus == models.IdentityUnknown {
		// No identity answer means no claimability verdict; the
		// marketplace lookup is skipped outright.
		result.Status = models.StatusUnverified
		result.Message = "Unable to check Telegram status"
		return result
	}

	taken := identityStatus == models.IdentityTaken
	result.TelegramTaken = &taken

	if taken {
		result.Status = models.StatusTaken
		result.Message = "Username is already in use on Telegram"
		canClaim := false
		result.CanClaim = &canClaim
		logger.WithField("status", result.Status).Info("Username check complete")
		return result
	}

	listing, marketErr := s.marketplace.Lookup(ctx, username)
	if marketErr != nil {
		logServiceFailure(logger, marketErr, "Marketplace lookup failed")
	}

	s.composeAvailableVerdict(ctx, &result, listing)
	logger.WithFields(logrus.Fields{
		"status":             result.Status,
		"marketplace_status": listing.Status,
	}).Info("Username check complete")
	return result
}

// composeAvailableVerdict fills in the verdict for a username that is free on
// the identity origin, based on what the marketplace says about it.
func (s *CheckerService) composeAvailableVerdict(ctx context.Context, result *models.UsernameCheckResult, listing models.MarketplaceListing) {
	canClaim := false

	switch listing.Status {
	case models.MarketplaceSold:
		result.Status = models.StatusSold
		result.Message = "This username was sold on Fragment"
		result.OnFragment = true
	case models.MarketplaceForSale:
		result.Status = models.StatusForSale
		result.Message = "Available for purchase on Fragment"
		result.OnFragment = true
	case models.MarketplaceAuction:
		result.Status = models.StatusAuction
		result.Message = "Available for auction on Fragment"
		result.OnFragment = true
	case models.MarketplaceReserved:
		result.Status = models.StatusReserved
		result.Message = "Reserved username on Fragment"
		result.OnFragment = true
	default:
		// NotListed and Unknown both resolve to plain availability; a
		// marketplace outage must not block claiming a free handle.
		result.Status = models.StatusAvailable
		result.Message = "Username is available and can be claimed on Telegram"
		canClaim = true
	}

	result.CanClaim = &canClaim

	if result.OnFragment {
		result.FragmentStatus = string(listing.Status)
		result.FragmentURL = listing.URL
		result.PriceTON = listing.PriceTON
		result.PriceDisplay = listing.DisplayPrice
		if listing.PriceTON != nil {
			result.PriceFiat = s.fiatPrices(ctx, *listing.PriceTON)
		}
	}
}

// logServiceFailure keeps the structured ServiceError context when the
// failure carries one.
func logServiceFailure(logger *logrus.Entry, err error, message string) {
	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) {
		serviceErr.LogError()
		return
	}
	logger.WithError(err).Warn(message)
}

// fiatPrices converts a TON price using live rates. A rates failure degrades
// to no fiat column.
func (s *CheckerService) fiatPrices(ctx context.Context, amountTON float64) map[string]float64 {
	rates, err := s.rates.FetchRates(ctx)
	if err != nil || len(rates) == 0 {
		return nil
	}
	return ConvertToFiat(amountTON, rates)
}

// invalidResult answers a malformed username without any network activity.
func (s *CheckerService) invalidResult(username string) models.UsernameCheckResult {
	rules := models.UsernameValidationRules
	return models.UsernameCheckResult{
		Username: username,
		Status:   models.StatusInvalidFormat,
		Valid:    false,
		Message: fmt.Sprintf(
			"Username must be %d-%d characters (%s), no trailing or double underscores",
			rules.MinLength, rules.MaxLength, rules.AllowedCharacters),
		CheckedAt: time.Now().UTC(),
		APIOwner:  s.branding.APIOwner,
		Contact:   s.branding.Contact,
	}
}
