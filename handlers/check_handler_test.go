package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aotpy/username-checker-backend/config"
	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/services"
)

type fakeIdentityChecker struct {
	status models.IdentityStatus
}

func (f *fakeIdentityChecker) CheckUsername(ctx context.Context, username string) (models.IdentityStatus, error) {
	return f.status, nil
}

type fakeMarketplaceChecker struct {
	listing models.MarketplaceListing
}

func (f *fakeMarketplaceChecker) Lookup(ctx context.Context, username string) (models.MarketplaceListing, error) {
	return f.listing, nil
}

type fakeRateProvider struct{}

func (f *fakeRateProvider) FetchRates(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{"usd": 2.0}, nil
}

func newTestApp(t *testing.T, identityStatus models.IdentityStatus, listing models.MarketplaceListing) *fiber.App {
	t.Helper()
	branding := config.Branding{APIOwner: "Test Owner", Contact: "https://t.me/testowner"}
	cache := services.NewCheckResultCache(time.Minute, 100)
	t.Cleanup(cache.Close)
	checker := services.NewCheckerService(
		&fakeIdentityChecker{status: identityStatus},
		&fakeMarketplaceChecker{listing: listing},
		&fakeRateProvider{},
		cache, branding, 3,
	)
	handler := NewCheckHandler(checker, branding)

	app := fiber.New()
	app.Get("/check", handler.CheckUsername)
	app.Post("/batch", handler.CheckBatch)
	app.Get("/validate", handler.ValidateUsername)
	return app
}

func decodeBody(t *testing.T, response *http.Response, target interface{}) {
	t.Helper()
	body, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, target))
}

func TestCheckEndpoint(t *testing.T) {
	t.Run("missing username parameter", func(t *testing.T) {
		app := newTestApp(t, models.IdentityAvailable, models.MarketplaceListing{Status: models.MarketplaceNotListed})

		response, err := app.Test(httptestRequest("GET", "/check", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, response.StatusCode)
	})

	t.Run("invalid username returns 400 with the result envelope", func(t *testing.T) {
		app := newTestApp(t, models.IdentityAvailable, models.MarketplaceListing{Status: models.MarketplaceNotListed})

		response, err := app.Test(httptestRequest("GET", "/check?username=ab", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, response.StatusCode)

		var result models.UsernameCheckResult
		decodeBody(t, response, &result)
		assert.False(t, result.Valid)
		assert.Equal(t, models.StatusInvalidFormat, result.Status)
	})

	t.Run("available username", func(t *testing.T) {
		app := newTestApp(t, models.IdentityAvailable, models.MarketplaceListing{Status: models.MarketplaceNotListed})

		response, err := app.Test(httptestRequest("GET", "/check?username=somename", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, response.StatusCode)

		var result models.UsernameCheckResult
		decodeBody(t, response, &result)
		assert.Equal(t, models.StatusAvailable, result.Status)
		require.NotNil(t, result.CanClaim)
		assert.True(t, *result.CanClaim)
		assert.Equal(t, "Test Owner", result.APIOwner)
	})

	t.Run("listed username carries marketplace details", func(t *testing.T) {
		price := 500.0
		app := newTestApp(t, models.IdentityAvailable, models.MarketplaceListing{
			Status:   models.MarketplaceForSale,
			PriceTON: &price,
			URL:      "https://fragment.com/username/somename",
		})

		response, err := app.Test(httptestRequest("GET", "/check?username=somename", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, response.StatusCode)

		var result models.UsernameCheckResult
		decodeBody(t, response, &result)
		assert.Equal(t, models.StatusForSale, result.Status)
		assert.True(t, result.OnFragment)
		require.NotNil(t, result.PriceTON)
		assert.Equal(t, 500.0, *result.PriceTON)
		assert.Equal(t, 1000.0, result.PriceFiat["usd"])
	})
}

func TestBatchEndpoint(t *testing.T) {
	app := newTestApp(t, models.IdentityAvailable, models.MarketplaceListing{Status: models.MarketplaceNotListed})

	t.Run("invalid body", func(t *testing.T) {
		response, err := app.Test(httptestRequest("POST", "/batch", []byte(`not json`)))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, response.StatusCode)
	})

	t.Run("empty list", func(t *testing.T) {
		response, err := app.Test(httptestRequest("POST", "/batch", []byte(`{"usernames":[]}`)))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, response.StatusCode)
	})

	t.Run("oversized batch", func(t *testing.T) {
		var usernames []string
		for i := 0; i < maxBatchSize+1; i++ {
			usernames = append(usernames, "somename")
		}
		body, err := json.Marshal(models.BatchCheckRequest{Usernames: usernames})
		require.NoError(t, err)

		response, err := app.Test(httptestRequest("POST", "/batch", body))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, response.StatusCode)
	})

	t.Run("mixed batch preserves order", func(t *testing.T) {
		body := []byte(`{"usernames":["firstname","ab","secondname"]}`)
		response, err := app.Test(httptestRequest("POST", "/batch", body))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, response.StatusCode)

		var batch models.BatchCheckResponse
		decodeBody(t, response, &batch)
		require.Len(t, batch.Results, 3)
		assert.Equal(t, 3, batch.Total)
		assert.Equal(t, "firstname", batch.Results[0].Username)
		assert.Equal(t, models.StatusInvalidFormat, batch.Results[1].Status)
		assert.Equal(t, "secondname", batch.Results[2].Username)
	})
}

func TestValidateEndpoint(t *testing.T) {
	app := newTestApp(t, models.IdentityAvailable, models.MarketplaceListing{Status: models.MarketplaceNotListed})

	t.Run("missing parameter", func(t *testing.T) {
		response, err := app.Test(httptestRequest("GET", "/validate", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, response.StatusCode)
	})

	t.Run("valid username", func(t *testing.T) {
		response, err := app.Test(httptestRequest("GET", "/validate?username=%40SomeName", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, response.StatusCode)

		var payload struct {
			Username string                 `json:"username"`
			Valid    bool                   `json:"valid"`
			Rules    models.ValidationRules `json:"rules"`
		}
		decodeBody(t, response, &payload)
		assert.Equal(t, "somename", payload.Username)
		assert.True(t, payload.Valid)
		assert.Equal(t, 5, payload.Rules.MinLength)
	})

	t.Run("invalid username", func(t *testing.T) {
		response, err := app.Test(httptestRequest("GET", "/validate?username=bad__name", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, response.StatusCode)

		var payload struct {
			Valid bool `json:"valid"`
		}
		decodeBody(t, response, &payload)
		assert.False(t, payload.Valid)
	})
}

func httptestRequest(method, target string, body []byte) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	request, _ := http.NewRequest(method, target, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	return request
}
