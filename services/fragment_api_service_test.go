package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aotpy/username-checker-backend/shared"
)

func newTestAPIService() *FragmentAPIService {
	return NewFragmentAPIService("https://fragment.example", 5*time.Second)
}

func TestParseAuctionEnvelope(t *testing.T) {
	service := newTestAPIService()

	t.Run("single row", func(t *testing.T) {
		envelope := `
			<div class="tm-row">
				<div class="tm-value">@somename</div>
				<div class="tm-value">1,500 TON</div>
				<div class="tm-value">Available</div>
			</div>`

		record, err := service.parseAuctionEnvelope(envelope, "somename")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "@somename", record.Tag)
		assert.Equal(t, "1,500 TON", record.DisplayPrice)
		assert.Equal(t, "Available", record.StatusText)
		require.NotNil(t, record.PriceTON)
		assert.Equal(t, 1500.0, *record.PriceTON)
	})

	t.Run("exact tag match wins over the first row", func(t *testing.T) {
		envelope := `
			<div class="tm-value">@somename1</div>
			<div class="tm-value">100 TON</div>
			<div class="tm-value">Available</div>
			<div class="tm-value">@somename</div>
			<div class="tm-value">2,000 TON</div>
			<div class="tm-value">Sold</div>`

		record, err := service.parseAuctionEnvelope(envelope, "somename")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "@somename", record.Tag)
		assert.Equal(t, "Sold", record.StatusText)
	})

	t.Run("no exact match falls back to the first row", func(t *testing.T) {
		envelope := `
			<div class="tm-value">@othername</div>
			<div class="tm-value">100 TON</div>
			<div class="tm-value">Available</div>`

		record, err := service.parseAuctionEnvelope(envelope, "somename")
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, "@othername", record.Tag)
	})

	t.Run("empty result list means no record", func(t *testing.T) {
		record, err := service.parseAuctionEnvelope(`<div class="tm-empty">No results</div>`, "somename")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("truncated row is shape drift", func(t *testing.T) {
		envelope := `
			<div class="tm-value">@somename</div>
			<div class="tm-value">1,500 TON</div>`

		record, err := service.parseAuctionEnvelope(envelope, "somename")
		require.Error(t, err)
		assert.Nil(t, record)
		assert.True(t, shared.IsCategory(err, shared.ErrorCategoryShape))
	})

	t.Run("price without ticker still parses", func(t *testing.T) {
		envelope := `
			<div class="tm-value">@somename</div>
			<div class="tm-value">3,333</div>
			<div class="tm-value">Available</div>`

		record, err := service.parseAuctionEnvelope(envelope, "somename")
		require.NoError(t, err)
		require.NotNil(t, record)
		require.NotNil(t, record.PriceTON)
		assert.Equal(t, 3333.0, *record.PriceTON)
	})
}

func TestAPIHashRegex(t *testing.T) {
	script := `var ajaxUrl = apiUrl + "?hash=abc123DEF456";`
	match := apiHashRegex.FindStringSubmatch(script)
	require.Len(t, match, 2)
	assert.Equal(t, "abc123DEF456", match[1])

	assert.Nil(t, apiHashRegex.FindStringSubmatch(`var apiUrl = "/api";`))
}
