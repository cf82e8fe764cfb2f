package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aotpy/username-checker-backend/models"
	"github.com/aotpy/username-checker-backend/shared"
)

func TestClassifyListingPage(t *testing.T) {
	testCases := []struct {
		name     string
		pageHTML string
		expected models.MarketplaceStatus
	}{
		{
			name:     "sold page",
			pageHTML: `<div class="tm-section">This username was sold and is no longer available.</div>`,
			expected: models.MarketplaceSold,
		},
		{
			name:     "sold for phrasing",
			pageHTML: `<h2>Sold for 12,500 TON</h2>`,
			expected: models.MarketplaceSold,
		},
		{
			name:     "ended auction counts as sold",
			pageHTML: `<span>Auction ended</span><span>Final Price</span>`,
			expected: models.MarketplaceSold,
		},
		{
			name:     "buy now listing",
			pageHTML: `<button>Buy Username</button><div>500 TON</div>`,
			expected: models.MarketplaceForSale,
		},
		{
			name:     "live auction via bid phrase",
			pageHTML: `<button>Place a Bid</button><div>Minimum 100 TON</div>`,
			expected: models.MarketplaceForSale,
		},
		{
			name:     "auction-worded phrase classifies as auction",
			pageHTML: `<div>Auction ends in 3 days</div><div>Current price 1,000 TON</div>`,
			expected: models.MarketplaceAuction,
		},
		{
			name:     "sold wins over auction wording",
			pageHTML: `<div>Auction ended</div><div>Auction ends</div>`,
			expected: models.MarketplaceSold,
		},
		{
			name:     "reserved username",
			pageHTML: `<div>This is a reserved username.</div>`,
			expected: models.MarketplaceReserved,
		},
		{
			name:     "premium counts as reserved",
			pageHTML: `<div>Premium username</div>`,
			expected: models.MarketplaceReserved,
		},
		{
			name:     "bare page with no phrases",
			pageHTML: `<html><body><h1>Fragment</h1></body></html>`,
			expected: models.MarketplaceNotListed,
		},
		{
			name:     "empty page",
			pageHTML: "",
			expected: models.MarketplaceNotListed,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ClassifyListingPage(tc.pageHTML).Status)
		})
	}
}

func TestClassifyListingPageExtractsPrice(t *testing.T) {
	listing := ClassifyListingPage(`<button>Buy Username</button><div class="tm-price">1,234 TON</div>`)
	assert.Equal(t, models.MarketplaceForSale, listing.Status)
	require.NotNil(t, listing.PriceTON)
	assert.Equal(t, 1234.0, *listing.PriceTON)
}

func TestExtractTONPrice(t *testing.T) {
	testCases := []struct {
		name     string
		pageText string
		expected *float64
	}{
		{"plain number", "500 TON", floatPtr(500)},
		{"thousands separators", "12,500 TON", floatPtr(12500)},
		{"decimals", "99.5 ton", floatPtr(99.5)},
		{"no whitespace", "750ton", floatPtr(750)},
		{"embedded in markup", `<div>Current bid: 2,000 TON</div>`, floatPtr(2000)},
		{"no ticker", "500 USD", nil},
		{"no number", "some TON of text", nil},
		{"empty", "", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := ExtractTONPrice(tc.pageText)
			if tc.expected == nil {
				assert.Nil(t, actual)
				return
			}
			require.NotNil(t, actual)
			assert.Equal(t, *tc.expected, *actual)
		})
	}
}

func TestClassifyAuctionRecord(t *testing.T) {
	testCases := []struct {
		statusText string
		expected   models.MarketplaceStatus
	}{
		{"Sold", models.MarketplaceSold},
		{"sold 3 days ago", models.MarketplaceSold},
		{"Unavailable", models.MarketplaceNotListed},
		{"Available", models.MarketplaceForSale},
		{"On auction", models.MarketplaceForSale},
		{"", models.MarketplaceForSale},
	}

	for _, tc := range testCases {
		t.Run(tc.statusText, func(t *testing.T) {
			record := &AuctionRecord{Tag: "@somename", StatusText: tc.statusText}
			assert.Equal(t, tc.expected, ClassifyAuctionRecord(record))
		})
	}
}

func TestFragmentServiceLookup(t *testing.T) {
	t.Run("internal API answer wins", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><head><script>var apiUrl="/api?hash=0a1b2c3d";</script></head><body></body></html>`))
		})
		mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"html":"<div class=\"tm-value\">@somename</div><div class=\"tm-value\">1,500 TON</div><div class=\"tm-value\">Available</div>"}`))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		apiService := NewFragmentAPIService(server.URL, 5*time.Second)
		service := NewFragmentService(NewFetcher(), apiService, nil, server.URL, 5*time.Second)

		listing, err := service.Lookup(context.Background(), "somename")
		require.NoError(t, err)
		assert.Equal(t, models.MarketplaceForSale, listing.Status)
		require.NotNil(t, listing.PriceTON)
		assert.Equal(t, 1500.0, *listing.PriceTON)
		assert.Equal(t, "1,500 TON", listing.DisplayPrice)
		assert.Equal(t, server.URL+"/username/somename", listing.URL)
	})

	t.Run("hash missing falls back to page scrape, 404 means not listed", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><body><h1>marketplace</h1></body></html>`))
		})
		mux.HandleFunc("/username/somename", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		apiService := NewFragmentAPIService(server.URL, 5*time.Second)
		service := NewFragmentService(NewFetcher(), apiService, nil, server.URL, 5*time.Second)

		listing, err := service.Lookup(context.Background(), "somename")
		require.NoError(t, err)
		assert.Equal(t, models.MarketplaceNotListed, listing.Status)
		assert.Nil(t, listing.PriceTON)
	})

	t.Run("page scrape classifies a listed page when the API has no hash", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><body>nothing useful</body></html>`))
		})
		mux.HandleFunc("/username/somename", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<button>Buy Username</button><div>2,000 TON</div>`))
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		apiService := NewFragmentAPIService(server.URL, 5*time.Second)
		service := NewFragmentService(NewFetcher(), apiService, nil, server.URL, 5*time.Second)

		listing, err := service.Lookup(context.Background(), "somename")
		require.NoError(t, err)
		assert.Equal(t, models.MarketplaceForSale, listing.Status)
		require.NotNil(t, listing.PriceTON)
		assert.Equal(t, 2000.0, *listing.PriceTON)
		assert.Equal(t, server.URL+"/username/somename", listing.URL)
	})

	t.Run("page fetch failure surfaces unknown with an upstream error", func(t *testing.T) {
		apiOrigin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html><body>nothing useful</body></html>`))
		}))
		defer apiOrigin.Close()

		pageOrigin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		pageOrigin.Close()

		apiService := NewFragmentAPIService(apiOrigin.URL, 5*time.Second)
		service := NewFragmentService(NewFetcher(), apiService, nil, pageOrigin.URL, 2*time.Second)

		listing, err := service.Lookup(context.Background(), "somename")
		require.Error(t, err)
		assert.Equal(t, models.MarketplaceUnknown, listing.Status)
		assert.True(t, shared.IsCategory(err, shared.ErrorCategoryUpstream))
	})
}

func TestListingClassificationProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("classification is idempotent over its own input", prop.ForAll(
		func(pageHTML string) bool {
			first := ClassifyListingPage(pageHTML)
			second := ClassifyListingPage(pageHTML)
			return first.Status == second.Status
		},
		gen.AnyString(),
	))

	properties.Property("classification is case-insensitive", prop.ForAll(
		func(pageHTML string) bool {
			lower := ClassifyListingPage(pageHTML)
			upper := ClassifyListingPage(upperASCII(pageHTML))
			return lower.Status == upper.Status
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func upperASCII(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'a' && b <= 'z' {
			out[i] = b - ('a' - 'A')
		}
	}
	return string(out)
}

func floatPtr(v float64) *float64 {
	return &v
}
