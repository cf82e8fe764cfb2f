package models

import "time"

// IdentityStatus is the tri-state result of the Telegram profile check.
type IdentityStatus string

const (
	IdentityTaken     IdentityStatus = "taken"
	IdentityAvailable IdentityStatus = "available"
	IdentityUnknown   IdentityStatus = "unknown"
)

// MarketplaceStatus classifies what Fragment knows about a username.
type MarketplaceStatus string

const (
	MarketplaceNotListed MarketplaceStatus = "NotListed"
	MarketplaceSold      MarketplaceStatus = "Sold"
	MarketplaceForSale   MarketplaceStatus = "ForSale"
	MarketplaceAuction   MarketplaceStatus = "Auction"
	MarketplaceReserved  MarketplaceStatus = "Reserved"
	MarketplaceUnknown   MarketplaceStatus = "Unknown"
)

// Listed reports whether the status means the username exists on the
// marketplace in some form.
func (s MarketplaceStatus) Listed() bool {
	switch s {
	case MarketplaceSold, MarketplaceForSale, MarketplaceAuction, MarketplaceReserved:
		return true
	}
	return false
}

// Final check outcomes. Taken/Sold/ForSale/Auction/Reserved/Available mirror
// the legacy API's status strings; Unverified and InvalidFormat cover the
// cases where no claimability verdict can be given.
const (
	StatusUnverified    = "Unverified"
	StatusTaken         = "Taken"
	StatusSold          = "Sold"
	StatusForSale       = "ForSale"
	StatusAuction       = "Auction"
	StatusReserved      = "Reserved"
	StatusAvailable     = "Available"
	StatusInvalidFormat = "Invalid Format"
)

// MarketplaceListing is the classified result of a Fragment lookup.
type MarketplaceListing struct {
	Status       MarketplaceStatus `json:"status"`
	PriceTON     *float64          `json:"price_ton,omitempty"`
	DisplayPrice string            `json:"display_price,omitempty"`
	URL          string            `json:"url,omitempty"`
}

// UsernameCheckResult is the response envelope for a single username check.
// It is constructed fresh per request and never persisted. TelegramTaken and
// CanClaim are pointers because both are tri-state: nil means the question
// could not be answered, not that the answer is false.
type UsernameCheckResult struct {
	Username       string             `json:"username"`
	Status         string             `json:"status"`
	Valid          bool               `json:"valid"`
	Message        string             `json:"message"`
	TelegramTaken  *bool              `json:"telegram_taken"`
	OnFragment     bool               `json:"on_fragment"`
	FragmentStatus string             `json:"fragment_status,omitempty"`
	PriceTON       *float64           `json:"price_ton,omitempty"`
	PriceDisplay   string             `json:"price_display,omitempty"`
	PriceFiat      map[string]float64 `json:"price_fiat,omitempty"`
	FragmentURL    string             `json:"fragment_url,omitempty"`
	CanClaim       *bool              `json:"can_claim"`
	CheckedAt      time.Time          `json:"checked_at"`
	APIOwner       string             `json:"api_owner,omitempty"`
	Contact        string             `json:"contact,omitempty"`
}

// BatchCheckRequest is the body of POST /batch.
type BatchCheckRequest struct {
	Usernames []string `json:"usernames"`
}

// BatchCheckResponse wraps batch results; Results preserves input order.
type BatchCheckResponse struct {
	Results   []UsernameCheckResult `json:"results"`
	Total     int                   `json:"total"`
	CheckedAt time.Time             `json:"checked_at"`
	APIOwner  string                `json:"api_owner,omitempty"`
}

// PriceLookupResult is the response of GET /price, backed by the Fragment
// internal API only (no page scrape, no Telegram check).
type PriceLookupResult struct {
	Username  string   `json:"username"`
	Price     string   `json:"price"`
	PriceTON  *float64 `json:"price_ton,omitempty"`
	Status    string   `json:"status"`
	Available bool     `json:"available"`
	APIOwner  string   `json:"api_owner,omitempty"`
	Contact   string   `json:"contact,omitempty"`
	Portfolio string   `json:"portfolio,omitempty"`
	Channel   string   `json:"channel,omitempty"`
}

// ValidationRules documents the username format rules for GET /validate.
type ValidationRules struct {
	MinLength            int    `json:"min_length"`
	MaxLength            int    `json:"max_length"`
	AllowedCharacters    string `json:"allowed_characters"`
	NoSpaces             bool   `json:"no_spaces"`
	NoTrailingUnderscore bool   `json:"no_trailing_underscore"`
	NoDoubleUnderscore   bool   `json:"no_double_underscore"`
}

// UsernameValidationRules is the rule set applied by IsValidUsername.
var UsernameValidationRules = ValidationRules{
	MinLength:            5,
	MaxLength:            32,
	AllowedCharacters:    "a-z, A-Z, 0-9, underscore (_)",
	NoSpaces:             true,
	NoTrailingUnderscore: true,
	NoDoubleUnderscore:   true,
}
