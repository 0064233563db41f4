package models

import "time"

// Token statuses. Tokens are never hard-deleted; retirement flips the status.
const (
	TokenStatusActive   = "active"
	TokenStatusInactive = "inactive"
)

// Token is the canonical identity merged from external directory listings.
type Token struct {
	TokenID             string
	Symbol              string
	Name                string
	Chain               string
	ContractAddress     string
	CoingeckoID         string
	CoinmarketcapID     string
	CryptocompareID     string
	CodexID             string
	DextoolsID          string
	Status              string
	PrioritySource      string
	DiscoveryConfidence int // 0..100
}

// TokenVenue is a coverage edge between a token and one venue market.
// Natural key: (TokenID, Venue, MarketType, VenueSymbol).
type TokenVenue struct {
	TokenID        string
	Venue          string
	MarketType     string
	BaseSymbol     string
	QuoteSymbol    string
	VenueSymbol    string
	WSSupported    bool
	OHLCVSupported bool
	LastVerifiedAt time.Time
}

// CatalogRow is one raw token listing as stored by the discovery pass,
// before identity resolution. TokenKey is "chain:address" when an address is
// known, otherwise "symbol:SYMBOL".
type CatalogRow struct {
	TokenKey        string
	Symbol          string
	Name            string
	Chain           string
	ContractAddress string
	Sources         []string
	Metadata        map[string]string
}

// DirectoryToken is a raw listing from one external directory source.
type DirectoryToken struct {
	Symbol          string
	Name            string
	Chain           string
	ContractAddress string
	ProviderID      string
	Provider        string
}
