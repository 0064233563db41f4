package models

// Market types as reported by venues.
const (
	MarketTypeSpot = "spot"
	MarketTypePerp = "perp"
)

// VenueCapabilities describes what a venue can deliver. It drives the
// wsSupported / ohlcvSupported flags on coverage edges.
type VenueCapabilities struct {
	HasSpot   bool
	HasPerp   bool
	WSTrades  bool
	WSKlines  bool
	RESTOhlcv bool
}

// VenueMarket is a market as reported by a venue market fetcher.
type VenueMarket struct {
	Venue       string
	MarketType  string
	BaseSymbol  string
	QuoteSymbol string
	VenueSymbol string
	Status      string
}

// MarketDescriptor is the catalog record for a live market. MarketID is
// "venue:VENUESYMBOL:marketType".
type MarketDescriptor struct {
	MarketID           string
	BaseAssetID        string
	QuoteAssetID       string
	MarketType         string
	Venue              string
	VenueSymbol        string
	Status             string
	WSCapable          bool
	RESTCapable        bool
	SupportedIntervals []string
}

// AssetIdentifier is the symbol resolver's in-memory view of a canonical
// asset. ContractAddresses maps chain id to known addresses on that chain.
type AssetIdentifier struct {
	AssetID           string
	Symbol            string
	Name              string
	ChainID           string
	ContractAddresses map[string][]string
	Aliases           []string
	ProviderCoverage  []string
}
