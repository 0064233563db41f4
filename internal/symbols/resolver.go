package symbols

import (
	"strings"
	"sync"
	"time"

	"airapiserv/models"
)

// MatchKind reports which tier of the resolution precedence produced a hit.
type MatchKind string

const (
	MatchOverride MatchKind = "override"
	MatchContract MatchKind = "contract"
	MatchSymbol   MatchKind = "symbol"
	MatchAlias    MatchKind = "alias"
)

// Override pins a (symbol, chain) pair to a fixed asset and optional market.
// Overrides always win resolution.
type Override struct {
	Symbol    string
	AssetID   string
	MarketID  string
	Owner     string
	Note      string
	UpdatedAt time.Time
}

// ResolveParams is one resolution query.
type ResolveParams struct {
	Symbol          string
	ChainID         string
	ContractAddress string
	MarketType      string
}

// Resolution is a successful lookup. Market is nil when the asset has no
// market matching the requested type.
type Resolution struct {
	Asset      models.AssetIdentifier
	Market     *models.MarketDescriptor
	Confidence float64
	MatchedBy  MatchKind
}

// Resolver maps symbol/contract queries to canonical assets and markets.
// The indices are owned exclusively by the resolver and guarded by mu;
// registration is safe at runtime.
type Resolver struct {
	mu        sync.RWMutex
	assets    []models.AssetIdentifier
	markets   []models.MarketDescriptor
	overrides map[string]Override
}

func NewResolver(assets []models.AssetIdentifier, markets []models.MarketDescriptor) *Resolver {
	return &Resolver{
		assets:    assets,
		markets:   markets,
		overrides: make(map[string]Override),
	}
}

// Resolve applies the tiered precedence: override, exact contract address,
// exact symbol, alias. ok is false when nothing matched, which is distinct
// from a match without a market.
func (r *Resolver) Resolve(params ResolveParams) (Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if entry, found := r.overrides[overrideKey(params.Symbol, params.ChainID)]; found {
		if asset, ok := r.findAsset(entry.AssetID); ok {
			return Resolution{
				Asset:      asset,
				Market:     r.findMarketByID(entry.MarketID),
				Confidence: 1,
				MatchedBy:  MatchOverride,
			}, true
		}
	}

	if params.ContractAddress != "" {
		want := strings.ToLower(params.ContractAddress)
		for _, asset := range r.assets {
			for _, addrs := range asset.ContractAddresses {
				for _, addr := range addrs {
					if strings.ToLower(addr) == want {
						return Resolution{
							Asset:      asset,
							Market:     r.pickMarket(asset.AssetID, params.MarketType),
							Confidence: 0.95,
							MatchedBy:  MatchContract,
						}, true
					}
				}
			}
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(params.Symbol))
	for _, asset := range r.assets {
		if strings.ToLower(asset.Symbol) == normalized {
			return Resolution{
				Asset:      asset,
				Market:     r.pickMarket(asset.AssetID, params.MarketType),
				Confidence: 0.9,
				MatchedBy:  MatchSymbol,
			}, true
		}
	}

	for _, asset := range r.assets {
		for _, alias := range asset.Aliases {
			if strings.ToLower(alias) == normalized {
				return Resolution{
					Asset:      asset,
					Market:     r.pickMarket(asset.AssetID, params.MarketType),
					Confidence: 0.75,
					MatchedBy:  MatchAlias,
				}, true
			}
		}
	}

	return Resolution{}, false
}

// Search returns assets whose id, symbol, name or alias contains the query.
func (r *Resolver) Search(query string, limit int) []models.AssetIdentifier {
	if limit <= 0 {
		limit = 25
	}
	normalized := strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.AssetIdentifier
	for _, asset := range r.assets {
		if len(out) >= limit {
			break
		}
		if strings.Contains(asset.AssetID, normalized) ||
			strings.Contains(strings.ToLower(asset.Symbol), normalized) ||
			strings.Contains(strings.ToLower(asset.Name), normalized) ||
			aliasContains(asset.Aliases, normalized) {
			out = append(out, asset)
		}
	}
	return out
}

// RegisterOverride installs or replaces a manual override at runtime.
func (r *Resolver) RegisterOverride(symbol, chainID, assetID, marketID, owner, note string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[overrideKey(symbol, chainID)] = Override{
		Symbol:    symbol,
		AssetID:   assetID,
		MarketID:  marketID,
		Owner:     owner,
		Note:      note,
		UpdatedAt: time.Now().UTC(),
	}
}

// AttachAsset registers an additional asset at runtime.
func (r *Resolver) AttachAsset(asset models.AssetIdentifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets = append(r.assets, asset)
}

// AttachMarket registers an additional market at runtime.
func (r *Resolver) AttachMarket(market models.MarketDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets = append(r.markets, market)
}

func (r *Resolver) findAsset(assetID string) (models.AssetIdentifier, bool) {
	for _, asset := range r.assets {
		if asset.AssetID == assetID {
			return asset, true
		}
	}
	return models.AssetIdentifier{}, false
}

func (r *Resolver) findMarketByID(marketID string) *models.MarketDescriptor {
	if marketID == "" {
		return nil
	}
	for i := range r.markets {
		if r.markets[i].MarketID == marketID {
			m := r.markets[i]
			return &m
		}
	}
	return nil
}

func (r *Resolver) pickMarket(assetID, marketType string) *models.MarketDescriptor {
	for i := range r.markets {
		if r.markets[i].BaseAssetID != assetID {
			continue
		}
		if marketType != "" && r.markets[i].MarketType != marketType {
			continue
		}
		m := r.markets[i]
		return &m
	}
	return nil
}

func aliasContains(aliases []string, normalized string) bool {
	for _, alias := range aliases {
		if strings.Contains(strings.ToLower(alias), normalized) {
			return true
		}
	}
	return false
}

func overrideKey(symbol, chainID string) string {
	if chainID == "" {
		chainID = "any"
	}
	return strings.ToLower(symbol) + "::" + strings.ToLower(chainID)
}
