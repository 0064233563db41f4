package venue

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const kucoinSymbolsURL = "https://api.kucoin.com/api/v2/symbols"

// Kucoin lists spot markets. Futures symbols come through the fallback SDK
// poller instead.
type Kucoin struct {
	Client  *http.Client
	BaseURL string
}

func (Kucoin) Name() string { return "kucoin" }

type kucoinSymbolsResp struct {
	Data []struct {
		Symbol        string `json:"symbol"`
		BaseCurrency  string `json:"baseCurrency"`
		QuoteCurrency string `json:"quoteCurrency"`
		EnableTrading bool   `json:"enableTrading"`
	} `json:"data"`
}

func (k Kucoin) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	baseURL := k.BaseURL
	if baseURL == "" {
		baseURL = kucoinSymbolsURL
	}
	var resp kucoinSymbolsResp
	if err := getJSON(ctx, k.Client, baseURL, &resp); err != nil {
		return nil, err
	}

	var markets []models.VenueMarket
	for _, s := range resp.Data {
		if !s.EnableTrading {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "kucoin",
			MarketType:  models.MarketTypeSpot,
			BaseSymbol:  s.BaseCurrency,
			QuoteSymbol: s.QuoteCurrency,
			VenueSymbol: s.Symbol,
			Status:      "enabled",
		})
	}
	return markets, nil
}
