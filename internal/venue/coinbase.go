package venue

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const coinbaseProductsURL = "https://api.exchange.coinbase.com/products"

// Coinbase lists spot products.
type Coinbase struct {
	Client  *http.Client
	BaseURL string
}

func (Coinbase) Name() string { return "coinbase" }

type coinbaseProduct struct {
	ID            string `json:"id"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	Status        string `json:"status"`
	TradingDisabled bool `json:"trading_disabled"`
}

func (c Coinbase) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = coinbaseProductsURL
	}
	var products []coinbaseProduct
	if err := getJSON(ctx, c.Client, baseURL, &products); err != nil {
		return nil, err
	}

	var markets []models.VenueMarket
	for _, p := range products {
		if p.Status != "online" || p.TradingDisabled {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "coinbase",
			MarketType:  models.MarketTypeSpot,
			BaseSymbol:  p.BaseCurrency,
			QuoteSymbol: p.QuoteCurrency,
			VenueSymbol: p.ID,
			Status:      p.Status,
		})
	}
	return markets, nil
}
