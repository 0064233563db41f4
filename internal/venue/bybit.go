package venue

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const bybitInstrumentsURL = "https://api.bybit.com/v5/market/instruments-info"

// Bybit lists spot and linear perpetual markets through the v5 API.
type Bybit struct {
	Client  *http.Client
	BaseURL string
}

func (Bybit) Name() string { return "bybit" }

type bybitInstrumentsResp struct {
	Result struct {
		List []struct {
			Symbol       string `json:"symbol"`
			BaseCoin     string `json:"baseCoin"`
			QuoteCoin    string `json:"quoteCoin"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
		} `json:"list"`
	} `json:"result"`
}

func (b Bybit) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	baseURL := b.BaseURL
	if baseURL == "" {
		baseURL = bybitInstrumentsURL
	}

	var markets []models.VenueMarket
	for _, category := range []struct {
		name       string
		marketType string
	}{
		{"spot", models.MarketTypeSpot},
		{"linear", models.MarketTypePerp},
	} {
		var resp bybitInstrumentsResp
		if err := getJSON(ctx, b.Client, baseURL+"?category="+category.name+"&limit=1000", &resp); err != nil {
			return nil, err
		}
		for _, inst := range resp.Result.List {
			if inst.Status != "Trading" {
				continue
			}
			if category.name == "linear" && inst.ContractType != "LinearPerpetual" {
				continue
			}
			markets = append(markets, models.VenueMarket{
				Venue:       "bybit",
				MarketType:  category.marketType,
				BaseSymbol:  inst.BaseCoin,
				QuoteSymbol: inst.QuoteCoin,
				VenueSymbol: inst.Symbol,
				Status:      inst.Status,
			})
		}
	}
	return markets, nil
}
