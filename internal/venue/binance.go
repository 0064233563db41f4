package venue

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const (
	binanceSpotInfoURL = "https://api.binance.com/api/v3/exchangeInfo"
	binancePerpInfoURL = "https://fapi.binance.com/fapi/v1/exchangeInfo"
)

// Binance lists spot and USDT-margined perpetual markets.
type Binance struct {
	Client  *http.Client
	SpotURL string
	PerpURL string
}

func (Binance) Name() string { return "binance" }

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		BaseAsset    string `json:"baseAsset"`
		QuoteAsset   string `json:"quoteAsset"`
		Status       string `json:"status"`
		ContractType string `json:"contractType"`
	} `json:"symbols"`
}

func (b Binance) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	spotURL, perpURL := b.SpotURL, b.PerpURL
	if spotURL == "" {
		spotURL = binanceSpotInfoURL
	}
	if perpURL == "" {
		perpURL = binancePerpInfoURL
	}

	var markets []models.VenueMarket

	var spot binanceExchangeInfo
	if err := getJSON(ctx, b.Client, spotURL, &spot); err != nil {
		return nil, err
	}
	for _, s := range spot.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "binance",
			MarketType:  models.MarketTypeSpot,
			BaseSymbol:  s.BaseAsset,
			QuoteSymbol: s.QuoteAsset,
			VenueSymbol: s.Symbol,
			Status:      s.Status,
		})
	}

	var perp binanceExchangeInfo
	if err := getJSON(ctx, b.Client, perpURL, &perp); err != nil {
		return nil, err
	}
	for _, s := range perp.Symbols {
		if s.Status != "TRADING" || s.ContractType != "PERPETUAL" {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "binance",
			MarketType:  models.MarketTypePerp,
			BaseSymbol:  s.BaseAsset,
			QuoteSymbol: s.QuoteAsset,
			VenueSymbol: s.Symbol,
			Status:      s.Status,
		})
	}
	return markets, nil
}
