package venue

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const krakenPairsURL = "https://api.kraken.com/0/public/AssetPairs"

// Kraken lists spot pairs.
type Kraken struct {
	Client  *http.Client
	BaseURL string
}

func (Kraken) Name() string { return "kraken" }

type krakenPairsResp struct {
	Result map[string]struct {
		WSName string `json:"wsname"`
		Base   string `json:"base"`
		Quote  string `json:"quote"`
		Status string `json:"status"`
	} `json:"result"`
}

func (k Kraken) FetchMarkets(ctx context.Context) ([]models.VenueMarket, error) {
	baseURL := k.BaseURL
	if baseURL == "" {
		baseURL = krakenPairsURL
	}
	var resp krakenPairsResp
	if err := getJSON(ctx, k.Client, baseURL, &resp); err != nil {
		return nil, err
	}

	var markets []models.VenueMarket
	for _, pair := range resp.Result {
		if pair.Status != "online" || pair.WSName == "" {
			continue
		}
		markets = append(markets, models.VenueMarket{
			Venue:       "kraken",
			MarketType:  models.MarketTypeSpot,
			BaseSymbol:  krakenAsset(pair.Base),
			QuoteSymbol: krakenAsset(pair.Quote),
			VenueSymbol: pair.WSName,
			Status:      pair.Status,
		})
	}
	return markets, nil
}

// krakenAsset strips Kraken's legacy X/Z asset prefixes and maps XBT to BTC.
func krakenAsset(code string) string {
	if len(code) == 4 && (code[0] == 'X' || code[0] == 'Z') {
		code = code[1:]
	}
	if code == "XBT" {
		return "BTC"
	}
	return code
}
