package directory

import (
	"context"
	"net/http"
	"strconv"

	"airapiserv/models"
)

const coinmarketcapMapURL = "https://pro-api.coinmarketcap.com/v1/cryptocurrency/map"

// CoinMarketCap lists tokens through the id map endpoint.
type CoinMarketCap struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
}

func (CoinMarketCap) Provider() string { return "coinmarketcap" }
func (CoinMarketCap) Cost() int        { return 1 }

type coinmarketcapMapResp struct {
	Data []struct {
		ID       int    `json:"id"`
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Platform *struct {
			Name         string `json:"name"`
			TokenAddress string `json:"token_address"`
		} `json:"platform"`
	} `json:"data"`
}

func (c CoinMarketCap) Fetch(ctx context.Context) ([]models.DirectoryToken, error) {
	url := c.BaseURL
	if url == "" {
		url = coinmarketcapMapURL
	}
	headers := map[string]string{"X-CMC_PRO_API_KEY": c.APIKey}

	var resp coinmarketcapMapResp
	if err := getJSON(ctx, c.Client, url, headers, &resp); err != nil {
		return nil, err
	}

	listings := make([]models.DirectoryToken, 0, len(resp.Data))
	for _, coin := range resp.Data {
		listing := models.DirectoryToken{
			Symbol:     coin.Symbol,
			Name:       coin.Name,
			Provider:   "coinmarketcap",
			ProviderID: strconv.Itoa(coin.ID),
		}
		if coin.Platform != nil {
			listing.Chain = coin.Platform.Name
			listing.ContractAddress = coin.Platform.TokenAddress
		}
		listings = append(listings, listing)
	}
	return listings, nil
}
