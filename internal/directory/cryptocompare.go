package directory

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const cryptocompareCoinListURL = "https://min-api.cryptocompare.com/data/all/coinlist"

// CryptoCompare lists coins from the coinlist endpoint.
type CryptoCompare struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
}

func (CryptoCompare) Provider() string { return "cryptocompare" }
func (CryptoCompare) Cost() int        { return 1 }

type cryptocompareCoinListResp struct {
	Data map[string]struct {
		ID       string `json:"Id"`
		Symbol   string `json:"Symbol"`
		CoinName string `json:"CoinName"`
	} `json:"Data"`
}

func (c CryptoCompare) Fetch(ctx context.Context) ([]models.DirectoryToken, error) {
	url := c.BaseURL
	if url == "" {
		url = cryptocompareCoinListURL
	}
	var headers map[string]string
	if c.APIKey != "" {
		headers = map[string]string{"authorization": "Apikey " + c.APIKey}
	}

	var resp cryptocompareCoinListResp
	if err := getJSON(ctx, c.Client, url, headers, &resp); err != nil {
		return nil, err
	}

	listings := make([]models.DirectoryToken, 0, len(resp.Data))
	for _, coin := range resp.Data {
		listings = append(listings, models.DirectoryToken{
			Symbol:     coin.Symbol,
			Name:       coin.CoinName,
			Provider:   "cryptocompare",
			ProviderID: coin.ID,
		})
	}
	return listings, nil
}
