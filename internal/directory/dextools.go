package directory

import (
	"context"
	"net/http"

	"airapiserv/models"
)

const dextoolsTokensURL = "https://public-api.dextools.io/trial/v2/token/ether"

// DexTools lists recently updated tokens on one chain.
type DexTools struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Chain   string
}

func (DexTools) Provider() string { return "dextools" }
func (DexTools) Cost() int        { return 1 }

type dextoolsTokensResp struct {
	Data struct {
		Tokens []struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
			Name    string `json:"name"`
		} `json:"tokens"`
	} `json:"data"`
}

func (d DexTools) Fetch(ctx context.Context) ([]models.DirectoryToken, error) {
	url := d.BaseURL
	if url == "" {
		url = dextoolsTokensURL
	}
	chain := d.Chain
	if chain == "" {
		chain = "ether"
	}
	headers := map[string]string{"X-API-KEY": d.APIKey}

	var resp dextoolsTokensResp
	if err := getJSON(ctx, d.Client, url, headers, &resp); err != nil {
		return nil, err
	}

	listings := make([]models.DirectoryToken, 0, len(resp.Data.Tokens))
	for _, tok := range resp.Data.Tokens {
		listings = append(listings, models.DirectoryToken{
			Symbol:          tok.Symbol,
			Name:            tok.Name,
			Chain:           chain,
			ContractAddress: tok.Address,
			Provider:        "dextools",
			ProviderID:      chain + ":" + tok.Address,
		})
	}
	return listings, nil
}
