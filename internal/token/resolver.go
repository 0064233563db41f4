// Package token merges raw directory listings into canonical token
// identities. Listings from different providers that share a strong key
// (contract address, provider id, or symbol+name) collapse into one token.
package token

import (
	"strings"

	"airapiserv/logger"
	"airapiserv/models"
)

// Strong-key prefixes. Two listings sharing any one of these keys are the
// same token.
const (
	keyContract = "ca:"
	keySymName  = "symname:"
)

var providerKeyPrefix = map[string]string{
	"coingecko":     "cg:",
	"coinmarketcap": "cmc:",
	"cryptocompare": "cc:",
	"codex":         "cx:",
	"dextools":      "dt:",
}

// Resolver merges listings into canonical tokens.
type Resolver struct {
	log *logger.Log
}

func NewResolver() *Resolver {
	return &Resolver{log: logger.GetLogger()}
}

// Keys derives the strong identity keys of one listing. Fields are trimmed
// before use; directory payloads carry stray whitespace surprisingly often.
func Keys(l models.DirectoryToken) []string {
	l = normalize(l)
	var keys []string
	if l.ContractAddress != "" && l.Chain != "" {
		keys = append(keys, keyContract+strings.ToLower(l.Chain)+":"+strings.ToLower(l.ContractAddress))
	}
	if prefix, ok := providerKeyPrefix[strings.ToLower(l.Provider)]; ok && l.ProviderID != "" {
		keys = append(keys, prefix+l.ProviderID)
	}
	if l.Symbol != "" && l.Name != "" {
		keys = append(keys, keySymName+strings.ToUpper(l.Symbol)+":"+normalizeName(l.Name))
	}
	return keys
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func normalize(l models.DirectoryToken) models.DirectoryToken {
	l.Symbol = strings.TrimSpace(l.Symbol)
	l.Name = strings.TrimSpace(l.Name)
	l.Chain = strings.TrimSpace(l.Chain)
	l.ContractAddress = strings.TrimSpace(l.ContractAddress)
	l.ProviderID = strings.TrimSpace(l.ProviderID)
	return l
}

// Resolved is one canonical token together with the listings that produced
// it.
type Resolved struct {
	Token    *models.Token
	Listings []models.DirectoryToken
}

// Resolve buckets listings by shared strong keys and merges each bucket into
// one canonical token. Merging is order-insensitive for identity: scalar
// fields take the first non-empty value in provider-ranked order, sources
// are unioned.
func (r *Resolver) Resolve(listings []models.DirectoryToken) []Resolved {
	kept := make([]models.DirectoryToken, 0, len(listings))
	dropped := 0
	for _, l := range listings {
		l = normalize(l)
		// A listing with neither symbol nor contract address cannot yield a
		// usable identity.
		if l.Symbol == "" && l.ContractAddress == "" {
			dropped++
			continue
		}
		kept = append(kept, l)
	}

	buckets := bucketize(kept)

	out := make([]Resolved, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, Resolved{Token: mergeBucket(bucket), Listings: bucket})
	}
	r.log.WithComponent("token_resolver").WithFields(logger.Fields{
		"listings": len(listings),
		"dropped":  dropped,
		"tokens":   len(out),
	}).Info("resolved token identities")
	return out
}

// bucketize groups listings transitively: if A shares a key with B and B with
// C, all three land in one bucket even when A and C share nothing directly.
func bucketize(listings []models.DirectoryToken) [][]models.DirectoryToken {
	parent := make([]int, len(listings))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	keyOwner := make(map[string]int)
	for i, l := range listings {
		for _, key := range Keys(l) {
			if owner, seen := keyOwner[key]; seen {
				union(owner, i)
			} else {
				keyOwner[key] = i
			}
		}
	}

	grouped := make(map[int][]models.DirectoryToken)
	var order []int
	for i, l := range listings {
		root := find(i)
		if _, seen := grouped[root]; !seen {
			order = append(order, root)
		}
		grouped[root] = append(grouped[root], l)
	}

	buckets := make([][]models.DirectoryToken, 0, len(order))
	for _, root := range order {
		buckets = append(buckets, grouped[root])
	}
	return buckets
}

// providerRank orders providers for first-non-empty scalar merges so the
// result does not depend on listing arrival order.
var providerRank = map[string]int{
	"coingecko":     0,
	"coinmarketcap": 1,
	"cryptocompare": 2,
	"dextools":      3,
	"codex":         4,
}

func mergeBucket(bucket []models.DirectoryToken) *models.Token {
	ordered := make([]models.DirectoryToken, len(bucket))
	copy(ordered, bucket)
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rankOf(ordered[j]) < rankOf(ordered[j-1]); j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	t := &models.Token{Status: models.TokenStatusActive}
	for _, l := range ordered {
		if t.Symbol == "" {
			t.Symbol = strings.ToUpper(l.Symbol)
		}
		if t.Name == "" {
			t.Name = l.Name
		}
		if t.Chain == "" {
			t.Chain = strings.ToLower(l.Chain)
		}
		if t.ContractAddress == "" {
			t.ContractAddress = strings.ToLower(l.ContractAddress)
		}
		switch strings.ToLower(l.Provider) {
		case "coingecko":
			if t.CoingeckoID == "" {
				t.CoingeckoID = l.ProviderID
			}
		case "coinmarketcap":
			if t.CoinmarketcapID == "" {
				t.CoinmarketcapID = l.ProviderID
			}
		case "cryptocompare":
			if t.CryptocompareID == "" {
				t.CryptocompareID = l.ProviderID
			}
		case "codex":
			if t.CodexID == "" {
				t.CodexID = l.ProviderID
			}
		case "dextools":
			if t.DextoolsID == "" {
				t.DextoolsID = l.ProviderID
			}
		}
	}

	t.TokenID = TokenID(t)
	t.DiscoveryConfidence = confidence(t)
	return t
}

func rankOf(l models.DirectoryToken) int {
	if r, ok := providerRank[strings.ToLower(l.Provider)]; ok {
		return r
	}
	return len(providerRank)
}

// TokenID is "chain:address" when a contract address is known, otherwise
// "symbol:SYMBOL".
func TokenID(t *models.Token) string {
	if t.ContractAddress != "" && t.Chain != "" {
		return t.Chain + ":" + t.ContractAddress
	}
	return "symbol:" + t.Symbol
}

func confidence(t *models.Token) int {
	switch {
	case t.ContractAddress != "":
		return 90
	case t.CoingeckoID != "" || t.CoinmarketcapID != "":
		return 75
	case t.Symbol != "":
		return 50
	default:
		return 10
	}
}

// CatalogRow converts listings of one merged token into the raw catalog row
// persisted before resolution.
func CatalogRow(t *models.Token, bucket []models.DirectoryToken) *models.CatalogRow {
	row := &models.CatalogRow{
		TokenKey:        t.TokenID,
		Symbol:          t.Symbol,
		Name:            t.Name,
		Chain:           t.Chain,
		ContractAddress: t.ContractAddress,
	}
	seen := make(map[string]bool)
	for _, l := range bucket {
		p := strings.ToLower(l.Provider)
		if p != "" && !seen[p] {
			seen[p] = true
			row.Sources = append(row.Sources, p)
		}
	}
	return row
}
