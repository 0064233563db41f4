package coverage

import (
	"context"
	"fmt"
	"time"

	"airapiserv/internal/store"
	"airapiserv/internal/venue"
	"airapiserv/logger"
	"airapiserv/models"
)

// Engine recomputes venue coverage for active tokens. For each token it
// matches venue markets by base symbol, writes one coverage edge per market
// with capability flags, and assigns the best available data source.
type Engine struct {
	tokens       store.TokenRepo
	markets      store.MarketRepo
	capabilities func(venue string) models.VenueCapabilities
	log          *logger.Entry
}

func NewEngine(tokens store.TokenRepo, markets store.MarketRepo) *Engine {
	return &Engine{
		tokens:       tokens,
		markets:      markets,
		capabilities: venue.Capabilities,
		log:          logger.GetLogger().WithComponent("coverage"),
	}
}

// Run resolves coverage for every active token. A failure on one token does
// not abort the rest; the first error is returned after the full pass.
func (e *Engine) Run(ctx context.Context) error {
	tokens, err := e.tokens.ListActiveTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tokens for coverage: %w", err)
	}

	var firstErr error
	resolved := 0
	for _, t := range tokens {
		if err := e.resolveToken(ctx, t); err != nil {
			e.log.WithError(err).WithFields(logger.Fields{"token_id": t.TokenID}).Warn("coverage resolution failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resolved++
	}

	e.log.WithFields(logger.Fields{
		"tokens":   len(tokens),
		"resolved": resolved,
	}).Info("coverage pass complete")
	return firstErr
}

func (e *Engine) resolveToken(ctx context.Context, t *models.Token) error {
	markets, err := e.markets.ListMarketsBySymbol(ctx, t.Symbol)
	if err != nil {
		return fmt.Errorf("failed to list markets for %s: %w", t.Symbol, err)
	}

	now := time.Now().UTC()
	var (
		ranked     []*models.VenueMarket
		candidates []string
	)
	for _, m := range markets {
		// Coverage tracks spot markets only; derivative listings are synced
		// but never drive a token's data source.
		if m.MarketType != models.MarketTypeSpot {
			continue
		}
		caps := e.capabilities(m.Venue)
		edge := &models.TokenVenue{
			TokenID:        t.TokenID,
			Venue:          m.Venue,
			MarketType:     m.MarketType,
			BaseSymbol:     m.BaseSymbol,
			QuoteSymbol:    m.QuoteSymbol,
			VenueSymbol:    m.VenueSymbol,
			WSSupported:    caps.WSTrades || caps.WSKlines,
			OHLCVSupported: caps.WSKlines || caps.RESTOhlcv,
			LastVerifiedAt: now,
		}
		if err := e.tokens.UpsertTokenVenue(ctx, edge); err != nil {
			return err
		}
		switch {
		case edge.WSSupported:
			ranked = append(ranked, m)
			candidates = append(candidates, wsSource(m.Venue))
		case edge.OHLCVSupported:
			// REST polling only counts when the venue can actually serve
			// candles; a capability-less venue contributes no candidate.
			ranked = append(ranked, m)
			candidates = append(candidates, sourceRESTExchange)
		}
	}

	t.PrioritySource = e.prioritySource(ranked, candidates)
	if err := e.tokens.UpsertToken(ctx, t); err != nil {
		return fmt.Errorf("failed to persist priority source for %s: %w", t.TokenID, err)
	}
	return nil
}

// prioritySource picks the data source of the best market, preferring venue
// rank first and quote quality second. Zero markets means the token is only
// reachable through external APIs.
func (e *Engine) prioritySource(markets []*models.VenueMarket, candidates []string) string {
	if len(markets) == 0 {
		return SourceAPIFallback
	}

	bestIdx := -1
	bestSourceRank := len(sourceRanking) + 1
	bestQuoteRank := 0
	for i, m := range markets {
		r, known := sourceRank[candidates[i]]
		if !known {
			r = len(sourceRanking)
		}
		q := quoteRank(m.QuoteSymbol)
		if bestIdx == -1 || r < bestSourceRank || (r == bestSourceRank && q < bestQuoteRank) {
			bestIdx = i
			bestSourceRank = r
			bestQuoteRank = q
		}
	}
	return candidates[bestIdx]
}
