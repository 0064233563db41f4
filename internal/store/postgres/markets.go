package postgres

import (
	"context"
	"fmt"
	"strings"

	"airapiserv/models"
)

func (s *Store) UpsertMarket(ctx context.Context, m *models.VenueMarket) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO venue_markets (venue, market_type, venue_symbol, base_symbol, quote_symbol, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (venue, market_type, venue_symbol) DO UPDATE SET
			base_symbol=EXCLUDED.base_symbol, quote_symbol=EXCLUDED.quote_symbol,
			status=EXCLUDED.status`,
		m.Venue, m.MarketType, m.VenueSymbol, m.BaseSymbol, m.QuoteSymbol, m.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert market %s/%s: %w", m.Venue, m.VenueSymbol, err)
	}
	return nil
}

func (s *Store) ListMarkets(ctx context.Context, venue string) ([]*models.VenueMarket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT venue, market_type, venue_symbol, base_symbol, quote_symbol, status
		FROM venue_markets
		WHERE $1 = '' OR venue = $1
		ORDER BY venue, market_type, venue_symbol`, venue)
	if err != nil {
		return nil, fmt.Errorf("failed to list markets for %q: %w", venue, err)
	}
	return scanMarkets(rows)
}

func (s *Store) ListMarketsBySymbol(ctx context.Context, baseSymbol string) ([]*models.VenueMarket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT venue, market_type, venue_symbol, base_symbol, quote_symbol, status
		FROM venue_markets
		WHERE upper(base_symbol) = $1
		ORDER BY venue, market_type, venue_symbol`, strings.ToUpper(baseSymbol))
	if err != nil {
		return nil, fmt.Errorf("failed to list markets for symbol %q: %w", baseSymbol, err)
	}
	return scanMarkets(rows)
}

func scanMarkets(rows interface {
	Next() bool
	Scan(...any) error
	Close() error
	Err() error
}) ([]*models.VenueMarket, error) {
	defer rows.Close()
	var out []*models.VenueMarket
	for rows.Next() {
		m := &models.VenueMarket{}
		if err := rows.Scan(&m.Venue, &m.MarketType, &m.VenueSymbol,
			&m.BaseSymbol, &m.QuoteSymbol, &m.Status); err != nil {
			return nil, fmt.Errorf("failed to scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
