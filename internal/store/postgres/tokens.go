package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"airapiserv/models"
)

func (s *Store) UpsertToken(ctx context.Context, t *models.Token) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (token_id, symbol, name, chain, contract_address,
			coingecko_id, coinmarketcap_id, cryptocompare_id, codex_id, dextools_id,
			status, priority_source, discovery_confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (token_id) DO UPDATE SET
			symbol=EXCLUDED.symbol, name=EXCLUDED.name, chain=EXCLUDED.chain,
			contract_address=EXCLUDED.contract_address,
			coingecko_id=EXCLUDED.coingecko_id, coinmarketcap_id=EXCLUDED.coinmarketcap_id,
			cryptocompare_id=EXCLUDED.cryptocompare_id, codex_id=EXCLUDED.codex_id,
			dextools_id=EXCLUDED.dextools_id, status=EXCLUDED.status,
			priority_source=EXCLUDED.priority_source,
			discovery_confidence=EXCLUDED.discovery_confidence`,
		t.TokenID, t.Symbol, t.Name, t.Chain, t.ContractAddress,
		t.CoingeckoID, t.CoinmarketcapID, t.CryptocompareID, t.CodexID, t.DextoolsID,
		t.Status, t.PrioritySource, t.DiscoveryConfidence)
	if err != nil {
		return fmt.Errorf("failed to upsert token %s: %w", t.TokenID, err)
	}
	return nil
}

const tokenColumns = `token_id, symbol, name, chain, contract_address,
	coingecko_id, coinmarketcap_id, cryptocompare_id, codex_id, dextools_id,
	status, priority_source, discovery_confidence`

func scanToken(row interface{ Scan(...any) error }) (*models.Token, error) {
	t := &models.Token{}
	err := row.Scan(&t.TokenID, &t.Symbol, &t.Name, &t.Chain, &t.ContractAddress,
		&t.CoingeckoID, &t.CoinmarketcapID, &t.CryptocompareID, &t.CodexID, &t.DextoolsID,
		&t.Status, &t.PrioritySource, &t.DiscoveryConfidence)
	return t, err
}

func (s *Store) GetToken(ctx context.Context, tokenID string) (*models.Token, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE token_id=$1`, tokenID)
	t, err := scanToken(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token %s: %w", tokenID, err)
	}
	return t, nil
}

func (s *Store) ListActiveTokens(ctx context.Context) ([]*models.Token, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE status=$1 ORDER BY token_id`,
		models.TokenStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Store) SearchTokens(ctx context.Context, query string, limit int) ([]*models.Token, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens
		 WHERE symbol ILIKE $1 OR name ILIKE $1
		 ORDER BY token_id LIMIT $2`,
		pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (s *Store) UpsertTokenVenue(ctx context.Context, tv *models.TokenVenue) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_venues (token_id, venue, market_type, venue_symbol,
			base_symbol, quote_symbol, ws_supported, ohlcv_supported, last_verified_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (token_id, venue, market_type, venue_symbol) DO UPDATE SET
			base_symbol=EXCLUDED.base_symbol, quote_symbol=EXCLUDED.quote_symbol,
			ws_supported=EXCLUDED.ws_supported, ohlcv_supported=EXCLUDED.ohlcv_supported,
			last_verified_at=EXCLUDED.last_verified_at`,
		tv.TokenID, tv.Venue, tv.MarketType, tv.VenueSymbol,
		tv.BaseSymbol, tv.QuoteSymbol, tv.WSSupported, tv.OHLCVSupported, tv.LastVerifiedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert token venue %s/%s: %w", tv.TokenID, tv.Venue, err)
	}
	return nil
}

func (s *Store) ListTokenVenues(ctx context.Context, tokenID string) ([]*models.TokenVenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, venue, market_type, venue_symbol, base_symbol, quote_symbol,
			ws_supported, ohlcv_supported, last_verified_at
		FROM token_venues WHERE token_id=$1
		ORDER BY venue, market_type, venue_symbol`, tokenID)
	if err != nil {
		return nil, fmt.Errorf("failed to list token venues for %s: %w", tokenID, err)
	}
	defer rows.Close()

	var edges []*models.TokenVenue
	for rows.Next() {
		tv := &models.TokenVenue{}
		if err := rows.Scan(&tv.TokenID, &tv.Venue, &tv.MarketType, &tv.VenueSymbol,
			&tv.BaseSymbol, &tv.QuoteSymbol, &tv.WSSupported, &tv.OHLCVSupported, &tv.LastVerifiedAt); err != nil {
			return nil, fmt.Errorf("failed to scan token venue: %w", err)
		}
		tv.LastVerifiedAt = tv.LastVerifiedAt.UTC()
		edges = append(edges, tv)
	}
	return edges, rows.Err()
}

func (s *Store) UpsertCatalogRow(ctx context.Context, row *models.CatalogRow) error {
	meta, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog metadata for %s: %w", row.TokenKey, err)
	}
	// First write wins on scalars and metadata keys; later listings only fill
	// gaps and extend the source list.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO token_catalog (token_key, symbol, name, chain, contract_address, sources, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (token_key) DO UPDATE SET
			symbol=COALESCE(NULLIF(token_catalog.symbol,''), EXCLUDED.symbol),
			name=COALESCE(NULLIF(token_catalog.name,''), EXCLUDED.name),
			chain=COALESCE(NULLIF(token_catalog.chain,''), EXCLUDED.chain),
			contract_address=COALESCE(NULLIF(token_catalog.contract_address,''), EXCLUDED.contract_address),
			sources=(SELECT ARRAY(SELECT DISTINCT unnest(token_catalog.sources || EXCLUDED.sources))),
			metadata=EXCLUDED.metadata || token_catalog.metadata`,
		row.TokenKey, row.Symbol, row.Name, row.Chain, row.ContractAddress,
		pq.Array(row.Sources), meta)
	if err != nil {
		return fmt.Errorf("failed to upsert catalog row %s: %w", row.TokenKey, err)
	}
	return nil
}

func (s *Store) ListCatalogRows(ctx context.Context) ([]*models.CatalogRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_key, symbol, name, chain, contract_address, sources, metadata
		FROM token_catalog ORDER BY token_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog rows: %w", err)
	}
	defer rows.Close()

	var out []*models.CatalogRow
	for rows.Next() {
		row := &models.CatalogRow{}
		var meta []byte
		if err := rows.Scan(&row.TokenKey, &row.Symbol, &row.Name, &row.Chain,
			&row.ContractAddress, pq.Array(&row.Sources), &meta); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal catalog metadata for %s: %w", row.TokenKey, err)
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
