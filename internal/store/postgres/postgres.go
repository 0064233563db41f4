// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"airapiserv/logger"
)

// Store implements TimeSeriesStore, TokenRepo, CatalogRepo, MarketRepo,
// TaskQueue and RequestMetrics on one connection pool.
type Store struct {
	db  *sql.DB
	log *logger.Log
}

func Open(dsn string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Store{db: db, log: logger.GetLogger()}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

var schema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		market_id TEXT NOT NULL,
		interval_ms BIGINT NOT NULL,
		start_ts BIGINT NOT NULL,
		open DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		low DOUBLE PRECISION NOT NULL,
		close DOUBLE PRECISION NOT NULL,
		volume DOUBLE PRECISION NOT NULL,
		trades_count BIGINT NOT NULL DEFAULT 0,
		source TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (market_id, interval_ms, start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		token_id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		chain TEXT NOT NULL DEFAULT '',
		contract_address TEXT NOT NULL DEFAULT '',
		coingecko_id TEXT NOT NULL DEFAULT '',
		coinmarketcap_id TEXT NOT NULL DEFAULT '',
		cryptocompare_id TEXT NOT NULL DEFAULT '',
		codex_id TEXT NOT NULL DEFAULT '',
		dextools_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		priority_source TEXT NOT NULL DEFAULT '',
		discovery_confidence INT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS token_venues (
		token_id TEXT NOT NULL,
		venue TEXT NOT NULL,
		market_type TEXT NOT NULL,
		venue_symbol TEXT NOT NULL,
		base_symbol TEXT NOT NULL DEFAULT '',
		quote_symbol TEXT NOT NULL DEFAULT '',
		ws_supported BOOLEAN NOT NULL DEFAULT FALSE,
		ohlcv_supported BOOLEAN NOT NULL DEFAULT FALSE,
		last_verified_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (token_id, venue, market_type, venue_symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS token_catalog (
		token_key TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		chain TEXT NOT NULL DEFAULT '',
		contract_address TEXT NOT NULL DEFAULT '',
		sources TEXT[] NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS venue_markets (
		venue TEXT NOT NULL,
		market_type TEXT NOT NULL,
		venue_symbol TEXT NOT NULL,
		base_symbol TEXT NOT NULL,
		quote_symbol TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (venue, market_type, venue_symbol)
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		task_id UUID PRIMARY KEY,
		type TEXT NOT NULL,
		priority INT NOT NULL DEFAULT 10,
		payload JSONB NOT NULL DEFAULT '{}',
		run_after TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_pending_idx ON tasks (priority DESC, run_after) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS request_metrics (
		minute TIMESTAMPTZ PRIMARY KEY,
		count BIGINT NOT NULL DEFAULT 0
	)`,
}

// Migrate creates missing tables and indexes. Statements are idempotent, so
// running it on every startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	s.log.WithComponent("postgres").Info("schema migrated")
	return nil
}
