package postgres

import (
	"context"
	"fmt"

	"airapiserv/internal/store"
	"airapiserv/models"
)

func (s *Store) InsertCandle(ctx context.Context, c *models.Candle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candles (market_id, interval_ms, start_ts, open, high, low, close, volume, trades_count, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (market_id, interval_ms, start_ts) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, volume=EXCLUDED.volume,
			trades_count=EXCLUDED.trades_count, source=EXCLUDED.source`,
		c.MarketID, c.IntervalMs, c.StartTs, c.Open, c.High, c.Low, c.Close, c.Volume, c.TradesCount, c.Source)
	if err != nil {
		return fmt.Errorf("failed to insert candle for %s/%dms at %d: %w", c.MarketID, c.IntervalMs, c.StartTs, err)
	}
	return nil
}

func (s *Store) QueryCandles(ctx context.Context, q store.CandleQuery) ([]*models.Candle, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT market_id, interval_ms, start_ts, open, high, low, close, volume, trades_count, source
		FROM candles
		WHERE market_id=$1 AND interval_ms=$2
			AND ($3 = 0 OR start_ts >= $3)
			AND ($4 = 0 OR start_ts < $4)
		ORDER BY start_ts ASC
		LIMIT $5`,
		q.MarketID, q.IntervalMs, q.From, q.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []*models.Candle
	for rows.Next() {
		c := &models.Candle{IsFinal: true}
		if err := rows.Scan(&c.MarketID, &c.IntervalMs, &c.StartTs, &c.Open, &c.High, &c.Low,
			&c.Close, &c.Volume, &c.TradesCount, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}
