package postgres

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) Increment(ctx context.Context, bucket time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_metrics (minute, count) VALUES (date_trunc('minute', $1::timestamptz), 1)
		ON CONFLICT (minute) DO UPDATE SET count = request_metrics.count + 1`,
		bucket)
	if err != nil {
		return fmt.Errorf("failed to increment request metrics: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(count), 0) FROM request_metrics
		WHERE minute >= date_trunc('minute', $1::timestamptz)`,
		since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum recent request metrics: %w", err)
	}
	return total, nil
}
