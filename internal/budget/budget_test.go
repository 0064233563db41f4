package budget

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airapiserv/internal/store/memory"
)

func TestLimits(t *testing.T) {
	s := NewService(memory.NewHotCache(), map[string]int{"codex": 100})
	assert.Equal(t, 20000, s.Limit("coingecko"))
	assert.Equal(t, 5000, s.Limit("cryptocompare"))
	assert.Equal(t, 100, s.Limit("Codex"))
}

func TestConsumeAndCanSpend(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.NewHotCache(), map[string]int{"dextools": 10})

	require.True(t, s.CanSpend(ctx, "dextools", 10), "fresh budget should allow spending up to the limit")
	require.NoError(t, s.Consume(ctx, "dextools", 8))
	assert.True(t, s.CanSpend(ctx, "dextools", 2), "2 requests should still fit")
	assert.False(t, s.CanSpend(ctx, "dextools", 3), "3 requests should exceed the limit")

	used, err := s.Usage(ctx, "dextools")
	require.NoError(t, err)
	assert.EqualValues(t, 8, used)
}

func TestBudgetResetsByDay(t *testing.T) {
	ctx := context.Background()
	s := NewService(memory.NewHotCache(), map[string]int{"codex": 5})

	day := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day }
	require.NoError(t, s.Consume(ctx, "codex", 5))
	require.False(t, s.CanSpend(ctx, "codex", 1), "budget exhausted for the day")

	s.now = func() time.Time { return day.Add(24 * time.Hour) }
	assert.True(t, s.CanSpend(ctx, "codex", 5), "new day should reset the counter")
}
