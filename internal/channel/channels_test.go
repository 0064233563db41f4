package channel

import (
	"context"
	"testing"

	"airapiserv/models"
)

func TestSendAndDrop(t *testing.T) {
	e := NewEvents(1)
	ctx := context.Background()

	if !e.Send(ctx, models.Trade{MarketID: "binance:BTCUSDT:spot", Price: 1}) {
		t.Fatal("first send should succeed")
	}
	if e.Send(ctx, models.Trade{MarketID: "binance:BTCUSDT:spot", Price: 2}) {
		t.Fatal("second send should drop on full buffer")
	}

	stats := e.GetStats()
	if stats.Sent != 1 || stats.Dropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSendCancelledContext(t *testing.T) {
	e := NewEvents(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if e.Send(ctx, models.Ticker{MarketID: "okx:BTCUSDT:spot"}) {
		t.Fatal("send should fail with cancelled context and no receiver")
	}
}
