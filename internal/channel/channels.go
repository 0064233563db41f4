package channel

import (
	"context"
	"sync"

	"airapiserv/logger"
	"airapiserv/models"
)

type Stats struct {
	Sent    int64
	Dropped int64
}

// Events carries canonical market events from all connectors to the single
// orchestrator consumer. Many producers, one consumer; per-market ordering
// is preserved by the single channel.
type Events struct {
	C chan models.MarketEvent

	stats      Stats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewEvents(bufferSize int) *Events {
	log := logger.GetLogger()
	e := &Events{
		C:   make(chan models.MarketEvent, bufferSize),
		log: log,
	}

	log.WithComponent("event_channel").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("event channel initialized")

	return e
}

func (e *Events) Close() {
	close(e.C)
	e.log.WithComponent("event_channel").Info("event channel closed")
}

// Send enqueues an event without blocking the producing connector. A full
// channel drops the event and counts it; slow consumers must not stall a
// venue feed read loop.
func (e *Events) Send(ctx context.Context, ev models.MarketEvent) bool {
	select {
	case e.C <- ev:
		e.incrementSent()
		return true
	case <-ctx.Done():
		return false
	default:
		e.incrementDropped()
		return false
	}
}

func (e *Events) incrementSent() {
	e.statsMutex.Lock()
	e.stats.Sent++
	e.statsMutex.Unlock()
}

func (e *Events) incrementDropped() {
	e.statsMutex.Lock()
	e.stats.Dropped++
	e.statsMutex.Unlock()
}

func (e *Events) GetStats() Stats {
	e.statsMutex.RLock()
	defer e.statsMutex.RUnlock()
	return e.stats
}
