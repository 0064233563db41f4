// Package connector defines the venue feed interface. Each subpackage
// streams one venue into the shared event channel; the fallback subpackage
// polls REST APIs for markets without a websocket feed.
package connector

import "context"

// Connector is one market-data feed. Start spawns the feed goroutines and
// returns; Stop blocks until they exit. A connector failing to start or
// crashing mid-stream must never take the gateway down.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}
