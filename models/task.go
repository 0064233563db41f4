package models

import "time"

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// Known task types. Periodic types re-enqueue themselves after a successful
// run; the queue itself never retries.
const (
	TaskDiscoverTokens   = "DISCOVER_TOKENS_API"
	TaskSyncVenueMarkets = "SYNC_VENUE_MARKETS"
	TaskResolveCoverage  = "RESOLVE_COVERAGE"
	TaskIngestOHLCV      = "INGEST_OHLCV_BACKFILL"
	TaskReverify         = "REVERIFY_API_ONLY"
)

// Task is one durable work item. RunAfter nil means immediately eligible.
type Task struct {
	TaskID    string
	Type      string
	Priority  int
	Payload   map[string]string
	RunAfter  *time.Time
	Status    TaskStatus
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
