package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"airapiserv/models"
)

// TaskQueue mirrors the claim semantics of the postgres queue: a fetch
// atomically flips exactly one pending task to running, so concurrent
// runners never pick up the same task twice.
type TaskQueue struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	now   func() time.Time
}

func NewTaskQueue() *TaskQueue {
	return &TaskQueue{
		tasks: make(map[string]*models.Task),
		now:   time.Now,
	}
}

func (q *TaskQueue) Enqueue(ctx context.Context, t *models.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	cp := *t
	if cp.TaskID == "" {
		cp.TaskID = uuid.NewString()
		t.TaskID = cp.TaskID
	}
	if cp.Status == "" {
		cp.Status = models.TaskPending
	}
	now := q.now().UTC()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	q.tasks[cp.TaskID] = &cp
	return nil
}

// FetchNext claims the highest-priority due pending task, ties broken by the
// earliest run-after time with unscheduled tasks last. Returns nil when
// nothing is due.
func (q *TaskQueue) FetchNext(ctx context.Context, now time.Time) (*models.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []*models.Task
	for _, t := range q.tasks {
		if t.Status != models.TaskPending {
			continue
		}
		if t.RunAfter != nil && t.RunAfter.After(now) {
			continue
		}
		due = append(due, t)
	}
	if len(due) == 0 {
		return nil, nil
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return effectiveRunAfter(due[i], now).Before(effectiveRunAfter(due[j], now))
	})

	claimed := due[0]
	claimed.Status = models.TaskRunning
	claimed.Attempts++
	claimed.UpdatedAt = q.now().UTC()
	cp := *claimed
	return &cp, nil
}

func effectiveRunAfter(t *models.Task, now time.Time) time.Time {
	if t.RunAfter != nil {
		return *t.RunAfter
	}
	return now
}

func (q *TaskQueue) MarkDone(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[taskID]; ok {
		t.Status = models.TaskDone
		t.UpdatedAt = q.now().UTC()
	}
	return nil
}

func (q *TaskQueue) MarkFailed(ctx context.Context, taskID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t, ok := q.tasks[taskID]; ok {
		t.Status = models.TaskFailed
		t.LastError = reason
		t.UpdatedAt = q.now().UTC()
	}
	return nil
}

func (q *TaskQueue) HasHighPriorityPending(ctx context.Context, minPriority int, now time.Time) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.tasks {
		if t.Status != models.TaskPending || t.Priority < minPriority {
			continue
		}
		if t.RunAfter != nil && t.RunAfter.After(now) {
			continue
		}
		return true, nil
	}
	return false, nil
}
