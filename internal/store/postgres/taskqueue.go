package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"airapiserv/models"
)

func (s *Store) Enqueue(ctx context.Context, t *models.Task) error {
	if t.TaskID == "" {
		t.TaskID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	payload, err := json.Marshal(t.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (task_id, type, priority, payload, run_after, status, attempts, last_error)
		VALUES ($1,$2,$3,$4,$5,$6,0,'')`,
		t.TaskID, t.Type, t.Priority, payload, t.RunAfter, string(t.Status))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", t.Type, err)
	}
	return nil
}

// FetchNext claims exactly one due pending task. The claim is a single UPDATE
// over a locked subselect, so concurrent runners skip each other instead of
// blocking or double-claiming.
func (s *Store) FetchNext(ctx context.Context, now time.Time) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET status='running', attempts=attempts+1, updated_at=now()
		WHERE task_id = (
			SELECT task_id FROM tasks
			WHERE status='pending' AND (run_after IS NULL OR run_after <= $1)
			ORDER BY priority DESC, COALESCE(run_after, now())
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING task_id, type, priority, payload, run_after, status, attempts, last_error, created_at, updated_at`,
		now)

	t := &models.Task{}
	var payload []byte
	var runAfter sql.NullTime
	err := row.Scan(&t.TaskID, &t.Type, &t.Priority, &payload, &runAfter,
		&t.Status, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next task: %w", err)
	}
	if runAfter.Valid {
		ts := runAfter.Time.UTC()
		t.RunAfter = &ts
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload of task %s: %w", t.TaskID, err)
		}
	}
	return t, nil
}

func (s *Store) MarkDone(ctx context.Context, taskID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status='done', updated_at=now() WHERE task_id=$1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task %s done: %w", taskID, err)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, taskID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status='failed', last_error=$2, updated_at=now() WHERE task_id=$1`,
		taskID, reason)
	if err != nil {
		return fmt.Errorf("failed to mark task %s failed: %w", taskID, err)
	}
	return nil
}

func (s *Store) HasHighPriorityPending(ctx context.Context, minPriority int, now time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE status='pending' AND priority >= $1
				AND (run_after IS NULL OR run_after <= $2)
		)`, minPriority, now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending tasks: %w", err)
	}
	return exists, nil
}
