package db

import (
	"context"
	"fmt"
	"time"
)

// SaveSyncTask persists a pending mutation. Saving a task with an existing
// ID replaces its kind and payload.
func (db *DB) SaveSyncTask(ctx context.Context, task SyncTask) error {
	if task.ID == "" {
		return fmt.Errorf("sync task has no ID")
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	_, err := db.exec(ctx, `
		INSERT INTO sync_tasks (id, kind, payload, attempts, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET kind = excluded.kind, payload = excluded.payload
	`, task.ID, task.Kind, string(task.Payload), task.Attempts, task.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save sync task: %w", err)
	}
	return nil
}

// ListSyncTasks returns pending tasks, oldest first.
func (db *DB) ListSyncTasks(ctx context.Context) ([]SyncTask, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, kind, payload, attempts, created_at
		FROM sync_tasks
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync tasks: %w", err)
	}
	defer rows.Close()

	var out []SyncTask
	for rows.Next() {
		var (
			task      SyncTask
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&task.ID, &task.Kind, &payload, &task.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		task.Payload = []byte(payload)
		task.CreatedAt = time.Unix(0, createdAt)
		out = append(out, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sync tasks: %w", err)
	}
	return out, nil
}

func (db *DB) IncrementSyncTaskAttempts(ctx context.Context, id string) error {
	res, err := db.exec(ctx, "UPDATE sync_tasks SET attempts = attempts + 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to update sync task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to determine rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sync task %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSyncTask removes a task. Deleting a missing task is not an error.
func (db *DB) DeleteSyncTask(ctx context.Context, id string) error {
	if _, err := db.exec(ctx, "DELETE FROM sync_tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete sync task: %w", err)
	}
	return nil
}
