package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateTask links a new task to a handle.
func (db *DB) CreateTask(ctx context.Context, handle, title string) (*Task, error) {
	t := &Task{
		ID:        uuid.NewString(),
		Handle:    handle,
		Title:     title,
		CreatedAt: time.Now().UnixMilli(),
	}
	_, err := db.ExecContext(ctx, `INSERT INTO tasks (id, handle, title, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Handle, t.Title, t.CreatedAt)
	if err != nil {
		return nil, storeErr("create task", err)
	}
	return t, nil
}

// HasTaskForThread reports whether any task references the handle.
func (db *DB) HasTaskForThread(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE handle = ?)`, handle).Scan(&exists)
	if err != nil {
		return false, storeErr("has task", err)
	}
	return exists, nil
}

// HandlesWithTasks returns the set of handles that have at least one task.
func (db *DB) HandlesWithTasks(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT handle FROM tasks`)
	if err != nil {
		return nil, storeErr("handles with tasks", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, storeErr("handles with tasks", err)
		}
		out[h] = true
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("handles with tasks", err)
	}
	return out, nil
}
