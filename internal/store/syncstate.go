package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RecordSync stores the outcome of one sync pass for a handle. A failed pass
// keeps the last successful timestamp and count.
func (db *DB) RecordSync(ctx context.Context, handle string, synced int, syncErr error) error {
	now := time.Now().UnixMilli()
	var err error
	if syncErr != nil {
		_, err = db.ExecContext(ctx, `
			INSERT INTO sync_state (handle, last_error, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(handle) DO UPDATE SET last_error = excluded.last_error, updated_at = excluded.updated_at`,
			handle, syncErr.Error(), now)
	} else {
		_, err = db.ExecContext(ctx, `
			INSERT INTO sync_state (handle, last_synced_at, last_synced_count, last_error, updated_at) VALUES (?, ?, ?, '', ?)
			ON CONFLICT(handle) DO UPDATE SET
				last_synced_at = excluded.last_synced_at,
				last_synced_count = excluded.last_synced_count,
				last_error = '',
				updated_at = excluded.updated_at`,
			handle, now, synced, now)
	}
	if err != nil {
		return storeErr("record sync", err)
	}
	return nil
}

// GetSyncState returns the bookkeeping row of a handle, or nil if it never synced.
func (db *DB) GetSyncState(ctx context.Context, handle string) (*SyncState, error) {
	var s SyncState
	err := db.QueryRowContext(ctx, `
		SELECT handle, last_synced_at, last_synced_count, last_error
		FROM sync_state WHERE handle = ?`, handle).
		Scan(&s.Handle, &s.LastSyncedAt, &s.LastSyncedCount, &s.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get sync state", err)
	}
	return &s, nil
}
