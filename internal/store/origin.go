package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertOrigin registers the originating record of a handle. An existing
// external thread id is never overwritten with an empty one.
func (db *DB) UpsertOrigin(ctx context.Context, o *Origin) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO origins (handle, external_thread_id, subject, sender, recipient, snippet, received_at, created_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			external_thread_id = COALESCE(origins.external_thread_id, excluded.external_thread_id),
			subject = CASE WHEN excluded.subject != '' THEN excluded.subject ELSE origins.subject END,
			sender = CASE WHEN excluded.sender != '' THEN excluded.sender ELSE origins.sender END,
			recipient = CASE WHEN excluded.recipient != '' THEN excluded.recipient ELSE origins.recipient END,
			snippet = CASE WHEN excluded.snippet != '' THEN excluded.snippet ELSE origins.snippet END,
			received_at = CASE WHEN excluded.received_at > 0 THEN excluded.received_at ELSE origins.received_at END`,
		o.Handle, o.ExternalThreadID, o.Subject, o.Sender, o.Recipient, o.Snippet, o.ReceivedAt, now)
	if err != nil {
		return storeErr("upsert origin", err)
	}
	return nil
}

// GetOrigin returns the origin of a handle, or nil if none was registered.
func (db *DB) GetOrigin(ctx context.Context, handle string) (*Origin, error) {
	var o Origin
	var threadID sql.NullString
	err := db.QueryRowContext(ctx, `
		SELECT handle, external_thread_id, subject, sender, recipient, snippet, received_at
		FROM origins WHERE handle = ?`, handle).
		Scan(&o.Handle, &threadID, &o.Subject, &o.Sender, &o.Recipient, &o.Snippet, &o.ReceivedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get origin", err)
	}
	o.ExternalThreadID = threadID.String
	return &o, nil
}

// CacheOriginThreadID records a resolved external thread id on the origin of
// a handle. It only fills an empty slot: a mapping, once established, is
// stable. Reports whether anything was written; handles without an origin
// are left alone.
func (db *DB) CacheOriginThreadID(ctx context.Context, handle, threadID string) (bool, error) {
	if threadID == "" {
		return false, nil
	}
	res, err := db.ExecContext(ctx, `
		UPDATE origins SET external_thread_id = ?
		WHERE handle = ? AND (external_thread_id IS NULL OR external_thread_id = '')`,
		threadID, handle)
	if err != nil {
		return false, storeErr("cache origin thread id", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("cache origin thread id", err)
	}
	return n > 0, nil
}
