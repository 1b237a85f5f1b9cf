package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const messageColumns = `id, handle, external_message_id, external_thread_id, subject, body, sender, recipient, sent_at, created_at`

// InsertMessages writes msgs in chunks of MaxBatchSize, one transaction per
// chunk. Rows are create-only: a message whose (handle, external id) already
// exists is skipped. Inserted rows get their ID and CreatedAt filled in.
// The returned count covers only rows this call actually created; on error
// it covers the chunks committed before the failure.
func (db *DB) InsertMessages(ctx context.Context, msgs []*Message) (int, error) {
	inserted := 0
	for _, chunk := range chunks(msgs, MaxBatchSize) {
		n, err := db.insertChunk(ctx, chunk)
		if err != nil {
			return inserted, err
		}
		inserted += n
	}
	return inserted, nil
}

func (db *DB) insertChunk(ctx context.Context, chunk []*Message) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (handle, external_message_id, external_thread_id, subject, body, sender, recipient, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(handle, external_message_id) DO NOTHING`)
	if err != nil {
		return 0, storeErr("prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	n := 0
	for _, m := range chunk {
		res, err := stmt.ExecContext(ctx, m.Handle, m.ExternalMessageID, m.ExternalThreadID,
			m.Subject, m.Body, m.Sender, m.Recipient, m.SentAt, now)
		if err != nil {
			return 0, storeErr("insert message", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, storeErr("insert message", err)
		}
		if affected == 0 {
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, storeErr("insert message", err)
		}
		m.ID = id
		m.CreatedAt = now
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit insert", err)
	}
	return n, nil
}

// ListMessages returns every mirrored message of a handle, oldest first.
func (db *DB) ListMessages(ctx context.Context, handle string) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE handle = ?
		ORDER BY sent_at ASC, id ASC`, handle)
	if err != nil {
		return nil, storeErr("list messages", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, storeErr("list messages", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list messages", err)
	}
	return msgs, nil
}

// ExternalMessageIDs returns the set of provider message ids mirrored for a handle.
func (db *DB) ExternalMessageIDs(ctx context.Context, handle string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT external_message_id FROM messages WHERE handle = ?`, handle)
	if err != nil {
		return nil, storeErr("external message ids", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("external message ids", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("external message ids", err)
	}
	return ids, nil
}

// ExistingExternalIDs reports which of ids are already mirrored for a handle.
// It reads the store as it is now, not as it was when ids were computed.
func (db *DB) ExistingExternalIDs(ctx context.Context, handle string, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{})
	// sqlite caps bound parameters; stay well below it.
	for _, chunk := range chunks(ids, MaxBatchSize) {
		args := make([]any, 0, len(chunk)+1)
		args = append(args, handle)
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := db.QueryContext(ctx, `
			SELECT external_message_id FROM messages
			WHERE handle = ? AND external_message_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, storeErr("existing external ids", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return nil, storeErr("existing external ids", err)
			}
			found[id] = struct{}{}
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, storeErr("existing external ids", err)
		}
	}
	return found, nil
}

// FirstThreadID returns the external thread id carried by any mirrored
// message of the handle, or "" when none carries one.
func (db *DB) FirstThreadID(ctx context.Context, handle string) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `
		SELECT external_thread_id FROM messages
		WHERE handle = ? AND external_thread_id != ''
		ORDER BY id ASC LIMIT 1`, handle).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storeErr("first thread id", err)
	}
	return id, nil
}

// CountMessages returns the number of mirrored messages for a handle.
func (db *DB) CountMessages(ctx context.Context, handle string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE handle = ?`, handle).Scan(&n); err != nil {
		return 0, storeErr("count messages", err)
	}
	return n, nil
}

// TotalMessages returns the number of mirrored messages across all handles.
func (db *DB) TotalMessages(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, storeErr("total messages", err)
	}
	return n, nil
}

// MessageIDs returns the local ids of every mirrored message of a handle.
func (db *DB) MessageIDs(ctx context.Context, handle string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM messages WHERE handle = ? ORDER BY id`, handle)
	if err != nil {
		return nil, storeErr("message ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("message ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("message ids", err)
	}
	return ids, nil
}

// DeleteMessages removes the given local message ids in chunks of
// MaxBatchSize, one transaction per chunk, and returns how many rows went away.
func (db *DB) DeleteMessages(ctx context.Context, ids []int64) (int, error) {
	deleted := 0
	for _, chunk := range chunks(ids, MaxBatchSize) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return deleted, storeErr("begin delete", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			_ = tx.Rollback()
			return deleted, storeErr("delete messages", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return deleted, storeErr("delete messages", err)
		}
		if err := tx.Commit(); err != nil {
			return deleted, storeErr("commit delete", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// ThreadSummaries returns one row per handle with at least one mirrored
// message, most recently active first. Subject and counterpart come from the
// origin when there is one, else from the latest message.
func (db *DB) ThreadSummaries(ctx context.Context) ([]ThreadSummary, error) {
	rows, err := db.QueryContext(ctx, `
		WITH handles AS (
			SELECT handle, MAX(sent_at) AS last_at, COUNT(*) AS n
			FROM messages GROUP BY handle
		)
		SELECT h.handle,
			COALESCE(
				NULLIF(o.external_thread_id, ''),
				(SELECT external_thread_id FROM messages WHERE handle = h.handle AND external_thread_id != '' ORDER BY id LIMIT 1),
				''),
			COALESCE(
				NULLIF(o.subject, ''),
				(SELECT subject FROM messages WHERE handle = h.handle ORDER BY sent_at DESC, id DESC LIMIT 1),
				''),
			COALESCE(
				NULLIF(o.sender, ''),
				(SELECT sender FROM messages WHERE handle = h.handle ORDER BY sent_at DESC, id DESC LIMIT 1),
				''),
			COALESCE(
				NULLIF(o.recipient, ''),
				(SELECT recipient FROM messages WHERE handle = h.handle ORDER BY sent_at DESC, id DESC LIMIT 1),
				''),
			h.last_at,
			h.n
		FROM handles h
		LEFT JOIN origins o ON o.handle = h.handle
		ORDER BY h.last_at DESC, h.handle ASC`)
	if err != nil {
		return nil, storeErr("thread summaries", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ThreadSummary
	for rows.Next() {
		var s ThreadSummary
		if err := rows.Scan(&s.Handle, &s.ExternalThreadID, &s.Subject, &s.Sender, &s.Recipient,
			&s.LastMessageAt, &s.MessageCount); err != nil {
			return nil, storeErr("thread summaries", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("thread summaries", err)
	}
	return out, nil
}

// Handles returns every handle with at least one mirrored message.
func (db *DB) Handles(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT handle FROM messages ORDER BY handle`)
	if err != nil {
		return nil, storeErr("handles", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, storeErr("handles", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("handles", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (Message, error) {
	var m Message
	err := s.Scan(&m.ID, &m.Handle, &m.ExternalMessageID, &m.ExternalThreadID, &m.Subject, &m.Body,
		&m.Sender, &m.Recipient, &m.SentAt, &m.CreatedAt)
	return m, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
