package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// ErrInvalidQuery marks a full-text query SQLite could not parse.
var ErrInvalidQuery = errors.New("invalid search query")

// searchErr separates a malformed MATCH expression, which is the caller's
// input, from a failure of the store itself.
func searchErr(query string, err error) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrError && strings.Contains(serr.Error(), "malformed MATCH") {
		return fmt.Errorf("%w %q: %s", ErrInvalidQuery, query, serr.Error())
	}
	return storeErr("search messages", err)
}

// SearchMessages performs a full-text search on message subjects and bodies,
// optionally scoped to one handle. Newest matches come first.
func (db *DB) SearchMessages(ctx context.Context, query, handle string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.handle, m.external_message_id, m.external_thread_id, m.subject, m.body,
		       m.sender, m.recipient, m.sent_at, m.created_at,
		       snippet(messages_fts, '<<', '>>', '...', -1, 16)
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.docid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if handle != "" {
		q += " AND m.handle = ?"
		args = append(args, handle)
	}
	q += " ORDER BY m.sent_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, searchErr(query, err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.Handle, &r.Message.ExternalMessageID,
			&r.Message.ExternalThreadID, &r.Message.Subject, &r.Message.Body,
			&r.Message.Sender, &r.Message.Recipient, &r.Message.SentAt,
			&r.Message.CreatedAt, &r.Snippet,
		); err != nil {
			return nil, searchErr(query, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, searchErr(query, err)
	}
	return results, nil
}
