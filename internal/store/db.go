package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// MaxBatchSize is the largest number of rows written or deleted in one
// transaction.
const MaxBatchSize = 500

// ErrStore marks failures of the local persistence layer.
var ErrStore = errors.New("store error")

// DB wraps a SQLite connection for the session's mirror.db.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite connection with WAL mode, a busy timeout and
// immediate write transactions so concurrent sync passes queue instead of
// failing with SQLITE_BUSY.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
