// Package migrations holds the versioned SQLite schema for the mirror store.
package migrations

import "embed"

// FS contains the *.up.sql and *.down.sql files consumed by golang-migrate.
//
//go:embed *.sql
var FS embed.FS
