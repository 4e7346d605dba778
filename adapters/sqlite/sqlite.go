// Package sqlite provides a SQLite document storage adapter.
//
// Each collection is a table of JSON documents:
//
//	seq INTEGER PRIMARY KEY AUTOINCREMENT  -- insertion order
//	id  TEXT NOT NULL UNIQUE
//	doc TEXT NOT NULL                      -- JSON, includes _id
//
// Queries are evaluated with the shared document matcher; unique indexes
// are expression indexes over json_extract(doc, ...).
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection.
type DB struct {
	*sql.DB
}

// Open creates a new SQLite database connection.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to an in-memory database is a separate database.
	if isMemory(path) {
		db.SetMaxOpenConns(1)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &DB{DB: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// quoteIdent quotes a table or index name.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
