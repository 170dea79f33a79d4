package cache

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection backing the local message cache.
type DB struct {
	*sql.DB
}

// Open creates a SQLite connection with WAL mode and busy timeout set. The
// cache is disposable: it only mirrors what the gateway already holds.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	return &DB{db}, nil
}
