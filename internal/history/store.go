// Package history persists one usage snapshot per calendar date in a local
// SQLite database and gates collection to at most one save per day.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the snapshot database connection. Every statement and
// migration runs under one mutex, so all access from this process is
// serialized; WAL mode still lets a second process (the history viewer)
// read concurrently.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file (and its parent directory) if needed,
// applies pragmas, and brings the schema up to date.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: creating DB dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening DB: %w", err)
	}

	store, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewStore wraps an existing connection, configures it, and migrates the
// schema.
func NewStore(db *sql.DB) (*Store, error) {
	// One underlying connection: pragmas apply to it and the mutex above
	// it is the whole serialization story.
	db.SetMaxOpenConns(1)

	if err := configureConnection(db); err != nil {
		return nil, err
	}

	store := &Store{db: db, now: time.Now}
	if err := store.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureConnection(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		return fmt.Errorf("history: set journal_mode WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("history: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous = NORMAL;`); err != nil {
		return fmt.Errorf("history: set synchronous NORMAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		return fmt.Errorf("history: set busy_timeout: %w", err)
	}
	return nil
}
