package history

import (
	"context"
	"fmt"
	"time"
)

type migration struct {
	version     int
	description string
	sql         string
}

// migrations returns every schema migration in ascending order. Already
// applied versions are skipped, so re-running is always safe.
func migrations() []migration {
	return []migration{
		{
			version:     1,
			description: "initial schema: usage_snapshots, schema_version, date index",
			sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS usage_snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	reasoning_tokens INTEGER NOT NULL,
	cache_write_tokens INTEGER NOT NULL,
	cache_read_tokens INTEGER NOT NULL,
	total_cost REAL NOT NULL,
	interaction_count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_usage_snapshots_date ON usage_snapshots(date);
`,
		},
		{
			version:     2,
			description: "add UNIQUE constraint on date, keeping the newest row per date",
			sql: `
CREATE TABLE usage_snapshots_new (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL UNIQUE,
	input_tokens INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	reasoning_tokens INTEGER NOT NULL,
	cache_write_tokens INTEGER NOT NULL,
	cache_read_tokens INTEGER NOT NULL,
	total_cost REAL NOT NULL,
	interaction_count INTEGER NOT NULL,
	created_at TEXT NOT NULL
);

INSERT INTO usage_snapshots_new
SELECT * FROM usage_snapshots
WHERE id IN (
	SELECT MAX(id) FROM usage_snapshots GROUP BY date
);

DROP TABLE usage_snapshots;

ALTER TABLE usage_snapshots_new RENAME TO usage_snapshots;

CREATE INDEX IF NOT EXISTS idx_usage_snapshots_date ON usage_snapshots(date);
`,
		},
	}
}

// Migrate applies every pending migration. Each migration runs inside its
// own transaction together with its schema_version record, so a failure
// never leaves partial schema changes behind.
func (s *Store) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyMigrations(ctx, 0)
}

// applyMigrations applies pending migrations; upTo limits the highest
// version applied (0 means all). Callers hold s.mu.
func (s *Store) applyMigrations(ctx context.Context, upTo int) error {
	current, err := s.schemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations() {
		if m.version <= current {
			continue
		}
		if upTo > 0 && m.version > upTo {
			break
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: migration %d begin tx: %w", m.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return fmt.Errorf("history: migration %d (%s): %w", m.version, m.description, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.version, s.now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("history: recording migration %d: %w", m.version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: migration %d commit: %w", m.version, err)
	}
	return nil
}

// schemaVersion reports the highest applied migration version, or 0 for a
// fresh database without a schema_version table. Callers hold s.mu.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("history: checking schema_version table: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var version *int
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("history: reading schema version: %w", err)
	}
	if version == nil {
		return 0, nil
	}
	return *version, nil
}
