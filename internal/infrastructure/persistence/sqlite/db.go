// Package sqlite provides SQLite-backed implementations of domain
// repositories using the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" driver.
	_ "modernc.org/sqlite"
)

// schemaSQL is the complete schema. Statements are idempotent so Open can
// run it on every start.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS workflow_codes (
	code_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	code_text TEXT NOT NULL,
	code_revision INTEGER NOT NULL DEFAULT 1,
	grants_json TEXT NOT NULL DEFAULT '[]',
	plugins_json TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_results (
	id TEXT PRIMARY KEY,
	code_id TEXT NOT NULL,
	revision INTEGER NOT NULL,
	result_text TEXT NOT NULL,
	result_type TEXT NOT NULL CHECK(result_type IN ('Success', 'Failure', 'Cancelled')),
	exit_code INTEGER NOT NULL DEFAULT 0,
	ran_at TEXT NOT NULL,
	UNIQUE(code_id, revision)
);

CREATE INDEX IF NOT EXISTS idx_workflow_results_code_id ON workflow_results(code_id);

CREATE TABLE IF NOT EXISTS ext_plugin_packages (
	plugin_package_id TEXT PRIMARY KEY,
	install_dir TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('pending', 'installed')) DEFAULT 'pending',
	missing INTEGER NOT NULL DEFAULT 0,
	installed_at TEXT NOT NULL
);
`

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection serializes writes and
	// keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return db, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
