package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite serializes writers anyway; one connection keeps pragmas and
	// transactions on the same handle.
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{db}, nil
}

func runMigrations(db *sql.DB) error {
	// Documents live in the hosted search backend; this DB keeps the catalog,
	// conversation memory and per-user selection.
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS stores (
			id TEXT PRIMARY KEY,
			remote_name TEXT NOT NULL,
			name TEXT NOT NULL,
			name_key TEXT NOT NULL,
			description TEXT,
			documents TEXT,
			sync_urls TEXT,
			auto_sync INTEGER DEFAULT 0,
			last_sync DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_scopes (
			user_id INTEGER NOT NULL,
			scope TEXT NOT NULL,
			last_activity INTEGER NOT NULL,
			PRIMARY KEY (user_id, scope)
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			scope TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			FOREIGN KEY (user_id, scope) REFERENCES conversation_scopes(user_id, scope) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS user_selections (
			user_id INTEGER PRIMARY KEY,
			store_id TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stores_name_key ON stores(name_key)`,
		`CREATE INDEX IF NOT EXISTS idx_stores_remote_name ON stores(remote_name)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_scope ON conversation_turns(user_id, scope)`,
		`CREATE INDEX IF NOT EXISTS idx_scopes_activity ON conversation_scopes(last_activity)`,
		`CREATE INDEX IF NOT EXISTS idx_selections_store ON user_selections(store_id)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}
