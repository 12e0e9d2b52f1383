package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS recipes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT,
		category TEXT,
		season TEXT,
		region TEXT,
		servings INTEGER,
		prep_minutes INTEGER,
		ingredients TEXT,
		usage TEXT,
		storage TEXT,
		equipment TEXT,
		search_text TEXT,
		sort_key INTEGER NOT NULL DEFAULT 0,
		is_premium INTEGER NOT NULL DEFAULT 0,
		image_path TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_is_premium ON recipes (is_premium)`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_sort_key ON recipes (sort_key)`,
}

// InitDB opens the SQLite database at dbPath and creates the preferences and
// recipes tables if they don't exist.
func InitDB(ctx context.Context, dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps in-memory databases shared.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()

			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return db, nil
}
