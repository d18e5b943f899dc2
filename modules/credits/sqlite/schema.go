package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; migration i brings the schema to
// version i+1. Never edit a released migration, append a new one.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS credits (
			user_id    TEXT    PRIMARY KEY,
			balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		`CREATE TABLE IF NOT EXISTS subscriptions (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			customer_id TEXT NOT NULL DEFAULT '',
			plan_id     TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_subscriptions_user ON subscriptions(user_id, updated_at)`,

		`CREATE TABLE IF NOT EXISTS processed_events (
			id           TEXT PRIMARY KEY,
			processed_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	},
	{
		`CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT    NOT NULL,
			seq             INTEGER NOT NULL,
			role            TEXT    NOT NULL,
			content         TEXT    NOT NULL DEFAULT '',
			created_at      TEXT    NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)`,
	},
}

// schemaVersion is the version produced by applying every migration.
var schemaVersion = len(migrations)

// migrate brings the database schema to schemaVersion.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("sqlite: database schema version %d is newer than supported %d", current, schemaVersion)
	}

	for v := current; v < schemaVersion; v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin migration %d: %w", v+1, err)
		}
		for _, stmt := range migrations[v] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("sqlite: migrate to %d: %w\nstatement: %s", v+1, err, stmt)
			}
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", v+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite: record schema version: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %d: %w", v+1, err)
		}
	}
	return nil
}

// timeLayout is a fixed-width UTC timestamp so stored values sort
// lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"
