package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL migration statements.
// Each entry is applied once in order. New migrations are appended at the end.
var migrations = []string{
	// Migration 0: initial schema
	`CREATE TABLE IF NOT EXISTS documents (
		id           TEXT PRIMARY KEY,
		session      TEXT NOT NULL,
		name         TEXT NOT NULL,
		size_bytes   INTEGER NOT NULL DEFAULT 0,
		parent_count INTEGER NOT NULL DEFAULT 0,
		child_count  INTEGER NOT NULL DEFAULT 0,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS passages (
		id          TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
		namespace   TEXT NOT NULL,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		parent_id   TEXT NOT NULL,
		child_index INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		child_text  TEXT NOT NULL,
		parent_text TEXT NOT NULL,
		source_name TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		session    TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS session_state (
		session            TEXT PRIMARY KEY,
		summary            TEXT NOT NULL DEFAULT '',
		summarized_through INTEGER NOT NULL DEFAULT 0,
		updated_at         DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_passages_namespace ON passages(namespace)`,
	`CREATE INDEX IF NOT EXISTS idx_passages_document  ON passages(document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_session  ON documents(session)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations(session, id)`,
}

// applyMigrations runs any migrations that have not yet been applied.
func applyMigrations(conn *sql.DB) error {
	// Ensure the migration tracking table exists first.
	if _, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmt := range migrations {
		var count int
		row := conn.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, i)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", i, err)
		}
		if count > 0 {
			continue
		}

		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}

		if _, err := conn.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, i); err != nil {
			return fmt.Errorf("record migration %d: %w", i, err)
		}
	}

	return nil
}

// applyVectorTables creates the sqlite-vec virtual table for passage
// embeddings. Called after migrations so the metadata tables exist first.
func applyVectorTables(conn *sql.DB, dimension int) error {
	stmt := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_passages USING vec0(
		id TEXT PRIMARY KEY,
		embedding float[%d]
	)`, dimension)

	if _, err := conn.Exec(stmt); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	return nil
}
