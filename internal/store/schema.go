package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Bump when the schema changes and add a step to migrate below.
const schemaVersion = 2

const createSchema = `
CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queries (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	type           TEXT NOT NULL,
	interval_hours INTEGER,
	added_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS downloads (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	query_id       TEXT NOT NULL REFERENCES queries(id) ON DELETE CASCADE,
	reference_code TEXT NOT NULL DEFAULT '',
	outcome        TEXT NOT NULL,
	detail         TEXT NOT NULL,
	finished_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_downloads_query ON downloads(query_id, finished_at);
`

func migrate(db *sql.DB) error {
	current, err := readSchemaVersion(db)
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than this build supports (%d)", current, schemaVersion)
	}
	if current == schemaVersion {
		return nil
	}

	if current == 0 {
		// Fresh database: create everything at the latest shape.
		if _, err := db.Exec(createSchema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return writeSchemaVersion(db, schemaVersion)
	}

	if current < 2 {
		// v1 recorded the reference code only in the failure detail text.
		if _, err := db.Exec(`ALTER TABLE downloads ADD COLUMN reference_code TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("migrate schema to v2: %w", err)
		}
	}

	return writeSchemaVersion(db, schemaVersion)
}

func readSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'config'`).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("inspect schema: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var raw string
	err = db.QueryRow(`SELECT value FROM config WHERE key = 'schema_version'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse schema version %q: %w", raw, err)
	}
	return v, nil
}

func writeSchemaVersion(db *sql.DB, v int) error {
	_, err := db.Exec(
		`INSERT INTO config (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(v),
	)
	if err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}
