// Package store is the local bookkeeping database: the Flex token,
// tool configuration, query definitions, and append-only download history.
// It is a single SQLite file; concurrent invocations of the CLI are
// serialized by the engine's busy timeout rather than an in-process lock.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	dbFileName = "flexfetch.db"

	// DataDirEnv overrides the database location, mainly for tests and
	// scripted use.
	DataDirEnv = "FLEXFETCH_DATA_DIR"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type Store struct {
	db   *sql.DB
	path string
}

// DefaultDataDir resolves where the database lives: $FLEXFETCH_DATA_DIR if
// set, else <user-config-dir>/flexfetch.
func DefaultDataDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(DataDirEnv)); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "flexfetch"), nil
}

func OpenDefault() (*Store, error) {
	dir, err := DefaultDataDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(dir, dbFileName))
}

// Open opens (creating if needed) the database at path and brings the
// schema up to date. Pragmas follow the usual production set for a
// multi-writer SQLite file: WAL, foreign keys on, a generous busy timeout.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", strings.ToLower(p), err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}
