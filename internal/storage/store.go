package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrIndexNotFound is returned by OpenReadOnly when no index file exists yet.
var ErrIndexNotFound = errors.New("index not found")

// Store owns the SQLite connection pool of one index file.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// Open opens (creating when needed) the index at path for writing and
// ensures the schema exists. WAL mode lets query processes read while the
// file is open for writing.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writes are serialized by the indexer; one connection avoids SQLITE_BUSY
	// between pooled writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// OpenReadOnly opens an existing index for queries.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s, run 'typeindex index' first", ErrIndexNotFound, path)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	version, err := GetSchemaVersion(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check schema version: %w", err)
	}
	if version == "0" {
		db.Close()
		return nil, fmt.Errorf("%w at %s: file has no index schema", ErrIndexNotFound, path)
	}

	return &Store{db: db, path: path, readOnly: true}, nil
}

// DB exposes the connection pool to readers such as the query engine.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path is the index file location.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened with OpenReadOnly.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
