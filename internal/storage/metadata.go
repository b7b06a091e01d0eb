package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// Metadata keys written by the indexer.
const (
	MetaSchemaVersion = "schema_version"
	MetaBuildID       = "last_build_id"
	MetaBuildTime     = "last_build_at"
	MetaBuildDuration = "last_build_duration"
	MetaSourceRoots   = "source_roots"
	MetaFilesIndexed  = "files_indexed"
	MetaFilesFailed   = "files_failed"
)

// Counts is the number of rows in each entity table.
type Counts struct {
	Namespaces  int
	Types       int
	Interfaces  int // types with is_interface set
	Methods     int
	Properties  int
	Inheritance int
	Implements  int
}

// SetMetadata upserts one metadata entry.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	return setMetadata(ctx, s.db, key, value)
}

// SetMetadataMap upserts several entries in one transaction.
func (s *Store) SetMetadataMap(ctx context.Context, entries map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin metadata transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range entries {
		if err := setMetadata(ctx, tx, key, value); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit metadata: %w", err)
	}
	return nil
}

// GetMetadata returns the value for key, or "" when unset.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	return getMetadata(ctx, s.db, key)
}

// AllMetadata returns every metadata entry.
func (s *Store) AllMetadata(ctx context.Context) (map[string]string, error) {
	rows, err := sq.Select("key", "value").
		From("index_metadata").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Populated reports whether a build has completed against this index.
func (s *Store) Populated(ctx context.Context) (bool, error) {
	id, err := s.GetMetadata(ctx, MetaBuildID)
	if err != nil {
		return false, err
	}
	return id != "", nil
}

// Counts returns per-table row counts.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	targets := []struct {
		dest  *int
		table string
		where sq.Sqlizer
	}{
		{&c.Namespaces, "namespaces", nil},
		{&c.Types, "types", nil},
		{&c.Interfaces, "types", sq.Eq{"is_interface": 1}},
		{&c.Methods, "methods", nil},
		{&c.Properties, "properties", nil},
		{&c.Inheritance, "type_inheritance", nil},
		{&c.Implements, "type_interfaces", nil},
	}

	for _, target := range targets {
		q := sq.Select("COUNT(*)").From(target.table)
		if target.where != nil {
			q = q.Where(target.where)
		}
		if err := q.RunWith(s.db).QueryRowContext(ctx).Scan(target.dest); err != nil {
			return Counts{}, fmt.Errorf("failed to count %s: %w", target.table, err)
		}
	}
	return c, nil
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func setMetadata(ctx context.Context, db execQueryer, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := db.ExecContext(ctx, `
		INSERT INTO index_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, now,
	)
	if err != nil {
		return fmt.Errorf("failed to set metadata %s: %w", key, err)
	}
	return nil
}

func getMetadata(ctx context.Context, db execQueryer, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, "SELECT value FROM index_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query metadata %s: %w", key, err)
	}
	return value, nil
}
