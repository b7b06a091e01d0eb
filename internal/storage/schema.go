package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SchemaVersion is stamped into index_metadata when the schema is created.
const SchemaVersion = "1"

// CreateSchema creates all tables and indexes of the structural index.
// Every statement is IF NOT EXISTS so it is safe to run on an existing file.
// Runs in a single transaction: the schema is created completely or not at all.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	// Tables in dependency order
	tables := []struct {
		name string
		ddl  string
	}{
		{"namespaces", createNamespacesTable},
		{"types", createTypesTable},
		{"methods", createMethodsTable},
		{"properties", createPropertiesTable},
		{"type_interfaces", createTypeInterfacesTable},
		{"type_inheritance", createTypeInheritanceTable},
		{"index_metadata", createIndexMetadataTable},
	}

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}

	for i, idx := range allIndexes() {
		if _, err := tx.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING`,
		MetaSchemaVersion, SchemaVersion, now,
	); err != nil {
		return fmt.Errorf("failed to bootstrap index_metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the stored schema version, or "0" when the
// database has never been initialised.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='index_metadata'",
	).Scan(&tableExists)
	if err != nil {
		return "", fmt.Errorf("failed to check index_metadata existence: %w", err)
	}
	if tableExists == 0 {
		return "0", nil
	}

	version, err := getMetadata(ctx, db, MetaSchemaVersion)
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", fmt.Errorf("schema_version key not found in index_metadata")
	}
	return version, nil
}

const createNamespacesTable = `
CREATE TABLE IF NOT EXISTS namespaces (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    file_path TEXT NOT NULL                      -- first file seen declaring it
)
`

const createTypesTable = `
CREATE TABLE IF NOT EXISTS types (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    full_name TEXT NOT NULL UNIQUE,              -- upsert key
    namespace_id INTEGER,
    file_path TEXT NOT NULL,
    line INTEGER NOT NULL,
    end_line INTEGER NOT NULL,
    is_interface INTEGER NOT NULL DEFAULT 0,
    is_abstract INTEGER NOT NULL DEFAULT 0,
    is_static INTEGER NOT NULL DEFAULT 0,
    base_type TEXT,                              -- raw text, never resolved
    modifiers TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL,                          -- class, interface, struct, enum
    build_id TEXT NOT NULL DEFAULT '',           -- build that last wrote the row
    FOREIGN KEY (namespace_id) REFERENCES namespaces(id) ON DELETE SET NULL
)
`

const createMethodsTable = `
CREATE TABLE IF NOT EXISTS methods (
    id INTEGER PRIMARY KEY,
    class_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    return_type TEXT NOT NULL,
    parameters TEXT NOT NULL DEFAULT '',
    modifiers TEXT NOT NULL DEFAULT '',
    is_virtual INTEGER NOT NULL DEFAULT 0,
    is_override INTEGER NOT NULL DEFAULT 0,
    is_abstract INTEGER NOT NULL DEFAULT 0,
    line INTEGER NOT NULL,
    signature TEXT NOT NULL,
    FOREIGN KEY (class_id) REFERENCES types(id) ON DELETE CASCADE
)
`

const createPropertiesTable = `
CREATE TABLE IF NOT EXISTS properties (
    id INTEGER PRIMARY KEY,
    class_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    property_type TEXT NOT NULL,
    has_getter INTEGER NOT NULL DEFAULT 0,
    has_setter INTEGER NOT NULL DEFAULT 0,
    modifiers TEXT NOT NULL DEFAULT '',
    line INTEGER NOT NULL,
    FOREIGN KEY (class_id) REFERENCES types(id) ON DELETE CASCADE
)
`

const createTypeInterfacesTable = `
CREATE TABLE IF NOT EXISTS type_interfaces (
    class_id INTEGER NOT NULL,
    interface_name TEXT NOT NULL,                -- raw text as written in the base list
    FOREIGN KEY (class_id) REFERENCES types(id) ON DELETE CASCADE,
    UNIQUE(class_id, interface_name)
)
`

const createTypeInheritanceTable = `
CREATE TABLE IF NOT EXISTS type_inheritance (
    class_id INTEGER NOT NULL UNIQUE,            -- at most one parent per type
    parent_name TEXT NOT NULL,
    FOREIGN KEY (class_id) REFERENCES types(id) ON DELETE CASCADE
)
`

const createIndexMetadataTable = `
CREATE TABLE IF NOT EXISTS index_metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL
)
`

func allIndexes() []string {
	return []string{
		"CREATE INDEX IF NOT EXISTS idx_types_name ON types(name)",
		"CREATE INDEX IF NOT EXISTS idx_types_full_name ON types(full_name)",
		"CREATE INDEX IF NOT EXISTS idx_types_namespace_id ON types(namespace_id)",

		"CREATE INDEX IF NOT EXISTS idx_methods_class_id ON methods(class_id)",
		"CREATE INDEX IF NOT EXISTS idx_methods_name ON methods(name)",
		"CREATE INDEX IF NOT EXISTS idx_methods_signature ON methods(signature)",

		"CREATE INDEX IF NOT EXISTS idx_properties_class_id ON properties(class_id)",
		"CREATE INDEX IF NOT EXISTS idx_properties_name ON properties(name)",

		"CREATE INDEX IF NOT EXISTS idx_type_interfaces_name ON type_interfaces(interface_name)",
		"CREATE INDEX IF NOT EXISTS idx_type_inheritance_parent ON type_inheritance(parent_name)",
	}
}
