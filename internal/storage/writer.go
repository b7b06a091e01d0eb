package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mvp-joe/typeindex/internal/parser"
)

// FileError records one file whose rows could not be written.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e FileError) Unwrap() error {
	return e.Err
}

// WriteResult summarises a WriteBatch call.
type WriteResult struct {
	Files  int // files whose rows were committed
	Failed []FileError
}

// Writer persists parsed files into the store. It is not safe for
// concurrent use; callers funnel all writes through one goroutine.
type Writer struct {
	store  *Store
	logger *slog.Logger
}

// NewWriter creates a Writer for store. A nil logger uses slog.Default().
func NewWriter(store *Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, logger: logger}
}

// WriteBatch writes files in a single transaction. If the batch fails the
// files are retried one transaction each, so a single bad file only loses
// its own rows. A non-nil error means the store itself is unusable.
//
// buildID identifies the running build: a type written twice under the same
// build id (partial declarations in several files) has its members merged;
// a type last written by another build is replaced.
func (w *Writer) WriteBatch(ctx context.Context, buildID string, files []*parser.FileStructure) (WriteResult, error) {
	if len(files) == 0 {
		return WriteResult{}, nil
	}

	err := w.writeTx(ctx, buildID, files)
	if err == nil {
		return WriteResult{Files: len(files)}, nil
	}
	if ctx.Err() != nil {
		return WriteResult{}, ctx.Err()
	}

	w.logger.Warn("index.batch_failed", "files", len(files), "error", err)

	var res WriteResult
	for _, f := range files {
		if err := w.writeTx(ctx, buildID, []*parser.FileStructure{f}); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			w.logger.Warn("index.file_write_failed", "path", f.Path, "error", err)
			res.Failed = append(res.Failed, FileError{Path: f.Path, Err: err})
			continue
		}
		res.Files++
	}
	return res, nil
}

// PruneStale deletes every type not written by buildID, except types whose
// file is listed in keepPaths (files that failed in this build keep their
// previous rows). Members and edges go with their type. Namespaces left
// without types are removed unless listed in keepNamespaces. It returns the
// number of types removed.
func (w *Writer) PruneStale(ctx context.Context, buildID string, keepPaths, keepNamespaces []string) (int64, error) {
	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	res, err := sq.Delete("types").
		Where(sq.NotEq{"build_id": buildID}).
		Where(sq.NotEq{"file_path": keepPaths}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale types: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned types: %w", err)
	}

	_, err = sq.Delete("namespaces").
		Where("id NOT IN (SELECT namespace_id FROM types WHERE namespace_id IS NOT NULL)").
		Where(sq.NotEq{"name": keepNamespaces}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to prune stale namespaces: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	if removed > 0 {
		w.logger.Info("index.pruned", "build_id", buildID, "types", removed)
	}
	return removed, nil
}

func (w *Writer) writeTx(ctx context.Context, buildID string, files []*parser.FileStructure) error {
	tx, err := w.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Safe to call even after commit

	for _, f := range files {
		if err := writeFile(ctx, tx, buildID, f); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// writeFile writes the namespace, then each type, then the type's members
// and edges, so every child row references a type row that already exists.
func writeFile(ctx context.Context, tx *sql.Tx, buildID string, f *parser.FileStructure) error {
	var nsID sql.NullInt64
	if f.HasNamespace() {
		id, err := upsertNamespace(ctx, tx, f.Namespace, f.Path)
		if err != nil {
			return err
		}
		nsID = sql.NullInt64{Int64: id, Valid: true}
	}

	for _, t := range f.Types {
		typeID, err := upsertType(ctx, tx, buildID, nsID, f.Path, t)
		if err != nil {
			return err
		}
		if err := writeMembers(ctx, tx, typeID, t); err != nil {
			return fmt.Errorf("type %s: %w", t.FullName, err)
		}
	}
	return nil
}

func upsertNamespace(ctx context.Context, tx *sql.Tx, name, path string) (int64, error) {
	_, err := sq.Insert("namespaces").
		Columns("name", "file_path").
		Values(name, path).
		Suffix("ON CONFLICT(name) DO NOTHING").
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to insert namespace %s: %w", name, err)
	}

	var id int64
	err = sq.Select("id").
		From("namespaces").
		Where(sq.Eq{"name": name}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to look up namespace %s: %w", name, err)
	}
	return id, nil
}

// upsertType inserts or refreshes the row keyed by full_name and returns its id.
func upsertType(ctx context.Context, tx *sql.Tx, buildID string, nsID sql.NullInt64, path string, t *parser.TypeDecl) (int64, error) {
	var (
		id      int64
		storedB string
	)
	err := sq.Select("id", "build_id").
		From("types").
		Where(sq.Eq{"full_name": t.FullName}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&id, &storedB)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := sq.Insert("types").
			Columns(
				"name", "full_name", "namespace_id", "file_path", "line", "end_line",
				"is_interface", "is_abstract", "is_static", "base_type", "modifiers", "kind", "build_id",
			).
			Values(
				t.Name, t.FullName, nsID, path, t.Line, t.EndLine,
				boolToInt(t.IsInterface), boolToInt(t.IsAbstract), boolToInt(t.IsStatic),
				nullString(t.BaseType), t.ModifierText(), string(t.Kind), buildID,
			).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to insert type %s: %w", t.FullName, err)
		}
		return res.LastInsertId()

	case err != nil:
		return 0, fmt.Errorf("failed to look up type %s: %w", t.FullName, err)

	case storedB == buildID:
		// Another part of a partial type written by this build. Keep the
		// first declaration's location and merge the flags.
		_, err := sq.Update("types").
			Set("is_abstract", sq.Expr("MAX(is_abstract, ?)", boolToInt(t.IsAbstract))).
			Set("is_static", sq.Expr("MAX(is_static, ?)", boolToInt(t.IsStatic))).
			Set("base_type", sq.Expr("COALESCE(base_type, ?)", nullString(t.BaseType))).
			Where(sq.Eq{"id": id}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to merge type %s: %w", t.FullName, err)
		}
		return id, nil

	default:
		for _, table := range []string{"methods", "properties", "type_interfaces", "type_inheritance"} {
			if _, err := sq.Delete(table).Where(sq.Eq{"class_id": id}).RunWith(tx).ExecContext(ctx); err != nil {
				return 0, fmt.Errorf("failed to clear %s of %s: %w", table, t.FullName, err)
			}
		}
		_, err := sq.Update("types").
			SetMap(map[string]any{
				"name":         t.Name,
				"namespace_id": nsID,
				"file_path":    path,
				"line":         t.Line,
				"end_line":     t.EndLine,
				"is_interface": boolToInt(t.IsInterface),
				"is_abstract":  boolToInt(t.IsAbstract),
				"is_static":    boolToInt(t.IsStatic),
				"base_type":    nullString(t.BaseType),
				"modifiers":    t.ModifierText(),
				"kind":         string(t.Kind),
				"build_id":     buildID,
			}).
			Where(sq.Eq{"id": id}).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to update type %s: %w", t.FullName, err)
		}
		return id, nil
	}
}

func writeMembers(ctx context.Context, tx *sql.Tx, typeID int64, t *parser.TypeDecl) error {
	if t.BaseType != "" {
		_, err := sq.Insert("type_inheritance").
			Columns("class_id", "parent_name").
			Values(typeID, t.BaseType).
			Suffix("ON CONFLICT(class_id) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert inheritance: %w", err)
		}
	}

	for _, iface := range t.Interfaces {
		_, err := sq.Insert("type_interfaces").
			Columns("class_id", "interface_name").
			Values(typeID, iface).
			Suffix("ON CONFLICT(class_id, interface_name) DO NOTHING").
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert interface %s: %w", iface, err)
		}
	}

	for _, m := range t.Methods {
		_, err := sq.Insert("methods").
			Columns(
				"class_id", "name", "return_type", "parameters", "modifiers",
				"is_virtual", "is_override", "is_abstract", "line", "signature",
			).
			Values(
				typeID, m.Name, m.ReturnType, m.Parameters, m.ModifierText(),
				boolToInt(m.IsVirtual), boolToInt(m.IsOverride), boolToInt(m.IsAbstract), m.Line, m.Signature,
			).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert method %s: %w", m.Name, err)
		}
	}

	for _, p := range t.Properties {
		_, err := sq.Insert("properties").
			Columns("class_id", "name", "property_type", "has_getter", "has_setter", "modifiers", "line").
			Values(typeID, p.Name, p.Type, boolToInt(p.HasGetter), boolToInt(p.HasSetter), p.ModifierText(), p.Line).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert property %s: %w", p.Name, err)
		}
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}
