package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/typeindex/internal/parser"
)

// Test Plan for Writer:
// - WriteBatch stores namespace, type, methods, properties and both edge kinds
// - Files without a namespace store types with a NULL namespace_id
// - A later build replaces the members of an existing full_name (no duplicates)
// - The same build merges members of a type declared in several files
// - A failing file inside a batch does not discard its neighbours
// - Namespaces are shared between files declaring the same name
// - PruneStale removes types of older builds, their members and empty namespaces, sparing kept paths
// - CreateSchema is idempotent and records the schema version
// - OpenReadOnly rejects missing files and reads an existing index
// - Metadata round-trips and Populated follows the last build id

func heroFile(path string) *parser.FileStructure {
	return &parser.FileStructure{
		Path:      path,
		Namespace: "Game.Core",
		Types: []*parser.TypeDecl{
			{
				Name:       "Hero",
				FullName:   "Game.Core.Hero",
				Kind:       parser.KindClass,
				Modifiers:  []string{"public", "sealed"},
				BaseType:   "Character",
				Interfaces: []string{"IHeroInfo", "ISaveable"},
				Line:       5,
				EndLine:    40,
				Methods: []parser.MethodDecl{
					{Name: "AddGold", ReturnType: "void", Parameters: "int amount", Modifiers: []string{"public"}, Line: 10, Signature: "public void AddGold(int amount)"},
					{Name: "GetGold", ReturnType: "int", Modifiers: []string{"public", "virtual"}, IsVirtual: true, Line: 15, Signature: "public virtual int GetGold()"},
				},
				Properties: []parser.PropertyDecl{
					{Name: "Gold", Type: "int", HasGetter: true, Modifiers: []string{"public"}, Line: 8},
				},
			},
		},
	}
}

func countWhere(t *testing.T, s *Store, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(query, args...).Scan(&n))
	return n
}

func TestWriteBatch_StoresAllEntities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	res, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{heroFile("Core/Hero.cs")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Empty(t, res.Failed)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{
		Namespaces:  1,
		Types:       1,
		Methods:     2,
		Properties:  1,
		Inheritance: 1,
		Implements:  2,
	}, counts)

	var (
		name, fullName, kind, modifiers, base, ns string
		line, endLine, isInterface              int
	)
	err = store.DB().QueryRow(`
		SELECT t.name, t.full_name, t.kind, t.modifiers, t.base_type, n.name, t.line, t.end_line, t.is_interface
		FROM types t JOIN namespaces n ON n.id = t.namespace_id`,
	).Scan(&name, &fullName, &kind, &modifiers, &base, &ns, &line, &endLine, &isInterface)
	require.NoError(t, err)
	assert.Equal(t, "Hero", name)
	assert.Equal(t, "Game.Core.Hero", fullName)
	assert.Equal(t, "class", kind)
	assert.Equal(t, "public sealed", modifiers)
	assert.Equal(t, "Character", base)
	assert.Equal(t, "Game.Core", ns)
	assert.Equal(t, 5, line)
	assert.Equal(t, 40, endLine)
	assert.Equal(t, 0, isInterface)

	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM type_inheritance WHERE parent_name = ?", "Character"))
	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM methods WHERE signature = ? AND is_virtual = 1", "public virtual int GetGold()"))
}

func TestWriteBatch_NoNamespace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	f := &parser.FileStructure{
		Path:  "Loose.cs",
		Types: []*parser.TypeDecl{{Name: "Loose", FullName: "Loose", Kind: parser.KindStruct, Line: 1, EndLine: 3}},
	}
	_, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{f})
	require.NoError(t, err)

	assert.Equal(t, 0, countWhere(t, store, "SELECT COUNT(*) FROM namespaces"))
	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM types WHERE namespace_id IS NULL AND base_type IS NULL"))
}

func TestWriteBatch_NewBuildReplacesMembers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	_, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{heroFile("Core/Hero.cs")})
	require.NoError(t, err)

	var firstID int64
	require.NoError(t, store.DB().QueryRow("SELECT id FROM types WHERE full_name = 'Game.Core.Hero'").Scan(&firstID))

	// Same declaration again, now with one method and no interfaces.
	changed := heroFile("Core/Hero.cs")
	changed.Types[0].Methods = changed.Types[0].Methods[:1]
	changed.Types[0].Interfaces = nil
	changed.Types[0].BaseType = ""

	_, err = w.WriteBatch(ctx, "build-2", []*parser.FileStructure{changed})
	require.NoError(t, err)

	counts, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Types)
	assert.Equal(t, 1, counts.Methods)
	assert.Equal(t, 1, counts.Properties)
	assert.Equal(t, 0, counts.Implements)
	assert.Equal(t, 0, counts.Inheritance)

	var secondID int64
	var buildID string
	require.NoError(t, store.DB().QueryRow("SELECT id, build_id FROM types WHERE full_name = 'Game.Core.Hero'").Scan(&secondID, &buildID))
	assert.Equal(t, firstID, secondID, "upsert keeps the row identity")
	assert.Equal(t, "build-2", buildID)
}

func TestWriteBatch_SameBuildMergesPartialTypes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	partA := &parser.FileStructure{
		Path:      "Hero.cs",
		Namespace: "Game.Core",
		Types: []*parser.TypeDecl{{
			Name: "Hero", FullName: "Game.Core.Hero", Kind: parser.KindClass, Line: 3, EndLine: 10,
			Modifiers:  []string{"public", "partial"},
			BaseType:   "Character",
			Methods:    []parser.MethodDecl{{Name: "A", ReturnType: "void", Line: 5, Signature: "void A()"}},
			Interfaces: []string{"IOne"},
		}},
	}
	partB := &parser.FileStructure{
		Path:      "Hero.Save.cs",
		Namespace: "Game.Core",
		Types: []*parser.TypeDecl{{
			Name: "Hero", FullName: "Game.Core.Hero", Kind: parser.KindClass, Line: 2, EndLine: 8,
			Modifiers:  []string{"partial"},
			BaseType:   "IOne", // a partial part may list only interfaces
			Methods:    []parser.MethodDecl{{Name: "B", ReturnType: "void", Line: 4, Signature: "void B()"}},
			Interfaces: []string{"ITwo"},
		}},
	}

	_, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{partA})
	require.NoError(t, err)
	_, err = w.WriteBatch(ctx, "build-1", []*parser.FileStructure{partB})
	require.NoError(t, err)

	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM types"))
	assert.Equal(t, 2, countWhere(t, store, "SELECT COUNT(*) FROM methods"))
	assert.Equal(t, 2, countWhere(t, store, "SELECT COUNT(*) FROM type_interfaces"))

	var base, path string
	require.NoError(t, store.DB().QueryRow("SELECT base_type, file_path FROM types").Scan(&base, &path))
	assert.Equal(t, "Character", base)
	assert.Equal(t, "Hero.cs", path)
	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM type_inheritance WHERE parent_name = 'Character'"))
}

func TestWriteBatch_IsolatesFailingFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	_, err := store.DB().Exec(`
		CREATE TRIGGER reject_poison BEFORE INSERT ON types
		WHEN NEW.name = 'Poison'
		BEGIN SELECT RAISE(ABORT, 'poisoned row'); END`)
	require.NoError(t, err)

	poison := &parser.FileStructure{
		Path:  "Poison.cs",
		Types: []*parser.TypeDecl{{Name: "Poison", FullName: "Poison", Kind: parser.KindClass, Line: 1, EndLine: 1}},
	}
	other := &parser.FileStructure{
		Path:  "Fine.cs",
		Types: []*parser.TypeDecl{{Name: "Fine", FullName: "Fine", Kind: parser.KindClass, Line: 1, EndLine: 1}},
	}

	res, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{heroFile("Hero.cs"), poison, other})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "Poison.cs", res.Failed[0].Path)
	assert.Contains(t, res.Failed[0].Error(), "poisoned row")

	assert.Equal(t, 2, countWhere(t, store, "SELECT COUNT(*) FROM types"))
}

func TestWriteBatch_SharedNamespace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	second := &parser.FileStructure{
		Path:      "Core/Clan.cs",
		Namespace: "Game.Core",
		Types:     []*parser.TypeDecl{{Name: "Clan", FullName: "Game.Core.Clan", Kind: parser.KindClass, Line: 1, EndLine: 2}},
	}
	_, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{heroFile("Core/Hero.cs"), second})
	require.NoError(t, err)

	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM namespaces"))
	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM namespaces WHERE file_path = 'Core/Hero.cs'"))
	assert.Equal(t, 2, countWhere(t, store, "SELECT COUNT(*) FROM types t JOIN namespaces n ON n.id = t.namespace_id"))
}

func TestPruneStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)
	w := NewWriter(store, nil)

	failed := &parser.FileStructure{
		Path:      "Failed.cs",
		Namespace: "Game.Broken",
		Types:     []*parser.TypeDecl{{Name: "Kept", FullName: "Game.Broken.Kept", Kind: parser.KindClass, Line: 1, EndLine: 1}},
	}
	_, err := w.WriteBatch(ctx, "build-1", []*parser.FileStructure{heroFile("Hero.cs"), failed})
	require.NoError(t, err)

	removed, err := w.PruneStale(ctx, "build-2", []string{"Failed.cs"}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM types WHERE full_name = 'Game.Broken.Kept'"))
	assert.Zero(t, countWhere(t, store, "SELECT COUNT(*) FROM types WHERE full_name = 'Game.Core.Hero'"))
	assert.Zero(t, countWhere(t, store, "SELECT COUNT(*) FROM methods"))
	assert.Zero(t, countWhere(t, store, "SELECT COUNT(*) FROM type_interfaces"))
	assert.Zero(t, countWhere(t, store, "SELECT COUNT(*) FROM namespaces WHERE name = 'Game.Core'"))
	assert.Equal(t, 1, countWhere(t, store, "SELECT COUNT(*) FROM namespaces WHERE name = 'Game.Broken'"))

	removed, err = w.PruneStale(ctx, "build-1", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestWriteBatch_Empty(t *testing.T) {
	t.Parallel()

	res, err := NewWriter(NewTestStore(t), nil).WriteBatch(context.Background(), "b", nil)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{}, res)
}

func TestCreateSchema_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)

	require.NoError(t, CreateSchema(ctx, store.DB()))
	require.NoError(t, CreateSchema(ctx, store.DB()))

	version, err := GetSchemaVersion(ctx, store.DB())
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestOpenReadOnly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := OpenReadOnly(ctx, filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, ErrIndexNotFound)

	path := filepath.Join(t.TempDir(), "nested", "index.db")
	rw, err := Open(ctx, path)
	require.NoError(t, err)
	_, err = NewWriter(rw, nil).WriteBatch(ctx, "build-1", []*parser.FileStructure{heroFile("Hero.cs")})
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro, err := OpenReadOnly(ctx, path)
	require.NoError(t, err)
	defer ro.Close()
	assert.True(t, ro.ReadOnly())
	assert.Equal(t, path, ro.Path())

	counts, err := ro.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Types)

	_, err = ro.DB().Exec("DELETE FROM types")
	assert.Error(t, err, "read-only store rejects writes")
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewTestStore(t)

	populated, err := store.Populated(ctx)
	require.NoError(t, err)
	assert.False(t, populated)

	value, err := store.GetMetadata(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.SetMetadataMap(ctx, map[string]string{
		MetaBuildID:      "abc",
		MetaFilesIndexed: "12",
	}))
	require.NoError(t, store.SetMetadata(ctx, MetaFilesIndexed, "13"))

	all, err := store.AllMetadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", all[MetaBuildID])
	assert.Equal(t, "13", all[MetaFilesIndexed])
	assert.Equal(t, SchemaVersion, all[MetaSchemaVersion])

	populated, err = store.Populated(ctx)
	require.NoError(t, err)
	assert.True(t, populated)
}
