package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Scanner:
// - Scan finds matching files at any depth, including the root level
// - Scan excludes directories and non-matching files
// - Scan prunes ignored directories
// - Scan covers multiple roots
// - Scan fails with ErrRootNotFound for a missing root
// - "**/" patterns are compiled once with a root-level variant and match files at the root
// - FindByName locates files by base name regardless of include patterns
// - Walk stops early when the callback returns false
// - Decode handles UTF-8 BOM, UTF-16 BOMs, invalid UTF-8 and binary content
// - SplitLines handles CRLF and trailing newlines

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestScan_FindsFilesAtAnyDepth(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Program.cs"), "class Program {}")
	writeFile(t, filepath.Join(root, "Core", "Hero.cs"), "class Hero {}")
	writeFile(t, filepath.Join(root, "Core", "Party", "MobileParty.cs"), "class MobileParty {}")
	writeFile(t, filepath.Join(root, "Core", "README.md"), "# docs")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Empty.cs"), 0755)) // directory named like a source file

	s, err := New(Options{Roots: []string{root}})
	require.NoError(t, err)

	files, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(root, "Core", "Hero.cs"),
		filepath.Join(root, "Core", "Party", "MobileParty.cs"),
		filepath.Join(root, "Program.cs"),
	}, files)
}

func TestScan_PrunesIgnoredDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Hero.cs"), "class Hero {}")
	writeFile(t, filepath.Join(root, "obj", "Debug", "AssemblyInfo.cs"), "class Generated {}")
	writeFile(t, filepath.Join(root, "Module", "obj", "Temp.cs"), "class Temp {}")

	s, err := New(Options{
		Roots:  []string{root},
		Ignore: []string{"obj/**", "**/obj/**"},
	})
	require.NoError(t, err)

	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "Hero.cs")}, files)
}

func TestScan_MultipleRoots(t *testing.T) {
	t.Parallel()

	rootA := t.TempDir()
	rootB := t.TempDir()
	writeFile(t, filepath.Join(rootA, "A.cs"), "class A {}")
	writeFile(t, filepath.Join(rootB, "Nested", "B.cs"), "class B {}")

	s, err := New(Options{Roots: []string{rootA, rootB}})
	require.NoError(t, err)

	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(rootA, "A.cs"),
		filepath.Join(rootB, "Nested", "B.cs"),
	}, files)
}

func TestScan_MissingRoot(t *testing.T) {
	t.Parallel()

	s, err := New(Options{Roots: []string{filepath.Join(t.TempDir(), "does-not-exist")}})
	require.NoError(t, err)

	_, err = s.Scan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRootNotFound)
}

func TestNew_InvalidPattern(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Roots: []string{"."}, Include: []string{"[broken"}})
	require.Error(t, err)
}

func TestCompilePatterns_RootLevelVariant(t *testing.T) {
	t.Parallel()

	compiled, err := compilePatterns([]string{"**/*.Designer.cs", "obj/**"})
	require.NoError(t, err)
	require.Len(t, compiled, 2)
	assert.NotNil(t, compiled[0].root)
	assert.Nil(t, compiled[1].root)

	_, err = compilePatterns([]string{"**/[unclosed"})
	assert.Error(t, err)

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Form.Designer.cs"), "class Form { }")
	writeFile(t, filepath.Join(root, "UI", "Menu.Designer.cs"), "class Menu { }")
	writeFile(t, filepath.Join(root, "Form.cs"), "class Form { }")

	s, err := New(Options{Roots: []string{root}, Ignore: []string{"**/*.Designer.cs"}})
	require.NoError(t, err)
	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "Form.cs")}, files)
}

func TestFindByName(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a", "Hero.cs"), "class Hero {}")
	writeFile(t, filepath.Join(root, "b", "Hero.cs"), "class Hero {}")
	writeFile(t, filepath.Join(root, "b", "notes.txt"), "notes")

	s, err := New(Options{Roots: []string{root}})
	require.NoError(t, err)

	matches, err := s.FindByName(context.Background(), "some/other/dir/Hero.cs")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a", "Hero.cs"),
		filepath.Join(root, "b", "Hero.cs"),
	}, matches)

	matches, err = s.FindByName(context.Background(), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "b", "notes.txt")}, matches)

	matches, err = s.FindByName(context.Background(), "Missing.cs")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestWalk_StopsEarly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, name := range []string{"A.cs", "B.cs", "C.cs"} {
		writeFile(t, filepath.Join(root, name), "class X {}")
	}

	s, err := New(Options{Roots: []string{root}})
	require.NoError(t, err)

	visited := 0
	err = s.Walk(context.Background(), func(path string) bool {
		visited++
		return visited < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, visited)
}

func TestWalk_RespectsCancellation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.cs"), "class A {}")

	s, err := New(Options{Roots: []string{root}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Walk(ctx, func(string) bool { return true })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   []byte
		want    string
		wantErr error
	}{
		{
			name:  "plain utf-8",
			input: []byte("namespace Game.Core;"),
			want:  "namespace Game.Core;",
		},
		{
			name:  "utf-8 bom is stripped",
			input: append([]byte{0xEF, 0xBB, 0xBF}, []byte("class A {}")...),
			want:  "class A {}",
		},
		{
			name:  "utf-16 little endian with bom",
			input: []byte{0xFF, 0xFE, 'c', 0, 'l', 0, 'a', 0, 's', 0, 's', 0},
			want:  "class",
		},
		{
			name:  "utf-16 big endian with bom",
			input: []byte{0xFE, 0xFF, 0, 'e', 0, 'n', 0, 'u', 0, 'm'},
			want:  "enum",
		},
		{
			name:  "invalid bytes are replaced",
			input: []byte{'a', 0xC3, 0x28, 'b'},
			want:  "a�(b",
		},
		{
			name:    "nul bytes mean binary",
			input:   []byte{'M', 'Z', 0, 0, 3},
			wantErr: ErrBinaryFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Decode(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.cs"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitLines(t *testing.T) {
	t.Parallel()

	assert.Nil(t, SplitLines(""))
	assert.Equal(t, []string{"a", "b"}, SplitLines("a\r\nb\r\n"))
	assert.Equal(t, []string{"a", "", "b"}, SplitLines("a\n\nb"))
	assert.Equal(t, []string{""}, SplitLines("\n"))
}
