package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// NewTestStore creates a file-backed index in t.TempDir() with the schema
// applied. The store is closed by t.Cleanup.
//
// A file (not :memory:) is used so every pooled connection sees the same
// database and read-only reopen can be exercised.
func NewTestStore(t testing.TB) *Store {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}
