// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/internal/store/sqlite"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "semdex-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

// testCatalog opens a fresh catalog that is closed on cleanup.
func testCatalog(t *testing.T) *sqlite.Catalog {
	t.Helper()
	cat, err := sqlite.NewCatalog(testDBPath(t, "catalog"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func seedIndex(t *testing.T, cat *sqlite.Catalog, id string) *store.Index {
	t.Helper()
	idx := &store.Index{ID: id, Name: "index " + id, Provider: "sqlitevec"}
	require.NoError(t, cat.Indexes().CreateIndex(context.Background(), idx))
	return idx
}

func seedRecords(t *testing.T, cat *sqlite.Catalog, ready bool, ids ...string) {
	t.Helper()
	for _, id := range ids {
		rec := &store.Record{ID: id, Title: "title " + id, Body: "body " + id, Ready: ready}
		require.NoError(t, cat.Records().PutRecord(context.Background(), rec))
	}
}
