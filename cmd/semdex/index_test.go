// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/semdex/internal/indexer"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func seedRecords(t *testing.T) {
	t.Helper()
	mustRun(t, "record", "put", "r1", "--title", "cat care", "--ready")
	mustRun(t, "record", "put", "r2", "--title", "dog walking", "--ready")
	mustRun(t, "record", "put", "r3", "--title", "fish tanks")
}

func TestIndex_Lifecycle(t *testing.T) {
	setupEnv(t)
	seedRecords(t)

	created := decode[indexView](t, mustRun(t, "index", "create", "docs", "-o", "json"))
	assert.Equal(t, "docs", created.Name)
	assert.Equal(t, "sqlitevec", created.Provider)
	assert.False(t, created.Active)

	// Activate waits for its background sync before the command exits.
	out := mustRun(t, "index", "activate", "docs")
	assert.Contains(t, out, "is active")

	st := decode[indexer.Status](t, mustRun(t, "index", "status", "-o", "json"))
	assert.Equal(t, created.ID, st.IndexID)
	assert.True(t, st.Active)
	assert.False(t, st.Indexing)
	assert.Equal(t, 2, st.IndexedCount)
	assert.Equal(t, 2, st.Items.Indexed)

	hits := decode[[]hitView](t, mustRun(t, "query", "cat", "-o", "json"))
	require.NotEmpty(t, hits)
	assert.Equal(t, "r1", hits[0].Record.ID)
	for _, h := range hits {
		assert.NotEqual(t, "r3", h.Record.ID, "records that are not ready never match")
	}

	listed := decode[[]indexView](t, mustRun(t, "index", "list", "-o", "json"))
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Active)

	out = mustRun(t, "index", "deactivate", created.ID)
	assert.Contains(t, out, "is inactive")
	_, err := run(t, "query", "cat")
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeIndexerNoActiveIndex))

	// An inactive index can still be queried by name.
	hits = decode[[]hitView](t, mustRun(t, "query", "dog", "--index", "docs", "-o", "json"))
	require.NotEmpty(t, hits)
	assert.Equal(t, "r2", hits[0].Record.ID)

	out = mustRun(t, "index", "delete", "docs")
	assert.Contains(t, out, "Deleted index docs")
	listed = decode[[]indexView](t, mustRun(t, "index", "list", "-o", "json"))
	assert.Empty(t, listed)
}

func TestIndex_CreateWithActivate(t *testing.T) {
	setupEnv(t)
	seedRecords(t)

	created := decode[indexView](t, mustRun(t, "index", "create", "docs", "--activate", "--limit", "1", "-o", "json"))
	assert.True(t, created.Active)
	assert.EqualValues(t, 1, created.Options["limit"])

	hits := decode[[]hitView](t, mustRun(t, "query", "fish", "dog", "-o", "json"))
	assert.Len(t, hits, 1)
}

func TestIndex_CreateDuplicateName(t *testing.T) {
	setupEnv(t)
	mustRun(t, "index", "create", "docs")

	_, err := run(t, "index", "create", "docs")
	require.Error(t, err)
	assert.True(t, semerr.IsConflict(err))
}

func TestIndex_CreateUnknownProvider(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "index", "create", "docs", "--provider", "pinecone")
	require.Error(t, err)
	assert.True(t, semerr.IsNotFound(err))
}

func TestIndex_SyncExplicitAndAll(t *testing.T) {
	setupEnv(t)
	seedRecords(t)
	mustRun(t, "index", "create", "a")
	mustRun(t, "index", "create", "b")

	results := decode[[]indexer.SyncResult](t, mustRun(t, "index", "sync", "a", "-o", "json"))
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Indexed)
	assert.Equal(t, 2, results[0].IndexedCount)

	results = decode[[]indexer.SyncResult](t, mustRun(t, "index", "sync", "--all", "-o", "json"))
	require.Len(t, results, 2)
	byIndex := map[string]int{}
	for _, r := range results {
		byIndex[r.IndexID] = r.Indexed
		assert.Equal(t, 2, r.IndexedCount)
	}
	// a was already in sync; b is new.
	assert.ElementsMatch(t, []int{0, 2}, []int{byIndex[results[0].IndexID], byIndex[results[1].IndexID]})
}

func TestIndex_SyncWithoutActiveIndex(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "index", "sync")
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeIndexerNoActiveIndex))
}

func TestIndex_SyncAllRejectsArgument(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "index", "sync", "docs", "--all")
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeCLIInputInvalid))
}

func TestIndex_StatusUnknown(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "index", "status", "missing")
	require.Error(t, err)
	assert.True(t, semerr.IsNotFound(err))
}

func TestIndex_TableOutput(t *testing.T) {
	setupEnv(t)
	mustRun(t, "index", "create", "docs")

	out := mustRun(t, "index", "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "docs")
	assert.Contains(t, out, "sqlitevec")

	out = mustRun(t, "index", "status", "docs", "-o", "yaml")
	assert.Contains(t, out, "name: docs")
	assert.Contains(t, out, "indexed_count: 0")
}
