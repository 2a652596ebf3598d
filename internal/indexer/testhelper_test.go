// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package indexer_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/internal/store/sqlite"
	"github.com/sigil-dev/semdex/internal/vector"
)

const fakeProviderName = "fake"

// fakeProvider keeps documents in memory, per index.
type fakeProvider struct {
	mu      sync.Mutex
	docs    map[string]map[string]string
	upserts [][]vector.Document
	deletes [][]string
	drops   []string

	// failUpsert, when set, decides whether a batch fails.
	failUpsert func(docs []vector.Document) error
	// panicUpsert, when set, panics for batches it returns true for.
	panicUpsert func(docs []vector.Document) bool
	// beforeUpsert runs outside the lock before each upsert.
	beforeUpsert func()
	// search overrides the default substring search.
	search func(query string) []vector.Match

	deleteErr error
	dropErr   error
	searchErr error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{docs: map[string]map[string]string{}}
}

func (f *fakeProvider) EmbedAndUpsert(_ context.Context, docs []vector.Document, cfg vector.Config) error {
	if f.beforeUpsert != nil {
		f.beforeUpsert()
	}
	if f.panicUpsert != nil && f.panicUpsert(docs) {
		panic("embedding backend exploded")
	}
	if f.failUpsert != nil {
		if err := f.failUpsert(docs); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, slices.Clone(docs))
	if f.docs[cfg.IndexID] == nil {
		f.docs[cfg.IndexID] = map[string]string{}
	}
	for _, d := range docs {
		f.docs[cfg.IndexID][d.ID] = d.Text
	}
	return nil
}

func (f *fakeProvider) Delete(_ context.Context, ids []string, cfg vector.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, slices.Clone(ids))
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for _, id := range ids {
		delete(f.docs[cfg.IndexID], id)
	}
	return nil
}

func (f *fakeProvider) EmbedAndSearch(_ context.Context, query string, cfg vector.Config) ([]vector.Match, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.search != nil {
		return f.search(query), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vector.Match
	for id, text := range f.docs[cfg.IndexID] {
		if strings.Contains(text, query) {
			out = append(out, vector.Match{ID: id, Score: 1})
		}
	}
	slices.SortFunc(out, func(a, b vector.Match) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeProvider) DropIndex(_ context.Context, cfg vector.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, cfg.IndexID)
	if f.dropErr != nil {
		return f.dropErr
	}
	delete(f.docs, cfg.IndexID)
	return nil
}

func (f *fakeProvider) texts(indexID string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneMap(f.docs[indexID])
}

func (f *fakeProvider) upsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func containsRecord(docs []vector.Document, text string) bool {
	for _, d := range docs {
		if strings.Contains(d.Text, text) {
			return true
		}
	}
	return false
}

var errUpsert = errors.New("embedding quota exceeded")

type fixture struct {
	cat      *sqlite.Catalog
	provider *fakeProvider
	engine   *indexer.Engine
	index    *store.Index
}

func newFixture(t *testing.T, cfg indexer.Config, opts ...indexer.Option) *fixture {
	t.Helper()
	cat, err := sqlite.NewCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return newFixtureWithCatalog(t, cat, cat, cfg, opts...)
}

// newFixtureWithCatalog lets a test hand the engine a wrapped catalog while
// still seeding data through the real one.
func newFixtureWithCatalog(t *testing.T, cat *sqlite.Catalog, engineCat store.Catalog, cfg indexer.Config, opts ...indexer.Option) *fixture {
	t.Helper()
	provider := newFakeProvider()
	reg := vector.NewRegistry()
	require.NoError(t, reg.Register(fakeProviderName, provider))

	engine := indexer.New(engineCat, reg, cfg, opts...)
	t.Cleanup(engine.Close)

	idx, err := engine.CreateIndex(context.Background(), indexer.CreateIndexParams{
		Name:     "docs-" + uuid.NewString()[:8],
		Provider: fakeProviderName,
	})
	require.NoError(t, err)

	return &fixture{cat: cat, provider: provider, engine: engine, index: idx}
}

func (f *fixture) putRecords(t *testing.T, ready bool, ids ...string) {
	t.Helper()
	for _, id := range ids {
		rec := &store.Record{ID: id, Title: "title " + id, Body: "body " + id, Ready: ready}
		require.NoError(t, f.cat.Records().PutRecord(context.Background(), rec))
	}
}

func (f *fixture) items(t *testing.T) map[string]*store.IndexItem {
	t.Helper()
	items, err := f.cat.Items().ListItems(context.Background(), f.index.ID)
	require.NoError(t, err)
	out := make(map[string]*store.IndexItem, len(items))
	for _, item := range items {
		out[item.RecordID] = item
	}
	return out
}

func (f *fixture) reload(t *testing.T) *store.Index {
	t.Helper()
	idx, err := f.cat.Indexes().GetIndex(context.Background(), f.index.ID)
	require.NoError(t, err)
	return idx
}
