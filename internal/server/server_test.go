// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/server"
	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/sigil-dev/semdex/pkg/health"
)

// --- fakes ---

type fakeIndexes struct {
	mu       sync.Mutex
	indexes  map[string]*store.Index
	active   string
	hits     []indexer.RankedRecord
	queryErr error
	lastText string
	lastID   string
}

func newFakeIndexes() *fakeIndexes {
	return &fakeIndexes{indexes: map[string]*store.Index{
		"idx-1": {ID: "idx-1", Name: "docs", Provider: "sqlitevec", IndexedCount: 3},
	}}
}

func notFound(id string) error {
	return semerr.New(semerr.CodeStoreIndexGetNotFound, "index not found", semerr.FieldIndexID(id))
}

func (f *fakeIndexes) CreateIndex(_ context.Context, p indexer.CreateIndexParams) (*store.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, idx := range f.indexes {
		if idx.Name == p.Name {
			return nil, semerr.New(semerr.CodeStoreIndexCreateConflict, "index already exists")
		}
	}
	idx := &store.Index{ID: "idx-new", Name: p.Name, Provider: p.Provider, ProviderConfig: p.ProviderConfig}
	f.indexes[idx.ID] = idx
	return idx, nil
}

func (f *fakeIndexes) ListIndexes(context.Context) ([]*store.Index, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*store.Index, 0, len(f.indexes))
	for _, idx := range f.indexes {
		out = append(out, idx)
	}
	return out, nil
}

func (f *fakeIndexes) Status(_ context.Context, id string) (*indexer.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[id]
	if !ok {
		return nil, notFound(id)
	}
	return &indexer.Status{IndexID: idx.ID, Name: idx.Name, Provider: idx.Provider,
		Active: f.active == id, IndexedCount: idx.IndexedCount}, nil
}

func (f *fakeIndexes) ActiveStatus(ctx context.Context) (*indexer.Status, error) {
	f.mu.Lock()
	active := f.active
	f.mu.Unlock()
	if active == "" {
		return nil, semerr.New(semerr.CodeIndexerNoActiveIndex, "no active index")
	}
	return f.Status(ctx, active)
}

func (f *fakeIndexes) Activate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[id]; !ok {
		return notFound(id)
	}
	f.active = id
	return nil
}

func (f *fakeIndexes) Deactivate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[id]; !ok {
		return notFound(id)
	}
	if f.active == id {
		f.active = ""
	}
	return nil
}

func (f *fakeIndexes) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[id]; !ok {
		return notFound(id)
	}
	delete(f.indexes, id)
	return nil
}

func (f *fakeIndexes) Query(_ context.Context, id, text string) ([]indexer.RankedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.indexes[id]; !ok {
		return nil, notFound(id)
	}
	f.lastID, f.lastText = id, text
	return f.hits, f.queryErr
}

func (f *fakeIndexes) QueryActive(_ context.Context, text string) ([]indexer.RankedRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active == "" {
		return nil, semerr.New(semerr.CodeIndexerNoActiveIndex, "no active index")
	}
	f.lastID, f.lastText = f.active, text
	return f.hits, f.queryErr
}

type fakeSync struct {
	mu        sync.Mutex
	triggered []string
}

func (f *fakeSync) TriggerSync(_ context.Context, id string) error {
	if id == "missing" {
		return notFound(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggered = append(f.triggered, id)
	return nil
}

type fakeRecords struct {
	mu      sync.Mutex
	records map[string]*store.Record
	changed [][]string
}

func (f *fakeRecords) Put(_ context.Context, rec *store.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.UpdatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id string) (*store.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, semerr.New(semerr.CodeStoreRecordGetNotFound, "record not found")
	}
	return rec, nil
}

func (f *fakeRecords) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return semerr.New(semerr.CodeStoreRecordGetNotFound, "record not found")
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRecords) MarkChanged(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changed = append(f.changed, ids)
	return nil
}

type fakeHealth map[string]health.Metrics

func (f fakeHealth) HealthSnapshot() map[string]health.Metrics { return f }

// --- harness ---

type harness struct {
	srv     *server.Server
	indexes *fakeIndexes
	sync    *fakeSync
	records *fakeRecords
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		indexes: newFakeIndexes(),
		sync:    &fakeSync{},
		records: &fakeRecords{records: map[string]*store.Record{}},
	}

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	svc, err := server.NewServices(h.indexes, h.sync, h.records, fakeHealth{
		"openai": {Available: true},
		"google": {Available: false, FailureCount: 2},
	})
	require.NoError(t, err)
	srv.RegisterServices(svc)

	h.srv = srv
	return h
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// --- tests ---

func TestNew_RequiresListenAddr(t *testing.T) {
	_, err := server.New(server.Config{})
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeServerConfigInvalid))
}

func TestNewServices_Validation(t *testing.T) {
	_, err := server.NewServices(nil, &fakeSync{}, &fakeRecords{})
	assert.Error(t, err)
	_, err = server.NewServices(newFakeIndexes(), nil, &fakeRecords{})
	assert.Error(t, err)
	_, err = server.NewServices(newFakeIndexes(), &fakeSync{}, nil)
	assert.Error(t, err)
	_, err = server.NewServices(newFakeIndexes(), &fakeSync{}, &fakeRecords{}, fakeHealth{}, fakeHealth{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, w)["status"])
}

func TestIndexLifecycle(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/indexes",
		`{"name":"articles","provider":"sqlitevec","provider_config":{"model":"text-embedding-3-small"}}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[server.IndexSummary](t, w)
	assert.Equal(t, "idx-new", created.ID)
	assert.Equal(t, "text-embedding-3-small", created.ProviderConfig["model"])

	w = h.do(t, http.MethodPost, "/api/v1/indexes", `{"name":"articles","provider":"sqlitevec"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/indexes", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Indexes []server.IndexSummary `json:"indexes"`
	}](t, w)
	assert.Len(t, list.Indexes, 2)

	w = h.do(t, http.MethodGet, "/api/v1/indexes/active", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/indexes/idx-new/activate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[indexer.Status](t, w).Active)

	w = h.do(t, http.MethodGet, "/api/v1/indexes/active", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idx-new", decode[indexer.Status](t, w).IndexID)

	w = h.do(t, http.MethodPost, "/api/v1/indexes/idx-new/deactivate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[indexer.Status](t, w).Active)

	w = h.do(t, http.MethodDelete, "/api/v1/indexes/idx-new", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/indexes/idx-new", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateIndex_RequiresName(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/indexes", `{"name":"","provider":"sqlitevec"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSyncIndex(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/indexes/idx-1/sync", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"idx-1"}, h.sync.triggered)

	w = h.do(t, http.MethodPost, "/api/v1/indexes/missing/sync", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	h.indexes.hits = []indexer.RankedRecord{
		{Record: &store.Record{ID: "r2", Title: "Second", Ready: true}, Score: 0.9},
		{Record: &store.Record{ID: "r1", Title: "First", Ready: true}, Score: 0.4},
	}

	w := h.do(t, http.MethodPost, "/api/v1/search", `{"query":"hello"}`)
	assert.Equal(t, http.StatusNotFound, w.Code, "no active index")

	require.NoError(t, h.indexes.Activate(context.Background(), "idx-1"))

	w = h.do(t, http.MethodPost, "/api/v1/search", `{"query":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[struct {
		Results []server.SearchHit `json:"results"`
	}](t, w)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "r2", res.Results[0].Record.ID)
	assert.InDelta(t, 0.9, res.Results[0].Score, 1e-9)
	assert.Equal(t, "hello", h.indexes.lastText)

	w = h.do(t, http.MethodPost, "/api/v1/search", `{"query":"hi","index_id":"idx-1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "idx-1", h.indexes.lastID)

	w = h.do(t, http.MethodPost, "/api/v1/search", `{"query":""}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSearch_EmptyResultsIsArray(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.indexes.Activate(context.Background(), "idx-1"))

	w := h.do(t, http.MethodPost, "/api/v1/search", `{"query":"nothing"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results":[]}`, strings.TrimSpace(stripSchema(t, w.Body.Bytes())))
}

func TestSearch_UpstreamFailureHidesDetails(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.indexes.Activate(context.Background(), "idx-1"))
	h.indexes.queryErr = semerr.Wrap(errors.New("api key sk-secret rejected"),
		semerr.CodeVectorUpstreamFailure, "embedding query")

	w := h.do(t, http.MethodPost, "/api/v1/search", `{"query":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "sk-secret")
}

func TestRecords(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPut, "/api/v1/records/r1", `{"title":"Hello","body":"World","ready":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[server.RecordDetail](t, w)
	assert.Equal(t, "r1", rec.ID)
	assert.True(t, rec.Ready)
	assert.False(t, rec.UpdatedAt.IsZero())

	w = h.do(t, http.MethodGet, "/api/v1/records/r1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello", decode[server.RecordDetail](t, w).Title)

	w = h.do(t, http.MethodPut, "/api/v1/records/r2", `{"ready":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "ready record without text")

	w = h.do(t, http.MethodDelete, "/api/v1/records/r1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodDelete, "/api/v1/records/r1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMarkStale(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/records/stale", `{"ids":["a","b"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, [][]string{{"a", "b"}}, h.records.changed)

	w = h.do(t, http.MethodPost, "/api/v1/records/stale", `{"ids":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestEmbedders(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/embedders", "")
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Embedders []server.EmbedderHealthDetail `json:"embedders"`
	}](t, w)
	require.Len(t, res.Embedders, 2)
	assert.Equal(t, "google", res.Embedders[0].Embedder)
	assert.False(t, res.Embedders[0].Available)
	assert.Equal(t, int64(2), res.Embedders[0].FailureCount)
	assert.True(t, res.Embedders[1].Available)
}

func TestEmbedders_NotRegisteredWithoutService(t *testing.T) {
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	svc, err := server.NewServices(newFakeIndexes(), &fakeSync{}, &fakeRecords{})
	require.NoError(t, err)
	srv.RegisterServices(svc)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/embedders", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOpenAPIListsRoutes(t *testing.T) {
	h := newHarness(t)

	doc := h.srv.API().OpenAPI()
	for _, path := range []string{
		"/health",
		"/api/v1/indexes",
		"/api/v1/indexes/{id}/sync",
		"/api/v1/search",
		"/api/v1/records/{id}",
		"/api/v1/records/stale",
	} {
		assert.Contains(t, doc.Paths, path)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	h := newHarness(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

// stripSchema drops the $schema link huma adds to response bodies.
func stripSchema(t *testing.T, body []byte) string {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(body, &m))
	delete(m, "$schema")
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return string(out)
}

func TestStart_ListensOnConfiguredAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv, err := server.New(server.Config{ListenAddr: addr})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestStart_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	srv, err := server.New(server.Config{ListenAddr: ln.Addr().String()})
	require.NoError(t, err)

	err = srv.Start(context.Background())
	require.Error(t, err)
	assert.True(t, semerr.HasCode(err, semerr.CodeServerStartFailure))
}

func TestMetrics_MountedWhenConfigured(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("semdex_up 1\n"))
	})
	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0", Metrics: metrics})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "semdex_up 1\n", w.Body.String())

	plain, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	w = httptest.NewRecorder()
	plain.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
