// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listeningLine = regexp.MustCompile(`semdex listening on (\S+)`)

func TestServe_EndToEnd(t *testing.T) {
	setupEnv(t)
	t.Setenv("SEMDEX_INDEXING_DEBOUNCE", "50ms")
	t.Setenv("SEMDEX_INDEXING_MAX_DEBOUNCE", "200ms")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := NewRootCmd()
	out := &syncBuffer{}
	root.SetOut(out)
	root.SetErr(&syncBuffer{})
	root.SetArgs([]string{"serve", "--listen", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	var addr string
	require.Eventually(t, func() bool {
		m := listeningLine.FindStringSubmatch(out.String())
		if m == nil {
			return false
		}
		addr = m[1]
		return true
	}, 10*time.Second, 20*time.Millisecond)
	base := "http://" + addr

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var idx struct {
		ID string `json:"id"`
	}
	doJSON(t, http.MethodPost, base+"/api/v1/indexes", `{"name":"docs","provider":"sqlitevec"}`, http.StatusCreated, &idx)
	doJSON(t, http.MethodPost, base+"/api/v1/indexes/"+idx.ID+"/activate", "", http.StatusOK, nil)

	// A record write reaches the scheduler through the event bus.
	doJSON(t, http.MethodPut, base+"/api/v1/records/r1", `{"title":"cat care","ready":true}`, http.StatusOK, nil)

	require.Eventually(t, func() bool {
		status, raw, err := call(http.MethodGet, base+"/api/v1/indexes/active", "")
		if err != nil || status != http.StatusOK {
			return false
		}
		var st struct {
			IndexedCount int `json:"indexed_count"`
		}
		return json.Unmarshal(raw, &st) == nil && st.IndexedCount == 1
	}, 10*time.Second, 50*time.Millisecond)

	var found struct {
		Results []struct {
			Record struct {
				ID string `json:"id"`
			} `json:"record"`
		} `json:"results"`
	}
	doJSON(t, http.MethodPost, base+"/api/v1/search", `{"query":"cat"}`, http.StatusOK, &found)
	require.Len(t, found.Results, 1)
	assert.Equal(t, "r1", found.Results[0].Record.ID)

	status, raw, err := call(http.MethodGet, base+"/metrics", "")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), `semdex_indexer_syncs_total{index="`+idx.ID+`",result="completed"}`)

	var embedders struct {
		Embedders []struct {
			Embedder string `json:"embedder"`
		} `json:"embedders"`
	}
	doJSON(t, http.MethodGet, base+"/api/v1/embedders", "", http.StatusOK, &embedders)
	require.Len(t, embedders.Embedders, 1)
	assert.Equal(t, "openai", embedders.Embedders[0].Embedder)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func doJSON(t *testing.T, method, url, body string, wantStatus int, dest any) {
	t.Helper()
	status, raw, err := call(method, url, body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, status, "%s %s: %s", method, url, raw)
	if dest != nil {
		require.NoError(t, json.Unmarshal(raw, dest))
	}
}

// call performs one request without failing the test, for use inside
// polling conditions.
func call(method, url, body string) (int, []byte, error) {
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, err
}
