// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlitevec_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/semdex/internal/embed"
	"github.com/sigil-dev/semdex/internal/store/sqlite"
	"github.com/sigil-dev/semdex/internal/vector"
	"github.com/sigil-dev/semdex/internal/vector/sqlitevec"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/sigil-dev/semdex/pkg/health"
)

// keywordEmbedder maps text onto a fixed 3-axis space by keyword.
type keywordEmbedder struct {
	calls    int
	lastDims int
	fail     bool
}

func (k *keywordEmbedder) Name() string { return "keyword" }

func (k *keywordEmbedder) Health() health.Metrics { return health.Metrics{Available: true} }

func (k *keywordEmbedder) Embed(_ context.Context, _ string, texts []string, dims int) ([][]float32, error) {
	k.calls++
	k.lastDims = dims
	if k.fail {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := []float32{0.01, 0.01, 0.01}
		if strings.Contains(t, "cat") {
			v[0] = 1
		}
		if strings.Contains(t, "dog") {
			v[1] = 1
		}
		if strings.Contains(t, "fish") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

func newProvider(t *testing.T) (*sqlitevec.Provider, *keywordEmbedder) {
	t.Helper()
	vs, err := sqlite.NewVectorStore(filepath.Join(t.TempDir(), "vectors.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vs.Close() })

	emb := &keywordEmbedder{}
	reg := embed.NewRegistry()
	require.NoError(t, reg.Register(emb))

	p := sqlitevec.New(vs, reg, sqlitevec.Options{Embedder: "keyword", Model: "kw-1", Limit: 2})
	return p, emb
}

func TestProvider_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	p, emb := newProvider(t)
	cfg := vector.Config{IndexID: "0b6f-idx"}

	err := p.EmbedAndUpsert(ctx, []vector.Document{
		{ID: "e-cat", Text: "a cat sat"},
		{ID: "e-dog", Text: "a dog ran"},
		{ID: "e-fish", Text: "a fish swam"},
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, emb.calls, "one embedding call per batch")

	matches, err := p.EmbedAndSearch(ctx, "cat", cfg)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "e-cat", matches[0].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.LessOrEqual(t, matches[0].Score, 1.0)
}

func TestProvider_IndexOptionsOverrideDefaults(t *testing.T) {
	ctx := context.Background()
	p, emb := newProvider(t)
	cfg := vector.Config{IndexID: "idx", Options: map[string]any{"limit": "1", "dimensions": 3}}

	require.NoError(t, p.EmbedAndUpsert(ctx, []vector.Document{
		{ID: "a", Text: "cat"},
		{ID: "b", Text: "dog"},
	}, cfg))
	assert.Equal(t, 3, emb.lastDims)

	matches, err := p.EmbedAndSearch(ctx, "dog", cfg)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)
}

func TestProvider_DeleteAndDrop(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)
	cfg := vector.Config{IndexID: "idx"}

	require.NoError(t, p.EmbedAndUpsert(ctx, []vector.Document{
		{ID: "a", Text: "cat"},
		{ID: "b", Text: "dog"},
	}, cfg))

	require.NoError(t, p.Delete(ctx, []string{"a"}, cfg))
	matches, err := p.EmbedAndSearch(ctx, "cat", cfg)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b", matches[0].ID)

	require.NoError(t, p.DropIndex(ctx, cfg))
	matches, err = p.EmbedAndSearch(ctx, "cat", cfg)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestProvider_EmbedFailure(t *testing.T) {
	p, emb := newProvider(t)
	emb.fail = true

	err := p.EmbedAndUpsert(context.Background(), []vector.Document{{ID: "a", Text: "cat"}}, vector.Config{IndexID: "idx"})
	require.Error(t, err)
	assert.True(t, semerr.IsUpstreamFailure(err))
}

func TestProvider_InvalidConfig(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	tests := []struct {
		name string
		cfg  vector.Config
	}{
		{name: "missing index id", cfg: vector.Config{}},
		{name: "unknown option", cfg: vector.Config{IndexID: "idx", Options: map[string]any{"metric": "cosine"}}},
		{name: "negative limit", cfg: vector.Config{IndexID: "idx", Options: map[string]any{"limit": -1}}},
		{name: "unknown embedder", cfg: vector.Config{IndexID: "idx", Options: map[string]any{"embedder": "nope"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.EmbedAndSearch(ctx, "cat", tt.cfg)
			require.Error(t, err)
		})
	}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "0b6f_4a2c_idx", sqlitevec.TableName("0b6f-4a2c.idx"))
}
