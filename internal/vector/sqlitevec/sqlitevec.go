// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package sqlitevec is a vector.Provider that embeds through a hosted
// embedder and stores vectors in local sqlite-vec tables, one per index.
package sqlitevec

import (
	"context"
	"regexp"

	"github.com/go-viper/mapstructure/v2"

	"github.com/sigil-dev/semdex/internal/embed"
	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/internal/vector"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Name is the provider name stored on indexes that use this backend.
const Name = "sqlitevec"

// Options is the per-index provider configuration. Zero fields fall back to
// the provider defaults.
type Options struct {
	Embedder   string `mapstructure:"embedder" json:"embedder,omitempty"`
	Model      string `mapstructure:"model" json:"model,omitempty"`
	Dimensions int    `mapstructure:"dimensions" json:"dimensions,omitempty"`
	Limit      int    `mapstructure:"limit" json:"limit,omitempty"`
}

// Provider implements vector.Provider on top of a store.VectorStore.
type Provider struct {
	vectors   store.VectorStore
	embedders *embed.Registry
	defaults  Options
}

var _ vector.Provider = (*Provider)(nil)

// New creates a Provider. defaults supplies any option an index leaves unset.
func New(vectors store.VectorStore, embedders *embed.Registry, defaults Options) *Provider {
	if defaults.Limit <= 0 {
		defaults.Limit = 10
	}
	return &Provider{vectors: vectors, embedders: embedders, defaults: defaults}
}

var unsafeTableChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

// TableName maps an index id onto a vector table name.
func TableName(indexID string) string {
	return unsafeTableChars.ReplaceAllString(indexID, "_")
}

// resolve decodes cfg.Options over the defaults.
func (p *Provider) resolve(cfg vector.Config) (Options, error) {
	if cfg.IndexID == "" {
		return Options{}, semerr.New(semerr.CodeVectorConfigInvalid, "sqlitevec: index id is required")
	}

	opts := p.defaults
	if len(cfg.Options) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &opts,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return Options{}, semerr.Wrapf(err, semerr.CodeVectorConfigInvalid, "sqlitevec: building options decoder")
		}
		if err := dec.Decode(cfg.Options); err != nil {
			return Options{}, semerr.Wrap(err, semerr.CodeVectorConfigInvalid, "sqlitevec: decoding index options",
				semerr.FieldIndexID(cfg.IndexID))
		}
	}

	if opts.Embedder == "" || opts.Model == "" {
		return Options{}, semerr.New(semerr.CodeVectorConfigInvalid, "sqlitevec: embedder and model are required",
			semerr.FieldIndexID(cfg.IndexID))
	}
	if opts.Dimensions < 0 || opts.Limit <= 0 {
		return Options{}, semerr.Errorf(semerr.CodeVectorConfigInvalid,
			"sqlitevec: dimensions must be >= 0 and limit > 0, got %d and %d", opts.Dimensions, opts.Limit)
	}
	return opts, nil
}

func (p *Provider) embed(ctx context.Context, opts Options, texts []string) ([][]float32, error) {
	e, err := p.embedders.Get(opts.Embedder)
	if err != nil {
		return nil, err
	}
	vecs, err := e.Embed(ctx, opts.Model, texts, opts.Dimensions)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeVectorUpstreamFailure, "sqlitevec: embedding via %s", opts.Embedder)
	}
	if len(vecs) != len(texts) {
		return nil, semerr.Errorf(semerr.CodeVectorUpstreamFailure,
			"sqlitevec: %s returned %d vectors for %d texts", opts.Embedder, len(vecs), len(texts))
	}
	return vecs, nil
}

// EmbedAndUpsert embeds every document in one call and stores the vectors
// under the document ids.
func (p *Provider) EmbedAndUpsert(ctx context.Context, docs []vector.Document, cfg vector.Config) error {
	opts, err := p.resolve(cfg)
	if err != nil || len(docs) == 0 {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	vecs, err := p.embed(ctx, opts, texts)
	if err != nil {
		return err
	}

	entries := make([]store.VectorEntry, len(docs))
	for i, d := range docs {
		entries[i] = store.VectorEntry{ID: d.ID, Embedding: vecs[i]}
	}
	return p.vectors.Upsert(ctx, TableName(cfg.IndexID), entries)
}

func (p *Provider) Delete(ctx context.Context, ids []string, cfg vector.Config) error {
	if cfg.IndexID == "" {
		return semerr.New(semerr.CodeVectorConfigInvalid, "sqlitevec: index id is required")
	}
	return p.vectors.Delete(ctx, TableName(cfg.IndexID), ids)
}

// EmbedAndSearch embeds query and returns up to Limit matches, nearest first.
func (p *Provider) EmbedAndSearch(ctx context.Context, query string, cfg vector.Config) ([]vector.Match, error) {
	opts, err := p.resolve(cfg)
	if err != nil {
		return nil, err
	}

	vecs, err := p.embed(ctx, opts, []string{query})
	if err != nil {
		return nil, err
	}

	results, err := p.vectors.Search(ctx, TableName(cfg.IndexID), vecs[0], opts.Limit)
	if err != nil {
		return nil, err
	}

	matches := make([]vector.Match, len(results))
	for i, r := range results {
		matches[i] = vector.Match{ID: r.ID, Score: 1 / (1 + r.Distance)}
	}
	return matches, nil
}

func (p *Provider) DropIndex(ctx context.Context, cfg vector.Config) error {
	if cfg.IndexID == "" {
		return semerr.New(semerr.CodeVectorConfigInvalid, "sqlitevec: index id is required")
	}
	return p.vectors.DropTable(ctx, TableName(cfg.IndexID))
}
