// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package vector defines the pluggable backends that embed documents, store
// their vectors and answer similarity queries for an index.
package vector

import "context"

// Document is one unit of text to embed. ID is the index item's external id.
type Document struct {
	ID   string
	Text string
}

// Match is a search hit. Higher scores are more similar.
type Match struct {
	ID    string
	Score float64
}

// Config is handed to every provider call. Options is the index's opaque
// provider configuration.
type Config struct {
	IndexID string
	Options map[string]any
}

// Provider embeds and stores documents for one or more indexes. The engine
// never computes vectors itself.
type Provider interface {
	EmbedAndUpsert(ctx context.Context, docs []Document, cfg Config) error
	Delete(ctx context.Context, ids []string, cfg Config) error
	EmbedAndSearch(ctx context.Context, query string, cfg Config) ([]Match, error)
	DropIndex(ctx context.Context, cfg Config) error
}
