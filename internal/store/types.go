// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"strings"
	"time"
)

// --- Index types ---

// Index is one configured search index. At most one Index is active at a
// time; Indexing is held for the duration of exactly one in-flight sync.
type Index struct {
	ID             string
	Name           string
	Active         bool
	Indexing       bool
	Provider       string
	ProviderConfig map[string]any
	IndexedCount   int
	LastIndexedAt  *time.Time
	// LeaseOwner and LeaseExpiresAt describe who holds Indexing and until
	// when. An expired lease may be taken over by another engine.
	LeaseOwner     string
	LeaseExpiresAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// --- Index item types ---

// ItemStatus is the indexing state of a single IndexItem.
type ItemStatus string

const (
	ItemStatusIndexing ItemStatus = "INDEXING"
	ItemStatusIndexed  ItemStatus = "INDEXED"
	ItemStatusStale    ItemStatus = "STALE"
)

// IndexItem links a canonical record to its document in the vector provider.
// An empty RecordID means the record no longer exists upstream and the item
// is an orphan waiting for cleanup.
type IndexItem struct {
	ID         string
	IndexID    string
	ExternalID string
	RecordID   string
	Status     ItemStatus
	UpdatedAt  time.Time
}

// Orphaned reports whether the backing record has been deleted.
func (i IndexItem) Orphaned() bool {
	return i.RecordID == ""
}

// ItemCounts summarises the items of one index by status.
type ItemCounts struct {
	Indexing int `json:"indexing" yaml:"indexing"`
	Indexed  int `json:"indexed" yaml:"indexed"`
	Stale    int `json:"stale" yaml:"stale"`
	Orphaned int `json:"orphaned" yaml:"orphaned"`
}

// --- Record types ---

// Record is a canonical content record. Only ready records are indexed.
type Record struct {
	ID        string
	Title     string
	Body      string
	Ready     bool
	UpdatedAt time.Time
}

// EmbeddingText returns the text handed to the embedding model.
func (r Record) EmbeddingText() string {
	title := strings.TrimSpace(r.Title)
	body := strings.TrimSpace(r.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n\n" + body
	}
}

// --- Vector types ---

// VectorEntry is one embedding to be stored under id.
type VectorEntry struct {
	ID        string
	Embedding []float32
}

// VectorResult is a single nearest-neighbour hit. Distance is the raw
// distance reported by the backend (lower = more similar).
type VectorResult struct {
	ID       string
	Distance float64
}
