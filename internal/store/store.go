// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"time"
)

// Catalog groups the relational stores that share one database: indexes,
// their items and the canonical records they point at.
type Catalog interface {
	Indexes() IndexStore
	Items() ItemStore
	Records() RecordStore
	Close() error
}

// IndexStore manages index rows, activation and the indexing lease.
type IndexStore interface {
	CreateIndex(ctx context.Context, idx *Index) error
	GetIndex(ctx context.Context, id string) (*Index, error)
	// GetActiveIndex returns a not_found error when no index is active.
	GetActiveIndex(ctx context.Context) (*Index, error)
	ListIndexes(ctx context.Context) ([]*Index, error)
	// ActivateIndex deactivates every other index and activates id in one
	// transaction.
	ActivateIndex(ctx context.Context, id string) error
	DeactivateIndex(ctx context.Context, id string) error
	DeleteIndex(ctx context.Context, id string) error

	// AcquireLease sets the indexing flag for owner when it is clear or the
	// previous lease has expired. It reports whether the lease was taken.
	AcquireLease(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) (bool, error)
	// RenewLease extends a lease still held by owner.
	RenewLease(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) error
	// ReleaseLease clears the indexing flag if owner still holds it.
	ReleaseLease(ctx context.Context, id, owner string) error
	// CompleteSync records the sync outcome and clears the lease held by owner.
	CompleteSync(ctx context.Context, id, owner string, indexedCount int, at time.Time) error
}

// ItemStore manages the per-index bookkeeping table.
type ItemStore interface {
	// ListOrphans returns up to limit items whose record has been deleted.
	ListOrphans(ctx context.Context, indexID string, limit int) ([]*IndexItem, error)
	// ListPendingRecordIDs returns the record ids of STALE items whose record
	// still exists, plus items left INDEXING by an interrupted sync.
	ListPendingRecordIDs(ctx context.Context, indexID string) ([]string, error)
	// MarkIndexing upserts items for recordIDs to INDEXING, creating rows
	// for records that have none. Records that no longer exist are skipped.
	MarkIndexing(ctx context.Context, indexID string, recordIDs []string) ([]*IndexItem, error)
	// MarkIndexed promotes items that are still INDEXING to INDEXED.
	MarkIndexed(ctx context.Context, itemIDs []string) error
	// MarkStale flags every item, in any index, that references recordIDs.
	MarkStale(ctx context.Context, recordIDs []string) (int64, error)
	DeleteItems(ctx context.Context, itemIDs []string) error
	// ResolveExternalIDs maps external ids of indexID to record ids, skipping
	// unknown ids and orphans.
	ResolveExternalIDs(ctx context.Context, indexID string, externalIDs []string) (map[string]string, error)
	CountByStatus(ctx context.Context, indexID string) (ItemCounts, error)
	ListItems(ctx context.Context, indexID string) ([]*IndexItem, error)
}

// RecordStore is the canonical record store consulted by the engine.
type RecordStore interface {
	PutRecord(ctx context.Context, rec *Record) error
	GetRecord(ctx context.Context, id string) (*Record, error)
	// GetReadyRecords bulk-fetches ready records; ids that do not resolve
	// are absent from the result.
	GetReadyRecords(ctx context.Context, ids []string) (map[string]*Record, error)
	// DeleteRecord removes the record; items referencing it become orphans.
	DeleteRecord(ctx context.Context, id string) error
	// ListUnindexedIDs returns ready records that have no item in indexID.
	ListUnindexedIDs(ctx context.Context, indexID string) ([]string, error)
}

// VectorStore manages embedding tables and nearest-neighbour search.
// Each table holds the vectors of one index.
type VectorStore interface {
	Upsert(ctx context.Context, table string, entries []VectorEntry) error
	Search(ctx context.Context, table string, query []float32, k int) ([]VectorResult, error)
	Delete(ctx context.Context, table string, ids []string) error
	DropTable(ctx context.Context, table string) error
	Close() error
}
