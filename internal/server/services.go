// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"time"

	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/sigil-dev/semdex/pkg/health"
)

// IndexService manages indexes and answers queries. *indexer.Engine
// satisfies it.
type IndexService interface {
	CreateIndex(ctx context.Context, params indexer.CreateIndexParams) (*store.Index, error)
	ListIndexes(ctx context.Context) ([]*store.Index, error)
	Status(ctx context.Context, indexID string) (*indexer.Status, error)
	ActiveStatus(ctx context.Context) (*indexer.Status, error)
	Activate(ctx context.Context, indexID string) error
	Deactivate(ctx context.Context, indexID string) error
	Delete(ctx context.Context, indexID string) error
	Query(ctx context.Context, indexID, text string) ([]indexer.RankedRecord, error)
	QueryActive(ctx context.Context, text string) ([]indexer.RankedRecord, error)
}

// SyncTrigger starts a sync without waiting for it.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, indexID string) error
}

// RecordService writes canonical records. *records.Service satisfies it.
type RecordService interface {
	Put(ctx context.Context, rec *store.Record) error
	Get(ctx context.Context, id string) (*store.Record, error)
	Delete(ctx context.Context, id string) error
	MarkChanged(ctx context.Context, ids []string) error
}

// EmbedderHealth reports embedder health. Optional.
type EmbedderHealth interface {
	HealthSnapshot() map[string]health.Metrics
}

// Services holds dependencies injected into route handlers.
// Use NewServices to ensure all required services are provided.
type Services struct {
	indexes   IndexService
	sync      SyncTrigger
	records   RecordService
	embedders EmbedderHealth // optional; nil = embedder health endpoint unavailable
}

// NewServices creates a Services instance with validation.
func NewServices(indexes IndexService, sync SyncTrigger, records RecordService, embedders ...EmbedderHealth) (*Services, error) {
	if indexes == nil {
		return nil, semerr.New(semerr.CodeServerConfigInvalid, "index service is required")
	}
	if sync == nil {
		return nil, semerr.New(semerr.CodeServerConfigInvalid, "sync trigger is required")
	}
	if records == nil {
		return nil, semerr.New(semerr.CodeServerConfigInvalid, "record service is required")
	}
	if len(embedders) > 1 {
		return nil, semerr.New(semerr.CodeServerConfigInvalid, "at most one embedder health service may be supplied")
	}

	s := &Services{indexes: indexes, sync: sync, records: records}
	if len(embedders) == 1 {
		s.embedders = embedders[0]
	}
	return s, nil
}

// IndexSummary is the REST representation of an index.
type IndexSummary struct {
	ID             string         `json:"id" doc:"Index identifier"`
	Name           string         `json:"name" doc:"Unique index name"`
	Provider       string         `json:"provider" doc:"Vector provider name"`
	ProviderConfig map[string]any `json:"provider_config,omitempty" doc:"Provider options"`
	Active         bool           `json:"active" doc:"Whether queries and syncs target this index"`
	Indexing       bool           `json:"indexing" doc:"Whether a sync currently holds the index"`
	IndexedCount   int            `json:"indexed_count" doc:"Documents indexed after the last sync"`
	LastIndexedAt  *time.Time     `json:"last_indexed_at,omitempty" doc:"Completion time of the last sync"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toIndexSummary(idx *store.Index) IndexSummary {
	return IndexSummary{
		ID:             idx.ID,
		Name:           idx.Name,
		Provider:       idx.Provider,
		ProviderConfig: idx.ProviderConfig,
		Active:         idx.Active,
		Indexing:       idx.Indexing,
		IndexedCount:   idx.IndexedCount,
		LastIndexedAt:  idx.LastIndexedAt,
		CreatedAt:      idx.CreatedAt,
	}
}

// RecordDetail is the REST representation of a canonical record.
type RecordDetail struct {
	ID        string    `json:"id" doc:"Record identifier"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Ready     bool      `json:"ready" doc:"Only ready records are indexed"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toRecordDetail(rec *store.Record) RecordDetail {
	return RecordDetail{
		ID:        rec.ID,
		Title:     rec.Title,
		Body:      rec.Body,
		Ready:     rec.Ready,
		UpdatedAt: rec.UpdatedAt,
	}
}

// SearchHit is one ranked search result.
type SearchHit struct {
	Record RecordDetail `json:"record"`
	Score  float64      `json:"score" doc:"Provider similarity, higher is better"`
}

// EmbedderHealthDetail is the REST representation of an embedder's health.
type EmbedderHealthDetail struct {
	Embedder string `json:"embedder" doc:"Embedder name"`
	health.Metrics
}
