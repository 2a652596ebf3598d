// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package indexer reconciles vector indexes with the canonical record store
// and answers queries against them.
package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/internal/vector"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

const (
	DefaultBatchSize = 50
	DefaultLeaseTTL  = 5 * time.Minute
)

// Config tunes the engine.
type Config struct {
	BatchSize int
	LeaseTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = DefaultLeaseTTL
	}
	return c
}

// ProviderResolver looks up a vector provider by the name stored on an index.
type ProviderResolver interface {
	Get(name string) (vector.Provider, error)
}

// TextFilter rewrites the text of a record before it is embedded. An error
// withholds the record from the index.
type TextFilter interface {
	Filter(text string) (string, error)
}

// SyncObserver is told the outcome of every Sync call.
type SyncObserver interface {
	ObserveSync(indexID string, res *SyncResult, err error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithOwner sets the lease owner id. Defaults to a random uuid per engine.
func WithOwner(owner string) Option {
	return func(e *Engine) { e.owner = owner }
}

// WithClock overrides the time source used for leases and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTextFilter screens embedding text, for example to redact credentials.
func WithTextFilter(f TextFilter) Option {
	return func(e *Engine) { e.filter = f }
}

// WithSyncObserver reports sync outcomes, for example to metrics.
func WithSyncObserver(o SyncObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// Engine owns sync, query and lifecycle operations for indexes.
type Engine struct {
	indexes   store.IndexStore
	items     store.ItemStore
	records   store.RecordStore
	providers ProviderResolver
	cfg       Config
	owner     string
	now       func() time.Time
	filter    TextFilter
	observer  SyncObserver

	lanes      *LanePool
	background sync.WaitGroup
}

// New creates an Engine over the catalog's stores.
func New(cat store.Catalog, providers ProviderResolver, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		indexes:   cat.Indexes(),
		items:     cat.Items(),
		records:   cat.Records(),
		providers: providers,
		cfg:       cfg.withDefaults(),
		owner:     uuid.NewString(),
		now:       time.Now,
		lanes:     NewLanePool(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Owner returns the id this engine uses when taking index leases.
func (e *Engine) Owner() string { return e.owner }

// Close waits for background syncs started by Activate or
// SyncInBackground, then shuts down the per-index lanes.
func (e *Engine) Close() {
	e.background.Wait()
	e.lanes.Close()
}

// onLane runs fn on the lane of indexID.
func (e *Engine) onLane(ctx context.Context, indexID string, fn func(context.Context) error) error {
	lane, err := e.lanes.Get(indexID)
	if err != nil {
		return err
	}
	return lane.Submit(ctx, fn)
}

func (e *Engine) providerFor(idx *store.Index) (vector.Provider, vector.Config, error) {
	p, err := e.providers.Get(idx.Provider)
	if err != nil {
		return nil, vector.Config{}, err
	}
	return p, vector.Config{IndexID: idx.ID, Options: idx.ProviderConfig}, nil
}

// CreateIndexParams describes a new index.
type CreateIndexParams struct {
	Name           string
	Provider       string
	ProviderConfig map[string]any
}

// CreateIndex registers a new, inactive index.
func (e *Engine) CreateIndex(ctx context.Context, params CreateIndexParams) (*store.Index, error) {
	if _, err := e.providers.Get(params.Provider); err != nil {
		return nil, err
	}

	idx := &store.Index{
		ID:             uuid.NewString(),
		Name:           params.Name,
		Provider:       params.Provider,
		ProviderConfig: params.ProviderConfig,
	}
	if err := e.indexes.CreateIndex(ctx, idx); err != nil {
		return nil, err
	}

	slog.Info("index created", "index_id", idx.ID, "name", idx.Name, "provider", idx.Provider)
	return idx, nil
}

func (e *Engine) ListIndexes(ctx context.Context) ([]*store.Index, error) {
	return e.indexes.ListIndexes(ctx)
}

func (e *Engine) GetIndex(ctx context.Context, indexID string) (*store.Index, error) {
	return e.indexes.GetIndex(ctx, indexID)
}

// Activate makes indexID the only active index and starts a background sync
// of it. Sync failures are logged, not returned.
func (e *Engine) Activate(ctx context.Context, indexID string) error {
	if err := e.indexes.ActivateIndex(ctx, indexID); err != nil {
		return err
	}
	slog.Info("index activated", "index_id", indexID)

	e.SyncInBackground(ctx, indexID)
	return nil
}

// SyncInBackground starts Sync of indexID on its own goroutine and returns.
// The run outlives ctx; Close waits for it. Failures are logged.
func (e *Engine) SyncInBackground(ctx context.Context, indexID string) {
	bg := context.WithoutCancel(ctx)
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		if _, err := e.Sync(bg, indexID); err != nil {
			slog.Error("background sync failed", "index_id", indexID, "error", err)
		}
	}()
}

func (e *Engine) Deactivate(ctx context.Context, indexID string) error {
	if err := e.indexes.DeactivateIndex(ctx, indexID); err != nil {
		return err
	}
	slog.Info("index deactivated", "index_id", indexID)
	return nil
}

// Delete drops the provider's copy of the index, best-effort, then deletes
// the index row and its items.
func (e *Engine) Delete(ctx context.Context, indexID string) error {
	err := e.onLane(ctx, indexID, func(ctx context.Context) error {
		idx, err := e.indexes.GetIndex(ctx, indexID)
		if err != nil {
			return err
		}

		if p, cfg, err := e.providerFor(idx); err != nil {
			slog.Warn("deleting index without provider cleanup", "index_id", indexID, "error", err)
		} else if err := p.DropIndex(ctx, cfg); err != nil {
			slog.Warn("dropping provider index failed", "index_id", indexID, "provider", idx.Provider, "error", err)
		}

		return e.indexes.DeleteIndex(ctx, indexID)
	})
	if err != nil && !semerr.IsNotFound(err) {
		return err
	}

	e.lanes.Remove(indexID)
	if err != nil {
		return err
	}
	slog.Info("index deleted", "index_id", indexID)
	return nil
}

// MarkRecordsAsStale flags every item referencing recordIDs, in any index,
// for re-embedding on the next sync.
func (e *Engine) MarkRecordsAsStale(ctx context.Context, recordIDs []string) (int64, error) {
	n, err := e.items.MarkStale(ctx, recordIDs)
	if err != nil {
		return 0, err
	}
	slog.Debug("records marked stale", "records", len(recordIDs), "items", n)
	return n, nil
}

// Status is a point-in-time view of an index.
type Status struct {
	IndexID        string           `json:"index_id" yaml:"index_id"`
	Name           string           `json:"name" yaml:"name"`
	Provider       string           `json:"provider" yaml:"provider"`
	Active         bool             `json:"active" yaml:"active"`
	Indexing       bool             `json:"indexing" yaml:"indexing"`
	IndexedCount   int              `json:"indexed_count" yaml:"indexed_count"`
	LastIndexedAt  *time.Time       `json:"last_indexed_at,omitempty" yaml:"last_indexed_at,omitempty"`
	LeaseOwner     string           `json:"lease_owner,omitempty" yaml:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time       `json:"lease_expires_at,omitempty" yaml:"lease_expires_at,omitempty"`
	Items          store.ItemCounts `json:"items" yaml:"items"`
}

func (e *Engine) Status(ctx context.Context, indexID string) (*Status, error) {
	idx, err := e.indexes.GetIndex(ctx, indexID)
	if err != nil {
		return nil, err
	}
	counts, err := e.items.CountByStatus(ctx, indexID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		IndexID:       idx.ID,
		Name:          idx.Name,
		Provider:      idx.Provider,
		Active:        idx.Active,
		Indexing:      idx.Indexing,
		IndexedCount:  idx.IndexedCount,
		LastIndexedAt: idx.LastIndexedAt,
		Items:         counts,
	}
	if idx.Indexing {
		st.LeaseOwner = idx.LeaseOwner
		exp := idx.LeaseExpiresAt
		st.LeaseExpiresAt = &exp
	}
	return st, nil
}

// ActiveStatus reports on the active index.
func (e *Engine) ActiveStatus(ctx context.Context) (*Status, error) {
	idx, err := e.activeIndex(ctx)
	if err != nil {
		return nil, err
	}
	return e.Status(ctx, idx.ID)
}

func (e *Engine) activeIndex(ctx context.Context) (*store.Index, error) {
	idx, err := e.indexes.GetActiveIndex(ctx)
	if semerr.IsNotFound(err) {
		// A fresh error: wrapping would keep the store's not_found code.
		return nil, semerr.New(semerr.CodeIndexerNoActiveIndex, "no active index")
	}
	return idx, err
}
