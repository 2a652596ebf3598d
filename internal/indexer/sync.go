// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package indexer

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/internal/vector"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// SyncResult summarises one sync run.
type SyncResult struct {
	IndexID string `json:"index_id" yaml:"index_id"`
	// Skipped is set when another owner held the index lease.
	Skipped        bool `json:"skipped" yaml:"skipped"`
	OrphansRemoved int  `json:"orphans_removed" yaml:"orphans_removed"`
	Discovered     int  `json:"discovered" yaml:"discovered"`
	Indexed        int  `json:"indexed" yaml:"indexed"`
	Missing        int  `json:"missing" yaml:"missing"`
	// Withheld counts records the text filter refused to embed.
	Withheld      int           `json:"withheld" yaml:"withheld"`
	FailedBatches int           `json:"failed_batches" yaml:"failed_batches"`
	IndexedCount  int           `json:"indexed_count" yaml:"indexed_count"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
}

// SyncActive syncs the active index. It returns a nil result when no index
// is active.
func (e *Engine) SyncActive(ctx context.Context) (*SyncResult, error) {
	idx, err := e.indexes.GetActiveIndex(ctx)
	if semerr.IsNotFound(err) {
		slog.Debug("sync requested with no active index")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Sync(ctx, idx.ID)
}

// Sync reconciles indexID with the ready records. Runs for the same index
// are serialised in-process and guarded by a lease across processes; a run
// that finds a live foreign lease returns Skipped without touching anything.
func (e *Engine) Sync(ctx context.Context, indexID string) (*SyncResult, error) {
	var res *SyncResult
	err := e.onLane(ctx, indexID, func(ctx context.Context) error {
		var err error
		res, err = e.sync(ctx, indexID)
		return err
	})
	if e.observer != nil {
		e.observer.ObserveSync(indexID, res, err)
	}
	return res, err
}

func (e *Engine) sync(ctx context.Context, indexID string) (*SyncResult, error) {
	started := e.now()
	res := &SyncResult{IndexID: indexID}

	idx, err := e.indexes.GetIndex(ctx, indexID)
	if err != nil {
		return nil, err
	}
	provider, cfg, err := e.providerFor(idx)
	if err != nil {
		return nil, err
	}

	acquired, err := e.indexes.AcquireLease(ctx, indexID, e.owner, e.now(), e.cfg.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		slog.Info("sync skipped, index lease held elsewhere", "index_id", indexID)
		res.Skipped = true
		return res, nil
	}

	syncCtx, cancel := context.WithCancelCause(ctx)
	stopRenewal := e.keepLease(syncCtx, cancel, indexID)
	completed := false
	defer func() {
		stopRenewal()
		cancel(nil)
		if completed {
			return
		}
		if err := e.indexes.ReleaseLease(context.WithoutCancel(ctx), indexID, e.owner); err != nil {
			slog.Error("releasing index lease failed", "index_id", indexID, "error", err)
		}
	}()

	if err := e.removeOrphans(syncCtx, provider, cfg, res); err != nil {
		return res, err
	}

	work, err := e.discover(syncCtx, indexID)
	if err != nil {
		return res, err
	}
	res.Discovered = len(work)

	for start := 0; start < len(work); start += e.cfg.BatchSize {
		if syncCtx.Err() != nil {
			return res, semerr.Wrapf(context.Cause(syncCtx), semerr.CodeIndexerSyncFailure, "sync of index %s interrupted", indexID)
		}
		batch := work[start:min(start+e.cfg.BatchSize, len(work))]
		if err := e.runBatch(syncCtx, provider, cfg, indexID, batch, res); err != nil {
			res.FailedBatches++
			slog.Error("sync batch failed", "index_id", indexID, "batch_start", start, "batch_size", len(batch), "error", err)
		}
	}

	counts, err := e.items.CountByStatus(syncCtx, indexID)
	if err != nil {
		return res, err
	}
	res.IndexedCount = counts.Indexed

	if err := e.indexes.CompleteSync(context.WithoutCancel(ctx), indexID, e.owner, counts.Indexed, e.now()); err != nil {
		return res, err
	}
	completed = true
	res.Duration = e.now().Sub(started)

	slog.Info("sync completed",
		"index_id", indexID,
		"discovered", res.Discovered,
		"indexed", res.Indexed,
		"missing", res.Missing,
		"withheld", res.Withheld,
		"orphans_removed", res.OrphansRemoved,
		"failed_batches", res.FailedBatches,
		"indexed_count", res.IndexedCount)
	return res, nil
}

// keepLease renews the lease every LeaseTTL/3 until the returned stop func
// is called. Losing the lease cancels ctx.
func (e *Engine) keepLease(ctx context.Context, cancel context.CancelCauseFunc, indexID string) (stop func()) {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(max(e.cfg.LeaseTTL/3, time.Millisecond))
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := e.indexes.RenewLease(ctx, indexID, e.owner, e.now(), e.cfg.LeaseTTL)
				if err == nil {
					continue
				}
				if semerr.IsConflict(err) {
					slog.Error("index lease lost, aborting sync", "index_id", indexID, "owner", e.owner)
					cancel(err)
					return
				}
				slog.Warn("renewing index lease failed", "index_id", indexID, "error", err)
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

// removeOrphans deletes items whose record is gone, batch by batch, until
// none remain. Provider failures are logged and do not stop the cleanup.
func (e *Engine) removeOrphans(ctx context.Context, provider vector.Provider, cfg vector.Config, res *SyncResult) error {
	for {
		orphans, err := e.items.ListOrphans(ctx, cfg.IndexID, e.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(orphans) == 0 {
			return nil
		}

		itemIDs, externalIDs := splitItems(orphans)
		if err := provider.Delete(ctx, externalIDs, cfg); err != nil {
			slog.Warn("deleting orphaned vectors failed", "index_id", cfg.IndexID, "count", len(externalIDs), "error", err)
		}
		if err := e.items.DeleteItems(ctx, itemIDs); err != nil {
			return err
		}
		res.OrphansRemoved += len(orphans)
	}
}

// discover returns the records to process: ready records with no item in
// the index, followed by records whose items are stale or were left
// INDEXING by an interrupted run.
func (e *Engine) discover(ctx context.Context, indexID string) ([]string, error) {
	fresh, err := e.records.ListUnindexedIDs(ctx, indexID)
	if err != nil {
		return nil, err
	}
	pending, err := e.items.ListPendingRecordIDs(ctx, indexID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(fresh)+len(pending))
	work := make([]string, 0, len(fresh)+len(pending))
	for _, ids := range [][]string{fresh, pending} {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			work = append(work, id)
		}
	}
	return work, nil
}

// runBatch isolates a batch so that a panic fails only that batch.
func (e *Engine) runBatch(ctx context.Context, provider vector.Provider, cfg vector.Config, indexID string, recordIDs []string, res *SyncResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync batch panic recovered", "index_id", indexID, "panic", r, "stack", string(debug.Stack()))
			err = semerr.Errorf(semerr.CodeIndexerBatchFailure, "batch panic: %v", r)
		}
	}()
	return e.processBatch(ctx, provider, cfg, indexID, recordIDs, res)
}

func (e *Engine) processBatch(ctx context.Context, provider vector.Provider, cfg vector.Config, indexID string, recordIDs []string, res *SyncResult) error {
	items, err := e.items.MarkIndexing(ctx, indexID, recordIDs)
	if err != nil {
		return err
	}

	records, err := e.records.GetReadyRecords(ctx, recordIDs)
	if err != nil {
		return err
	}

	var (
		dropped  []*store.IndexItem
		resolved []*store.IndexItem
		docs     []vector.Document
		withheld int
	)
	for _, item := range items {
		rec, ok := records[item.RecordID]
		if !ok {
			dropped = append(dropped, item)
			continue
		}
		text := rec.EmbeddingText()
		if e.filter != nil {
			if text, err = e.filter.Filter(text); err != nil {
				slog.Warn("record withheld from index", "index_id", indexID, "record_id", rec.ID, "error", err)
				dropped = append(dropped, item)
				withheld++
				continue
			}
		}
		resolved = append(resolved, item)
		docs = append(docs, vector.Document{ID: item.ExternalID, Text: text})
	}
	// Records deleted before MarkIndexing never got an item.
	res.Missing += len(recordIDs) - len(resolved) - withheld
	res.Withheld += withheld

	if len(dropped) > 0 {
		if err := e.dropItems(ctx, provider, cfg, dropped); err != nil {
			return err
		}
	}
	if len(docs) == 0 {
		return nil
	}

	if upsertErr := provider.EmbedAndUpsert(ctx, docs, cfg); upsertErr != nil {
		// Undo the INDEXING marks; these records are rediscovered as new.
		err := semerr.Wrapf(upsertErr, semerr.CodeIndexerBatchFailure, "embedding %d documents", len(docs))
		if dropErr := e.dropItems(ctx, provider, cfg, resolved); dropErr != nil {
			return errors.Join(err, dropErr)
		}
		return err
	}

	itemIDs, _ := splitItems(resolved)
	if err := e.items.MarkIndexed(ctx, itemIDs); err != nil {
		return err
	}
	res.Indexed += len(resolved)
	return nil
}

// dropItems deletes the items' vectors, best-effort, then their rows.
func (e *Engine) dropItems(ctx context.Context, provider vector.Provider, cfg vector.Config, items []*store.IndexItem) error {
	itemIDs, externalIDs := splitItems(items)
	if err := provider.Delete(ctx, externalIDs, cfg); err != nil {
		slog.Warn("deleting vectors failed", "index_id", cfg.IndexID, "count", len(externalIDs), "error", err)
	}
	return e.items.DeleteItems(ctx, itemIDs)
}

func splitItems(items []*store.IndexItem) (itemIDs, externalIDs []string) {
	itemIDs = make([]string, len(items))
	externalIDs = make([]string, len(items))
	for i, item := range items {
		itemIDs[i] = item.ID
		externalIDs[i] = item.ExternalID
	}
	return itemIDs, externalIDs
}
