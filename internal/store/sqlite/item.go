// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// ItemStore implements store.ItemStore backed by SQLite.
type ItemStore struct {
	db  *sql.DB
	now func() time.Time
}

const itemColumns = `id, index_id, external_id, record_id, status, updated_at`

func (s *ItemStore) ListOrphans(ctx context.Context, indexID string, limit int) ([]*store.IndexItem, error) {
	if limit <= 0 {
		limit = 50
	}

	const q = `SELECT ` + itemColumns + ` FROM index_items
WHERE index_id = ? AND record_id IS NULL
ORDER BY id LIMIT ?`

	return s.queryItems(ctx, q, indexID, limit)
}

func (s *ItemStore) ListPendingRecordIDs(ctx context.Context, indexID string) ([]string, error) {
	const q = `SELECT i.record_id FROM index_items i
JOIN records r ON r.id = i.record_id
WHERE i.index_id = ? AND i.status IN ('STALE', 'INDEXING')
ORDER BY i.record_id`

	rows, err := s.db.QueryContext(ctx, q, indexID)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "listing pending items of index %s", indexID)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning pending item")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating pending items")
	}
	return ids, nil
}

func (s *ItemStore) MarkIndexing(ctx context.Context, indexID string, recordIDs []string) ([]*store.IndexItem, error) {
	if len(recordIDs) == 0 {
		return nil, nil
	}
	if indexID == "" {
		return nil, semerr.New(semerr.CodeStoreItemUpsertInvalid, "item upsert: index id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "beginning tx for item upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	// The SELECT skips records deleted since discovery; the engine treats
	// them as missing.
	const upsert = `INSERT INTO index_items (id, index_id, external_id, record_id, status, updated_at)
SELECT ?, ?, ?, r.id, 'INDEXING', ? FROM records r WHERE r.id = ?
ON CONFLICT(index_id, record_id) DO UPDATE SET status = 'INDEXING', updated_at = excluded.updated_at`

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "preparing item upsert")
	}
	defer func() { _ = stmt.Close() }()

	now := formatTime(s.now())
	for _, recordID := range recordIDs {
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), indexID, uuid.NewString(), now, recordID); err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "upserting item for record %s", recordID)
		}
	}

	placeholders, args := inClause(recordIDs)
	q := `SELECT ` + itemColumns + ` FROM index_items WHERE index_id = ? AND record_id IN (` + placeholders + `)`
	rows, err := tx.QueryContext(ctx, q, append([]any{indexID}, args...)...)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "reading upserted items")
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "committing item upsert")
	}
	return items, nil
}

func (s *ItemStore) MarkIndexed(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	placeholders, args := inClause(itemIDs)
	q := `UPDATE index_items SET status = 'INDEXED', updated_at = ?
WHERE status = 'INDEXING' AND id IN (` + placeholders + `)`

	if _, err := s.db.ExecContext(ctx, q, append([]any{formatTime(s.now())}, args...)...); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "marking %d items indexed", len(itemIDs))
	}
	return nil
}

func (s *ItemStore) MarkStale(ctx context.Context, recordIDs []string) (int64, error) {
	if len(recordIDs) == 0 {
		return 0, nil
	}

	placeholders, args := inClause(recordIDs)
	q := `UPDATE index_items SET status = 'STALE', updated_at = ? WHERE record_id IN (` + placeholders + `)`

	result, err := s.db.ExecContext(ctx, q, append([]any{formatTime(s.now())}, args...)...)
	if err != nil {
		return 0, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "marking records stale")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking stale rows")
	}
	return n, nil
}

func (s *ItemStore) DeleteItems(ctx context.Context, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	placeholders, args := inClause(itemIDs)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_items WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deleting %d items", len(itemIDs))
	}
	return nil
}

func (s *ItemStore) ResolveExternalIDs(ctx context.Context, indexID string, externalIDs []string) (map[string]string, error) {
	out := make(map[string]string, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}

	placeholders, args := inClause(externalIDs)
	q := `SELECT external_id, record_id FROM index_items
WHERE index_id = ? AND record_id IS NOT NULL AND external_id IN (` + placeholders + `)`

	rows, err := s.db.QueryContext(ctx, q, append([]any{indexID}, args...)...)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "resolving external ids of index %s", indexID)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ext, rec string
		if err := rows.Scan(&ext, &rec); err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning external id")
		}
		out[ext] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating external ids")
	}
	return out, nil
}

func (s *ItemStore) CountByStatus(ctx context.Context, indexID string) (store.ItemCounts, error) {
	const q = `SELECT status, record_id IS NULL, COUNT(*) FROM index_items
WHERE index_id = ? GROUP BY status, record_id IS NULL`

	rows, err := s.db.QueryContext(ctx, q, indexID)
	if err != nil {
		return store.ItemCounts{}, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "counting items of index %s", indexID)
	}
	defer func() { _ = rows.Close() }()

	var counts store.ItemCounts
	for rows.Next() {
		var (
			status   string
			orphaned int
			n        int
		)
		if err := rows.Scan(&status, &orphaned, &n); err != nil {
			return store.ItemCounts{}, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning item count")
		}
		if orphaned == 1 {
			counts.Orphaned += n
			continue
		}
		switch store.ItemStatus(status) {
		case store.ItemStatusIndexing:
			counts.Indexing += n
		case store.ItemStatusIndexed:
			counts.Indexed += n
		case store.ItemStatusStale:
			counts.Stale += n
		}
	}
	if err := rows.Err(); err != nil {
		return store.ItemCounts{}, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating item counts")
	}
	return counts, nil
}

func (s *ItemStore) ListItems(ctx context.Context, indexID string) ([]*store.IndexItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM index_items WHERE index_id = ? ORDER BY record_id, id`
	return s.queryItems(ctx, q, indexID)
}

func (s *ItemStore) queryItems(ctx context.Context, q string, args ...any) ([]*store.IndexItem, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "querying items")
	}
	return scanItems(rows)
}

// scanItems drains and closes rows.
func scanItems(rows *sql.Rows) ([]*store.IndexItem, error) {
	defer func() { _ = rows.Close() }()

	var items []*store.IndexItem
	for rows.Next() {
		var (
			item     store.IndexItem
			recordID sql.NullString
			status   string
			updated  string
		)
		if err := rows.Scan(&item.ID, &item.IndexID, &item.ExternalID, &recordID, &status, &updated); err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning item")
		}
		item.RecordID = recordID.String
		item.Status = store.ItemStatus(status)
		item.UpdatedAt = parseTime(updated)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating items")
	}
	return items, nil
}
