// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// RecordStore implements store.RecordStore backed by SQLite.
type RecordStore struct {
	db  *sql.DB
	now func() time.Time
}

func (s *RecordStore) PutRecord(ctx context.Context, rec *store.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	rec.UpdatedAt = s.now()

	const q = `INSERT INTO records (id, title, body, ready, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET title = excluded.title, body = excluded.body,
ready = excluded.ready, updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q, rec.ID, rec.Title, rec.Body, boolToInt(rec.Ready), formatTime(rec.UpdatedAt))
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "putting record %s", rec.ID)
	}
	return nil
}

func (s *RecordStore) GetRecord(ctx context.Context, id string) (*store.Record, error) {
	const q = `SELECT id, title, body, ready, updated_at FROM records WHERE id = ?`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, semerr.New(semerr.CodeStoreRecordGetNotFound, "record not found", semerr.FieldRecordID(id))
	}
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "getting record %s", id)
	}
	return rec, nil
}

func (s *RecordStore) GetReadyRecords(ctx context.Context, ids []string) (map[string]*store.Record, error) {
	out := make(map[string]*store.Record, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders, args := inClause(ids)
	q := `SELECT id, title, body, ready, updated_at FROM records WHERE ready = 1 AND id IN (` + placeholders + `)`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "fetching %d records", len(ids))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning record")
		}
		out[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating records")
	}
	return out, nil
}

func (s *RecordStore) DeleteRecord(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deleting record %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking rows for record %s", id)
	}
	if n == 0 {
		return semerr.New(semerr.CodeStoreRecordGetNotFound, "record not found", semerr.FieldRecordID(id))
	}
	return nil
}

func (s *RecordStore) ListUnindexedIDs(ctx context.Context, indexID string) ([]string, error) {
	const q = `SELECT r.id FROM records r
WHERE r.ready = 1
AND NOT EXISTS (SELECT 1 FROM index_items i WHERE i.index_id = ? AND i.record_id = r.id)
ORDER BY r.id`

	rows, err := s.db.QueryContext(ctx, q, indexID)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "listing unindexed records for index %s", indexID)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning record id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating record ids")
	}
	return ids, nil
}

func scanRecord(row rowScanner) (*store.Record, error) {
	var (
		rec     store.Record
		ready   int
		updated string
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Body, &ready, &updated); err != nil {
		return nil, err
	}
	rec.Ready = ready == 1
	rec.UpdatedAt = parseTime(updated)
	return &rec, nil
}
