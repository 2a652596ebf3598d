// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// IndexStore implements store.IndexStore backed by SQLite.
type IndexStore struct {
	db  *sql.DB
	now func() time.Time
}

const indexColumns = `id, name, active, indexing, indexing_owner, lease_expires_at, provider,
provider_config, indexed_count, last_indexed_at, created_at, updated_at`

func (s *IndexStore) CreateIndex(ctx context.Context, idx *store.Index) error {
	if err := idx.Validate(); err != nil {
		return err
	}

	cfg := []byte("{}")
	if len(idx.ProviderConfig) > 0 {
		var err error
		cfg, err = json.Marshal(idx.ProviderConfig)
		if err != nil {
			return semerr.Wrap(err, semerr.CodeStoreIndexCreateInvalid, "marshalling provider config",
				semerr.FieldIndexID(idx.ID))
		}
	}

	now := s.now()
	if idx.CreatedAt.IsZero() {
		idx.CreatedAt = now
	}
	idx.UpdatedAt = now

	const q = `INSERT INTO indexes (id, name, active, indexing, provider, provider_config, indexed_count, created_at, updated_at)
VALUES (?, ?, 0, 0, ?, ?, 0, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		idx.ID,
		idx.Name,
		idx.Provider,
		string(cfg),
		formatTime(idx.CreatedAt),
		formatTime(idx.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return semerr.Wrap(err, semerr.CodeStoreIndexCreateConflict, "index already exists",
				semerr.FieldIndexID(idx.ID), semerr.Field("name", idx.Name))
		}
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "creating index %s", idx.ID)
	}

	idx.Active = false
	idx.Indexing = false
	idx.IndexedCount = 0
	return nil
}

func (s *IndexStore) GetIndex(ctx context.Context, id string) (*store.Index, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+indexColumns+` FROM indexes WHERE id = ?`, id)
	idx, err := scanIndex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, semerr.New(semerr.CodeStoreIndexGetNotFound, "index not found", semerr.FieldIndexID(id))
	}
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "getting index %s", id)
	}
	return idx, nil
}

func (s *IndexStore) GetActiveIndex(ctx context.Context) (*store.Index, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+indexColumns+` FROM indexes WHERE active = 1`)
	idx, err := scanIndex(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, semerr.New(semerr.CodeStoreIndexGetNotFound, "no active index")
	}
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "getting active index")
	}
	return idx, nil
}

func (s *IndexStore) ListIndexes(ctx context.Context) ([]*store.Index, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+indexColumns+` FROM indexes ORDER BY created_at, id`)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "listing indexes")
	}
	defer func() { _ = rows.Close() }()

	var out []*store.Index
	for rows.Next() {
		idx, err := scanIndex(rows)
		if err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "scanning index")
		}
		out = append(out, idx)
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "iterating indexes")
	}
	return out, nil
}

func (s *IndexStore) ActivateIndex(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "beginning tx for index activation %s", id)
	}
	defer tx.Rollback() //nolint:errcheck

	now := formatTime(s.now())

	// Deactivate first: the partial unique index allows a single active row.
	if _, err := tx.ExecContext(ctx, `UPDATE indexes SET active = 0, updated_at = ? WHERE active = 1 AND id != ?`, now, id); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deactivating indexes")
	}

	result, err := tx.ExecContext(ctx, `UPDATE indexes SET active = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "activating index %s", id)
	}
	if n, err := result.RowsAffected(); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking rows for index %s", id)
	} else if n == 0 {
		return semerr.New(semerr.CodeStoreIndexGetNotFound, "index not found", semerr.FieldIndexID(id))
	}

	if err := tx.Commit(); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "committing index activation %s", id)
	}
	return nil
}

func (s *IndexStore) DeactivateIndex(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE indexes SET active = 0, updated_at = ? WHERE id = ?`, formatTime(s.now()), id)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deactivating index %s", id)
	}
	return requireRow(result, id)
}

func (s *IndexStore) DeleteIndex(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM indexes WHERE id = ?`, id)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deleting index %s", id)
	}
	return requireRow(result, id)
}

func (s *IndexStore) AcquireLease(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) (bool, error) {
	const q = `UPDATE indexes SET indexing = 1, indexing_owner = ?, lease_expires_at = ?, updated_at = ?
WHERE id = ? AND (indexing = 0 OR lease_expires_at <= ?)`

	result, err := s.db.ExecContext(ctx, q,
		owner,
		now.Add(ttl).UnixMilli(),
		formatTime(now),
		id,
		now.UnixMilli(),
	)
	if err != nil {
		return false, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "acquiring lease on index %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking lease rows for index %s", id)
	}
	if n == 1 {
		return true, nil
	}

	// Distinguish "held by someone else" from "no such index".
	if _, err := s.GetIndex(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *IndexStore) RenewLease(ctx context.Context, id, owner string, now time.Time, ttl time.Duration) error {
	const q = `UPDATE indexes SET lease_expires_at = ?, updated_at = ?
WHERE id = ? AND indexing = 1 AND indexing_owner = ?`

	result, err := s.db.ExecContext(ctx, q, now.Add(ttl).UnixMilli(), formatTime(now), id, owner)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "renewing lease on index %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking lease rows for index %s", id)
	}
	if n == 0 {
		return semerr.New(semerr.CodeStoreIndexLeaseConflict, "lease no longer held",
			semerr.FieldIndexID(id), semerr.Field("owner", owner))
	}
	return nil
}

func (s *IndexStore) ReleaseLease(ctx context.Context, id, owner string) error {
	const q = `UPDATE indexes SET indexing = 0, indexing_owner = '', lease_expires_at = 0, updated_at = ?
WHERE id = ? AND indexing_owner = ?`

	if _, err := s.db.ExecContext(ctx, q, formatTime(s.now()), id, owner); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "releasing lease on index %s", id)
	}
	return nil
}

func (s *IndexStore) CompleteSync(ctx context.Context, id, owner string, indexedCount int, at time.Time) error {
	const q = `UPDATE indexes SET indexed_count = ?, last_indexed_at = ?, indexing = 0, indexing_owner = '',
lease_expires_at = 0, updated_at = ?
WHERE id = ? AND indexing_owner = ?`

	result, err := s.db.ExecContext(ctx, q, indexedCount, formatTime(at), formatTime(s.now()), id, owner)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "completing sync of index %s", id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking rows for index %s", id)
	}
	if n == 0 {
		return semerr.New(semerr.CodeStoreIndexLeaseConflict, "lease lost before sync completed",
			semerr.FieldIndexID(id), semerr.Field("owner", owner))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndex(row rowScanner) (*store.Index, error) {
	var (
		idx                            store.Index
		active, indexing               int
		leaseExpires                   int64
		cfg, lastIndexed, created, upd string
	)

	err := row.Scan(
		&idx.ID,
		&idx.Name,
		&active,
		&indexing,
		&idx.LeaseOwner,
		&leaseExpires,
		&idx.Provider,
		&cfg,
		&idx.IndexedCount,
		&lastIndexed,
		&created,
		&upd,
	)
	if err != nil {
		return nil, err
	}

	idx.Active = active == 1
	idx.Indexing = indexing == 1
	if leaseExpires > 0 {
		idx.LeaseExpiresAt = time.UnixMilli(leaseExpires).UTC()
	}
	if lastIndexed != "" {
		t := parseTime(lastIndexed)
		idx.LastIndexedAt = &t
	}
	idx.CreatedAt = parseTime(created)
	idx.UpdatedAt = parseTime(upd)

	if cfg != "" && cfg != "{}" {
		if err := json.Unmarshal([]byte(cfg), &idx.ProviderConfig); err != nil {
			return nil, err
		}
	}

	return &idx, nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "checking rows for index %s", id)
	}
	if n == 0 {
		return semerr.New(semerr.CodeStoreIndexGetNotFound, "index not found", semerr.FieldIndexID(id))
	}
	return nil
}
