// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// VectorStore implements store.VectorStore backed by SQLite with sqlite-vec.
// Every logical table maps to one vec0 virtual table named vec_<table>.
type VectorStore struct {
	db *sql.DB
}

// NewVectorStore opens (or creates) a SQLite database at dbPath with the
// sqlite-vec extension loaded.
func NewVectorStore(dbPath string) (*VectorStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "opening vector db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "pinging vector db")
	}

	return &VectorStore{db: db}, nil
}

func vecTable(table string) (string, error) {
	if !tableNamePattern.MatchString(table) {
		return "", semerr.Errorf(semerr.CodeStoreInvalidInput, "invalid vector table name %q", table)
	}
	return "vec_" + table, nil
}

func (v *VectorStore) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "looking up vector table %s", name)
	}
	return n > 0, nil
}

// Upsert inserts or replaces vectors. The table is created on first use with
// the dimensionality of the first entry.
func (v *VectorStore) Upsert(ctx context.Context, table string, entries []store.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	name, err := vecTable(table)
	if err != nil {
		return err
	}

	dims := len(entries[0].Embedding)
	if dims == 0 {
		return semerr.New(semerr.CodeStoreInvalidInput, "vector upsert: empty embedding", semerr.Field("table", table))
	}

	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(id TEXT PRIMARY KEY, embedding float[%d])`, name, dims)
	if _, err := v.db.ExecContext(ctx, ddl); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "creating vector table %s", name)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if len(e.Embedding) != dims {
			return semerr.Errorf(semerr.CodeStoreInvalidInput,
				"vector %s has %d dimensions, expected %d", e.ID, len(e.Embedding), dims)
		}
		blob, err := sqlite_vec.SerializeFloat32(e.Embedding)
		if err != nil {
			return semerr.Wrapf(err, semerr.CodeStoreInvalidInput, "serializing embedding %s", e.ID)
		}

		// vec0 does not support ON CONFLICT; delete first for upsert.
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+name+` WHERE id = ?`, e.ID); err != nil {
			return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deleting existing vector %s", e.ID)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+name+`(id, embedding) VALUES (?, ?)`, e.ID, blob); err != nil {
			return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "inserting vector %s", e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "committing vector upsert")
	}
	return nil
}

// Search performs a k-nearest-neighbor search ordered by ascending distance.
// Searching a table that was never written returns no results.
func (v *VectorStore) Search(ctx context.Context, table string, query []float32, k int) ([]store.VectorResult, error) {
	name, err := vecTable(table)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	exists, err := v.tableExists(ctx, name)
	if err != nil || !exists {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreInvalidInput, "serializing query vector")
	}

	q := `SELECT id, distance FROM ` + name + ` WHERE embedding MATCH ? AND k = ? ORDER BY distance`
	rows, err := v.db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreVectorQueryFailure, "searching vectors in %s", name)
	}
	defer func() { _ = rows.Close() }()

	var results []store.VectorResult
	for rows.Next() {
		var r store.VectorResult
		if err := rows.Scan(&r.ID, &r.Distance); err != nil {
			return nil, semerr.Wrapf(err, semerr.CodeStoreVectorQueryFailure, "scanning vector result")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreVectorQueryFailure, "iterating vector results")
	}

	return results, nil
}

// Delete removes vectors by ID. Missing tables and ids are ignored.
func (v *VectorStore) Delete(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	name, err := vecTable(table)
	if err != nil {
		return err
	}

	exists, err := v.tableExists(ctx, name)
	if err != nil || !exists {
		return err
	}

	placeholders, args := inClause(ids)
	if _, err := v.db.ExecContext(ctx, `DELETE FROM `+name+` WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "deleting vectors from %s", name)
	}
	return nil
}

// DropTable removes a vector table and everything in it.
func (v *VectorStore) DropTable(ctx context.Context, table string) error {
	name, err := vecTable(table)
	if err != nil {
		return err
	}
	if _, err := v.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+name); err != nil {
		return semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "dropping vector table %s", name)
	}
	return nil
}

// Close closes the underlying database connection.
func (v *VectorStore) Close() error {
	return v.db.Close()
}
