// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/semdex/internal/store"
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.Catalog     = (*Catalog)(nil)
	_ store.IndexStore  = (*IndexStore)(nil)
	_ store.ItemStore   = (*ItemStore)(nil)
	_ store.RecordStore = (*RecordStore)(nil)
)

// catalogDSNOptions enables WAL, waits on locks, enforces foreign keys (item
// orphaning relies on ON DELETE SET NULL) and takes write locks up front so
// concurrent transactions queue instead of failing on upgrade.
const catalogDSNOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"

// Catalog implements store.Catalog backed by a single SQLite database shared
// by the index, item and record stores.
type Catalog struct {
	db      *sql.DB
	indexes *IndexStore
	items   *ItemStore
	records *RecordStore
}

// NewCatalog opens (or creates) a SQLite database at dbPath and initialises
// the indexes, records and index_items tables.
func NewCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+catalogDSNOptions)
	if err != nil {
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "opening catalog db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "pinging catalog db")
	}

	if err := migrateCatalog(db); err != nil {
		_ = db.Close()
		return nil, semerr.Wrapf(err, semerr.CodeStoreDatabaseFailure, "migrating catalog db")
	}

	return NewCatalogWithDB(db), nil
}

// NewCatalogWithDB builds a Catalog over an already migrated connection.
func NewCatalogWithDB(db *sql.DB) *Catalog {
	return &Catalog{
		db:      db,
		indexes: &IndexStore{db: db, now: time.Now},
		items:   &ItemStore{db: db, now: time.Now},
		records: &RecordStore{db: db, now: time.Now},
	}
}

func migrateCatalog(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS indexes (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL UNIQUE,
	active           INTEGER NOT NULL DEFAULT 0,
	indexing         INTEGER NOT NULL DEFAULT 0,
	indexing_owner   TEXT NOT NULL DEFAULT '',
	lease_expires_at INTEGER NOT NULL DEFAULT 0,
	provider         TEXT NOT NULL,
	provider_config  TEXT NOT NULL DEFAULT '{}',
	indexed_count    INTEGER NOT NULL DEFAULT 0,
	last_indexed_at  TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_indexes_single_active ON indexes(active) WHERE active = 1;

CREATE TABLE IF NOT EXISTS records (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	ready      INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_ready ON records(ready);

CREATE TABLE IF NOT EXISTS index_items (
	id          TEXT PRIMARY KEY,
	index_id    TEXT NOT NULL,
	external_id TEXT NOT NULL,
	record_id   TEXT,
	status      TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	FOREIGN KEY (index_id) REFERENCES indexes(id) ON DELETE CASCADE,
	FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE SET NULL,
	UNIQUE (index_id, external_id),
	UNIQUE (index_id, record_id)
);

CREATE INDEX IF NOT EXISTS idx_index_items_status ON index_items(index_id, status);
CREATE INDEX IF NOT EXISTS idx_index_items_record ON index_items(record_id);
`
	_, err := db.Exec(ddl)
	return err
}

// Indexes returns the IndexStore sub-store.
func (c *Catalog) Indexes() store.IndexStore { return c.indexes }

// Items returns the ItemStore sub-store.
func (c *Catalog) Items() store.ItemStore { return c.items }

// Records returns the RecordStore sub-store.
func (c *Catalog) Records() store.RecordStore { return c.records }

// Close closes the underlying database connection.
func (c *Catalog) Close() error { return c.db.Close() }

// formatTime serialises a time for storage in a TEXT column.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// inClause returns "?,?,?" for n placeholders and the ids as query args.
func inClause(ids []string) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
