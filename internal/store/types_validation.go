// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Valid reports whether the status is a known item state.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusIndexing, ItemStatusIndexed, ItemStatusStale:
		return true
	default:
		return false
	}
}

// Validate checks that the Index has all required fields set.
func (i Index) Validate() error {
	if i.ID == "" {
		return semerr.New(semerr.CodeStoreIndexCreateInvalid, "index: ID is required")
	}
	if i.Name == "" {
		return semerr.New(semerr.CodeStoreIndexCreateInvalid, "index: Name is required")
	}
	if i.Provider == "" {
		return semerr.New(semerr.CodeStoreIndexCreateInvalid, "index: Provider is required")
	}
	if i.IndexedCount < 0 {
		return semerr.Errorf(semerr.CodeStoreIndexCreateInvalid, "index: IndexedCount must be non-negative, got %d", i.IndexedCount)
	}
	return nil
}

// Validate checks that the Record has all required fields set.
func (r Record) Validate() error {
	if r.ID == "" {
		return semerr.New(semerr.CodeStoreRecordPutInvalid, "record: ID is required")
	}
	if r.Ready && r.EmbeddingText() == "" {
		return semerr.New(semerr.CodeStoreRecordPutInvalid, "record: a ready record needs a title or body",
			semerr.FieldRecordID(r.ID))
	}
	return nil
}
