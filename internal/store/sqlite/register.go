// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"path/filepath"

	"github.com/sigil-dev/semdex/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newCatalog, newVectorStore)
}

// The wrappers return an untyped nil on failure so callers can nil-check
// the interface.

func newCatalog(dataPath string) (store.Catalog, error) {
	cat, err := NewCatalog(filepath.Join(dataPath, "catalog.db"))
	if err != nil {
		return nil, err
	}
	return cat, nil
}

func newVectorStore(dataPath string) (store.VectorStore, error) {
	vs, err := NewVectorStore(filepath.Join(dataPath, "vectors.db"))
	if err != nil {
		return nil, err
	}
	return vs, nil
}
