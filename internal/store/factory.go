// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"sync"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// CatalogFactory opens the catalog database under a data directory.
type CatalogFactory func(dataPath string) (Catalog, error)

// VectorStoreFactory opens the embedding store under a data directory.
type VectorStoreFactory func(dataPath string) (VectorStore, error)

var (
	catalogFactories = map[string]CatalogFactory{}
	vectorFactories  = map[string]VectorStoreFactory{}
	factoriesMu      sync.RWMutex
)

// RegisterBackend registers factory functions for a named storage backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, cat CatalogFactory, vec VectorStoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	catalogFactories[name] = cat
	vectorFactories[name] = vec
}

// resolveBackend returns the effective backend name, defaulting to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg == nil || cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// NewCatalog opens the catalog for the configured backend.
func NewCatalog(cfg *StorageConfig, dataPath string) (Catalog, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := catalogFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, semerr.Errorf(semerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}

// NewVectorStore opens the embedding store for the configured backend.
func NewVectorStore(cfg *StorageConfig, dataPath string) (VectorStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := vectorFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, semerr.Errorf(semerr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}
