// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package vector

import (
	"slices"
	"sync"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// Registry maps provider names, as stored on an index, to implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds p under name. Names are unique.
func (r *Registry) Register(name string, p Provider) error {
	if name == "" || p == nil {
		return semerr.New(semerr.CodeVectorConfigInvalid, "vector provider name and implementation are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return semerr.New(semerr.CodeVectorProviderConflict, "vector provider already registered",
			semerr.FieldProvider(name))
	}
	r.providers[name] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, semerr.New(semerr.CodeVectorProviderNotFound, "vector provider not registered",
			semerr.FieldProvider(name))
	}
	return p, nil
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
