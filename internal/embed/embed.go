// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embed turns text into dense vectors using hosted embedding APIs.
package embed

import (
	"context"
	"slices"
	"sync"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
	"github.com/sigil-dev/semdex/pkg/health"
)

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	Name() string
	// Embed embeds texts with model. dims requests a reduced output size
	// where the backend supports it; zero keeps the model default.
	Embed(ctx context.Context, model string, texts []string, dims int) ([][]float32, error)
	Health() health.Metrics
}

// Registry holds the embedders available to vector providers.
type Registry struct {
	mu        sync.RWMutex
	embedders map[string]Embedder
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{embedders: make(map[string]Embedder)}
}

// Register adds an embedder under its own name.
func (r *Registry) Register(e Embedder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := e.Name()
	if _, exists := r.embedders[name]; exists {
		return semerr.New(semerr.CodeEmbedConflict, "embedder already registered", semerr.FieldEmbedder(name))
	}
	r.embedders[name] = e
	return nil
}

// Get returns the embedder registered under name.
func (r *Registry) Get(name string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.embedders[name]
	if !ok {
		return nil, semerr.New(semerr.CodeEmbedNotFound, "embedder not registered", semerr.FieldEmbedder(name))
	}
	return e, nil
}

// Names returns the registered embedder names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.embedders))
	for name := range r.embedders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HealthSnapshot returns the health of every registered embedder.
func (r *Registry) HealthSnapshot() map[string]health.Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]health.Metrics, len(r.embedders))
	for name, e := range r.embedders {
		out[name] = e.Health()
	}
	return out
}

// ToFloat32 narrows a float64 vector as returned by JSON APIs.
func ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
