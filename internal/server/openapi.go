// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/semdex/internal/indexer"
	"github.com/sigil-dev/semdex/internal/store"
	"github.com/sigil-dev/semdex/pkg/health"
)

// Document returns the OpenAPI description of every route, including the
// optional ones. No handler runs.
func Document(version string) (*huma.OpenAPI, error) {
	srv, err := New(Config{ListenAddr: "127.0.0.1:0", Version: version})
	if err != nil {
		return nil, err
	}
	srv.RegisterServices(&Services{
		indexes:   specStub{},
		sync:      specStub{},
		records:   specStub{},
		embedders: specStub{},
	})
	return srv.API().OpenAPI(), nil
}

// specStub satisfies every service interface for schema discovery.
type specStub struct{}

func (specStub) CreateIndex(context.Context, indexer.CreateIndexParams) (*store.Index, error) {
	return nil, nil
}
func (specStub) ListIndexes(context.Context) ([]*store.Index, error)     { return nil, nil }
func (specStub) Status(context.Context, string) (*indexer.Status, error) { return nil, nil }
func (specStub) ActiveStatus(context.Context) (*indexer.Status, error)   { return nil, nil }
func (specStub) Activate(context.Context, string) error                  { return nil }
func (specStub) Deactivate(context.Context, string) error                { return nil }
func (specStub) Delete(context.Context, string) error                    { return nil }
func (specStub) Query(context.Context, string, string) ([]indexer.RankedRecord, error) {
	return nil, nil
}
func (specStub) QueryActive(context.Context, string) ([]indexer.RankedRecord, error) {
	return nil, nil
}
func (specStub) TriggerSync(context.Context, string) error          { return nil }
func (specStub) Put(context.Context, *store.Record) error           { return nil }
func (specStub) Get(context.Context, string) (*store.Record, error) { return nil, nil }
func (specStub) MarkChanged(context.Context, []string) error        { return nil }
func (specStub) HealthSnapshot() map[string]health.Metrics          { return nil }
